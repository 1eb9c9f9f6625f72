// Package embedder maps game text features and user queries to dense,
// unit-normalized vectors.
//
// Every provider satisfies the Embedder interface and guarantees that
// GenerateBatch returns the same vectors GenerateEmbedding would return for
// each text, so offline preparation can batch freely while query-time
// embedding stays one call per request.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "space survival game with crafting",
//	})
//
// # Providers
//
// Remote providers speak the OpenAI-compatible POST /embeddings protocol:
//
//   - openai: text-embedding-3-small, 1536 dimensions
//   - jina: jina-embeddings-v3, 1024 dimensions
//   - tei: a text-embeddings-inference server, by default serving
//     sentence-transformers/all-MiniLM-L6-v2 with 384 dimensions
//
// The local provider hashes unigrams and bigrams into a 384-dimensional
// vector. It is deterministic and offline, and useful for tests and small
// catalogs where lexical overlap is an acceptable proxy for meaning.
//
// With no explicit provider, DetectProvider picks jina when JINA_API_KEY is
// set, then openai when OPENAI_API_KEY is set, then local.
//
// # Resilience
//
// Remote calls are retried with exponential backoff (3 attempts, 100ms to 5s).
// Client errors other than 429 are not retried. A gobreaker circuit breaker
// wraps the retry loop; once it opens, calls fail fast with ErrCircuitOpen
// until the breaker half-opens.
//
// # Normalization
//
// Vectors returned by any provider have unit L2 norm. Remote responses with
// the wrong dimension are rejected with ErrDimensionMismatch rather than
// padded or truncated.
//
// # Tokenization
//
// TokenizerFor returns a provider's own Tokenizer when it implements one
// (the local provider does) and WordTokenizer otherwise. The feature builder
// uses it to bound description length before anything is embedded.
package embedder
