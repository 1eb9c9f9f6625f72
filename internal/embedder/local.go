package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

const (
	DefaultLocalModel = "hashed-bow-v1"
	bigramWeight      = 0.5
)

// LocalProvider is an offline embedder based on feature hashing of unigrams
// and bigrams. It needs no network or model files, which makes it the default
// for development and tests. Similarity is lexical rather than semantic.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a hashed bag-of-words embedder. A non-positive
// dimension selects LocalDimension.
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.embed(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}

	if l.cache != nil {
		l.cache.Set(hash, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := lexTokens(text)

	for i, tok := range tokens {
		l.add(vector, tok, 1)
		if i > 0 {
			l.add(vector, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	if Norm(vector) == 0 {
		// No lexical content (punctuation only). Place the text on a single
		// axis so the vector stays unit length and deterministic.
		vector[l.bucket(strings.TrimSpace(text))] = 1
		return vector
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) add(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(l.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vector[idx] += weight
}

func (l *LocalProvider) bucket(text string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return int(h.Sum64() % uint64(l.dimension))
}

// CountTokens implements Tokenizer using the provider's own lexer.
func (l *LocalProvider) CountTokens(text string) int {
	return len(lexTokens(text))
}

// TruncateTokens implements Tokenizer. The cut happens right after the
// max-th token so the embedded prefix is exactly what the lexer sees.
func (l *LocalProvider) TruncateTokens(text string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	inToken := false
	for i, r := range text {
		if isTokenRune(r) {
			inToken = true
			continue
		}
		if inToken {
			count++
			inToken = false
			if count == max {
				return strings.TrimSpace(text[:i])
			}
		}
	}
	return strings.TrimSpace(text)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
