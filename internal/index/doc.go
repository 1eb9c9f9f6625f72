// Package index provides nearest-neighbor search over unit-normalized game
// embeddings.
//
// Because every stored vector and every query has unit L2 norm, the inner
// product equals cosine similarity. The package enforces this rather than
// trusting it: NewFlat rejects vectors whose norm deviates from 1 by more
// than NormTolerance, and Search rejects such queries.
//
// # Ordering
//
// Results are ordered by descending similarity with ties broken by ascending
// game ID, so identical queries against the same index always return the
// same sequence.
//
// # FlatIndex
//
// FlatIndex is an exact linear scan over a contiguous vector slab. Above
// DefaultShardSize vectors the scan fans out over goroutines with errgroup
// and merges the per-shard top-k lists. It is rebuilt wholesale when the
// catalog changes and never patched in place.
package index
