package index

import (
	"context"
	"errors"
	"math"
)

// DefaultK is the number of candidates the ranking stage asks for.
const DefaultK = 50

// NormTolerance is the allowed deviation of a vector's L2 norm from 1.
const NormTolerance = 1e-3

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotNormalized     = errors.New("vector is not unit-normalized")
	ErrDuplicateID       = errors.New("duplicate id in index")
	ErrInvalidDimension  = errors.New("dimension must be positive")
)

// Entry pairs a game ID with its embedding.
type Entry struct {
	ID     int64
	Vector []float32
}

// Result is one nearest-neighbor hit.
type Result struct {
	ID         int64
	Similarity float64 // inner product of unit vectors, in [-1, 1]
}

// Index answers nearest-neighbor queries over a fixed set of unit vectors.
// Implementations are immutable after construction and safe for concurrent
// Search calls.
type Index interface {
	// Search returns at most k results ordered by descending similarity,
	// ties broken by ascending ID. An empty index returns no results and no
	// error.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dimension returns the vector dimension.
	Dimension() int
}

// Builder constructs an index from entries.
type Builder func(dim int, entries []Entry) (Index, error)

// CheckNorm returns ErrNotNormalized unless v has unit length within
// NormTolerance.
func CheckNorm(v []float32) error {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1) > NormTolerance {
		return ErrNotNormalized
	}
	return nil
}

// less orders results: higher similarity first, then lower ID.
func less(a, b Result) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ID < b.ID
}
