package index

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultShardSize is the number of vectors one goroutine scans when a
// search is split across shards.
const DefaultShardSize = 16384

// FlatIndex is an exact brute-force inner-product index. Vectors live in one
// contiguous row-major slice.
type FlatIndex struct {
	dim       int
	ids       []int64
	data      []float32
	shardSize int
}

// FlatOption configures a FlatIndex.
type FlatOption func(*FlatIndex)

// WithShardSize sets how many vectors each parallel scan goroutine covers.
func WithShardSize(n int) FlatOption {
	return func(f *FlatIndex) {
		if n > 0 {
			f.shardSize = n
		}
	}
}

// NewFlat builds a flat index. Every vector must have dimension dim and
// unit norm, and IDs must be unique; otherwise nothing is built.
func NewFlat(dim int, entries []Entry, opts ...FlatOption) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}

	f := &FlatIndex{
		dim:       dim,
		ids:       make([]int64, len(entries)),
		data:      make([]float32, len(entries)*dim),
		shardSize: DefaultShardSize,
	}
	for _, opt := range opts {
		opt(f)
	}

	seen := make(map[int64]struct{}, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("%w: id %d has %d, want %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
		if err := CheckNorm(e.Vector); err != nil {
			return nil, fmt.Errorf("id %d: %w", e.ID, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}
		f.ids[i] = e.ID
		copy(f.data[i*dim:(i+1)*dim], e.Vector)
	}

	return f, nil
}

// FlatBuilder adapts NewFlat to Builder.
func FlatBuilder(opts ...FlatOption) Builder {
	return func(dim int, entries []Entry) (Index, error) {
		return NewFlat(dim, entries, opts...)
	}
}

func (f *FlatIndex) Len() int {
	return len(f.ids)
}

func (f *FlatIndex) Dimension() int {
	return f.dim
}

// Search scans every vector. Large indexes are scanned in parallel shards
// whose partial top-k lists are merged; the total order on results makes the
// outcome independent of sharding.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(f.ids) == 0 || k <= 0 {
		return []Result{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if err := CheckNorm(query); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	n := len(f.ids)
	if n <= f.shardSize {
		return f.scan(query, k, 0, n).sorted(), nil
	}

	shards := (n + f.shardSize - 1) / f.shardSize
	partial := make([]*topK, shards)
	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := s * f.shardSize
			end := min(start+f.shardSize, n)
			partial[s] = f.scan(query, k, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := newTopK(k)
	for _, p := range partial {
		for _, r := range p.items {
			merged.offer(r)
		}
	}
	return merged.sorted(), nil
}

func (f *FlatIndex) scan(query []float32, k, start, end int) *topK {
	top := newTopK(k)
	for i := start; i < end; i++ {
		row := f.data[i*f.dim : (i+1)*f.dim]
		top.offer(Result{ID: f.ids[i], Similarity: clampSimilarity(dot(query, row))})
	}
	return top
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// clampSimilarity absorbs rounding that pushes unit-vector products past ±1.
func clampSimilarity(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

// topK keeps the k best results in a heap whose root is the worst kept one.
type topK struct {
	k     int
	items []Result
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]Result, 0, k)}
}

func (t *topK) Len() int           { return len(t.items) }
func (t *topK) Less(i, j int) bool { return less(t.items[j], t.items[i]) }
func (t *topK) Swap(i, j int)      { t.items[i], t.items[j] = t.items[j], t.items[i] }
func (t *topK) Push(x any)         { t.items = append(t.items, x.(Result)) }
func (t *topK) Pop() any {
	last := t.items[len(t.items)-1]
	t.items = t.items[:len(t.items)-1]
	return last
}

func (t *topK) offer(r Result) {
	if len(t.items) < t.k {
		heap.Push(t, r)
		return
	}
	if less(r, t.items[0]) {
		t.items[0] = r
		heap.Fix(t, 0)
	}
}

func (t *topK) sorted() []Result {
	out := make([]Result, len(t.items))
	copy(out, t.items)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
