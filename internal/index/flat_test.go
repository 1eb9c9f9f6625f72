package index

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(v ...float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func randomEntries(rng *rand.Rand, n, dim int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		entries[i] = Entry{ID: int64(i + 1), Vector: unit(v...)}
	}
	return entries
}

func TestNewFlat_Validation(t *testing.T) {
	tests := []struct {
		name    string
		dim     int
		entries []Entry
		wantErr error
	}{
		{name: "zero dimension", dim: 0, wantErr: ErrInvalidDimension},
		{name: "wrong dimension", dim: 3, entries: []Entry{{ID: 1, Vector: unit(1, 0)}}, wantErr: ErrDimensionMismatch},
		{name: "not normalized", dim: 2, entries: []Entry{{ID: 1, Vector: []float32{3, 4}}}, wantErr: ErrNotNormalized},
		{name: "zero vector", dim: 2, entries: []Entry{{ID: 1, Vector: []float32{0, 0}}}, wantErr: ErrNotNormalized},
		{name: "duplicate id", dim: 2, entries: []Entry{{ID: 1, Vector: unit(1, 0)}, {ID: 1, Vector: unit(0, 1)}}, wantErr: ErrDuplicateID},
		{name: "empty ok", dim: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := NewFlat(tt.dim, tt.entries)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.entries), idx.Len())
			assert.Equal(t, tt.dim, idx.Dimension())
		})
	}
}

func TestFlat_SearchOrdering(t *testing.T) {
	idx, err := NewFlat(2, []Entry{
		{ID: 5, Vector: unit(1, 0)},
		{ID: 2, Vector: unit(0, 1)},
		{ID: 9, Vector: unit(1, 1)},
		{ID: 1, Vector: unit(1, 0)}, // ties with 5
		{ID: 7, Vector: unit(-1, 0)},
	})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), unit(1, 0), 10)
	require.NoError(t, err)

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Equal(t, []int64{1, 5, 9, 2, 7}, ids)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, math.Sqrt2/2, results[2].Similarity, 1e-6)
	assert.InDelta(t, -1.0, results[4].Similarity, 1e-6)
}

func TestFlat_SearchLimits(t *testing.T) {
	idx, err := NewFlat(2, []Entry{
		{ID: 1, Vector: unit(1, 0)},
		{ID: 2, Vector: unit(0, 1)},
		{ID: 3, Vector: unit(1, 1)},
	})
	require.NoError(t, err)
	ctx := context.Background()

	results, err := idx.Search(ctx, unit(1, 0), 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)

	results, err = idx.Search(ctx, unit(1, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = idx.Search(ctx, []float32{1, 0, 0}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{2, 0}, 2)
	assert.ErrorIs(t, err, ErrNotNormalized)
}

func TestFlat_EmptyIndex(t *testing.T) {
	idx, err := NewFlat(4, nil)
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), unit(1, 0, 0, 0), DefaultK)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFlat_ShardedMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entries := randomEntries(rng, 1000, 16)

	serial, err := NewFlat(16, entries)
	require.NoError(t, err)
	sharded, err := NewFlat(16, entries, WithShardSize(37))
	require.NoError(t, err)

	for q := 0; q < 20; q++ {
		query := randomEntries(rng, 1, 16)[0].Vector
		want, err := serial.Search(context.Background(), query, DefaultK)
		require.NoError(t, err)
		got, err := sharded.Search(context.Background(), query, DefaultK)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFlat_MatchesExhaustiveSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entries := randomEntries(rng, 300, 8)
	idx, err := NewFlat(8, entries)
	require.NoError(t, err)

	query := randomEntries(rng, 1, 8)[0].Vector
	got, err := idx.Search(context.Background(), query, 25)
	require.NoError(t, err)

	all := make([]Result, len(entries))
	for i, e := range entries {
		all[i] = Result{ID: e.ID, Similarity: clampSimilarity(dot(query, e.Vector))}
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	assert.Equal(t, all[:25], got)
}

func TestFlat_CancelledContext(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	idx, err := NewFlat(4, randomEntries(rng, 100, 4), WithShardSize(10))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.Search(ctx, unit(1, 0, 0, 0), 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckNorm(t *testing.T) {
	assert.NoError(t, CheckNorm(unit(1, 2, 3)))
	assert.NoError(t, CheckNorm([]float32{1.0004, 0}))
	assert.ErrorIs(t, CheckNorm([]float32{1.01, 0}), ErrNotNormalized)
}

func BenchmarkFlatSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	entries := randomEntries(rng, 50000, 384)
	idx, err := NewFlat(384, entries)
	if err != nil {
		b.Fatal(err)
	}
	query := entries[123].Vector
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, DefaultK)
	}
}
