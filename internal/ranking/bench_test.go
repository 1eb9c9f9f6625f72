package ranking

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/krishseta/game-recommender/internal/catalog"
	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/pkg/types"
)

func randomUnit(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var sum float64
	for i := range v {
		x := r.NormFloat64()
		v[i] = float32(x)
		sum += x * x
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// BenchmarkRecommend measures the uncached pipeline over a 10k-game flat index.
func BenchmarkRecommend(b *testing.B) {
	const (
		n   = 10000
		dim = 2
	)
	r := rand.New(rand.NewSource(1))
	games := make([]*types.Game, n)
	entries := make([]index.Entry, n)
	for i := range games {
		id := int64(i + 1)
		games[i] = &types.Game{ID: id, Name: "g", Description: "d", Quality: r.Float64(), Genres: []string{"Action"}}
		entries[i] = index.Entry{ID: id, Vector: randomUnit(r, dim)}
	}
	flat, err := index.NewFlat(dim, entries)
	if err != nil {
		b.Fatal(err)
	}
	store, err := catalog.NewStore(games)
	if err != nil {
		b.Fatal(err)
	}
	engine, err := NewEngine(snapshot.NewHolder(&snapshot.Snapshot{ID: "bench", Catalog: store, Index: flat}), &stubEmbedder{}, Config{CacheSize: -1})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	req := Request{Query: "open world", Filters: &types.Filters{Genres: []string{"action"}}}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Recommend(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
