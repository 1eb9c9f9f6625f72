package ranking

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishseta/game-recommender/internal/catalog"
	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/pkg/types"
)

// stubEmbedder returns a fixed unit vector and counts calls.
type stubEmbedder struct {
	calls  atomic.Int32
	err    error
	vector []float32
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	vec := s.vector
	if vec == nil {
		vec = []float32{1, 0}
	}
	return &embedder.Embedding{Vector: vec, Dimension: 2, Provider: "stub", Model: "stub"}, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := &embedder.BatchEmbeddingResponse{Provider: "stub", Model: "stub"}
	for _, text := range req.Texts {
		emb, err := s.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out.Embeddings = append(out.Embeddings, emb)
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int   { return 2 }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub" }
func (s *stubEmbedder) Close() error     { return nil }

// stubIndex returns preset candidates regardless of the query.
type stubIndex struct {
	results []index.Result
}

func (s *stubIndex) Search(ctx context.Context, query []float32, k int) ([]index.Result, error) {
	if k > len(s.results) {
		k = len(s.results)
	}
	out := make([]index.Result, k)
	copy(out, s.results[:k])
	return out, nil
}

func (s *stubIndex) Len() int       { return len(s.results) }
func (s *stubIndex) Dimension() int { return 2 }

func game(id int64, quality float64, genres ...string) *types.Game {
	return &types.Game{
		ID:          id,
		Name:        "game",
		Description: "desc",
		Genres:      genres,
		Quality:     quality,
		Price:       float64(id),
		Platforms:   types.Platforms{Windows: true, Linux: id%2 == 0},
	}
}

func newTestEngine(t *testing.T, games []*types.Game, results []index.Result, cfg Config) (*Engine, *stubEmbedder) {
	t.Helper()
	store, err := catalog.NewStore(games)
	require.NoError(t, err)

	holder := snapshot.NewHolder(&snapshot.Snapshot{
		ID:        "test-snapshot",
		Dimension: 2,
		Catalog:   store,
		Index:     &stubIndex{results: results},
	})
	emb := &stubEmbedder{}
	engine, err := NewEngine(holder, emb, cfg)
	require.NoError(t, err)
	return engine, emb
}

func alphaPtr(a float64) *float64 { return &a }

func ids(resp *Response) []int64 {
	out := make([]int64, len(resp.Games))
	for i, g := range resp.Games {
		out[i] = g.Game.ID
	}
	return out
}

func TestRecommend_EmptyQueryMakesNoModelCall(t *testing.T) {
	engine, emb := newTestEngine(t, []*types.Game{game(1, 0.5)}, nil, Config{})

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := engine.Recommend(context.Background(), Request{Query: q})
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.ErrorIs(t, err, types.ErrEmptyQuery)
	}
	assert.Zero(t, emb.calls.Load())
}

func TestRecommend_FusionScenario(t *testing.T) {
	// A: quality 0.9, semantic 0.2. B: quality 0.1, semantic 0.9.
	games := []*types.Game{game(1, 0.9), game(2, 0.1)}
	results := []index.Result{{ID: 2, Similarity: 0.9}, {ID: 1, Similarity: 0.2}}
	engine, _ := newTestEngine(t, games, results, Config{})

	resp, err := engine.Recommend(context.Background(), Request{Query: "space", Alpha: alphaPtr(0.5)})
	require.NoError(t, err)
	require.Len(t, resp.Games, 2)

	assert.Equal(t, []int64{1, 2}, ids(resp))
	assert.InDelta(t, 0.55, resp.Games[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.5, resp.Games[1].FinalScore, 1e-9)
	assert.Equal(t, 1, resp.Games[0].Rank)
	assert.Equal(t, 2, resp.Games[1].Rank)
	assert.Equal(t, 2, resp.TotalResults)
	assert.Equal(t, "test-snapshot", resp.SnapshotID)

	for i := range resp.Games {
		assert.NoError(t, resp.Games[i].Validate())
	}
}

func TestRecommend_AlphaBoundaries(t *testing.T) {
	games := []*types.Game{game(1, 0.9), game(2, 0.5), game(3, 0.1)}
	results := []index.Result{{ID: 3, Similarity: 0.8}, {ID: 2, Similarity: 0.6}, {ID: 1, Similarity: 0.1}}

	tests := []struct {
		name  string
		alpha float64
		want  []int64
	}{
		{"pure semantic", 1, []int64{3, 2, 1}},
		{"pure quality", 0, []int64{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, games, results, Config{CacheSize: -1})
			resp, err := engine.Recommend(context.Background(), Request{Query: "q", Alpha: alphaPtr(tt.alpha)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(resp))
		})
	}
}

func TestRecommend_AlphaMonotonicity(t *testing.T) {
	type item struct {
		id       int64
		quality  float64
		semantic float64
	}
	items := []item{
		{1, 0.9, 0.1},
		{2, 0.7, 0.5},
		{3, 0.4, 0.6},
		{4, 0.2, 0.95}, // largest semantic-over-quality margin
		{5, 0.5, 0.45},
	}
	var games []*types.Game
	var results []index.Result
	gap := make(map[int64]float64, len(items))
	for _, it := range items {
		games = append(games, game(it.id, it.quality))
		results = append(results, index.Result{ID: it.id, Similarity: it.semantic})
		gap[it.id] = it.semantic - it.quality
	}
	engine, _ := newTestEngine(t, games, results, Config{CacheSize: -1})

	const steps = 20
	positions := make([]map[int64]int, 0, steps+1)
	for i := 0; i <= steps; i++ {
		alpha := float64(i) / steps
		resp, err := engine.Recommend(context.Background(), Request{Query: "q", Alpha: alphaPtr(alpha)})
		require.NoError(t, err)
		require.Len(t, resp.Games, len(items))
		pos := make(map[int64]int, len(items))
		for _, g := range resp.Games {
			pos[g.Game.ID] = g.Rank
		}
		positions = append(positions, pos)
	}

	assert.Equal(t, 5, positions[0][4])
	assert.Equal(t, 1, positions[steps][4])
	for i := 1; i <= steps; i++ {
		assert.LessOrEqual(t, positions[i][4], positions[i-1][4], "rank of game 4 worsened at alpha %v", float64(i)/steps)
	}

	// Raising alpha never lets an item fall behind one with a smaller
	// semantic-over-quality margin that it already outranked.
	for i := 1; i <= steps; i++ {
		for _, x := range items {
			for _, y := range items {
				if gap[x.id] <= gap[y.id] {
					continue
				}
				if positions[i-1][x.id] < positions[i-1][y.id] {
					assert.Less(t, positions[i][x.id], positions[i][y.id],
						"game %d fell behind game %d at alpha %v", x.id, y.id, float64(i)/steps)
				}
			}
		}
	}
}

func TestRecommend_ZeroQueryVectorReturnsNoResults(t *testing.T) {
	engine, emb := newTestEngine(t, []*types.Game{game(1, 0.9)}, []index.Result{{ID: 1, Similarity: 0.8}}, Config{CacheSize: -1})
	emb.vector = []float32{0, 0}

	resp, err := engine.Recommend(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, resp.Games)
	assert.Zero(t, resp.TotalResults)
	assert.Equal(t, "test-snapshot", resp.SnapshotID)
}

func TestRecommend_ZeroQueryVectorAgainstFlatIndex(t *testing.T) {
	store, err := catalog.NewStore([]*types.Game{game(1, 0.9)})
	require.NoError(t, err)
	idx, err := index.FlatBuilder()(2, []index.Entry{{ID: 1, Vector: []float32{1, 0}}})
	require.NoError(t, err)
	holder := snapshot.NewHolder(&snapshot.Snapshot{ID: "flat", Dimension: 2, Catalog: store, Index: idx})
	emb := &stubEmbedder{vector: []float32{0, 0}}
	engine, err := NewEngine(holder, emb, Config{})
	require.NoError(t, err)

	resp, err := engine.Recommend(context.Background(), Request{Query: "q"})
	require.NoError(t, err, "a zero vector must not reach the norm check")
	assert.Empty(t, resp.Games)
}

func TestRecommend_TieBreaks(t *testing.T) {
	// Equal final scores: higher quality first; equal quality: lower id first.
	games := []*types.Game{game(5, 0.5), game(4, 0.25), game(3, 0.5)}
	results := []index.Result{
		{ID: 4, Similarity: 0.75}, // final 0.5, quality 0.25
		{ID: 5, Similarity: 0.5},  // final 0.5, quality 0.5
		{ID: 3, Similarity: 0.5},  // final 0.5, quality 0.5
	}
	engine, _ := newTestEngine(t, games, results, Config{})

	resp, err := engine.Recommend(context.Background(), Request{Query: "q", Alpha: alphaPtr(0.5)})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 4}, ids(resp))
}

func TestRecommend_NegativeSimilarityClamped(t *testing.T) {
	engine, _ := newTestEngine(t, []*types.Game{game(1, 0.4)}, []index.Result{{ID: 1, Similarity: -0.7}}, Config{})

	resp, err := engine.Recommend(context.Background(), Request{Query: "q", Alpha: alphaPtr(0.5)})
	require.NoError(t, err)
	require.Len(t, resp.Games, 1)
	assert.Zero(t, resp.Games[0].SemanticScore)
	assert.InDelta(t, 0.2, resp.Games[0].FinalScore, 1e-9)
}

func TestRecommend_StaleReferencesDropped(t *testing.T) {
	results := []index.Result{{ID: 99, Similarity: 0.9}, {ID: 1, Similarity: 0.5}}
	engine, _ := newTestEngine(t, []*types.Game{game(1, 0.5)}, results, Config{})

	resp, err := engine.Recommend(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(resp))
	assert.Equal(t, 1, resp.Stale)
	assert.Equal(t, 2, resp.Candidates)
}

func TestRecommend_FiltersExcludeEverything(t *testing.T) {
	games := []*types.Game{game(1, 0.5, "Action"), game(2, 0.5, "Indie")}
	results := []index.Result{{ID: 1, Similarity: 0.9}, {ID: 2, Similarity: 0.8}}
	engine, _ := newTestEngine(t, games, results, Config{})

	resp, err := engine.Recommend(context.Background(), Request{
		Query:   "q",
		Filters: &types.Filters{Genres: []string{"Puzzle"}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Games)
	assert.NotNil(t, resp.Games)
	assert.Zero(t, resp.TotalResults)
}

func TestRecommend_Filters(t *testing.T) {
	games := []*types.Game{game(1, 0.5, "Action"), game(2, 0.5, "Indie"), game(3, 0.5, "action"), game(4, 0.5, "Action")}
	results := []index.Result{{ID: 1, Similarity: 0.9}, {ID: 2, Similarity: 0.8}, {ID: 3, Similarity: 0.7}, {ID: 4, Similarity: 0.6}}
	yes, no := true, false
	maxPrice := 3.0

	tests := []struct {
		name    string
		filters *types.Filters
		want    []int64
	}{
		{"nil filters", nil, []int64{1, 2, 3, 4}},
		{"genre case-insensitive", &types.Filters{Genres: []string{"ACTION"}}, []int64{1, 3, 4}},
		{"max price", &types.Filters{MaxPrice: &maxPrice}, []int64{1, 2, 3}},
		{"linux required", &types.Filters{Linux: &yes}, []int64{2, 4}},
		{"linux false is no-op", &types.Filters{Linux: &no}, []int64{1, 2, 3, 4}},
		{"combined", &types.Filters{Genres: []string{"action"}, MaxPrice: &maxPrice, Linux: &yes}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, games, results, Config{})
			resp, err := engine.Recommend(context.Background(), Request{Query: "q", Alpha: alphaPtr(1), Filters: tt.filters})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(resp))
		})
	}
}

func TestRecommend_TopN(t *testing.T) {
	var games []*types.Game
	var results []index.Result
	for i := int64(1); i <= 20; i++ {
		games = append(games, game(i, 0.5))
		results = append(results, index.Result{ID: i, Similarity: 1 - float64(i)/100})
	}
	engine, _ := newTestEngine(t, games, results, Config{})

	resp, err := engine.Recommend(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, resp.Games, DefaultTopN)

	resp, err = engine.Recommend(context.Background(), Request{Query: "q", TopN: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(resp))

	resp, err = engine.Recommend(context.Background(), Request{Query: "q", TopN: 50})
	require.NoError(t, err)
	assert.Len(t, resp.Games, 20, "fewer candidates than top_n is not an error")
}

func TestRecommend_CandidateKBoundsResults(t *testing.T) {
	var games []*types.Game
	var results []index.Result
	for i := int64(1); i <= 80; i++ {
		games = append(games, game(i, 0.5))
		results = append(results, index.Result{ID: i, Similarity: 0.5})
	}
	engine, _ := newTestEngine(t, games, results, Config{})

	resp, err := engine.Recommend(context.Background(), Request{Query: "q", TopN: 100})
	require.NoError(t, err)
	assert.Equal(t, index.DefaultK, resp.Candidates)
	assert.Len(t, resp.Games, index.DefaultK)
}

func TestRecommend_InvalidRequests(t *testing.T) {
	engine, emb := newTestEngine(t, []*types.Game{game(1, 0.5)}, nil, Config{})
	negative := -1.0
	lo, hi := 10.0, 5.0

	tests := []struct {
		name string
		req  Request
	}{
		{"alpha above 1", Request{Query: "q", Alpha: alphaPtr(1.5)}},
		{"alpha below 0", Request{Query: "q", Alpha: alphaPtr(-0.1)}},
		{"top_n negative", Request{Query: "q", TopN: -1}},
		{"top_n above max", Request{Query: "q", TopN: DefaultMaxTopN + 1}},
		{"negative price", Request{Query: "q", Filters: &types.Filters{MaxPrice: &negative}}},
		{"inverted price range", Request{Query: "q", Filters: &types.Filters{MinPrice: &lo, MaxPrice: &hi}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Recommend(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Zero(t, emb.calls.Load())
}

func TestRecommend_IdempotentAndCached(t *testing.T) {
	games := []*types.Game{game(1, 0.2), game(2, 0.8), game(3, 0.5)}
	results := []index.Result{{ID: 1, Similarity: 0.9}, {ID: 2, Similarity: 0.3}, {ID: 3, Similarity: 0.3}}
	engine, emb := newTestEngine(t, games, results, Config{})
	req := Request{Query: "  co-op  ", TopN: 3}

	first, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, int32(1), emb.calls.Load())

	// Mutating a returned response must not leak into the cache.
	second.Games[0] = types.ScoredGame{}
	third, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(third))

	engine.InvalidateCache()
	fourth, err := engine.Recommend(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, fourth.CacheHit)
	assert.Equal(t, ids(first), ids(fourth))
}

func TestRecommend_CacheDisabled(t *testing.T) {
	engine, emb := newTestEngine(t, []*types.Game{game(1, 0.5)}, []index.Result{{ID: 1, Similarity: 0.5}}, Config{CacheSize: -1})
	for i := 0; i < 3; i++ {
		resp, err := engine.Recommend(context.Background(), Request{Query: "q"})
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
	}
	assert.Equal(t, int32(3), emb.calls.Load())
}

func TestRecommend_EmbedderFailure(t *testing.T) {
	engine, emb := newTestEngine(t, []*types.Game{game(1, 0.5)}, nil, Config{})
	emb.err = embedder.ErrCircuitOpen

	_, err := engine.Recommend(context.Background(), Request{Query: "q"})
	assert.ErrorIs(t, err, embedder.ErrCircuitOpen)
}

func TestRecommend_NoSnapshot(t *testing.T) {
	engine, err := NewEngine(snapshot.NewHolder(nil), &stubEmbedder{}, Config{})
	require.NoError(t, err)

	_, err = engine.Recommend(context.Background(), Request{Query: "q"})
	assert.ErrorIs(t, err, snapshot.ErrIndexUnavailable)

	_, err = engine.Genres()
	assert.ErrorIs(t, err, snapshot.ErrIndexUnavailable)
}

func TestNewEngine_Config(t *testing.T) {
	holder := snapshot.NewHolder(nil)

	_, err := NewEngine(nil, &stubEmbedder{}, Config{})
	assert.Error(t, err)
	_, err = NewEngine(holder, nil, Config{})
	assert.Error(t, err)
	_, err = NewEngine(holder, &stubEmbedder{}, Config{DefaultAlpha: alphaPtr(2)})
	assert.Error(t, err)

	engine, err := NewEngine(holder, &stubEmbedder{}, Config{DefaultAlpha: alphaPtr(0), DefaultTopN: 500})
	require.NoError(t, err)
	cfg := engine.Config()
	assert.Equal(t, 0.0, *cfg.DefaultAlpha)
	assert.Equal(t, DefaultMaxTopN, cfg.DefaultTopN)
	assert.Equal(t, index.DefaultK, cfg.CandidateK)
}

func TestRecommend_WithFlatIndexAndLocalEmbedder(t *testing.T) {
	local, err := embedder.NewLocalProvider(128, nil)
	require.NoError(t, err)
	ctx := context.Background()

	texts := map[int64]string{
		1: "space station survival crafting",
		2: "medieval castle siege strategy",
		3: "cozy farming village life",
	}
	var games []*types.Game
	var entries []index.Entry
	for id := int64(1); id <= 3; id++ {
		emb, err := local.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: texts[id]})
		require.NoError(t, err)
		games = append(games, &types.Game{ID: id, Name: "g", Description: texts[id], Quality: 0.5, TextFeature: texts[id]})
		entries = append(entries, index.Entry{ID: id, Vector: emb.Vector})
	}
	flat, err := index.NewFlat(128, entries)
	require.NoError(t, err)
	store, err := catalog.NewStore(games)
	require.NoError(t, err)

	engine, err := NewEngine(snapshot.NewHolder(&snapshot.Snapshot{ID: "s", Catalog: store, Index: flat}), local, Config{})
	require.NoError(t, err)

	resp, err := engine.Recommend(ctx, Request{Query: "castle siege", Alpha: alphaPtr(1)})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Games)
	assert.Equal(t, int64(2), resp.Games[0].Game.ID)
}

func TestFuse(t *testing.T) {
	assert.InDelta(t, 0.55, Fuse(0.5, 0.2, 0.9), 1e-12)
	assert.Equal(t, 0.2, Fuse(1, 0.2, 0.9))
	assert.Equal(t, 0.9, Fuse(0, 0.2, 0.9))
}

func TestCacheKey(t *testing.T) {
	yes, no := true, false
	base := cacheKey("s", "q", nil, 0.5, 10)

	assert.Equal(t, base, cacheKey("s", "q", &types.Filters{Mac: &no}, 0.5, 10), "false platform flag restricts nothing")
	assert.NotEqual(t, base, cacheKey("s", "q", &types.Filters{Mac: &yes}, 0.5, 10))
	assert.NotEqual(t, base, cacheKey("other", "q", nil, 0.5, 10))
	assert.NotEqual(t, base, cacheKey("s", "q", nil, 0.6, 10))
	assert.NotEqual(t, base, cacheKey("s", "q", nil, 0.5, 11))

	split := cacheKey("s", "q", &types.Filters{Genres: []string{"Action", "Indie"}}, 0.5, 10)
	joined := cacheKey("s", "q", &types.Filters{Genres: []string{"Action,Indie"}}, 0.5, 10)
	assert.NotEqual(t, split, joined, "genre boundaries are part of the key")
	assert.Equal(t, split, cacheKey("s", "q", &types.Filters{Genres: []string{"action", "INDIE"}}, 0.5, 10))
	assert.NotEqual(t, cacheKey("s|q", "", nil, 0.5, 10), cacheKey("s", "q|", nil, 0.5, 10))
}

func TestGenres(t *testing.T) {
	engine, _ := newTestEngine(t, []*types.Game{game(1, 0.5, "Indie", "Action"), game(2, 0.5, "action")}, nil, Config{})
	genres, err := engine.Genres()
	require.NoError(t, err)
	assert.Equal(t, []string{"Action", "Indie"}, genres)
}
