package evaluation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishseta/game-recommender/internal/catalog"
	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/pkg/types"
)

func TestPrecisionAtK(t *testing.T) {
	tests := []struct {
		name   string
		ranked []bool
		k      int
		want   float64
	}{
		{"all relevant", []bool{true, true}, 2, 1},
		{"half", []bool{true, false, true, false}, 4, 0.5},
		{"k cut", []bool{true, false, false}, 1, 1},
		{"fewer than k", []bool{true, false}, 10, 0.5},
		{"empty", nil, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PrecisionAtK(tt.ranked, tt.k), 1e-12)
		})
	}
}

func TestRecallAtK(t *testing.T) {
	assert.InDelta(t, 0.5, RecallAtK([]bool{true, false, true}, 3, 4), 1e-12)
	assert.InDelta(t, 0.25, RecallAtK([]bool{true, false, true}, 2, 4), 1e-12)
	assert.Zero(t, RecallAtK([]bool{true}, 1, 0))
}

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name     string
		ranked   []bool
		k, total int
		want     float64
	}{
		// hits at 1 and 3: (1/1 + 2/3) / 2
		{"two hits", []bool{true, false, true}, 3, 2, (1.0 + 2.0/3.0) / 2},
		// denominator capped by k
		{"capped by k", []bool{true, true}, 2, 10, 1},
		{"no hits", []bool{false, false}, 2, 3, 0},
		{"nothing relevant", []bool{false}, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AveragePrecision(tt.ranked, tt.k, tt.total), 1e-12)
		})
	}
}

func TestLoadQueries(t *testing.T) {
	input := "# eval set\nspace survival\n\n  cozy farming  \n#skip\n"
	queries, err := LoadQueries(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"space survival", "cozy farming"}, queries)
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	local, err := embedder.NewLocalProvider(256, nil)
	require.NoError(t, err)
	ctx := context.Background()

	data := []struct {
		id    int64
		genre string
		text  string
	}{
		{1, "Simulation", "space station survival crafting"},
		{2, "Simulation", "space station trading"},
		{3, "Strategy", "medieval castle siege"},
		{4, "Strategy", "castle siege tactics"},
		{5, "Casual", "cozy farming village"},
	}

	games := make([]*types.Game, 0, len(data))
	entries := make([]index.Entry, 0, len(data))
	for _, d := range data {
		emb, err := local.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: d.text})
		require.NoError(t, err)
		games = append(games, &types.Game{ID: d.id, Name: "g", Description: d.text, Genres: []string{d.genre}, Quality: 0.5})
		entries = append(entries, index.Entry{ID: d.id, Vector: emb.Vector})
	}

	flat, err := index.NewFlat(256, entries)
	require.NoError(t, err)
	store, err := catalog.NewStore(games)
	require.NoError(t, err)

	engine, err := ranking.NewEngine(snapshot.NewHolder(&snapshot.Snapshot{ID: "eval", Catalog: store, Index: flat}), local, ranking.Config{})
	require.NoError(t, err)
	return New(engine, local)
}

func TestRun(t *testing.T) {
	ev := newTestEvaluator(t)
	alpha := 1.0

	report, err := ev.Run(context.Background(), []string{"space station", "castle siege", "   "}, Options{K: 2, Alpha: &alpha, Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, "eval", report.SnapshotID)
	assert.Equal(t, 2, report.K)
	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Queries, 3)

	space := report.Queries[0]
	assert.Equal(t, "Simulation", space.TopGenre)
	assert.Equal(t, 2, space.PoolRelevant)
	assert.InDelta(t, 1.0, space.PrecisionAtK, 1e-12)
	assert.InDelta(t, 1.0, space.RecallAtK, 1e-12)

	castle := report.Queries[1]
	assert.Equal(t, "Strategy", castle.TopGenre)

	assert.True(t, report.Queries[2].Skipped)
	assert.NotEmpty(t, report.Queries[2].Error)

	assert.GreaterOrEqual(t, report.MAP, 0.0)
	assert.LessOrEqual(t, report.MAP, 1.0)
}
