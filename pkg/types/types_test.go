package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func sampleGame() *Game {
	return &Game{
		ID:          1,
		Name:        "Stellar Drift",
		Description: "Survive in deep space.",
		Genres:      []string{"Action", "Indie"},
		Price:       14.99,
		Platforms:   Platforms{Windows: true, Linux: true},
		Positive:    80,
		Negative:    20,
		Quality:     0.7,
	}
}

func TestGame_Derived(t *testing.T) {
	g := sampleGame()
	assert.Equal(t, int64(100), g.Votes())
	assert.InDelta(t, 0.8, g.PositiveRatio(), 1e-9)
	assert.Equal(t, "Action", g.PrimaryGenre())
	assert.Equal(t, "", g.ReleaseDateString())

	g.ReleaseDate = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-01", g.ReleaseDateString())

	empty := &Game{}
	assert.Equal(t, 0.0, empty.PositiveRatio())
	assert.Equal(t, UnknownGenre, empty.PrimaryGenre())
}

func TestGame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *Game)
		wantErr error
	}{
		{name: "valid", mutate: func(*Game) {}},
		{name: "zero id", mutate: func(g *Game) { g.ID = 0 }, wantErr: ErrInvalidGameID},
		{name: "blank name", mutate: func(g *Game) { g.Name = "  " }, wantErr: ErrMissingName},
		{name: "blank description", mutate: func(g *Game) { g.Description = "" }, wantErr: ErrMissingDesc},
		{name: "negative price", mutate: func(g *Game) { g.Price = -1 }, wantErr: ErrNegativePrice},
		{name: "NaN price", mutate: func(g *Game) { g.Price = math.NaN() }, wantErr: ErrInvalidPrice},
		{name: "infinite price", mutate: func(g *Game) { g.Price = math.Inf(1) }, wantErr: ErrInvalidPrice},
		{name: "negative infinite price", mutate: func(g *Game) { g.Price = math.Inf(-1) }, wantErr: ErrInvalidPrice},
		{name: "negative votes", mutate: func(g *Game) { g.Negative = -1 }, wantErr: ErrNegativeVotes},
		{name: "quality above one", mutate: func(g *Game) { g.Quality = 1.2 }, wantErr: ErrInvalidQuality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := sampleGame()
			tt.mutate(g)
			err := g.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFilters_Matches(t *testing.T) {
	g := sampleGame()

	tests := []struct {
		name    string
		filters *Filters
		want    bool
	}{
		{name: "nil filters", filters: nil, want: true},
		{name: "empty filters", filters: &Filters{}, want: true},
		{name: "price under max", filters: &Filters{MaxPrice: ptr(15.0)}, want: true},
		{name: "price equal max", filters: &Filters{MaxPrice: ptr(14.99)}, want: true},
		{name: "price over max", filters: &Filters{MaxPrice: ptr(10.0)}, want: false},
		{name: "price under min", filters: &Filters{MinPrice: ptr(20.0)}, want: false},
		{name: "genre intersects", filters: &Filters{Genres: []string{"RPG", "indie"}}, want: true},
		{name: "genre disjoint", filters: &Filters{Genres: []string{"RPG"}}, want: false},
		{name: "windows required", filters: &Filters{Windows: ptr(true)}, want: true},
		{name: "mac required", filters: &Filters{Mac: ptr(true)}, want: false},
		{name: "mac false does not restrict", filters: &Filters{Mac: ptr(false)}, want: true},
		{name: "min quality met", filters: &Filters{MinQuality: ptr(0.7)}, want: true},
		{name: "min quality missed", filters: &Filters{MinQuality: ptr(0.71)}, want: false},
		{
			name:    "all conditions AND",
			filters: &Filters{MaxPrice: ptr(20.0), Genres: []string{"Action"}, Linux: ptr(true), Mac: ptr(true)},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Matches(g))
		})
	}
}

func TestFilters_ValidateAndEmpty(t *testing.T) {
	assert.True(t, (*Filters)(nil).IsEmpty())
	assert.True(t, (&Filters{Windows: ptr(false)}).IsEmpty())
	assert.False(t, (&Filters{Genres: []string{"RPG"}}).IsEmpty())

	assert.NoError(t, (*Filters)(nil).Validate())
	assert.ErrorIs(t, (&Filters{MaxPrice: ptr(-1.0)}).Validate(), ErrNegativePrice)
	assert.ErrorIs(t, (&Filters{MinPrice: ptr(10.0), MaxPrice: ptr(5.0)}).Validate(), ErrInvalidPriceRng)
	assert.ErrorIs(t, (&Filters{MinQuality: ptr(2.0)}).Validate(), ErrInvalidQuality)
}

func TestScoredGame_Validate(t *testing.T) {
	sg := &ScoredGame{Game: sampleGame(), Rank: 1, SemanticScore: 0.5, QualityScore: 0.7, FinalScore: 0.6}
	assert.NoError(t, sg.Validate())

	sg.Rank = 0
	assert.ErrorIs(t, sg.Validate(), ErrInvalidRank)

	sg.Rank = 1
	sg.FinalScore = 1.5
	assert.ErrorIs(t, sg.Validate(), ErrInvalidScore)

	assert.ErrorIs(t, (&ScoredGame{Rank: 1}).Validate(), ErrInvalidGameID)
}
