// Package quality derives a query-independent quality score per game from
// its vote counts using Bayesian shrinkage:
//
//	quality = v/(v+m)*R + m/(v+m)*C
//
// v is the game's vote count, R its positive ratio, m the vote-count
// percentile across the catalog and C the mean positive ratio of games with
// at least one vote. Games with few votes are pulled toward C.
package quality

import (
	"math"
	"sort"

	"github.com/krishseta/game-recommender/pkg/types"
)

// DefaultPercentile is the vote-count percentile used as m.
const DefaultPercentile = 0.90

// Stats holds the catalog-wide constants of one preparation run.
type Stats struct {
	Percentile float64 `json:"percentile"`
	MinVotes   float64 `json:"min_votes"`  // m
	MeanRatio  float64 `json:"mean_ratio"` // C
	Games      int     `json:"games"`
	Voted      int     `json:"voted"` // games with v > 0
}

// Compute derives m and C from the catalog. A percentile outside (0,1]
// selects DefaultPercentile.
func Compute(games []*types.Game, percentile float64) Stats {
	if percentile <= 0 || percentile > 1 {
		percentile = DefaultPercentile
	}

	stats := Stats{Percentile: percentile, Games: len(games)}
	if len(games) == 0 {
		return stats
	}

	votes := make([]float64, len(games))
	var ratioSum float64
	for i, g := range games {
		votes[i] = float64(g.Votes())
		if g.Votes() > 0 {
			ratioSum += g.PositiveRatio()
			stats.Voted++
		}
	}

	stats.MinVotes = Percentile(votes, percentile)
	if stats.Voted > 0 {
		stats.MeanRatio = ratioSum / float64(stats.Voted)
	}
	return stats
}

// Score returns the shrunk quality for one vote pair. Games without votes
// get exactly MeanRatio.
func (s Stats) Score(positive, negative int64) float64 {
	v := float64(positive + negative)
	if v <= 0 {
		return s.MeanRatio
	}

	r := float64(positive) / v
	m := s.MinVotes
	q := v/(v+m)*r + m/(v+m)*s.MeanRatio
	return clamp01(q)
}

// Apply computes Stats and writes the score into every game's Quality.
func Apply(games []*types.Game, percentile float64) Stats {
	stats := Compute(games, percentile)
	for _, g := range games {
		g.Quality = stats.Score(g.Positive, g.Negative)
	}
	return stats
}

// Percentile returns the q-quantile of values with linear interpolation
// between closest ranks. values is not modified.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
