package types

// ScoredGame is one ranked recommendation.
type ScoredGame struct {
	Game *Game
	Rank int // 1-based position in the result

	SemanticScore float64 // clamped cosine similarity to the query
	QualityScore  float64 // the game's global quality score
	FinalScore    float64 // alpha*semantic + (1-alpha)*quality
}

// Validate checks that the result is well-formed.
func (sg *ScoredGame) Validate() error {
	if sg.Game == nil || sg.Game.ID <= 0 {
		return ErrInvalidGameID
	}
	if sg.Rank < 1 {
		return ErrInvalidRank
	}
	for _, s := range []float64{sg.SemanticScore, sg.QualityScore, sg.FinalScore} {
		if s < 0 || s > 1 {
			return ErrInvalidScore
		}
	}
	return nil
}
