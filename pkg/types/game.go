package types

import (
	"crypto/sha256"
	"math"
	"strings"
	"time"
)

// UnknownGenre is the primary genre of a game without genres.
const UnknownGenre = "Unknown"

// Platforms lists the operating systems a game supports.
type Platforms struct {
	Windows bool `json:"windows"`
	Mac     bool `json:"mac"`
	Linux   bool `json:"linux"`
}

// Game is an immutable catalog record. Quality and TextFeature are derived
// once during preparation and never change afterwards.
type Game struct {
	// Identification
	ID   int64
	Name string

	// Content
	Description      string
	ShortDescription string
	Genres           []string // ordered as in the source
	Tags             []string // ordered as in the source
	ImageRef         string

	// Commerce
	Price       float64
	Platforms   Platforms
	ReleaseDate time.Time // zero when unknown

	// Votes
	Positive int64
	Negative int64

	// Derived
	Quality     float64
	TextFeature string
}

// Votes returns the total vote count.
func (g *Game) Votes() int64 {
	return g.Positive + g.Negative
}

// PositiveRatio returns positive / votes, or 0 when there are no votes.
func (g *Game) PositiveRatio() float64 {
	v := g.Votes()
	if v == 0 {
		return 0
	}
	return float64(g.Positive) / float64(v)
}

// PrimaryGenre returns the first genre, or UnknownGenre.
func (g *Game) PrimaryGenre() string {
	if len(g.Genres) == 0 {
		return UnknownGenre
	}
	return g.Genres[0]
}

// HasAnyGenre reports whether the game carries at least one of genres.
// Comparison is case-insensitive.
func (g *Game) HasAnyGenre(genres []string) bool {
	for _, want := range genres {
		for _, have := range g.Genres {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// FeatureHash identifies the embedded text. Two games with the same hash
// embed to the same vector under the same model.
func (g *Game) FeatureHash() [32]byte {
	return sha256.Sum256([]byte(g.TextFeature))
}

// ReleaseDateString formats the release date as YYYY-MM-DD, or "" when
// unknown.
func (g *Game) ReleaseDateString() string {
	if g.ReleaseDate.IsZero() {
		return ""
	}
	return g.ReleaseDate.Format(time.DateOnly)
}

// Validate checks the source-level invariants of a game record.
func (g *Game) Validate() error {
	if g.ID <= 0 {
		return ErrInvalidGameID
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(g.Description) == "" {
		return ErrMissingDesc
	}
	if math.IsNaN(g.Price) || math.IsInf(g.Price, 0) {
		return ErrInvalidPrice
	}
	if g.Price < 0 {
		return ErrNegativePrice
	}
	if g.Positive < 0 || g.Negative < 0 {
		return ErrNegativeVotes
	}
	if g.Quality < 0 || g.Quality > 1 {
		return ErrInvalidQuality
	}
	return nil
}
