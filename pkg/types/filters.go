package types

// Filters restricts recommendations. Every field is optional; a nil field
// does not restrict. Set fields combine with logical AND.
//
// Platform flags only restrict when true: Windows=false means "don't care",
// not "must not run on Windows".
type Filters struct {
	MaxPrice   *float64 `json:"max_price,omitempty"`
	MinPrice   *float64 `json:"min_price,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	Windows    *bool    `json:"windows,omitempty"`
	Mac        *bool    `json:"mac,omitempty"`
	Linux      *bool    `json:"linux,omitempty"`
	MinQuality *float64 `json:"min_quality,omitempty"`
}

// Matches reports whether g passes every set condition.
func (f *Filters) Matches(g *Game) bool {
	if f == nil {
		return true
	}
	if f.MaxPrice != nil && g.Price > *f.MaxPrice {
		return false
	}
	if f.MinPrice != nil && g.Price < *f.MinPrice {
		return false
	}
	if len(f.Genres) > 0 && !g.HasAnyGenre(f.Genres) {
		return false
	}
	if isSet(f.Windows) && !g.Platforms.Windows {
		return false
	}
	if isSet(f.Mac) && !g.Platforms.Mac {
		return false
	}
	if isSet(f.Linux) && !g.Platforms.Linux {
		return false
	}
	if f.MinQuality != nil && g.Quality < *f.MinQuality {
		return false
	}
	return true
}

// IsEmpty reports whether no condition is set.
func (f *Filters) IsEmpty() bool {
	return f == nil || (f.MaxPrice == nil && f.MinPrice == nil && len(f.Genres) == 0 &&
		!isSet(f.Windows) && !isSet(f.Mac) && !isSet(f.Linux) && f.MinQuality == nil)
}

// Validate rejects contradictory bounds.
func (f *Filters) Validate() error {
	if f == nil {
		return nil
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		return ErrNegativePrice
	}
	if f.MinPrice != nil && *f.MinPrice < 0 {
		return ErrNegativePrice
	}
	if f.MaxPrice != nil && f.MinPrice != nil && *f.MinPrice > *f.MaxPrice {
		return ErrInvalidPriceRng
	}
	if f.MinQuality != nil && (*f.MinQuality < 0 || *f.MinQuality > 1) {
		return ErrInvalidQuality
	}
	return nil
}

func isSet(b *bool) bool {
	return b != nil && *b
}
