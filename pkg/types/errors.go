package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidGameID   = errors.New("game ID must be positive")
	ErrMissingName     = errors.New("game name is required")
	ErrMissingDesc     = errors.New("game description is required")
	ErrNegativePrice   = errors.New("price cannot be negative")
	ErrInvalidPrice    = errors.New("price must be a finite number")
	ErrNegativeVotes   = errors.New("vote counts cannot be negative")
	ErrInvalidQuality  = errors.New("quality score must be between 0 and 1")
	ErrInvalidScore    = errors.New("score must be between 0 and 1")
	ErrInvalidRank     = errors.New("rank must be >= 1")
	ErrInvalidPriceRng = errors.New("min_price cannot exceed max_price")
	ErrEmptyQuery      = errors.New("query cannot be empty")
)
