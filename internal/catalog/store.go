package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/krishseta/game-recommender/pkg/types"
)

// ErrDuplicateID is returned when a store is built from games sharing an ID.
var ErrDuplicateID = errors.New("duplicate game id")

// Predicate selects games. *types.Filters satisfies it.
type Predicate interface {
	Matches(g *types.Game) bool
}

// Store is an immutable in-memory catalog keyed by game ID. It is safe for
// concurrent reads.
type Store struct {
	games  []*types.Game // source order
	byID   map[int64]*types.Game
	genres []string
}

// NewStore indexes games. The slice is copied; the games themselves are
// shared and must not be mutated afterwards.
func NewStore(games []*types.Game) (*Store, error) {
	s := &Store{
		games: make([]*types.Game, len(games)),
		byID:  make(map[int64]*types.Game, len(games)),
	}
	copy(s.games, games)

	genreSet := make(map[string]string)
	for _, g := range games {
		if _, dup := s.byID[g.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, g.ID)
		}
		s.byID[g.ID] = g
		for _, genre := range g.Genres {
			key := strings.ToLower(genre)
			if _, ok := genreSet[key]; !ok {
				genreSet[key] = genre
			}
		}
	}

	s.genres = make([]string, 0, len(genreSet))
	for _, genre := range genreSet {
		s.genres = append(s.genres, genre)
	}
	sort.Strings(s.genres)
	return s, nil
}

// Get returns the game with id.
func (s *Store) Get(id int64) (*types.Game, bool) {
	g, ok := s.byID[id]
	return g, ok
}

// Filter returns the games matching pred in catalog order. A nil predicate
// matches everything.
func (s *Store) Filter(pred Predicate) []*types.Game {
	out := make([]*types.Game, 0)
	for _, g := range s.games {
		if pred == nil || pred.Matches(g) {
			out = append(out, g)
		}
	}
	return out
}

// Games returns all games in catalog order. The slice is a copy.
func (s *Store) Games() []*types.Game {
	out := make([]*types.Game, len(s.games))
	copy(out, s.games)
	return out
}

// Genres returns the distinct genres, sorted. Genres differing only in case
// are reported once, with the spelling seen first.
func (s *Store) Genres() []string {
	out := make([]string, len(s.genres))
	copy(out, s.genres)
	return out
}

// Len returns the number of games.
func (s *Store) Len() int {
	return len(s.games)
}
