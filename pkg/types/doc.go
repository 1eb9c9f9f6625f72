// Package types provides the domain types shared by the game recommender.
//
// Game is the catalog record. It is created by the catalog loader, enriched
// once during preparation with a quality score and a text feature, and
// treated as read-only from then on:
//
//	g := &types.Game{ID: 620, Name: "Portal 2", Genres: []string{"Action", "Adventure"}}
//	g.PrimaryGenre() // "Action"
//
// Filters is the optional predicate of a recommendation request. Nil fields
// impose no restriction:
//
//	maxPrice := 20.0
//	f := &types.Filters{MaxPrice: &maxPrice, Genres: []string{"RPG"}}
//	f.Matches(g)
//
// ScoredGame carries one ranked result with its semantic, quality and final
// scores, all in [0,1].
package types
