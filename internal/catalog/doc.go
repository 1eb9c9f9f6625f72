// Package catalog loads game records and serves them from memory.
//
// Load reads the store export CSV (appid, name, detailed_description, tags,
// genres, price, platform flags, vote counts, ...). Tags arrive as a
// stringified mapping of tag name to vote count and genres as a stringified
// list; ParseTags and ParseGenres recover the names in source order. Rows
// missing a name or description never enter the catalog.
//
// Store is the read side: O(1) lookup by ID, predicate filtering, and the
// sorted list of distinct genres.
package catalog
