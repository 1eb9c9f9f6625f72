// Package ranking implements the hybrid recommendation engine.
//
// A request is embedded once, the vector index returns the nearest
// candidates, and each surviving candidate receives
//
//	final = alpha*semantic + (1-alpha)*quality
//
// where semantic is the cosine similarity clamped to [0,1] and quality is
// the game's precomputed, catalog-wide quality score. alpha=1 ranks purely
// by relevance and alpha=0 purely by quality, ignoring the query.
//
// Results are totally ordered: final score descending, then quality
// descending, then game id ascending. Identical requests against the same
// snapshot return identical sequences, which is what makes the response
// cache safe.
//
// Only a blank query is an error. Stale index ids, filters that reject
// every candidate and short candidate lists all yield smaller (possibly
// empty) results.
package ranking
