package ranking

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/krishseta/game-recommender/internal/metrics"
	"github.com/krishseta/game-recommender/pkg/types"
)

// checkCache looks up a cached response. Expired entries are removed.
func (e *Engine) checkCache(key [32]byte) *Response {
	if e.cache == nil {
		return nil
	}
	now := time.Now()

	e.cacheMu.RLock()
	entry, found := e.cache.Get(key)
	if !found {
		e.cacheMu.RUnlock()
		metrics.RecordCache(false)
		return nil
	}

	if now.After(entry.expiresAt) {
		e.cacheMu.RUnlock()

		e.cacheMu.Lock()
		e.cache.Remove(key)
		e.cacheMu.Unlock()
		metrics.RecordCache(false)
		return nil
	}

	response := copyResponse(entry.response)
	e.cacheMu.RUnlock()

	metrics.RecordCache(true)
	return response
}

// storeInCache saves a copy of response
func (e *Engine) storeInCache(key [32]byte, response *Response) {
	if e.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(e.cfg.CacheTTL),
	}

	e.cacheMu.Lock()
	e.cache.Add(key, entry)
	e.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Keys include the snapshot id,
// so this only frees memory after a swap.
func (e *Engine) InvalidateCache() {
	if e.cache == nil {
		return
	}
	e.cacheMu.Lock()
	e.cache.Purge()
	e.cacheMu.Unlock()
}

// copyResponse copies the result slice. Games are shared: catalog entries
// are immutable.
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Games = make([]types.ScoredGame, len(src.Games))
	copy(dst.Games, src.Games)
	return &dst
}

// cacheKey hashes everything that determines a response. Free-form strings
// are length-prefixed so no choice of separators inside them can collide.
func cacheKey(snapshotID, query string, filters *types.Filters, alpha float64, topN int) [32]byte {
	var data strings.Builder
	writeString(&data, snapshotID)
	writeString(&data, query)
	fmt.Fprintf(&data, "%g|%d", alpha, topN)

	if !filters.IsEmpty() {
		data.WriteString("|filters:")
		writeFloat(&data, filters.MaxPrice)
		writeFloat(&data, filters.MinPrice)
		writeFloat(&data, filters.MinQuality)
		writeBool(&data, filters.Windows)
		writeBool(&data, filters.Mac)
		writeBool(&data, filters.Linux)
		fmt.Fprintf(&data, "%d|", len(filters.Genres))
		for _, g := range filters.Genres {
			writeString(&data, strings.ToLower(g))
		}
	}

	return sha256.Sum256([]byte(data.String()))
}

func writeString(b *strings.Builder, s string) {
	fmt.Fprintf(b, "%d:%s|", len(s), s)
}

func writeFloat(b *strings.Builder, f *float64) {
	if f == nil {
		b.WriteString("-|")
		return
	}
	fmt.Fprintf(b, "%g|", *f)
}

func writeBool(b *strings.Builder, v *bool) {
	// false and nil restrict nothing, so they share a key.
	if v != nil && *v {
		b.WriteString("1|")
		return
	}
	b.WriteString("0|")
}
