package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/metrics"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/pkg/types"
)

const (
	DefaultAlpha     = 0.5
	DefaultTopN      = 10
	DefaultMaxTopN   = 100
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 5 * time.Minute
)

var (
	// ErrEmptyQuery is returned when the query is blank after trimming.
	ErrEmptyQuery = types.ErrEmptyQuery

	// ErrInvalidRequest wraps every other request validation failure.
	ErrInvalidRequest = errors.New("invalid recommendation request")
)

// Request is one recommendation query.
type Request struct {
	Query   string
	Filters *types.Filters
	Alpha   *float64 // nil selects Config.DefaultAlpha
	TopN    int      // 0 selects Config.DefaultTopN
}

// Response contains ranked games and metadata
type Response struct {
	Games        []types.ScoredGame
	TotalResults int
	SnapshotID   string
	Candidates   int // returned by the index
	Stale        int // candidates missing from the catalog
	CacheHit     bool
	Duration     time.Duration
}

// Config tunes the engine. Zero fields take defaults.
type Config struct {
	CandidateK   int
	DefaultAlpha *float64 // nil selects DefaultAlpha
	DefaultTopN  int
	MaxTopN      int
	CacheSize    int           // < 0 disables the response cache
	CacheTTL     time.Duration // 0 selects DefaultCacheTTL
}

// cacheEntry represents a cached response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Engine ranks games for a query by fusing semantic similarity with quality.
// It reads the current snapshot on every request and holds no other state
// besides the response cache.
type Engine struct {
	holder   *snapshot.Holder
	embedder embedder.Embedder
	cfg      Config

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewEngine creates a ranking engine over the snapshots published by holder.
func NewEngine(holder *snapshot.Holder, emb embedder.Embedder, cfg Config) (*Engine, error) {
	if holder == nil {
		return nil, errors.New("snapshot holder is required")
	}
	if emb == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.CandidateK <= 0 {
		cfg.CandidateK = index.DefaultK
	}
	alpha := DefaultAlpha
	if cfg.DefaultAlpha != nil {
		alpha = *cfg.DefaultAlpha
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("default alpha %v outside [0,1]", alpha)
	}
	cfg.DefaultAlpha = &alpha
	if cfg.MaxTopN <= 0 {
		cfg.MaxTopN = DefaultMaxTopN
	}
	if cfg.DefaultTopN <= 0 {
		cfg.DefaultTopN = DefaultTopN
	}
	if cfg.DefaultTopN > cfg.MaxTopN {
		cfg.DefaultTopN = cfg.MaxTopN
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	e := &Engine{holder: holder, embedder: emb, cfg: cfg}
	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		cache, err := lru.New[[32]byte, *cacheEntry](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// Recommend runs the ranking pipeline:
//
//  1. reject a blank query before any model call
//  2. embed the query
//  3. retrieve CandidateK nearest games
//  4. hydrate from the catalog, dropping stale ids and filtered games
//  5. normalize: semantic = max(similarity, 0); quality = the stored global
//     score, never re-scaled against the candidate subset
//  6. fuse: final = alpha*semantic + (1-alpha)*quality
//  7. sort by final desc, quality desc, id asc and truncate to TopN
//
// Normalization happens before fusion and only per signal. Rescaling
// quality per request would let the filter set change how one game ranks
// against another for the same query, so quality stays global.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		metrics.RecordRecommend("empty_query", time.Since(startTime))
		return nil, ErrEmptyQuery
	}

	alpha, topN, err := e.resolve(req)
	if err != nil {
		metrics.RecordRecommend("invalid", time.Since(startTime))
		return nil, err
	}

	snap, err := e.holder.Load()
	if err != nil {
		metrics.RecordRecommend("error", time.Since(startTime))
		return nil, err
	}

	key := cacheKey(snap.ID, query, req.Filters, alpha, topN)
	if cached := e.checkCache(key); cached != nil {
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		metrics.RecordRecommend("cached", cached.Duration)
		return cached, nil
	}

	embedStart := time.Now()
	emb, err := e.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	metrics.RecordEmbed(e.embedder.Provider(), time.Since(embedStart), err)
	if err != nil {
		metrics.RecordRecommend("error", time.Since(startTime))
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// A zero vector has no direction, so nothing is semantically near it.
	if embedder.Norm(emb.Vector) == 0 {
		logging.Ctx(ctx).Warn().
			Str("provider", e.embedder.Provider()).
			Str("snapshot_id", snap.ID).
			Msg("query embedded to a zero vector, returning no results")
		metrics.RecordRecommend("zero_vector", time.Since(startTime))
		return &Response{
			Games:      []types.ScoredGame{},
			SnapshotID: snap.ID,
			Duration:   time.Since(startTime),
		}, nil
	}

	candidates, err := snap.Index.Search(ctx, emb.Vector, e.cfg.CandidateK)
	if err != nil {
		metrics.RecordRecommend("error", time.Since(startTime))
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	scored, stale := hydrate(snap, candidates, req.Filters, alpha)
	metrics.RecordCandidates(len(candidates), len(scored), stale)
	if stale > 0 {
		logging.Ctx(ctx).Debug().
			Int("stale", stale).
			Str("snapshot_id", snap.ID).
			Msg("dropped candidates missing from catalog")
	}

	rank(scored)
	if len(scored) > topN {
		scored = scored[:topN]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}

	response := &Response{
		Games:        scored,
		TotalResults: len(scored),
		SnapshotID:   snap.ID,
		Candidates:   len(candidates),
		Stale:        stale,
		Duration:     time.Since(startTime),
	}
	e.storeInCache(key, response)

	metrics.RecordRecommend("ok", response.Duration)
	return response, nil
}

// resolve applies defaults and validates alpha, top_n and filters.
func (e *Engine) resolve(req Request) (float64, int, error) {
	alpha := *e.cfg.DefaultAlpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return 0, 0, fmt.Errorf("%w: alpha must be in [0,1], got %v", ErrInvalidRequest, alpha)
	}

	topN := req.TopN
	if topN == 0 {
		topN = e.cfg.DefaultTopN
	}
	if topN < 1 || topN > e.cfg.MaxTopN {
		return 0, 0, fmt.Errorf("%w: top_n must be in [1,%d], got %d", ErrInvalidRequest, e.cfg.MaxTopN, topN)
	}

	if err := req.Filters.Validate(); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return alpha, topN, nil
}

// hydrate joins candidates against the catalog and scores the survivors.
// It returns the scored games and how many candidates were stale.
func hydrate(snap *snapshot.Snapshot, candidates []index.Result, filters *types.Filters, alpha float64) ([]types.ScoredGame, int) {
	scored := make([]types.ScoredGame, 0, len(candidates))
	stale := 0
	for _, c := range candidates {
		g, ok := snap.Catalog.Get(c.ID)
		if !ok {
			stale++
			continue
		}
		if !filters.Matches(g) {
			continue
		}
		semantic := clamp01(c.Similarity)
		quality := clamp01(g.Quality)
		scored = append(scored, types.ScoredGame{
			Game:          g,
			SemanticScore: semantic,
			QualityScore:  quality,
			FinalScore:    Fuse(alpha, semantic, quality),
		})
	}
	return scored, stale
}

// Fuse blends normalized semantic and quality scores.
func Fuse(alpha, semantic, quality float64) float64 {
	return clamp01(alpha*semantic + (1-alpha)*quality)
}

// rank sorts by final score desc, then quality desc, then id asc.
func rank(games []types.ScoredGame) {
	sort.SliceStable(games, func(i, j int) bool {
		a, b := games[i], games[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.Game.ID < b.Game.ID
	})
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// Genres lists the distinct genres of the served catalog.
func (e *Engine) Genres() ([]string, error) {
	snap, err := e.holder.Load()
	if err != nil {
		return nil, err
	}
	return snap.Catalog.Genres(), nil
}

// Snapshot returns the snapshot currently served.
func (e *Engine) Snapshot() (*snapshot.Snapshot, error) {
	return e.holder.Load()
}

// Config returns the effective engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}
