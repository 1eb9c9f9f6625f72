package preparer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/krishseta/game-recommender/internal/catalog"
	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/features"
	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/quality"
	"github.com/krishseta/game-recommender/internal/storage"
	"github.com/krishseta/game-recommender/pkg/types"
)

var (
	// ErrPrepareInProgress is returned when another preparation holds the lock.
	ErrPrepareInProgress = errors.New("preparation already in progress")

	// ErrEmptyCatalog is returned when no source row survives loading.
	ErrEmptyCatalog = errors.New("no valid games in source")
)

// Preparer coordinates the offline pipeline:
// load -> quality -> text features -> embed -> index -> persist
type Preparer struct {
	storage  storage.Storage
	embedder embedder.Embedder
	build    index.Builder
	lock     PrepareLock
}

// Config contains configuration for a preparation run
type Config struct {
	Workers    int     // Concurrent embedding batches (default: runtime.NumCPU())
	BatchSize  int     // Texts per embedding call (default: embedder.DefaultBatchSize)
	MaxTokens  int     // Description token bound (default: features.DefaultMaxTokens)
	Percentile float64 // Vote-count percentile for m (default: quality.DefaultPercentile)
	Keep       int     // Snapshots to retain after success; 0 keeps all
	Reuse      bool    // Reuse stored vectors for unchanged text features
}

// Statistics contains statistics about a preparation run
type Statistics struct {
	SnapshotID    string
	Source        string
	Rows          int
	Loaded        int
	Dropped       int
	Embedded      int
	Reused        int
	Batches       int
	Pruned        int
	Quality       quality.Stats
	Dimension     int
	Duration      time.Duration
	ErrorMessages []string
}

// DefaultConfig returns the configuration used when Prepare gets nil.
func DefaultConfig() *Config {
	return &Config{
		Workers:    runtime.NumCPU(),
		BatchSize:  embedder.DefaultBatchSize,
		MaxTokens:  features.DefaultMaxTokens,
		Percentile: quality.DefaultPercentile,
		Reuse:      true,
	}
}

// New creates a new Preparer instance. A nil builder selects the flat index.
func New(st storage.Storage, emb embedder.Embedder, build index.Builder) *Preparer {
	if build == nil {
		build = index.FlatBuilder()
	}
	return &Preparer{storage: st, embedder: emb, build: build}
}

// Prepare builds and persists a snapshot from a catalog CSV file.
func (p *Preparer) Prepare(ctx context.Context, csvPath string, config *Config) (*Statistics, error) {
	if !p.lock.TryAcquire() {
		return nil, ErrPrepareInProgress
	}
	defer p.lock.Release()

	startTime := time.Now()
	games, loadStats, err := catalog.LoadFile(ctx, csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	logging.Info().
		Str("source", csvPath).
		Int("rows", loadStats.Rows).
		Int("loaded", loadStats.Loaded).
		Int("missing_fields", loadStats.MissingFields).
		Int("malformed", loadStats.Malformed).
		Int("duplicates", loadStats.Duplicates).
		Msg("catalog loaded")

	stats, err := p.prepareGames(ctx, csvPath, games, config)
	if err != nil {
		return nil, err
	}
	stats.Rows = loadStats.Rows
	stats.Dropped += loadStats.Dropped()
	stats.Duration = time.Since(startTime)
	return stats, nil
}

// PrepareGames builds and persists a snapshot from already loaded games.
// source is recorded as the snapshot's origin.
func (p *Preparer) PrepareGames(ctx context.Context, source string, games []*types.Game, config *Config) (*Statistics, error) {
	if !p.lock.TryAcquire() {
		return nil, ErrPrepareInProgress
	}
	defer p.lock.Release()

	startTime := time.Now()
	stats, err := p.prepareGames(ctx, source, games, config)
	if err != nil {
		return nil, err
	}
	stats.Rows = len(games)
	stats.Duration = time.Since(startTime)
	return stats, nil
}

func (p *Preparer) prepareGames(ctx context.Context, source string, games []*types.Game, config *Config) (*Statistics, error) {
	config = withDefaults(config)
	stats := &Statistics{
		Source:        source,
		Dimension:     p.embedder.Dimension(),
		ErrorMessages: make([]string, 0),
	}

	games = dropInvalid(games, stats)
	if len(games) == 0 {
		return nil, ErrEmptyCatalog
	}

	stats.Quality = quality.Apply(games, config.Percentile)
	features.NewBuilder(p.embedder, config.MaxTokens).Apply(games)
	stats.Loaded = len(games)

	vectors, err := p.embedGames(ctx, games, config, stats)
	if err != nil {
		return nil, fmt.Errorf("failed to embed catalog: %w", err)
	}

	entries := make([]index.Entry, len(games))
	records := make([]storage.EmbeddingRecord, len(games))
	for i, g := range games {
		entries[i] = index.Entry{ID: g.ID, Vector: vectors[i]}
		records[i] = storage.EmbeddingRecord{GameID: g.ID, Vector: vectors[i]}
	}

	// Build once to validate dimension and norms before anything is written.
	if _, err := p.build(stats.Dimension, entries); err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	snap := &storage.Snapshot{
		ID:         uuid.NewString(),
		BuiltAt:    time.Now().UTC(),
		SourcePath: source,
		Provider:   p.embedder.Provider(),
		Model:      p.embedder.Model(),
		Dimension:  stats.Dimension,
		GameCount:  len(games),
		Quality:    stats.Quality,
	}
	if err := p.persist(ctx, snap, games, records); err != nil {
		return nil, err
	}
	stats.SnapshotID = snap.ID

	if config.Keep > 0 {
		pruned, err := p.storage.PruneSnapshots(ctx, config.Keep)
		if err != nil {
			// The new snapshot is committed; pruning can be retried later.
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("prune: %v", err))
		}
		stats.Pruned = pruned
	}

	logging.Info().
		Str("snapshot_id", snap.ID).
		Int("games", len(games)).
		Int("embedded", stats.Embedded).
		Int("reused", stats.Reused).
		Float64("m", stats.Quality.MinVotes).
		Float64("c", stats.Quality.MeanRatio).
		Msg("snapshot prepared")

	return stats, nil
}

// persist writes the snapshot in one transaction so readers never see a
// partial build.
func (p *Preparer) persist(ctx context.Context, snap *storage.Snapshot, games []*types.Game, records []storage.EmbeddingRecord) error {
	tx, err := p.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.CreateSnapshot(ctx, snap); err != nil {
		return err
	}
	if err := tx.InsertGames(ctx, snap.ID, games); err != nil {
		return err
	}
	if err := tx.InsertEmbeddings(ctx, snap.ID, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// embedGames returns one vector per game, in order. Vectors stored for an
// identical text feature under the same model are reused.
func (p *Preparer) embedGames(ctx context.Context, games []*types.Game, config *Config, stats *Statistics) ([][]float32, error) {
	vectors := make([][]float32, len(games))
	pending := make([]int, 0, len(games))

	var reusable map[[32]byte][]float32
	if config.Reuse {
		var err error
		reusable, err = p.storage.ReusableEmbeddings(ctx, p.embedder.Provider(), p.embedder.Model(), stats.Dimension)
		if err != nil {
			logging.Warn().Err(err).Msg("embedding reuse disabled")
			reusable = nil
		}
	}

	for i, g := range games {
		if vec, ok := reusable[g.FeatureHash()]; ok {
			vectors[i] = vec
			stats.Reused++
			continue
		}
		pending = append(pending, i)
	}

	// Create worker pool with semaphore
	semaphore := make(chan struct{}, config.Workers)
	var embedded, batches int32

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(pending); start += config.BatchSize {
		end := start + config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			texts := make([]string, len(batch))
			for j, gi := range batch {
				texts[j] = games[gi].TextFeature
			}
			resp, err := p.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return err
			}
			if len(resp.Embeddings) != len(batch) {
				return fmt.Errorf("provider returned %d embeddings for %d texts", len(resp.Embeddings), len(batch))
			}
			for j, gi := range batch {
				vectors[gi] = resp.Embeddings[j].Vector
			}

			n := atomic.AddInt32(&embedded, int32(len(batch)))
			atomic.AddInt32(&batches, 1)
			logging.Debug().Int32("embedded", n).Int("pending", len(pending)).Msg("embedding progress")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Embedded = int(embedded)
	stats.Batches = int(batches)
	return vectors, nil
}

// dropInvalid removes games that fail validation. Loading from CSV already
// filters these; callers handing in games directly get the same guarantee.
func dropInvalid(games []*types.Game, stats *Statistics) []*types.Game {
	seen := make(map[int64]struct{}, len(games))
	kept := make([]*types.Game, 0, len(games))
	for _, g := range games {
		if g == nil {
			stats.Dropped++
			continue
		}
		if err := g.Validate(); err != nil {
			stats.Dropped++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("game %d: %v", g.ID, err))
			continue
		}
		if _, dup := seen[g.ID]; dup {
			stats.Dropped++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("game %d: duplicate id", g.ID))
			continue
		}
		seen[g.ID] = struct{}{}
		kept = append(kept, g)
	}
	return kept
}

func withDefaults(config *Config) *Config {
	def := DefaultConfig()
	if config == nil {
		return def
	}
	c := *config
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchSize > embedder.MaxBatchSize {
		c.BatchSize = embedder.MaxBatchSize
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.Percentile <= 0 || c.Percentile > 1 {
		c.Percentile = def.Percentile
	}
	return &c
}
