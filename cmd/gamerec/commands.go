package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/krishseta/game-recommender/internal/api"
	"github.com/krishseta/game-recommender/internal/config"
	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/evaluation"
	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/mcp"
	"github.com/krishseta/game-recommender/internal/metrics"
	"github.com/krishseta/game-recommender/internal/preparer"
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/internal/storage"
	"github.com/krishseta/game-recommender/internal/supervisor"
)

var errUsage = errors.New("usage")

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	switch command {
	case "prepare":
		return runPrepare(ctx, cfg, args)
	case "serve":
		return runServe(ctx, cfg, args)
	case "mcp":
		return runMCP(ctx, cfg, args)
	case "evaluate":
		return runEvaluate(ctx, cfg, args)
	case "snapshots":
		return runSnapshots(ctx, cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "gamerec: unknown command %q\n", command)
		return errUsage
	}
}

func runPrepare(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	csvPath := fs.String("csv", cfg.Catalog.CSVPath, "catalog CSV file")
	keep := fs.Int("keep", cfg.Database.KeepSnapshots, "snapshots to retain (0 keeps all)")
	workers := fs.Int("workers", cfg.Embedding.Workers, "concurrent embedding batches")
	batchSize := fs.Int("batch-size", cfg.Embedding.BatchSize, "texts per embedding call")
	noReuse := fs.Bool("no-reuse", false, "re-embed every game instead of reusing stored vectors")
	_ = fs.Parse(args)

	if *csvPath == "" {
		return errors.New("prepare: --csv is required")
	}

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	prepCfg := prepareConfig(cfg)
	prepCfg.Keep = *keep
	prepCfg.Workers = *workers
	prepCfg.BatchSize = *batchSize
	prepCfg.Reuse = !*noReuse

	stats, err := preparer.New(st, emb, index.FlatBuilder()).Prepare(ctx, *csvPath, prepCfg)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	logging.Info().
		Str("snapshot_id", stats.SnapshotID).
		Int("loaded", stats.Loaded).
		Int("dropped", stats.Dropped).
		Int("embedded", stats.Embedded).
		Int("reused", stats.Reused).
		Dur("duration", stats.Duration).
		Msg("snapshot prepared")
	for _, msg := range stats.ErrorMessages {
		logging.Warn().Msg(msg)
	}
	return printJSON(stats)
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	watch := fs.Duration("watch-interval", cfg.Server.WatchInterval, "poll for newer snapshots (0 disables)")
	_ = fs.Parse(args)

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	holder, err := loadServing(ctx, st, emb, false)
	if err != nil {
		return err
	}
	engine, err := newEngine(holder, emb, cfg)
	if err != nil {
		return err
	}

	watcher := snapshot.NewWatcher(holder, st, index.FlatBuilder(), *watch)
	watcher.Accept = func(next *snapshot.Snapshot) error { return checkCompatible(next, emb) }
	watcher.OnSwap = onSwap(engine)

	handler := api.NewHandler(engine, version, cfg.Server.RequestTimeout)
	srv := &http.Server{
		Addr: *addr,
		Handler: api.NewRouter(handler, api.RouterConfig{
			CORSOrigins: cfg.Server.CORSOrigins,
			RateLimit:   cfg.Server.RateLimit,
			RateWindow:  cfg.Server.RateWindow,
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddDataService(watcher)
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, *addr, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", *addr).
		Str("provider", emb.Provider()).
		Dur("watch_interval", *watch).
		Msg("gamerec starting")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("gamerec stopped")
	return nil
}

func runMCP(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	_ = fs.Parse(args)

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	holder, err := loadServing(ctx, st, emb, true)
	if err != nil {
		return err
	}
	engine, err := newEngine(holder, emb, cfg)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(mcp.Deps{
		Engine:   engine,
		Storage:  st,
		Preparer: preparer.New(st, emb, index.FlatBuilder()),
		Holder:   holder,
		Build:    index.FlatBuilder(),
		Prepare:  prepareConfig(cfg),
		OnSwap:   onSwap(engine),
	}, version)
	if err != nil {
		return err
	}

	logging.Info().Str("version", version).Msg("MCP server ready, listening on stdio")
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	logging.Info().Msg("MCP server stopped")
	return nil
}

func runEvaluate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	queriesPath := fs.String("queries", "", "file with one query per line")
	k := fs.Int("k", evaluation.DefaultK, "cutoff for precision and recall")
	pool := fs.Int("pool", evaluation.DefaultPool, "candidate pool used as the relevance universe")
	alpha := fs.Float64("alpha", -1, "ranking weight; negative uses the configured default")
	_ = fs.Parse(args)

	if *queriesPath == "" {
		return errors.New("evaluate: --queries is required")
	}
	f, err := os.Open(*queriesPath)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	queries, err := evaluation.LoadQueries(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	snap, err := snapshot.LoadLatest(ctx, st, index.FlatBuilder())
	if err != nil {
		return err
	}
	if err := checkCompatible(snap, emb); err != nil {
		return err
	}

	// Every query is distinct, so the response cache stays off.
	rankCfg := cfg.Ranking
	rankCfg.CacheSize = -1
	engine, err := newEngine(snapshot.NewHolder(snap), emb, &config.Config{Ranking: rankCfg})
	if err != nil {
		return err
	}

	opts := evaluation.Options{K: *k, Pool: *pool, Workers: cfg.Embedding.Workers}
	if *alpha >= 0 {
		opts.Alpha = alpha
	}
	report, err := evaluation.New(engine, emb).Run(ctx, queries, opts)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	logging.Info().
		Int("evaluated", report.Evaluated).
		Int("skipped", report.Skipped).
		Float64("precision_at_k", report.MeanPrecision).
		Float64("map", report.MAP).
		Msg("evaluation complete")
	return printJSON(report)
}

func runSnapshots(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	_ = fs.Parse(args)

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	snaps, err := st.ListSnapshots(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBUILT\tGAMES\tPROVIDER\tMODEL\tDIM\tSOURCE")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			s.ID, s.BuiltAt.Local().Format(time.DateTime), s.GameCount, s.Provider, s.Model, s.Dimension, s.SourcePath)
	}
	return w.Flush()
}

// Helpers

func openStorage(cfg *config.Config) (*storage.SQLiteStorage, error) {
	path, err := cfg.ResolvedDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}
	logging.Debug().Str("path", path).Str("driver", storage.DriverName).Msg("storage opened")
	return st, nil
}

func newEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	e := cfg.Embedding
	emb, err := embedder.New(embedder.Config{
		Provider:        e.Provider,
		APIKey:          e.APIKey,
		BaseURL:         e.BaseURL,
		Model:           e.Model,
		Dimension:       e.Dimension,
		CacheSize:       e.CacheSize,
		Timeout:         e.Timeout,
		BreakerFailures: e.BreakerFailures,
		BreakerTimeout:  e.BreakerTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return emb, nil
}

func newEngine(holder *snapshot.Holder, emb embedder.Embedder, cfg *config.Config) (*ranking.Engine, error) {
	r := cfg.Ranking
	alpha := r.DefaultAlpha
	return ranking.NewEngine(holder, emb, ranking.Config{
		CandidateK:   r.CandidateK,
		DefaultAlpha: &alpha,
		DefaultTopN:  r.DefaultTopN,
		MaxTopN:      r.MaxTopN,
		CacheSize:    r.CacheSize,
		CacheTTL:     r.CacheTTL,
	})
}

func prepareConfig(cfg *config.Config) *preparer.Config {
	return &preparer.Config{
		Workers:    cfg.Embedding.Workers,
		BatchSize:  cfg.Embedding.BatchSize,
		MaxTokens:  cfg.Catalog.MaxDescriptionTokens,
		Percentile: cfg.Catalog.QualityPercentile,
		Keep:       cfg.Database.KeepSnapshots,
		Reuse:      true,
	}
}

// loadServing returns a holder with the latest snapshot. With allowEmpty an
// empty database yields an empty holder instead of an error; a snapshot that
// exists but cannot be loaded is always an error.
func loadServing(ctx context.Context, st storage.Storage, emb embedder.Embedder, allowEmpty bool) (*snapshot.Holder, error) {
	snap, err := snapshot.LoadLatest(ctx, st, index.FlatBuilder())
	if err != nil {
		if allowEmpty {
			if _, lerr := st.LatestSnapshot(ctx); errors.Is(lerr, storage.ErrNotFound) {
				logging.Warn().Msg("no snapshot prepared yet, recommendations are unavailable until prepare_catalog runs")
				return snapshot.NewHolder(nil), nil
			}
		}
		return nil, err
	}
	if err := checkCompatible(snap, emb); err != nil {
		return nil, err
	}
	metrics.SetSnapshot(snap.Catalog.Len(), snap.BuiltAt)
	logging.Info().
		Str("snapshot_id", snap.ID).
		Int("items", snap.Catalog.Len()).
		Str("provider", snap.Provider).
		Msg("snapshot loaded")
	return snapshot.NewHolder(snap), nil
}

// checkCompatible rejects a snapshot whose vectors the embedder cannot query.
func checkCompatible(snap *snapshot.Snapshot, emb embedder.Embedder) error {
	if snap.Dimension != emb.Dimension() {
		return fmt.Errorf("snapshot %s has dimension %d but the %s embedder produces %d; re-run prepare",
			snap.ID, snap.Dimension, emb.Provider(), emb.Dimension())
	}
	if snap.Provider != emb.Provider() {
		logging.Warn().
			Str("snapshot_provider", snap.Provider).
			Str("embedder_provider", emb.Provider()).
			Msg("snapshot was embedded by a different provider")
	}
	return nil
}

func onSwap(engine *ranking.Engine) func(*snapshot.Snapshot) {
	return func(snap *snapshot.Snapshot) {
		engine.InvalidateCache()
		metrics.SetSnapshot(snap.Catalog.Len(), snap.BuiltAt)
		metrics.SnapshotSwaps.Inc()
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
