// Package evaluation measures ranking quality without labelled data.
//
// For each query the primary genre of the top recommendation is taken as
// the intent. Among the DefaultPool nearest games, those sharing that genre
// count as relevant. Precision@k, recall@k and average precision are then
// computed for the ranked recommendations, plus the average precision of
// the raw semantic ranking over the pool.
package evaluation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/ranking"
	"github.com/krishseta/game-recommender/internal/snapshot"
	"github.com/krishseta/game-recommender/pkg/types"
)

const (
	DefaultK    = 10
	DefaultPool = 100
)

// Options tunes a run. Zero fields take defaults.
type Options struct {
	K       int
	Pool    int
	Alpha   *float64
	Workers int
}

// QueryResult holds the metrics of one query.
type QueryResult struct {
	Query                string  `json:"query"`
	TopGenre             string  `json:"top_genre,omitempty"`
	Returned             int     `json:"returned"`
	Relevant             int     `json:"relevant"`      // relevant among returned
	PoolRelevant         int     `json:"pool_relevant"` // relevant in the pool
	PrecisionAtK         float64 `json:"precision_at_k"`
	RecallAtK            float64 `json:"recall_at_k"`
	AveragePrecision     float64 `json:"average_precision"`
	PoolAveragePrecision float64 `json:"pool_average_precision"`
	Skipped              bool    `json:"skipped,omitempty"`
	Error                string  `json:"error,omitempty"`
}

// Report aggregates a run.
type Report struct {
	K                    int           `json:"k"`
	Pool                 int           `json:"pool"`
	Alpha                float64       `json:"alpha"`
	SnapshotID           string        `json:"snapshot_id"`
	Evaluated            int           `json:"evaluated"`
	Skipped              int           `json:"skipped"`
	MeanPrecision        float64       `json:"mean_precision_at_k"`
	MeanRecall           float64       `json:"mean_recall_at_k"`
	MAP                  float64       `json:"map"`
	MeanPoolAvgPrecision float64       `json:"mean_pool_average_precision"`
	Queries              []QueryResult `json:"queries"`
}

// Evaluator runs queries through a ranking engine.
type Evaluator struct {
	engine   *ranking.Engine
	embedder embedder.Embedder
}

// New creates an evaluator. emb must be the engine's embedder.
func New(engine *ranking.Engine, emb embedder.Embedder) *Evaluator {
	return &Evaluator{engine: engine, embedder: emb}
}

// Run evaluates every query. Queries that fail or return nothing are
// reported as skipped and excluded from the means.
func (e *Evaluator) Run(ctx context.Context, queries []string, opts Options) (*Report, error) {
	opts = withDefaults(opts)
	snap, err := e.engine.Snapshot()
	if err != nil {
		return nil, err
	}

	cfg := e.engine.Config()
	if opts.K > cfg.MaxTopN {
		opts.K = cfg.MaxTopN
	}
	alpha := ranking.DefaultAlpha
	if cfg.DefaultAlpha != nil {
		alpha = *cfg.DefaultAlpha
	}
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}

	results := make([]QueryResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, q := range queries {
		g.Go(func() error {
			res, err := e.evaluate(gctx, snap, q, alpha, opts)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				res = QueryResult{Query: q, Skipped: true, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{K: opts.K, Pool: opts.Pool, Alpha: alpha, SnapshotID: snap.ID, Queries: results}
	for _, r := range results {
		if r.Skipped {
			report.Skipped++
			continue
		}
		report.Evaluated++
		report.MeanPrecision += r.PrecisionAtK
		report.MeanRecall += r.RecallAtK
		report.MAP += r.AveragePrecision
		report.MeanPoolAvgPrecision += r.PoolAveragePrecision
	}
	if report.Evaluated > 0 {
		n := float64(report.Evaluated)
		report.MeanPrecision /= n
		report.MeanRecall /= n
		report.MAP /= n
		report.MeanPoolAvgPrecision /= n
	}
	return report, nil
}

func (e *Evaluator) evaluate(ctx context.Context, snap *snapshot.Snapshot, query string, alpha float64, opts Options) (QueryResult, error) {
	res := QueryResult{Query: query}

	resp, err := e.engine.Recommend(ctx, ranking.Request{Query: query, Alpha: &alpha, TopN: opts.K})
	if err != nil {
		return res, err
	}
	if len(resp.Games) == 0 {
		res.Skipped = true
		return res, nil
	}
	res.TopGenre = resp.Games[0].Game.PrimaryGenre()
	res.Returned = len(resp.Games)

	emb, err := e.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: strings.TrimSpace(query)})
	if err != nil {
		return res, fmt.Errorf("embed query: %w", err)
	}
	pool, err := snap.Index.Search(ctx, emb.Vector, opts.Pool)
	if err != nil {
		return res, fmt.Errorf("search pool: %w", err)
	}

	relevant := make(map[int64]bool, len(pool))
	poolRel := make([]bool, 0, len(pool))
	for _, c := range pool {
		g, ok := snap.Catalog.Get(c.ID)
		rel := ok && g.PrimaryGenre() == res.TopGenre
		if rel {
			relevant[c.ID] = true
		}
		poolRel = append(poolRel, rel)
	}
	res.PoolRelevant = len(relevant)

	ranked := relevance(resp.Games, relevant)
	for _, r := range ranked {
		if r {
			res.Relevant++
		}
	}
	res.PrecisionAtK = PrecisionAtK(ranked, opts.K)
	res.RecallAtK = RecallAtK(ranked, opts.K, res.PoolRelevant)
	res.AveragePrecision = AveragePrecision(ranked, opts.K, res.PoolRelevant)
	res.PoolAveragePrecision = AveragePrecision(poolRel, len(poolRel), res.PoolRelevant)
	return res, nil
}

func relevance(games []types.ScoredGame, relevant map[int64]bool) []bool {
	out := make([]bool, len(games))
	for i, g := range games {
		out[i] = relevant[g.Game.ID]
	}
	return out
}

// PrecisionAtK returns the fraction of relevant items among the first k
// returned. Fewer than k results divide by the number returned.
func PrecisionAtK(ranked []bool, k int) float64 {
	if k > len(ranked) {
		k = len(ranked)
	}
	if k <= 0 {
		return 0
	}
	hits := 0
	for _, r := range ranked[:k] {
		if r {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// RecallAtK returns the fraction of all relevant items found in the first k.
func RecallAtK(ranked []bool, k, totalRelevant int) float64 {
	if totalRelevant <= 0 {
		return 0
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	hits := 0
	for _, r := range ranked[:k] {
		if r {
			hits++
		}
	}
	return float64(hits) / float64(totalRelevant)
}

// AveragePrecision returns AP@k normalized by min(totalRelevant, k).
func AveragePrecision(ranked []bool, k, totalRelevant int) float64 {
	if k > len(ranked) {
		k = len(ranked)
	}
	denom := totalRelevant
	if k < denom {
		denom = k
	}
	if denom <= 0 {
		return 0
	}
	var sum float64
	hits := 0
	for i, r := range ranked[:k] {
		if r {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	return sum / float64(denom)
}

// LoadQueries reads one query per line. Blank lines and lines starting with
// '#' are ignored.
func LoadQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	return queries, scanner.Err()
}

func withDefaults(opts Options) Options {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.Pool <= 0 {
		opts.Pool = DefaultPool
	}
	if opts.Pool < opts.K {
		opts.Pool = opts.K
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return opts
}
