// Package snapshot holds the immutable serving state: one catalog store and
// the vector index built from the same preparation run, identified by a
// snapshot id and build time.
//
// A Holder publishes the current snapshot through an atomic pointer. A
// rebuild constructs a complete new Snapshot first and swaps it in with a
// single store, so no request ever sees a partially built index.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/krishseta/game-recommender/internal/catalog"
	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/quality"
	"github.com/krishseta/game-recommender/internal/storage"
	"github.com/krishseta/game-recommender/pkg/types"
)

var (
	// ErrIndexUnavailable is returned when no prepared snapshot can be served.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrSizeMismatch is returned when games and embeddings do not pair up.
	ErrSizeMismatch = errors.New("catalog and index sizes differ")

	// ErrRejected is returned when a watcher's Accept hook refuses a snapshot.
	ErrRejected = errors.New("snapshot rejected")
)

// Snapshot is a read-only pairing of catalog and index.
type Snapshot struct {
	ID        string
	BuiltAt   time.Time
	Provider  string
	Model     string
	Dimension int
	Quality   quality.Stats

	Catalog *catalog.Store
	Index   index.Index
}

// Meta describes where a snapshot came from.
type Meta struct {
	ID        string
	BuiltAt   time.Time
	Provider  string
	Model     string
	Dimension int
	Quality   quality.Stats
}

// New pairs games with their vectors and builds the index. Every game must
// have exactly one vector.
func New(meta Meta, games []*types.Game, records []storage.EmbeddingRecord, build index.Builder) (*Snapshot, error) {
	if build == nil {
		build = index.FlatBuilder()
	}

	store, err := catalog.NewStore(games)
	if err != nil {
		return nil, err
	}
	if len(records) != store.Len() {
		return nil, fmt.Errorf("%w: %d games, %d embeddings", ErrSizeMismatch, store.Len(), len(records))
	}

	entries := make([]index.Entry, len(records))
	for i, rec := range records {
		if _, ok := store.Get(rec.GameID); !ok {
			return nil, fmt.Errorf("%w: embedding for unknown game %d", ErrSizeMismatch, rec.GameID)
		}
		entries[i] = index.Entry{ID: rec.GameID, Vector: rec.Vector}
	}

	idx, err := build(meta.Dimension, entries)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	return &Snapshot{
		ID:        meta.ID,
		BuiltAt:   meta.BuiltAt,
		Provider:  meta.Provider,
		Model:     meta.Model,
		Dimension: meta.Dimension,
		Quality:   meta.Quality,
		Catalog:   store,
		Index:     idx,
	}, nil
}

// Load reads a persisted snapshot and rebuilds its index.
func Load(ctx context.Context, st storage.Storage, id string, build index.Builder) (*Snapshot, error) {
	meta, err := st.GetSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: snapshot %s not found", ErrIndexUnavailable, id)
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return loadWithMeta(ctx, st, meta, build)
}

// LoadLatest reads the newest persisted snapshot.
func LoadLatest(ctx context.Context, st storage.Storage, build index.Builder) (*Snapshot, error) {
	meta, err := st.LatestSnapshot(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no prepared snapshot, run prepare first", ErrIndexUnavailable)
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return loadWithMeta(ctx, st, meta, build)
}

func loadWithMeta(ctx context.Context, st storage.Storage, meta *storage.Snapshot, build index.Builder) (*Snapshot, error) {
	games, err := st.LoadGames(ctx, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load games: %w", ErrIndexUnavailable, err)
	}
	records, err := st.LoadEmbeddings(ctx, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load embeddings: %w", ErrIndexUnavailable, err)
	}

	snap, err := New(MetaFrom(meta), games, records, build)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return snap, nil
}

// MetaFrom converts stored snapshot metadata.
func MetaFrom(s *storage.Snapshot) Meta {
	return Meta{
		ID:        s.ID,
		BuiltAt:   s.BuiltAt,
		Provider:  s.Provider,
		Model:     s.Model,
		Dimension: s.Dimension,
		Quality:   s.Quality,
	}
}

// Holder publishes the current snapshot to concurrent readers.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder returns a holder serving snap. snap may be nil.
func NewHolder(snap *Snapshot) *Holder {
	h := &Holder{}
	if snap != nil {
		h.current.Store(snap)
	}
	return h
}

// Load returns the current snapshot or ErrIndexUnavailable.
func (h *Holder) Load() (*Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, ErrIndexUnavailable
	}
	return snap, nil
}

// Swap installs next and returns the previous snapshot. A nil next is
// ignored.
func (h *Holder) Swap(next *Snapshot) *Snapshot {
	if next == nil {
		return h.current.Load()
	}
	return h.current.Swap(next)
}
