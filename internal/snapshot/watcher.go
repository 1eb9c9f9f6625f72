package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krishseta/game-recommender/internal/index"
	"github.com/krishseta/game-recommender/internal/logging"
	"github.com/krishseta/game-recommender/internal/storage"
)

// Watcher polls storage for a newer snapshot and swaps it into a Holder.
// It implements suture.Service.
type Watcher struct {
	holder   *Holder
	storage  storage.Storage
	build    index.Builder
	interval time.Duration

	// Accept, when set, vets a loaded snapshot before it is swapped in. A
	// refused snapshot is not retried until a newer one is stored.
	Accept func(*Snapshot) error

	// OnSwap, when set, is called after each successful swap.
	OnSwap func(*Snapshot)

	rejected string
}

// NewWatcher creates a watcher. An interval <= 0 disables polling; Serve
// then blocks until the context ends.
func NewWatcher(holder *Holder, st storage.Storage, build index.Builder, interval time.Duration) *Watcher {
	return &Watcher{holder: holder, storage: st, build: build, interval: interval}
}

// Serve polls until ctx is cancelled.
func (w *Watcher) Serve(ctx context.Context) error {
	if w.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// Keep serving the current snapshot.
				logging.Warn().Err(err).Msg("snapshot refresh failed")
			}
		}
	}
}

// Check swaps in the latest stored snapshot if its id differs from the one
// being served. It reports whether a swap happened. When Accept refuses the
// snapshot the holder is left untouched and the error wraps ErrRejected.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	latest, err := w.storage.LatestSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if cur, err := w.holder.Load(); err == nil && cur.ID == latest.ID {
		return false, nil
	}
	if latest.ID == w.rejected {
		return false, nil
	}

	next, err := loadWithMeta(ctx, w.storage, latest, w.build)
	if err != nil {
		return false, err
	}

	if w.Accept != nil {
		if err := w.Accept(next); err != nil {
			w.rejected = next.ID
			return false, fmt.Errorf("%w: %s: %w", ErrRejected, next.ID, err)
		}
	}

	prev := w.holder.Swap(next)
	ev := logging.Info().
		Str("snapshot_id", next.ID).
		Time("built_at", next.BuiltAt).
		Int("items", next.Catalog.Len())
	if prev != nil {
		ev = ev.Str("previous_id", prev.ID)
	}
	ev.Msg("snapshot swapped")

	if w.OnSwap != nil {
		w.OnSwap(next)
	}
	return true, nil
}

func (w *Watcher) String() string {
	return "snapshot-watcher"
}
