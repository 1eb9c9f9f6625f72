package storage

import (
	"context"
	"time"

	"github.com/krishseta/game-recommender/internal/quality"
	"github.com/krishseta/game-recommender/pkg/types"
)

// Storage persists prepared catalog snapshots: the games with their derived
// fields, one embedding per game, and the metadata needed to rebuild the
// vector index at serving start.
type Storage interface {
	// Snapshot operations
	CreateSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
	ListSnapshots(ctx context.Context) ([]*Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	PruneSnapshots(ctx context.Context, keep int) (deleted int, err error)

	// Game operations
	InsertGames(ctx context.Context, snapshotID string, games []*types.Game) error
	LoadGames(ctx context.Context, snapshotID string) ([]*types.Game, error)

	// Embedding operations
	InsertEmbeddings(ctx context.Context, snapshotID string, records []EmbeddingRecord) error
	LoadEmbeddings(ctx context.Context, snapshotID string) ([]EmbeddingRecord, error)
	ReusableEmbeddings(ctx context.Context, provider, model string, dimension int) (map[[32]byte][]float32, error)

	// Status operations
	Health(ctx context.Context) (*HealthStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a storage transaction.
type Tx interface {
	Storage
	Commit() error
	Rollback() error
}

// Snapshot describes one prepared, immutable catalog build.
type Snapshot struct {
	ID         string
	BuiltAt    time.Time
	SourcePath string
	Provider   string
	Model      string
	Dimension  int
	GameCount  int
	Quality    quality.Stats
}

// EmbeddingRecord is the stored vector of one game.
type EmbeddingRecord struct {
	GameID int64
	Vector []float32
}

// HealthStatus represents database health
type HealthStatus struct {
	DatabaseAccessible bool
	SchemaVersion      string
	SnapshotCount      int
	LatestSnapshotID   string
	LatestBuiltAt      time.Time
}
