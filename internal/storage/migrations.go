package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per prepared catalog build
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    built_at INTEGER NOT NULL,
    source_path TEXT NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    game_count INTEGER NOT NULL DEFAULT 0,
    quality_percentile REAL NOT NULL,
    quality_min_votes REAL NOT NULL,
    quality_mean_ratio REAL NOT NULL,
    quality_voted INTEGER NOT NULL DEFAULT 0
);

-- Games of a snapshot, with derived quality and text feature
CREATE TABLE IF NOT EXISTS games (
    snapshot_id TEXT NOT NULL,
    game_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    short_description TEXT,
    genres TEXT NOT NULL DEFAULT '[]',
    tags TEXT NOT NULL DEFAULT '[]',
    image_ref TEXT,
    price REAL NOT NULL DEFAULT 0,
    windows BOOLEAN NOT NULL DEFAULT 0,
    mac BOOLEAN NOT NULL DEFAULT 0,
    linux BOOLEAN NOT NULL DEFAULT 0,
    release_date TEXT,
    positive INTEGER NOT NULL DEFAULT 0,
    negative INTEGER NOT NULL DEFAULT 0,
    quality REAL NOT NULL,
    text_feature TEXT NOT NULL,
    feature_hash BLOB NOT NULL,
    PRIMARY KEY (snapshot_id, game_id),
    FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_games_feature_hash ON games(feature_hash);

-- One unit vector per game
CREATE TABLE IF NOT EXISTS embeddings (
    snapshot_id TEXT NOT NULL,
    game_id INTEGER NOT NULL,
    vector BLOB NOT NULL,
    PRIMARY KEY (snapshot_id, game_id),
    FOREIGN KEY (snapshot_id, game_id) REFERENCES games(snapshot_id, game_id) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS embeddings;
DROP TABLE IF EXISTS games;
DROP TABLE IF EXISTS snapshots;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
CREATE INDEX IF NOT EXISTS idx_snapshots_built_at ON snapshots(built_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_model ON snapshots(provider, model, dimension);
`

const migrationV11Down = `
DROP INDEX IF EXISTS idx_snapshots_model;
DROP INDEX IF EXISTS idx_snapshots_built_at;
`

// SchemaVersion returns the highest applied migration, or 0.0.0 on a fresh
// database.
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return errors.New("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		v, err := semver.NewVersion(AllMigrations[i].Version)
		if err == nil && v.Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	// The first migration drops schema_version itself.
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil && migration.Version != AllMigrations[0].Version {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}

	return nil
}

// versionGreater reports whether a is a higher semver than b. Unparseable
// versions never win; an empty b loses to any valid a.
func versionGreater(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	if b == "" {
		return true
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return true
	}
	return va.GreaterThan(vb)
}
