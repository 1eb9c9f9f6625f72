package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/krishseta/game-recommender/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Snapshot operations

const snapshotColumns = `
	id, built_at, source_path, provider, model, dimension, game_count,
	quality_percentile, quality_min_votes, quality_mean_ratio, quality_voted
`

// createSnapshotWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createSnapshotWithQuerier(ctx context.Context, q querier, snap *Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("failed to create snapshot: empty id")
	}
	if snap.BuiltAt.IsZero() {
		snap.BuiltAt = time.Now().UTC()
	}
	query := `INSERT INTO snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		snap.ID, snap.BuiltAt.UnixNano(), snap.SourcePath, snap.Provider, snap.Model,
		snap.Dimension, snap.GameCount,
		snap.Quality.Percentile, snap.Quality.MinVotes, snap.Quality.MeanRatio, snap.Quality.Voted)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("snapshot %s: %w", snap.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateSnapshot(ctx context.Context, snap *Snapshot) error {
	return s.createSnapshotWithQuerier(ctx, s.querier(), snap)
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var builtAt int64
	err := row.Scan(
		&snap.ID, &builtAt, &snap.SourcePath, &snap.Provider, &snap.Model,
		&snap.Dimension, &snap.GameCount,
		&snap.Quality.Percentile, &snap.Quality.MinVotes, &snap.Quality.MeanRatio, &snap.Quality.Voted,
	)
	if err != nil {
		return nil, err
	}
	snap.BuiltAt = time.Unix(0, builtAt).UTC()
	snap.Quality.Games = snap.GameCount
	return &snap, nil
}

// getSnapshotWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getSnapshotWithQuerier(ctx context.Context, q querier, id string) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots WHERE id = ?`
	snap, err := scanSnapshot(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStorage) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	return s.getSnapshotWithQuerier(ctx, s.querier(), id)
}

// latestSnapshotWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) latestSnapshotWithQuerier(ctx context.Context, q querier) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY built_at DESC, id DESC LIMIT 1`
	snap, err := scanSnapshot(q.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStorage) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	return s.latestSnapshotWithQuerier(ctx, s.querier())
}

// listSnapshotsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listSnapshotsWithQuerier(ctx context.Context, q querier) ([]*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY built_at DESC, id DESC`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snaps := make([]*Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStorage) ListSnapshots(ctx context.Context) ([]*Snapshot, error) {
	return s.listSnapshotsWithQuerier(ctx, s.querier())
}

// deleteSnapshotWithQuerier removes a snapshot and everything it owns. Child
// rows are deleted explicitly so the result does not depend on the
// foreign_keys pragma of the connection.
func (s *SQLiteStorage) deleteSnapshotWithQuerier(ctx context.Context, q querier, id string) error {
	for _, query := range []string{
		`DELETE FROM embeddings WHERE snapshot_id = ?`,
		`DELETE FROM games WHERE snapshot_id = ?`,
	} {
		if _, err := q.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
		}
	}

	result, err := q.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteSnapshot(ctx context.Context, id string) error {
	return s.deleteSnapshotWithQuerier(ctx, s.querier(), id)
}

// pruneSnapshotsWithQuerier keeps the newest keep snapshots and deletes the
// rest. keep < 1 deletes nothing.
func (s *SQLiteStorage) pruneSnapshotsWithQuerier(ctx context.Context, q querier, keep int) (int, error) {
	if keep < 1 {
		return 0, nil
	}
	snaps, err := s.listSnapshotsWithQuerier(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(snaps) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, snap := range snaps[keep:] {
		if err := s.deleteSnapshotWithQuerier(ctx, q, snap.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *SQLiteStorage) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	return s.pruneSnapshotsWithQuerier(ctx, s.querier(), keep)
}

// Game operations

// insertGamesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertGamesWithQuerier(ctx context.Context, q querier, snapshotID string, games []*types.Game) error {
	if len(games) == 0 {
		return nil
	}

	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO games (
			snapshot_id, game_id, name, description, short_description, genres, tags,
			image_ref, price, windows, mac, linux, release_date, positive, negative,
			quality, text_feature, feature_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare game insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, g := range games {
		if err := ctx.Err(); err != nil {
			return err
		}
		genres, err := encodeStrings(g.Genres)
		if err != nil {
			return fmt.Errorf("game %d genres: %w", g.ID, err)
		}
		tags, err := encodeStrings(g.Tags)
		if err != nil {
			return fmt.Errorf("game %d tags: %w", g.ID, err)
		}
		hash := g.FeatureHash()

		var releaseDate sql.NullString
		if d := g.ReleaseDateString(); d != "" {
			releaseDate = sql.NullString{String: d, Valid: true}
		}

		_, err = stmt.ExecContext(ctx,
			snapshotID, g.ID, g.Name, g.Description, g.ShortDescription, genres, tags,
			g.ImageRef, g.Price, g.Platforms.Windows, g.Platforms.Mac, g.Platforms.Linux,
			releaseDate, g.Positive, g.Negative, g.Quality, g.TextFeature, hash[:])
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("game %d: %w", g.ID, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert game %d: %w", g.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) InsertGames(ctx context.Context, snapshotID string, games []*types.Game) error {
	return s.insertGamesWithQuerier(ctx, s.querier(), snapshotID, games)
}

// loadGamesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) loadGamesWithQuerier(ctx context.Context, q querier, snapshotID string) ([]*types.Game, error) {
	query := `
		SELECT game_id, name, description, short_description, genres, tags,
		       image_ref, price, windows, mac, linux, release_date, positive, negative,
		       quality, text_feature
		FROM games
		WHERE snapshot_id = ?
		ORDER BY game_id
	`
	rows, err := q.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	games := make([]*types.Game, 0)
	for rows.Next() {
		var g types.Game
		var shortDesc, imageRef, releaseDate sql.NullString
		var genres, tags string

		err := rows.Scan(
			&g.ID, &g.Name, &g.Description, &shortDesc, &genres, &tags,
			&imageRef, &g.Price, &g.Platforms.Windows, &g.Platforms.Mac, &g.Platforms.Linux,
			&releaseDate, &g.Positive, &g.Negative, &g.Quality, &g.TextFeature,
		)
		if err != nil {
			return nil, err
		}

		g.ShortDescription = shortDesc.String
		g.ImageRef = imageRef.String
		if g.Genres, err = decodeStrings(genres); err != nil {
			return nil, fmt.Errorf("game %d genres: %w", g.ID, err)
		}
		if g.Tags, err = decodeStrings(tags); err != nil {
			return nil, fmt.Errorf("game %d tags: %w", g.ID, err)
		}
		if releaseDate.Valid && releaseDate.String != "" {
			if d, err := time.Parse(time.DateOnly, releaseDate.String); err == nil {
				g.ReleaseDate = d
			}
		}

		games = append(games, &g)
	}
	return games, rows.Err()
}

func (s *SQLiteStorage) LoadGames(ctx context.Context, snapshotID string) ([]*types.Game, error) {
	return s.loadGamesWithQuerier(ctx, s.querier(), snapshotID)
}

// Embedding operations

// insertEmbeddingsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertEmbeddingsWithQuerier(ctx context.Context, q querier, snapshotID string, records []EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := q.PrepareContext(ctx, `INSERT INTO embeddings (snapshot_id, game_id, vector) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(rec.Vector) == 0 {
			return fmt.Errorf("game %d: empty vector", rec.GameID)
		}
		if _, err := stmt.ExecContext(ctx, snapshotID, rec.GameID, serializeVector(rec.Vector)); err != nil {
			return fmt.Errorf("failed to insert embedding for game %d: %w", rec.GameID, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) InsertEmbeddings(ctx context.Context, snapshotID string, records []EmbeddingRecord) error {
	return s.insertEmbeddingsWithQuerier(ctx, s.querier(), snapshotID, records)
}

// loadEmbeddingsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) loadEmbeddingsWithQuerier(ctx context.Context, q querier, snapshotID string) ([]EmbeddingRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT game_id, vector FROM embeddings WHERE snapshot_id = ? ORDER BY game_id
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make([]EmbeddingRecord, 0)
	for rows.Next() {
		var rec EmbeddingRecord
		var blob []byte
		if err := rows.Scan(&rec.GameID, &blob); err != nil {
			return nil, err
		}
		if rec.Vector, err = deserializeVector(blob); err != nil {
			return nil, fmt.Errorf("game %d: %w", rec.GameID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) LoadEmbeddings(ctx context.Context, snapshotID string) ([]EmbeddingRecord, error) {
	return s.loadEmbeddingsWithQuerier(ctx, s.querier(), snapshotID)
}

// reusableEmbeddingsWithQuerier returns the vectors of the newest snapshot
// built with the same provider, model and dimension, keyed by the feature
// hash of the embedded text.
func (s *SQLiteStorage) reusableEmbeddingsWithQuerier(ctx context.Context, q querier, provider, model string, dimension int) (map[[32]byte][]float32, error) {
	var snapshotID string
	err := q.QueryRowContext(ctx, `
		SELECT id FROM snapshots
		WHERE provider = ? AND model = ? AND dimension = ?
		ORDER BY built_at DESC, id DESC
		LIMIT 1
	`, provider, model, dimension).Scan(&snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return map[[32]byte][]float32{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT g.feature_hash, e.vector
		FROM embeddings e
		JOIN games g ON g.snapshot_id = e.snapshot_id AND g.game_id = e.game_id
		WHERE e.snapshot_id = ?
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[[32]byte][]float32)
	for rows.Next() {
		var hash, blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return nil, err
		}
		if len(hash) != 32 {
			continue
		}
		vec, err := deserializeVector(blob)
		if err != nil || len(vec) != dimension {
			continue
		}
		var key [32]byte
		copy(key[:], hash)
		out[key] = vec
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ReusableEmbeddings(ctx context.Context, provider, model string, dimension int) (map[[32]byte][]float32, error) {
	return s.reusableEmbeddingsWithQuerier(ctx, s.querier(), provider, model, dimension)
}

// Status operations

// healthWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) healthWithQuerier(ctx context.Context, q querier) (*HealthStatus, error) {
	status := &HealthStatus{}

	var one int
	if err := q.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return status, fmt.Errorf("database not accessible: %w", err)
	}
	status.DatabaseAccessible = true

	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return status, err
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return status, err
		}
		if versionGreater(v, status.SchemaVersion) {
			status.SchemaVersion = v
		}
	}
	_ = rows.Close()

	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&status.SnapshotCount); err != nil {
		return status, err
	}

	latest, err := s.latestSnapshotWithQuerier(ctx, q)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return status, err
	default:
		status.LatestSnapshotID = latest.ID
		status.LatestBuiltAt = latest.BuiltAt
	}
	return status, nil
}

func (s *SQLiteStorage) Health(ctx context.Context) (*HealthStatus, error) {
	return s.healthWithQuerier(ctx, s.querier())
}

// helpers

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	values := make([]string, 0)
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// isConstraintError matches unique/primary key violations from both drivers.
func isConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// Transaction delegation

func (t *sqliteTx) CreateSnapshot(ctx context.Context, snap *Snapshot) error {
	return t.storage.createSnapshotWithQuerier(ctx, t.querier(), snap)
}

func (t *sqliteTx) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	return t.storage.getSnapshotWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	return t.storage.latestSnapshotWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) ListSnapshots(ctx context.Context) ([]*Snapshot, error) {
	return t.storage.listSnapshotsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteSnapshot(ctx context.Context, id string) error {
	return t.storage.deleteSnapshotWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	return t.storage.pruneSnapshotsWithQuerier(ctx, t.querier(), keep)
}

func (t *sqliteTx) InsertGames(ctx context.Context, snapshotID string, games []*types.Game) error {
	return t.storage.insertGamesWithQuerier(ctx, t.querier(), snapshotID, games)
}

func (t *sqliteTx) LoadGames(ctx context.Context, snapshotID string) ([]*types.Game, error) {
	return t.storage.loadGamesWithQuerier(ctx, t.querier(), snapshotID)
}

func (t *sqliteTx) InsertEmbeddings(ctx context.Context, snapshotID string, records []EmbeddingRecord) error {
	return t.storage.insertEmbeddingsWithQuerier(ctx, t.querier(), snapshotID, records)
}

func (t *sqliteTx) LoadEmbeddings(ctx context.Context, snapshotID string) ([]EmbeddingRecord, error) {
	return t.storage.loadEmbeddingsWithQuerier(ctx, t.querier(), snapshotID)
}

func (t *sqliteTx) ReusableEmbeddings(ctx context.Context, provider, model string, dimension int) (map[[32]byte][]float32, error) {
	return t.storage.reusableEmbeddingsWithQuerier(ctx, t.querier(), provider, model, dimension)
}

func (t *sqliteTx) Health(ctx context.Context) (*HealthStatus, error) {
	return t.storage.healthWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
