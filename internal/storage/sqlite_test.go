package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishseta/game-recommender/internal/quality"
	"github.com/krishseta/game-recommender/pkg/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testGames() []*types.Game {
	return []*types.Game{
		{
			ID:               10,
			Name:             "Star Hauler",
			Description:      "Haul cargo between stars.",
			ShortDescription: "Space trucking",
			Genres:           []string{"Simulation", "Indie"},
			Tags:             []string{"Space", "Trading"},
			ImageRef:         "https://cdn.example/10.jpg",
			Price:            14.99,
			Platforms:        types.Platforms{Windows: true, Linux: true},
			ReleaseDate:      time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC),
			Positive:         900,
			Negative:         100,
			Quality:          0.87,
			TextFeature:      "Star Hauler Space Trading Haul cargo between stars.",
		},
		{
			ID:          20,
			Name:        "Dungeon Deep",
			Description: "Crawl a dungeon.",
			Genres:      []string{},
			Tags:        nil,
			Quality:     0.5,
			TextFeature: "Dungeon Deep Crawl a dungeon.",
		},
	}
}

func testSnapshot(id string, builtAt time.Time) *Snapshot {
	return &Snapshot{
		ID:         id,
		BuiltAt:    builtAt,
		SourcePath: "games.csv",
		Provider:   "local",
		Model:      "hashed-bow-v1",
		Dimension:  3,
		GameCount:  2,
		Quality:    quality.Stats{Percentile: 0.9, MinVotes: 120, MeanRatio: 0.7, Voted: 1},
	}
}

func saveSnapshot(t *testing.T, s *SQLiteStorage, snap *Snapshot) {
	t.Helper()
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	require.NoError(t, tx.CreateSnapshot(ctx, snap))
	require.NoError(t, tx.InsertGames(ctx, snap.ID, testGames()))
	require.NoError(t, tx.InsertEmbeddings(ctx, snap.ID, []EmbeddingRecord{
		{GameID: 10, Vector: []float32{1, 0, 0}},
		{GameID: 20, Vector: []float32{0, 0.6, 0.8}},
	}))
	require.NoError(t, tx.Commit())
}

func TestNewSQLiteStorage_AppliesMigrations(t *testing.T) {
	s := newTestStorage(t)

	v, err := SchemaVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(context.Background(), s.db))
}

func TestRollbackMigration(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, s.db))
	v, err := SchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	require.NoError(t, ApplyMigrations(ctx, s.db))
	v, err = SchemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	built := time.Date(2024, 5, 6, 7, 8, 9, 123, time.UTC)
	saveSnapshot(t, s, testSnapshot("snap-a", built))

	snap, err := s.GetSnapshot(ctx, "snap-a")
	require.NoError(t, err)
	assert.Equal(t, built, snap.BuiltAt)
	assert.Equal(t, "local", snap.Provider)
	assert.Equal(t, 3, snap.Dimension)
	assert.InDelta(t, 120.0, snap.Quality.MinVotes, 1e-9)
	assert.InDelta(t, 0.7, snap.Quality.MeanRatio, 1e-9)
	assert.Equal(t, 2, snap.Quality.Games)

	games, err := s.LoadGames(ctx, "snap-a")
	require.NoError(t, err)
	require.Len(t, games, 2)

	g := games[0]
	assert.Equal(t, int64(10), g.ID)
	assert.Equal(t, []string{"Simulation", "Indie"}, g.Genres)
	assert.Equal(t, []string{"Space", "Trading"}, g.Tags)
	assert.Equal(t, "Space trucking", g.ShortDescription)
	assert.True(t, g.Platforms.Windows)
	assert.False(t, g.Platforms.Mac)
	assert.True(t, g.Platforms.Linux)
	assert.Equal(t, "2021-03-04", g.ReleaseDateString())
	assert.InDelta(t, 0.87, g.Quality, 1e-9)

	assert.Empty(t, games[1].Genres)
	assert.Empty(t, games[1].Tags)
	assert.True(t, games[1].ReleaseDate.IsZero())

	records, err := s.LoadEmbeddings(ctx, "snap-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []float32{0, 0.6, 0.8}, records[1].Vector)
}

func TestGetSnapshot_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetSnapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSnapshot_Duplicate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSnapshot(ctx, testSnapshot("dup", time.Now())))
	err := s.CreateSnapshot(ctx, testSnapshot("dup", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRollback_LeavesNothingVisible(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateSnapshot(ctx, testSnapshot("aborted", time.Now())))
	require.NoError(t, tx.InsertGames(ctx, "aborted", testGames()))
	require.NoError(t, tx.Rollback())

	snaps, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestLatestAndPrune(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"s1", "s2", "s3"} {
		saveSnapshot(t, s, testSnapshot(id, base.Add(time.Duration(i)*time.Hour)))
	}

	latest, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3", latest.ID)

	snaps, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "s3", snaps[0].ID)
	assert.Equal(t, "s1", snaps[2].ID)

	deleted, err := s.PruneSnapshots(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = s.PruneSnapshots(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	snaps, err = s.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "s3", snaps[0].ID)

	games, err := s.LoadGames(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestDeleteSnapshot(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	saveSnapshot(t, s, testSnapshot("gone", time.Now()))

	require.NoError(t, s.DeleteSnapshot(ctx, "gone"))
	assert.ErrorIs(t, s.DeleteSnapshot(ctx, "gone"), ErrNotFound)

	records, err := s.LoadEmbeddings(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReusableEmbeddings(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	saveSnapshot(t, s, testSnapshot("reuse", time.Now()))

	byHash, err := s.ReusableEmbeddings(ctx, "local", "hashed-bow-v1", 3)
	require.NoError(t, err)
	require.Len(t, byHash, 2)

	games := testGames()
	assert.Equal(t, []float32{1, 0, 0}, byHash[games[0].FeatureHash()])

	t.Run("other model", func(t *testing.T) {
		byHash, err := s.ReusableEmbeddings(ctx, "openai", "text-embedding-3-small", 3)
		require.NoError(t, err)
		assert.Empty(t, byHash)
	})

	t.Run("other dimension", func(t *testing.T) {
		byHash, err := s.ReusableEmbeddings(ctx, "local", "hashed-bow-v1", 384)
		require.NoError(t, err)
		assert.Empty(t, byHash)
	})
}

func TestHealth(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	h, err := s.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.DatabaseAccessible)
	assert.Equal(t, CurrentSchemaVersion, h.SchemaVersion)
	assert.Zero(t, h.SnapshotCount)
	assert.Empty(t, h.LatestSnapshotID)

	saveSnapshot(t, s, testSnapshot("h1", time.Now()))
	h, err = s.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.SnapshotCount)
	assert.Equal(t, "h1", h.LatestSnapshotID)
}

func TestNestedTxRejected(t *testing.T) {
	s := newTestStorage(t)
	tx, err := s.BeginTx(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(context.Background())
	assert.Error(t, err)
}

func TestVectorSerialization(t *testing.T) {
	in := []float32{0.25, -1.5, 3.125, 0}
	out, err := deserializeVector(serializeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = deserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
