// Package storage provides SQLite-based persistence for prepared catalog
// snapshots.
//
// A snapshot is written once by the preparation pipeline and never modified
// afterwards. It holds:
//   - snapshot metadata (provider, model, dimension, quality constants)
//   - every retained game with its derived quality and text feature
//   - one unit-normalized embedding per game
//
// # Database Schema
//
// Tables:
//   - snapshots: one row per build, newest first by built_at
//   - games: catalog rows keyed by (snapshot_id, game_id)
//   - embeddings: little-endian float32 blobs keyed like games
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.gamerec/gamerec.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	_ = tx.CreateSnapshot(ctx, snap)
//	_ = tx.InsertGames(ctx, snap.ID, games)
//	_ = tx.InsertEmbeddings(ctx, snap.ID, records)
//	return tx.Commit()
//
// Readers only ever see committed snapshots, so a half-written build is
// never served.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and needs no C compiler. The
// sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
package storage
