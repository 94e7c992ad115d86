// Package persist checkpoints the live actor set to SQLite so a restarted
// server can reconstruct its registry. The spatial grid is never persisted;
// it is always rebuilt from scratch after a load.
package persist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"emberfall/server/internal/sim"
)

// Store wraps the SQLite checkpoint database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the checkpoint database at path. Use ":memory:"
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS checkpoint (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	tick INTEGER NOT NULL,
	world_kind TEXT NOT NULL,
	saved_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS checkpoint_actors (
	actor_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	x REAL NOT NULL,
	y REAL NOT NULL,
	health INTEGER NOT NULL,
	state TEXT NOT NULL,
	payload BLOB NOT NULL
);`)
	return err
}

// SaveCheckpoint replaces the stored checkpoint with the actors from the
// provided snapshot. Eliminated actors never appear in a snapshot, so only
// reconstructible states are written.
func (s *Store) SaveCheckpoint(ctx context.Context, snapshot sim.Snapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("persist: store is closed")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_actors`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO checkpoint (id, tick, world_kind) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET tick = excluded.tick, world_kind = excluded.world_kind, saved_at = CURRENT_TIMESTAMP`,
		snapshot.Tick, snapshot.WorldKind); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO checkpoint_actors (actor_id, kind, x, y, health, state, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, view := range snapshot.Actors {
		payload, err := msgpack.Marshal(view)
		if err != nil {
			return fmt.Errorf("encode actor %s: %w", view.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, view.ID, string(view.Kind), view.X, view.Y, view.Health, string(view.State), payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadCheckpoint reads the stored checkpoint. Returns sql.ErrNoRows when no
// checkpoint has ever been saved.
func (s *Store) LoadCheckpoint(ctx context.Context) (uint64, []sim.ActorView, error) {
	if s == nil || s.db == nil {
		return 0, nil, fmt.Errorf("persist: store is closed")
	}
	var tick uint64
	if err := s.db.QueryRowContext(ctx, `SELECT tick FROM checkpoint WHERE id = 1`).Scan(&tick); err != nil {
		return 0, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM checkpoint_actors ORDER BY actor_id`)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var views []sim.ActorView
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return 0, nil, err
		}
		var view sim.ActorView
		if err := msgpack.Unmarshal(payload, &view); err != nil {
			return 0, nil, fmt.Errorf("decode checkpoint actor: %w", err)
		}
		views = append(views, view)
	}
	return tick, views, rows.Err()
}
