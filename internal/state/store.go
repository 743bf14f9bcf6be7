// Package state persists per-run file snapshots of the output tree and
// computes the diff between consecutive runs.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    taken_at TIMESTAMP NOT NULL,
    file_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_files (
    snapshot_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    mtime_unix_ns INTEGER NOT NULL,
    sha256 TEXT,
    PRIMARY KEY (snapshot_id, path),
    FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_snapshot_files ON snapshot_files(snapshot_id);
`

// DefaultPath returns the on-disk location of the incremental database
// under an output folder.
func DefaultPath(outputFolder string) string {
	return filepath.Join(outputFolder, "_state", "incremental.db")
}

// Store is the SQLite-backed snapshot archive. A snapshot is written only
// after a run completes cleanly, so the latest row always reflects the
// last-good tree.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path. Use
// ":memory:" in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	// SQLite only allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Latest loads the most recently saved snapshot, or nil when the store is
// empty (first run).
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, taken_at FROM snapshots ORDER BY id DESC LIMIT 1`)

	var (
		id      int64
		snap    Snapshot
		takenAt time.Time
	)
	if err := row.Scan(&id, &snap.RunID, &takenAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	snap.TakenAt = takenAt
	snap.Files = make(map[string]FileInfo)

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size_bytes, mtime_unix_ns, sha256 FROM snapshot_files WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshot files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			fi   FileInfo
			sum  sql.NullString
			path string
		)
		if err := rows.Scan(&path, &fi.Size, &fi.ModTimeNS, &sum); err != nil {
			return nil, fmt.Errorf("scan snapshot file: %w", err)
		}
		fi.SHA256 = sum.String
		snap.Files[path] = fi
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot files: %w", err)
	}
	return &snap, nil
}

// Save persists a snapshot atomically. The new rows become visible only on
// commit, so an interrupted save never clobbers the previous snapshot.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, taken_at, file_count) VALUES (?, ?, ?)`,
		snap.RunID, snap.TakenAt.UTC(), len(snap.Files))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_files (snapshot_id, path, size_bytes, mtime_unix_ns, sha256) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare file insert: %w", err)
	}
	defer stmt.Close()

	for path, fi := range snap.Files {
		var sum any
		if fi.SHA256 != "" {
			sum = fi.SHA256
		}
		if _, err := stmt.ExecContext(ctx, id, path, fi.Size, fi.ModTimeNS, sum); err != nil {
			return fmt.Errorf("insert snapshot file %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}
