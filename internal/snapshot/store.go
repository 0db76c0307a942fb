package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists snapshots in an SQLite database so runs can be restored
// across process restarts.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultStorePath returns the default location of the snapshot database.
func DefaultStorePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "weft", "snapshots.db")
}

// OpenStore opens (creating if necessary) the snapshot database at the
// given path. WAL mode is enabled for concurrent reads.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Snapshots},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Snapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	data BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_task_id ON snapshots(task_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
`

// Save writes a snapshot. The full snapshot is serialized as JSON; the id,
// task id, reason, and timestamp are denormalized into columns for listing.
func (s *Store) Save(snap *TaskSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.Exec(`
		INSERT OR REPLACE INTO snapshots (id, task_id, reason, created_at, data)
		VALUES (?, ?, ?, ?, ?)
	`, snap.ID, snap.TaskID, snap.Metadata.Reason, snap.Timestamp.UTC().Format(time.RFC3339), data)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Get loads a snapshot by id.
func (s *Store) Get(id string) (*TaskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	row := s.conn.QueryRow("SELECT data FROM snapshots WHERE id = ?", id)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("snapshot %s not found", id)
		}
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}

	var snap TaskSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// ListByTask loads all snapshots for a task, oldest first.
func (s *Store) ListByTask(taskID string) ([]*TaskSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT data FROM snapshots WHERE task_id = ? ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []*TaskSnapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		var snap TaskSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// Tasks returns the distinct task ids with stored snapshots, most recent
// first.
func (s *Store) Tasks() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT task_id FROM snapshots GROUP BY task_id ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshot tasks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Purge deletes snapshots older than the given duration, returning the
// number removed.
func (s *Store) Purge(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339)

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.conn.Exec("DELETE FROM snapshots WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return result.RowsAffected()
}
