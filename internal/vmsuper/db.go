package vmsuper

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sandboxes (
    name TEXT PRIMARY KEY,
    pid INTEGER NOT NULL,
    config_path TEXT NOT NULL,
    config_mtime INTEGER NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL DEFAULT (datetime('now')),
    restart_count INTEGER NOT NULL DEFAULT 0
);
`

// Record is one sandbox's row in the supervisor state database.
type Record struct {
	Name         string
	PID          int
	ConfigPath   string
	ConfigMtime  int64
	Status       string
	StartedAt    string
	RestartCount int
}

// DB is the small per-namespace supervisor state database: PID, config
// path, config mtime, and last known status for every sandbox the
// supervisor has launched in that namespace.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the supervisor database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create supervisor db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open supervisor db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply supervisor db schema: %w", err)
	}
	return &DB{sql: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Upsert records (or replaces) a sandbox's launch state. On replace,
// restart_count increments.
func (d *DB) Upsert(name string, pid int, configPath string, configMtime int64, status string) error {
	existing, err := d.Get(name)
	restarts := 0
	if err == nil {
		restarts = existing.RestartCount + 1
	}

	_, err = d.sql.Exec(
		`INSERT INTO sandboxes (name, pid, config_path, config_mtime, status, restart_count)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   pid = excluded.pid,
		   config_path = excluded.config_path,
		   config_mtime = excluded.config_mtime,
		   status = excluded.status,
		   restart_count = ?`,
		name, pid, configPath, configMtime, status, restarts, restarts)
	if err != nil {
		return fmt.Errorf("upsert sandbox record: %w", err)
	}
	return nil
}

// SetStatus updates only the status column for a sandbox.
func (d *DB) SetStatus(name, status string) error {
	_, err := d.sql.Exec(`UPDATE sandboxes SET status = ? WHERE name = ?`, status, name)
	return err
}

// Get returns the record for a sandbox.
func (d *DB) Get(name string) (*Record, error) {
	row := d.sql.QueryRow(
		`SELECT name, pid, config_path, config_mtime, status, started_at, restart_count
		 FROM sandboxes WHERE name = ?`, name)

	var r Record
	if err := row.Scan(&r.Name, &r.PID, &r.ConfigPath, &r.ConfigMtime, &r.Status, &r.StartedAt, &r.RestartCount); err != nil {
		return nil, fmt.Errorf("sandbox %s not recorded: %w", name, err)
	}
	return &r, nil
}

// Delete removes a sandbox's record (called by Launch to drop an entry whose
// config mtime has changed).
func (d *DB) Delete(name string) error {
	_, err := d.sql.Exec(`DELETE FROM sandboxes WHERE name = ?`, name)
	return err
}

// All returns every recorded sandbox in the namespace.
func (d *DB) All() ([]Record, error) {
	rows, err := d.sql.Query(
		`SELECT name, pid, config_path, config_mtime, status, started_at, restart_count FROM sandboxes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.PID, &r.ConfigPath, &r.ConfigMtime, &r.Status, &r.StartedAt, &r.RestartCount); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
