package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	release_target TEXT PRIMARY KEY,
	edit_id        TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	artifact       TEXT
);`

// SQLiteStore keeps session records in a single SQLite table. It suits
// machines that publish several release targets from one project dir.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session: create db directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the record for target.
func (s *SQLiteStore) Load(target string) (Record, error) {
	if err := ValidTarget(target); err != nil {
		return Record{}, err
	}
	row := s.db.QueryRow(`SELECT release_target, edit_id, created_at, artifact FROM sessions WHERE release_target = ?`, target)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("session: load %s: %w", target, err)
	}
	return rec, nil
}

// Save upserts rec.
func (s *SQLiteStore) Save(rec Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("session: invalid record: %w", err)
	}
	var artifact sql.NullString
	if rec.Artifact != nil {
		data, err := json.Marshal(rec.Artifact)
		if err != nil {
			return fmt.Errorf("session: marshal artifact: %w", err)
		}
		artifact = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.Exec(`
INSERT INTO sessions (release_target, edit_id, created_at, artifact) VALUES (?, ?, ?, ?)
ON CONFLICT(release_target) DO UPDATE SET edit_id = excluded.edit_id, created_at = excluded.created_at, artifact = excluded.artifact`,
		rec.ReleaseTarget, rec.EditID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), artifact)
	if err != nil {
		return fmt.Errorf("session: save %s: %w", rec.ReleaseTarget, err)
	}
	return nil
}

// Delete removes the record for target.
func (s *SQLiteStore) Delete(target string) error {
	if err := ValidTarget(target); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE release_target = ?`, target); err != nil {
		return fmt.Errorf("session: delete %s: %w", target, err)
	}
	return nil
}

// List returns every record, sorted by target.
func (s *SQLiteStore) List() ([]Record, error) {
	rows, err := s.db.Query(`SELECT release_target, edit_id, created_at, artifact FROM sessions ORDER BY release_target`)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("session: list: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		createdAt string
		artifact  sql.NullString
	)
	if err := row.Scan(&rec.ReleaseTarget, &rec.EditID, &createdAt, &artifact); err != nil {
		return Record{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = parsed
	if artifact.Valid && artifact.String != "" {
		var a ArtifactRecord
		if err := json.Unmarshal([]byte(artifact.String), &a); err != nil {
			return Record{}, fmt.Errorf("parse artifact: %w", err)
		}
		rec.Artifact = &a
	}
	return rec, rec.Validate()
}
