package progress

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS progress (
		record_key TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)
`

// SQLiteLocalStore is the durable local medium for installations that prefer
// a single database file over per-subject JSON files.
type SQLiteLocalStore struct {
	db *sqlx.DB
}

func NewSQLiteLocalStore(path string) (*SQLiteLocalStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrStorageUnavailable)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	// SQLite does not support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &SQLiteLocalStore{db: db}, nil
}

func (s *SQLiteLocalStore) Load(subjectID string) (SubjectState, bool, error) {
	var payload string
	err := s.db.Get(&payload, "SELECT snapshot FROM progress WHERE record_key = ?", localRecordKey(subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return SubjectState{}, false, nil
	}
	if err != nil {
		return SubjectState{}, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	var state SubjectState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return SubjectState{}, false, nil
	}
	return state, true, nil
}

func (s *SQLiteLocalStore) Save(subjectID string, state SubjectState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO progress (record_key, snapshot, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (record_key) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			updated_at = CURRENT_TIMESTAMP`,
		localRecordKey(subjectID), string(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteLocalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
