package remotestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/elevenstudents/specsync/internal/progress"
)

const (
	postgresProgressTable    = "users_progress"
	postgresUsersTable       = "users"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore keeps the per-user document as a JSON snapshot in Postgres,
// for deployments that own the document store directly instead of fronting
// it with an HTTP service. Schema is bootstrapped lazily on first use.
type PostgresStore struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", progress.ErrRemoteUnavailable)
	}
	return &PostgresStore{
		dsn:    dsn,
		openDB: sql.Open,
	}, nil
}

func (s *PostgresStore) LoadDocument(ctx context.Context, uid string) (progress.RemoteDocument, bool, error) {
	if err := s.ensureReady(); err != nil {
		return progress.RemoteDocument{}, false, fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM "+postgresProgressTable+" WHERE uid = $1", uid).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.RemoteDocument{}, false, nil
	}
	if err != nil {
		return progress.RemoteDocument{}, false, fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	var doc progress.RemoteDocument
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return progress.RemoteDocument{}, false, fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	return doc, true, nil
}

func (s *PostgresStore) SaveSubject(ctx context.Context, uid, subjectID string, snapshot progress.SubjectState) error {
	if err := s.ensureReady(); err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var doc progress.RemoteDocument
	var payload string
	err = tx.QueryRowContext(ctx,
		"SELECT doc FROM "+postgresProgressTable+" WHERE uid = $1 FOR UPDATE", uid).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	default:
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			// Unreadable document: replace it rather than fail the write.
			doc = progress.RemoteDocument{}
		}
	}

	applySubject(&doc, subjectID, snapshot, time.Now())
	updated, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+postgresProgressTable+` (uid, doc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (uid)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
		uid, string(updated))
	if err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	committed = true
	return nil
}

func (s *PostgresStore) TouchLastAccess(ctx context.Context, uid string) error {
	if err := s.ensureReady(); err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+postgresUsersTable+` (uid, last_access)
		VALUES ($1, NOW())
		ON CONFLICT (uid)
		DO UPDATE SET last_access = NOW()`, uid)
	if err != nil {
		return fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		statements := []string{
			`CREATE TABLE IF NOT EXISTS ` + postgresProgressTable + ` (
				uid TEXT PRIMARY KEY,
				doc TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS ` + postgresUsersTable + ` (
				uid TEXT PRIMARY KEY,
				last_access TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		}
		for _, statement := range statements {
			if _, err := db.ExecContext(ctx, statement); err != nil {
				_ = db.Close()
				s.initErr = err
				return
			}
		}
		s.db = db
	})
	return s.initErr
}
