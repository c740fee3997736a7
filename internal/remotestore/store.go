// Package remotestore holds the clients for the per-user remote progress
// document. The sync engine is the sole client-side writer; the document's
// own semantics decide what the last visible state is when writes race.
package remotestore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/elevenstudents/specsync/internal/progress"
)

// Store is the remote persistence contract consumed by session bootstrap and
// the sync scheduler. LoadDocument reporting ok=false means the user has no
// document yet. SaveSubject replaces the subject's entry inside the
// document's subjects map and refreshes the top-level single-subject mirror
// and updatedAt; it never merges item fields.
type Store interface {
	LoadDocument(ctx context.Context, uid string) (progress.RemoteDocument, bool, error)
	SaveSubject(ctx context.Context, uid, subjectID string, snapshot progress.SubjectState) error
	TouchLastAccess(ctx context.Context, uid string) error
}

func applySubject(doc *progress.RemoteDocument, subjectID string, snapshot progress.SubjectState, now time.Time) {
	updatedAt := now.UTC().Format(time.RFC3339)
	snapshot = snapshot.Clone()
	snapshot.UpdatedAt = updatedAt
	if doc.Subjects == nil {
		doc.Subjects = map[string]progress.SubjectState{}
	}
	doc.Subjects[subjectID] = snapshot
	// Denormalized mirror of the active subject, kept for consumers that
	// predate the subjects map.
	doc.Mode = snapshot.Mode
	doc.Items = snapshot.Items
	doc.Total = snapshot.Total
	doc.UpdatedAt = updatedAt
}

// MemoryStore is the in-process Store used by tests and the memory:// DSN.
type MemoryStore struct {
	mu         sync.Mutex
	docs       map[string]progress.RemoteDocument
	lastAccess map[string]time.Time
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:       map[string]progress.RemoteDocument{},
		lastAccess: map[string]time.Time{},
		now:        time.Now,
	}
}

func (s *MemoryStore) LoadDocument(_ context.Context, uid string) (progress.RemoteDocument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uid]
	if !ok {
		return progress.RemoteDocument{}, false, nil
	}
	return doc, true, nil
}

func (s *MemoryStore) SaveSubject(_ context.Context, uid, subjectID string, snapshot progress.SubjectState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[uid]
	applySubject(&doc, subjectID, snapshot, s.now())
	s.docs[uid] = doc
	return nil
}

func (s *MemoryStore) TouchLastAccess(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess[uid] = s.now()
	return nil
}

// LastAccess reports the recorded last-access time for a user, for tests.
func (s *MemoryStore) LastAccess(uid string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastAccess[uid]
	return ts, ok
}

// Seed installs a document wholesale, for tests and tooling.
func (s *MemoryStore) Seed(uid string, doc progress.RemoteDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uid] = doc
}

// BuildStoreFromDSN resolves a remote store client from a DSN: http:// and
// https:// select the HTTP client, postgres:// the Postgres client and
// memory:// the in-process store. An empty DSN means no remote store is
// configured and the engine stays local-only.
func BuildStoreFromDSN(dsn, authToken string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", progress.ErrRemoteUnavailable, err)
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http", "https":
		return NewHTTPStore(HTTPStoreOptions{BaseURL: dsn, Token: authToken}), nil
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	case "memory", "mem", "inmem":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported remote store scheme: %s", parsed.Scheme)
	}
}
