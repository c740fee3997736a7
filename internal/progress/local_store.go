package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalStore persists one SubjectState per subject on the local device.
// Load reporting ok=false means no prior session for that subject here; the
// caller falls back to a freshly scanned default. A missing or malformed
// record is indistinguishable from absence and never surfaces as an error to
// the UI path. Save replaces the whole snapshot; there is no partial merge.
type LocalStore interface {
	Load(subjectID string) (SubjectState, bool, error)
	Save(subjectID string, state SubjectState) error
}

func localRecordKey(subjectID string) string {
	return "progress-" + subjectID
}

// FileLocalStore keeps one JSON file per subject under a directory, named
// after the record key. Writes go through a temp file and rename.
type FileLocalStore struct {
	dir string
}

func NewFileLocalStore(dir string) (*FileLocalStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: local store directory is required", ErrStorageUnavailable)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &FileLocalStore{dir: dir}, nil
}

func (s *FileLocalStore) Load(subjectID string) (SubjectState, bool, error) {
	data, err := os.ReadFile(s.recordPath(subjectID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SubjectState{}, false, nil
		}
		return SubjectState{}, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	var state SubjectState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt record: treated as first use.
		return SubjectState{}, false, nil
	}
	return state, true, nil
}

func (s *FileLocalStore) Save(subjectID string, state SubjectState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	path := s.recordPath(subjectID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *FileLocalStore) recordPath(subjectID string) string {
	return filepath.Join(s.dir, localRecordKey(subjectID)+".json")
}

// MemoryLocalStore is the in-memory LocalStore used by tests and the
// memory:// backend profile.
type MemoryLocalStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{records: map[string][]byte{}}
}

func (s *MemoryLocalStore) Load(subjectID string) (SubjectState, bool, error) {
	s.mu.Lock()
	data, ok := s.records[localRecordKey(subjectID)]
	s.mu.Unlock()
	if !ok {
		return SubjectState{}, false, nil
	}
	var state SubjectState
	if err := json.Unmarshal(data, &state); err != nil {
		return SubjectState{}, false, nil
	}
	return state, true, nil
}

func (s *MemoryLocalStore) Save(subjectID string, state SubjectState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.mu.Lock()
	s.records[localRecordKey(subjectID)] = data
	s.mu.Unlock()
	return nil
}
