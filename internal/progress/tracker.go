package progress

import (
	"fmt"
	"sync"
)

// Tracker owns the in-memory subject states for a process. All mutation goes
// through its methods; consumers hold the tracker, never the raw maps. Every
// successful mutation notifies the registered observer so the sync scheduler
// can arm its quiet-period timer.
type Tracker struct {
	mu       sync.Mutex
	subjects map[string]*SubjectState
	known    map[string]struct{}
	order    []string
	onMutate func(subjectID string)
}

type TrackerOptions struct {
	// Subjects is the fixed set of valid subject identifiers. Operations on
	// any other identifier fail with ErrUnknownSubject.
	Subjects []string
	// OnMutate is invoked after every successful mutation, outside the
	// tracker lock.
	OnMutate func(subjectID string)
}

func NewTracker(opts TrackerOptions) (*Tracker, error) {
	if len(opts.Subjects) == 0 {
		return nil, fmt.Errorf("at least one subject is required")
	}
	known := make(map[string]struct{}, len(opts.Subjects))
	order := make([]string, 0, len(opts.Subjects))
	for _, subjectID := range opts.Subjects {
		if subjectID == "" {
			return nil, fmt.Errorf("%w: empty identifier", ErrUnknownSubject)
		}
		if _, dup := known[subjectID]; dup {
			continue
		}
		known[subjectID] = struct{}{}
		order = append(order, subjectID)
	}
	return &Tracker{
		subjects: map[string]*SubjectState{},
		known:    known,
		order:    order,
		onMutate: opts.OnMutate,
	}, nil
}

// Subjects returns the valid subject identifiers in registration order.
func (t *Tracker) Subjects() []string {
	return append([]string(nil), t.order...)
}

// Get returns a snapshot of the subject's state. Subjects that were never
// scanned or restored yield an empty default state.
func (t *Tracker) Get(subjectID string) (SubjectState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkSubjectLocked(subjectID); err != nil {
		return SubjectState{}, err
	}
	state, ok := t.subjects[subjectID]
	if !ok {
		return newSubjectState(0), nil
	}
	return state.Clone(), nil
}

// Has reports whether the subject holds any in-memory state yet.
func (t *Tracker) Has(subjectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subjects[subjectID]
	return ok
}

// SetChecklistScan records the checklist structure discovered for a subject.
// It fixes the expected item count and prunes entries whose keys disappeared
// from the checklist, keeping entries for keys still present. The total never
// shrinks below a value already established this session.
func (t *Tracker) SetChecklistScan(subjectID string, itemKeys []string) error {
	err := t.mutate(subjectID, func(state *SubjectState) {
		if len(itemKeys) > state.Total {
			state.Total = len(itemKeys)
		}
		keep := make(map[string]struct{}, len(itemKeys))
		for _, key := range itemKeys {
			keep[key] = struct{}{}
		}
		for key := range state.Items {
			if _, ok := keep[key]; !ok {
				delete(state.Items, key)
			}
		}
	})
	return err
}

// SetItemCheckbox sets the binary done flag for one item, leaving any RAG
// status on the same item intact.
func (t *Tracker) SetItemCheckbox(subjectID, itemKey string, value bool) error {
	if itemKey == "" {
		return ErrInvalidItemKey
	}
	return t.mutate(subjectID, func(state *SubjectState) {
		entry := state.Items[itemKey]
		entry.Checkbox = value
		state.Items[itemKey] = entry
	})
}

// SetItemRag sets the RAG status for one item, leaving the checkbox flag on
// the same item intact.
func (t *Tracker) SetItemRag(subjectID, itemKey string, value RagStatus) error {
	if itemKey == "" {
		return ErrInvalidItemKey
	}
	switch value {
	case RagRed, RagAmber, RagGreen, RagUnset:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRag, value)
	}
	return t.mutate(subjectID, func(state *SubjectState) {
		entry := state.Items[itemKey]
		entry.Rag = value
		state.Items[itemKey] = entry
	})
}

// SetMode switches the subject's display mode. Item data recorded under the
// other mode is preserved.
func (t *Tracker) SetMode(subjectID string, mode Mode) error {
	if mode != ModeCheckbox && mode != ModeRag {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return t.mutate(subjectID, func(state *SubjectState) {
		state.Mode = mode
	})
}

// Restore replaces the subject's in-memory state wholesale. It is used by
// session bootstrap to install a locally loaded or merged snapshot and does
// not notify the mutation observer: restored state is already persisted.
func (t *Tracker) Restore(subjectID string, state SubjectState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkSubjectLocked(subjectID); err != nil {
		return err
	}
	clone := state.Clone()
	if clone.Mode == "" {
		clone.Mode = ModeCheckbox
	}
	if existing, ok := t.subjects[subjectID]; ok && existing.Total > clone.Total {
		clone.Total = existing.Total
	}
	t.subjects[subjectID] = &clone
	return nil
}

func (t *Tracker) mutate(subjectID string, apply func(*SubjectState)) error {
	t.mu.Lock()
	if err := t.checkSubjectLocked(subjectID); err != nil {
		t.mu.Unlock()
		return err
	}
	state, ok := t.subjects[subjectID]
	if !ok {
		fresh := newSubjectState(0)
		state = &fresh
		t.subjects[subjectID] = state
	}
	apply(state)
	observer := t.onMutate
	t.mu.Unlock()

	if observer != nil {
		observer(subjectID)
	}
	return nil
}

func (t *Tracker) checkSubjectLocked(subjectID string) error {
	if _, ok := t.known[subjectID]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSubject, subjectID)
	}
	return nil
}
