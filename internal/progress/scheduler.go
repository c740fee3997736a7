package progress

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// DefaultQuietPeriod is the debounce window: a burst of mutations inside this
// window produces a single flush.
const DefaultQuietPeriod = 300 * time.Millisecond

type Logger interface {
	Printf(format string, args ...any)
}

// Scheduler coalesces mutation bursts into one local save plus, when a
// session is authenticated, one remote write dispatch per dirty subject.
// It holds at most one pending timer; every notification resets it.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   Timer

	quiet      time.Duration
	clock      Clock
	snapshot   func(subjectID string) (SubjectState, bool)
	saveLocal  func(subjectID string, state SubjectState) error
	saveRemote func(ctx context.Context, subjectID string, state SubjectState) error
	logger     Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SchedulerOptions struct {
	// QuietPeriod defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration
	Clock       Clock
	// Snapshot resolves the current state for a dirty subject at flush time.
	Snapshot func(subjectID string) (SubjectState, bool)
	// SaveLocal is the synchronous local store write. It always runs before
	// the remote dispatch and is never skipped because of remote failures.
	SaveLocal func(subjectID string, state SubjectState) error
	// SaveRemote dispatches the remote write. Nil disables remote traffic;
	// the session installs a gated implementation on sign-in. Errors are
	// logged and swallowed, never retried.
	SaveRemote func(ctx context.Context, subjectID string, state SubjectState) error
	Logger     Logger
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	quiet := opts.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	clock := opts.Clock
	if clock == nil {
		clock = WallClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		pending:    map[string]struct{}{},
		quiet:      quiet,
		clock:      clock,
		snapshot:   opts.Snapshot,
		saveLocal:  opts.SaveLocal,
		saveRemote: opts.SaveRemote,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetRemoteWriter swaps the remote dispatch function. Session bootstrap calls
// this on sign-in and sign-out; a nil writer puts the scheduler in local-only
// operation.
func (s *Scheduler) SetRemoteWriter(fn func(ctx context.Context, subjectID string, state SubjectState) error) {
	s.mu.Lock()
	s.saveRemote = fn
	s.mu.Unlock()
}

// NotifyMutation marks a subject dirty and (re)arms the quiet-period timer.
func (s *Scheduler) NotifyMutation(subjectID string) {
	if subjectID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	s.pending[subjectID] = struct{}{}
	if s.timer != nil {
		s.timer.Reset(s.quiet)
		return
	}
	s.timer = s.clock.AfterFunc(s.quiet, s.flushExpired)
}

// Flush persists all dirty subjects immediately, cancelling any pending
// timer. Used on shutdown so a trailing burst is not lost.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.takePendingLocked()
	s.mu.Unlock()
	s.persist(dirty)
}

// Close flushes outstanding work and waits for in-flight remote dispatches.
func (s *Scheduler) Close() {
	s.Flush()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) flushExpired() {
	s.mu.Lock()
	s.timer = nil
	dirty := s.takePendingLocked()
	s.mu.Unlock()
	s.persist(dirty)
}

func (s *Scheduler) takePendingLocked() []string {
	dirty := make([]string, 0, len(s.pending))
	for subjectID := range s.pending {
		dirty = append(dirty, subjectID)
	}
	s.pending = map[string]struct{}{}
	sort.Strings(dirty)
	return dirty
}

func (s *Scheduler) persist(dirty []string) {
	for _, subjectID := range dirty {
		state, ok := s.snapshot(subjectID)
		if !ok {
			continue
		}
		// updatedAt marks persisted writes, not in-memory mutations.
		state.UpdatedAt = timestampNow(s.clock.Now())
		if err := s.saveLocal(subjectID, state); err != nil {
			s.logger.Printf("local save failed for %s: %v", subjectID, err)
		}
		s.mu.Lock()
		remote := s.saveRemote
		s.mu.Unlock()
		if remote == nil {
			continue
		}
		s.wg.Add(1)
		go func(subjectID string, state SubjectState) {
			defer s.wg.Done()
			if err := remote(s.ctx, subjectID, state); err != nil {
				s.logger.Printf("remote save failed for %s: %v", subjectID, err)
			}
		}(subjectID, state)
	}
}
