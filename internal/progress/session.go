package progress

import (
	"context"
	"log"
	"sync"
	"time"
)

// RemoteStore is the engine's view of the per-user remote document store.
// Implementations live in internal/remotestore.
type RemoteStore interface {
	LoadDocument(ctx context.Context, uid string) (RemoteDocument, bool, error)
	SaveSubject(ctx context.Context, uid, subjectID string, snapshot SubjectState) error
	TouchLastAccess(ctx context.Context, uid string) error
}

// User is the authenticated identity supplied by the external identity
// collaborator. A nil user means no session: local-only operation.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// Identity is the subscription surface of the identity collaborator. The
// callback fires with the current user on subscribe and again on every
// sign-in or sign-out.
type Identity interface {
	Subscribe(fn func(user *User)) (cancel func())
}

// StaticIdentity is an Identity that reports one fixed user (or none) and
// never changes. It backs env-configured deployments and tests.
type StaticIdentity struct {
	User *User
}

func (s StaticIdentity) Subscribe(fn func(user *User)) (cancel func()) {
	fn(s.User)
	return func() {}
}

type SessionOptions struct {
	Tracker   *Tracker
	Local     LocalStore
	Remote    RemoteStore // nil disables remote sync entirely
	Scheduler *Scheduler
	// ActiveSubject attributes legacy single-subject remote documents.
	// Defaults to the tracker's first subject.
	ActiveSubject string
	LoadTimeout   time.Duration
	Logger        Logger
}

// Session wires the tracker, local store, remote store and scheduler together
// for one process lifetime. It performs the one-time remote load and merge on
// sign-in and gates remote writes on an authenticated user.
type Session struct {
	tracker       *Tracker
	local         LocalStore
	remote        RemoteStore
	scheduler     *Scheduler
	activeSubject string
	loadTimeout   time.Duration
	logger        Logger

	mu             sync.Mutex
	user           *User
	remoteLoaded   bool
	remoteSubjects map[string]SubjectState
}

func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Tracker == nil {
		return nil, ErrUnknownSubject
	}
	activeSubject := opts.ActiveSubject
	if activeSubject == "" {
		activeSubject = opts.Tracker.Subjects()[0]
	}
	loadTimeout := opts.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		tracker:        opts.Tracker,
		local:          opts.Local,
		remote:         opts.Remote,
		scheduler:      opts.Scheduler,
		activeSubject:  activeSubject,
		loadTimeout:    loadTimeout,
		logger:         logger,
		remoteSubjects: map[string]SubjectState{},
	}, nil
}

// RestoreLocal installs each subject's last persisted local snapshot into the
// tracker. Subjects with no (or corrupt) local record keep their fresh
// default state.
func (s *Session) RestoreLocal() {
	if s.local == nil {
		return
	}
	for _, subjectID := range s.tracker.Subjects() {
		state, ok, err := s.local.Load(subjectID)
		if err != nil {
			s.logger.Printf("local load failed for %s: %v", subjectID, err)
			continue
		}
		if !ok {
			continue
		}
		if err := s.tracker.Restore(subjectID, state); err != nil {
			s.logger.Printf("restore failed for %s: %v", subjectID, err)
		}
	}
}

// Watch subscribes to the identity collaborator and routes auth changes into
// the session. The returned cancel detaches the subscription.
func (s *Session) Watch(identity Identity) (cancel func()) {
	if identity == nil {
		return func() {}
	}
	return identity.Subscribe(func(user *User) {
		s.HandleAuthChange(context.Background(), user)
	})
}

// HandleAuthChange reacts to a sign-in or sign-out. On the first sign-in of a
// session the remote document is loaded once and merged; a remote outage is
// logged and the session continues in local-only shape for reads while writes
// keep being attempted per flush. On sign-out remote writes stop.
func (s *Session) HandleAuthChange(ctx context.Context, user *User) {
	if user == nil || user.UID == "" {
		s.mu.Lock()
		s.user = nil
		s.remoteLoaded = false
		s.mu.Unlock()
		if s.scheduler != nil {
			s.scheduler.SetRemoteWriter(nil)
		}
		return
	}

	s.mu.Lock()
	s.user = user
	alreadyLoaded := s.remoteLoaded
	s.remoteLoaded = true
	s.mu.Unlock()

	if s.remote != nil && !alreadyLoaded {
		s.loadAndMerge(ctx, user.UID)
	}
	if s.remote != nil && s.scheduler != nil {
		s.scheduler.SetRemoteWriter(s.writeRemote)
	}
}

// Resolve finds the last known snapshot for a subject: live tracker state
// first, then the local store, then the last-known remote snapshot. Reports
// false when no source has data.
func (s *Session) Resolve(subjectID string) (SubjectState, bool) {
	if s.tracker.Has(subjectID) {
		state, err := s.tracker.Get(subjectID)
		if err == nil {
			return state, true
		}
	}
	if s.local != nil {
		if state, ok, err := s.local.Load(subjectID); err == nil && ok {
			return state, true
		}
	}
	s.mu.Lock()
	state, ok := s.remoteSubjects[subjectID]
	s.mu.Unlock()
	if ok {
		return state.Clone(), true
	}
	return SubjectState{}, false
}

// Resolver adapts the session to the aggregator's resolver contract.
func (s *Session) Resolver() SnapshotResolver {
	return s.Resolve
}

// User returns the current authenticated user, if any.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) loadAndMerge(ctx context.Context, uid string) {
	loadCtx, cancelLoad := context.WithTimeout(ctx, s.loadTimeout)
	defer cancelLoad()
	doc, ok, err := s.remote.LoadDocument(loadCtx, uid)
	if err != nil {
		s.logger.Printf("remote load failed for %s: %v", uid, err)
		return
	}
	if !ok {
		return
	}

	// Merge against the live in-memory state first: the local store lags the
	// tracker by up to one quiet period, and a stale record must not clobber
	// an unflushed mutation when Restore installs the merge result.
	merged := MergeDocument(doc, s.activeSubject, func(subjectID string) (SubjectState, bool) {
		if s.tracker.Has(subjectID) {
			if state, err := s.tracker.Get(subjectID); err == nil {
				return state, true
			}
		}
		if s.local != nil {
			if state, ok, err := s.local.Load(subjectID); err == nil && ok {
				return state, true
			}
		}
		return SubjectState{}, false
	})

	s.mu.Lock()
	for subjectID, snapshot := range doc.SubjectSnapshots(s.activeSubject) {
		s.remoteSubjects[subjectID] = snapshot
	}
	s.mu.Unlock()

	for subjectID, state := range merged {
		if err := s.tracker.Restore(subjectID, state); err != nil {
			// Subjects the remote knows but this deployment does not stay in
			// the remote snapshot cache only.
			continue
		}
	}
}

func (s *Session) writeRemote(ctx context.Context, subjectID string, state SubjectState) error {
	s.mu.Lock()
	user := s.user
	s.mu.Unlock()
	if user == nil {
		return nil
	}
	if err := s.remote.SaveSubject(ctx, user.UID, subjectID, state); err != nil {
		return err
	}
	s.mu.Lock()
	s.remoteSubjects[subjectID] = state.Clone()
	s.mu.Unlock()
	if err := s.remote.TouchLastAccess(ctx, user.UID); err != nil {
		s.logger.Printf("last-access touch failed for %s: %v", user.UID, err)
	}
	return nil
}
