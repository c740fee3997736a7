package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeRemoteStore struct {
	mu      sync.Mutex
	doc     RemoteDocument
	hasDoc  bool
	loadErr error
	loads   int
	saved   map[string]SubjectState
	touches int
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{saved: map[string]SubjectState{}}
}

func (f *fakeRemoteStore) LoadDocument(_ context.Context, _ string) (RemoteDocument, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return RemoteDocument{}, false, f.loadErr
	}
	return f.doc, f.hasDoc, nil
}

func (f *fakeRemoteStore) SaveSubject(_ context.Context, _, subjectID string, snapshot SubjectState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[subjectID] = snapshot.Clone()
	return nil
}

func (f *fakeRemoteStore) TouchLastAccess(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

func (f *fakeRemoteStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeRemoteStore) savedSubject(subjectID string) (SubjectState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.saved[subjectID]
	return state, ok
}

func newTestSession(t *testing.T, remote RemoteStore, local LocalStore) (*Session, *Tracker) {
	t.Helper()
	tracker := newTestTracker(t, nil)
	session, err := NewSession(SessionOptions{
		Tracker: tracker,
		Local:   local,
		Remote:  remote,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return session, tracker
}

func TestSessionRestoreLocal(t *testing.T) {
	local := NewMemoryLocalStore()
	if err := local.Save("biology", SubjectState{
		Mode:  ModeRag,
		Total: 4,
		Items: map[string]ItemEntry{"bio-cells-1": {Rag: RagGreen}},
	}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	session, tracker := newTestSession(t, nil, local)
	session.RestoreLocal()

	state, err := tracker.Get("biology")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.Mode != ModeRag || state.Items["bio-cells-1"].Rag != RagGreen {
		t.Fatalf("local snapshot was not restored: %+v", state)
	}
	if tracker.Has("chemistry") {
		t.Fatalf("subjects with no local record must keep their default state")
	}
}

func TestSessionSignInLoadsRemoteOnce(t *testing.T) {
	remote := newFakeRemoteStore()
	remote.hasDoc = true
	session, _ := newTestSession(t, remote, NewMemoryLocalStore())

	user := &User{UID: "uid-1"}
	session.HandleAuthChange(context.Background(), user)
	session.HandleAuthChange(context.Background(), user)

	if remote.loadCount() != 1 {
		t.Fatalf("remote document must be loaded once per session, got %d loads", remote.loadCount())
	}
}

func TestSessionSignInMergesRemoteIntoTracker(t *testing.T) {
	local := NewMemoryLocalStore()
	if err := local.Save("biology", SubjectState{
		Mode:  ModeCheckbox,
		Total: 3,
		Items: map[string]ItemEntry{
			"bio-cells-1": {Checkbox: true},
			"bio-cells-2": {Checkbox: true},
		},
	}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	remote := newFakeRemoteStore()
	remote.hasDoc = true
	remote.doc = RemoteDocument{
		Subjects: map[string]SubjectState{
			"biology": {
				Mode:  ModeRag,
				Total: 3,
				Items: map[string]ItemEntry{"bio-cells-1": {Rag: RagGreen}},
			},
		},
	}

	session, tracker := newTestSession(t, remote, local)
	session.RestoreLocal()
	session.HandleAuthChange(context.Background(), &User{UID: "uid-1"})

	state, err := tracker.Get("biology")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.Mode != ModeRag {
		t.Fatalf("remote mode must win: %+v", state)
	}
	if state.Items["bio-cells-1"] != (ItemEntry{Rag: RagGreen}) {
		t.Fatalf("remote entry must replace the local one wholesale: %+v", state.Items["bio-cells-1"])
	}
	if state.Items["bio-cells-2"] != (ItemEntry{Checkbox: true}) {
		t.Fatalf("local-only entry must survive the merge: %+v", state.Items["bio-cells-2"])
	}
}

func TestSessionMergeKeepsUnflushedTrackerMutations(t *testing.T) {
	local := NewMemoryLocalStore()
	// The local store lags the tracker: it has no record of bio-cells-1 yet.
	if err := local.Save("biology", SubjectState{Mode: ModeCheckbox, Total: 2}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	remote := newFakeRemoteStore()
	remote.hasDoc = true
	remote.doc = RemoteDocument{
		Subjects: map[string]SubjectState{
			"biology": {
				Mode:  ModeCheckbox,
				Total: 2,
				Items: map[string]ItemEntry{"bio-cells-2": {Rag: RagGreen}},
			},
		},
	}

	session, tracker := newTestSession(t, remote, local)
	session.RestoreLocal()
	// Mutation inside the quiet period, not yet persisted locally.
	if err := tracker.SetItemCheckbox("biology", "bio-cells-1", true); err != nil {
		t.Fatalf("SetItemCheckbox failed: %v", err)
	}

	session.HandleAuthChange(context.Background(), &User{UID: "uid-1"})

	state, err := tracker.Get("biology")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !state.Items["bio-cells-1"].Checkbox {
		t.Fatalf("sign-in merge dropped an unflushed mutation: %+v", state.Items)
	}
	if state.Items["bio-cells-2"].Rag != RagGreen {
		t.Fatalf("remote entry missing after merge: %+v", state.Items)
	}
}

func TestSessionMergeKeepsUnflushedRescanPruning(t *testing.T) {
	local := NewMemoryLocalStore()
	// Stale local record still carries a key the checklist no longer has.
	if err := local.Save("chemistry", SubjectState{
		Mode:  ModeCheckbox,
		Total: 2,
		Items: map[string]ItemEntry{"chem-old-9": {Checkbox: true}},
	}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	remote := newFakeRemoteStore()
	remote.hasDoc = true
	remote.doc = RemoteDocument{
		Subjects: map[string]SubjectState{
			"chemistry": {Mode: ModeCheckbox, Total: 2},
		},
	}

	session, tracker := newTestSession(t, remote, local)
	session.RestoreLocal()
	// Rescan prunes the stale key in memory before the sign-in lands.
	if err := tracker.SetChecklistScan("chemistry", []string{"chem-acids-1", "chem-acids-2"}); err != nil {
		t.Fatalf("SetChecklistScan failed: %v", err)
	}

	session.HandleAuthChange(context.Background(), &User{UID: "uid-1"})

	state, err := tracker.Get("chemistry")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := state.Items["chem-old-9"]; ok {
		t.Fatalf("sign-in merge resurrected a pruned key: %+v", state.Items)
	}
}

func TestSessionResolveFallsBackThroughSources(t *testing.T) {
	local := NewMemoryLocalStore()
	if err := local.Save("chemistry", SubjectState{Total: 2}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	remote := newFakeRemoteStore()
	remote.hasDoc = true
	remote.doc = RemoteDocument{
		Subjects: map[string]SubjectState{
			// A subject this deployment's checklist does not know.
			"geology": {Total: 5, Items: map[string]ItemEntry{"geo-rocks-1": {Checkbox: true}}},
		},
	}

	session, tracker := newTestSession(t, remote, local)
	session.HandleAuthChange(context.Background(), &User{UID: "uid-1"})

	if err := tracker.SetItemCheckbox("biology", "bio-cells-1", true); err != nil {
		t.Fatalf("SetItemCheckbox failed: %v", err)
	}
	if state, ok := session.Resolve("biology"); !ok || !state.Items["bio-cells-1"].Checkbox {
		t.Fatalf("live tracker state must win: ok=%v %+v", ok, state)
	}
	if state, ok := session.Resolve("chemistry"); !ok || state.Total != 2 {
		t.Fatalf("local store must back untouched subjects: ok=%v %+v", ok, state)
	}
	if state, ok := session.Resolve("geology"); !ok || state.Total != 5 {
		t.Fatalf("remote snapshot cache must back unknown subjects: ok=%v %+v", ok, state)
	}
	if _, ok := session.Resolve("history"); ok {
		t.Fatalf("a subject no source knows must resolve to nothing")
	}
}

func TestSessionRemoteOutageDegradesToLocalOnlyReads(t *testing.T) {
	local := NewMemoryLocalStore()
	if err := local.Save("biology", SubjectState{Total: 3}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	remote := newFakeRemoteStore()
	remote.loadErr = errors.New("document store is down")

	logger := &countingLogger{}
	tracker := newTestTracker(t, nil)
	session, err := NewSession(SessionOptions{
		Tracker: tracker,
		Local:   local,
		Remote:  remote,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	session.RestoreLocal()
	session.HandleAuthChange(context.Background(), &User{UID: "uid-1"})

	if state, ok := session.Resolve("biology"); !ok || state.Total != 3 {
		t.Fatalf("reads must keep working from local data: ok=%v %+v", ok, state)
	}
	logger.mu.Lock()
	lines := logger.lines
	logger.mu.Unlock()
	if lines == 0 {
		t.Fatalf("remote outage must be logged")
	}
}

func TestSessionSignInAndOutGateRemoteWrites(t *testing.T) {
	clock := &fakeClock{}
	sink := newRecordingSink()
	remote := newFakeRemoteStore()

	tracker := newTestTracker(t, nil)
	scheduler := NewScheduler(SchedulerOptions{
		Clock: clock,
		Snapshot: func(subjectID string) (SubjectState, bool) {
			state, err := tracker.Get(subjectID)
			if err != nil {
				return SubjectState{}, false
			}
			return state, true
		},
		SaveLocal: sink.saveLocal,
	})
	defer scheduler.Close()

	session, err := NewSession(SessionOptions{
		Tracker:   tracker,
		Local:     NewMemoryLocalStore(),
		Remote:    remote,
		Scheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	// Signed out: a flush stays local.
	scheduler.NotifyMutation("biology")
	scheduler.Flush()
	scheduler.Close()
	if _, ok := remote.savedSubject("biology"); ok {
		t.Fatalf("no remote write expected while signed out")
	}

	scheduler = NewScheduler(SchedulerOptions{
		Clock: clock,
		Snapshot: func(subjectID string) (SubjectState, bool) {
			state, err := tracker.Get(subjectID)
			if err != nil {
				return SubjectState{}, false
			}
			return state, true
		},
		SaveLocal: sink.saveLocal,
	})
	session, err = NewSession(SessionOptions{
		Tracker:   tracker,
		Local:     NewMemoryLocalStore(),
		Remote:    remote,
		Scheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	session.HandleAuthChange(context.Background(), &User{UID: "uid-1"})
	scheduler.NotifyMutation("biology")
	scheduler.Flush()
	scheduler.Close()

	if _, ok := remote.savedSubject("biology"); !ok {
		t.Fatalf("flush after sign-in must write the subject remotely")
	}
	remote.mu.Lock()
	touches := remote.touches
	remote.mu.Unlock()
	if touches == 0 {
		t.Fatalf("a successful remote write must touch last access")
	}
}

func TestSessionSignOutStopsRemoteWrites(t *testing.T) {
	clock := &fakeClock{}
	sink := newRecordingSink()
	remote := newFakeRemoteStore()

	tracker := newTestTracker(t, nil)
	scheduler := NewScheduler(SchedulerOptions{
		Clock: clock,
		Snapshot: func(subjectID string) (SubjectState, bool) {
			state, err := tracker.Get(subjectID)
			if err != nil {
				return SubjectState{}, false
			}
			return state, true
		},
		SaveLocal: sink.saveLocal,
	})
	session, err := NewSession(SessionOptions{
		Tracker:   tracker,
		Local:     NewMemoryLocalStore(),
		Remote:    remote,
		Scheduler: scheduler,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	session.HandleAuthChange(context.Background(), &User{UID: "uid-1"})
	session.HandleAuthChange(context.Background(), nil)
	if session.User() != nil {
		t.Fatalf("sign-out must clear the session user")
	}

	scheduler.NotifyMutation("chemistry")
	scheduler.Flush()
	scheduler.Close()
	if _, ok := remote.savedSubject("chemistry"); ok {
		t.Fatalf("no remote write expected after sign-out")
	}
}
