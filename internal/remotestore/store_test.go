package remotestore

import (
	"context"
	"testing"
	"time"

	"github.com/elevenstudents/specsync/internal/progress"
)

func TestMemoryStoreSaveSubject(t *testing.T) {
	store := NewMemoryStore()
	store.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if _, ok, err := store.LoadDocument(ctx, "uid-1"); err != nil || ok {
		t.Fatalf("expected no document for a new user: ok=%v err=%v", ok, err)
	}

	snapshot := progress.SubjectState{
		Mode:  progress.ModeRag,
		Total: 4,
		Items: map[string]progress.ItemEntry{"bio-cells-1": {Rag: progress.RagGreen}},
	}
	if err := store.SaveSubject(ctx, "uid-1", "biology", snapshot); err != nil {
		t.Fatalf("SaveSubject failed: %v", err)
	}

	doc, ok, err := store.LoadDocument(ctx, "uid-1")
	if err != nil || !ok {
		t.Fatalf("LoadDocument failed: ok=%v err=%v", ok, err)
	}
	saved := doc.Subjects["biology"]
	if saved.Mode != progress.ModeRag || saved.Total != 4 {
		t.Fatalf("unexpected saved subject: %+v", saved)
	}
	if saved.UpdatedAt != "2026-08-28T12:00:00Z" {
		t.Fatalf("save must stamp updatedAt, got %q", saved.UpdatedAt)
	}
	// Top-level mirror follows the written subject.
	if doc.Mode != progress.ModeRag || doc.Total != 4 || doc.UpdatedAt != saved.UpdatedAt {
		t.Fatalf("single-subject mirror was not refreshed: %+v", doc)
	}
}

func TestMemoryStoreSaveSubjectReplacesEntry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := progress.SubjectState{
		Total: 2,
		Items: map[string]progress.ItemEntry{"chem-acids-1": {Checkbox: true}},
	}
	second := progress.SubjectState{
		Total: 2,
		Items: map[string]progress.ItemEntry{"chem-acids-2": {Rag: progress.RagAmber}},
	}
	if err := store.SaveSubject(ctx, "uid-1", "chemistry", first); err != nil {
		t.Fatalf("SaveSubject failed: %v", err)
	}
	if err := store.SaveSubject(ctx, "uid-1", "chemistry", second); err != nil {
		t.Fatalf("SaveSubject failed: %v", err)
	}

	doc, _, _ := store.LoadDocument(ctx, "uid-1")
	saved := doc.Subjects["chemistry"]
	if _, ok := saved.Items["chem-acids-1"]; ok {
		t.Fatalf("replacement must be wholesale, stale item survived: %+v", saved.Items)
	}
	if saved.Items["chem-acids-2"].Rag != progress.RagAmber {
		t.Fatalf("unexpected saved items: %+v", saved.Items)
	}
}

func TestMemoryStoreSaveSubjectKeepsOtherSubjects(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveSubject(ctx, "uid-1", "biology", progress.SubjectState{Total: 3}); err != nil {
		t.Fatalf("SaveSubject failed: %v", err)
	}
	if err := store.SaveSubject(ctx, "uid-1", "physics", progress.SubjectState{Total: 5}); err != nil {
		t.Fatalf("SaveSubject failed: %v", err)
	}

	doc, _, _ := store.LoadDocument(ctx, "uid-1")
	if doc.Subjects["biology"].Total != 3 || doc.Subjects["physics"].Total != 5 {
		t.Fatalf("subject writes must not clobber sibling subjects: %+v", doc.Subjects)
	}
	if doc.Total != 5 {
		t.Fatalf("mirror must follow the most recent write, got %d", doc.Total)
	}
}

func TestMemoryStoreTouchLastAccess(t *testing.T) {
	store := NewMemoryStore()
	stamp := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return stamp }

	if _, ok := store.LastAccess("uid-1"); ok {
		t.Fatalf("no last access expected before the first touch")
	}
	if err := store.TouchLastAccess(context.Background(), "uid-1"); err != nil {
		t.Fatalf("TouchLastAccess failed: %v", err)
	}
	ts, ok := store.LastAccess("uid-1")
	if !ok || !ts.Equal(stamp) {
		t.Fatalf("unexpected last access: ok=%v ts=%v", ok, ts)
	}
}

func TestBuildStoreFromDSN(t *testing.T) {
	store, err := BuildStoreFromDSN("", "")
	if err != nil || store != nil {
		t.Fatalf("empty dsn must disable the remote store: store=%v err=%v", store, err)
	}

	store, err = BuildStoreFromDSN("memory://", "")
	if err != nil {
		t.Fatalf("memory dsn failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	store, err = BuildStoreFromDSN("https://progress.example.com", "token-1")
	if err != nil {
		t.Fatalf("https dsn failed: %v", err)
	}
	if _, ok := store.(*HTTPStore); !ok {
		t.Fatalf("expected http store, got %T", store)
	}

	if _, err := BuildStoreFromDSN("ftp://example.com", ""); err == nil {
		t.Fatalf("unsupported scheme must fail")
	}
}
