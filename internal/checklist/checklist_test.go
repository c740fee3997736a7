package checklist

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const biologyDoc = `{
	"subject": "biology",
	"title": "Biology",
	"topics": [
		{"id": "cells", "title": "Cell Biology", "items": ["Cell structure", "Mitosis"]},
		{"id": "genetics", "items": ["Inheritance"]}
	]
}`

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestItemKeysRunSubjectWide(t *testing.T) {
	definition := Checklist{
		Subject: "biology",
		Topics: []Topic{
			{ID: "cells", Items: []string{"Cell structure", "Mitosis"}},
			{ID: "genetics", Items: []string{"Inheritance"}},
		},
	}
	want := []string{"biology-cells-1", "biology-cells-2", "biology-genetics-3"}
	if got := definition.ItemKeys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected item keys: %v", got)
	}
}

func TestItemKeysEmptyChecklist(t *testing.T) {
	if got := (Checklist{Subject: "physics"}).ItemKeys(); len(got) != 0 {
		t.Fatalf("expected no keys, got %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeDefinition(t, t.TempDir(), "biology.json", biologyDoc)
	definition, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if definition.Subject != "biology" || len(definition.Topics) != 2 {
		t.Fatalf("unexpected definition: %+v", definition)
	}
	if definition.Topics[0].Items[1] != "Mitosis" {
		t.Fatalf("unexpected items: %+v", definition.Topics[0])
	}
}

func TestLoadFileRejectsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing-subject.json": `{"topics": []}`,
		"empty-subject.json":   `{"subject": "", "topics": []}`,
		"missing-topic-id.json": `{
			"subject": "chemistry",
			"topics": [{"items": ["Acids"]}]
		}`,
		"non-string-item.json": `{
			"subject": "chemistry",
			"topics": [{"id": "acids", "items": [42]}]
		}`,
		"not-json.json": `{nope`,
	}
	for name, content := range cases {
		path := writeDefinition(t, dir, name, content)
		if _, err := LoadFile(path); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "biology.json", biologyDoc)
	writeDefinition(t, dir, "physics.json", `{
		"subject": "physics",
		"topics": [{"id": "waves", "items": ["Wave speed"]}]
	}`)
	writeDefinition(t, dir, "notes.txt", "not a definition")

	definitions, subjects, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if !reflect.DeepEqual(subjects, []string{"biology", "physics"}) {
		t.Fatalf("unexpected subjects: %v", subjects)
	}
	if len(definitions["biology"].ItemKeys()) != 3 {
		t.Fatalf("unexpected biology keys: %v", definitions["biology"].ItemKeys())
	}
}

func TestLoadDirFailsOnInvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "broken.json", `{"topics": []}`)
	if _, _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected LoadDir to fail on an invalid definition")
	}
}
