// Package checklist loads the curriculum checklist definitions that seed the
// progress tracker. Definitions are JSON documents, one per subject, validated
// against a schema before the engine ever sees their item keys.
package checklist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Checklist is one subject's curriculum definition.
type Checklist struct {
	Subject string  `json:"subject"`
	Title   string  `json:"title,omitempty"`
	Topics  []Topic `json:"topics"`
}

type Topic struct {
	ID    string   `json:"id"`
	Title string   `json:"title,omitempty"`
	Items []string `json:"items"`
}

// ItemKeys derives the stable item keys for this checklist in document order:
// subject, topic id and a 1-based ordinal that runs across the whole subject.
func (c Checklist) ItemKeys() []string {
	keys := make([]string, 0, 64)
	ordinal := 0
	for _, topic := range c.Topics {
		for range topic.Items {
			ordinal++
			keys = append(keys, fmt.Sprintf("%s-%s-%d", c.Subject, topic.ID, ordinal))
		}
	}
	return keys
}

const definitionSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["subject", "topics"],
	"properties": {
		"subject": {"type": "string", "minLength": 1},
		"title": {"type": "string"},
		"topics": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "items"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"items": {
						"type": "array",
						"items": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchema))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("checklist.schema.json", doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("checklist.schema.json")
	})
	return compiledSchema, schemaErr
}

// LoadFile parses and validates one checklist definition.
func LoadFile(path string) (Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checklist{}, err
	}
	schema, err := compileSchema()
	if err != nil {
		return Checklist{}, fmt.Errorf("checklist schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return Checklist{}, fmt.Errorf("invalid checklist document %s: %w", path, err)
	}
	if err := schema.Validate(instance); err != nil {
		return Checklist{}, fmt.Errorf("invalid checklist document %s: %w", path, err)
	}
	var definition Checklist
	if err := json.Unmarshal(data, &definition); err != nil {
		return Checklist{}, fmt.Errorf("invalid checklist document %s: %w", path, err)
	}
	return definition, nil
}

// LoadDir loads every *.json definition in a directory, keyed by subject.
// Subjects are returned in sorted order alongside the definitions so callers
// get a deterministic registration order.
func LoadDir(dir string) (map[string]Checklist, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	definitions := map[string]Checklist{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		definition, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, nil, err
		}
		definitions[definition.Subject] = definition
	}
	subjects := make([]string, 0, len(definitions))
	for subject := range definitions {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return definitions, subjects, nil
}
