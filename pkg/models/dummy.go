package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// DummyGenerator is a deterministic, offline generator for demos and tests.
// A text part naming a schema value (e.g. "entity name: cat") opens a
// group; file parts after it are that value's examples. The last file part
// is the query: every value with a byte-identical example is reported, or
// the schema's last value when nothing matches.
type DummyGenerator struct{}

func NewDummyGenerator() *DummyGenerator { return &DummyGenerator{} }

func (d *DummyGenerator) GenerateJSON(_ context.Context, parts []Part, schema ResponseSchema) ([]byte, error) {
	if len(schema.Values) == 0 {
		return nil, errors.New("dummy: schema has no values")
	}

	query := -1
	for i := len(parts) - 1; i >= 0; i-- {
		if !parts[i].IsText() {
			query = i
			break
		}
	}
	if query == -1 {
		return nil, errors.New("dummy: no image to classify")
	}

	known := make(map[string]struct{}, len(schema.Values))
	for _, v := range schema.Values {
		known[v] = struct{}{}
	}

	var (
		current string
		matches []string
		seen    = map[string]bool{}
	)
	for _, p := range parts[:query] {
		if p.IsText() {
			current = labelValue(p.Text, known)
			continue
		}
		if current == "" || seen[current] {
			continue
		}
		if bytes.Equal(p.File.Data, parts[query].File.Data) {
			matches = append(matches, current)
			seen[current] = true
		}
	}
	if len(matches) == 0 {
		matches = []string{schema.Values[len(schema.Values)-1]}
	}
	return json.Marshal(map[string][]string{schema.Field: matches})
}

// labelValue returns the schema value named after the first colon of text.
func labelValue(text string, known map[string]struct{}) string {
	i := strings.IndexByte(text, ':')
	if i < 0 {
		return ""
	}
	name := strings.TrimSpace(text[i+1:])
	if _, ok := known[name]; ok {
		return name
	}
	return ""
}

var _ StructuredGenerator = (*DummyGenerator)(nil)
