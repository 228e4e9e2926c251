package fewshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
)

// Unidentified is reported when no known entity is recognised.
const Unidentified = "Unidentified"

const (
	schemaName  = "entity_recognition"
	schemaField = "entity"
)

var (
	// ErrInvalidEntity marks bad user input: empty, duplicate or reserved
	// entity names. It is never retried.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrSchemaViolation marks a model reply outside the closed vocabulary.
	ErrSchemaViolation = errors.New("response violates schema")
)

// EntitySchema is the closed vocabulary of one submission: the entity
// names plus Unidentified.
type EntitySchema struct {
	values []string
	index  map[string]struct{}
}

// NewEntitySchema validates names and builds the schema. Names are trimmed;
// empty, duplicate and reserved names are rejected.
func NewEntitySchema(names []string) (*EntitySchema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no entities submitted", ErrInvalidEntity)
	}
	s := &EntitySchema{
		values: make([]string, 0, len(names)+1),
		index:  make(map[string]struct{}, len(names)+1),
	}
	for i, raw := range names {
		name := strings.TrimSpace(raw)
		switch {
		case name == "":
			return nil, fmt.Errorf("%w: entity %d has an empty name", ErrInvalidEntity, i+1)
		case strings.EqualFold(name, Unidentified):
			return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidEntity, name)
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidEntity, name)
		}
		s.index[name] = struct{}{}
		s.values = append(s.values, name)
	}
	s.index[Unidentified] = struct{}{}
	s.values = append(s.values, Unidentified)
	return s, nil
}

// Values returns the accepted values: entity names in order, then Unidentified.
func (s *EntitySchema) Values() []string {
	return append([]string(nil), s.values...)
}

// Accepts reports whether v is in the closed set.
func (s *EntitySchema) Accepts(v string) bool {
	_, ok := s.index[v]
	return ok
}

// Response returns the descriptor handed to model endpoints.
func (s *EntitySchema) Response() models.ResponseSchema {
	return models.ResponseSchema{Name: schemaName, Field: schemaField, Values: s.Values()}
}

// Parse decodes a reply of the form {"entity": [...]} and checks every value
// against the set. Prose or code fences around the object are tolerated.
func (s *EntitySchema) Parse(raw []byte) ([]string, error) {
	obj, err := models.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	var reply map[string]json.RawMessage
	if err := json.Unmarshal(obj, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	field, ok := reply[schemaField]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrSchemaViolation, schemaField)
	}
	var values []string
	if err := json.Unmarshal(field, &values); err != nil {
		return nil, fmt.Errorf("%w: field %q: %v", ErrSchemaViolation, schemaField, err)
	}
	if values == nil {
		return nil, fmt.Errorf("%w: field %q is null", ErrSchemaViolation, schemaField)
	}
	for _, v := range values {
		if !s.Accepts(v) {
			return nil, fmt.Errorf("%w: unknown value %q", ErrSchemaViolation, v)
		}
	}
	return values, nil
}
