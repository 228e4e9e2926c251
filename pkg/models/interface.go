package models

import (
	"context"
	"encoding/json"
)

// File is an in-memory image attachment.
// Name is used for display and logging; MIME is the sniffed content type.
type File struct {
	Name string
	MIME string
	Data []byte
}

// Part is one item of a multimodal request: either text or a file.
type Part struct {
	Text string
	File *File
}

// TextPart wraps s as a text part.
func TextPart(s string) Part { return Part{Text: s} }

// FilePart wraps f as a file part.
func FilePart(f File) Part { return Part{File: &f} }

// IsText reports whether the part carries text rather than a file.
func (p Part) IsText() bool { return p.File == nil }

// ResponseSchema describes a JSON object with a single array field whose
// items are drawn from a closed set of strings.
type ResponseSchema struct {
	Name   string
	Field  string
	Values []string
}

// JSONSchema renders s as a strict JSON Schema document.
func (s ResponseSchema) JSONSchema() json.RawMessage {
	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			s.Field: map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
					"enum": s.Values,
				},
			},
		},
		"required":             []string{s.Field},
		"additionalProperties": false,
	}
	raw, _ := json.Marshal(doc)
	return raw
}

// StructuredGenerator asks a model for a JSON reply that conforms to a
// ResponseSchema. Implementations return the raw JSON text; validation is
// the caller's job.
type StructuredGenerator interface {
	GenerateJSON(ctx context.Context, parts []Part, schema ResponseSchema) ([]byte, error)
}

// MIMEFilter is implemented by generators that take only part of
// SupportedImageMIMEs.
type MIMEFilter interface {
	AcceptsMIME(mt string) bool
}

// Accepts reports whether gen takes images of type mt. Generators without a
// MIMEFilter take the whole supported set.
func Accepts(gen StructuredGenerator, mt string) bool {
	if !IsSupportedImage(mt) {
		return false
	}
	if f, ok := gen.(MIMEFilter); ok {
		return f.AcceptsMIME(mt)
	}
	return true
}
