package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

type GeminiGenerator struct {
	Client *genai.Client
	Model  string
}

func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY, GEMINI_API_KEY or API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiGenerator{Client: client, Model: model}, nil
}

// GenerateJSON sends parts in order and asks Gemini for application/json
// constrained by schema.
func (g *GeminiGenerator) GenerateJSON(ctx context.Context, parts []Part, schema ResponseSchema) ([]byte, error) {
	model := g.Client.GenerativeModel(g.Model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema(schema)

	gparts := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			gparts = append(gparts, genai.Text(p.Text))
			continue
		}
		mt := sanitizeForGemini(p.File.MIME)
		if mt == "" {
			return nil, fmt.Errorf("gemini: %s (%s): %w", p.File.Name, displayMIME(p.File.MIME), ErrUnsupportedMedia)
		}
		gparts = append(gparts, genai.Blob{MIMEType: mt, Data: p.File.Data})
	}

	resp, err := model.GenerateContent(ctx, gparts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: empty response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return nil, errors.New("gemini: response has no text part")
	}
	return []byte(b.String()), nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.Client.Close()
}

func geminiSchema(s ResponseSchema) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			s.Field: {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:   genai.TypeString,
					Format: "enum",
					Enum:   append([]string(nil), s.Values...),
				},
			},
		},
		Required: []string{s.Field},
	}
}

// AcceptsMIME reports whether images of type mt can be attached.
func (g *GeminiGenerator) AcceptsMIME(mt string) bool { return sanitizeForGemini(mt) != "" }

var _ StructuredGenerator = (*GeminiGenerator)(nil)
var _ MIMEFilter = (*GeminiGenerator)(nil)
