package models

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator uses the Messages API. It has no native schema mode, so
// the schema is stated in the system prompt and the reply is trimmed to its
// JSON object.
type AnthropicGenerator struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicGenerator constructs a client. It reads ANTHROPIC_API_KEY from the env.
func NewAnthropicGenerator(model string) (*AnthropicGenerator, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, errors.New("missing ANTHROPIC_API_KEY")
	}
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(key),
	)
	return &AnthropicGenerator{
		Client:    &cl,
		Model:     model,
		MaxTokens: 512,
	}, nil
}

func (a *AnthropicGenerator) GenerateJSON(ctx context.Context, parts []Part, schema ResponseSchema) ([]byte, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			continue
		}
		mt := sanitizeForAnthropic(p.File.MIME)
		if mt == "" {
			return nil, fmt.Errorf("anthropic: %s (%s): %w", p.File.Name, displayMIME(p.File.MIME), ErrUnsupportedMedia)
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mt, base64.StdEncoding.EncodeToString(p.File.Data)))
	}

	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: schemaInstruction(schema)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	obj, err := extractJSONObject(b.String())
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return []byte(obj), nil
}

// schemaInstruction spells out the response contract for models that only
// follow it by instruction.
func schemaInstruction(s ResponseSchema) string {
	return fmt.Sprintf(
		"Reply with a single JSON object and nothing else. It must match this JSON Schema:\n%s\nEvery item of %q must be one of: %s.",
		s.JSONSchema(), s.Field, strings.Join(s.Values, ", "),
	)
}

// AcceptsMIME reports whether images of type mt can be attached.
func (a *AnthropicGenerator) AcceptsMIME(mt string) bool { return sanitizeForAnthropic(mt) != "" }

var _ StructuredGenerator = (*AnthropicGenerator)(nil)
var _ MIMEFilter = (*AnthropicGenerator)(nil)
