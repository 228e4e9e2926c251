package models

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"
)

type OpenAIGenerator struct {
	Client *openai.Client
	Model  string
}

// NewOpenAIGenerator reads OPENAI_API_KEY (or OPENAI_KEY) and an optional
// OPENAI_BASE_URL for compatible gateways.
func NewOpenAIGenerator(model string) (*OpenAIGenerator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	if apiKey == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	return &OpenAIGenerator{Client: openai.NewClientWithConfig(cfg), Model: model}, nil
}

func (o *OpenAIGenerator) GenerateJSON(ctx context.Context, parts []Part, schema ResponseSchema) ([]byte, error) {
	contentParts, err := openAIParts(parts)
	if err != nil {
		return nil, err
	}

	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: contentParts,
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schema.Name,
				Schema: schema.JSONSchema(),
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}
	return []byte(resp.Choices[0].Message.Content), nil
}

func openAIParts(parts []Part) ([]openai.ChatMessagePart, error) {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.IsText() {
			out = append(out, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.Text,
			})
			continue
		}
		mt := sanitizeForOpenAI(p.File.MIME)
		if mt == "" {
			return nil, fmt.Errorf("openai: %s (%s): %w", p.File.Name, displayMIME(p.File.MIME), ErrUnsupportedMedia)
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mt, base64.StdEncoding.EncodeToString(p.File.Data))
		out = append(out, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return out, nil
}

// AcceptsMIME reports whether images of type mt can be attached.
func (o *OpenAIGenerator) AcceptsMIME(mt string) bool { return sanitizeForOpenAI(mt) != "" }

var _ StructuredGenerator = (*OpenAIGenerator)(nil)
var _ MIMEFilter = (*OpenAIGenerator)(nil)
