package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

type OllamaGenerator struct {
	Client *ollama.Client
	Model  string
}

func NewOllamaGenerator(model string) (*OllamaGenerator, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 5 * time.Minute,
	}
	return &OllamaGenerator{Client: ollama.NewClient(u, httpClient), Model: model}, nil
}

// GenerateJSON maps every text part to a new user message and attaches the
// images that follow it, so labels stay next to their examples.
func (o *OllamaGenerator) GenerateJSON(ctx context.Context, parts []Part, schema ResponseSchema) ([]byte, error) {
	messages := ollamaMessages(parts)
	stream := false
	req := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: messages,
		Format:   schema.JSONSchema(),
		Stream:   &stream,
	}

	var text strings.Builder
	if err := o.Client.Chat(ctx, req, func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return []byte(text.String()), nil
}

func ollamaMessages(parts []Part) []ollama.Message {
	var messages []ollama.Message
	for _, p := range parts {
		if p.IsText() {
			messages = append(messages, ollama.Message{Role: "user", Content: p.Text})
			continue
		}
		if len(messages) == 0 {
			messages = append(messages, ollama.Message{Role: "user"})
		}
		last := &messages[len(messages)-1]
		last.Images = append(last.Images, ollama.ImageData(p.File.Data))
	}
	return messages
}

var _ StructuredGenerator = (*OllamaGenerator)(nil)
