package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	ollama "github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// NewProvider returns a concrete StructuredGenerator for provider.
func NewProvider(ctx context.Context, provider string, model string) (StructuredGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gemini", "google":
		return NewGeminiGenerator(ctx, model)
	case "openai":
		return NewOpenAIGenerator(model)
	case "anthropic", "claude":
		return NewAnthropicGenerator(model)
	case "ollama":
		return NewOllamaGenerator(model)
	case "dummy":
		return NewDummyGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// DefaultModel returns the model used when none is configured for provider.
func DefaultModel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic", "claude":
		return "claude-3-5-sonnet-latest"
	case "ollama":
		return "llava"
	case "dummy":
		return "dummy"
	default:
		return "gemini-2.5-flash"
	}
}

// extractJSONObject returns the outermost {...} in raw. Models without a
// native schema mode often wrap the object in prose or code fences.
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", errors.New("no JSON object start '{' in response")
	}
	end := strings.LastIndex(raw, "}")
	if end == -1 {
		return "", errors.New("no JSON object end '}' in response")
	}
	if end < start {
		return "", errors.New("malformed JSON object: '}' before '{'")
	}
	return raw[start : end+1], nil
}

// ExtractJSON is the exported form of extractJSONObject for callers that
// validate replies themselves.
func ExtractJSON(raw []byte) ([]byte, error) {
	obj, err := extractJSONObject(string(raw))
	if err != nil {
		return nil, err
	}
	return []byte(obj), nil
}

// IsTransient reports whether err looks like a temporary endpoint failure
// (rate limiting, overload or a 5xx) on any supported provider.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return transientStatus(gerr.Code)
	}
	var oerr *openai.APIError
	if errors.As(err, &oerr) {
		return transientStatus(oerr.HTTPStatusCode)
	}
	var rerr *openai.RequestError
	if errors.As(err, &rerr) {
		return transientStatus(rerr.HTTPStatusCode)
	}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return transientStatus(aerr.StatusCode)
	}
	var serr ollama.StatusError
	if errors.As(err, &serr) {
		return transientStatus(serr.StatusCode)
	}
	return false
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code >= 500 && code != http.StatusNotImplemented:
		return true
	default:
		return false
	}
}
