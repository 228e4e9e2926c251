package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedMedia is returned for images whose type is outside the
// supported set.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// SupportedImageMIMEs is the closed set of image encodings the pipeline
// sends to a model.
var SupportedImageMIMEs = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/heic",
	"image/heif",
}

var mimeAliasMap = map[string]string{
	"image/jpg":           "image/jpeg",
	"image/pjpeg":         "image/jpeg",
	"image/x-png":         "image/png",
	"image/heic-sequence": "image/heic",
	"image/heif-sequence": "image/heif",
}

// DetectMIME sniffs the content type of data. The file extension is never
// trusted: a .png holding text is reported as text.
func DetectMIME(data []byte) string {
	return normalizeMIME(mimetype.Detect(data).String())
}

// IsSupportedImage reports whether mt is one of SupportedImageMIMEs.
func IsSupportedImage(mt string) bool {
	mt = normalizeMIME(mt)
	for _, s := range SupportedImageMIMEs {
		if mt == s {
			return true
		}
	}
	return false
}

// SniffImage reads the type of data and returns a File ready to attach.
// Unsupported types yield ErrUnsupportedMedia and the detected MIME.
func SniffImage(name string, data []byte) (File, error) {
	mt := DetectMIME(data)
	f := File{Name: name, MIME: mt, Data: data}
	if !IsSupportedImage(mt) {
		return f, fmt.Errorf("%s (%s): %w", name, displayMIME(mt), ErrUnsupportedMedia)
	}
	return f, nil
}

func displayMIME(mt string) string {
	if mt == "" {
		return "unknown"
	}
	return mt
}

// normalizeMIME lowercases mt, drops parameters and folds aliases.
func normalizeMIME(mt string) string {
	raw := strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	for strings.HasPrefix(raw, "image/image/") {
		raw = "image/" + strings.TrimPrefix(raw, "image/image/")
	}
	if normalized, ok := mimeAliasMap[raw]; ok {
		return normalized
	}
	return raw
}

// sanitizeForGemini returns the MIME Gemini accepts for mt, or "" to reject.
func sanitizeForGemini(mt string) string {
	mt = normalizeMIME(mt)
	if IsSupportedImage(mt) {
		return mt
	}
	return ""
}

// sanitizeForOpenAI returns the MIME OpenAI accepts for mt, or "" to reject.
// OpenAI vision does not take HEIC/HEIF.
func sanitizeForOpenAI(mt string) string {
	switch mt = normalizeMIME(mt); mt {
	case "image/png", "image/jpeg", "image/webp":
		return mt
	default:
		return ""
	}
}

// sanitizeForAnthropic returns the MIME Anthropic accepts for mt, or "" to reject.
func sanitizeForAnthropic(mt string) string {
	switch mt = normalizeMIME(mt); mt {
	case "image/png", "image/jpeg", "image/webp":
		return mt
	default:
		return ""
	}
}
