package fewshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/Protocol-Lattice/go-fewshot/pkg/concurrent"
	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
)

// Skipped records an image left out because its type is not supported.
type Skipped struct {
	Entity string `json:"entity,omitempty"`
	Image  string `json:"image"`
	MIME   string `json:"mime"`
}

// EntityContent is the training sequence of one entity: its label followed
// by one part per supported image.
type EntityContent struct {
	Entity  string
	Parts   []models.Part
	Skipped []Skipped
}

// ContentBuilder turns entities into labelled training parts.
type ContentBuilder struct {
	logger  *log.Logger
	accepts func(mt string) bool
}

func NewContentBuilder() *ContentBuilder {
	return &ContentBuilder{logger: log.New(os.Stderr, "fewshot: ", log.LstdFlags)}
}

// WithLogger overrides the default logger.
func (b *ContentBuilder) WithLogger(logger *log.Logger) *ContentBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithAccepts narrows the supported image types to those accepts allows,
// typically the ones the target model takes.
func (b *ContentBuilder) WithAccepts(accepts func(mt string) bool) *ContentBuilder {
	b.accepts = accepts
	return b
}

func (b *ContentBuilder) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}

// Build reads every image of e, keeps the supported ones in order and
// prefixes them with the entity label. Unreadable files fail the build.
func (b *ContentBuilder) Build(ctx context.Context, e Entity) (EntityContent, error) {
	out := EntityContent{
		Entity: e.Name,
		Parts:  []models.Part{models.TextPart(entityLabel(e.Name))},
	}
	for _, ref := range e.Images {
		if err := ctx.Err(); err != nil {
			return EntityContent{}, err
		}
		data, err := ref.Load()
		if err != nil {
			return EntityContent{}, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		f, err := sniffAccepted(ref.Name, data, b.accepts)
		if errors.Is(err, models.ErrUnsupportedMedia) {
			b.logf("warning: entity %q: skipping %s: %v", e.Name, ref, err)
			out.Skipped = append(out.Skipped, Skipped{Entity: e.Name, Image: ref.Name, MIME: f.MIME})
			continue
		}
		out.Parts = append(out.Parts, models.FilePart(f))
	}
	if len(out.Parts) == 1 {
		b.logf("warning: entity %q has no usable images; only its name is sent", e.Name)
	}
	return out, nil
}

// sniffAccepted is SniffImage that also refuses types accepts rejects.
func sniffAccepted(name string, data []byte, accepts func(string) bool) (models.File, error) {
	f, err := models.SniffImage(name, data)
	if err == nil && accepts != nil && !accepts(f.MIME) {
		err = fmt.Errorf("%s (%s) not accepted by the model: %w", name, f.MIME, models.ErrUnsupportedMedia)
	}
	return f, err
}

// BuildAll builds every entity independently and concatenates the results,
// in entity order, after InstructionPrompt.
func (b *ContentBuilder) BuildAll(ctx context.Context, entities []Entity) ([]models.Part, []Skipped, error) {
	built, err := concurrent.ParallelMap(ctx, entities, b.Build, 0)
	if err != nil {
		return nil, nil, err
	}
	parts := []models.Part{models.TextPart(InstructionPrompt)}
	var skipped []Skipped
	for _, c := range built {
		parts = append(parts, c.Parts...)
		skipped = append(skipped, c.Skipped...)
	}
	return parts, skipped, nil
}
