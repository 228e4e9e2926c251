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

// Prediction is the parsed reply for one test image.
type Prediction struct {
	Image    ImageRef
	Entities []string
}

// Batch holds the predictions of one run, in test image order, and the test
// images that were skipped for their type.
type Batch struct {
	Predictions []Prediction
	Skipped     []Skipped
}

// Classifier asks a model, once per test image, which entities it sees.
type Classifier struct {
	gen         models.StructuredGenerator
	concurrency int
	logger      *log.Logger
}

// NewClassifier wraps gen. concurrency <= 0 sends every request at once.
func NewClassifier(gen models.StructuredGenerator, concurrency int) *Classifier {
	return &Classifier{
		gen:         gen,
		concurrency: concurrency,
		logger:      log.New(os.Stderr, "fewshot: ", log.LstdFlags),
	}
}

// WithLogger overrides the default logger.
func (c *Classifier) WithLogger(logger *log.Logger) *Classifier {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *Classifier) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

type outcome struct {
	prediction Prediction
	skipped    *Skipped
}

// Classify dispatches one request per test image and waits for all of them.
// Any failure cancels the outstanding requests and fails the whole batch.
func (c *Classifier) Classify(ctx context.Context, training []models.Part, schema *EntitySchema, tests []ImageRef) (Batch, error) {
	if schema == nil {
		return Batch{}, errors.New("classify: nil schema")
	}
	response := schema.Response()

	outcomes, err := concurrent.ParallelMap(ctx, tests, func(ctx context.Context, ref ImageRef) (outcome, error) {
		return c.classifyOne(ctx, training, schema, response, ref)
	}, c.concurrency)
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	for _, o := range outcomes {
		if o.skipped != nil {
			batch.Skipped = append(batch.Skipped, *o.skipped)
			continue
		}
		batch.Predictions = append(batch.Predictions, o.prediction)
	}
	return batch, nil
}

func (c *Classifier) classifyOne(ctx context.Context, training []models.Part, schema *EntitySchema, response models.ResponseSchema, ref ImageRef) (outcome, error) {
	data, err := ref.Load()
	if err != nil {
		return outcome{}, err
	}
	f, err := sniffAccepted(ref.Name, data, func(mt string) bool { return models.Accepts(c.gen, mt) })
	if errors.Is(err, models.ErrUnsupportedMedia) {
		c.logf("warning: skipping test image %s: %v", ref, err)
		return outcome{skipped: &Skipped{Image: ref.Name, MIME: f.MIME}}, nil
	}

	parts := make([]models.Part, 0, len(training)+2)
	parts = append(parts, training...)
	parts = append(parts, models.TextPart(TestInstruction), models.FilePart(f))

	raw, err := c.gen.GenerateJSON(ctx, parts, response)
	if err != nil {
		return outcome{}, fmt.Errorf("classify %s: %w", ref.Name, err)
	}
	entities, err := schema.Parse(raw)
	if err != nil {
		return outcome{}, fmt.Errorf("classify %s: %w", ref.Name, err)
	}
	return outcome{prediction: Prediction{Image: ref, Entities: entities}}, nil
}
