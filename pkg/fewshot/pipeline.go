package fewshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
)

// Report is the outcome of one submission.
type Report struct {
	Results     Result       `json:"results"`
	Unmatched   []string     `json:"unmatched"`
	Skipped     []Skipped    `json:"skipped"`
	Predictions []Prediction `json:"-"`
}

// Pipeline runs a submission end to end: training content, schema, batch
// classification under a retry policy, aggregation.
type Pipeline struct {
	builder     *ContentBuilder
	generator   models.StructuredGenerator
	concurrency int
	retry       RetryPolicy
	logger      *log.Logger
}

// Option configures a Pipeline during construction.
type Option func(*Pipeline) error

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(pl *Pipeline) error {
		if p.MaxAttempts < 1 {
			return fmt.Errorf("retry policy: max attempts must be >= 1, got %d", p.MaxAttempts)
		}
		if p.Delay < 0 {
			return fmt.Errorf("retry policy: negative delay %s", p.Delay)
		}
		pl.retry = p
		return nil
	}
}

// WithConcurrency caps in-flight model requests. 0 sends them all at once.
func WithConcurrency(n int) Option {
	return func(pl *Pipeline) error {
		if n < 0 {
			return fmt.Errorf("concurrency must be >= 0, got %d", n)
		}
		pl.concurrency = n
		return nil
	}
}

// WithLogger sets the logger used by the pipeline and its components.
func WithLogger(logger *log.Logger) Option {
	return func(pl *Pipeline) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		pl.logger = logger
		return nil
	}
}

// NewPipeline wires gen into a pipeline.
func NewPipeline(gen models.StructuredGenerator, opts ...Option) (*Pipeline, error) {
	if gen == nil {
		return nil, errors.New("fewshot: nil generator")
	}
	pl := &Pipeline{
		generator: gen,
		retry:     DefaultRetryPolicy(),
		logger:    log.New(os.Stderr, "fewshot: ", log.LstdFlags),
	}
	for _, opt := range opts {
		if err := opt(pl); err != nil {
			return nil, err
		}
	}
	pl.builder = NewContentBuilder().
		WithLogger(pl.logger).
		WithAccepts(func(mt string) bool { return models.Accepts(gen, mt) })
	if pl.retry.Logger == nil {
		pl.retry.Logger = pl.logger
	}
	return pl, nil
}

// Run classifies sub.TestImages against sub.Entities. Input errors are
// returned immediately; model failures are retried per the policy.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (*Report, error) {
	sub = normalizeSubmission(sub)
	schema, err := NewEntitySchema(sub.Names())
	if err != nil {
		return nil, err
	}

	training, skipped, err := p.builder.BuildAll(ctx, sub.Entities)
	if err != nil {
		return nil, fmt.Errorf("build training content: %w", err)
	}

	classifier := NewClassifier(p.generator, p.concurrency).WithLogger(p.logger)
	batch, err := Retry(ctx, p.retry, func(ctx context.Context) (Batch, error) {
		return classifier.Classify(ctx, training, schema, sub.TestImages)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Printf("classified %d test image(s) against %d entities, %d skipped",
		len(batch.Predictions), len(sub.Entities), len(skipped)+len(batch.Skipped))

	report := &Report{
		Results:     Aggregate(batch.Predictions),
		Unmatched:   Unmatched(batch.Predictions),
		Skipped:     append(skipped, batch.Skipped...),
		Predictions: batch.Predictions,
	}
	// Empty lists render as [] rather than null.
	if report.Unmatched == nil {
		report.Unmatched = []string{}
	}
	if report.Skipped == nil {
		report.Skipped = []Skipped{}
	}
	return report, nil
}

func normalizeSubmission(sub Submission) Submission {
	entities := make([]Entity, len(sub.Entities))
	for i, e := range sub.Entities {
		entities[i] = Entity{Name: strings.TrimSpace(e.Name), Images: e.Images}
	}
	return Submission{Entities: entities, TestImages: sub.TestImages}
}
