// Few-shot image classification from the command line.
//
// Each -entity flag names one entity and the directory holding its example
// images; -test points at the directory of images to classify.
//
// Examples:
//
//	export GOOGLE_API_KEY=...   # or GEMINI_API_KEY
//	go run ./cmd/fewshot -entity cat=photos/cat -entity dog=photos/dog -test photos/unknown
//
//	go run ./cmd/fewshot -provider openai -json -entity cat=photos/cat -test photos/unknown
//
//	FEWSHOT_CONFIG=fewshot.yaml go run ./cmd/fewshot -serve -addr :8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Protocol-Lattice/go-fewshot/pkg/config"
	"github.com/Protocol-Lattice/go-fewshot/pkg/fewshot"
	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
	"github.com/Protocol-Lattice/go-fewshot/pkg/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}

	var entities entityFlags
	cfg.RegisterFlags(flag.CommandLine)
	flag.Var(&entities, "entity", "Entity as name=dir, repeatable, order is kept")
	testDir := flag.String("test", "", "Directory of images to classify")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of running once")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	logger := log.New(os.Stderr, "fewshot: ", log.LstdFlags)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := models.NewProvider(ctx, cfg.Provider, cfg.ModelID())
	if err != nil {
		fail(err)
	}
	if c, ok := gen.(io.Closer); ok {
		defer c.Close()
	}

	pipeline, err := fewshot.NewPipeline(gen, cfg.PipelineOptions(logger)...)
	if err != nil {
		fail(err)
	}

	if *serve {
		if err := runServer(ctx, cfg, pipeline, logger); err != nil {
			fail(err)
		}
		return
	}

	sub, err := entities.submission(*testDir)
	if err != nil {
		fail(err)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	report, err := pipeline.Run(runCtx, sub)
	if err != nil {
		fail(err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}
	printReport(os.Stdout, sub.Names(), report)
}

// timedRunner bounds every request by the configured timeout.
type timedRunner struct {
	pipeline *fewshot.Pipeline
	timeout  time.Duration
}

func (r timedRunner) Run(ctx context.Context, sub fewshot.Submission) (*fewshot.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.pipeline.Run(ctx, sub)
}

func runServer(ctx context.Context, cfg config.Config, pipeline *fewshot.Pipeline, logger *log.Logger) error {
	handler := server.NewHandler(timedRunner{pipeline: pipeline, timeout: cfg.Timeout}, cfg.MaxUpload).WithLogger(logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (provider=%s model=%s)", cfg.Addr, cfg.Provider, cfg.ModelID())
	logger.Println("  GET  /healthz")
	logger.Println("  POST /classify")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printReport(w io.Writer, order []string, report *fewshot.Report) {
	for _, name := range order {
		images, ok := report.Results[name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", name, strings.Join(images, ", "))
	}
	if len(report.Unmatched) > 0 {
		fmt.Fprintf(w, "%s: %s\n", fewshot.Unidentified, strings.Join(report.Unmatched, ", "))
	}
	for _, s := range report.Skipped {
		if s.Entity == "" {
			fmt.Fprintf(w, "skipped %s (%s)\n", s.Image, s.MIME)
			continue
		}
		fmt.Fprintf(w, "skipped %s of %s (%s)\n", s.Image, s.Entity, s.MIME)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
