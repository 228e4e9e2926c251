package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/go-fewshot/pkg/fewshot"
	"github.com/google/uuid"
)

// MaxEntities matches the largest entity count the upload form offers.
const MaxEntities = 5

// Runner classifies one submission.
type Runner interface {
	Run(ctx context.Context, sub fewshot.Submission) (*fewshot.Report, error)
}

// Handler serves the classification API.
//
//	POST /classify  multipart form:
//	    name       repeated, one per entity, in order
//	    images.<i> files for the i-th entity (0-based)
//	    test       files to classify
//	GET  /healthz
type Handler struct {
	runner    Runner
	maxUpload int64
	logger    *log.Logger
}

func NewHandler(runner Runner, maxUpload int64) *Handler {
	return &Handler{
		runner:    runner,
		maxUpload: maxUpload,
		logger:    log.New(os.Stderr, "fewshot-http: ", log.LstdFlags),
	}
}

// WithLogger overrides the default logger.
func (h *Handler) WithLogger(logger *log.Logger) *Handler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Routes returns the API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /classify", h.Classify)
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	sub, err := submissionFromForm(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.runner.Run(r.Context(), sub)
	switch {
	case err == nil:
	case errors.Is(err, fewshot.ErrInvalidEntity):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled):
		h.logger.Printf("[%s] classification cancelled by client", id)
		return
	default:
		h.logger.Printf("[%s] classification failed: %v", id, err)
		writeError(w, http.StatusBadGateway, "classification failed")
		return
	}

	h.logger.Printf("[%s] %d entities, %d test image(s), %d unmatched",
		id, len(sub.Entities), len(sub.TestImages), len(report.Unmatched))
	writeJSON(w, http.StatusOK, report)
}

func submissionFromForm(form *multipart.Form) (fewshot.Submission, error) {
	names := form.Value["name"]
	if len(names) == 0 {
		return fewshot.Submission{}, errors.New("at least one entity name is required")
	}
	if len(names) > MaxEntities {
		return fewshot.Submission{}, fmt.Errorf("at most %d entities are supported, got %d", MaxEntities, len(names))
	}

	var sub fewshot.Submission
	for i, name := range names {
		refs, err := readFiles(form.File["images."+strconv.Itoa(i)])
		if err != nil {
			return fewshot.Submission{}, fmt.Errorf("entity %q: %w", strings.TrimSpace(name), err)
		}
		sub.Entities = append(sub.Entities, fewshot.Entity{Name: name, Images: refs})
	}

	tests, err := readFiles(form.File["test"])
	if err != nil {
		return fewshot.Submission{}, fmt.Errorf("test images: %w", err)
	}
	if len(tests) == 0 {
		return fewshot.Submission{}, errors.New("at least one test image is required")
	}
	// Results are keyed by file name.
	seen := make(map[string]bool, len(tests))
	for _, ref := range tests {
		if seen[ref.Name] {
			return fewshot.Submission{}, fmt.Errorf("duplicate test image name %q", ref.Name)
		}
		seen[ref.Name] = true
	}
	sub.TestImages = tests
	return sub, nil
}

func readFiles(headers []*multipart.FileHeader) ([]fewshot.ImageRef, error) {
	refs := make([]fewshot.ImageRef, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		refs = append(refs, fewshot.MemoryRef(fh.Filename, data))
	}
	return refs, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
