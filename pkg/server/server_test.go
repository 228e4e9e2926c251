package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"github.com/Protocol-Lattice/go-fewshot/pkg/fewshot"
	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
	"github.com/google/uuid"
)

var (
	catPNG  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00cat")
	dogJPEG = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00dog")
)

type upload struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, names []string, files []upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, n := range names {
		if err := mw.WriteField("name", n); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type runnerFunc func(ctx context.Context, sub fewshot.Submission) (*fewshot.Report, error)

func (f runnerFunc) Run(ctx context.Context, sub fewshot.Submission) (*fewshot.Report, error) {
	return f(ctx, sub)
}

func quietHandler(r Runner, maxUpload int64) http.Handler {
	return NewHandler(r, maxUpload).WithLogger(log.New(io.Discard, "", 0)).Routes()
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	quietHandler(nil, 1<<20).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestClassifyEndToEnd(t *testing.T) {
	pipeline, err := fewshot.NewPipeline(models.NewDummyGenerator(), fewshot.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	req := multipartRequest(t, []string{"cat", "dog"}, []upload{
		{"images.0", "c1.png", catPNG},
		{"images.1", "d1.jpg", dogJPEG},
		{"test", "t1.png", catPNG},
		{"test", "t2.jpg", dogJPEG},
		{"test", "t3.png", append(append([]byte(nil), catPNG...), 'x')},
	})
	rec := httptest.NewRecorder()
	quietHandler(pipeline, 1<<20).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	var got struct {
		Results   map[string][]string `json:"results"`
		Unmatched []string            `json:"unmatched"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := map[string][]string{"cat": {"t1.png"}, "dog": {"t2.jpg"}}
	if !reflect.DeepEqual(got.Results, want) {
		t.Fatalf("results = %v, want %v", got.Results, want)
	}
	if !reflect.DeepEqual(got.Unmatched, []string{"t3.png"}) {
		t.Fatalf("unmatched = %v", got.Unmatched)
	}
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Fatalf("expected a generated request id, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestClassifyEchoesRequestID(t *testing.T) {
	runner := runnerFunc(func(context.Context, fewshot.Submission) (*fewshot.Report, error) {
		return &fewshot.Report{Results: fewshot.Result{}}, nil
	})
	req := multipartRequest(t, []string{"cat"}, []upload{{"test", "q.png", catPNG}})
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	quietHandler(runner, 1<<20).ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}

func TestClassifyPassesEntitiesInOrder(t *testing.T) {
	var seen fewshot.Submission
	runner := runnerFunc(func(_ context.Context, sub fewshot.Submission) (*fewshot.Report, error) {
		seen = sub
		return &fewshot.Report{Results: fewshot.Result{}}, nil
	})
	req := multipartRequest(t, []string{"b", "a"}, []upload{
		{"images.1", "a1.png", catPNG},
		{"images.1", "a2.png", catPNG},
		{"test", "q.jpg", dogJPEG},
	})
	rec := httptest.NewRecorder()
	quietHandler(runner, 1<<20).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := seen.Names(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("names = %v", got)
	}
	if len(seen.Entities[0].Images) != 0 || len(seen.Entities[1].Images) != 2 {
		t.Fatalf("unexpected image split: %+v", seen.Entities)
	}
	if len(seen.TestImages) != 1 || seen.TestImages[0].Name != "q.jpg" {
		t.Fatalf("unexpected test images: %+v", seen.TestImages)
	}
}

func TestClassifyRejectsBadForms(t *testing.T) {
	called := false
	runner := runnerFunc(func(context.Context, fewshot.Submission) (*fewshot.Report, error) {
		called = true
		return &fewshot.Report{}, nil
	})
	six := make([]string, MaxEntities+1)
	for i := range six {
		six[i] = "e" + strconv.Itoa(i)
	}
	cases := []struct {
		name  string
		names []string
		files []upload
	}{
		{"no entities", nil, []upload{{"test", "q.png", catPNG}}},
		{"too many entities", six, []upload{{"test", "q.png", catPNG}}},
		{"no test images", []string{"cat"}, []upload{{"images.0", "c.png", catPNG}}},
		{"duplicate test names", []string{"cat"}, []upload{{"test", "q.png", catPNG}, {"test", "q.png", dogJPEG}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			quietHandler(runner, 1<<20).ServeHTTP(rec, multipartRequest(t, tc.names, tc.files))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
	if called {
		t.Fatalf("runner must not be called for bad forms")
	}
}

func TestClassifyRejectsOversizedUpload(t *testing.T) {
	req := multipartRequest(t, []string{"cat"}, []upload{{"test", "big.png", bytes.Repeat([]byte{'x'}, 4096)}})
	rec := httptest.NewRecorder()
	quietHandler(runnerFunc(nil), 512).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge && rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestClassifyMapsRunnerErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid entity", fewshot.ErrInvalidEntity, http.StatusBadRequest},
		{"model failure", &fewshot.RetryError{Attempts: 3, Err: errors.New("quota")}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := runnerFunc(func(context.Context, fewshot.Submission) (*fewshot.Report, error) {
				return nil, tc.err
			})
			req := multipartRequest(t, []string{"cat"}, []upload{{"test", "q.png", catPNG}})
			rec := httptest.NewRecorder()
			quietHandler(runner, 1<<20).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	quietHandler(nil, 1<<20).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/classify", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: status=%d headers=%v", rec.Code, rec.Header())
	}
}

func TestClassifyCancelledDuringRetryWaitWritesNoError(t *testing.T) {
	runner := runnerFunc(func(context.Context, fewshot.Submission) (*fewshot.Report, error) {
		return nil, &fewshot.RetryError{Attempts: 1, Err: errors.Join(errors.New("503"), context.Canceled)}
	})
	req := multipartRequest(t, []string{"cat"}, []upload{{"test", "q.png", catPNG}})
	rec := httptest.NewRecorder()
	quietHandler(runner, 1<<20).ServeHTTP(rec, req)
	if rec.Code == http.StatusBadGateway || rec.Body.Len() != 0 {
		t.Fatalf("cancelled request must not be reported as a failure: %d %s", rec.Code, rec.Body.String())
	}
}
