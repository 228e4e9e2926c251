package fewshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
)

var (
	pngSig  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegSig = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	webpSig = []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00\x30\x01\x00\x9d\x01\x2a")
	heicSig = []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic\x00\x00\x00\x00")
	bmpSig  = []byte("BM\x3a\x00\x00\x00\x00\x00\x00\x00\x36\x00\x00\x00\x28\x00\x00\x00\x01\x00\x00\x00\x01\x00\x00\x00\x01\x00\x18\x00")
)

// image returns sig followed by tag so images of one type stay distinct.
func image(sig []byte, tag string) []byte {
	return append(append([]byte(nil), sig...), tag...)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func bufferLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.New(&buf, "", 0), &buf
}

// scriptedGenerator replies per query image name and can fail on demand.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   int
	replies map[string]string
	fail    func(call int, image string) error
	queries [][]models.Part
}

func (g *scriptedGenerator) GenerateJSON(ctx context.Context, parts []models.Part, schema models.ResponseSchema) ([]byte, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.queries = append(g.queries, parts)
	g.mu.Unlock()

	if len(parts) == 0 || parts[len(parts)-1].IsText() {
		return nil, errors.New("scripted: last part must be the test image")
	}
	name := parts[len(parts)-1].File.Name
	if g.fail != nil {
		if err := g.fail(call, name); err != nil {
			return nil, err
		}
	}
	reply, ok := g.replies[name]
	if !ok {
		return nil, fmt.Errorf("scripted: no reply for %s", name)
	}
	return []byte(reply), nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
