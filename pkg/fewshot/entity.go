package fewshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageRef points at an image either on disk or already in memory.
// Bytes are only read when Load is called.
type ImageRef struct {
	Name string
	Path string
	data []byte
}

// FileRef refers to the image at path. Its name is the base name of path.
func FileRef(path string) ImageRef {
	return ImageRef{Name: filepath.Base(path), Path: path}
}

// MemoryRef wraps bytes that were already received, e.g. an upload.
func MemoryRef(name string, data []byte) ImageRef {
	return ImageRef{Name: name, data: data}
}

// Load returns the image bytes, reading Path if the ref is file-backed.
func (r ImageRef) Load() ([]byte, error) {
	if r.data != nil || r.Path == "" {
		return r.data, nil
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.Path, err)
	}
	return data, nil
}

// String returns the path for file refs and the name otherwise.
func (r ImageRef) String() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Name
}

// DirRefs lists the regular files in dir, sorted by name. Hidden files are
// skipped; subdirectories are not descended into.
func DirRefs(dir string) ([]ImageRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var refs []ImageRef
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		refs = append(refs, FileRef(filepath.Join(dir, e.Name())))
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Entity is a named subject together with its example images.
type Entity struct {
	Name   string
	Images []ImageRef
}

// Submission is the per-request state of one classification run.
type Submission struct {
	Entities   []Entity
	TestImages []ImageRef
}

// Names returns the entity names in submission order.
func (s Submission) Names() []string {
	names := make([]string, len(s.Entities))
	for i, e := range s.Entities {
		names[i] = e.Name
	}
	return names
}
