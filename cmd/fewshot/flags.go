package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/go-fewshot/pkg/fewshot"
)

type entityDir struct {
	name, dir string
}

// entityFlags collects repeated -entity name=dir values.
type entityFlags []entityDir

func (f *entityFlags) String() string {
	parts := make([]string, len(*f))
	for i, e := range *f {
		parts[i] = e.name + "=" + e.dir
	}
	return strings.Join(parts, ",")
}

func (f *entityFlags) Set(v string) error {
	name, dir, ok := strings.Cut(v, "=")
	name, dir = strings.TrimSpace(name), strings.TrimSpace(dir)
	if !ok || name == "" || dir == "" {
		return fmt.Errorf("want name=dir, got %q", v)
	}
	*f = append(*f, entityDir{name: name, dir: dir})
	return nil
}

func (f entityFlags) submission(testDir string) (fewshot.Submission, error) {
	if len(f) == 0 {
		return fewshot.Submission{}, errors.New("at least one -entity is required")
	}
	if strings.TrimSpace(testDir) == "" {
		return fewshot.Submission{}, errors.New("-test is required")
	}

	var sub fewshot.Submission
	for _, e := range f {
		refs, err := fewshot.DirRefs(e.dir)
		if err != nil {
			return fewshot.Submission{}, fmt.Errorf("entity %s: %w", e.name, err)
		}
		sub.Entities = append(sub.Entities, fewshot.Entity{Name: e.name, Images: refs})
	}
	tests, err := fewshot.DirRefs(testDir)
	if err != nil {
		return fewshot.Submission{}, fmt.Errorf("test images: %w", err)
	}
	if len(tests) == 0 {
		return fewshot.Submission{}, fmt.Errorf("no images in %s", testDir)
	}
	sub.TestImages = tests
	return sub, nil
}
