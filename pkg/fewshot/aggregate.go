package fewshot

import "sort"

// Result maps an entity name to the test images it was recognised in.
// Entities recognised nowhere are absent.
type Result map[string][]string

// Entities returns the keys of r in sorted order.
func (r Result) Entities() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aggregate inverts predictions into a Result, keeping test image order
// within each entity. Unidentified is not an entity and never becomes a key.
func Aggregate(predictions []Prediction) Result {
	out := make(Result)
	for _, p := range predictions {
		for _, e := range p.Entities {
			if e == Unidentified {
				continue
			}
			out[e] = append(out[e], p.Image.Name)
		}
	}
	return out
}

// Unmatched lists the images in which no entity was recognised.
func Unmatched(predictions []Prediction) []string {
	var out []string
	for _, p := range predictions {
		matched := false
		for _, e := range p.Entities {
			if e != Unidentified {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, p.Image.Name)
		}
	}
	return out
}
