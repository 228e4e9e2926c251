package fewshot

import (
	"reflect"
	"testing"
)

func predictions(pairs ...any) []Prediction {
	var out []Prediction
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, Prediction{Image: MemoryRef(pairs[i].(string), nil), Entities: pairs[i+1].([]string)})
	}
	return out
}

func TestAggregateScenario(t *testing.T) {
	preds := predictions(
		"t1.png", []string{"cat"},
		"t2.jpg", []string{"cat", "dog"},
		"t3.webp", []string{Unidentified},
	)
	got := Aggregate(preds)
	want := Result{"cat": {"t1.png", "t2.jpg"}, "dog": {"t2.jpg"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Aggregate = %v, want %v", got, want)
	}
	if u := Unmatched(preds); !reflect.DeepEqual(u, []string{"t3.webp"}) {
		t.Fatalf("Unmatched = %v", u)
	}
}

func TestAggregateOmitsEntitiesWithoutMatches(t *testing.T) {
	preds := predictions(
		"a.png", []string{"dog"},
		"b.png", []string{},
		"c.png", []string{"dog", Unidentified},
	)
	got := Aggregate(preds)
	if _, ok := got["cat"]; ok {
		t.Fatalf("unmatched entity must be absent: %v", got)
	}
	if _, ok := got[Unidentified]; ok {
		t.Fatalf("Unidentified must not become a key: %v", got)
	}
	if !reflect.DeepEqual(got.Entities(), []string{"dog"}) {
		t.Fatalf("Entities() = %v", got.Entities())
	}
	if u := Unmatched(preds); !reflect.DeepEqual(u, []string{"b.png"}) {
		t.Fatalf("Unmatched = %v", u)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
	if Unmatched(nil) != nil {
		t.Fatalf("expected nil unmatched list")
	}
}

func TestResultEntitiesSorted(t *testing.T) {
	r := Result{"zebra": {"a"}, "ant": {"b"}, "mole": {"c"}}
	if got := r.Entities(); !reflect.DeepEqual(got, []string{"ant", "mole", "zebra"}) {
		t.Fatalf("Entities() = %v", got)
	}
}
