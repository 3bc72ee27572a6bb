package mode

import (
	"testing"
	"time"
)

func validDefinition() Definition {
	return Definition{
		ID:                    "summarizing",
		Name:                  "Summarizing",
		Category:              CategoryAnalytical,
		Keywords:              []string{"summarize", "summary"},
		Triggers:              []string{"summarize this"},
		Priority:              8,
		Timeout:               5 * time.Second,
		MaxConcurrentSessions: 25,
	}
}

func TestDefinitionValidate(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"empty id", func(d *Definition) { d.ID = "  " }},
		{"empty name", func(d *Definition) { d.Name = "" }},
		{"bad category", func(d *Definition) { d.Category = "mystic" }},
		{"negative priority", func(d *Definition) { d.Priority = -1 }},
		{"zero timeout", func(d *Definition) { d.Timeout = 0 }},
		{"zero capacity", func(d *Definition) { d.MaxConcurrentSessions = 0 }},
	}
	for _, tc := range cases {
		d := validDefinition()
		tc.mutate(&d)
		if err := d.Validate(); err == nil {
			t.Errorf("%s: expected validation error, got nil", tc.name)
		}
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		if !c.Valid() {
			t.Errorf("category %q from Categories() reported invalid", c)
		}
	}
	if Category("poetic").Valid() {
		t.Error("unknown category reported valid")
	}
}

func TestTriggerValid(t *testing.T) {
	if !TriggerManual.Valid() || !TriggerAutomatic.Valid() {
		t.Error("known trigger kinds reported invalid")
	}
	if Trigger("accidental").Valid() {
		t.Error("unknown trigger reported valid")
	}
}

func TestClampConfidence(t *testing.T) {
	nan := func() float64 {
		zero := 0.0
		return zero / zero
	}()
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{3.7, 1},
		{nan, 0},
	}
	for _, tc := range cases {
		if got := ClampConfidence(tc.in); got != tc.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewFitnessClamps(t *testing.T) {
	f := NewFitness(1.8, "keyword hit")
	if f.Confidence != 1 {
		t.Errorf("confidence not clamped: %v", f.Confidence)
	}
	if len(f.Reasons) != 1 || f.Reasons[0] != "keyword hit" {
		t.Errorf("reasons not preserved: %v", f.Reasons)
	}
}

func TestContextWithConfidenceCopies(t *testing.T) {
	orig := Context{
		SessionID: "s1",
		Input:     "summarize this",
		Timestamp: time.Now(),
	}
	derived := orig.WithConfidence(0.9)
	if orig.Confidence != 0 {
		t.Errorf("WithConfidence mutated the receiver: %v", orig.Confidence)
	}
	if derived.Confidence != 0.9 {
		t.Errorf("derived confidence = %v, want 0.9", derived.Confidence)
	}
	if derived.SessionID != orig.SessionID || derived.Input != orig.Input {
		t.Error("derived context lost fields")
	}
}

func TestCloneMetadata(t *testing.T) {
	if CloneMetadata(nil) != nil {
		t.Error("nil metadata should stay nil")
	}
	src := map[string]string{"origin": "cli"}
	dst := CloneMetadata(src)
	dst["origin"] = "test"
	if src["origin"] != "cli" {
		t.Error("clone aliases the source map")
	}
}

func TestFailf(t *testing.T) {
	r := Failf("template %s missing", "header")
	if r.Success {
		t.Error("Failf produced a successful result")
	}
	if r.Output != "template header missing" {
		t.Errorf("unexpected output: %q", r.Output)
	}
}

func TestSortDefinitions(t *testing.T) {
	defs := []Definition{
		{ID: "b", Priority: 5},
		{ID: "a", Priority: 5},
		{ID: "c", Priority: 9},
	}
	SortDefinitions(defs)
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if defs[i].ID != id {
			t.Fatalf("order[%d] = %q, want %q (full: %+v)", i, defs[i].ID, id, defs)
		}
	}
}
