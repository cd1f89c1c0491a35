package internal

import (
	"testing"

	"SigHunter/internal/engine"
)

func TestThresholds_Flagged(t *testing.T) {
	cases := []struct {
		min, max, n int
		want        bool
	}{
		{0, 0, 0, false},
		{0, 0, 1, true},
		{0, 0, 50, true},
		{1, 0, 1, true},
		{2, 0, 1, false},
		{2, 0, 2, true},
		{0, 3, 3, true},
		{0, 3, 4, false},
		{2, 3, 1, false},
		{2, 3, 2, true},
		{2, 3, 3, true},
		{2, 3, 4, false},
	}
	for _, c := range cases {
		th := Thresholds{MinMatches: c.min, MaxMatches: c.max}
		if got := th.Flagged(c.n); got != c.want {
			t.Errorf("min=%d max=%d n=%d: got %v want %v", c.min, c.max, c.n, got, c.want)
		}
	}
}

func TestRuleFeedback_DefaultDescription(t *testing.T) {
	res := engine.Matches{
		{Identifier: "A", Metadata: map[string]string{"description": "first"}},
		{Identifier: "B"},
	}
	fb := ruleFeedback(res)
	if len(fb) != 2 {
		t.Fatalf("want 2, got %d", len(fb))
	}
	if fb[0].Description != "first" {
		t.Errorf("unexpected description %q", fb[0].Description)
	}
	if fb[1].Description != engine.DefaultDescription {
		t.Errorf("missing description should default, got %q", fb[1].Description)
	}
}
