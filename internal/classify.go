package internal

import "SigHunter/internal/engine"

// Thresholds is the match-count window inside which a file is flagged.
type Thresholds struct {
	// MinMatches of 0 is treated as 1: a file must match at least one rule.
	MinMatches int
	// MaxMatches of 0 disables the upper bound.
	MaxMatches int
}

func (t Thresholds) effectiveMin() int {
	if t.MinMatches <= 0 {
		return 1
	}
	return t.MinMatches
}

// Flagged reports whether n matched rules make a file notable.
func (t Thresholds) Flagged(n int) bool {
	return n >= t.effectiveMin() && (t.MaxMatches <= 0 || n <= t.MaxMatches)
}

// ruleFeedback converts matched rules into name/description pairs.
func ruleFeedback(res engine.MatchResult) []RuleFeedback {
	rules := res.MatchedRules()
	out := make([]RuleFeedback, 0, len(rules))
	for _, r := range rules {
		out = append(out, RuleFeedback{Name: r.Identifier, Description: r.Description()})
	}
	return out
}
