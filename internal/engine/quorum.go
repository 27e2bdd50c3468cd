package engine

import (
	"sort"
	"strings"

	"sovereign/internal/config"
)

// QuorumClassifier decides which advisors a decision question activates. The
// core treats the result as an opaque name list filtered against the
// configured council; richer classifiers (a model, a human) can be plugged in
// from outside.
type QuorumClassifier interface {
	Activate(question string) []string
}

// KeywordQuorum activates advisors whose configured keywords or domains
// appear in the question text. The bundled default classifier.
type KeywordQuorum struct {
	Advisors map[string]config.Advisor
}

// Activate returns the activated advisor names, sorted.
func (q KeywordQuorum) Activate(question string) []string {
	text := strings.ToLower(question)
	var active []string
	for name, a := range q.Advisors {
		if activates(text, a) {
			active = append(active, name)
		}
	}
	sort.Strings(active)
	return active
}

func activates(text string, a config.Advisor) bool {
	for _, kw := range a.Keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	for _, d := range a.Domains {
		if d != "" && strings.Contains(text, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// StaticQuorum always returns the same advisor list. Useful for tests and for
// callers that resolve the quorum elsewhere.
type StaticQuorum []string

func (q StaticQuorum) Activate(string) []string {
	out := make([]string, len(q))
	copy(out, q)
	sort.Strings(out)
	return out
}
