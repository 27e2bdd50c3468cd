package engine

import (
	"fmt"
	"strings"

	"sovereign/internal/domain"
)

// MaxObjectionsPerAdvisor caps how many objections one advisor may raise per
// decision.
const MaxObjectionsPerAdvisor = 2

// adviceMarkers flag advice-toned phrasing. A position states the advisor's
// own reading, it does not counsel the caller.
var adviceMarkers = []string{
	"you should",
	"you must",
	"we should",
	"i suggest",
	"i recommend",
	"my advice",
	"consider doing",
}

// ValidatePosition enforces the structural and rhetorical contract a position
// must satisfy before it is admitted to deliberation. producer is the advisor
// the position was requested from; peers are the other active advisors.
func ValidatePosition(p domain.Position, producer string, peers []string) error {
	if p.Advisor == "" {
		return fmt.Errorf("position: advisor name required")
	}
	if p.Advisor != producer {
		return fmt.Errorf("position: advisor %q does not match producer %q", p.Advisor, producer)
	}
	if !domain.ValidStance(p.Stance) {
		return fmt.Errorf("position %s: invalid stance %q", p.Advisor, p.Stance)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("position %s: confidence %v out of [0,1]", p.Advisor, p.Confidence)
	}
	claim := strings.TrimSpace(p.Claim)
	if claim == "" {
		return fmt.Errorf("position %s: claim required", p.Advisor)
	}
	if strings.Contains(claim, "?") {
		return fmt.Errorf("position %s: claim contains a question", p.Advisor)
	}
	lowered := strings.ToLower(claim)
	for _, marker := range adviceMarkers {
		if strings.Contains(lowered, marker) {
			return fmt.Errorf("position %s: advice-toned phrasing %q", p.Advisor, marker)
		}
	}
	for _, peer := range peers {
		if peer == p.Advisor {
			continue
		}
		if containsWord(lowered, strings.ToLower(peer)) {
			return fmt.Errorf("position %s: claim references advisor %q", p.Advisor, peer)
		}
	}
	for i, c := range p.BlockingConditions {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("position %s: blocking condition %d is empty", p.Advisor, i)
		}
	}
	for i, n := range p.NonNegotiables {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("position %s: non-negotiable %d is empty", p.Advisor, i)
		}
	}
	return nil
}

// ValidateObjection enforces the structural contract for one objection.
// quorum is the active advisor set; prior holds the issuing advisor's already
// accepted objections this round.
func ValidateObjection(o domain.Objection, quorum []string, prior []domain.Objection) error {
	if strings.TrimSpace(o.From) == "" {
		return fmt.Errorf("objection: from required")
	}
	if strings.TrimSpace(o.Against) == "" {
		return fmt.Errorf("objection from %s: against required", o.From)
	}
	if o.From == o.Against {
		return fmt.Errorf("objection from %s: self-objection not allowed", o.From)
	}
	if !contains(quorum, o.Against) {
		return fmt.Errorf("objection from %s: target %q not in quorum", o.From, o.Against)
	}
	if !domain.ValidSeverity(o.Severity) {
		return fmt.Errorf("objection from %s: invalid severity %q", o.From, o.Severity)
	}
	if strings.TrimSpace(o.Text) == "" {
		return fmt.Errorf("objection from %s: text required", o.From)
	}
	count := 0
	for _, p := range prior {
		if p.From != o.From {
			continue
		}
		count++
		if p.Against == o.Against {
			return fmt.Errorf("objection from %s: duplicate target %q", o.From, o.Against)
		}
	}
	if count >= MaxObjectionsPerAdvisor {
		return fmt.Errorf("objection from %s: cap of %d exceeded", o.From, MaxObjectionsPerAdvisor)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// containsWord matches name as a whole word inside text.
func containsWord(text, name string) bool {
	if name == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], name)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(name)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
