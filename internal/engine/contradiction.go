package engine

import (
	"fmt"
	"sort"
	"strings"

	"sovereign/internal/domain"
)

// feasibilityConfidenceFloor flags positions that declare viability while
// barely believing it.
const feasibilityConfidenceFloor = 0.4

// pairRule fires when one position's text matches groupA and another's
// matches groupB. Detection is deliberately conservative: both texts must
// carry matching evidence, nothing is inferred.
type pairRule struct {
	Type     domain.ContradictionType
	Severity domain.Severity
	GroupA   []string
	GroupB   []string
}

// pairRules is the closed, extensible rule set. Adding a contradiction class
// means adding a rule here, not training anything.
var pairRules = []pairRule{
	{
		Type:     domain.ContradictionStrategySurvival,
		Severity: domain.SeverityHigh,
		GroupA:   []string{"expand", "attack", "aggressive", "double down", "all in", "escalate"},
		GroupB:   []string{"survival", "ruin", "existential", "fatal", "irrecoverable", "wipe out"},
	},
	{
		Type:     domain.ContradictionPowerLegitimacy,
		Severity: domain.SeverityMedium,
		GroupA:   []string{"leverage", "force", "dominate", "coerce", "seize"},
		GroupB:   []string{"legitimacy", "reputation", "trust", "ethics", "consent"},
	},
	{
		Type:     domain.ContradictionSpeedReversibility,
		Severity: domain.SeverityMedium,
		GroupA:   []string{"immediately", "now", "rush", "urgent", "before the window"},
		GroupB:   []string{"irreversible", "cannot undo", "one-way", "permanent", "no way back"},
	},
	{
		Type:     domain.ContradictionDesireTrajectory,
		Severity: domain.SeverityLow,
		GroupA:   []string{"want", "desire", "ambition", "aspire"},
		GroupB:   []string{"trend", "trajectory", "declining", "headed", "momentum"},
	},
}

// viabilityMarkers are claims of feasibility checked against stated
// confidence.
var viabilityMarkers = []string{"viable", "feasible", "achievable", "workable"}

// DetectContradictions scans all position pairs plus each position's internal
// consistency. Results are advisory annotations; they never alter the
// adjudication table. Output order is deterministic.
func DetectContradictions(positions []domain.Position) []domain.Contradiction {
	sorted := make([]domain.Position, len(positions))
	copy(sorted, positions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Advisor < sorted[j].Advisor })

	var found []domain.Contradiction
	for _, p := range sorted {
		if c, ok := internalMismatch(p); ok {
			found = append(found, c)
		}
	}
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			found = append(found, pairContradictions(sorted[i], sorted[j])...)
		}
	}
	return found
}

func internalMismatch(p domain.Position) (domain.Contradiction, bool) {
	text := positionText(p)
	for _, marker := range viabilityMarkers {
		if strings.Contains(text, marker) && p.Confidence < feasibilityConfidenceFloor {
			return domain.Contradiction{
				Type:     domain.ContradictionFeasibility,
				Severity: domain.SeverityMedium,
				Advisors: []string{p.Advisor},
				Detail:   fmt.Sprintf("%s calls the move %q at confidence %.2f", p.Advisor, marker, p.Confidence),
			}, true
		}
	}
	return domain.Contradiction{}, false
}

func pairContradictions(a, b domain.Position) []domain.Contradiction {
	textA := positionText(a)
	textB := positionText(b)
	var out []domain.Contradiction
	for _, rule := range pairRules {
		if matchesAny(textA, rule.GroupA) && matchesAny(textB, rule.GroupB) {
			out = append(out, contradiction(rule, a.Advisor, b.Advisor))
		} else if matchesAny(textB, rule.GroupA) && matchesAny(textA, rule.GroupB) {
			out = append(out, contradiction(rule, b.Advisor, a.Advisor))
		}
	}
	return out
}

func contradiction(rule pairRule, first, second string) domain.Contradiction {
	advisors := []string{first, second}
	sort.Strings(advisors)
	return domain.Contradiction{
		Type:     rule.Type,
		Severity: rule.Severity,
		Advisors: advisors,
		Detail:   fmt.Sprintf("%s and %s pull in structurally opposed directions (%s)", advisors[0], advisors[1], rule.Type),
	}
}

func positionText(p domain.Position) string {
	parts := append([]string{p.Claim}, p.BlockingConditions...)
	parts = append(parts, p.NonNegotiables...)
	return strings.ToLower(strings.Join(parts, " "))
}

func matchesAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
