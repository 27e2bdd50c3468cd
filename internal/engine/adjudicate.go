package engine

import (
	"fmt"
	"sort"

	"sovereign/internal/domain"
)

// weakOpposeCeiling is the summed OPPOSE weight below which opposition does
// not block weak consensus.
const weakOpposeCeiling = 0.6

// VerdictContractError marks a verdict that violates its own shape contract.
// It indicates the adjudicator itself is broken; never recoverable.
type VerdictContractError struct {
	Msg string
}

func (e VerdictContractError) Error() string {
	return "verdict contract violation: " + e.Msg
}

// Adjudicate runs the deterministic decision table over validated positions,
// objections and precomputed weights. Rules are evaluated strictly in order,
// short-circuiting on the first match. Given identical inputs the output is
// byte-identical: every set is sorted before it is emitted and no clock,
// randomness or map-iteration order reaches the table.
func Adjudicate(positions []domain.Position, objections []domain.Objection, weights map[string]float64, w Weighting, riskSentinel string) (domain.Verdict, error) {
	byAdvisor := make(map[string]domain.Position, len(positions))
	order := make([]string, 0, len(positions))
	for _, p := range positions {
		byAdvisor[p.Advisor] = p
		order = append(order, p.Advisor)
	}
	sort.Strings(order)

	var dominant []string
	for _, name := range order {
		if w.Dominant(weights[name]) {
			dominant = append(dominant, name)
		}
	}

	// 1. Veto: the risk sentinel standing dominant in opposition ends it.
	if riskSentinel != "" {
		if p, ok := byAdvisor[riskSentinel]; ok && p.Stance == domain.StanceOppose && w.Dominant(weights[riskSentinel]) {
			return validated(domain.Verdict{
				Verdict: domain.VerdictNoAction,
				Reason:  fmt.Sprintf("Risk veto by %s (weight %.2f)", riskSentinel, weights[riskSentinel]),
			}, byAdvisor)
		}
	}

	// 2. Deadlock: dominant advisors split between SUPPORT and OPPOSE.
	if stanceAmong(byAdvisor, dominant, domain.StanceSupport) && stanceAmong(byAdvisor, dominant, domain.StanceOppose) {
		shared := intersectNonNegotiables(byAdvisor, dominant)
		if len(shared) == 0 {
			return validated(domain.Verdict{
				Verdict: domain.VerdictNoAction,
				Reason:  "deadlock among dominant advisors with no shared non-negotiables",
			}, byAdvisor)
		}
		// Shared ground exists; fall through to conditional resolution.
	} else if !stanceAmong(byAdvisor, dominant, domain.StanceOppose) {
		// 3. Weak consensus: no dominant opposition and total opposing
		// weight below the ceiling.
		opposing := 0.0
		for _, name := range order {
			if byAdvisor[name].Stance == domain.StanceOppose {
				opposing += weights[name]
			}
		}
		if opposing < weakOpposeCeiling {
			supporters := advisorsWithStance(byAdvisor, order, domain.StanceSupport, domain.StanceConditional)
			if len(supporters) > 0 {
				return validated(domain.Verdict{
					Verdict:           domain.VerdictProceed,
					DominantMinisters: supporters,
				}, byAdvisor)
			}
		}
	}

	// 4. Conditional resolution: dominant support plus standing objections
	// resolve into a condition set.
	dominantSupport := filterStance(byAdvisor, dominant, domain.StanceSupport, domain.StanceConditional)
	if len(dominantSupport) > 0 && len(objections) > 0 {
		conditions := unionNonNegotiables(byAdvisor, dominantSupport)
		conditions = append(conditions, objectionConditionHints(objections)...)
		conditions = dedupeSorted(conditions)
		if len(conditions) > 0 {
			return validated(domain.Verdict{
				Verdict:           domain.VerdictProceedIf,
				DominantMinisters: dominantSupport,
				Conditions:        conditions,
			}, byAdvisor)
		}
	}

	// 5. Default: silence over an unsafe guess.
	return validated(domain.Verdict{
		Verdict: domain.VerdictNoAction,
		Reason:  "no safe deterministic resolution",
	}, byAdvisor)
}

// validated enforces the verdict shape contract before the verdict leaves the
// adjudicator. A failure here is a programming error, not a user error.
func validated(v domain.Verdict, byAdvisor map[string]domain.Position) (domain.Verdict, error) {
	switch v.Verdict {
	case domain.VerdictProceed:
		if len(v.DominantMinisters) == 0 {
			return domain.Verdict{}, VerdictContractError{Msg: "PROCEED without dominant advisors"}
		}
		if len(v.Conditions) > 0 {
			return domain.Verdict{}, VerdictContractError{Msg: "PROCEED carries conditions"}
		}
	case domain.VerdictProceedIf:
		if len(v.Conditions) == 0 {
			return domain.Verdict{}, VerdictContractError{Msg: "PROCEED_IF without conditions"}
		}
	case domain.VerdictNoAction:
		if v.Reason == "" {
			return domain.Verdict{}, VerdictContractError{Msg: "NO_ACTION without reason"}
		}
		if len(v.DominantMinisters) > 0 || len(v.Conditions) > 0 {
			return domain.Verdict{}, VerdictContractError{Msg: "NO_ACTION carries extraneous fields"}
		}
	default:
		return domain.Verdict{}, VerdictContractError{Msg: fmt.Sprintf("unknown verdict %q", v.Verdict)}
	}
	for _, name := range v.DominantMinisters {
		if byAdvisor[name].Stance == domain.StanceAbstain {
			return domain.Verdict{}, VerdictContractError{Msg: fmt.Sprintf("abstaining advisor %s listed as dominant", name)}
		}
	}
	return v, nil
}

func stanceAmong(byAdvisor map[string]domain.Position, names []string, stance domain.Stance) bool {
	for _, n := range names {
		if byAdvisor[n].Stance == stance {
			return true
		}
	}
	return false
}

func filterStance(byAdvisor map[string]domain.Position, names []string, stances ...domain.Stance) []string {
	var out []string
	for _, n := range names {
		for _, s := range stances {
			if byAdvisor[n].Stance == s {
				out = append(out, n)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func advisorsWithStance(byAdvisor map[string]domain.Position, order []string, stances ...domain.Stance) []string {
	return filterStance(byAdvisor, order, stances...)
}

// intersectNonNegotiables returns the conditions every named advisor insists
// on, sorted.
func intersectNonNegotiables(byAdvisor map[string]domain.Position, names []string) []string {
	if len(names) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, n := range names {
		seen := map[string]bool{}
		for _, nn := range byAdvisor[n].NonNegotiables {
			if !seen[nn] {
				counts[nn]++
				seen[nn] = true
			}
		}
	}
	var shared []string
	for nn, c := range counts {
		if c == len(names) {
			shared = append(shared, nn)
		}
	}
	sort.Strings(shared)
	return shared
}

func unionNonNegotiables(byAdvisor map[string]domain.Position, names []string) []string {
	var out []string
	for _, n := range names {
		out = append(out, byAdvisor[n].NonNegotiables...)
	}
	return out
}

// objectionConditionHints carries MEDIUM and HIGH objection texts into the
// conditional-resolution condition set.
func objectionConditionHints(objections []domain.Objection) []string {
	var out []string
	for _, o := range objections {
		if o.Severity == domain.SeverityMedium || o.Severity == domain.SeverityHigh {
			out = append(out, o.Text)
		}
	}
	return out
}

func dedupeSorted(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
