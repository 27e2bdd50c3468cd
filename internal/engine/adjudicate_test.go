package engine_test

import (
	"reflect"
	"strings"
	"testing"

	"sovereign/internal/domain"
	"sovereign/internal/engine"
)

func adjudicate(t *testing.T, positions []domain.Position, objections []domain.Objection, authority map[string]float64) domain.Verdict {
	t.Helper()
	w := engine.NewWeighting(authority)
	weights := w.Weights(positions, domain.DecisionContext{})
	v, err := engine.Adjudicate(positions, objections, weights, w, "risk")
	if err != nil {
		t.Fatalf("adjudicate: %v", err)
	}
	return v
}

func TestAdjudicateVetoBeatsDeadlock(t *testing.T) {
	// Both the sentinel OPPOSE and another dominant SUPPORT are present; the
	// veto rule fires first.
	positions := []domain.Position{
		{Advisor: "risk", Stance: domain.StanceOppose, Confidence: 0.95, Claim: "Ruinous."},
		{Advisor: "power", Stance: domain.StanceSupport, Confidence: 0.95, Claim: "Strong move."},
	}
	v := adjudicate(t, positions, nil, map[string]float64{"risk": 1.2, "power": 1.2})
	if v.Verdict != domain.VerdictNoAction {
		t.Fatalf("verdict = %q, want NO_ACTION", v.Verdict)
	}
	if !strings.Contains(v.Reason, "Risk veto by risk") {
		t.Fatalf("reason = %q, want veto", v.Reason)
	}
}

func TestAdjudicateDeadlockNoSharedGround(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "power", Stance: domain.StanceSupport, Confidence: 0.95, Claim: "Take it."},
		{Advisor: "truth", Stance: domain.StanceOppose, Confidence: 0.95, Claim: "Unfounded."},
	}
	v := adjudicate(t, positions, nil, map[string]float64{"power": 1.2, "truth": 1.2})
	if v.Verdict != domain.VerdictNoAction {
		t.Fatalf("verdict = %q, want NO_ACTION", v.Verdict)
	}
	if !strings.Contains(v.Reason, "deadlock") {
		t.Fatalf("reason = %q, want deadlock", v.Reason)
	}
}

func TestAdjudicateDeadlockWithSharedGroundResolvesConditionally(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "power", Stance: domain.StanceSupport, Confidence: 0.95, Claim: "Take it.", NonNegotiables: []string{"keep an exit route"}},
		{Advisor: "truth", Stance: domain.StanceOppose, Confidence: 0.95, Claim: "Unfounded.", NonNegotiables: []string{"keep an exit route"}},
	}
	objections := []domain.Objection{
		{From: "truth", Against: "power", Severity: domain.SeverityMedium, Text: "source the claim"},
	}
	v := adjudicate(t, positions, objections, map[string]float64{"power": 1.2, "truth": 1.2})
	if v.Verdict != domain.VerdictProceedIf {
		t.Fatalf("verdict = %q, want PROCEED_IF", v.Verdict)
	}
	want := []string{"keep an exit route", "source the claim"}
	if !reflect.DeepEqual(v.Conditions, want) {
		t.Fatalf("conditions = %v, want %v", v.Conditions, want)
	}
	if !reflect.DeepEqual(v.DominantMinisters, []string{"power"}) {
		t.Fatalf("dominant = %v, want [power]", v.DominantMinisters)
	}
}

func TestAdjudicateWeakConsensus(t *testing.T) {
	// Nobody clears the dominance line, opposition stays under the ceiling.
	positions := []domain.Position{
		{Advisor: "power", Stance: domain.StanceSupport, Confidence: 0.8, Claim: "Take it."},
		{Advisor: "timing", Stance: domain.StanceConditional, Confidence: 0.7, Claim: "Soon works."},
		{Advisor: "truth", Stance: domain.StanceOppose, Confidence: 0.5, Claim: "Thin evidence."},
	}
	v := adjudicate(t, positions, nil, map[string]float64{"power": 0.9, "timing": 0.9, "truth": 0.9})
	if v.Verdict != domain.VerdictProceed {
		t.Fatalf("verdict = %q, want PROCEED", v.Verdict)
	}
	if !reflect.DeepEqual(v.DominantMinisters, []string{"power", "timing"}) {
		t.Fatalf("dominant = %v, want [power timing]", v.DominantMinisters)
	}
}

func TestAdjudicateHeavyOppositionBlocksWeakConsensus(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "power", Stance: domain.StanceSupport, Confidence: 0.8, Claim: "Take it."},
		{Advisor: "truth", Stance: domain.StanceOppose, Confidence: 0.9, Claim: "Thin evidence."},
	}
	// truth weight 0.72 is under dominance but over the oppose ceiling.
	v := adjudicate(t, positions, nil, map[string]float64{"power": 0.9, "truth": 0.8})
	if v.Verdict != domain.VerdictNoAction {
		t.Fatalf("verdict = %q, want NO_ACTION", v.Verdict)
	}
}

func TestAdjudicateAbstainOnlyDefaultsToNoAction(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "power", Stance: domain.StanceAbstain, Confidence: 0.9, Claim: "Outside my remit."},
		{Advisor: "truth", Stance: domain.StanceAbstain, Confidence: 0.9, Claim: "No evidence either way."},
	}
	v := adjudicate(t, positions, nil, map[string]float64{"power": 1.2, "truth": 1.2})
	if v.Verdict != domain.VerdictNoAction {
		t.Fatalf("verdict = %q, want NO_ACTION", v.Verdict)
	}
	if len(v.DominantMinisters) != 0 {
		t.Fatalf("abstainers listed dominant: %v", v.DominantMinisters)
	}
}

func TestAdjudicateEmptyPositionsDefaultsToNoAction(t *testing.T) {
	v := adjudicate(t, nil, nil, nil)
	if v.Verdict != domain.VerdictNoAction || v.Reason == "" {
		t.Fatalf("verdict = %+v, want reasoned NO_ACTION", v)
	}
}

func TestAdjudicateDeterministic(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "risk", Stance: domain.StanceConditional, Confidence: 0.9, Claim: "Cap it.", NonNegotiables: []string{"cap losses at 2%"}},
		{Advisor: "truth", Stance: domain.StanceOppose, Confidence: 0.95, Claim: "Unverified."},
		{Advisor: "power", Stance: domain.StanceSupport, Confidence: 0.85, Claim: "Strengthens us."},
	}
	objections := []domain.Objection{
		{From: "truth", Against: "power", Severity: domain.SeverityHigh, Text: "verify the projections"},
		{From: "risk", Against: "power", Severity: domain.SeverityLow, Text: "note the tail"},
	}
	authority := map[string]float64{"risk": 1.2, "truth": 1.1, "power": 1.1}
	first := adjudicate(t, positions, objections, authority)
	for i := 0; i < 5; i++ {
		again := adjudicate(t, positions, objections, authority)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged: %+v vs %+v", i, first, again)
		}
	}
}

func TestAdjudicateProceedIfDropsLowSeverityHints(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "power", Stance: domain.StanceSupport, Confidence: 0.95, Claim: "Take it.", NonNegotiables: []string{"keep an exit route"}},
		// Heavy enough to block weak consensus, not dominant.
		{Advisor: "truth", Stance: domain.StanceOppose, Confidence: 0.9, Claim: "Thin evidence."},
	}
	objections := []domain.Objection{
		{From: "truth", Against: "power", Severity: domain.SeverityLow, Text: "minor wording"},
		{From: "timing", Against: "power", Severity: domain.SeverityHigh, Text: "wait for the filing window"},
	}
	v := adjudicate(t, positions, objections, map[string]float64{"power": 1.2, "truth": 0.8})
	if v.Verdict != domain.VerdictProceedIf {
		t.Fatalf("verdict = %q, want PROCEED_IF", v.Verdict)
	}
	want := []string{"keep an exit route", "wait for the filing window"}
	if !reflect.DeepEqual(v.Conditions, want) {
		t.Fatalf("conditions = %v, want %v", v.Conditions, want)
	}
}
