package engine_test

import (
	"math"
	"testing"

	"sovereign/internal/domain"
	"sovereign/internal/engine"
)

func TestEffectiveWeight(t *testing.T) {
	w := engine.NewWeighting(map[string]float64{"risk": 1.2})
	p := domain.Position{Advisor: "risk", Confidence: 0.95}
	got := w.EffectiveWeight(p, domain.DecisionContext{})
	if math.Abs(got-1.14) > 1e-9 {
		t.Fatalf("weight = %v, want 1.14", got)
	}
}

func TestEffectiveWeightDefaultAuthority(t *testing.T) {
	w := engine.NewWeighting(nil)
	p := domain.Position{Advisor: "stranger", Confidence: 1.0}
	if got := w.EffectiveWeight(p, nil); got != engine.DefaultAuthority {
		t.Fatalf("weight = %v, want default %v", got, engine.DefaultAuthority)
	}
}

func TestEffectiveWeightRelevanceScales(t *testing.T) {
	w := engine.NewWeighting(map[string]float64{"risk": 1.0})
	w.Relevance = func(string, domain.DecisionContext) float64 { return 0.5 }
	p := domain.Position{Advisor: "risk", Confidence: 1.0}
	if got := w.EffectiveWeight(p, nil); got != 0.5 {
		t.Fatalf("weight = %v, want 0.5", got)
	}
}

func TestDominantThresholdInclusive(t *testing.T) {
	w := engine.NewWeighting(nil)
	if !w.Dominant(1.0) {
		t.Fatalf("weight at threshold must be dominant")
	}
	if w.Dominant(0.999) {
		t.Fatalf("weight under threshold must not be dominant")
	}
}

func TestWeightsKeysByAdvisor(t *testing.T) {
	w := engine.NewWeighting(map[string]float64{"risk": 1.2, "truth": 1.1})
	positions := []domain.Position{
		{Advisor: "risk", Confidence: 0.5},
		{Advisor: "truth", Confidence: 1.0},
	}
	got := w.Weights(positions, nil)
	if len(got) != 2 {
		t.Fatalf("weights = %v", got)
	}
	if math.Abs(got["risk"]-0.6) > 1e-9 || math.Abs(got["truth"]-1.1) > 1e-9 {
		t.Fatalf("weights = %v", got)
	}
}

func TestZeroConfidenceZeroWeight(t *testing.T) {
	w := engine.NewWeighting(map[string]float64{"risk": 1.2})
	p := domain.Position{Advisor: "risk", Stance: domain.StanceAbstain, Confidence: 0}
	if got := w.EffectiveWeight(p, nil); got != 0 {
		t.Fatalf("weight = %v, want 0", got)
	}
}
