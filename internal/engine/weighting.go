package engine

import (
	"sovereign/internal/domain"
)

// DefaultAuthority is the base authority for advisors with no configured
// value.
const DefaultAuthority = 0.5

// DominanceThreshold is the effective weight at or above which an advisor is
// dominant.
const DominanceThreshold = 1.0

// RelevanceFunc scales an advisor's weight by situational relevance. The
// minimal contract is the identity; this is an extension point, not a tuned
// model.
type RelevanceFunc func(advisor string, dctx domain.DecisionContext) float64

// IdentityRelevance returns 1.0 for every advisor in every context.
func IdentityRelevance(string, domain.DecisionContext) float64 { return 1.0 }

// Weighting converts stated confidence into effective weight. Pure and
// side-effect free; recomputable at any time from the validated position set.
type Weighting struct {
	BaseAuthority    map[string]float64
	DefaultAuthority float64
	Relevance        RelevanceFunc
	Threshold        float64
}

// NewWeighting builds a weighting over the given authority table.
func NewWeighting(authority map[string]float64) Weighting {
	return Weighting{
		BaseAuthority:    authority,
		DefaultAuthority: DefaultAuthority,
		Relevance:        IdentityRelevance,
		Threshold:        DominanceThreshold,
	}
}

func (w Weighting) authority(advisor string) float64 {
	if v, ok := w.BaseAuthority[advisor]; ok {
		return v
	}
	if w.DefaultAuthority > 0 {
		return w.DefaultAuthority
	}
	return DefaultAuthority
}

func (w Weighting) relevance(advisor string, dctx domain.DecisionContext) float64 {
	if w.Relevance == nil {
		return 1.0
	}
	return w.Relevance(advisor, dctx)
}

// EffectiveWeight is base authority x situational relevance x stated
// confidence.
func (w Weighting) EffectiveWeight(p domain.Position, dctx domain.DecisionContext) float64 {
	return w.authority(p.Advisor) * w.relevance(p.Advisor, dctx) * p.Confidence
}

// Weights computes the effective weight for every position, keyed by advisor.
func (w Weighting) Weights(positions []domain.Position, dctx domain.DecisionContext) map[string]float64 {
	out := make(map[string]float64, len(positions))
	for _, p := range positions {
		out[p.Advisor] = w.EffectiveWeight(p, dctx)
	}
	return out
}

// Dominant reports whether an effective weight clears the dominance
// threshold.
func (w Weighting) Dominant(weight float64) bool {
	threshold := w.Threshold
	if threshold == 0 {
		threshold = DominanceThreshold
	}
	return weight >= threshold
}
