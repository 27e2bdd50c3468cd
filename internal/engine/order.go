package engine

import (
	"sort"

	"sovereign/internal/domain"
)

// SpeakingOrder arranges positions for presentation: highest pre-deliberation
// score first, then lowest, then the middle of the scored list, then the
// remaining advisors in score order. The shuffle exists to blunt anchoring
// bias during the objection phase; it has no effect on adjudication
// arithmetic. Ties break on advisor name so the order is deterministic.
func SpeakingOrder(positions []domain.Position, weights map[string]float64) []domain.Position {
	if len(positions) <= 2 {
		out := make([]domain.Position, len(positions))
		copy(out, positions)
		sortByScore(out, weights)
		return out
	}
	ranked := make([]domain.Position, len(positions))
	copy(ranked, positions)
	sortByScore(ranked, weights)

	n := len(ranked)
	picks := []int{0, n - 1, n / 2}
	used := map[int]bool{}
	var out []domain.Position
	for _, i := range picks {
		if used[i] {
			continue
		}
		used[i] = true
		out = append(out, ranked[i])
	}
	for i, p := range ranked {
		if !used[i] {
			out = append(out, p)
		}
	}
	return out
}

func sortByScore(ps []domain.Position, weights map[string]float64) {
	sort.Slice(ps, func(i, j int) bool {
		wi, wj := weights[ps[i].Advisor], weights[ps[j].Advisor]
		if wi != wj {
			return wi > wj
		}
		return ps[i].Advisor < ps[j].Advisor
	})
}
