package engine_test

import (
	"testing"

	"sovereign/internal/domain"
	"sovereign/internal/engine"
)

func namesOf(ps []domain.Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Advisor
	}
	return out
}

func TestSpeakingOrderHighLowMiddle(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "a"}, {Advisor: "b"}, {Advisor: "c"}, {Advisor: "d"},
	}
	weights := map[string]float64{"a": 4, "b": 3, "c": 2, "d": 1}
	got := namesOf(engine.SpeakingOrder(positions, weights))
	want := []string{"a", "d", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSpeakingOrderSmallSets(t *testing.T) {
	positions := []domain.Position{{Advisor: "x"}, {Advisor: "y"}}
	weights := map[string]float64{"x": 1, "y": 2}
	got := namesOf(engine.SpeakingOrder(positions, weights))
	if got[0] != "y" || got[1] != "x" {
		t.Fatalf("order = %v, want [y x]", got)
	}
	if got := engine.SpeakingOrder(nil, nil); len(got) != 0 {
		t.Fatalf("order of empty set = %v", got)
	}
}

func TestSpeakingOrderTiesBreakOnName(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "c"}, {Advisor: "a"}, {Advisor: "b"},
	}
	weights := map[string]float64{"a": 1, "b": 1, "c": 1}
	got := namesOf(engine.SpeakingOrder(positions, weights))
	// Ranked [a b c]; picks first, last, middle.
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSpeakingOrderKeepsAllPositions(t *testing.T) {
	positions := []domain.Position{
		{Advisor: "a"}, {Advisor: "b"}, {Advisor: "c"}, {Advisor: "d"}, {Advisor: "e"},
	}
	weights := map[string]float64{"a": 5, "b": 4, "c": 3, "d": 2, "e": 1}
	got := engine.SpeakingOrder(positions, weights)
	if len(got) != len(positions) {
		t.Fatalf("len = %d, want %d", len(got), len(positions))
	}
	seen := map[string]bool{}
	for _, p := range got {
		if seen[p.Advisor] {
			t.Fatalf("duplicate %s in %v", p.Advisor, namesOf(got))
		}
		seen[p.Advisor] = true
	}
}
