package engine_test

import (
	"reflect"
	"testing"

	"sovereign/internal/config"
	"sovereign/internal/engine"
)

func TestKeywordQuorumActivation(t *testing.T) {
	q := engine.KeywordQuorum{Advisors: map[string]config.Advisor{
		"risk":   {Domains: []string{"risk"}, Keywords: []string{"hedge", "downside"}},
		"timing": {Domains: []string{"timing"}, Keywords: []string{"deadline", "window"}},
		"truth":  {Domains: []string{"truth"}, Keywords: []string{"evidence"}},
	}}
	got := q.Activate("Should we hedge before the deadline?")
	want := []string{"risk", "timing"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("activated = %v, want %v", got, want)
	}
}

func TestKeywordQuorumMatchesDomains(t *testing.T) {
	q := engine.KeywordQuorum{Advisors: map[string]config.Advisor{
		"truth": {Domains: []string{"truth", "evidence"}},
	}}
	if got := q.Activate("What does the evidence say"); len(got) != 1 || got[0] != "truth" {
		t.Fatalf("activated = %v, want [truth]", got)
	}
}

func TestKeywordQuorumCaseInsensitive(t *testing.T) {
	q := engine.KeywordQuorum{Advisors: map[string]config.Advisor{
		"risk": {Domains: []string{"risk"}, Keywords: []string{"Hedge"}},
	}}
	if got := q.Activate("HEDGE the position"); len(got) != 1 {
		t.Fatalf("activated = %v, want [risk]", got)
	}
}

func TestKeywordQuorumNoMatch(t *testing.T) {
	q := engine.KeywordQuorum{Advisors: map[string]config.Advisor{
		"risk": {Domains: []string{"risk"}},
	}}
	if got := q.Activate("Pick the office wallpaper"); len(got) != 0 {
		t.Fatalf("activated = %v, want empty", got)
	}
}

func TestStaticQuorumSortsCopy(t *testing.T) {
	q := engine.StaticQuorum{"truth", "risk"}
	got := q.Activate("anything")
	if !reflect.DeepEqual(got, []string{"risk", "truth"}) {
		t.Fatalf("activated = %v", got)
	}
	if q[0] != "truth" {
		t.Fatalf("classifier mutated in place: %v", q)
	}
}
