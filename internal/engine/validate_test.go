package engine_test

import (
	"strings"
	"testing"

	"sovereign/internal/domain"
	"sovereign/internal/engine"
)

func validPosition() domain.Position {
	return domain.Position{
		Advisor:    "risk",
		Stance:     domain.StanceConditional,
		Confidence: 0.8,
		Claim:      "Exposure is tolerable under a hard cap.",
	}
}

func TestValidatePosition(t *testing.T) {
	peers := []string{"risk", "truth", "power"}
	if err := engine.ValidatePosition(validPosition(), "risk", peers); err != nil {
		t.Fatalf("valid position rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.Position)
		want   string
	}{
		{"wrong producer", func(p *domain.Position) { p.Advisor = "truth" }, "does not match producer"},
		{"bad stance", func(p *domain.Position) { p.Stance = "MAYBE" }, "invalid stance"},
		{"confidence high", func(p *domain.Position) { p.Confidence = 1.5 }, "out of [0,1]"},
		{"confidence negative", func(p *domain.Position) { p.Confidence = -0.1 }, "out of [0,1]"},
		{"empty claim", func(p *domain.Position) { p.Claim = "  " }, "claim required"},
		{"question claim", func(p *domain.Position) { p.Claim = "Is this safe?" }, "contains a question"},
		{"advice tone", func(p *domain.Position) { p.Claim = "You should cap the loss." }, "advice-toned"},
		{"peer reference", func(p *domain.Position) { p.Claim = "Unlike truth, the exposure holds." }, "references advisor"},
		{"empty blocking condition", func(p *domain.Position) { p.BlockingConditions = []string{" "} }, "blocking condition"},
		{"empty non-negotiable", func(p *domain.Position) { p.NonNegotiables = []string{""} }, "non-negotiable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPosition()
			tc.mutate(&p)
			err := engine.ValidatePosition(p, "risk", peers)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestValidatePositionPeerNameAsSubstring(t *testing.T) {
	// "empowered" contains "power" but does not reference the advisor.
	p := validPosition()
	p.Claim = "The team is empowered to act."
	if err := engine.ValidatePosition(p, "risk", []string{"risk", "power"}); err != nil {
		t.Fatalf("substring match misfired: %v", err)
	}
	p.Claim = "Power overreaches here."
	if err := engine.ValidatePosition(p, "risk", []string{"risk", "power"}); err == nil {
		t.Fatalf("whole-word peer reference not caught")
	}
}

func TestValidateObjection(t *testing.T) {
	quorum := []string{"risk", "truth", "power"}
	ok := domain.Objection{From: "truth", Against: "risk", Severity: domain.SeverityMedium, Text: "source it"}
	if err := engine.ValidateObjection(ok, quorum, nil); err != nil {
		t.Fatalf("valid objection rejected: %v", err)
	}

	cases := []struct {
		name string
		o    domain.Objection
		want string
	}{
		{"missing from", domain.Objection{Against: "risk", Severity: domain.SeverityLow, Text: "x"}, "from required"},
		{"missing against", domain.Objection{From: "truth", Severity: domain.SeverityLow, Text: "x"}, "against required"},
		{"self objection", domain.Objection{From: "truth", Against: "truth", Severity: domain.SeverityLow, Text: "x"}, "self-objection"},
		{"target outside quorum", domain.Objection{From: "truth", Against: "timing", Severity: domain.SeverityLow, Text: "x"}, "not in quorum"},
		{"bad severity", domain.Objection{From: "truth", Against: "risk", Severity: "EXTREME", Text: "x"}, "invalid severity"},
		{"missing text", domain.Objection{From: "truth", Against: "risk", Severity: domain.SeverityLow}, "text required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.ValidateObjection(tc.o, quorum, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestValidateObjectionDuplicateAndCap(t *testing.T) {
	quorum := []string{"risk", "truth", "power", "timing"}
	prior := []domain.Objection{
		{From: "truth", Against: "risk", Severity: domain.SeverityLow, Text: "a"},
	}
	dup := domain.Objection{From: "truth", Against: "risk", Severity: domain.SeverityHigh, Text: "b"}
	if err := engine.ValidateObjection(dup, quorum, prior); err == nil || !strings.Contains(err.Error(), "duplicate target") {
		t.Fatalf("err = %v, want duplicate target", err)
	}

	prior = append(prior, domain.Objection{From: "truth", Against: "power", Severity: domain.SeverityLow, Text: "c"})
	third := domain.Objection{From: "truth", Against: "timing", Severity: domain.SeverityLow, Text: "d"}
	if err := engine.ValidateObjection(third, quorum, prior); err == nil || !strings.Contains(err.Error(), "cap") {
		t.Fatalf("err = %v, want cap exceeded", err)
	}

	// Another advisor's objections do not count against the cap.
	other := domain.Objection{From: "risk", Against: "truth", Severity: domain.SeverityLow, Text: "e"}
	if err := engine.ValidateObjection(other, quorum, prior); err != nil {
		t.Fatalf("unrelated advisor blocked: %v", err)
	}
}
