package engine_test

import (
	"testing"

	"sovereign/internal/domain"
	"sovereign/internal/engine"
)

func TestFingerprintStable(t *testing.T) {
	dctx := domain.DecisionContext{
		"risk.max_loss_percent": {Value: 2.0, Confidence: 0.9, Stable: true},
		"timing.deadline":       {Value: "2026-09-01", Confidence: 0.8},
	}
	a, err := engine.Fingerprint(dctx)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if len(a) != 12 {
		t.Fatalf("len = %d, want 12", len(a))
	}
	b, err := engine.Fingerprint(dctx)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("fingerprint unstable: %s vs %s", a, b)
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base := domain.DecisionContext{"k": {Value: 1.0, Confidence: 0.5}}
	changed := domain.DecisionContext{"k": {Value: 2.0, Confidence: 0.5}}
	a, err := engine.Fingerprint(base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := engine.Fingerprint(changed)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("distinct contexts share fingerprint %s", a)
	}
}

func TestFingerprintEmptyContext(t *testing.T) {
	a, err := engine.Fingerprint(domain.DecisionContext{})
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, err := engine.Fingerprint(nil)
	if err != nil {
		t.Fatalf("fingerprint nil: %v", err)
	}
	_ = b
	if len(a) != 12 {
		t.Fatalf("len = %d, want 12", len(a))
	}
}
