package engine_test

import (
	"testing"

	"sovereign/internal/domain"
	"sovereign/internal/engine"
)

func baseContext() domain.DecisionContext {
	return domain.DecisionContext{
		"risk.max_loss_percent": {},
		"risk.exposure":         {},
		"timing.deadline":       {},
	}
}

func baseRequired() map[string][]string {
	return map[string][]string{
		"risk":   {"risk.max_loss_percent", "risk.exposure"},
		"timing": {"timing.deadline"},
	}
}

func baseDomains() map[string][]string {
	return map[string][]string{
		"risk":   {"risk", "loss", "exposure"},
		"timing": {"timing", "deadline"},
	}
}

func newGK(maxQuestions int) *engine.Gatekeeper {
	return engine.NewGatekeeper(maxQuestions, 2, baseDomains())
}

func mustReject(t *testing.T, r engine.Ruling, want string) {
	t.Helper()
	if r.Allowed() {
		t.Fatalf("ruling allowed, want reject %s", want)
	}
	if r.RejectReason != want {
		t.Fatalf("reject = %q, want %q", r.RejectReason, want)
	}
}

func TestGatekeeperBudgetChecksFirst(t *testing.T) {
	gk := newGK(0)
	// Even a malformed request reports the budget: the checks are ordered.
	r := gk.CanAsk(engine.AskRequest{}, baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectBudgetExhausted)
	if !gk.ContextClosed() {
		t.Fatalf("zero budget must close the context from the start")
	}
}

func TestGatekeeperMalformedRequest(t *testing.T) {
	gk := newGK(3)
	r := gk.CanAsk(engine.AskRequest{Requester: "risk"}, baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectMalformedRequest)
	r = gk.CanAsk(engine.AskRequest{Field: "risk.exposure"}, baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectMalformedRequest)
}

func TestGatekeeperFieldInvalid(t *testing.T) {
	gk := newGK(3)
	r := gk.CanAsk(engine.AskRequest{Requester: "risk", Field: "nonexistent.path", Reason: "need it"},
		baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectFieldInvalid)
}

func TestGatekeeperFieldNotRequiredByActive(t *testing.T) {
	gk := newGK(3)
	// timing.deadline exists but timing is not in the active set.
	r := gk.CanAsk(engine.AskRequest{Requester: "risk", Field: "timing.deadline", Reason: "need it"},
		baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectFieldNotRequired)
}

func TestGatekeeperFieldAlreadyStable(t *testing.T) {
	gk := newGK(3)
	dctx := baseContext()
	dctx["risk.exposure"] = domain.Field{Value: "2x leverage", Confidence: 0.9, Stable: true}
	r := gk.CanAsk(engine.AskRequest{Requester: "risk", Field: "risk.exposure", Reason: "need it"},
		dctx, baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectFieldStable)

	// Low-confidence populated fields are still askable.
	dctx["risk.exposure"] = domain.Field{Value: "2x leverage", Confidence: 0.3, Stable: true}
	r = gk.CanAsk(engine.AskRequest{Requester: "risk", Field: "risk.exposure", Reason: "need it"},
		dctx, baseRequired(), []string{"risk"})
	if !r.Allowed() {
		t.Fatalf("low-confidence field rejected: %+v", r)
	}
}

func TestGatekeeperJurisdictionMismatch(t *testing.T) {
	gk := newGK(3)
	// timing may not ask about risk fields even when risk is active and the
	// field is required.
	r := gk.CanAsk(engine.AskRequest{Requester: "timing", Field: "risk.exposure", Reason: "need it"},
		baseContext(), baseRequired(), []string{"risk", "timing"})
	mustReject(t, r, engine.RejectJurisdiction)
}

func TestGatekeeperSingularScope(t *testing.T) {
	gk := newGK(3)
	compound := "risk.max_loss_percent,risk.exposure"
	dctx := baseContext()
	dctx[compound] = domain.Field{}
	required := baseRequired()
	required["risk"] = append(required["risk"], compound)
	r := gk.CanAsk(engine.AskRequest{Requester: "risk", Field: compound, Reason: "need both"},
		dctx, required, []string{"risk"})
	mustReject(t, r, engine.RejectSingularScope)
}

func TestGatekeeperPreviouslyRefused(t *testing.T) {
	gk := newGK(5)
	req := engine.AskRequest{Requester: "risk", Field: "risk.exposure", Reason: "why is this risky"}
	r := gk.CanAsk(req, baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectOpenEnded)
	gk.RecordRejection(req, r.RejectReason)

	// Rephrasing does not help inside the look-back window.
	req.Reason = "need the exposure figure"
	r = gk.CanAsk(req, baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectPreviouslyRefused)
}

func TestGatekeeperRefusalAgesOut(t *testing.T) {
	gk := engine.NewGatekeeper(5, 1, baseDomains())
	bad := engine.AskRequest{Requester: "risk", Field: "risk.exposure", Reason: "explain the exposure"}
	r := gk.CanAsk(bad, baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectOpenEnded)
	gk.RecordRejection(bad, r.RejectReason)

	// Another allowed question pushes the refusal out of the window.
	other := engine.AskRequest{Requester: "risk", Field: "risk.max_loss_percent", Reason: "need the bound"}
	if r := gk.CanAsk(other, baseContext(), baseRequired(), []string{"risk"}); !r.Allowed() {
		t.Fatalf("intervening question rejected: %+v", r)
	}
	bad.Reason = "need the exposure figure"
	if r := gk.CanAsk(bad, baseContext(), baseRequired(), []string{"risk"}); !r.Allowed() {
		t.Fatalf("aged-out refusal still blocks: %+v", r)
	}
}

func TestGatekeeperOpenEndedMarkers(t *testing.T) {
	gk := newGK(10)
	for _, reason := range []string{
		"why does this matter",
		"please explain the setup",
		"tell me more about the deal",
		"what is your opinion",
		"suggest an alternative",
		"how do i hedge this",
	} {
		r := gk.CanAsk(engine.AskRequest{Requester: "risk", Field: "risk.exposure", Reason: reason},
			baseContext(), baseRequired(), []string{"risk"})
		mustReject(t, r, engine.RejectOpenEnded)
	}
}

func TestGatekeeperAllowedAppendsHistory(t *testing.T) {
	gk := newGK(2)
	req := engine.AskRequest{Requester: "risk", Field: "risk.exposure", Reason: "need the figure"}
	if r := gk.CanAsk(req, baseContext(), baseRequired(), []string{"risk"}); !r.Allowed() {
		t.Fatalf("first ask rejected: %+v", r)
	}
	if len(gk.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(gk.History))
	}
	if gk.ContextClosed() {
		t.Fatalf("context closed after 1 of 2 questions")
	}
	req.Field = "risk.max_loss_percent"
	if r := gk.CanAsk(req, baseContext(), baseRequired(), []string{"risk"}); !r.Allowed() {
		t.Fatalf("second ask rejected: %+v", r)
	}
	if !gk.ContextClosed() {
		t.Fatalf("context open after budget spent")
	}
	r := gk.CanAsk(req, baseContext(), baseRequired(), []string{"risk"})
	mustReject(t, r, engine.RejectBudgetExhausted)
}

func TestGatekeeperPrefixFieldResolves(t *testing.T) {
	gk := newGK(3)
	dctx := baseContext()
	required := baseRequired()
	required["risk"] = append(required["risk"], "risk")
	// Asking for the subtree root resolves against its children.
	r := gk.CanAsk(engine.AskRequest{Requester: "risk", Field: "risk", Reason: "need the figures"},
		dctx, required, []string{"risk"})
	if !r.Allowed() {
		t.Fatalf("prefix field rejected: %+v", r)
	}
}
