package engine

import (
	"strings"
	"time"

	"sovereign/internal/domain"
)

// Gatekeeper reject reason codes. FIELD_NOT_REQUIRED_BY_ACTIVE_MINISTER keeps
// its historical wire spelling.
const (
	RejectBudgetExhausted   = "BUDGET_EXHAUSTED"
	RejectMalformedRequest  = "MALFORMED_REQUEST"
	RejectFieldInvalid      = "FIELD_INVALID"
	RejectFieldNotRequired  = "FIELD_NOT_REQUIRED_BY_ACTIVE_MINISTER"
	RejectFieldStable       = "FIELD_ALREADY_STABLE"
	RejectJurisdiction      = "JURISDICTION_MISMATCH"
	RejectSingularScope     = "SINGULAR_SCOPE_VIOLATION"
	RejectPreviouslyRefused = "PREVIOUSLY_REFUSED"
	RejectOpenEnded         = "OPEN_ENDED_OR_OUT_OF_SCOPE"
)

// Default gatekeeper budgets.
const (
	DefaultMaxQuestions        = 3
	DefaultRecentRepeatN       = 2
	DefaultStableConfidenceMin = 0.6
)

// openEndedMarkers reject clarifying questions that fish for opinions or
// explanations instead of a single missing fact.
var openEndedMarkers = []string{
	"why",
	"explain",
	"tell me more",
	"opinion",
	"suggest",
	"how do i",
}

// AskRequest is one clarifying-question request put to the gatekeeper.
type AskRequest struct {
	Requester string
	Field     string
	Reason    string
}

// Ruling is the gatekeeper's answer to can_ask.
type Ruling struct {
	Status       string
	RejectReason string
}

func (r Ruling) Allowed() bool { return r.Status == domain.QuestionAllowed }

// Gatekeeper bounds clarifying-question issuance for a single decision. Its
// append-only history is the only state it carries between calls; it must be
// owned by exactly one orchestrating caller per decision.
type Gatekeeper struct {
	MaxQuestions        int
	RecentRepeatN       int
	StableConfidenceMin float64

	// DomainsByRequester declares each requester's jurisdiction.
	DomainsByRequester map[string][]string

	History []domain.QuestionEntry
	Now     func() time.Time
}

// NewGatekeeper returns a gatekeeper with the default budgets. maxQuestions
// may legally be zero: context acquisition is then closed from the start.
func NewGatekeeper(maxQuestions, recentRepeatN int, domains map[string][]string) *Gatekeeper {
	return &Gatekeeper{
		MaxQuestions:        maxQuestions,
		RecentRepeatN:       recentRepeatN,
		StableConfidenceMin: DefaultStableConfidenceMin,
		DomainsByRequester:  domains,
		Now:                 time.Now,
	}
}

func (g *Gatekeeper) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// CanAsk evaluates the checks in their contractual order and returns the
// first failing check's reason, or ALLOWED with an appended history entry.
// Rejections are not appended here; callers record them via RecordRejection
// so that the two-call surface stays symmetric with the wire protocol.
func (g *Gatekeeper) CanAsk(req AskRequest, dctx domain.DecisionContext, requiredFields map[string][]string, activeAdvisors []string) Ruling {
	if reason := g.check(req, dctx, requiredFields, activeAdvisors); reason != "" {
		return Ruling{Status: domain.QuestionRejected, RejectReason: reason}
	}
	g.History = append(g.History, domain.QuestionEntry{
		TS:        g.now().UTC().Format(time.RFC3339),
		Requester: req.Requester,
		Field:     req.Field,
		Reason:    req.Reason,
		Status:    domain.QuestionAllowed,
	})
	return Ruling{Status: domain.QuestionAllowed}
}

// RecordRejection appends a REJECTED entry to the history.
func (g *Gatekeeper) RecordRejection(req AskRequest, rejectReason string) {
	g.History = append(g.History, domain.QuestionEntry{
		TS:           g.now().UTC().Format(time.RFC3339),
		Requester:    req.Requester,
		Field:        req.Field,
		Reason:       req.Reason,
		Status:       domain.QuestionRejected,
		RejectReason: rejectReason,
	})
}

// ContextClosed reports whether deliberation may begin: the question budget is
// exhausted (or was zero to begin with), so the context is frozen.
func (g *Gatekeeper) ContextClosed() bool {
	return len(g.History) >= g.MaxQuestions
}

// check runs the ordered rule list. The order is a contract callers rely on
// for diagnostics; do not reorder.
func (g *Gatekeeper) check(req AskRequest, dctx domain.DecisionContext, requiredFields map[string][]string, activeAdvisors []string) string {
	// 1. Budget.
	if len(g.History) >= g.MaxQuestions {
		return RejectBudgetExhausted
	}
	// 2. Shape.
	if strings.TrimSpace(req.Requester) == "" || strings.TrimSpace(req.Field) == "" {
		return RejectMalformedRequest
	}
	// 3. Field existence.
	if !dctx.Resolve(req.Field) {
		return RejectFieldInvalid
	}
	// 4. Relevance: some active advisor must require the field.
	if !fieldRequiredByActive(req.Field, requiredFields, activeAdvisors) {
		return RejectFieldNotRequired
	}
	// 5. Stability: settled facts may not be re-asked.
	if f, ok := dctx[req.Field]; ok {
		min := g.StableConfidenceMin
		if min == 0 {
			min = DefaultStableConfidenceMin
		}
		if f.Value != nil && f.Stable && f.Confidence >= min {
			return RejectFieldStable
		}
	}
	// 6. Jurisdiction: requester domains must overlap the field's tokens.
	if !jurisdictionOverlaps(g.DomainsByRequester[req.Requester], req.Field) {
		return RejectJurisdiction
	}
	// 7. Singular scope: one field per question.
	if strings.Contains(req.Field, ",") || strings.Contains(req.Field, " and ") {
		return RejectSingularScope
	}
	// 8. Non-redundancy within the look-back window.
	if g.recentlyRefused(req.Field) {
		return RejectPreviouslyRefused
	}
	// 9. Open-endedness.
	reason := strings.ToLower(req.Reason)
	for _, marker := range openEndedMarkers {
		if strings.Contains(reason, marker) {
			return RejectOpenEnded
		}
	}
	return ""
}

func (g *Gatekeeper) recentlyRefused(field string) bool {
	n := g.RecentRepeatN
	if n <= 0 {
		return false
	}
	start := len(g.History) - n
	if start < 0 {
		start = 0
	}
	for _, e := range g.History[start:] {
		if e.Status == domain.QuestionRejected && e.Field == field {
			return true
		}
	}
	return false
}

func fieldRequiredByActive(field string, requiredFields map[string][]string, active []string) bool {
	for _, advisor := range active {
		for _, f := range requiredFields[advisor] {
			if f == field {
				return true
			}
		}
	}
	return false
}

// jurisdictionOverlaps checks the requester's domains against the field's
// root token and full token set (path segments split on '.' and '_').
func jurisdictionOverlaps(domains []string, field string) bool {
	if len(domains) == 0 {
		return false
	}
	segments := strings.Split(field, ".")
	root := segments[0]
	tokens := map[string]bool{}
	for _, seg := range segments {
		for _, tok := range strings.Split(seg, "_") {
			if tok != "" {
				tokens[strings.ToLower(tok)] = true
			}
		}
	}
	for _, d := range domains {
		d = strings.ToLower(d)
		if d == strings.ToLower(root) || tokens[d] {
			return true
		}
	}
	return false
}
