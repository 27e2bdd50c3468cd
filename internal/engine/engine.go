package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"sovereign/internal/config"
	"sovereign/internal/domain"
	"sovereign/internal/events"
	"sovereign/internal/repo"
)

// minContextConfidence is the floor below which a populated context field
// makes the whole deliberation attempt unsafe to start.
const minContextConfidence = 0.2

// Calibration increment applied by RecordOutcome, and the clamp range for the
// resulting authority. The ceiling sits above 1.0 because dominance requires
// authority x confidence to reach the threshold.
const (
	calibrationStep = 0.05
	authorityFloor  = 0.0
	authorityCeil   = 2.0
)

// PreconditionError aborts a whole deliberation attempt with a named reason.
// Never retried automatically; surfaced to the caller.
type PreconditionError struct {
	Reason string
}

func (e PreconditionError) Error() string {
	return "deliberation precondition failed: " + e.Reason
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Quorum QuorumClassifier
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Quorum: KeywordQuorum{Advisors: cfg.Council.Advisors},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func ensureDecisionTransition(oldStatus, newStatus string) error {
	if oldStatus == "open" && newStatus == "deliberated" {
		return nil
	}
	return fmt.Errorf("invalid decision status transition %s -> %s", oldStatus, newStatus)
}

// DecisionCreateOptions are parameters for putting a question before the
// council.
type DecisionCreateOptions struct {
	ID       string
	Question string
	Context  domain.DecisionContext
	ActorID  string
}

// CreateDecision registers a decision, activates its quorum and seeds the
// initial context tree. The context may only be mutated afterwards through
// the gatekeeper-approved question/answer cycle.
func (e Engine) CreateDecision(ctx context.Context, opts DecisionCreateOptions) (domain.Decision, error) {
	if e.Config == nil {
		return domain.Decision{}, errors.New("config not loaded")
	}
	if opts.ID == "" {
		return domain.Decision{}, errors.New("id is required")
	}
	if opts.Question == "" {
		return domain.Decision{}, errors.New("question is required")
	}
	quorum := e.classifier().Activate(opts.Question)
	quorum = e.filterToCouncil(quorum)
	now := e.now().UTC().Format(time.RFC3339)
	d := domain.Decision{
		ID:        opts.ID,
		Question:  opts.Question,
		Status:    "open",
		Quorum:    quorum,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Decision{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDecision(ctx, tx, d); err != nil {
		return domain.Decision{}, fmt.Errorf("insert decision: %w", err)
	}
	for _, path := range sortedPaths(opts.Context) {
		if err := e.Repo.UpsertContextField(ctx, tx, d.ID, path, opts.Context[path], now); err != nil {
			return domain.Decision{}, fmt.Errorf("seed context field %s: %w", path, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "decision.created", d.ID, "decision", d.ID, opts.ActorID, events.EventPayload{
		"question": d.Question,
		"quorum":   quorum,
	}); err != nil {
		return domain.Decision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

func (e Engine) classifier() QuorumClassifier {
	if e.Quorum != nil {
		return e.Quorum
	}
	return KeywordQuorum{Advisors: e.Config.Council.Advisors}
}

// filterToCouncil drops classifier output that names no configured seat.
func (e Engine) filterToCouncil(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := e.Config.Council.Advisors[n]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Ask runs one clarifying-question request through the gatekeeper and
// persists the ruling.
func (e Engine) Ask(ctx context.Context, decisionID string, req AskRequest, actorID string) (Ruling, error) {
	if e.Config == nil {
		return Ruling{}, errors.New("config not loaded")
	}
	d, err := e.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return Ruling{}, err
	}
	if d.Status != "open" {
		return Ruling{}, fmt.Errorf("decision %s already deliberated; context is frozen", decisionID)
	}
	dctx, err := e.Repo.GetContext(ctx, decisionID)
	if err != nil {
		return Ruling{}, err
	}
	history, err := e.Repo.QuestionHistory(ctx, decisionID)
	if err != nil {
		return Ruling{}, err
	}
	gk := e.gatekeeper(history)
	ruling := gk.CanAsk(req, dctx, e.Config.RequiredFieldsByAdvisor(), d.Quorum)
	if !ruling.Allowed() {
		gk.RecordRejection(req, ruling.RejectReason)
	}
	entry := gk.History[len(gk.History)-1]
	entry.DecisionID = decisionID

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Ruling{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.AppendQuestionEntry(ctx, tx, entry); err != nil {
		return Ruling{}, fmt.Errorf("append question entry: %w", err)
	}
	evtType := "question.allowed"
	payload := events.EventPayload{"requester": req.Requester, "field": req.Field}
	if !ruling.Allowed() {
		evtType = "question.rejected"
		payload["reject_reason"] = ruling.RejectReason
	}
	if err := e.Events.Append(ctx, tx, evtType, decisionID, "question", req.Field, actorID, payload); err != nil {
		return Ruling{}, err
	}
	if err := tx.Commit(); err != nil {
		return Ruling{}, err
	}
	return ruling, nil
}

func (e Engine) gatekeeper(history []domain.QuestionEntry) *Gatekeeper {
	gk := NewGatekeeper(e.Config.Gatekeeper.MaxQuestions, e.Config.Gatekeeper.RecentRepeatN, e.Config.DomainsByAdvisor())
	if e.Config.Gatekeeper.StableConfidenceMin > 0 {
		gk.StableConfidenceMin = e.Config.Gatekeeper.StableConfidenceMin
	}
	gk.History = history
	gk.Now = e.Now
	return gk
}

// Answer fills a context field through an open, gatekeeper-approved question
// slot. This is the only mutation path once a decision exists.
func (e Engine) Answer(ctx context.Context, decisionID, field string, f domain.Field, actorID string) error {
	d, err := e.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return err
	}
	if d.Status != "open" {
		return fmt.Errorf("decision %s already deliberated; context is frozen", decisionID)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", f.Confidence)
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkQuestionAnswered(ctx, tx, decisionID, field); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("no open answer slot for field %s; ask first", field)
		}
		return err
	}
	if err := e.Repo.UpsertContextField(ctx, tx, decisionID, field, f, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "context.answered", decisionID, "context_field", field, actorID, events.EventPayload{
		"confidence": f.Confidence,
		"stable":     f.Stable,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeliberateOptions wires the external producers into one deliberation round.
type DeliberateOptions struct {
	Producers  map[string]Producer
	Objections ObjectionProducer
	ActorID    string
}

// Deliberate runs the five-phase protocol for one decision and persists the
// verdict. The gatekeeper must report the context closed before anything else
// happens; an empty quorum short-circuits to the silence sentinel.
func (e Engine) Deliberate(ctx context.Context, decisionID string, opts DeliberateOptions) (domain.Verdict, error) {
	if e.Config == nil {
		return domain.Verdict{}, errors.New("config not loaded")
	}
	d, err := e.Repo.GetDecision(ctx, decisionID)
	if err != nil {
		return domain.Verdict{}, err
	}
	if err := ensureDecisionTransition(d.Status, "deliberated"); err != nil {
		return domain.Verdict{}, err
	}

	history, err := e.Repo.QuestionHistory(ctx, decisionID)
	if err != nil {
		return domain.Verdict{}, err
	}
	gk := e.gatekeeper(history)
	if !gk.ContextClosed() {
		return domain.Verdict{}, PreconditionError{Reason: fmt.Sprintf("question budget not exhausted (%d of %d used)", len(history), gk.MaxQuestions)}
	}

	dctx, err := e.Repo.GetContext(ctx, decisionID)
	if err != nil {
		return domain.Verdict{}, err
	}
	for _, path := range sortedPaths(dctx) {
		f := dctx[path]
		if f.Value != nil && !f.Stable && f.Confidence < minContextConfidence {
			return domain.Verdict{}, PreconditionError{Reason: fmt.Sprintf("context field %s is unstable with confidence %.2f", path, f.Confidence)}
		}
	}

	fingerprint, err := Fingerprint(dctx)
	if err != nil {
		return domain.Verdict{}, err
	}
	conv := domain.Convocation{DecisionID: decisionID, Fingerprint: fingerprint, Advisors: d.Quorum}

	// Empty quorum: the council never convenes.
	if len(conv.Advisors) == 0 {
		verdict := domain.Silence()
		if err := e.persistDeliberation(ctx, conv, nil, nil, verdict, opts.ActorID, nil); err != nil {
			return domain.Verdict{}, err
		}
		return verdict, nil
	}

	// Phase 1: independent positions, gathered in parallel and validated in
	// isolation. Invalid or failed positions are excluded, never repaired.
	var accepted []domain.Position
	var discarded []events.EventPayload
	for _, res := range gatherPositions(ctx, opts.Producers, conv.Advisors, dctx, d.Question) {
		if res.err != nil {
			discarded = append(discarded, events.EventPayload{"advisor": res.advisor, "error": res.err.Error()})
			continue
		}
		if err := ValidatePosition(res.position, res.advisor, conv.Advisors); err != nil {
			discarded = append(discarded, events.EventPayload{"advisor": res.advisor, "error": err.Error()})
			continue
		}
		accepted = append(accepted, res.position)
	}

	// Phase 3 runs before phase 2 presentation only to fix the speaking
	// order; weights are pure and recomputable.
	authority, err := e.authorityTable(ctx)
	if err != nil {
		return domain.Verdict{}, err
	}
	weighting := e.weighting(authority)
	weights := weighting.Weights(accepted, dctx)
	ordered := SpeakingOrder(accepted, weights)

	// Phase 2: objections, validated against the cap and non-repetition
	// rules. A producer failure silences that advisor's objections only.
	var objections []domain.Objection
	objector := opts.Objections
	if objector == nil {
		objector = NoObjections
	}
	for _, advisor := range conv.Advisors {
		raised, err := objector.Object(ctx, dctx, ordered, advisor)
		if err != nil {
			discarded = append(discarded, events.EventPayload{"advisor": advisor, "error": fmt.Sprintf("objections: %v", err)})
			continue
		}
		if len(raised) > MaxObjectionsPerAdvisor {
			discarded = append(discarded, events.EventPayload{"advisor": advisor, "error": fmt.Sprintf("objections: %d exceeds cap of %d", len(raised), MaxObjectionsPerAdvisor)})
			continue
		}
		for _, o := range raised {
			if err := ValidateObjection(o, conv.Advisors, objections); err != nil {
				discarded = append(discarded, events.EventPayload{"advisor": advisor, "error": err.Error()})
				continue
			}
			objections = append(objections, o)
		}
	}

	// Phase 4: contradictions annotate, the table decides.
	contradictions := DetectContradictions(accepted)
	verdict, err := Adjudicate(accepted, objections, weights, weighting, e.Config.RiskSentinel())
	if err != nil {
		// Verdict contract violations mean the adjudicator is broken.
		return domain.Verdict{}, err
	}
	verdict.Contradictions = contradictions

	if err := e.persistDeliberation(ctx, conv, accepted, objections, verdict, opts.ActorID, discarded); err != nil {
		return domain.Verdict{}, err
	}
	return verdict, nil
}

func (e Engine) weighting(authority map[string]float64) Weighting {
	w := NewWeighting(authority)
	if e.Config.Weighting.DefaultAuthority > 0 {
		w.DefaultAuthority = e.Config.Weighting.DefaultAuthority
	}
	if e.Config.Weighting.DominanceThreshold > 0 {
		w.Threshold = e.Config.Weighting.DominanceThreshold
	}
	return w
}

// authorityTable blends the configured base authorities with calibrated
// values from the feedback store. A calibrated (advisor, domain) row replaces
// the configured value for that advisor; with several calibrated domains the
// mean is used.
func (e Engine) authorityTable(ctx context.Context) (map[string]float64, error) {
	table := make(map[string]float64, len(e.Config.Council.Advisors))
	for name, a := range e.Config.Council.Advisors {
		table[name] = a.BaseAuthority
	}
	calibrated, err := e.Repo.ListAuthority(ctx)
	if err != nil {
		return nil, err
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, a := range calibrated {
		sums[a.Advisor] += a.Value
		counts[a.Advisor]++
	}
	for name, n := range counts {
		table[name] = sums[name] / float64(n)
	}
	return table, nil
}

func (e Engine) persistDeliberation(ctx context.Context, conv domain.Convocation, positions []domain.Position, objections []domain.Objection, verdict domain.Verdict, actorID string, discarded []events.EventPayload) error {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, p := range positions {
		if err := e.Repo.InsertPosition(ctx, tx, conv.DecisionID, p, now); err != nil {
			return fmt.Errorf("insert position %s: %w", p.Advisor, err)
		}
		if err := e.Events.Append(ctx, tx, "position.accepted", conv.DecisionID, "position", p.Advisor, actorID, events.EventPayload{
			"stance":     string(p.Stance),
			"confidence": p.Confidence,
		}); err != nil {
			return err
		}
	}
	for _, payload := range discarded {
		if err := e.Events.Append(ctx, tx, "position.discarded", conv.DecisionID, "position", fmt.Sprint(payload["advisor"]), actorID, payload); err != nil {
			return err
		}
	}
	for _, o := range objections {
		if err := e.Repo.InsertObjection(ctx, tx, conv.DecisionID, o, now); err != nil {
			return fmt.Errorf("insert objection from %s: %w", o.From, err)
		}
		if err := e.Events.Append(ctx, tx, "objection.accepted", conv.DecisionID, "objection", o.From, actorID, events.EventPayload{
			"against":  o.Against,
			"severity": string(o.Severity),
		}); err != nil {
			return err
		}
	}
	if err := e.Repo.SaveVerdict(ctx, tx, conv.DecisionID, conv.Fingerprint, verdict, now); err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "deliberation.completed", conv.DecisionID, "decision", conv.DecisionID, actorID, events.EventPayload{
		"verdict":     string(verdict.Verdict),
		"fingerprint": conv.Fingerprint,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Calibration outcomes accepted by RecordOutcome.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// RecordOutcome is the calibration sink: it nudges one advisor's base
// authority for a domain after the real-world result of an earlier verdict is
// known. The deliberation core only reads the resulting table.
func (e Engine) RecordOutcome(ctx context.Context, advisor, domainName, outcome, actorID string) (domain.Authority, error) {
	if e.Config == nil {
		return domain.Authority{}, errors.New("config not loaded")
	}
	seat, ok := e.Config.Council.Advisors[advisor]
	if !ok {
		return domain.Authority{}, fmt.Errorf("unknown advisor %s", advisor)
	}
	var delta float64
	switch outcome {
	case OutcomeSuccess:
		delta = calibrationStep
	case OutcomePartial:
		delta = 0
	case OutcomeFailure:
		delta = -calibrationStep
	default:
		return domain.Authority{}, fmt.Errorf("unknown outcome %q", outcome)
	}
	current := seat.BaseAuthority
	if a, err := e.Repo.GetAuthority(ctx, advisor, domainName); err == nil {
		current = a.Value
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Authority{}, err
	}
	value := current + delta
	if value < authorityFloor {
		value = authorityFloor
	}
	if value > authorityCeil {
		value = authorityCeil
	}
	a := domain.Authority{
		Advisor:   advisor,
		Domain:    domainName,
		Value:     value,
		UpdatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Authority{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAuthority(ctx, tx, a); err != nil {
		return domain.Authority{}, err
	}
	if err := e.Events.Append(ctx, tx, "authority.calibrated", "", "authority", advisor, actorID, events.EventPayload{
		"domain":  domainName,
		"outcome": outcome,
		"value":   value,
	}); err != nil {
		return domain.Authority{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Authority{}, err
	}
	return a, nil
}

func sortedPaths(dctx domain.DecisionContext) []string {
	paths := make([]string, 0, len(dctx))
	for p := range dctx {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
