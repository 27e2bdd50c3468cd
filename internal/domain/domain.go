package domain

// Stance is an advisor's declared position on the decision question.
type Stance string

const (
	StanceSupport     Stance = "SUPPORT"
	StanceOppose      Stance = "OPPOSE"
	StanceConditional Stance = "CONDITIONAL"
	StanceAbstain     Stance = "ABSTAIN"
)

// ValidStance reports whether s is one of the four allowed stances.
func ValidStance(s Stance) bool {
	switch s {
	case StanceSupport, StanceOppose, StanceConditional, StanceAbstain:
		return true
	}
	return false
}

// Severity grades objections and contradictions.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Field is one leaf of a decision context: an observed value plus how much it
// is trusted and whether it is considered settled.
type Field struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Stable     bool    `json:"stable"`
}

// DecisionContext is the fact tree a council deliberates over, keyed by dotted
// field path (e.g. "risk.max_loss_percent"). Frozen once deliberation begins;
// earlier mutation only happens through the gatekeeper-approved
// question/answer cycle.
type DecisionContext map[string]Field

// Resolve reports whether path names a field or a subtree of the context.
func (c DecisionContext) Resolve(path string) bool {
	if path == "" {
		return false
	}
	if _, ok := c[path]; ok {
		return true
	}
	prefix := path + "."
	for k := range c {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Decision is one question put before the council.
type Decision struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Status    string   `json:"status" enum:"open,deliberated"`
	Quorum    []string `json:"quorum,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

// Convocation identifies one deliberation round for audit purposes. The
// fingerprint is a stable hash of the canonicalized context; it never feeds
// branching logic.
type Convocation struct {
	DecisionID  string   `json:"decision_id"`
	Fingerprint string   `json:"fingerprint"`
	Advisors    []string `json:"advisors"`
}

// Position is one advisor's independent statement. Created once per advisor
// per decision and never mutated after validation; an invalid position is
// discarded, not repaired.
type Position struct {
	Advisor            string   `json:"advisor"`
	Stance             Stance   `json:"stance" enum:"SUPPORT,OPPOSE,CONDITIONAL,ABSTAIN"`
	Confidence         float64  `json:"confidence" minimum:"0" maximum:"1"`
	Claim              string   `json:"claim"`
	BlockingConditions []string `json:"blocking_conditions,omitempty"`
	NonNegotiables     []string `json:"non_negotiables,omitempty"`
}

// Objection is a cross-advisor challenge. At most two per issuing advisor per
// decision; never against oneself; never twice against the same target.
type Objection struct {
	From     string   `json:"from"`
	Against  string   `json:"against"`
	Severity Severity `json:"severity" enum:"LOW,MEDIUM,HIGH"`
	Text     string   `json:"text"`
}

// ContradictionType is the closed set of structural conflicts the detector
// recognizes.
type ContradictionType string

const (
	ContradictionStrategySurvival   ContradictionType = "strategy_vs_survival"
	ContradictionPowerLegitimacy    ContradictionType = "power_vs_legitimacy"
	ContradictionSpeedReversibility ContradictionType = "speed_vs_reversibility"
	ContradictionDesireTrajectory   ContradictionType = "desire_vs_trajectory"
	ContradictionFeasibility        ContradictionType = "feasibility_confidence_mismatch"
)

// Contradiction is an advisory annotation on the outcome; it never alters the
// adjudication table.
type Contradiction struct {
	Type     ContradictionType `json:"type"`
	Severity Severity          `json:"severity" enum:"LOW,MEDIUM,HIGH"`
	Advisors []string          `json:"advisors"`
	Detail   string            `json:"detail"`
}

// VerdictType enumerates the only three legal outcomes.
type VerdictType string

const (
	VerdictProceed   VerdictType = "PROCEED"
	VerdictProceedIf VerdictType = "PROCEED_IF"
	VerdictNoAction  VerdictType = "NO_ACTION"
)

// Verdict is the single deterministic output of a deliberation. The
// dominant-advisor list keeps its historical wire name dominant_ministers.
type Verdict struct {
	Verdict           VerdictType     `json:"verdict" enum:"PROCEED,PROCEED_IF,NO_ACTION"`
	DominantMinisters []string        `json:"dominant_ministers,omitempty"`
	Conditions        []string        `json:"conditions,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Contradictions    []Contradiction `json:"contradictions,omitempty"`
}

// SilenceReason marks the canonical "no advice" verdict. Distinct from an
// error: silence is a legal outcome, not a failure.
const SilenceReason = "the council is silent"

// Silence returns the silence sentinel verdict.
func Silence() Verdict {
	return Verdict{Verdict: VerdictNoAction, Reason: SilenceReason}
}

// Question history entry statuses.
const (
	QuestionAllowed  = "ALLOWED"
	QuestionRejected = "REJECTED"
)

// QuestionEntry is one row of the gatekeeper's append-only history.
type QuestionEntry struct {
	ID           int64  `json:"id"`
	DecisionID   string `json:"decision_id"`
	TS           string `json:"ts" format:"date-time"`
	Requester    string `json:"requester"`
	Field        string `json:"field"`
	Reason       string `json:"reason,omitempty"`
	Status       string `json:"status" enum:"ALLOWED,REJECTED"`
	RejectReason string `json:"reject_reason,omitempty"`
	Answered     bool   `json:"answered"`
}

// Authority is one calibrated base-authority value for an advisor in a domain.
type Authority struct {
	Advisor   string  `json:"advisor"`
	Domain    string  `json:"domain"`
	Value     float64 `json:"value"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

// Event is one append-only audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	DecisionID string `json:"decision_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates an actor against the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
