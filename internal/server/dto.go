package server

import (
	"sovereign/internal/domain"
)

type CreateDecisionRequest struct {
	ID       string                  `json:"id"`
	Question string                  `json:"question"`
	Context  map[string]FieldRequest `json:"context,omitempty"`
}

type FieldRequest struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence" minimum:"0" maximum:"1"`
	Stable     bool    `json:"stable,omitempty"`
}

type DecisionResponse struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Status    string   `json:"status" enum:"open,deliberated"`
	Quorum    []string `json:"quorum"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

type AskRequest struct {
	Requester string `json:"requester"`
	Field     string `json:"field"`
	Reason    string `json:"reason,omitempty"`
}

type RulingResponse struct {
	Status       string `json:"status" enum:"ALLOWED,REJECTED"`
	RejectReason string `json:"reject_reason,omitempty"`
}

type AnswerRequest struct {
	Field      string  `json:"field"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence" minimum:"0" maximum:"1"`
	Stable     bool    `json:"stable,omitempty"`
}

type PositionRequest struct {
	Advisor            string   `json:"advisor"`
	Stance             string   `json:"stance" enum:"SUPPORT,OPPOSE,CONDITIONAL,ABSTAIN"`
	Confidence         float64  `json:"confidence" minimum:"0" maximum:"1"`
	Claim              string   `json:"claim"`
	BlockingConditions []string `json:"blocking_conditions,omitempty"`
	NonNegotiables     []string `json:"non_negotiables,omitempty"`
}

type ObjectionRequest struct {
	From     string `json:"from"`
	Against  string `json:"against"`
	Severity string `json:"severity" enum:"LOW,MEDIUM,HIGH"`
	Text     string `json:"text"`
}

type DeliberateRequest struct {
	Positions  []PositionRequest  `json:"positions,omitempty"`
	Objections []ObjectionRequest `json:"objections,omitempty"`
}

type OutcomeRequest struct {
	Advisor string `json:"advisor"`
	Domain  string `json:"domain"`
	Outcome string `json:"outcome" enum:"success,partial,failure"`
}

type ContextFieldResponse struct {
	Path       string  `json:"path"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Stable     bool    `json:"stable"`
}

type AdvisorResponse struct {
	Name           string   `json:"name"`
	Title          string   `json:"title,omitempty"`
	Domains        []string `json:"domains"`
	BaseAuthority  float64  `json:"base_authority"`
	RequiredFields []string `json:"required_fields,omitempty"`
	RiskSentinel   bool     `json:"risk_sentinel,omitempty"`
}

func decisionResponse(d domain.Decision) DecisionResponse {
	quorum := d.Quorum
	if quorum == nil {
		quorum = []string{}
	}
	return DecisionResponse{
		ID:        d.ID,
		Question:  d.Question,
		Status:    d.Status,
		Quorum:    quorum,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func mapDecisions(in []domain.Decision) []DecisionResponse {
	out := make([]DecisionResponse, 0, len(in))
	for _, d := range in {
		out = append(out, decisionResponse(d))
	}
	return out
}

func toPosition(p PositionRequest) domain.Position {
	return domain.Position{
		Advisor:            p.Advisor,
		Stance:             domain.Stance(p.Stance),
		Confidence:         p.Confidence,
		Claim:              p.Claim,
		BlockingConditions: p.BlockingConditions,
		NonNegotiables:     p.NonNegotiables,
	}
}

func toObjection(o ObjectionRequest) domain.Objection {
	return domain.Objection{
		From:     o.From,
		Against:  o.Against,
		Severity: domain.Severity(o.Severity),
		Text:     o.Text,
	}
}

func toField(f FieldRequest) domain.Field {
	return domain.Field{Value: f.Value, Confidence: f.Confidence, Stable: f.Stable}
}
