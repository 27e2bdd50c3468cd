package sovereignsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sovereign HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Field is one leaf of a decision context.
type Field struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Stable     bool    `json:"stable,omitempty"`
}

// Decision represents the API decision model.
type Decision struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Status    string   `json:"status"`
	Quorum    []string `json:"quorum"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// Ruling is the gatekeeper's answer to a question request.
type Ruling struct {
	Status       string `json:"status"`
	RejectReason string `json:"reject_reason,omitempty"`
}

// Position is one advisor's statement.
type Position struct {
	Advisor            string   `json:"advisor"`
	Stance             string   `json:"stance"`
	Confidence         float64  `json:"confidence"`
	Claim              string   `json:"claim"`
	BlockingConditions []string `json:"blocking_conditions,omitempty"`
	NonNegotiables     []string `json:"non_negotiables,omitempty"`
}

// Objection is a cross-advisor challenge.
type Objection struct {
	From     string `json:"from"`
	Against  string `json:"against"`
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// Contradiction annotates a verdict.
type Contradiction struct {
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	Advisors []string `json:"advisors"`
	Detail   string   `json:"detail"`
}

// Verdict is the deliberation outcome.
type Verdict struct {
	Verdict           string          `json:"verdict"`
	DominantMinisters []string        `json:"dominant_ministers,omitempty"`
	Conditions        []string        `json:"conditions,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Contradictions    []Contradiction `json:"contradictions,omitempty"`
}

// Authority is one calibrated authority value.
type Authority struct {
	Advisor   string  `json:"advisor"`
	Domain    string  `json:"domain"`
	Value     float64 `json:"value"`
	UpdatedAt string  `json:"updated_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	DecisionID string `json:"decision_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDecision puts a question before the council.
func (c *Client) CreateDecision(ctx context.Context, id, question string, dctx map[string]Field) (Decision, error) {
	body := map[string]any{
		"id":       id,
		"question": question,
	}
	if len(dctx) > 0 {
		body["context"] = dctx
	}
	var resp Decision
	err := c.do(ctx, http.MethodPost, "v0/decisions", body, &resp)
	return resp, err
}

// GetDecision fetches a decision by id.
func (c *Client) GetDecision(ctx context.Context, id string) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodGet, c.decisionPath(id, ""), nil, &resp)
	return resp, err
}

// ListDecisions returns all decisions.
func (c *Client) ListDecisions(ctx context.Context) ([]Decision, error) {
	var resp []Decision
	err := c.do(ctx, http.MethodGet, "v0/decisions", nil, &resp)
	return resp, err
}

// Ask requests permission to ask a clarifying question.
func (c *Client) Ask(ctx context.Context, decisionID, requester, field, reason string) (Ruling, error) {
	body := map[string]any{
		"requester": requester,
		"field":     field,
		"reason":    reason,
	}
	var resp Ruling
	err := c.do(ctx, http.MethodPost, c.decisionPath(decisionID, "questions"), body, &resp)
	return resp, err
}

// Answer fills a context field through an allowed question slot.
func (c *Client) Answer(ctx context.Context, decisionID, field string, value any, confidence float64, stable bool) error {
	body := map[string]any{
		"field":      field,
		"value":      value,
		"confidence": confidence,
		"stable":     stable,
	}
	return c.do(ctx, http.MethodPost, c.decisionPath(decisionID, "answers"), body, nil)
}

// Deliberate runs the protocol with caller-supplied positions and objections.
func (c *Client) Deliberate(ctx context.Context, decisionID string, positions []Position, objections []Objection) (Verdict, error) {
	body := map[string]any{
		"positions":  positions,
		"objections": objections,
	}
	var resp Verdict
	err := c.do(ctx, http.MethodPost, c.decisionPath(decisionID, "deliberate"), body, &resp)
	return resp, err
}

// Verdict fetches a decision's verdict.
func (c *Client) Verdict(ctx context.Context, decisionID string) (Verdict, error) {
	var resp Verdict
	err := c.do(ctx, http.MethodGet, c.decisionPath(decisionID, "verdict"), nil, &resp)
	return resp, err
}

// RecordOutcome records a decision outcome for calibration.
func (c *Client) RecordOutcome(ctx context.Context, advisor, domain, outcome string) (Authority, error) {
	body := map[string]any{
		"advisor": advisor,
		"domain":  domain,
		"outcome": outcome,
	}
	var resp Authority
	err := c.do(ctx, http.MethodPost, "v0/council/outcomes", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int, decisionID string) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if decisionID != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%sdecision_id=%s", endpoint, sep, url.QueryEscape(decisionID))
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) decisionPath(id, sub string) string {
	p := fmt.Sprintf("v0/decisions/%s", url.PathEscape(id))
	if sub != "" {
		p += "/" + strings.TrimLeft(sub, "/")
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
