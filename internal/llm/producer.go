package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"sovereign/internal/config"
	"sovereign/internal/domain"
	"sovereign/internal/engine"
)

// DefaultChatModel is the model used when SOVEREIGN_OPENAI_MODEL is unset.
const DefaultChatModel = "gpt-4o-mini"

// ClientConfig holds the model-backed producer settings.
type ClientConfig struct {
	APIKey     string
	ChatModel  string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns producer settings from the environment.
func DefaultConfig(apiKey string) ClientConfig {
	model := os.Getenv("SOVEREIGN_OPENAI_MODEL")
	if model == "" {
		model = DefaultChatModel
	}
	return ClientConfig{
		APIKey:     apiKey,
		ChatModel:  model,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// Client produces advisor positions and objections from a chat model. All
// network latency and retries live here; the deliberation core only sees a
// Position or an error.
type Client struct {
	client     *openai.Client
	chatModel  string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required; set OPENAI_API_KEY")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		client:     openai.NewClient(cfg.APIKey),
		chatModel:  cfg.ChatModel,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
	}, nil
}

// Producers builds one position producer per configured advisor.
func (c *Client) Producers(advisors map[string]config.Advisor) map[string]engine.Producer {
	out := make(map[string]engine.Producer, len(advisors))
	for name, a := range advisors {
		out[name] = c.producerFor(name, a)
	}
	return out
}

const positionSystemPrompt = `You are %s, %s, one seat on a deliberation council.
Your jurisdiction: %s.

Given a decision question and a context of observed fields, state your position.
Respond with ONLY a JSON object:
{"stance":"SUPPORT|OPPOSE|CONDITIONAL|ABSTAIN","confidence":0.0-1.0,"claim":"one declarative sentence","blocking_conditions":["..."],"non_negotiables":["..."]}

Rules:
- The claim must be a single declarative statement. No questions, no advice to peers, no references to other advisors.
- Judge only within your jurisdiction; ABSTAIN with low confidence outside it.
- blocking_conditions and non_negotiables may be empty arrays.`

func (c *Client) producerFor(name string, seat config.Advisor) engine.Producer {
	title := seat.Title
	if title == "" {
		title = name
	}
	system := fmt.Sprintf(positionSystemPrompt, name, title, strings.Join(seat.Domains, ", "))
	return engine.ProducerFunc(func(ctx context.Context, dctx domain.DecisionContext, question string) (domain.Position, error) {
		user := fmt.Sprintf("Question: %s\n\nContext:\n%s", question, renderContext(dctx))
		raw, err := c.complete(ctx, system, user)
		if err != nil {
			return domain.Position{}, err
		}
		var body struct {
			Stance             string   `json:"stance"`
			Confidence         float64  `json:"confidence"`
			Claim              string   `json:"claim"`
			BlockingConditions []string `json:"blocking_conditions"`
			NonNegotiables     []string `json:"non_negotiables"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return domain.Position{}, fmt.Errorf("advisor %s returned invalid JSON: %w", name, err)
		}
		return domain.Position{
			Advisor:            name,
			Stance:             domain.Stance(body.Stance),
			Confidence:         body.Confidence,
			Claim:              body.Claim,
			BlockingConditions: body.BlockingConditions,
			NonNegotiables:     body.NonNegotiables,
		}, nil
	})
}

const objectionSystemPrompt = `You are %s, one seat on a deliberation council.
You have read every advisor's position. Raise at most 2 objections against
positions you consider dangerous or wrong. Never object to your own position
and never twice against the same advisor.
Respond with ONLY a JSON array (possibly empty):
[{"against":"advisor-name","severity":"LOW|MEDIUM|HIGH","text":"one sentence"}]`

// Objections returns an objection producer over the same client.
func (c *Client) Objections() engine.ObjectionProducer {
	return engine.ObjectionProducerFunc(func(ctx context.Context, dctx domain.DecisionContext, positions []domain.Position, advisor string) ([]domain.Objection, error) {
		system := fmt.Sprintf(objectionSystemPrompt, advisor)
		var b strings.Builder
		for _, p := range positions {
			fmt.Fprintf(&b, "%s: %s (%.2f) %q\n", p.Advisor, p.Stance, p.Confidence, p.Claim)
		}
		raw, err := c.complete(ctx, system, "Positions in speaking order:\n"+b.String())
		if err != nil {
			return nil, err
		}
		var body []struct {
			Against  string `json:"against"`
			Severity string `json:"severity"`
			Text     string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return nil, fmt.Errorf("advisor %s returned invalid objection JSON: %w", advisor, err)
		}
		out := make([]domain.Objection, 0, len(body))
		for _, o := range body {
			out = append(out, domain.Objection{
				From:     advisor,
				Against:  o.Against,
				Severity: domain.Severity(o.Severity),
				Text:     o.Text,
			})
		}
		return out, nil
	})
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0.1,
		})
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no completion choices returned", attempt+1)
			continue
		}
		return stripFences(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// stripFences removes a markdown code fence the model may wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func renderContext(dctx domain.DecisionContext) string {
	paths := make([]string, 0, len(dctx))
	for p := range dctx {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var b strings.Builder
	for _, p := range paths {
		f := dctx[p]
		value, _ := json.Marshal(f.Value)
		fmt.Fprintf(&b, "- %s = %s (confidence %.2f, stable %t)\n", p, value, f.Confidence, f.Stable)
	}
	if b.Len() == 0 {
		return "(no fields)"
	}
	return b.String()
}
