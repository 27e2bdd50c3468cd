package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sovereign/internal/config"
	"sovereign/internal/db"
	"sovereign/internal/domain"
	"sovereign/internal/engine"
	"sovereign/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*config.Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	e := engine.New(conn, cfg)
	e.Quorum = engine.StaticQuorum{"risk", "truth"}
	handler, err := New(Config{
		Engine: e,
		Auth:   AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func actorHeaders() map[string]string {
	return map[string]string{"X-Actor-Id": "tester"}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", string(data), err)
	}
	return envelope.Error.Code
}

func TestHealthUnauthenticated(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/decisions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d %s, want 401", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("code = %q, want unauthorized", code)
	}
}

func TestJWTAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "jwt-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions", map[string]any{
		"id":       "d-jwt",
		"question": "launch",
	}, map[string]string{"Authorization": "Bearer " + signed})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("code = %q, want invalid_credentials", code)
	}
}

func TestDecisionDeliberationFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, func(cfg *config.Config) {
		cfg.Gatekeeper.MaxQuestions = 0
	})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions", map[string]any{
		"id":       "d1",
		"question": "take the deal",
		"context": map[string]any{
			"risk.max_loss_percent": map[string]any{"value": 2.0, "confidence": 0.9, "stable": true},
		},
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created struct {
		Status string   `json:"status"`
		Quorum []string `json:"quorum"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}
	if created.Status != "open" || len(created.Quorum) != 2 {
		t.Fatalf("created = %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/d1/deliberate", map[string]any{
		"positions": []map[string]any{
			{"advisor": "risk", "stance": "CONDITIONAL", "confidence": 0.9, "claim": "Tolerable under the cap.", "non_negotiables": []string{"cap losses at 2%"}},
			{"advisor": "truth", "stance": "SUPPORT", "confidence": 0.85, "claim": "The figures are verified."},
		},
	}, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deliberate: %d %s", res.StatusCode, string(data))
	}
	var verdict domain.Verdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		t.Fatalf("unmarshal verdict: %v", err)
	}
	if verdict.Verdict != domain.VerdictProceed {
		t.Fatalf("verdict = %+v, want PROCEED", verdict)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions/d1/verdict", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get verdict: %d %s", res.StatusCode, string(data))
	}
	var fetched domain.Verdict
	if err := json.Unmarshal(data, &fetched); err != nil {
		t.Fatal(err)
	}
	if fetched.Verdict != verdict.Verdict {
		t.Fatalf("fetched = %+v, want %+v", fetched, verdict)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions/d1/positions", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("positions: %d %s", res.StatusCode, string(data))
	}
	var positions []domain.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %+v", positions)
	}

	// Second deliberation conflicts with the frozen decision.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/d1/deliberate", map[string]any{
		"positions": []map[string]any{},
	}, actorHeaders())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("re-deliberate: %d %s, want 409", res.StatusCode, string(data))
	}
}

func TestDeliberatePreconditionEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions", map[string]any{
		"id":       "d1",
		"question": "take the deal",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}

	// Budget of 3 untouched: the context is still open.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/d1/deliberate", map[string]any{
		"positions": []map[string]any{},
	}, actorHeaders())
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("deliberate: %d %s, want 422", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "precondition_failed" {
		t.Fatalf("code = %q, want precondition_failed", code)
	}
}

func TestAskAndAnswerEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions", map[string]any{
		"id":       "d1",
		"question": "take the deal",
		"context": map[string]any{
			"risk.max_loss_percent": map[string]any{},
		},
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/d1/questions", map[string]any{
		"requester": "risk",
		"field":     "risk.max_loss_percent",
		"reason":    "need the loss bound",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("ask: %d %s", res.StatusCode, string(data))
	}
	var ruling RulingResponse
	if err := json.Unmarshal(data, &ruling); err != nil {
		t.Fatal(err)
	}
	if ruling.Status != domain.QuestionAllowed {
		t.Fatalf("ruling = %+v", ruling)
	}

	// Rejections come back as rulings, not HTTP errors.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/d1/questions", map[string]any{
		"requester": "risk",
		"field":     "no.such.field",
		"reason":    "need it",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("ask invalid: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &ruling); err != nil {
		t.Fatal(err)
	}
	if ruling.Status != domain.QuestionRejected || ruling.RejectReason != engine.RejectFieldInvalid {
		t.Fatalf("ruling = %+v", ruling)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions/d1/answers", map[string]any{
		"field":      "risk.max_loss_percent",
		"value":      2.0,
		"confidence": 0.9,
		"stable":     true,
	}, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("answer: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions/d1/questions", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, string(data))
	}
	var history []domain.QuestionEntry
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %+v, want 2 entries", history)
	}
}

func TestCouncilEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/council/advisors", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advisors: %d %s", res.StatusCode, string(data))
	}
	var advisors []AdvisorResponse
	if err := json.Unmarshal(data, &advisors); err != nil {
		t.Fatal(err)
	}
	if len(advisors) != 5 || advisors[0].Name != "legitimacy" {
		t.Fatalf("advisors = %+v", advisors)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/council/outcomes", map[string]any{
		"advisor": "risk",
		"domain":  "risk",
		"outcome": "success",
	}, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("outcome: %d %s", res.StatusCode, string(data))
	}
	var authority domain.Authority
	if err := json.Unmarshal(data, &authority); err != nil {
		t.Fatal(err)
	}
	if authority.Value != 1.25 {
		t.Fatalf("authority = %+v, want 1.25", authority)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/council/outcomes", map[string]any{
		"advisor": "nobody",
		"domain":  "risk",
		"outcome": "success",
	}, actorHeaders())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown advisor: %d %s, want 400", res.StatusCode, string(data))
	}
}

func TestGetUnknownDecision(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/decisions/ghost", nil, actorHeaders())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d %s, want 404", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("code = %q, want not_found", code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/decisions", map[string]any{
		"id":       "d1",
		"question": "take the deal",
	}, actorHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?decision_id=d1", nil, actorHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 || events[len(events)-1].Type != "decision.created" {
		t.Fatalf("events = %+v", events)
	}
}
