package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"sovereign/internal/domain"
	"sovereign/internal/engine"
	"sovereign/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"precondition_failed"`
	Message string         `json:"message" example:"deliberation precondition failed: question budget not exhausted (1 of 3 used)"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Sovereign API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Sovereign API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDecisions(group, cfg.Engine)
	registerQuestions(group, cfg.Engine)
	registerDeliberation(group, cfg.Engine)
	registerCouncil(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pe engine.PreconditionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusUnprocessableEntity, "precondition_failed", err.Error(), map[string]any{"reason": pe.Reason})
	}
	var vce engine.VerdictContractError
	if errors.As(err, &vce) {
		return newAPIError(http.StatusInternalServerError, "verdict_contract_violation", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "frozen"), strings.Contains(lowered, "transition"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown") || strings.Contains(lowered, "out of"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDecisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-decision",
		Method:        http.MethodPost,
		Path:          "/decisions",
		Summary:       "Create decision",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDecisionRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" || input.Body.Question == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id and question are required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		dctx := domain.DecisionContext{}
		for p, f := range input.Body.Context {
			dctx[p] = toField(f)
		}
		d, err := e.CreateDecision(ctx, engine.DecisionCreateOptions{
			ID:       input.Body.ID,
			Question: input.Body.Question,
			Context:  dctx,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "List decisions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DecisionResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListDecisions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DecisionResponse `json:"body"`
		}{Body: mapDecisions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-decision",
		Method:      http.MethodGet,
		Path:        "/decisions/{id}",
		Summary:     "Get decision",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDecision(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-decision-context",
		Method:      http.MethodGet,
		Path:        "/decisions/{id}/context",
		Summary:     "Get decision context",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []ContextFieldResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetDecision(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		dctx, err := e.Repo.GetContext(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		fields := make([]ContextFieldResponse, 0, len(dctx))
		for p, f := range dctx {
			fields = append(fields, ContextFieldResponse{Path: p, Value: f.Value, Confidence: f.Confidence, Stable: f.Stable})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
		return &struct {
			Body []ContextFieldResponse `json:"body"`
		}{Body: fields}, nil
	})
}

func registerQuestions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "ask-question",
		Method:        http.MethodPost,
		Path:          "/decisions/{id}/questions",
		Summary:       "Request permission to ask a clarifying question",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string     `path:"id"`
		Body AskRequest `json:"body"`
	}) (*struct {
		Body RulingResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ruling, err := e.Ask(ctx, input.ID, engine.AskRequest{
			Requester: input.Body.Requester,
			Field:     input.Body.Field,
			Reason:    input.Body.Reason,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RulingResponse `json:"body"`
		}{Body: RulingResponse{Status: ruling.Status, RejectReason: ruling.RejectReason}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "question-history",
		Method:      http.MethodGet,
		Path:        "/decisions/{id}/questions",
		Summary:     "Question history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.QuestionEntry `json:"body"`
	}, error) {
		if _, err := e.Repo.GetDecision(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		history, err := e.Repo.QuestionHistory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if history == nil {
			history = []domain.QuestionEntry{}
		}
		return &struct {
			Body []domain.QuestionEntry `json:"body"`
		}{Body: history}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "answer-question",
		Method:      http.MethodPost,
		Path:        "/decisions/{id}/answers",
		Summary:     "Answer an allowed question",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AnswerRequest `json:"body"`
	}) (*struct {
		Body []ContextFieldResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Field == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "field is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := domain.Field{Value: input.Body.Value, Confidence: input.Body.Confidence, Stable: input.Body.Stable}
		if err := e.Answer(ctx, input.ID, input.Body.Field, f, actorID); err != nil {
			return nil, handleError(err)
		}
		dctx, err := e.Repo.GetContext(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		fields := make([]ContextFieldResponse, 0, len(dctx))
		for p, fv := range dctx {
			fields = append(fields, ContextFieldResponse{Path: p, Value: fv.Value, Confidence: fv.Confidence, Stable: fv.Stable})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
		return &struct {
			Body []ContextFieldResponse `json:"body"`
		}{Body: fields}, nil
	})
}

func registerDeliberation(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "deliberate",
		Method:      http.MethodPost,
		Path:        "/decisions/{id}/deliberate",
		Summary:     "Run the deliberation protocol",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body DeliberateRequest `json:"body"`
	}) (*struct {
		Body domain.Verdict `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		producers := make(map[string]engine.Producer, len(input.Body.Positions))
		for _, p := range input.Body.Positions {
			producers[p.Advisor] = engine.Static(toPosition(p))
		}
		byFrom := map[string][]domain.Objection{}
		for _, o := range input.Body.Objections {
			byFrom[o.From] = append(byFrom[o.From], toObjection(o))
		}
		objections := engine.ObjectionProducerFunc(func(_ context.Context, _ domain.DecisionContext, _ []domain.Position, advisor string) ([]domain.Objection, error) {
			return byFrom[advisor], nil
		})
		verdict, err := e.Deliberate(ctx, input.ID, engine.DeliberateOptions{
			Producers:  producers,
			Objections: objections,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Verdict `json:"body"`
		}{Body: verdict}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-verdict",
		Method:      http.MethodGet,
		Path:        "/decisions/{id}/verdict",
		Summary:     "Get verdict",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Verdict `json:"body"`
	}, error) {
		v, _, err := e.Repo.GetVerdict(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Verdict `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-positions",
		Method:      http.MethodGet,
		Path:        "/decisions/{id}/positions",
		Summary:     "List accepted positions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Position `json:"body"`
	}, error) {
		if _, err := e.Repo.GetDecision(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListPositions(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Position{}
		}
		return &struct {
			Body []domain.Position `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-objections",
		Method:      http.MethodGet,
		Path:        "/decisions/{id}/objections",
		Summary:     "List accepted objections",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Objection `json:"body"`
	}, error) {
		if _, err := e.Repo.GetDecision(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListObjections(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Objection{}
		}
		return &struct {
			Body []domain.Objection `json:"body"`
		}{Body: items}, nil
	})
}

func registerCouncil(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-advisors",
		Method:      http.MethodGet,
		Path:        "/council/advisors",
		Summary:     "List configured advisors",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AdvisorResponse `json:"body"`
	}, error) {
		out := make([]AdvisorResponse, 0, len(e.Config.Council.Advisors))
		for name, a := range e.Config.Council.Advisors {
			out = append(out, AdvisorResponse{
				Name:           name,
				Title:          a.Title,
				Domains:        a.Domains,
				BaseAuthority:  a.BaseAuthority,
				RequiredFields: a.RequiredFields,
				RiskSentinel:   a.RiskSentinel,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return &struct {
			Body []AdvisorResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-authority",
		Method:      http.MethodGet,
		Path:        "/council/authority",
		Summary:     "List calibrated authority values",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Authority `json:"body"`
	}, error) {
		items, err := e.Repo.ListAuthority(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Authority{}
		}
		return &struct {
			Body []domain.Authority `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-outcome",
		Method:      http.MethodPost,
		Path:        "/council/outcomes",
		Summary:     "Record a decision outcome for calibration",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body OutcomeRequest `json:"body"`
	}) (*struct {
		Body domain.Authority `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Advisor == "" || input.Body.Domain == "" || input.Body.Outcome == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "advisor, domain, and outcome are required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RecordOutcome(ctx, input.Body.Advisor, input.Body.Domain, input.Body.Outcome, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Authority `json:"body"`
		}{Body: a}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "tail-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50"`
		DecisionID string `query:"decision_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.TailEvents(ctx, input.Limit, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Sovereign API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
