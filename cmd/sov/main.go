package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sovereign/internal/app"
	"sovereign/internal/config"
	"sovereign/internal/db"
	"sovereign/internal/domain"
	"sovereign/internal/engine"
	"sovereign/internal/llm"
	"sovereign/internal/migrate"
	"sovereign/internal/repo"
	"sovereign/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sov",
	Short: "Sovereign CLI",
	Long: `Sovereign runs bounded deliberations over hard decisions.
Core concepts:
- Workspace: your .sovereign directory holding only the database; the council config lives in the DB and is imported explicitly.
- Decision: one question put before the council, with a context tree of observed fields.
- Gatekeeper: guards a strict clarifying-question budget; every ask is ruled ALLOWED or REJECTED with a named reason.
- Council: configured advisors, each with domains, base authority, and required fields; the question text activates a quorum.
- Deliberation: advisors state independent positions, raise bounded objections, get weighted by authority x relevance x confidence, and a deterministic table issues PROCEED, PROCEED_IF, or NO_ACTION.
- Calibration: recorded outcomes nudge advisor authority up or down over time.
- Event log: diary of everything, view with 'sov log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("SOVEREIGN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(answerCmd())
	rootCmd.AddCommand(deliberateCmd())
	rootCmd.AddCommand(verdictCmd())
	rootCmd.AddCommand(councilCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func decisionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "decision", Short: "Manage decisions"}
	cmd.AddCommand(decisionCreateCmd())
	cmd.AddCommand(decisionListCmd())
	cmd.AddCommand(decisionShowCmd())
	cmd.AddCommand(decisionContextCmd())
	return cmd
}

func decisionCreateCmd() *cobra.Command {
	var id, question, contextFile string
	var fields []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Put a question before the council",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			dctx := domain.DecisionContext{}
			if contextFile != "" {
				data, err := os.ReadFile(contextFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &dctx); err != nil {
					return fmt.Errorf("invalid context file: %w", err)
				}
			}
			for _, f := range fields {
				path, field, err := parseFieldFlag(f)
				if err != nil {
					return err
				}
				dctx[path] = field
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDecision(ctx, engine.DecisionCreateOptions{
					ID:       id,
					Question: question,
					Context:  dctx,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "decision id (random UUID if omitted)")
	cmd.Flags().StringVar(&question, "question", "", "decision question")
	cmd.Flags().StringVar(&contextFile, "context-file", "", "JSON file with the initial context tree")
	cmd.Flags().StringArrayVar(&fields, "field", []string{}, "context field path=value (repeatable; value parsed as JSON, else string)")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func decisionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDecisions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Question", "Status", "Quorum"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, truncate(d.Question, 60), d.Status, strings.Join(d.Quorum, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func decisionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDecision(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func decisionContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <id>",
		Short: "Show a decision's context tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetDecision(ctx, args[0]); err != nil {
					return err
				}
				dctx, err := e.Repo.GetContext(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(dctx)
			})
		},
	}
	return cmd
}

func askCmd() *cobra.Command {
	var decisionID, requester, field, reason string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Request permission to ask a clarifying question",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ruling, err := e.Ask(ctx, decisionID, engine.AskRequest{
					Requester: requester,
					Field:     field,
					Reason:    reason,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(ruling)
			})
		},
	}
	cmd.Flags().StringVar(&decisionID, "decision", "", "decision id")
	cmd.Flags().StringVar(&requester, "requester", "", "requesting advisor")
	cmd.Flags().StringVar(&field, "field", "", "context field path")
	cmd.Flags().StringVar(&reason, "reason", "", "why the field is needed")
	_ = cmd.MarkFlagRequired("decision")
	_ = cmd.MarkFlagRequired("requester")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func answerCmd() *cobra.Command {
	var decisionID, field, value string
	var confidence float64
	var stable bool
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Answer an allowed question",
		RunE: func(cmd *cobra.Command, args []string) error {
			var parsed any
			if err := json.Unmarshal([]byte(value), &parsed); err != nil {
				parsed = value
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f := domain.Field{Value: parsed, Confidence: confidence, Stable: stable}
				if err := e.Answer(ctx, decisionID, field, f, viper.GetString("actor-id")); err != nil {
					return err
				}
				dctx, err := e.Repo.GetContext(ctx, decisionID)
				if err != nil {
					return err
				}
				return printJSONOrTable(dctx)
			})
		},
	}
	cmd.Flags().StringVar(&decisionID, "decision", "", "decision id")
	cmd.Flags().StringVar(&field, "field", "", "context field path")
	cmd.Flags().StringVar(&value, "value", "", "field value (parsed as JSON, else string)")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "confidence in [0,1]")
	cmd.Flags().BoolVar(&stable, "stable", true, "mark the field settled")
	_ = cmd.MarkFlagRequired("decision")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func deliberateCmd() *cobra.Command {
	var decisionID, positionsFile, objectionsFile string
	var useLLM bool
	cmd := &cobra.Command{
		Use:   "deliberate",
		Short: "Run the deliberation protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.DeliberateOptions{ActorID: viper.GetString("actor-id")}
				if useLLM {
					client, err := llm.NewClient(llm.DefaultConfig(os.Getenv("OPENAI_API_KEY")))
					if err != nil {
						return err
					}
					opts.Producers = client.Producers(e.Config.Council.Advisors)
					opts.Objections = client.Objections()
				} else {
					if positionsFile == "" {
						return fmt.Errorf("--positions required unless --llm is set")
					}
					positions, err := readPositions(positionsFile)
					if err != nil {
						return err
					}
					opts.Producers = make(map[string]engine.Producer, len(positions))
					for _, p := range positions {
						opts.Producers[p.Advisor] = engine.Static(p)
					}
					if objectionsFile != "" {
						objections, err := readObjections(objectionsFile)
						if err != nil {
							return err
						}
						byFrom := map[string][]domain.Objection{}
						for _, o := range objections {
							byFrom[o.From] = append(byFrom[o.From], o)
						}
						opts.Objections = engine.ObjectionProducerFunc(func(_ context.Context, _ domain.DecisionContext, _ []domain.Position, advisor string) ([]domain.Objection, error) {
							return byFrom[advisor], nil
						})
					}
				}
				verdict, err := e.Deliberate(ctx, decisionID, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(verdict)
			})
		},
	}
	cmd.Flags().StringVar(&decisionID, "decision", "", "decision id")
	cmd.Flags().StringVar(&positionsFile, "positions", "", "JSON file with advisor positions")
	cmd.Flags().StringVar(&objectionsFile, "objections", "", "JSON file with objections")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "produce positions with the configured model")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func verdictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verdict <decision-id>",
		Short: "Show a decision's verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, fingerprint, err := e.Repo.GetVerdict(ctx, args[0])
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("no verdict yet for decision %s", args[0])
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"verdict": v, "fingerprint": fingerprint})
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func councilCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "council", Short: "Council and calibration"}
	cmd.AddCommand(councilAdvisorsCmd())
	cmd.AddCommand(councilAuthorityCmd())
	cmd.AddCommand(councilOutcomeCmd())
	return cmd
}

func councilAdvisorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advisors",
		Short: "List configured advisors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config.Council.Advisors)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Title", "Authority", "Domains", "Sentinel"})
				for _, name := range sortedAdvisorNames(e.Config) {
					a := e.Config.Council.Advisors[name]
					tw.AppendRow(table.Row{name, a.Title, fmt.Sprintf("%.2f", a.BaseAuthority), strings.Join(a.Domains, ","), a.RiskSentinel})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func councilAuthorityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Show calibrated authority values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAuthority(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func councilOutcomeCmd() *cobra.Command {
	var advisor, domainName, outcome string
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Record a decision outcome for calibration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.RecordOutcome(ctx, advisor, domainName, outcome, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&advisor, "advisor", "", "advisor name")
	cmd.Flags().StringVar(&domainName, "domain", "", "domain the outcome concerns")
	cmd.Flags().StringVar(&outcome, "outcome", "", "success, partial, or failure")
	_ = cmd.MarkFlagRequired("advisor")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage council config"}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configImportCmd())
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show council config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import council config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				if err := r.UpsertCouncilConfig(ctx, cfg, now); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default sovereign.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the raw key is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			raw := uuid.NewString() + uuid.NewString()
			k := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   actorID,
				Name:      name,
				KeyHash:   repo.HashAPIKey(raw),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       k.ID,
					"actor_id": k.ActorID,
					"key":      raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: decisions, rulings, positions, verdicts, and calibrations.",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var decisionID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.TailEvents(ctx, n, decisionID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&decisionID, "decision", "", "decision id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SOVEREIGN_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SOVEREIGN_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Sovereign API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFieldFlag(raw string) (string, domain.Field, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		return "", domain.Field{}, fmt.Errorf("invalid --field %q; want path=value", raw)
	}
	var value any
	if err := json.Unmarshal([]byte(parts[1]), &value); err != nil {
		value = parts[1]
	}
	return strings.TrimSpace(parts[0]), domain.Field{Value: value, Confidence: 1.0, Stable: true}, nil
}

func readPositions(path string) ([]domain.Position, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var positions []domain.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("invalid positions file: %w", err)
	}
	return positions, nil
}

func readObjections(path string) ([]domain.Objection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var objections []domain.Objection
	if err := json.Unmarshal(data, &objections); err != nil {
		return nil, fmt.Errorf("invalid objections file: %w", err)
	}
	return objections, nil
}

func sortedAdvisorNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Council.Advisors))
	for n := range cfg.Council.Advisors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
