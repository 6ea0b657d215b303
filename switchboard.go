// Package switchboard is the public API for embedding the message
// routing and handoff server.
//
// Consumers import this package to construct and extend the server
// without forking it:
//
//	app, err := switchboard.New(
//	    switchboard.WithVersion(version),
//	    switchboard.WithLogger(logger),
//	    switchboard.WithPersonaHandler(switchboard.PersonaSeller, mySellerBot{}),
//	    switchboard.WithCRM(myCRMClient{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: switchboard (root)
// imports internal/*, but internal/* never imports the root. Public
// types (Event, Outcome, Handoff, etc.) are standalone structs with no
// internal imports; the conversion helpers live here because this is
// the only file that sees both sides of the boundary.
package switchboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/leadline-ai/switchboard/api"
	"github.com/leadline-ai/switchboard/internal/auth"
	"github.com/leadline-ai/switchboard/internal/compliance"
	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/crm"
	"github.com/leadline-ai/switchboard/internal/dedup"
	"github.com/leadline-ai/switchboard/internal/engine"
	"github.com/leadline-ai/switchboard/internal/handoff"
	"github.com/leadline-ai/switchboard/internal/model"
	"github.com/leadline-ai/switchboard/internal/persona"
	"github.com/leadline-ai/switchboard/internal/ratelimit"
	"github.com/leadline-ai/switchboard/internal/server"
	"github.com/leadline-ai/switchboard/internal/storage"
	"github.com/leadline-ai/switchboard/internal/telemetry"
	"github.com/leadline-ai/switchboard/migrations"
)

// App is the server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        storage.Store
	eng          *engine.Engine
	srv          *server.Server
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the server. It connects to the database (or selects
// the in-memory store), runs migrations, wires all pipeline stages, and
// returns a ready-to-run App. It does NOT start any goroutines or
// accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("switchboard starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Storage: Postgres when configured, in-memory otherwise.
	var store storage.Store
	if cfg.DatabaseURL != "" {
		db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("migrations: %w", err)
		}
		for i, extraFS := range o.extraMigrations {
			if err := db.RunMigrations(context.Background(), extraFS); err != nil {
				db.Close(context.Background())
				_ = otelShutdown(context.Background())
				return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
			}
		}
		store = db
	} else {
		logger.Warn("storage: in-memory (no DATABASE_URL) — state will not survive a restart")
		store = storage.NewMemory()
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		store.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Compliance scorer — external override takes priority over auto-detect.
	var scorer compliance.Scorer
	if o.complianceScorer != nil {
		scorer = &scorerAdapter{s: o.complianceScorer}
	} else {
		scorer = newComplianceScorer(cfg, logger)
	}
	guard, err := compliance.NewGuard(cfg, scorer, logger)
	if err != nil {
		store.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("compliance: %w", err)
	}

	// CRM collaborator.
	var crmClient crm.Client
	switch {
	case o.crm != nil:
		crmClient = &crmAdapter{c: o.crm}
	case cfg.CRMBaseURL != "":
		crmClient = crm.NewHTTPClient(cfg.CRMBaseURL, cfg.CRMAPIKey, cfg.CRMTimeout, cfg.CRMMaxRetries, logger)
		logger.Info("crm: http", "base_url", cfg.CRMBaseURL)
	default:
		crmClient = crm.Noop{}
		logger.Warn("crm: noop (no SWBD_CRM_BASE_URL) — actions are computed but not delivered")
	}

	// Persona handlers: built-in keyword handlers, with per-persona overrides.
	handlers := persona.DefaultRegistry(cfg)
	for p, h := range o.personaHandlers {
		handlers[model.Persona(p)] = &personaHandlerAdapter{h: h}
	}

	// Per-contact message rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewContactLimiter(ratelimit.Ceilings{
			PerMinute: cfg.RateLimitPerMinute,
			PerHour:   cfg.RateLimitPerHour,
			PerDay:    cfg.RateLimitPerDay,
		})
		logger.Info("rate limiting: per-contact sliding windows",
			"per_minute", cfg.RateLimitPerMinute,
			"per_hour", cfg.RateLimitPerHour,
			"per_day", cfg.RateLimitPerDay,
		)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	var hooks []engine.Hook
	for _, h := range o.eventHooks {
		hooks = append(hooks, &eventHookAdapter{hook: h})
	}

	eng := engine.New(
		cfg,
		logger,
		store,
		crmClient,
		handlers,
		guard,
		handoff.New(cfg, logger),
		limiter,
		dedup.NewCache(cfg.DedupTTL),
		hooks...,
	)

	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, (func(http.Handler) http.Handler)(mw))
	}

	srv, err := server.New(server.ServerConfig{
		Engine:      eng,
		Store:       store,
		CRM:         crmClient,
		JWTMgr:      jwtMgr,
		Logger:      logger,
		Cfg:         cfg,
		Version:     version,
		OpenAPISpec: api.OpenAPISpec,
		Middlewares: middlewares,
	})
	if err != nil {
		eng.Close()
		store.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("server: %w", err)
	}

	return &App{
		cfg:          cfg,
		store:        store,
		eng:          eng,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for mounting in tests or a
// parent mux.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or a
// fatal server error occurs. On return, Shutdown has already been
// called — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown drains in-flight HTTP requests, stops the pipeline's
// background goroutines, and closes the store and OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("switchboard shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.eng.Close()
	_ = a.otelShutdown(context.Background())
	a.store.Close(context.Background())

	a.logger.Info("switchboard stopped")
	return nil
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// personaHandlerAdapter wraps a public PersonaHandler to satisfy the
// internal persona.Handler contract.
type personaHandlerAdapter struct {
	h PersonaHandler
}

func (a *personaHandlerAdapter) Handle(ctx context.Context, contactID string, history []model.Message, event model.ConversationEvent) (persona.Result, error) {
	pubHistory := make([]HistoryMessage, len(history))
	for i, m := range history {
		pubHistory[i] = HistoryMessage{Speaker: string(m.Speaker), Text: m.Text, SentAt: m.SentAt}
	}

	reply, err := a.h.Handle(ctx, contactID, pubHistory, Event{
		MessageID:  event.MessageID,
		ContactID:  event.ContactID,
		Channel:    event.Channel,
		Body:       event.Body,
		Tags:       event.Tags,
		ReceivedAt: event.ReceivedAt,
	})
	if err != nil {
		return persona.Result{}, err
	}

	var mutations []model.Action
	for _, tag := range reply.AddTags {
		mutations = append(mutations, model.AddTag(tag))
	}
	for _, tag := range reply.RemoveTags {
		mutations = append(mutations, model.RemoveTag(tag))
	}

	scores := make(map[model.Persona]float64, len(reply.IntentScores))
	for p, s := range reply.IntentScores {
		scores[model.Persona(p)] = s
	}

	return persona.Result{
		Reply:        reply.Reply,
		TagMutations: mutations,
		Signals: model.IntentSignals{
			Scores:         scores,
			MatchedPhrases: reply.MatchedPhrases,
			Engagement:     reply.Engagement,
		},
	}, nil
}

// scorerAdapter wraps a public ComplianceScorer to satisfy compliance.Scorer.
type scorerAdapter struct {
	s ComplianceScorer
}

func (a *scorerAdapter) Score(ctx context.Context, input compliance.ScoreInput) (compliance.ScoreResult, error) {
	opinion, err := a.s.Score(ctx, ComplianceScan{
		Reply:     input.Reply,
		Persona:   Persona(input.Persona),
		Inbound:   input.Inbound,
		ContactID: input.ContactID,
	})
	if err != nil {
		return compliance.ScoreResult{}, err
	}
	return compliance.ScoreResult{
		Verdict: compliance.Verdict(opinion.Verdict),
		Reason:  opinion.Reason,
	}, nil
}

// crmAdapter wraps a public CRM to satisfy crm.Client.
type crmAdapter struct {
	c CRM
}

func (a *crmAdapter) ContactTags(ctx context.Context, contactID string) ([]string, error) {
	return a.c.ContactTags(ctx, contactID)
}

func (a *crmAdapter) ApplyActions(ctx context.Context, contactID string, batch []model.Action) error {
	return a.c.ApplyActions(ctx, contactID, toPublicActions(batch))
}

// eventHookAdapter wraps a public EventHook to satisfy engine.Hook.
type eventHookAdapter struct {
	hook EventHook
}

func (a *eventHookAdapter) OnEventProcessed(ctx context.Context, outcome engine.Outcome) error {
	return a.hook.OnEventProcessed(ctx, toPublicOutcome(outcome))
}

func (a *eventHookAdapter) OnHandoff(ctx context.Context, contactID string, d model.HandoffDecision) error {
	return a.hook.OnHandoff(ctx, contactID, toPublicHandoff(d))
}

// ── Type converters ────────────────────────────────────────────────────────────

func toPublicActions(batch []model.Action) []Action {
	out := make([]Action, len(batch))
	for i, act := range batch {
		out[i] = Action{Type: string(act.Type), Tag: act.Tag, Text: act.Text}
	}
	return out
}

func toPublicHandoff(d model.HandoffDecision) Handoff {
	return Handoff{
		Source:      Persona(d.Source),
		Target:      Persona(d.Target),
		Reason:      d.Reason,
		Confidence:  d.Confidence,
		TriggeredAt: d.TriggeredAt,
	}
}

func toPublicOutcome(o engine.Outcome) Outcome {
	out := Outcome{
		EventID:     o.EventID,
		Disposition: o.Disposition,
		Persona:     Persona(o.Persona),
		Reply:       o.Reply,
		Compliance:  string(o.Compliance.Status),
		Actions:     toPublicActions(o.Actions),
	}
	if o.Handoff != nil {
		h := toPublicHandoff(*o.Handoff)
		out.Handoff = &h
	}
	return out
}

// ── Helpers ────────────────────────────────────────────────────────────────────

// newComplianceScorer picks the semantic scorer from config, preferring
// a local Ollama instance when reachable.
func newComplianceScorer(cfg config.Config, logger *slog.Logger) compliance.Scorer {
	switch cfg.ScorerProvider {
	case "ollama":
		logger.Info("compliance scorer: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return compliance.NewOllamaScorer(cfg.OllamaURL, cfg.OllamaModel)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when SWBD_SCORER_PROVIDER=openai")
			return compliance.NoopScorer{}
		}
		logger.Info("compliance scorer: openai", "model", cfg.OpenAIModel)
		return compliance.NewOpenAIScorer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "noop":
		logger.Warn("compliance scorer: noop (semantic tier disabled, pattern tier only)")
		return compliance.NoopScorer{}
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("compliance scorer: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
			return compliance.NewOllamaScorer(cfg.OllamaURL, cfg.OllamaModel)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("compliance scorer: openai (auto-detected)", "model", cfg.OpenAIModel)
			return compliance.NewOpenAIScorer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		}
		logger.Warn("no compliance scorer available, using noop (pattern tier only)")
		return compliance.NoopScorer{}
	}
}

func ollamaReachable(baseURL string) bool {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
