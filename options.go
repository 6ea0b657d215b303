package switchboard

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port             int
	databaseURL      string
	logger           *slog.Logger
	version          string
	personaHandlers  map[Persona]PersonaHandler
	complianceScorer ComplianceScorer
	crm              CRM
	eventHooks       []EventHook
	middlewares      []Middleware
	extraMigrations  []fs.FS
}

// WithPort overrides the TCP port from config (SWBD_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var). An empty URL selects the in-memory store.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithPersonaHandler replaces the built-in keyword handler for one
// persona. Call once per persona; the last call for a persona wins.
func WithPersonaHandler(p Persona, h PersonaHandler) Option {
	return func(o *resolvedOptions) {
		if o.personaHandlers == nil {
			o.personaHandlers = make(map[Persona]PersonaHandler)
		}
		o.personaHandlers[p] = h
	}
}

// WithComplianceScorer replaces the auto-detected semantic compliance
// scorer (Ollama/OpenAI/noop). Only the last call wins.
func WithComplianceScorer(s ComplianceScorer) Option {
	return func(o *resolvedOptions) { o.complianceScorer = s }
}

// WithCRM replaces the HTTP CRM client. Use for custom CRM integrations
// or a recording fake in tests.
func WithCRM(c CRM) Option {
	return func(o *resolvedOptions) { o.crm = c }
}

// WithEventHook registers an event hook to receive pipeline notifications.
// Multiple hooks may be registered; all registered hooks receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems may be registered;
// they are applied in registration order. Ignored with the in-memory store.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
