// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/leadline-ai/switchboard/internal/model"
)

// PersonaConfig holds the per-persona routing and classification settings.
type PersonaConfig struct {
	// ActivationTag is the CRM tag whose presence makes this persona
	// eligible to handle an event.
	ActivationTag string
	// Enabled is the mode flag; a disabled persona never routes even when
	// its activation tag is present.
	Enabled bool
	// SafeFallback replaces a blocked reply. Never empty, always under the
	// channel length limit.
	SafeFallback string
	// HotThreshold and WarmThreshold cut the engagement score into
	// hot/warm/cold. Independent per persona since personas have different
	// natural score distributions.
	HotThreshold  float64
	WarmThreshold float64
	// TriggerPhrases feeds the built-in keyword handler: phrases in the
	// contact's message that signal intent toward each target persona.
	TriggerPhrases map[model.Persona][]string
}

// HandoffDirection keys the asymmetric confidence thresholds.
type HandoffDirection struct {
	Source model.Persona
	Target model.Persona
}

// Config holds all application configuration. Loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	LogLevel            string
	MaxRequestBodyBytes int64

	// Database settings. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string

	// JWT settings for operator endpoints.
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiration     time.Duration
	OperatorAPIKey    string
	AdminOperators    []string

	// Webhook ingress settings.
	WebhookSecret string
	DedupTTL      time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// CRM collaborator settings.
	CRMBaseURL    string
	CRMAPIKey     string
	CRMTimeout    time.Duration
	CRMMaxRetries int

	// Persona settings.
	Personas map[model.Persona]PersonaConfig

	// Routing settings.
	DeactivationTags []string
	OptOutPhrases    []string
	OptOutTag        string
	OptOutReply      string
	NeutralReply     string
	DeferralReply    string
	ChannelMaxLen    int
	HistoryLimit     int
	HandlerTimeout   time.Duration
	ProcessCeiling   time.Duration

	// Compliance settings.
	ComplianceMaxLen   int
	ComplianceBlockTag string
	PatternTerms       []string
	ScorerProvider     string // "auto", "ollama", "openai", or "noop"
	ScorerFailureLimit int
	OllamaURL          string
	OllamaModel        string
	OpenAIAPIKey       string
	OpenAIModel        string

	// Handoff settings.
	HandoffThresholds   map[HandoffDirection]float64
	HandoffCooldown     time.Duration
	HandoffBudgetHourly int
	HandoffBudgetDaily  int

	// Rate limit settings (messages per contact).
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitPerHour   int
	RateLimitPerDay    int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("SWBD_PORT", 8080),
		ReadTimeout:         envDuration("SWBD_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("SWBD_WRITE_TIMEOUT", 30*time.Second),
		LogLevel:            envStr("SWBD_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("SWBD_MAX_REQUEST_BODY_BYTES", 256*1024)),

		DatabaseURL: envStr("DATABASE_URL", ""),

		JWTPrivateKeyPath: envStr("SWBD_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:  envStr("SWBD_JWT_PUBLIC_KEY", ""),
		JWTExpiration:     envDuration("SWBD_JWT_EXPIRATION", 24*time.Hour),
		OperatorAPIKey:    envStr("SWBD_OPERATOR_API_KEY", ""),
		AdminOperators:    envList("SWBD_ADMIN_OPERATORS", nil),

		WebhookSecret: envStr("SWBD_WEBHOOK_SECRET", ""),
		DedupTTL:      envDuration("SWBD_DEDUP_TTL", 10*time.Minute),

		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "switchboard"),

		CRMBaseURL:    envStr("SWBD_CRM_BASE_URL", ""),
		CRMAPIKey:     envStr("SWBD_CRM_API_KEY", ""),
		CRMTimeout:    envDuration("SWBD_CRM_TIMEOUT", 10*time.Second),
		CRMMaxRetries: envInt("SWBD_CRM_MAX_RETRIES", 3),

		Personas: defaultPersonas(),

		DeactivationTags: envList("SWBD_DEACTIVATION_TAGS", []string{"Opt-Out", "Qualified-Stop", "Do-Not-Contact"}),
		OptOutPhrases:    envList("SWBD_OPT_OUT_PHRASES", []string{"stop", "unsubscribe", "remove me", "opt out"}),
		OptOutTag:        envStr("SWBD_OPT_OUT_TAG", "Opt-Out"),
		OptOutReply:      envStr("SWBD_OPT_OUT_REPLY", "You've been unsubscribed and won't hear from us again."),
		NeutralReply:     envStr("SWBD_NEUTRAL_REPLY", "Thanks for reaching out! A member of our team will get back to you shortly."),
		DeferralReply:    envStr("SWBD_DEFERRAL_REPLY", "Thanks for your messages! We'll follow up with you shortly."),
		ChannelMaxLen:    envInt("SWBD_CHANNEL_MAX_LEN", 320),
		HistoryLimit:     envInt("SWBD_HISTORY_LIMIT", 50),
		HandlerTimeout:   envDuration("SWBD_HANDLER_TIMEOUT", 20*time.Second),
		ProcessCeiling:   envDuration("SWBD_PROCESS_CEILING", 60*time.Second),

		ComplianceMaxLen:   envInt("SWBD_COMPLIANCE_MAX_LEN", 4096),
		ComplianceBlockTag: envStr("SWBD_COMPLIANCE_BLOCK_TAG", "Compliance-Blocked"),
		PatternTerms:       envList("SWBD_PATTERN_TERMS", defaultPatternTerms),
		ScorerProvider:     envStr("SWBD_SCORER_PROVIDER", "auto"),
		ScorerFailureLimit: envInt("SWBD_SCORER_FAILURE_LIMIT", 3),
		OllamaURL:          envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        envStr("OLLAMA_MODEL", "qwen2.5:3b"),
		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		OpenAIModel:        envStr("SWBD_OPENAI_MODEL", "gpt-4o-mini"),

		HandoffCooldown:     envDuration("SWBD_HANDOFF_COOLDOWN", 30*time.Minute),
		HandoffBudgetHourly: envInt("SWBD_HANDOFF_BUDGET_HOURLY", 2),
		HandoffBudgetDaily:  envInt("SWBD_HANDOFF_BUDGET_DAILY", 4),

		RateLimitEnabled:   envBool("SWBD_RATE_LIMIT_ENABLED", true),
		RateLimitPerMinute: envInt("SWBD_RATE_LIMIT_PER_MINUTE", 5),
		RateLimitPerHour:   envInt("SWBD_RATE_LIMIT_PER_HOUR", 30),
		RateLimitPerDay:    envInt("SWBD_RATE_LIMIT_PER_DAY", 100),
	}

	thresholds, err := parseThresholds(envStr("SWBD_HANDOFF_THRESHOLDS", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.HandoffThresholds = thresholds

	// Per-persona env overrides, e.g. SWBD_SELLER_ACTIVATION_TAG.
	for p, pc := range cfg.Personas {
		prefix := "SWBD_" + strings.ToUpper(string(p)) + "_"
		pc.ActivationTag = envStr(prefix+"ACTIVATION_TAG", pc.ActivationTag)
		pc.Enabled = envBool(prefix+"ENABLED", pc.Enabled)
		pc.SafeFallback = envStr(prefix+"SAFE_FALLBACK", pc.SafeFallback)
		pc.HotThreshold = envFloat(prefix+"HOT_THRESHOLD", pc.HotThreshold)
		pc.WarmThreshold = envFloat(prefix+"WARM_THRESHOLD", pc.WarmThreshold)
		cfg.Personas[p] = pc
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.ChannelMaxLen <= 0 {
		return fmt.Errorf("config: SWBD_CHANNEL_MAX_LEN must be positive")
	}
	if c.ComplianceMaxLen < c.ChannelMaxLen {
		return fmt.Errorf("config: SWBD_COMPLIANCE_MAX_LEN must be at least the channel length limit")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: SWBD_MAX_REQUEST_BODY_BYTES must be positive")
	}
	for p, pc := range c.Personas {
		if pc.ActivationTag == "" {
			return fmt.Errorf("config: persona %s has no activation tag", p)
		}
		if pc.SafeFallback == "" {
			return fmt.Errorf("config: persona %s has no safe fallback reply", p)
		}
		if len(pc.SafeFallback) > c.ChannelMaxLen {
			return fmt.Errorf("config: persona %s safe fallback exceeds channel length limit", p)
		}
		if pc.HotThreshold < pc.WarmThreshold {
			return fmt.Errorf("config: persona %s hot threshold below warm threshold", p)
		}
	}
	for dir, v := range c.HandoffThresholds {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: handoff threshold %s>%s out of [0,1]", dir.Source, dir.Target)
		}
	}
	if c.HandoffCooldown < 0 {
		return fmt.Errorf("config: SWBD_HANDOFF_COOLDOWN must not be negative")
	}
	if c.RateLimitEnabled && (c.RateLimitPerMinute <= 0 || c.RateLimitPerHour <= 0 || c.RateLimitPerDay <= 0) {
		return fmt.Errorf("config: rate limit ceilings must be positive when rate limiting is enabled")
	}
	return nil
}

// HandoffThreshold returns the directional confidence threshold for
// source→target. Directions without an explicit entry use the default 0.8.
func (c Config) HandoffThreshold(source, target model.Persona) float64 {
	if v, ok := c.HandoffThresholds[HandoffDirection{Source: source, Target: target}]; ok {
		return v
	}
	return defaultHandoffThreshold
}

const defaultHandoffThreshold = 0.8

// defaultPersonas is the built-in three-persona configuration.
func defaultPersonas() map[model.Persona]PersonaConfig {
	return map[model.Persona]PersonaConfig{
		model.PersonaSeller: {
			ActivationTag: "Needs-Qualifying",
			Enabled:       true,
			SafeFallback:  "Thanks for the details! Let me connect you with one of our listing specialists.",
			HotThreshold:  0.75,
			WarmThreshold: 0.4,
			TriggerPhrases: map[model.Persona][]string{
				model.PersonaBuyer: {"looking to buy", "want to buy", "purchase a home", "house hunting", "pre-approved"},
				model.PersonaLead:  {"just curious", "not sure yet", "maybe later"},
			},
		},
		model.PersonaBuyer: {
			ActivationTag: "Buyer-Lead",
			Enabled:       true,
			SafeFallback:  "Thanks for your interest! One of our buyer agents will follow up with you.",
			HotThreshold:  0.7,
			WarmThreshold: 0.35,
			TriggerPhrases: map[model.Persona][]string{
				model.PersonaSeller: {"sell my house", "sell my home", "need to sell", "list my property", "sell first"},
				model.PersonaLead:   {"just browsing", "not ready"},
			},
		},
		model.PersonaLead: {
			ActivationTag: "New-Lead",
			Enabled:       true,
			SafeFallback:  "Thanks for reaching out! We'll be in touch soon.",
			HotThreshold:  0.8,
			WarmThreshold: 0.5,
			TriggerPhrases: map[model.Persona][]string{
				model.PersonaSeller: {"sell my house", "sell my home", "list my property", "what's my home worth"},
				model.PersonaBuyer:  {"want to buy", "looking for a home", "house hunting", "pre-approved"},
			},
		},
	}
}

// defaultPatternTerms is the built-in fair-housing pattern tier. Matches are
// escalated to flagged, never silently ignored. Entries are regular
// expressions matched case-insensitively against the candidate reply.
var defaultPatternTerms = []string{
	`no\s+(kids|children|families)`,
	`adults?\s+only`,
	`(perfect|ideal)\s+for\s+(singles|couples|christians|families)`,
	`no\s+section\s*8`,
	`english\s+speakers?\s+only`,
	`\b(race|religion|national origin)\b`,
	`no\s+wheelchairs?`,
	`able[-\s]bodied`,
}

// parseThresholds parses "source>target=0.8,source>target=0.7" pairs.
func parseThresholds(raw string) (map[HandoffDirection]float64, error) {
	out := make(map[HandoffDirection]float64)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.SplitN(pair, "=", 2)
		if len(eq) != 2 {
			return nil, fmt.Errorf("config: malformed handoff threshold %q", pair)
		}
		dir := strings.SplitN(eq[0], ">", 2)
		if len(dir) != 2 {
			return nil, fmt.Errorf("config: malformed handoff direction %q", eq[0])
		}
		source, err := model.ParsePersona(strings.TrimSpace(dir[0]))
		if err != nil {
			return nil, fmt.Errorf("config: handoff threshold: %w", err)
		}
		target, err := model.ParsePersona(strings.TrimSpace(dir[1]))
		if err != nil {
			return nil, fmt.Errorf("config: handoff threshold: %w", err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(eq[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("config: handoff threshold %q: %w", pair, err)
		}
		out[HandoffDirection{Source: source, Target: target}] = v
	}
	return out, nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
