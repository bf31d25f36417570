// Package config holds global settings for the Hivetrap gateway.
// All settings can be configured via environment variables or
// programmatically before the engine is constructed.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider defines the backend text-generation service type.
type LLMProvider string

const (
	ProviderNone       LLMProvider = "none"       // No LLM, fallback replies only
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter (default cloud)
	ProviderGroq       LLMProvider = "groq"       // Groq high-speed inference
	ProviderOpenAI     LLMProvider = "openai"     // Direct OpenAI API
	ProviderCustom     LLMProvider = "custom"     // Custom OpenAI-compatible endpoint
)

// TerminalPolicy defines what happens when a message arrives for a session
// the exit policy has already closed.
type TerminalPolicy string

const (
	// TerminalReject answers with the terminal session snapshot and mutates nothing.
	TerminalReject TerminalPolicy = "reject"
	// TerminalRestart starts a fresh logical session under the same key.
	TerminalRestart TerminalPolicy = "restart"
)

// Config holds global settings for the gateway. Zero values are not usable;
// construct via NewDefaultConfig and override as needed.
type Config struct {
	// === Core Settings ===
	APIKey    string // API key for gateway authentication (required in production)
	ServeAddr string // Listen address for serve mode

	// === Detection Thresholds (confidence scale: 1.0 benign -> 0.0 scam) ===
	EngageThreshold  float64 // Confidence below this = agent engages (default: 0.75)
	DeflectThreshold float64 // Confidence below this = deflection mode (default: 0.50)
	ExitThreshold    float64 // Confidence at or below this = exit conversation (default: 0.25)

	// === Signal Weights (applied as negative decay, see pkg/detect) ===
	UrgencyWeight       float64 // Single urgency vocabulary hit (default: 0.10)
	ThreatWeight        float64 // Single threat vocabulary hit (default: 0.20)
	KeywordPairWeight   float64 // 2 distinct scam keywords (default: 0.08)
	KeywordDenseWeight  float64 // 3+ distinct scam keywords (default: 0.15)
	PressureWeight      float64 // Repeated-pressure escalation (default: 0.12)
	FinalWarningWeight  float64 // Final-warning escalation (default: 0.15)
	RepetitionCapWeight float64 // Cap on the repetition penalty (default: 0.20)
	SemanticWeight      float64 // Cap on the optional semantic signal (default: 0.10)
	MaxTurnDecay        float64 // Clamp on total decay per turn (default: 0.40)

	// === Vocabulary (configurable keyword lists) ===
	ScamKeywords    []string
	UrgencyWords    []string
	ThreatWords     []string
	EscalationWords []string

	// === Extraction ===
	PaymentProviders []string // Known payment-app suffixes for handle validation
	PhoneLength      int      // National phone number length (default: 10)
	AccountMinDigits int      // Minimum digits for a bank account number (default: 11)
	AccountMaxDigits int      // Maximum digits for a bank account number (default: 18)

	// === Repetition / Loop Guards ===
	RepetitionWindow    int     // Recent messages compared for repetition (default: 5)
	SimilarityThreshold float64 // Similarity ratio that counts as a repeat (default: 0.70)
	LoopGuardTurns      int     // Near-identical turns with no new intel before exit (default: 3)

	// === Engagement Limits ===
	MaxTurns      int // Hard cap on engaged turns per session (default: 15)
	MinIntelTurns int // Engaged turns required before intel sufficiency can exit (default: 3)

	// === Personas ===
	PersonaFile       string  // Optional YAML catalog override; empty = built-in catalog
	PersonaHysteresis float64 // Band-crossing margin before a persona switch (default: 0.05)

	// === Session Store ===
	RedisURL       string         // redis:// URL; empty = in-memory store
	SessionTTL     time.Duration  // Session expiry (default: 1 hour)
	TerminalPolicy TerminalPolicy // reject (default) or restart

	// === Collaborators ===
	LLMProvider   LLMProvider // Which text-generation service to use
	LLMAPIKey     string      // API key for cloud providers
	LLMModel      string      // Model identifier
	LLMBaseURL    string      // Custom base URL for self-hosted providers
	LLMTimeout    time.Duration
	VisionBaseURL string // OCR/QR sidecar base URL; empty disables image handling

	// === Semantic Detection (optional, requires Ollama embeddings) ===
	EnableSemantics bool
	EmbedBaseURL    string
	EmbedModel      string

	// === Event Emission ===
	NATSURL       string // nats:// URL; empty disables the NATS sink
	ReportURL     string // Final-report webhook URL; empty disables
	ReportTimeout time.Duration
	ReportRetries int
	PostgresURL   string // postgres:// URL for the archive; empty disables
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		APIKey:    os.Getenv("HIVETRAP_API_KEY"),
		ServeAddr: GetEnv("HIVETRAP_ADDR", ":8080"),

		EngageThreshold:  GetEnvFloat("HIVETRAP_ENGAGE_THRESHOLD", 0.75),
		DeflectThreshold: GetEnvFloat("HIVETRAP_DEFLECT_THRESHOLD", 0.50),
		ExitThreshold:    GetEnvFloat("HIVETRAP_EXIT_THRESHOLD", 0.25),

		UrgencyWeight:       GetEnvFloat("HIVETRAP_W_URGENCY", 0.10),
		ThreatWeight:        GetEnvFloat("HIVETRAP_W_THREAT", 0.20),
		KeywordPairWeight:   GetEnvFloat("HIVETRAP_W_KEYWORD_PAIR", 0.08),
		KeywordDenseWeight:  GetEnvFloat("HIVETRAP_W_KEYWORD_DENSE", 0.15),
		PressureWeight:      GetEnvFloat("HIVETRAP_W_PRESSURE", 0.12),
		FinalWarningWeight:  GetEnvFloat("HIVETRAP_W_FINAL_WARNING", 0.15),
		RepetitionCapWeight: GetEnvFloat("HIVETRAP_W_REPETITION_CAP", 0.20),
		SemanticWeight:      GetEnvFloat("HIVETRAP_W_SEMANTIC", 0.10),
		MaxTurnDecay:        GetEnvFloat("HIVETRAP_MAX_TURN_DECAY", 0.40),

		ScamKeywords: GetEnvSlice("HIVETRAP_SCAM_KEYWORDS", []string{
			"blocked", "suspended", "verify", "urgent", "immediately",
			"account", "upi", "otp", "kyc", "refund", "prize",
			"final", "warning", "expire", "deactivate", "confirm",
		}),
		UrgencyWords: GetEnvSlice("HIVETRAP_URGENCY_WORDS", []string{
			"now", "today", "immediately", "within", "asap", "hurry", "quick", "fast",
		}),
		ThreatWords: GetEnvSlice("HIVETRAP_THREAT_WORDS", []string{
			"blocked", "suspended", "legal", "terminated", "action", "penalty", "fine",
		}),
		EscalationWords: GetEnvSlice("HIVETRAP_ESCALATION_WORDS", []string{
			"final", "last", "ultimate", "warning", "chance",
		}),

		PaymentProviders: GetEnvSlice("HIVETRAP_PAYMENT_PROVIDERS", []string{
			"paytm", "phonepe", "googlepay", "ybl", "oksbi", "okhdfcbank",
			"okicici", "okaxis", "ibl", "axl", "upi",
		}),
		PhoneLength:      GetEnvInt("HIVETRAP_PHONE_LENGTH", 10),
		AccountMinDigits: GetEnvInt("HIVETRAP_ACCOUNT_MIN_DIGITS", 11),
		AccountMaxDigits: GetEnvInt("HIVETRAP_ACCOUNT_MAX_DIGITS", 18),

		RepetitionWindow:    clampInt(GetEnvInt("HIVETRAP_REPETITION_WINDOW", 5), 1, 100),
		SimilarityThreshold: GetEnvFloat("HIVETRAP_SIMILARITY_THRESHOLD", 0.70),
		LoopGuardTurns:      GetEnvInt("HIVETRAP_LOOP_GUARD_TURNS", 3),

		MaxTurns:      GetEnvInt("HIVETRAP_MAX_TURNS", 15),
		MinIntelTurns: GetEnvInt("HIVETRAP_MIN_INTEL_TURNS", 3),

		PersonaFile:       GetEnv("HIVETRAP_PERSONA_FILE", ""),
		PersonaHysteresis: GetEnvFloat("HIVETRAP_PERSONA_HYSTERESIS", 0.05),

		RedisURL:       GetEnv("HIVETRAP_REDIS_URL", ""),
		SessionTTL:     time.Duration(GetEnvInt("HIVETRAP_SESSION_TTL_SECONDS", 3600)) * time.Second,
		TerminalPolicy: TerminalPolicy(GetEnv("HIVETRAP_TERMINAL_POLICY", string(TerminalReject))),

		LLMProvider: detectLLMProvider(),
		LLMAPIKey:   GetEnv("HIVETRAP_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:    GetEnv("HIVETRAP_LLM_MODEL", ""),
		LLMBaseURL:  GetEnv("HIVETRAP_LLM_BASE_URL", ""),
		LLMTimeout:  time.Duration(GetEnvInt("HIVETRAP_LLM_TIMEOUT_MS", 30000)) * time.Millisecond,

		VisionBaseURL: GetEnv("HIVETRAP_VISION_BASE_URL", ""),

		EnableSemantics: GetEnvBool("HIVETRAP_ENABLE_SEMANTICS", false),
		EmbedBaseURL:    GetEnv("HIVETRAP_EMBED_BASE_URL", "http://localhost:11434"),
		EmbedModel:      GetEnv("HIVETRAP_EMBED_MODEL", "nomic-embed-text"),

		NATSURL:       GetEnv("HIVETRAP_NATS_URL", ""),
		ReportURL:     GetEnv("HIVETRAP_REPORT_URL", ""),
		ReportTimeout: time.Duration(GetEnvInt("HIVETRAP_REPORT_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReportRetries: GetEnvInt("HIVETRAP_REPORT_RETRIES", 3),
		PostgresURL:   GetEnv("HIVETRAP_POSTGRES_URL", ""),
	}
}

// NewCautiousConfig creates a Config that engages later and exits earlier.
// Use when false engagements are expensive.
func NewCautiousConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EngageThreshold = 0.60
	cfg.ExitThreshold = 0.30
	cfg.MaxTurns = 10
	return cfg
}

// NewGreedyConfig creates a Config tuned for maximum intelligence yield:
// engages on weaker signals and tolerates longer conversations.
func NewGreedyConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EngageThreshold = 0.85
	cfg.ExitThreshold = 0.15
	cfg.MaxTurns = 25
	cfg.MinIntelTurns = 5
	return cfg
}

// Validate checks that the configuration is internally consistent.
// In production mode (HIVETRAP_ENV=production) a missing API key is an
// error; in development it is a logged warning.
func (c *Config) Validate() error {
	if c.ExitThreshold >= c.EngageThreshold {
		return fmt.Errorf("exit threshold (%.2f) must be below engage threshold (%.2f)",
			c.ExitThreshold, c.EngageThreshold)
	}
	if c.EngageThreshold <= 0 || c.EngageThreshold > 1 {
		return fmt.Errorf("engage threshold must be in (0, 1], got %.2f", c.EngageThreshold)
	}
	if c.DeflectThreshold <= c.ExitThreshold || c.DeflectThreshold > c.EngageThreshold {
		return fmt.Errorf("deflect threshold (%.2f) must lie between exit (%.2f) and engage (%.2f)",
			c.DeflectThreshold, c.ExitThreshold, c.EngageThreshold)
	}
	if c.MaxTurnDecay <= 0 || c.MaxTurnDecay > 1 {
		return fmt.Errorf("max turn decay must be in (0, 1], got %.2f", c.MaxTurnDecay)
	}
	if c.PhoneLength >= c.AccountMinDigits {
		return fmt.Errorf("phone length (%d) must be below account minimum (%d) so the bands stay disjoint",
			c.PhoneLength, c.AccountMinDigits)
	}
	switch c.TerminalPolicy {
	case TerminalReject, TerminalRestart:
	default:
		return fmt.Errorf("terminal policy must be %q or %q, got %q",
			TerminalReject, TerminalRestart, c.TerminalPolicy)
	}

	isProduction := strings.ToLower(os.Getenv("HIVETRAP_ENV")) == "production" ||
		strings.ToLower(os.Getenv("HIVETRAP_ENV")) == "prod"
	if c.APIKey == "" {
		if isProduction {
			return fmt.Errorf("missing required secret: HIVETRAP_API_KEY")
		}
		log.Printf("[STARTUP] Warning: HIVETRAP_API_KEY not set - gateway auth disabled (dev only)")
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
}

func detectLLMProvider() LLMProvider {
	if p := os.Getenv("HIVETRAP_LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	// Auto-detect based on available keys
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("HIVETRAP_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}

func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.
// Exported for use by other packages.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
