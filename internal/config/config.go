// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	JWTSecret   string
	Tenants     []domain.Tenant

	DB        DBConfig
	LLM       LLMConfig
	Chat      ChatConfig
	Retrieval RetrievalConfig
	Jobs      JobsConfig
}

// DBConfig selects the store backend.
type DBConfig struct {
	Driver string // "sqlite" or "mysql"
	Path   string
	DSN    string
}

// LLMConfig configures the completion and embedding clients.
type LLMConfig struct {
	Provider       string // "openai" or "gemini"
	Model          string
	OpenAIKey      string
	OpenAIBaseURL  string
	GeminiKey      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
}

// ChatConfig controls chat sessions.
type ChatConfig struct {
	HistoryLimit  int
	StreamTimeout time.Duration
	SaveTimeout   time.Duration
	IdleTTL       time.Duration
	// RateLimit is the number of sends allowed per user per minute; 0 disables it.
	RateLimit int
}

// RetrievalConfig controls context lookup.
type RetrievalConfig struct {
	Enabled   bool
	Threshold float64
	TopK      int
	Timeout   time.Duration
}

// JobsConfig controls background jobs.
type JobsConfig struct {
	StatusSweepAt string // HH:MM, UTC
}

// Load reads the server configuration from environment variables.
func Load() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadIngest reads the configuration used by the ingest command. Only the
// database and embedding settings are checked.
func LoadIngest() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.ValidateIngest(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		Tenants:     parseTenants(getEnv("TENANTS", "")),
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data/portal.db"),
			DSN:    getEnv("DB_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(getEnv("CHAT_PROVIDER", "openai")),
			Model:          getEnv("CHAT_MODEL", ""),
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
			GeminiKey:      getEnv("GEMINI_API_KEY", ""),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			MaxTokens:      getEnvInt("CHAT_MAX_TOKENS", 1024),
			Temperature:    getEnvFloat("CHAT_TEMPERATURE", 0.3),
		},
		Chat: ChatConfig{
			HistoryLimit:  getEnvInt("CHAT_HISTORY_LIMIT", 10),
			StreamTimeout: getEnvDuration("STREAM_TIMEOUT", 2*time.Minute),
			SaveTimeout:   getEnvDuration("SAVE_TIMEOUT", 5*time.Second),
			IdleTTL:       getEnvDuration("SESSION_IDLE_TTL", 60*time.Minute),
			RateLimit:     getEnvInt("CHAT_RATE_LIMIT", 20),
		},
		Retrieval: RetrievalConfig{
			Enabled:   getEnvBool("RETRIEVAL_ENABLED", true),
			Threshold: getEnvFloat("RETRIEVAL_THRESHOLD", 0.75),
			TopK:      getEnvInt("RETRIEVAL_TOP_K", 5),
			Timeout:   getEnvDuration("RETRIEVAL_TIMEOUT", 10*time.Second),
		},
		Jobs: JobsConfig{
			StatusSweepAt: getEnv("STATUS_SWEEP_AT", "03:00"),
		},
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if err := c.DB.validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("CHAT_PROVIDER must be openai or gemini, got %q", c.LLM.Provider))
	}
	if c.Chat.HistoryLimit <= 0 {
		errs = append(errs, errors.New("CHAT_HISTORY_LIMIT must be > 0"))
	}
	if c.Chat.StreamTimeout <= 0 {
		errs = append(errs, errors.New("STREAM_TIMEOUT must be > 0"))
	}
	if c.Chat.RateLimit < 0 {
		errs = append(errs, errors.New("CHAT_RATE_LIMIT must be >= 0"))
	}
	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		errs = append(errs, errors.New("RETRIEVAL_THRESHOLD must be within [-1, 1]"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("RETRIEVAL_TOP_K must be > 0"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, errors.New("CHAT_MAX_TOKENS must be > 0"))
	}
	if _, err := time.Parse("15:04", c.Jobs.StatusSweepAt); err != nil {
		errs = append(errs, fmt.Errorf("STATUS_SWEEP_AT must be HH:MM, got %q", c.Jobs.StatusSweepAt))
	}
	if !c.IsDevelopment() && c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	return errors.Join(errs...)
}

// ValidateIngest checks the settings needed to embed documents into the
// retrieval index.
func (c *Config) ValidateIngest() error {
	var errs []error
	if err := c.DB.validate(); err != nil {
		errs = append(errs, err)
	}
	if c.LLM.OpenAIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required to embed documents"))
	}
	if c.LLM.EmbeddingModel == "" {
		errs = append(errs, errors.New("EMBEDDING_MODEL cannot be empty"))
	}
	return errors.Join(errs...)
}

func (d DBConfig) validate() error {
	switch d.Driver {
	case "sqlite":
		if d.Path == "" {
			return errors.New("DB_PATH cannot be empty")
		}
	case "mysql":
		if d.DSN == "" {
			return errors.New("DB_DSN is required for mysql")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", d.Driver)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// CompletionKey returns the API key of the configured chat provider.
func (c *Config) CompletionKey() string {
	if c.LLM.Provider == "gemini" {
		return c.LLM.GeminiKey
	}
	return c.LLM.OpenAIKey
}

// parseTenants reads "id:Display Name,id2:Other" pairs. A bare id is its
// own display name.
func parseTenants(value string) []domain.Tenant {
	var out []domain.Tenant
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, _ := strings.Cut(entry, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			continue
		}
		if name == "" {
			name = id
		}
		out = append(out, domain.Tenant{ID: id, Name: name})
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or a plain number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
