// Package config loads the single YAML configuration file the phoenix
// binary reads on startup, following the teacher's nested-per-concern
// struct convention (internal/config/config.go in haasonsaas-nexus):
// one Config aggregate composed of ServerConfig/DatabaseConfig/LLMConfig/
// ExecutorConfig/ContinuationConfig, decoded with gopkg.in/yaml.v3 and
// KnownFields enabled so typos fail loudly instead of being silently
// ignored.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the phoenix server.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	LLM          LLMConfig          `yaml:"llm"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Continuation ContinuationConfig `yaml:"continuation"`
	Steering     SteeringConfig     `yaml:"steering"`
	Logging      LoggingConfig      `yaml:"logging"`

	// WorkspaceRoot is the directory every conversation's cwd (and every
	// file/exec tool call) is confined under. POST /api/mkdir creates new
	// conversation directories beneath it.
	WorkspaceRoot string `yaml:"workspace_root"`
}

// Workspace returns the configured workspace root, defaulting to the
// current directory when unset.
func (c *Config) Workspace() string {
	if c == nil || c.WorkspaceRoot == "" {
		return "."
	}
	return c.WorkspaceRoot
}

// ServerConfig configures the HTTP+SSE listener (spec.md §6.1/§6.2).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig selects and configures the persistence backend
// (SPEC_FULL.md §6.4): "sqlite" for the default single-user local store,
// or "postgres"/"cockroach" for a shared deployment.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LLMConfig resolves which mode (gateway or direct, spec.md §6.4) and
// provider serves a given model id.
type LLMConfig struct {
	// Mode is "gateway" or "direct". Direct mode talks to each provider's
	// SDK with its own API key; gateway mode routes every request through
	// a single upstream endpoint (LLM_GATEWAY) regardless of model id.
	Mode string `yaml:"mode"`

	// Gateway is used when Mode == "gateway".
	Gateway GatewayLLMConfig `yaml:"gateway"`

	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain lists provider ids to try, in order, if the default
	// provider's request fails with a retryable ErrorKind.
	FallbackChain []string `yaml:"fallback_chain"`
}

// GatewayLLMConfig points every model id at one upstream endpoint.
type GatewayLLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// LLMProviderConfig configures one direct-mode provider.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// ExecutorConfig tunes the async driver (internal/executor): inbox
// backpressure, retry/backoff policy (spec.md §7, mirrored by
// statemachine.MaxAttempts), and per-tool execution limits.
type ExecutorConfig struct {
	InboxSize int `yaml:"inbox_size"`

	// MaxAttempts and BaseBackoff describe the retry policy the executor
	// tells the state machine about via ConvContext; the statemachine
	// package's own MaxAttempts constant is the source of truth and this
	// field exists only so operators can see the number in one place.
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`

	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// RequestsPerSecond bounds outbound LLM calls per conversation via a
	// token-bucket limiter (golang.org/x/time/rate), independent of
	// provider-side rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// AsyncTools lists tool names that run as a detached background job
	// instead of blocking the conversation's tool queue (SPEC_FULL.md
	// §7.5), e.g. a long-running build or test-suite invocation.
	AsyncTools []string `yaml:"async_tools"`
}

// ContinuationConfig exposes the context-accounting thresholds
// (spec.md §4.7) as configuration, defaulting to the statemachine
// package's own constants.
type ContinuationConfig struct {
	ContinuationThreshold float64 `yaml:"continuation_threshold"`
	WarnThreshold         float64 `yaml:"warn_threshold"`
}

// SteeringConfig configures the follow-up/steer queue (SPEC_FULL.md §7.4).
type SteeringConfig struct {
	MaxItems   int    `yaml:"max_items"`
	DropPolicy string `yaml:"drop_policy"`
}

// LoggingConfig configures the slog handler built at startup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, parses (resolving $include directives, see loader.go), applies
// environment overrides, fills defaults, and validates the configuration at
// path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "phoenix.db"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.LLM.Mode == "" {
		cfg.LLM.Mode = "direct"
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}

	if cfg.Executor.InboxSize == 0 {
		cfg.Executor.InboxSize = 32
	}
	if cfg.Executor.MaxAttempts == 0 {
		cfg.Executor.MaxAttempts = 3
	}
	if cfg.Executor.BaseBackoff == 0 {
		cfg.Executor.BaseBackoff = time.Second
	}
	if cfg.Executor.ToolTimeout == 0 {
		cfg.Executor.ToolTimeout = 2 * time.Minute
	}
	if cfg.Executor.RequestsPerSecond == 0 {
		cfg.Executor.RequestsPerSecond = 2
	}

	if cfg.Continuation.ContinuationThreshold == 0 {
		cfg.Continuation.ContinuationThreshold = 0.90
	}
	if cfg.Continuation.WarnThreshold == 0 {
		cfg.Continuation.WarnThreshold = 0.80
	}

	if cfg.Steering.MaxItems == 0 {
		cfg.Steering.MaxItems = 20
	}
	if cfg.Steering.DropPolicy == "" {
		cfg.Steering.DropPolicy = "oldest"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "."
	}
}

// applyEnvOverrides lets credentials, the gateway/direct switch, the HTTP
// port (PHOENIX_HTTP_PORT) and the database DSN (DATABASE_URL) come from the
// environment without touching the checked-in config file.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("LLM_GATEWAY")); v != "" {
		cfg.LLM.Mode = "gateway"
		cfg.LLM.Gateway.BaseURL = v
	}
	overrideProviderKey(cfg, "anthropic", "ANTHROPIC_API_KEY")
	overrideProviderKey(cfg, "openai", "OPENAI_API_KEY")
	overrideProviderKey(cfg, "fireworks", "FIREWORKS_API_KEY")
	overrideProviderKey(cfg, "gemini", "GEMINI_API_KEY")

	if v := strings.TrimSpace(os.Getenv("PHOENIX_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.DSN = v
	}
}

func overrideProviderKey(cfg *Config, provider, envVar string) {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	entry := cfg.LLM.Providers[provider]
	entry.APIKey = v
	cfg.LLM.Providers[provider] = entry
}

// ConfigValidationError aggregates every validation failure instead of
// stopping at the first one, matching the teacher's validateConfig style.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	switch cfg.Database.Driver {
	case "sqlite", "postgres", "cockroach":
	default:
		issues = append(issues, `database.driver must be "sqlite", "postgres", or "cockroach"`)
	}

	switch cfg.LLM.Mode {
	case "gateway", "direct":
	default:
		issues = append(issues, `llm.mode must be "gateway" or "direct"`)
	}
	if cfg.LLM.Mode == "gateway" && strings.TrimSpace(cfg.LLM.Gateway.BaseURL) == "" {
		issues = append(issues, "llm.gateway.base_url is required when llm.mode is \"gateway\"")
	}
	if cfg.LLM.Mode == "direct" {
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
		}
	}

	if cfg.Continuation.ContinuationThreshold <= 0 || cfg.Continuation.ContinuationThreshold > 1 {
		issues = append(issues, "continuation.continuation_threshold must be in (0, 1]")
	}
	if cfg.Continuation.WarnThreshold <= 0 || cfg.Continuation.WarnThreshold >= cfg.Continuation.ContinuationThreshold {
		issues = append(issues, "continuation.warn_threshold must be positive and below continuation_threshold")
	}

	switch cfg.Steering.DropPolicy {
	case "oldest", "newest":
	default:
		issues = append(issues, `steering.drop_policy must be "oldest" or "newest"`)
	}

	if cfg.Executor.MaxAttempts < 1 {
		issues = append(issues, "executor.max_attempts must be >= 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
