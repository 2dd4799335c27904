package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/relay/internal/runner"
)

// Config is the main configuration structure for relay. One file drives both
// the gateway (`relay serve`) and the worker (`relay worker`); the two
// processes share only the queue section.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Runner    RunnerConfig    `yaml:"runner"`
	Providers ProvidersConfig `yaml:"providers"`
	Queue     QueueConfig     `yaml:"queue"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`

	// APIKey guards every /v1 route when set. Empty disables the check.
	APIKey string `yaml:"api_key"`

	// ShutdownTimeout bounds graceful drain on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// RunnerConfig bounds every subprocess the backends spawn.
type RunnerConfig struct {
	CaptureLimit int           `yaml:"capture_limit"`
	GracePeriod  time.Duration `yaml:"grace_period"`
}

// ProvidersConfig names the chat backends the gateway exposes. Default is
// the backend used when a request carries no model.
type ProvidersConfig struct {
	Default  string                   `yaml:"default"`
	Backends map[string]BackendConfig `yaml:"backends"`
}

// BackendConfig configures a single backend. CLI backends use Command and
// optionally Model; hosted backends use APIKey, Model and optionally BaseURL.
// The gemini backend uses both: hosted when APIKey is set, CLI otherwise.
type BackendConfig struct {
	Command string        `yaml:"command"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// QueueConfig configures the durable job queue shared between the gateway
// and worker processes.
type QueueConfig struct {
	// Path is the SQLite file both processes open. Empty resolves to
	// ~/.relay/jobs.db.
	Path string `yaml:"path"`

	PollInterval time.Duration `yaml:"poll_interval"`
	Workers      int           `yaml:"workers"`

	// Retention is how long terminal jobs are kept before pruning.
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is a cron expression for the retention sweep.
	PruneSchedule string `yaml:"prune_schedule"`

	// RetryDelay is how long a rate-limited job waits before re-submission.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// RetrySignatures are substrings of combined backend output that mark a
	// failure as rate-limiting rather than a hard error. Matched
	// case-insensitively.
	RetrySignatures []string `yaml:"retry_signatures"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Known backend ids. The adapter for each is fixed; config supplies the
// command, model, key and timeout.
const (
	BackendCodex     = "codex"
	BackendOpenCode  = "opencode"
	BackendCursor    = "cursor"
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

var knownBackends = map[string]bool{
	BackendCodex:     true,
	BackendOpenCode:  true,
	BackendCursor:    true,
	BackendGemini:    true,
	BackendOpenAI:    true,
	BackendAnthropic: true,
}

// Load reads, merges and validates the configuration file. Environment
// variables are expanded before parsing and unknown fields are rejected.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and the
// standard backend roster. It validates clean.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultBackends returns the standard backend roster. CLI backends get the
// long subprocess timeout; hosted backends the shorter API timeout.
func DefaultBackends() map[string]BackendConfig {
	return map[string]BackendConfig{
		BackendCodex:     {Command: "codex", Model: "gpt-5.2", Timeout: 300 * time.Second},
		BackendOpenCode:  {Command: "opencode", Timeout: 300 * time.Second},
		BackendCursor:    {Command: "cursor", Timeout: 300 * time.Second},
		BackendGemini:    {Command: "gemini", Model: "gemini-2.5-flash", APIKey: os.Getenv("GEMINI_API_KEY"), Timeout: 300 * time.Second},
		BackendOpenAI:    {APIKey: os.Getenv("OPENAI_API_KEY"), Model: "gpt-4o", Timeout: 120 * time.Second},
		BackendAnthropic: {APIKey: os.Getenv("ANTHROPIC_API_KEY"), Model: "claude-sonnet-4-5", Timeout: 120 * time.Second},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8001
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
	if cfg.Runner.CaptureLimit == 0 {
		cfg.Runner.CaptureLimit = runner.DefaultCaptureLimit
	}
	if cfg.Runner.GracePeriod == 0 {
		cfg.Runner.GracePeriod = runner.DefaultGracePeriod
	}
	if cfg.Providers.Default == "" {
		cfg.Providers.Default = BackendCodex
	}
	if len(cfg.Providers.Backends) == 0 {
		cfg.Providers.Backends = DefaultBackends()
	}
	for name, backend := range cfg.Providers.Backends {
		if backend.Timeout == 0 {
			backend.Timeout = 300 * time.Second
			cfg.Providers.Backends[name] = backend
		}
	}
	if cfg.Queue.Path == "" {
		cfg.Queue.Path = defaultQueuePath()
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 2 * time.Second
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 1
	}
	if cfg.Queue.Retention == 0 {
		cfg.Queue.Retention = 168 * time.Hour
	}
	if cfg.Queue.PruneSchedule == "" {
		cfg.Queue.PruneSchedule = "0 */6 * * *"
	}
	if cfg.Queue.RetryDelay == 0 {
		cfg.Queue.RetryDelay = 600 * time.Second
	}
	if len(cfg.Queue.RetrySignatures) == 0 {
		cfg.Queue.RetrySignatures = []string{"429", "RESOURCE_EXHAUSTED", "Resource exhausted", "rate limit"}
	}
}

func defaultQueuePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".relay", "jobs.db")
	}
	return filepath.Join(home, ".relay", "jobs.db")
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error: got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text: got %q", c.Logging.Format)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be in [0, 1]: got %v", c.Tracing.SampleRate)
	}
	for name, backend := range c.Providers.Backends {
		if !knownBackends[name] {
			return fmt.Errorf("providers.backends: unknown backend %q", name)
		}
		switch name {
		case BackendOpenAI, BackendAnthropic:
		default:
			if strings.TrimSpace(backend.Command) == "" && strings.TrimSpace(backend.APIKey) == "" {
				return fmt.Errorf("providers.backends.%s: command is required", name)
			}
		}
	}
	if _, ok := c.Providers.Backends[c.Providers.Default]; !ok {
		return fmt.Errorf("providers.default %q is not a configured backend", c.Providers.Default)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1: got %d", c.Queue.Workers)
	}
	if c.Telegram.Enabled {
		if strings.TrimSpace(c.Telegram.BotToken) == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}
