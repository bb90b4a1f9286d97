// ABOUTME: Configuration loading and parsing for the chat client core.
// ABOUTME: YAML with environment variable expansion, durations, and defaults.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds backend endpoint configuration.
type ServerConfig struct {
	// APIBase is the REST base URL, e.g. https://api.oakmart.example.
	APIBase string `yaml:"api_base"`
	// SocketURL is the realtime endpoint, e.g. wss://api.oakmart.example/rt.
	SocketURL string `yaml:"socket_url"`
}

// AuthConfig holds bearer token configuration.
type AuthConfig struct {
	// Token is the bearer token itself; usually injected via ${OAKMART_TOKEN}.
	Token string `yaml:"token"`
	// TokenFile is read when Token is empty.
	TokenFile string `yaml:"token_file"`
}

// ReconnectConfig bounds the transport's backoff behavior.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"-"`
	MaxDelay    time.Duration `yaml:"-"`

	BaseDelayRaw string `yaml:"base_delay"`
	MaxDelayRaw  string `yaml:"max_delay"`
}

// ChatConfig holds the timing knobs of the messaging core.
type ChatConfig struct {
	SendTimeout     time.Duration `yaml:"-"`
	AntiFloodWindow time.Duration `yaml:"-"`
	DedupWindow     time.Duration `yaml:"-"`
	SeenTTL         time.Duration `yaml:"-"`
	SeenMax         int           `yaml:"seen_max"`
	TypingIdle      time.Duration `yaml:"-"`
	TypingExpiry    time.Duration `yaml:"-"`

	SendTimeoutRaw     string `yaml:"send_timeout"`
	AntiFloodWindowRaw string `yaml:"anti_flood_window"`
	DedupWindowRaw     string `yaml:"dedup_window"`
	SeenTTLRaw         string `yaml:"seen_ttl"`
	TypingIdleRaw      string `yaml:"typing_idle"`
	TypingExpiryRaw    string `yaml:"typing_expiry"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every knob at its default value.
// A loaded file only needs to override what it cares about.
func Default() *Config {
	return &Config{
		Reconnect: ReconnectConfig{
			MaxAttempts: 8,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
		},
		Chat: ChatConfig{
			SendTimeout:     10 * time.Second,
			AntiFloodWindow: 3 * time.Second,
			DedupWindow:     5 * time.Second,
			SeenTTL:         2 * time.Minute,
			SeenMax:         512,
			TypingIdle:      time.Second,
			TypingExpiry:    4 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from path. Environment variables in the
// form ${VAR_NAME} are expanded before parsing, and duration strings are
// converted to time.Duration values. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the environment value. Unset
// variables expand to the empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// Validate checks required fields, returning the first failure.
func (c *Config) Validate() error {
	if c.Server.APIBase == "" {
		return fmt.Errorf("server.api_base is required")
	}
	if c.Server.SocketURL == "" {
		return fmt.Errorf("server.socket_url is required")
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect.max_attempts must be at least 1")
	}
	if c.Chat.SeenMax < 1 {
		return fmt.Errorf("chat.seen_max must be at least 1")
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values,
// leaving defaults in place for fields the file omits.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"reconnect.base_delay", cfg.Reconnect.BaseDelayRaw, &cfg.Reconnect.BaseDelay},
		{"reconnect.max_delay", cfg.Reconnect.MaxDelayRaw, &cfg.Reconnect.MaxDelay},
		{"chat.send_timeout", cfg.Chat.SendTimeoutRaw, &cfg.Chat.SendTimeout},
		{"chat.anti_flood_window", cfg.Chat.AntiFloodWindowRaw, &cfg.Chat.AntiFloodWindow},
		{"chat.dedup_window", cfg.Chat.DedupWindowRaw, &cfg.Chat.DedupWindow},
		{"chat.seen_ttl", cfg.Chat.SeenTTLRaw, &cfg.Chat.SeenTTL},
		{"chat.typing_idle", cfg.Chat.TypingIdleRaw, &cfg.Chat.TypingIdle},
		{"chat.typing_expiry", cfg.Chat.TypingExpiryRaw, &cfg.Chat.TypingExpiry},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
