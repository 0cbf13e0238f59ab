package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	APIStyleOpenAI = "openai"
	APIStyleClaude = "claude"
)

const (
	defaultPort            = 8787
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultClaudeBaseURL   = "https://api.anthropic.com"
	defaultUpstreamTimeout = 60 * time.Second
	defaultCORSMaxAge      = 86400
)

// DefaultAllowHeaders is sent on preflight responses when the caller declares no headers.
var DefaultAllowHeaders = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}

// Config represents the relay configuration parsed from YAML and the environment.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UpstreamConfig describes the chat-completion API requests are forwarded to.
// The relay holds no credential of its own; callers supply theirs per request.
type UpstreamConfig struct {
	APIStyle string        `yaml:"api_style"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
	Headers  Headers       `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with an upstream request.
type Headers map[string]string

// CORSConfig tunes the preflight response.
type CORSConfig struct {
	AllowHeaders []string `yaml:"allow_headers"`
	MaxAge       int      `yaml:"max_age"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or environment overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: defaultPort},
		Upstream: UpstreamConfig{
			APIStyle: APIStyleOpenAI,
			BaseURL:  defaultOpenAIBaseURL,
			Timeout:  defaultUpstreamTimeout,
		},
		CORS: CORSConfig{
			AllowHeaders: append([]string(nil), DefaultAllowHeaders...),
			MaxAge:       defaultCORSMaxAge,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the environment, in that order.
// An unset base_url falls back to the default endpoint of the selected api_style.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.Upstream.BaseURL = ""

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	cfg.Upstream.APIStyle = strings.ToLower(strings.TrimSpace(cfg.Upstream.APIStyle))
	cfg.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/")
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultBaseURL(cfg.Upstream.APIStyle)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultBaseURL returns the public endpoint for an API style. Unknown styles get no default.
func DefaultBaseURL(apiStyle string) string {
	switch apiStyle {
	case APIStyleOpenAI, "":
		return defaultOpenAIBaseURL
	case APIStyleClaude:
		return defaultClaudeBaseURL
	default:
		return ""
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := firstEnv(lookup, "RELAY_PORT", "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse port %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := firstEnv(lookup, "UPSTREAM_API_STYLE"); ok {
		c.Upstream.APIStyle = v
	}
	if v, ok := firstEnv(lookup, "UPSTREAM_BASE_URL"); ok {
		c.Upstream.BaseURL = v
	}
	if v, ok := firstEnv(lookup, "UPSTREAM_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse UPSTREAM_TIMEOUT %q: %w", v, err)
		}
		c.Upstream.Timeout = d
	}
	if v, ok := firstEnv(lookup, "CORS_ALLOW_HEADERS"); ok {
		c.CORS.AllowHeaders = splitList(v)
	}
	if v, ok := firstEnv(lookup, "CORS_MAX_AGE"); ok {
		maxAge, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CORS_MAX_AGE %q: %w", v, err)
		}
		c.CORS.MaxAge = maxAge
	}
	if v, ok := firstEnv(lookup, "LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := firstEnv(lookup, "LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	return nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if err := validateUpstream(c.Upstream); err != nil {
		return err
	}

	if c.CORS.MaxAge < 0 {
		return fmt.Errorf("cors.max_age must not be negative, got %d", c.CORS.MaxAge)
	}
	for _, header := range c.CORS.AllowHeaders {
		if !isCanonicalHTTPHeader(header) {
			return fmt.Errorf("cors: header %q is not a valid canonical HTTP header", header)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn or error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	return nil
}

func validateUpstream(upstream UpstreamConfig) error {
	if err := validateAPIStyle(upstream.APIStyle); err != nil {
		return err
	}

	if strings.TrimSpace(upstream.BaseURL) == "" {
		return errors.New("upstream: base_url must be provided")
	}
	u, err := url.Parse(upstream.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("upstream: base_url %q must be an absolute http(s) URL", upstream.BaseURL)
	}

	if upstream.Timeout < 0 {
		return fmt.Errorf("upstream: timeout must not be negative, got %s", upstream.Timeout)
	}

	for headerKey := range upstream.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("upstream: header %q is not a valid canonical HTTP header", headerKey)
		}
	}
	return nil
}

func validateAPIStyle(style string) error {
	switch style {
	case APIStyleOpenAI, APIStyleClaude:
		return nil
	default:
		return fmt.Errorf("upstream: api_style %q must be one of %q or %q", style, APIStyleOpenAI, APIStyleClaude)
	}
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}

func firstEnv(lookup func(string) (string, bool), keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
