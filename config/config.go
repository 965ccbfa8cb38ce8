// Package config carries the static configuration the gateway consumes and
// never computes: the method allow-list, the timeout tables, the rate-limit
// envelope and the payload ceiling. Values load from the environment via
// envdecode, with an optional YAML file overlay for the parts that do not fit
// into flat environment variables (per-method timeout tables, allow-lists).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/agentgate/mcp-gateway-go/mcp"
)

// Config is the gateway's static configuration.
type Config struct {
	// MaxPayloadBytes bounds any inbound serialized message.
	MaxPayloadBytes int `env:"GATEWAY_MAX_PAYLOAD_BYTES,default=102400"`

	// DefaultTimeout applies to methods without a table entry.
	DefaultTimeout time.Duration `env:"GATEWAY_DEFAULT_TIMEOUT,default=30s"`

	// MaxTimeout caps every effective timeout.
	MaxTimeout time.Duration `env:"GATEWAY_MAX_TIMEOUT,default=2m"`

	// RateLimitWindow is the sliding-window span of the admission limiter.
	RateLimitWindow time.Duration `env:"GATEWAY_RATE_WINDOW,default=60s"`

	// RateLimitMax is the per-window request budget for one (session, method).
	RateLimitMax int `env:"GATEWAY_RATE_LIMIT,default=30"`

	// MethodTimeouts maps method names to their timeout. File-only.
	MethodTimeouts map[string]time.Duration

	// AllowedMethods narrows the mediated method surface. Empty means the
	// full default surface.
	AllowedMethods []string
}

// FromEnv loads configuration from the environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode env config: %w", err)
	}
	return cfg, nil
}

// Load builds the effective configuration: environment first, then the YAML
// file at path (if non-empty) overlaid on top.
func Load(path string) (Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}
	if err := cfg.overlayFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Duration parses from human-readable strings ("30s", "2m") in YAML files.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// fileConfig is the YAML shape of the overlay file.
type fileConfig struct {
	MaxPayloadBytes int                 `yaml:"maxPayloadBytes"`
	DefaultTimeout  Duration            `yaml:"defaultTimeout"`
	MaxTimeout      Duration            `yaml:"maxTimeout"`
	RateLimitWindow Duration            `yaml:"rateLimitWindow"`
	RateLimitMax    int                 `yaml:"rateLimitMax"`
	MethodTimeouts  map[string]Duration `yaml:"methodTimeouts"`
	AllowedMethods  []string            `yaml:"allowedMethods"`
}

// overlayFile merges the YAML file at path into cfg. Only fields present in
// the file replace the current values.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var overlay fileConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if overlay.MaxPayloadBytes > 0 {
		c.MaxPayloadBytes = overlay.MaxPayloadBytes
	}
	if overlay.DefaultTimeout > 0 {
		c.DefaultTimeout = time.Duration(overlay.DefaultTimeout)
	}
	if overlay.MaxTimeout > 0 {
		c.MaxTimeout = time.Duration(overlay.MaxTimeout)
	}
	if overlay.RateLimitWindow > 0 {
		c.RateLimitWindow = time.Duration(overlay.RateLimitWindow)
	}
	if overlay.RateLimitMax > 0 {
		c.RateLimitMax = overlay.RateLimitMax
	}
	if len(overlay.MethodTimeouts) > 0 {
		c.MethodTimeouts = make(map[string]time.Duration, len(overlay.MethodTimeouts))
		for m, d := range overlay.MethodTimeouts {
			c.MethodTimeouts[m] = time.Duration(d)
		}
	}
	if len(overlay.AllowedMethods) > 0 {
		c.AllowedMethods = overlay.AllowedMethods
	}
	return nil
}

// Methods returns the configured allow-list as mcp.Method values, falling
// back to the full default surface.
func (c *Config) Methods() []mcp.Method {
	if len(c.AllowedMethods) == 0 {
		return mcp.DefaultMethods()
	}
	out := make([]mcp.Method, 0, len(c.AllowedMethods))
	for _, m := range c.AllowedMethods {
		out = append(out, mcp.Method(m))
	}
	return out
}
