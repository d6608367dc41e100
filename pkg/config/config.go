// Package config loads clawgate configuration from a JSON file with
// environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/tinyland-inc/clawgate/pkg/policy"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers, so
// allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Gateway   GatewayConfig   `json:"gateway"`
	Registry  RegistryConfig  `json:"registry"`
	Policy    PolicyConfig    `json:"policy"`
	Semantic  SemanticConfig  `json:"semantic"`
	Dedup     DedupConfig     `json:"dedup"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
}

// AgentConfig identifies the local agent this gate fronts.
type AgentConfig struct {
	ID        string              `env:"CLAWGATE_AGENT_ID"         json:"id"`
	AllowFrom FlexibleStringSlice `env:"CLAWGATE_AGENT_ALLOW_FROM" json:"allow_from,omitempty"`
}

type GatewayConfig struct {
	Host          string `env:"CLAWGATE_GATEWAY_HOST"           json:"host"`
	Port          int    `env:"CLAWGATE_GATEWAY_PORT"           json:"port"`
	WebhookPath   string `env:"CLAWGATE_GATEWAY_WEBHOOK_PATH"   json:"webhook_path"`
	WebhookSecret string `env:"CLAWGATE_GATEWAY_WEBHOOK_SECRET" json:"webhook_secret"`
}

type RegistryConfig struct {
	BaseURL               string `env:"CLAWGATE_REGISTRY_BASE_URL"         json:"base_url"`
	Token                 string `env:"CLAWGATE_REGISTRY_TOKEN"            json:"token"`
	TimeoutSeconds        int    `env:"CLAWGATE_REGISTRY_TIMEOUT_SECONDS"  json:"timeout_seconds"`
	RetryAttempts         int    `env:"CLAWGATE_REGISTRY_RETRY_ATTEMPTS"   json:"retry_attempts"`
	PolicyCacheTTLSeconds int    `env:"CLAWGATE_REGISTRY_POLICY_CACHE_TTL" json:"policy_cache_ttl_seconds"`
	RefreshSchedule       string `env:"CLAWGATE_REGISTRY_REFRESH_SCHEDULE" json:"refresh_schedule,omitempty"`
	Stream                StreamConfig `json:"stream,omitzero"`
}

// StreamConfig enables the websocket delivery stream as an alternative to
// webhooks. Messages from the stream pass the same gate pipeline, minus
// signature verification (the authenticated stream is the authenticator).
type StreamConfig struct {
	Enabled bool   `env:"CLAWGATE_REGISTRY_STREAM_ENABLED" json:"enabled"`
	URL     string `env:"CLAWGATE_REGISTRY_STREAM_URL"     json:"url,omitempty"`
}

type PolicyConfig struct {
	Mode  policy.Mode  `env:"CLAWGATE_POLICY_MODE" json:"mode"`
	Rules policy.Rules `json:"rules,omitzero"`
}

type SemanticConfig struct {
	Provider       string  `env:"CLAWGATE_SEMANTIC_PROVIDER"        json:"provider"`
	Model          string  `env:"CLAWGATE_SEMANTIC_MODEL"           json:"model"`
	APIKey         string  `env:"CLAWGATE_SEMANTIC_API_KEY"         json:"api_key"`
	APIBase        string  `env:"CLAWGATE_SEMANTIC_API_BASE"        json:"api_base,omitempty"`
	TimeoutSeconds int     `env:"CLAWGATE_SEMANTIC_TIMEOUT_SECONDS" json:"timeout_seconds"`
	Temperature    float64 `env:"CLAWGATE_SEMANTIC_TEMPERATURE"     json:"temperature"`
	MaxTokens      int     `env:"CLAWGATE_SEMANTIC_MAX_TOKENS"      json:"max_tokens"`
}

type DedupConfig struct {
	TTLMinutes   int `env:"CLAWGATE_DEDUP_TTL_MINUTES"   json:"ttl_minutes"`
	SweepMinutes int `env:"CLAWGATE_DEDUP_SWEEP_MINUTES" json:"sweep_minutes"`
}

// DispatchConfig points at the local agent process that consumes accepted
// inbound messages.
type DispatchConfig struct {
	TriggerURL     string `env:"CLAWGATE_DISPATCH_TRIGGER_URL"     json:"trigger_url"`
	TimeoutSeconds int    `env:"CLAWGATE_DISPATCH_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

type HeartbeatConfig struct {
	Enabled         bool `env:"CLAWGATE_HEARTBEAT_ENABLED"  json:"enabled"`
	IntervalMinutes int  `env:"CLAWGATE_HEARTBEAT_INTERVAL" json:"interval"` // minutes, min 1
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:        "127.0.0.1",
			Port:        18790,
			WebhookPath: "/webhook/message",
		},
		Registry: RegistryConfig{
			TimeoutSeconds:        30,
			RetryAttempts:         3,
			PolicyCacheTTLSeconds: 300,
		},
		Policy: PolicyConfig{
			Mode: policy.ModeMerged,
		},
		Semantic: SemanticConfig{
			Provider:       "anthropic",
			Model:          "claude-sonnet-4.6",
			TimeoutSeconds: 15,
			Temperature:    0,
			MaxTokens:      512,
		},
		Dedup: DedupConfig{
			TTLMinutes:   60,
			SweepMinutes: 5,
		},
		Dispatch: DispatchConfig{
			TimeoutSeconds: 60,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			IntervalMinutes: 5,
		},
	}
}

// LoadConfig reads the JSON config at path and applies environment
// overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// SaveConfig writes the config as indented JSON, creating the directory if
// needed.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	switch c.Policy.Mode {
	case policy.ModeLocal, policy.ModeRegistry, policy.ModeMerged, "":
	default:
		return fmt.Errorf("policy mode %q is not one of local, registry, merged", c.Policy.Mode)
	}
	switch c.Semantic.Provider {
	case "anthropic", "openai", "":
	default:
		return fmt.Errorf("semantic provider %q is not one of anthropic, openai", c.Semantic.Provider)
	}
	if c.Registry.Stream.Enabled && c.Registry.Stream.URL == "" && c.Registry.BaseURL == "" {
		return errors.New("registry stream enabled but no stream url or base url configured")
	}
	return nil
}

// SemanticTimeout returns the per-policy evaluation timeout.
func (c *Config) SemanticTimeout() time.Duration {
	if c.Semantic.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Semantic.TimeoutSeconds) * time.Second
}

// DedupTTL returns the dedup retention window.
func (c *Config) DedupTTL() time.Duration {
	if c.Dedup.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Dedup.TTLMinutes) * time.Minute
}

// DedupSweepInterval returns the dedup sweep cadence.
func (c *Config) DedupSweepInterval() time.Duration {
	if c.Dedup.SweepMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Dedup.SweepMinutes) * time.Minute
}
