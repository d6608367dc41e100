package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/clawgate/pkg/policy"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, policy.ModeMerged, cfg.Policy.Mode)
	assert.Equal(t, 300, cfg.Registry.PolicyCacheTTLSeconds)
	assert.Equal(t, 3, cfg.Registry.RetryAttempts)
	assert.Equal(t, 30, cfg.Registry.TimeoutSeconds)
	assert.Equal(t, 15*time.Second, cfg.SemanticTimeout())
	assert.Equal(t, time.Hour, cfg.DedupTTL())
	assert.Equal(t, 5*time.Minute, cfg.DedupSweepInterval())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Gateway.Port, cfg.Gateway.Port)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	raw := map[string]any{
		"agent": map[string]any{
			"id":         "agent-1",
			"allow_from": []any{"alice", 42},
		},
		"policy": map[string]any{
			"mode": "local",
			"rules": map[string]any{
				"max_message_length": 500,
				"blocked_keywords":   []string{"embargo"},
			},
		},
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "agent-1", cfg.Agent.ID)
	// Numeric allow_from entries are coerced to strings.
	assert.Equal(t, FlexibleStringSlice{"alice", "42"}, cfg.Agent.AllowFrom)
	assert.Equal(t, policy.ModeLocal, cfg.Policy.Mode)
	require.NotNil(t, cfg.Policy.Rules.MaxMessageLength)
	assert.Equal(t, 500, *cfg.Policy.Rules.MaxMessageLength)
	// Unset sections keep their defaults.
	assert.Equal(t, 300, cfg.Registry.PolicyCacheTTLSeconds)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("CLAWGATE_GATEWAY_PORT", "9999")
	t.Setenv("CLAWGATE_POLICY_MODE", "registry")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, policy.ModeRegistry, cfg.Policy.Mode)
}

func TestLoadConfig_InvalidMode(t *testing.T) {
	t.Setenv("CLAWGATE_POLICY_MODE", "bogus")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Agent.ID = "agent-7"
	cfg.Gateway.WebhookSecret = "hush"
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", loaded.Agent.ID)
	assert.Equal(t, "hush", loaded.Gateway.WebhookSecret)
}

func TestValidate_StreamNeedsURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registry.Stream.Enabled = true
	require.Error(t, cfg.Validate())

	cfg.Registry.BaseURL = "https://registry.example.com"
	require.NoError(t, cfg.Validate())
}
