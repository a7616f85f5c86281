package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = os.Stat(path)
	assert.NoError(t, err, "a default config file should be written")
}

func TestLoadConfigUnwritableFallsBackToDefaults(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "missing", "config.json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Contains(t, logs.String(), "Failed to write default config file")
}

func TestConfigManagerGetReturnsCopy(t *testing.T) {
	cm, err := NewConfigManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	cm.SetLogger(discardLogger())

	cfg := cm.Get()
	cfg.Render.DefaultRuleSet = "forum"
	cfg.Render.Extras = append(cfg.Render.Extras, "css")
	cfg.Server.MetricsEnabled = false
	cfg.Cache.Enabled = true

	live := cm.Get()
	assert.Equal(t, "default", live.Render.DefaultRuleSet)
	assert.Empty(t, live.Render.Extras)
	assert.True(t, live.Server.MetricsEnabled)
	assert.False(t, live.Cache.Enabled)

	require.NoError(t, cm.Update(cfg))
	cfg.Render.DefaultRuleSet = "changed after update"
	assert.Equal(t, "forum", cm.Get().Render.DefaultRuleSet)
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"render_config":{"skip_verbatim":false,"default_rule_set":"forum"}}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Render.SkipVerbatim)
	assert.Equal(t, "forum", cfg.Render.DefaultRuleSet)
	assert.Equal(t, DefaultServerConfig(), cfg.Server)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "bad json", content: `{`},
		{name: "unknown extra", content: `{"render_config":{"extras":["nope"],"default_rule_set":"default"}}`},
		{name: "negative limit", content: `{"render_config":{"max_replacements":-1,"default_rule_set":"default"}}`},
		{name: "empty default set", content: `{"render_config":{"default_rule_set":""}}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("Debug").String())
	assert.Equal(t, "WARN", parseLogLevel("warn").String())
	assert.Equal(t, "ERROR", parseLogLevel("error").String())
	assert.Equal(t, "INFO", parseLogLevel("loud").String())
}
