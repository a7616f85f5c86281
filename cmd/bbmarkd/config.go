package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP server and its storage.
type ServerConfig struct {
	ApiAddr        string `json:"api_addr"`
	LogLevel       string `json:"log_level"`
	DatabasePath   string `json:"database_path"`
	RulesDir       string `json:"rules_dir"`
	MetricsEnabled bool   `json:"metrics_enabled"`
}

// RenderConfig holds the settings every render request is run with.
type RenderConfig struct {
	SkipVerbatim    bool     `json:"skip_verbatim"`
	VerbatimOpen    string   `json:"verbatim_open"`
	VerbatimClose   string   `json:"verbatim_close"`
	MaxReplacements int      `json:"max_replacements"`
	MaxInputBytes   int64    `json:"max_input_bytes"`
	EscapeInput     bool     `json:"escape_input"`
	DefaultRuleSet  string   `json:"default_rule_set"`
	Extras          []string `json:"extras"`
}

// CacheConfig holds the settings of the Redis render cache.
type CacheConfig struct {
	Enabled       bool   `json:"enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	TTLSec        int    `json:"ttl_sec"`
	Prefix        string `json:"prefix"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config"`
	Render *RenderConfig `json:"render_config"`
	Cache  *CacheConfig  `json:"cache_config"`
}

// clone returns a copy that shares no sections with c.
func (c *Config) clone() Config {
	var out Config
	if c.Server != nil {
		server := *c.Server
		out.Server = &server
	}
	if c.Render != nil {
		render := *c.Render
		render.Extras = slices.Clone(c.Render.Extras)
		out.Render = &render
	}
	if c.Cache != nil {
		cache := *c.Cache
		out.Cache = &cache
	}
	return out
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:        ":7380",
		LogLevel:       "info",
		DatabasePath:   "./data/bbmark.db?_journal_mode=WAL&_busy_timeout=5000",
		RulesDir:       "./data/rules",
		MetricsEnabled: true,
	}
}

// DefaultRenderConfig creates a render configuration with default values.
func DefaultRenderConfig() *RenderConfig {
	return &RenderConfig{
		SkipVerbatim:    true,
		VerbatimOpen:    bbcode.DefaultVerbatimOpen,
		VerbatimClose:   bbcode.DefaultVerbatimClose,
		MaxReplacements: 10000,
		MaxInputBytes:   1 << 20,
		EscapeInput:     false,
		DefaultRuleSet:  "default",
		Extras:          []string{},
	}
}

// DefaultCacheConfig creates a cache configuration with default values.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:   false,
		RedisAddr: "localhost:6379",
		TTLSec:    3600,
		Prefix:    "bbmark:render:",
	}
}

// DefaultConfig returns a configuration with every section set to its defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Render: DefaultRenderConfig(),
		Cache:  DefaultCacheConfig(),
	}
}

// Validate checks the parts of the configuration that would otherwise only
// fail on the first render.
func (c *Config) Validate() error {
	if c.Server == nil || c.Render == nil || c.Cache == nil {
		return fmt.Errorf("server_config, render_config and cache_config are required")
	}
	for _, name := range c.Render.Extras {
		if _, ok := bbcode.Extra(name); !ok {
			return fmt.Errorf("unknown extra rule %q", name)
		}
	}
	if c.Render.MaxReplacements < 0 {
		return fmt.Errorf("max_replacements must not be negative")
	}
	if c.Render.MaxInputBytes < 0 {
		return fmt.Errorf("max_input_bytes must not be negative")
	}
	if c.Render.DefaultRuleSet == "" {
		return fmt.Errorf("default_rule_set must not be empty")
	}
	return nil
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				slog.Default().Warn("Failed to write default config file", "path", path, "error", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}

// parseLogLevel maps a config level name to a slog level. Unknown names fall
// back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigManager handles thread-safe access to the configuration and pushes
// render settings to the renderer whenever they change.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	renderer   *Renderer
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetRenderer registers the renderer to receive render config updates.
func (cm *ConfigManager) SetRenderer(r *Renderer) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.renderer = r
	if r != nil {
		r.SetConfig(*cm.config.Render)
	}
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.logger = logger
}

// Get returns a copy of the current configuration. Changing it does not
// change the live config; use Update for that.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.clone()
}

// Update validates the configuration, applies it, and saves it to disk.
// Server and cache settings take effect on the next restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("configuration rejected: %w", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := json.MarshalIndent(&newConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	*cm.config = newConfig.clone()
	if cm.renderer != nil {
		cm.renderer.SetConfig(*newConfig.Render)
	}
	cm.logger.Info("Configuration updated", "path", cm.configPath)
	return nil
}
