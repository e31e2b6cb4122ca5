// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatmux.
//
// Configuration lives in ~/.chatmux/config.toml with sensible defaults,
// environment variable overrides, and validation. Saves are atomic so a
// crash never leaves a half-written config behind.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatmux/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatmux configuration.
type Config struct {
	Version string `toml:"version"`

	// DefaultProvider is the provider instance ID used for new
	// conversations.
	DefaultProvider string `toml:"default_provider"`

	// DefaultModel is the model ID used for new conversations.
	DefaultModel string `toml:"default_model"`

	// SystemPrompt is prepended to every generation when set.
	SystemPrompt string `toml:"system_prompt"`

	// Providers are the configured provider endpoints.
	Providers []ProviderConfig `toml:"providers"`

	// Retry tunes the generation retry controller.
	Retry RetryConfig `toml:"retry"`

	// Session tunes session lifecycle behavior.
	Session SessionConfig `toml:"session"`

	// Storage configures conversation persistence.
	Storage StorageConfig `toml:"storage"`

	// Tools configures tool execution.
	Tools ToolsConfig `toml:"tools"`
}

// ProviderConfig describes one provider endpoint.
type ProviderConfig struct {
	// ID uniquely identifies this instance.
	ID string `toml:"id"`
	// Name is the display label.
	Name string `toml:"name"`
	// BaseURL is the API root (e.g. "https://openrouter.ai/api/v1").
	BaseURL string `toml:"base_url"`
	// APIKey authenticates requests.
	APIKey string `toml:"api_key"`
	// ModelTTLSecs overrides the model list cache TTL (0 = default).
	ModelTTLSecs int `toml:"model_ttl_secs"`
}

// RetryConfig tunes the retry controller.
type RetryConfig struct {
	// MaxRetries is the retry budget after the first attempt.
	MaxRetries int `toml:"max_retries"`
	// BaseDelayMs is the first retry delay in milliseconds.
	BaseDelayMs int `toml:"base_delay_ms"`
	// MaxDelayMs clamps every delay in milliseconds.
	MaxDelayMs int `toml:"max_delay_ms"`
}

// SessionConfig tunes session lifecycle behavior.
type SessionConfig struct {
	// GracePeriodSecs is how long a session without viewers stays
	// alive before teardown.
	GracePeriodSecs int `toml:"grace_period_secs"`
	// MaxToolTurns bounds tool-call round trips per generation.
	MaxToolTurns int `toml:"max_tool_turns"`
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	// DatabasePath is the SQLite database location (empty = default
	// ~/.chatmux/conversations.db).
	DatabasePath string `toml:"database_path"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// Enabled turns tool calling on.
	Enabled bool `toml:"enabled"`
	// Root confines the built-in file tools (empty = current directory).
	Root string `toml:"root"`
	// CallTimeoutSecs bounds a single tool call.
	CallTimeoutSecs int `toml:"call_timeout_secs"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:         "1",
		DefaultProvider: "openrouter",
		DefaultModel:    "anthropic/claude-sonnet-4",
		Providers: []ProviderConfig{
			{
				ID:      "openrouter",
				Name:    "OpenRouter",
				BaseURL: "https://openrouter.ai/api/v1",
			},
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 1000,
			MaxDelayMs:  30000,
		},
		Session: SessionConfig{
			GracePeriodSecs: 5,
			MaxToolTurns:    8,
		},
		Tools: ToolsConfig{
			Enabled:         true,
			CallTimeoutSecs: 30,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the chatmux configuration directory (~/.chatmux).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".chatmux"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DatabasePath resolves the conversation database location, falling back
// to the default under the config directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations.db"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from the default location, applying defaults
// and environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides. Environment
// wins over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATMUX_PROVIDER"); v != "" {
		c.DefaultProvider = v
	}
	if v := os.Getenv("CHATMUX_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("CHATMUX_API_KEY"); v != "" {
		// Applies to the default provider instance.
		for i := range c.Providers {
			if c.Providers[i].ID == c.DefaultProvider {
				c.Providers[i].APIKey = v
			}
		}
	}
	if v := os.Getenv("CHATMUX_DB"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("CHATMUX_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("CHATMUX_TOOLS"); v != "" {
		c.Tools.Enabled = v == "1" || v == "true"
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, p := range c.Providers {
		if p.ID == "" {
			return errors.New("provider id cannot be empty")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		seen[p.ID] = true

		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url cannot be empty", p.ID)
		}
		u, err := url.Parse(p.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("provider %s: invalid base_url %q", p.ID, p.BaseURL)
		}
	}

	if c.DefaultProvider != "" && len(c.Providers) > 0 && !seen[c.DefaultProvider] {
		return fmt.Errorf("default_provider %q is not a configured provider", c.DefaultProvider)
	}

	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries cannot be negative")
	}
	if c.Retry.BaseDelayMs < 0 || c.Retry.MaxDelayMs < 0 {
		return errors.New("retry delays cannot be negative")
	}
	if c.Session.GracePeriodSecs < 0 {
		return errors.New("session.grace_period_secs cannot be negative")
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default location atomically.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to a specific path atomically.
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// SECURITY: Config holds API keys; keep it owner-only.
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// GracePeriod returns the session grace period as a duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Session.GracePeriodSecs) * time.Second
}

// BaseDelay returns the retry base delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap as a duration.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// Provider returns the provider configuration with the given ID.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
