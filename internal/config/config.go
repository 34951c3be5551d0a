// Package config provides TOML configuration file loading for the support
// chat client. The configuration file lives at ~/.supportchat/config.toml by
// default, but can be overridden with the --config flag. CLI flags always
// take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/glowshop/supportchat/internal/errors"
)

// Config represents the client configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// ServerURL is the chat server origin for WebSocket connections,
	// e.g. "wss://shop.example.com".
	// Default: ws://127.0.0.1:8990
	ServerURL string `toml:"server_url"`

	// APIBaseURL is the REST API origin for the chat list,
	// e.g. "https://shop.example.com". If empty, it is derived from
	// ServerURL by swapping the scheme (ws->http, wss->https).
	APIBaseURL string `toml:"api_base_url"`

	// DraftDB is the path to the SQLite database holding per-chat drafts.
	// Default: ~/.supportchat/drafts.db. Set to ":memory:" to keep drafts
	// only for the process lifetime.
	DraftDB string `toml:"draft_db"`

	// HideDelayMs is how long the loading overlay lingers, in
	// milliseconds, after loading completes before hiding.
	// Default: 250
	HideDelayMs int `toml:"hide_delay_ms"`

	// Reconnect enables automatic re-connection with exponential backoff
	// after a lost connection. When false (the default), a lost connection
	// keeps the last messages visible and waits for a manual reconnect.
	Reconnect bool `toml:"reconnect"`

	// ReconnectMaxRetries caps reconnection attempts when Reconnect is
	// enabled. 0 means no attempt cap.
	ReconnectMaxRetries int `toml:"reconnect_max_retries"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`
}

// HideDelay returns HideDelayMs as a duration, or 0 when unset so callers
// fall back to their default.
func (c *Config) HideDelay() time.Duration {
	if c.HideDelayMs <= 0 {
		return 0
	}
	return time.Duration(c.HideDelayMs) * time.Millisecond
}

// APIBase returns the REST API origin: APIBaseURL when set, otherwise
// ServerURL with the socket scheme swapped for the HTTP one.
func (c *Config) APIBase() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	switch {
	case strings.HasPrefix(c.ServerURL, "wss://"):
		return "https://" + strings.TrimPrefix(c.ServerURL, "wss://")
	case strings.HasPrefix(c.ServerURL, "ws://"):
		return "http://" + strings.TrimPrefix(c.ServerURL, "ws://")
	}
	return c.ServerURL
}

// DefaultConfigPath returns the default config file location:
// ~/.supportchat/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".supportchat", "config.toml"), nil
}

// DefaultDraftDBPath returns the default draft database location:
// ~/.supportchat/drafts.db.
func DefaultDraftDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".supportchat", "drafts.db"), nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.supportchat/config.toml). Returns defaults without error if the
//     default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ServerURL:   DefaultServerURL,
		HideDelayMs: DefaultHideDelayMs,
		LogLevel:    DefaultLogLevel,
	}

	if path == "" {
		// No explicit path: try default location, but don't error if
		// missing. The client runs fine with built-in defaults.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist. If the
		// user names a config file, it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigNotFound, fmt.Sprintf("config file not found: %s", path))
		}
	}

	// Parse the TOML file. Any parse error is fatal since the user expects
	// the config to be applied.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(errors.CodeConfigParseFailed, fmt.Sprintf("failed to parse config file %s", path), err)
	}

	return cfg, nil
}

// WriteDefault creates a config file with commented defaults at the given
// path.
//
// Behavior:
//   - If the file already exists, returns without error (does not
//     overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	// Never overwrite an existing config.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# supportchat configuration

# Chat server origin for WebSocket connections
server_url = %q

# Loading overlay hide delay in milliseconds
hide_delay_ms = %d

# Automatic reconnection after a lost connection
reconnect = false
`, DefaultServerURL, DefaultHideDelayMs)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
