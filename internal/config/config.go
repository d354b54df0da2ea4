// Package config loads helpline configuration from the platform-native
// backend, with environment variable overrides and a platform secret
// store for the API token.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Lifecycle LifecycleConfig
	Notify    NotifyConfig
	Agent     AgentConfig
	API       APIConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

// LifecycleConfig holds durations as strings so they round-trip through
// the flat config backend; use the accessor methods for parsed values.
type LifecycleConfig struct {
	PendingTimeout string
	SweepInterval  string
}

// Timeout returns the parsed pending timeout.
func (c LifecycleConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.PendingTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid lifecycle.pending_timeout %q: %w", c.PendingTimeout, err)
	}
	return d, nil
}

// Interval returns the parsed sweep interval.
func (c LifecycleConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid lifecycle.sweep_interval %q: %w", c.SweepInterval, err)
	}
	return d, nil
}

type NotifyConfig struct {
	CallerWebhookURL     string
	SupervisorWebhookURL string
}

// AgentConfig controls the built-in call simulator.
type AgentConfig struct {
	Simulate     bool
	CallInterval string
}

// Interval returns the parsed simulated-call interval.
func (c AgentConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.CallInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid agent.call_interval %q: %w", c.CallInterval, err)
	}
	return d, nil
}

type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "phi3.5",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Lifecycle: LifecycleConfig{
			PendingTimeout: "15m",
			SweepInterval:  "1m",
		},
		Agent: AgentConfig{
			Simulate:     false,
			CallInterval: "5s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.helpline.app) and the
// API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/helpline/config.json.
//
// Environment variables (HELPLINE_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The API token is optional; without it the HTTP surface runs open.
	if cfg.API.Token == "" {
		if token, err := kc.Get("helpline", "api_token"); err == nil && token != "" {
			cfg.API.Token = token
		}
	}

	// Fail fast on unparsable durations instead of surprising the
	// sweeper at runtime.
	if _, err := cfg.Lifecycle.Timeout(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Lifecycle.Interval(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Agent.Interval(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
