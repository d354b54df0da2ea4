package config

import (
	"errors"
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]any

func (b mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b[key]
	if !ok {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", true, errors.New("not a string")
	}
	return s, true, nil
}

func (b mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b[key]
	if !ok {
		return 0, false, nil
	}
	i, isInt := v.(int)
	if !isInt {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (b mapBackend) SetString(key, val string) error { b[key] = val; return nil }
func (b mapBackend) SetInt(key string, val int) error { b[key] = val; return nil }
func (b mapBackend) Delete(key string) error          { delete(b, key); return nil }

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := loadWith(mapBackend{}, mockKeychain{err: errors.New("no store")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Server.MCPPort != 4001 {
		t.Errorf("Server.MCPPort = %d, want 4001", cfg.Server.MCPPort)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Lifecycle.PendingTimeout != "15m" {
		t.Errorf("Lifecycle.PendingTimeout = %q, want 15m", cfg.Lifecycle.PendingTimeout)
	}
	if cfg.Lifecycle.SweepInterval != "1m" {
		t.Errorf("Lifecycle.SweepInterval = %q, want 1m", cfg.Lifecycle.SweepInterval)
	}
	if cfg.Agent.Simulate {
		t.Error("Agent.Simulate defaults to true, want false")
	}
	if cfg.API.Token != "" {
		t.Errorf("API.Token = %q, want empty without keychain", cfg.API.Token)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnvOverrides(t)

	b := mapBackend{
		"server.port":               5000,
		"lifecycle.pending_timeout": "30m",
		"agent.simulate":            "true",
		"notify.caller_webhook_url": "http://sms.example.com/send",
	}
	cfg, err := loadWith(b, mockKeychain{err: errors.New("no store")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Lifecycle.PendingTimeout != "30m" {
		t.Errorf("Lifecycle.PendingTimeout = %q, want 30m", cfg.Lifecycle.PendingTimeout)
	}
	if !cfg.Agent.Simulate {
		t.Error("Agent.Simulate not applied from backend")
	}
	if cfg.Notify.CallerWebhookURL != "http://sms.example.com/send" {
		t.Errorf("Notify.CallerWebhookURL = %q", cfg.Notify.CallerWebhookURL)
	}
}

func TestEnvOverridesBeatBackend(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("HELPLINE_SERVER_PORT", "6000")
	t.Setenv("HELPLINE_LIFECYCLE_PENDING_TIMEOUT", "5m")
	t.Setenv("HELPLINE_AGENT_SIMULATE", "true")

	b := mapBackend{"server.port": 5000, "lifecycle.pending_timeout": "30m"}
	cfg, err := loadWith(b, mockKeychain{err: errors.New("no store")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want env override 6000", cfg.Server.Port)
	}
	if cfg.Lifecycle.PendingTimeout != "5m" {
		t.Errorf("Lifecycle.PendingTimeout = %q, want env override 5m", cfg.Lifecycle.PendingTimeout)
	}
	if !cfg.Agent.Simulate {
		t.Error("Agent.Simulate not applied from env")
	}
}

func TestTokenFromKeychain(t *testing.T) {
	clearEnvOverrides(t)

	cfg, err := loadWith(mapBackend{}, mockKeychain{value: "kc-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Token != "kc-token" {
		t.Errorf("API.Token = %q, want keychain fallback", cfg.API.Token)
	}
}

func TestTokenEnvBeatsKeychain(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("HELPLINE_API_TOKEN", "env-token")

	cfg, err := loadWith(mapBackend{}, mockKeychain{value: "kc-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("API.Token = %q, want env value", cfg.API.Token)
	}
}

func TestInvalidDurationFails(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("HELPLINE_LIFECYCLE_PENDING_TIMEOUT", "soon")

	if _, err := loadWith(mapBackend{}, mockKeychain{err: errors.New("no store")}); err == nil {
		t.Fatal("expected error for unparsable pending timeout")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.Token = "secret"

	for _, info := range ShowAll(cfg) {
		if info.Key == "api.token" {
			t.Fatal("ShowAll exposes the API token")
		}
		if strings.Contains(info.Value, "secret") {
			t.Fatalf("ShowAll leaks a secret via %s", info.Key)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	want := map[string]bool{
		"server.port":               false,
		"lifecycle.pending_timeout": false,
		"agent.simulate":            false,
	}
	for _, k := range keys {
		if k == "api.token" {
			t.Error("secret key listed as settable")
		}
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("key %s missing from ValidKeys", k)
		}
	}
}
