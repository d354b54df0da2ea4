package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "HELPLINE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "HELPLINE_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "ollama.base_url", typ: kString, env: "HELPLINE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "HELPLINE_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "HELPLINE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "lifecycle.pending_timeout", typ: kString, env: "HELPLINE_LIFECYCLE_PENDING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Lifecycle.PendingTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Lifecycle.PendingTimeout },
	},
	{
		key: "lifecycle.sweep_interval", typ: kString, env: "HELPLINE_LIFECYCLE_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Lifecycle.SweepInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Lifecycle.SweepInterval },
	},
	{
		key: "notify.caller_webhook_url", typ: kString, env: "HELPLINE_NOTIFY_CALLER_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Notify.CallerWebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.CallerWebhookURL },
	},
	{
		key: "notify.supervisor_webhook_url", typ: kString, env: "HELPLINE_NOTIFY_SUPERVISOR_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Notify.SupervisorWebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.SupervisorWebhookURL },
	},
	{
		key: "agent.simulate", typ: kBool, env: "HELPLINE_AGENT_SIMULATE",
		apply:   func(cfg *Config, v any) { cfg.Agent.Simulate = v.(bool) },
		extract: func(cfg Config) any { return cfg.Agent.Simulate },
	},
	{
		key: "agent.call_interval", typ: kString, env: "HELPLINE_AGENT_CALL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Agent.CallInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.CallInterval },
	},
	{
		key: "api.token", typ: kString, env: "HELPLINE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "log.level", typ: kString, env: "HELPLINE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
