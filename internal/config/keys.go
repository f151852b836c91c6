package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "TICKETLENS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TICKETLENS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "TICKETLENS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "llm.backend", typ: kString, env: "TICKETLENS_LLM_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.LLM.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Backend },
	},
	{
		key: "llm.timeout", typ: kString, env: "TICKETLENS_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: "TICKETLENS_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "TICKETLENS_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "azure.endpoint", typ: kString, env: "TICKETLENS_AZURE_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Azure.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Azure.Endpoint },
	},
	{
		key: "azure.deployment", typ: kString, env: "TICKETLENS_AZURE_DEPLOYMENT",
		apply:   func(cfg *Config, v any) { cfg.Azure.Deployment = v.(string) },
		extract: func(cfg Config) any { return cfg.Azure.Deployment },
	},
	{
		key: "azure.api_key", typ: kString, env: "TICKETLENS_AZURE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Azure.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Azure.APIKey },
	},
	{
		key: "figma.token", typ: kString, env: "TICKETLENS_FIGMA_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Figma.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Figma.Token },
	},
	{
		key: "confluence.dir", typ: kString, env: "TICKETLENS_CONFLUENCE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Confluence.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Confluence.Dir },
	},
	{
		key: "report.max_items", typ: kInt, env: "TICKETLENS_REPORT_MAX_ITEMS",
		apply:   func(cfg *Config, v any) { cfg.Report.MaxItems = v.(int) },
		extract: func(cfg Config) any { return cfg.Report.MaxItems },
	},
	{
		key: "search.default_limit", typ: kInt, env: "TICKETLENS_SEARCH_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Search.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.DefaultLimit },
	},
	{
		key: "backup.s3_bucket", typ: kString, env: "TICKETLENS_BACKUP_S3_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Backup.S3Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Backup.S3Bucket },
	},
	{
		key: "backup.s3_prefix", typ: kString, env: "TICKETLENS_BACKUP_S3_PREFIX",
		apply:   func(cfg *Config, v any) { cfg.Backup.S3Prefix = v.(string) },
		extract: func(cfg Config) any { return cfg.Backup.S3Prefix },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "TICKETLENS_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
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
				slog.Warn("could not parse integer from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}

// applySecrets fills secrets still empty after env overrides from the store.
func applySecrets(cfg *Config, store SecretStore) {
	if store == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := store.Get(secretService, s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
