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
		key: "server.port", typ: kInt, env: "BP_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.public_url", typ: kString, env: "BP_SERVER_PUBLIC_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.PublicURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.PublicURL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BP_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "BP_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "taskapi.base_url", typ: kString, env: "BP_TASK_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.TaskAPI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.TaskAPI.BaseURL },
	},
	{
		key: "taskapi.api_key", typ: kString, env: "BP_TASK_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.TaskAPI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.TaskAPI.APIKey },
	},
	{
		key: "taskapi.processor", typ: kString, env: "BP_TASK_API_PROCESSOR",
		apply:   func(cfg *Config, v any) { cfg.TaskAPI.Processor = v.(string) },
		extract: func(cfg Config) any { return cfg.TaskAPI.Processor },
	},
	{
		key: "taskapi.timeout", typ: kString, env: "BP_TASK_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.TaskAPI.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.TaskAPI.Timeout },
	},
	{
		key: "webhook.secret", typ: kString, env: "BP_WEBHOOK_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Webhook.Secret = v.(string) },
		extract: func(cfg Config) any { return cfg.Webhook.Secret },
	},
	{
		key: "seed.secret", typ: kString, env: "BP_SEED_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Seed.Secret = v.(string) },
		extract: func(cfg Config) any { return cfg.Seed.Secret },
	},
	{
		key: "seed.concurrency", typ: kInt, env: "BP_SEED_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Seed.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Seed.Concurrency },
	},
	{
		key: "catalog.path", typ: kString, env: "BP_CATALOG_PATH",
		apply:   func(cfg *Config, v any) { cfg.Catalog.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.Path },
	},
	{
		key: "auth.userinfo_url", typ: kString, env: "BP_AUTH_USERINFO_URL",
		apply:   func(cfg *Config, v any) { cfg.Auth.UserInfoURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.UserInfoURL },
	},
	{
		key: "auth.login_url", typ: kString, env: "BP_AUTH_LOGIN_URL",
		apply:   func(cfg *Config, v any) { cfg.Auth.LoginURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.LoginURL },
	},
	{
		key: "auth.cache_ttl", typ: kString, env: "BP_AUTH_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.CacheTTL },
	},
	{
		key: "admin.token", typ: kString, env: "BP_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Admin.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Admin.Token },
	},
	{
		key: "feed.limit", typ: kInt, env: "BP_FEED_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Feed.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.Feed.Limit },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "BP_WORKER_POLL_INTERVAL",
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

func envSet(name string) bool {
	return name != "" && os.Getenv(name) != ""
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
		}
	}
}
