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
	allowed []string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "game.install_path", typ: kString, env: "TEMLAUNCH_GAME_INSTALL_PATH",
		apply:   func(cfg *Config, v any) { cfg.Game.InstallPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Game.InstallPath },
	},
	{
		key: "game.config_path", typ: kString, env: "TEMLAUNCH_GAME_CONFIG_PATH",
		apply:   func(cfg *Config, v any) { cfg.Game.ConfigPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Game.ConfigPath },
	},
	{
		key: "game.exe", typ: kString, env: "TEMLAUNCH_GAME_EXE",
		apply:   func(cfg *Config, v any) { cfg.Game.Exe = v.(string) },
		extract: func(cfg Config) any { return cfg.Game.Exe },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TEMLAUNCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "mods.dir", typ: kString, env: "TEMLAUNCH_MODS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Mods.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.ModsDir() },
	},
	{
		key: "mods.tem_repo", typ: kString, env: "TEMLAUNCH_MODS_TEM_REPO",
		apply:   func(cfg *Config, v any) { cfg.Mods.TEMRepo = v.(string) },
		extract: func(cfg Config) any { return cfg.Mods.TEMRepo },
	},
	{
		key: "mods.xdead_repo", typ: kString, env: "TEMLAUNCH_MODS_XDEAD_REPO",
		apply:   func(cfg *Config, v any) { cfg.Mods.XDeadRepo = v.(string) },
		extract: func(cfg Config) any { return cfg.Mods.XDeadRepo },
	},
	{
		key: "mods.allow_prerelease", typ: kBool, env: "TEMLAUNCH_MODS_ALLOW_PRERELEASE",
		apply:   func(cfg *Config, v any) { cfg.Mods.AllowPrerelease = v.(bool) },
		extract: func(cfg Config) any { return cfg.Mods.AllowPrerelease },
	},
	{
		key: "server.port", typ: kInt, env: "TEMLAUNCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "TEMLAUNCH_LOG_LEVEL", allowed: LogLevels,
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "updates.check", typ: kString, env: "TEMLAUNCH_UPDATES_CHECK", allowed: UpdateChecks,
		apply:   func(cfg *Config, v any) { cfg.Updates.Check = v.(string) },
		extract: func(cfg Config) any { return cfg.Updates.Check },
	},
	{
		key: "profiles.sort", typ: kString, env: "TEMLAUNCH_PROFILES_SORT", allowed: ProfileSorts,
		apply:   func(cfg *Config, v any) { cfg.Profiles.Sort = v.(string) },
		extract: func(cfg Config) any { return cfg.Profiles.Sort },
	},
	{
		key: "github.token", typ: kString, env: "TEMLAUNCH_GITHUB_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.GitHub.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.GitHub.Token },
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
