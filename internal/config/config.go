package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
)

// Update check policies for mod releases.
const (
	UpdatesDisabled        = "disabled"
	UpdatesOnLauncherStart = "on-launcher-start"
	UpdatesOnLauncherExit  = "on-launcher-exit"
)

// UpdateChecks lists the accepted values of updates.check.
var UpdateChecks = []string{UpdatesDisabled, UpdatesOnLauncherStart, UpdatesOnLauncherExit}

// ProfileSorts lists the accepted values of profiles.sort.
var ProfileSorts = []string{"createdAt-asc", "createdAt-desc", "name-asc", "name-desc"}

// LogLevels lists the accepted values of log.level.
var LogLevels = []string{"debug", "info", "warn", "error"}

type Config struct {
	Game     GameConfig
	Storage  StorageConfig
	Mods     ModsConfig
	Server   ServerConfig
	Log      LogConfig
	Updates  UpdatesConfig
	Profiles ProfilesConfig
	GitHub   GitHubConfig
}

type GameConfig struct {
	// InstallPath is the directory holding the game executable. Resolved from
	// the registry when left empty.
	InstallPath string
	// ConfigPath is the directory holding GridEngine.ini.
	ConfigPath string
	Exe        string
}

type StorageConfig struct {
	DataDir string
}

type ModsConfig struct {
	Dir             string
	TEMRepo         string
	XDeadRepo       string
	AllowPrerelease bool
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type UpdatesConfig struct {
	Check string
}

type ProfilesConfig struct {
	Sort string
}

type GitHubConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Game: GameConfig{
			ConfigPath: defaultGameConfigDir(),
			Exe:        "GridGame.exe",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Mods: ModsConfig{
			TEMRepo:         "NeKzor/tem",
			AllowPrerelease: true,
		},
		Server: ServerConfig{
			Port: 4310,
		},
		Log: LogConfig{
			Level: "info",
		},
		Updates: UpdatesConfig{
			Check: UpdatesDisabled,
		},
		Profiles: ProfilesConfig{
			Sort: "createdAt-asc",
		},
	}
}

// ModsDir returns the directory holding downloaded mod files, defaulting to
// <data dir>/mods.
func (c Config) ModsDir() string {
	if c.Mods.Dir != "" {
		return c.Mods.Dir
	}
	return filepath.Join(c.Storage.DataDir, "mods")
}

// SecretStore returns the secrets file kept in the data directory.
func (c Config) SecretStore() *SecretStore {
	return NewSecretStore(c.Storage.DataDir)
}

// SlogLevel maps log.level onto a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
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

// Load reads configuration from the JSON file backend, environment variables
// (TEMLAUNCH_*), and the local secrets file.
//
// The backend lives at $XDG_CONFIG_HOME/temlaunch/config.json, or the
// platform's user config directory when XDG_CONFIG_HOME is unset.
// When game.install_path is empty, it is looked up in the registry where the
// game's installer records it. Other platforms leave it empty.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), func(dataDir string) secretReader { return NewSecretStore(dataDir) }, locateInstallPath)
}

// secretReader abstracts the secrets file for testing.
type secretReader interface {
	Get(name string) (string, error)
}

// secretOpener returns the secrets kept under a data directory.
type secretOpener func(dataDir string) secretReader

// installLocator resolves the game install directory.
type installLocator func() (string, error)

func loadWith(b ConfigBackend, openSecrets secretOpener, locate installLocator) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.GitHub.Token == "" && openSecrets != nil {
		if tok, err := openSecrets(cfg.Storage.DataDir).Get(secretGitHubToken); err == nil && tok != "" {
			cfg.GitHub.Token = tok
		}
	}

	if cfg.Game.InstallPath == "" && locate != nil {
		if p, err := locate(); err == nil {
			cfg.Game.InstallPath = p
		} else {
			slog.Debug("game install path not found in registry", "error", err)
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if !slices.Contains(UpdateChecks, cfg.Updates.Check) {
		return fmt.Errorf("invalid updates.check %q: want one of %s", cfg.Updates.Check, strings.Join(UpdateChecks, ", "))
	}
	if !slices.Contains(ProfileSorts, cfg.Profiles.Sort) {
		return fmt.Errorf("invalid profiles.sort %q: want one of %s", cfg.Profiles.Sort, strings.Join(ProfileSorts, ", "))
	}
	if !slices.Contains(LogLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("invalid log.level %q: want one of %s", cfg.Log.Level, strings.Join(LogLevels, ", "))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	return nil
}
