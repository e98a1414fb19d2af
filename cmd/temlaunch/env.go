package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/temlaunch/temlaunch/internal/config"
	"github.com/temlaunch/temlaunch/internal/console"
	"github.com/temlaunch/temlaunch/internal/launcher"
	"github.com/temlaunch/temlaunch/internal/mods"
	"github.com/temlaunch/temlaunch/internal/profile"
	"github.com/temlaunch/temlaunch/internal/storage"
	"github.com/temlaunch/temlaunch/internal/updates"
)

// Overridden in tests.
var (
	loadConfig = config.Load
	newStarter = launcher.NewStarter
)

// launcherEnv wires the launcher components for one CLI invocation.
type launcherEnv struct {
	cfg       config.Config
	store     *storage.Store
	profiles  *profile.Manager
	installer *mods.Installer
	updater   *mods.Updater
	buffer    *console.Buffer
	console   *console.Console
	launcher  *launcher.Launcher
	logger    *slog.Logger
}

// openEnv loads configuration, installs the default logger and opens
// storage. Log records go to stderr and to the console buffer.
func openEnv(stderr io.Writer) (*launcherEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	buf := console.NewBuffer(0)
	level := cfg.SlogLevel()
	logger := slog.New(console.Tee(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
		buf.Handler(level),
	))
	slog.SetDefault(logger)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	modsDir := cfg.ModsDir()
	installer := mods.NewInstaller(modsDir, cfg.Game.InstallPath, logger)
	updater, err := mods.NewUpdater(mods.UpdaterConfig{
		ModsDir: modsDir,
		Repos: map[string]string{
			mods.TEM:   cfg.Mods.TEMRepo,
			mods.XDead: cfg.Mods.XDeadRepo,
		},
		AllowPrerelease: cfg.Mods.AllowPrerelease,
		Token:           cfg.GitHub.Token,
		UserAgent:       mods.UserAgent(version),
	}, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	con := console.New(console.Env{
		Version:    version,
		InstallDir: cfg.Game.InstallPath,
		ConfigDir:  cfg.Game.ConfigPath,
		ModsDir:    modsDir,
	}, buf)

	l := launcher.New(launcher.Options{
		InstallDir: cfg.Game.InstallPath,
		ConfigDir:  cfg.Game.ConfigPath,
		Exe:        cfg.Game.Exe,
	}, newStarter(), installer, store, nil, logger)
	l.OnEvent(buf.LauncherEvent)

	return &launcherEnv{
		cfg:       cfg,
		store:     store,
		profiles:  profile.NewManager(store),
		installer: installer,
		updater:   updater,
		buffer:    buf,
		console:   con,
		launcher:  l,
		logger:    logger,
	}, nil
}

func (e *launcherEnv) Close() error {
	return e.store.Close()
}

func (e *launcherEnv) sortOption() profile.SortOption {
	opt, err := profile.ParseSort(e.cfg.Profiles.Sort)
	if err != nil {
		e.logger.Warn("invalid profiles.sort, using default", "value", e.cfg.Profiles.Sort)
		return profile.SortCreatedAsc
	}
	return opt
}

// findProfile looks a profile up by name, then by ID. An empty name selects
// the default profile.
func (e *launcherEnv) findProfile(name string) (profile.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		p, err := e.profiles.Default()
		if errors.Is(err, storage.ErrNotFound) {
			return profile.Profile{}, errors.New(`no default profile; create one with "temlaunch profile add"`)
		}
		return p, err
	}
	p, err := e.profiles.GetByName(name)
	if !errors.Is(err, storage.ErrNotFound) {
		return p, err
	}
	p, err = e.profiles.Get(name)
	if errors.Is(err, storage.ErrNotFound) {
		return profile.Profile{}, fmt.Errorf("profile %q not found", name)
	}
	return p, err
}

// checkUpdates queues a release check for every configured mod and processes
// the queue before returning.
func (e *launcherEnv) checkUpdates(ctx context.Context) error {
	names := e.updater.Mods()
	if len(names) == 0 {
		return nil
	}
	if _, err := updates.Enqueue(e.store, names...); err != nil {
		return err
	}
	return updates.NewWorker(e.store, e.updater, 0).Drain(ctx)
}
