// Package launcher prepares the game for a launch profile and starts it.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/temlaunch/temlaunch/internal/gridini"
	"github.com/temlaunch/temlaunch/internal/profile"
	"github.com/temlaunch/temlaunch/internal/storage"
)

var (
	// ErrAlreadyRunning is returned when a launch is requested while the game runs.
	ErrAlreadyRunning = errors.New("game is already running")
	// ErrUnsupportedPlatform is returned by starters on systems the game cannot run on.
	ErrUnsupportedPlatform = errors.New("launching the game is only supported on Windows")
)

// DefaultExe is the game executable inside the install directory.
const DefaultExe = "GridGame.exe"

// EventGameLaunched is emitted with true once the game process starts and
// with false after it exits.
const EventGameLaunched = "game-launched"

// Event is a launcher state change delivered to listeners.
type Event struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// Process is a started game process.
type Process interface {
	// Wait blocks until the game exits and releases launch resources.
	Wait() (exitCode int, err error)
}

// Starter starts the game executable.
type Starter interface {
	Start(ctx context.Context, exePath string) (Process, error)
}

// ModSyncer installs or removes mod files for a profile.
// Implemented by mods.Installer.
type ModSyncer interface {
	Sync(p profile.Profile) error
}

// LaunchRecorder keeps launch history. Implemented by storage.Store.
type LaunchRecorder interface {
	StartLaunch(l storage.Launch) error
	FinishLaunch(id string, exitCode int, launchErr error) error
}

// Options locates the game on disk.
type Options struct {
	InstallDir string
	ConfigDir  string
	Exe        string
}

// Result summarises a finished launch.
type Result struct {
	LaunchID string         `json:"launchId"`
	ExitCode int            `json:"exitCode"`
	Rewrite  gridini.Result `json:"-"`
}

// Launcher runs one game launch at a time.
type Launcher struct {
	opts     Options
	starter  Starter
	mods     ModSyncer
	store    LaunchRecorder
	observer gridini.Observer
	logger   *slog.Logger

	running atomic.Bool

	mu        sync.Mutex
	listeners []func(Event)
}

// New creates a Launcher. mods, store and observer may be nil.
func New(opts Options, starter Starter, mods ModSyncer, store LaunchRecorder, observer gridini.Observer, logger *slog.Logger) *Launcher {
	if opts.Exe == "" {
		opts.Exe = DefaultExe
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = gridini.LogObserver(logger)
	}
	return &Launcher{
		opts:     opts,
		starter:  starter,
		mods:     mods,
		store:    store,
		observer: observer,
		logger:   logger,
	}
}

// OnEvent registers fn to receive launcher events.
func (l *Launcher) OnEvent(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Launcher) emit(ev Event) {
	l.mu.Lock()
	listeners := slices.Clone(l.listeners)
	l.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Running reports whether a launch is in progress.
func (l *Launcher) Running() bool {
	return l.running.Load()
}

// Launch rewrites GridEngine.ini with the profile settings, syncs the mod
// files, starts the game and blocks until it exits. A failing step aborts
// the launch before the game starts.
func (l *Launcher) Launch(ctx context.Context, p profile.Profile) (Result, error) {
	if !l.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer l.running.Store(false)
	return l.launch(ctx, p)
}

// Start reserves the launcher and runs the launch in its own goroutine. It
// returns ErrAlreadyRunning when a launch is in progress, including one that
// was started but has not reached the game yet. done may be nil; it is called
// after the reservation is released.
func (l *Launcher) Start(ctx context.Context, p profile.Profile, done func(Result, error)) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go func() {
		res, err := l.launch(ctx, p)
		l.running.Store(false)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

func (l *Launcher) launch(ctx context.Context, p profile.Profile) (Result, error) {
	if l.opts.InstallDir == "" {
		return Result{}, errors.New("game install path is not set")
	}
	l.observer.Log(fmt.Sprintf("Game is installed in %s", l.opts.InstallDir))

	rw, err := gridini.Rewrite(gridini.PathsIn(l.opts.ConfigDir), p.Settings(), l.observer)
	if err != nil {
		return Result{}, fmt.Errorf("rewriting engine config: %w", err)
	}

	if l.mods != nil {
		if err := l.mods.Sync(p); err != nil {
			return Result{}, fmt.Errorf("syncing mods: %w", err)
		}
	}

	res := Result{LaunchID: uuid.NewString(), Rewrite: rw}
	exe := filepath.Join(l.opts.InstallDir, l.opts.Exe)
	l.observer.Log(fmt.Sprintf("Launching %s", exe))

	proc, err := l.starter.Start(ctx, exe)
	if err != nil {
		l.observer.Log(fmt.Sprintf("Could not start game: %v", err))
		return Result{}, fmt.Errorf("starting game: %w", err)
	}

	if l.store != nil {
		rec := storage.Launch{ID: res.LaunchID, ProfileID: p.ID, ProfileName: p.Name, StartedAt: time.Now()}
		if err := l.store.StartLaunch(rec); err != nil {
			l.logger.Warn("recording launch failed", "error", err)
		}
	}
	l.emit(Event{Name: EventGameLaunched, Running: true})

	code, waitErr := proc.Wait()
	res.ExitCode = code

	l.emit(Event{Name: EventGameLaunched, Running: false})
	l.observer.Log("Game exited")

	if l.store != nil {
		if err := l.store.FinishLaunch(res.LaunchID, code, waitErr); err != nil {
			l.logger.Warn("recording launch exit failed", "error", err)
		}
	}
	if waitErr != nil {
		return res, fmt.Errorf("waiting for game: %w", waitErr)
	}
	return res, nil
}
