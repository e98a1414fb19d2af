package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// Profile is the persisted form of a launch profile.
type Profile struct {
	ID                  string
	Name                string
	CreatedAt           time.Time
	ModifiedAt          time.Time
	WindowWidth         int
	WindowHeight        int
	IsFullscreen        bool
	DisableSplashScreen bool
	IsDefault           bool
	UseTEM              bool
	UseXDead            bool
}

// ModRelease records which release asset of a mod is installed.
type ModRelease struct {
	Mod         string
	Asset       string
	Version     string
	InstalledAt time.Time
}

type Launch struct {
	ID          string
	ProfileID   string
	ProfileName string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while the game is running
	ExitCode    int
	Error       string
}

// Running reports whether the launch has not finished yet.
func (l Launch) Running() bool { return l.FinishedAt.IsZero() }

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
