// Package mods installs the TEM and XDead mod files into the game directory
// and keeps the local copies up to date from GitHub releases.
package mods

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2/maybe"

	"github.com/temlaunch/temlaunch/internal/profile"
)

// Mod names, also used as directory names under the mods dir.
const (
	TEM   = "tem"
	XDead = "xdead"
)

var (
	temFiles   = []string{"dinput8.dll", "patch.dat", "tem.dll"}
	xdeadFiles = []string{"xlive.dll"}
)

// Files returns the files that make up mod, or nil for an unknown mod.
func Files(mod string) []string {
	switch mod {
	case TEM:
		return append([]string(nil), temFiles...)
	case XDead:
		return append([]string(nil), xdeadFiles...)
	}
	return nil
}

// marker is the file whose presence means the mod is installed.
func marker(mod string) string {
	if mod == TEM {
		return "tem.dll"
	}
	return "xlive.dll"
}

// Status reports which mods are present in a game directory.
type Status struct {
	TEM   bool `json:"tem"`
	XDead bool `json:"xdead"`
}

// Installer copies mod files between the mods dir and the game install dir.
type Installer struct {
	modsDir    string
	installDir string
	logger     *slog.Logger
}

func NewInstaller(modsDir, installDir string, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{modsDir: modsDir, installDir: installDir, logger: logger}
}

// Status reports which mods are currently installed in the game directory.
func (in *Installer) Status() Status {
	return Status{
		TEM:   exists(filepath.Join(in.installDir, marker(TEM))),
		XDead: exists(filepath.Join(in.installDir, marker(XDead))),
	}
}

// Sync makes the game directory match the mod selection of p. XDead is only
// loaded through TEM, so it is removed whenever TEM is off.
func (in *Installer) Sync(p profile.Profile) error {
	if in.installDir == "" {
		return errors.New("game install path is not set")
	}
	st := in.Status()

	if !p.UseTEM {
		if st.TEM {
			if err := in.remove(TEM); err != nil {
				return err
			}
		}
		if st.XDead {
			return in.remove(XDead)
		}
		return nil
	}

	if !st.TEM {
		if err := in.install(TEM); err != nil {
			return err
		}
	}
	switch {
	case p.UseXDead && !st.XDead:
		return in.install(XDead)
	case !p.UseXDead && st.XDead:
		return in.remove(XDead)
	}
	return nil
}

func (in *Installer) install(mod string) error {
	for _, name := range Files(mod) {
		src := filepath.Join(in.modsDir, mod, name)
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("reading %s file %s: %w", mod, name, err)
		}
		dst := filepath.Join(in.installDir, name)
		if err := maybe.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("installing %s: %w", dst, err)
		}
	}
	in.logger.Info("installed mod", "mod", mod, "dir", in.installDir)
	return nil
}

func (in *Installer) remove(mod string) error {
	for _, name := range Files(mod) {
		dst := filepath.Join(in.installDir, name)
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", dst, err)
		}
	}
	in.logger.Info("removed mod", "mod", mod, "dir", in.installDir)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
