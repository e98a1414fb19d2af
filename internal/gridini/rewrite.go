// Package gridini rewrites the display and startup keys of the game's
// GridEngine.ini from a pristine backup copy.
package gridini

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/renameio/v2/maybe"
)

const (
	LiveFileName   = "GridEngine.ini"
	BackupFileName = "GridEngine.backup.ini"
)

const crlf = "\r\n"

var errInvalidUTF8 = errors.New("invalid UTF-8")

// Settings are the profile values written into the engine config.
type Settings struct {
	WindowWidth         int
	WindowHeight        int
	IsFullscreen        bool
	DisableSplashScreen bool
}

// Paths locates the live config and its one-time backup.
type Paths struct {
	Live   string
	Backup string
}

// PathsIn returns the conventional file locations inside the game's config directory.
func PathsIn(dir string) Paths {
	return Paths{
		Live:   filepath.Join(dir, LiveFileName),
		Backup: filepath.Join(dir, BackupFileName),
	}
}

// Result summarizes a completed rewrite.
type Result struct {
	// Lines is the number of lines written to the live file.
	Lines int
	// Rewritten counts lines whose content was replaced.
	Rewritten int
	// BackupCreated reports whether this run took the backup snapshot.
	BackupCreated bool
	// Warnings lists source lines that were dropped because they could not be decoded.
	Warnings []*DecodeError
}

type section int

const (
	sectionNone section = iota
	sectionSystemSettings
	sectionFullScreenMovie
)

// Rewrite snapshots the live file to the backup path if no backup exists yet,
// then regenerates the live file from the backup with settings applied.
//
// Any returned error is an *IOError. A nil observer discards messages.
func Rewrite(paths Paths, settings Settings, obs Observer) (Result, error) {
	if obs == nil {
		obs = nopObserver{}
	}

	created, err := ensureBackup(paths)
	if err != nil {
		return Result{}, err
	}
	if created {
		logf(obs, "Created backup %s", paths.Backup)
	}

	src, err := os.Open(paths.Backup)
	if err != nil {
		return Result{}, &IOError{Op: "open backup", Path: paths.Backup, Err: err}
	}
	defer src.Close()

	dst, err := os.OpenFile(paths.Live, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return Result{}, &IOError{Op: "open config", Path: paths.Live, Err: err}
	}

	res, err := Transform(src, dst, settings, obs)
	res.BackupCreated = created
	if err != nil {
		dst.Close()
		return res, &IOError{Op: "rewrite", Path: paths.Live, Err: err}
	}
	if err := dst.Close(); err != nil {
		return res, &IOError{Op: "close", Path: paths.Live, Err: err}
	}
	return res, nil
}

// ensureBackup copies the live file to the backup path unless a backup is
// already present. The copy is written atomically where the platform allows it.
func ensureBackup(paths Paths) (bool, error) {
	if _, err := os.Stat(paths.Backup); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, &IOError{Op: "stat backup", Path: paths.Backup, Err: err}
	}

	info, err := os.Stat(paths.Live)
	if err != nil {
		return false, &IOError{Op: "create backup from", Path: paths.Live, Err: err}
	}
	data, err := os.ReadFile(paths.Live)
	if err != nil {
		return false, &IOError{Op: "create backup from", Path: paths.Live, Err: err}
	}
	if err := maybe.WriteFile(paths.Backup, data, info.Mode().Perm()); err != nil {
		return false, &IOError{Op: "write backup", Path: paths.Backup, Err: err}
	}
	return true, nil
}

// Transform streams an INI document from r to w, applying settings. Read and
// write failures are returned as errors; undecodable lines are skipped and
// reported in Result.Warnings.
func Transform(r io.Reader, w io.Writer, settings Settings, obs Observer) (Result, error) {
	if obs == nil {
		obs = nopObserver{}
	}

	var (
		res     Result
		current = sectionNone
		lineNo  int
	)

	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	emit := func(line string) error {
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if _, err := bw.WriteString(crlf); err != nil {
			return err
		}
		res.Lines++
		return nil
	}

	for {
		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return res, fmt.Errorf("reading line %d: %w", lineNo+1, readErr)
		}
		if len(raw) == 0 && readErr == io.EOF {
			break
		}
		lineNo++

		raw = bytes.TrimSuffix(raw, []byte("\n"))
		raw = bytes.TrimSuffix(raw, []byte("\r"))

		if !utf8.Valid(raw) {
			derr := &DecodeError{Line: lineNo, Err: errInvalidUTF8}
			res.Warnings = append(res.Warnings, derr)
			logf(obs, "Error at line %d", lineNo)
		} else {
			out, rewritten := rewriteLine(string(raw), &current, settings, obs)
			if err := emit(out); err != nil {
				return res, fmt.Errorf("writing line %d: %w", lineNo, err)
			}
			if rewritten {
				res.Rewritten++
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("flushing output: %w", err)
	}
	return res, nil
}

// rewriteLine returns the output text for one decoded line and whether a
// recognized key was rewritten. current carries the section across lines.
func rewriteLine(line string, current *section, s Settings, obs Observer) (string, bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return "", false
	}

	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		switch text {
		case "[SystemSettings]":
			*current = sectionSystemSettings
		case "[FullScreenMovie]":
			*current = sectionFullScreenMovie
		default:
			*current = sectionNone
		}
		return line, false
	}

	key, value, ok := strings.Cut(text, "=")
	if !ok {
		return line, false
	}

	switch *current {
	case sectionSystemSettings:
		switch key {
		case "ResX":
			logf(obs, "Set ResX to %d", s.WindowWidth)
			return fmt.Sprintf("ResX=%d", s.WindowWidth), true
		case "ResY":
			logf(obs, "Set ResY to %d", s.WindowHeight)
			return fmt.Sprintf("ResY=%d", s.WindowHeight), true
		case "Fullscreen":
			v := boolString(s.IsFullscreen)
			logf(obs, "Set Fullscreen to %s", v)
			return "Fullscreen=" + v, true
		}
	case sectionFullScreenMovie:
		if strings.HasPrefix(text, "StartupMovies") || strings.HasPrefix(text, ";StartupMovies") {
			if s.DisableSplashScreen {
				logf(obs, "Disabled StartupMovies=%s", value)
				return ";StartupMovies=" + value, true
			}
			logf(obs, "Enabled StartupMovies=%s", value)
			return "StartupMovies=" + value, true
		}
	}

	return line, false
}

func boolString(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
