// Package console implements the launcher's command console and its log buffer.
package console

import (
	"fmt"
	"strings"

	"github.com/temlaunch/temlaunch/internal/mods"
)

// Env is what console commands can see of the launcher.
type Env struct {
	Version    string
	InstallDir string
	ConfigDir  string
	ModsDir    string

	// Open shows a folder to the user. Nil uses the platform file browser.
	Open func(dir string) error
}

// Console executes console commands and echoes them into a Buffer.
type Console struct {
	env Env
	buf *Buffer
}

// New creates a Console. buf may be nil.
func New(env Env, buf *Buffer) *Console {
	if env.Open == nil {
		env.Open = OpenFolder
	}
	return &Console{env: env, buf: buf}
}

// Buffer returns the console log.
func (c *Console) Buffer() *Buffer { return c.buf }

// Execute runs one command line and returns its output. The command name is
// case-insensitive; everything after the first space is its argument.
func (c *Console) Execute(text string) string {
	text = strings.TrimSpace(text)
	command, args, _ := strings.Cut(text, " ")

	out := c.run(command, args)
	if c.buf != nil {
		c.buf.Log("> " + text)
		c.buf.Log(out)
	}
	return out
}

func (c *Console) run(command, args string) string {
	switch strings.ToLower(command) {
	case "echo":
		return args
	case "ua", "user-agent":
		return mods.UserAgent(c.env.Version)
	case "version":
		return c.env.Version
	case "game":
		return c.open(c.env.InstallDir, "Unable to open game folder")
	case "config":
		return c.open(c.env.ConfigDir, "Unable to open config folder")
	case "mods":
		return c.modVersions()
	case "help":
		return "Commands: user-agent, game, config, mods, version"
	default:
		return fmt.Sprintf("Unknown command: %s", command)
	}
}

func (c *Console) open(dir, failure string) string {
	if dir == "" {
		return failure
	}
	if err := c.env.Open(dir); err != nil {
		return failure
	}
	return dir
}

func (c *Console) modVersions() string {
	parts := make([]string, 0, 2)
	for _, mod := range []string{mods.TEM, mods.XDead} {
		asset, err := mods.ReadRelease(c.env.ModsDir, mod)
		switch {
		case err != nil:
			parts = append(parts, mod+": unreadable")
		case asset == "":
			parts = append(parts, mod+": not downloaded")
		default:
			parts = append(parts, mod+": "+mods.Version(asset))
		}
	}
	return strings.Join(parts, ", ")
}
