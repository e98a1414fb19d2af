//go:build !windows

package console

import (
	"os/exec"
	"runtime"
)

// OpenFolder shows dir in the desktop file browser.
func OpenFolder(dir string) error {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	return exec.Command(name, dir).Start()
}
