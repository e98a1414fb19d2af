//go:build windows

package console

import "os/exec"

// OpenFolder shows dir in Explorer.
func OpenFolder(dir string) error {
	return exec.Command("explorer", dir).Start()
}
