//go:build windows

package config

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const installRegistryKey = `Software\Disney Interactive Studios\tr2npc`

// locateInstallPath reads the install directory the game's setup wrote to
// HKLM. The installer is 32-bit, so the WOW64 view is tried first.
func locateInstallPath() (string, error) {
	var lastErr error
	for _, view := range []uint32{registry.WOW64_32KEY, 0} {
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, installRegistryKey, registry.QUERY_VALUE|view)
		if err != nil {
			lastErr = err
			continue
		}
		p, _, err := k.GetStringValue("InstallPath")
		k.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if p == "" {
			lastErr = errors.New("empty value")
			continue
		}
		return p, nil
	}
	return "", fmt.Errorf("reading HKLM\\%s\\InstallPath: %w", installRegistryKey, lastErr)
}
