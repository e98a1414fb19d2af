//go:build !windows

package config

import "errors"

func locateInstallPath() (string, error) {
	return "", errors.New("install path lookup requires the Windows registry; set game.install_path")
}
