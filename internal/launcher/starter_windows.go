//go:build windows

package launcher

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// The game's copy protection looks for this shared memory section and skips
// its disc check when the launcher has created it.
const (
	mappingName = "-=[SMS_GridGame.exe_SMS]=-"
	mappingSize = 1723
)

type mappingStarter struct{}

// NewStarter returns the Starter for this platform.
func NewStarter() Starter { return mappingStarter{} }

func (mappingStarter) Start(ctx context.Context, exePath string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, err := windows.UTF16PtrFromString(mappingName)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, mappingSize, name)
	if h == 0 {
		return nil, fmt.Errorf("creating file mapping: %w", err)
	}
	if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("creating file mapping: %w", err)
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, mappingSize)
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("mapping view of file: %w", err)
	}

	cmd := exec.Command(exePath)
	cmd.Dir = filepath.Dir(exePath)
	if err := cmd.Start(); err != nil {
		windows.UnmapViewOfFile(addr)
		windows.CloseHandle(h)
		return nil, fmt.Errorf("starting %s: %w", exePath, err)
	}
	return &mappedProcess{cmd: cmd, handle: h, view: addr}, nil
}

// mappedProcess keeps the file mapping alive until the game exits.
type mappedProcess struct {
	cmd    *exec.Cmd
	handle windows.Handle
	view   uintptr
}

func (p *mappedProcess) Wait() (int, error) {
	defer windows.CloseHandle(p.handle)
	defer windows.UnmapViewOfFile(p.view)

	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}
