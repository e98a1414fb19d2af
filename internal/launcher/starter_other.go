//go:build !windows

package launcher

import "context"

type unsupportedStarter struct{}

// NewStarter returns the Starter for this platform.
func NewStarter() Starter { return unsupportedStarter{} }

func (unsupportedStarter) Start(context.Context, string) (Process, error) {
	return nil, ErrUnsupportedPlatform
}
