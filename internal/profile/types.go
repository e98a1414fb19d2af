package profile

import (
	"time"

	"github.com/temlaunch/temlaunch/internal/gridini"
)

// Default window size for new profiles.
const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
)

// Profile is a named set of launch options: window geometry, splash screen,
// and which mods to load. JSON names match the launcher's profile files.
type Profile struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	CreatedAt           time.Time `json:"createdAt"`
	ModifiedAt          time.Time `json:"modifiedAt"`
	WindowWidth         int       `json:"windowWidth"`
	WindowHeight        int       `json:"windowHeight"`
	IsFullscreen        bool      `json:"isFullscreen"`
	DisableSplashScreen bool      `json:"disableSplashScreen"`
	IsDefault           bool      `json:"isDefault"`
	UseTEM              bool      `json:"useTEM"`
	UseXDead            bool      `json:"useXDead"`
}

// New returns a profile named name with the launcher defaults.
func New(name string) Profile {
	return Profile{
		Name:                name,
		WindowWidth:         DefaultWindowWidth,
		WindowHeight:        DefaultWindowHeight,
		IsFullscreen:        true,
		DisableSplashScreen: true,
		UseTEM:              true,
	}
}

// Settings returns the engine settings the profile writes to GridEngine.ini.
func (p Profile) Settings() gridini.Settings {
	return gridini.Settings{
		WindowWidth:         p.WindowWidth,
		WindowHeight:        p.WindowHeight,
		IsFullscreen:        p.IsFullscreen,
		DisableSplashScreen: p.DisableSplashScreen,
	}
}
