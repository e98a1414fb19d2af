package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/temlaunch/temlaunch/internal/storage"
)

var (
	// ErrNameRequired is returned when a profile has an empty name.
	ErrNameRequired = errors.New("profile name is required")
	// ErrDuplicateName is returned when another profile already uses the name.
	ErrDuplicateName = errors.New("profile name already in use")
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SaveProfile(p storage.Profile) error
	GetProfile(id string) (storage.Profile, error)
	GetProfileByName(name string) (storage.Profile, error)
	ListProfiles() ([]storage.Profile, error)
	DeleteProfile(id string) error
	SetDefaultProfile(id string, modifiedAt time.Time) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached access to launch profiles stored in SQLite and
// enforces the naming and default-profile rules.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   []Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// List returns all profiles ordered by opt.
func (m *Manager) List(opt SortOption) ([]Profile, error) {
	all, err := m.all()
	if err != nil {
		return nil, err
	}
	Sort(all, opt)
	return all, nil
}

// all returns a copy of every profile in creation order, from cache when fresh.
func (m *Manager) all() ([]Profile, error) {
	// Fast path: read lock for cache hit.
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		out := append([]Profile(nil), m.cached...)
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return append([]Profile(nil), m.cached...), nil
	}

	rows, err := m.store.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	profiles := make([]Profile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, fromRecord(r))
	}
	m.cached = profiles
	m.cachedAt = m.clock.Now()
	return append([]Profile(nil), profiles...), nil
}

func (m *Manager) invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// Get returns the profile with the given ID.
func (m *Manager) Get(id string) (Profile, error) {
	r, err := m.store.GetProfile(id)
	if err != nil {
		return Profile{}, fmt.Errorf("getting profile %s: %w", id, err)
	}
	return fromRecord(r), nil
}

// GetByName returns the profile with the given name.
func (m *Manager) GetByName(name string) (Profile, error) {
	r, err := m.store.GetProfileByName(strings.TrimSpace(name))
	if err != nil {
		return Profile{}, fmt.Errorf("getting profile %q: %w", name, err)
	}
	return fromRecord(r), nil
}

// Default returns the default profile, or storage.ErrNotFound when none is marked.
func (m *Manager) Default() (Profile, error) {
	all, err := m.all()
	if err != nil {
		return Profile{}, err
	}
	for _, p := range all {
		if p.IsDefault {
			return p, nil
		}
	}
	return Profile{}, storage.ErrNotFound
}

// Create stores a new profile. It assigns the ID and timestamps; the first
// profile ever created becomes the default.
func (m *Manager) Create(p Profile) (Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Profile{}, ErrNameRequired
	}
	if err := m.checkNameFree(p.Name, ""); err != nil {
		return Profile{}, err
	}

	existing, err := m.store.ListProfiles()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profiles: %w", err)
	}
	if len(existing) == 0 {
		p.IsDefault = true
	}

	now := m.clock.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.ModifiedAt = now

	if err := m.save(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Update replaces the stored fields of p.ID. CreatedAt is kept from storage.
func (m *Manager) Update(p Profile) (Profile, error) {
	cur, err := m.store.GetProfile(p.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("getting profile %s: %w", p.ID, err)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Profile{}, ErrNameRequired
	}
	if err := m.checkNameFree(p.Name, p.ID); err != nil {
		return Profile{}, err
	}

	p.CreatedAt = cur.CreatedAt
	p.ModifiedAt = m.clock.Now().UTC()
	if err := m.save(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// save writes p and, when p is the default, clears the flag on every other profile.
func (m *Manager) save(p Profile) error {
	defer m.invalidate()

	if err := m.store.SaveProfile(toRecord(p)); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return ErrDuplicateName
		}
		return fmt.Errorf("saving profile %q: %w", p.Name, err)
	}
	if p.IsDefault {
		if err := m.store.SetDefaultProfile(p.ID, p.ModifiedAt); err != nil {
			return fmt.Errorf("setting default profile: %w", err)
		}
	}
	return nil
}

// SetDefault marks id as the only default profile.
func (m *Manager) SetDefault(id string) error {
	defer m.invalidate()
	if err := m.store.SetDefaultProfile(id, m.clock.Now().UTC()); err != nil {
		return fmt.Errorf("setting default profile %s: %w", id, err)
	}
	return nil
}

// Delete removes the profile with the given ID.
func (m *Manager) Delete(id string) error {
	defer m.invalidate()
	if err := m.store.DeleteProfile(id); err != nil {
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	return nil
}

func (m *Manager) checkNameFree(name, selfID string) error {
	r, err := m.store.GetProfileByName(name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("checking profile name: %w", err)
	case r.ID != selfID:
		return ErrDuplicateName
	}
	return nil
}

func fromRecord(r storage.Profile) Profile {
	return Profile{
		ID:                  r.ID,
		Name:                r.Name,
		CreatedAt:           r.CreatedAt,
		ModifiedAt:          r.ModifiedAt,
		WindowWidth:         r.WindowWidth,
		WindowHeight:        r.WindowHeight,
		IsFullscreen:        r.IsFullscreen,
		DisableSplashScreen: r.DisableSplashScreen,
		IsDefault:           r.IsDefault,
		UseTEM:              r.UseTEM,
		UseXDead:            r.UseXDead,
	}
}

func toRecord(p Profile) storage.Profile {
	return storage.Profile{
		ID:                  p.ID,
		Name:                p.Name,
		CreatedAt:           p.CreatedAt,
		ModifiedAt:          p.ModifiedAt,
		WindowWidth:         p.WindowWidth,
		WindowHeight:        p.WindowHeight,
		IsFullscreen:        p.IsFullscreen,
		DisableSplashScreen: p.DisableSplashScreen,
		IsDefault:           p.IsDefault,
		UseTEM:              p.UseTEM,
		UseXDead:            p.UseXDead,
	}
}
