package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2/maybe"
	"github.com/google/uuid"
)

const (
	secretAPIToken    = "api_token"
	secretGitHubToken = "github_token"
)

// ErrSecretNotFound is returned when a secret has not been stored.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore keeps tokens outside config.json in a 0600 JSON file next to
// the launcher data.
type SecretStore struct {
	path string
}

// NewSecretStore returns the store kept in dataDir, or in the default data
// directory when dataDir is empty.
func NewSecretStore(dataDir string) *SecretStore {
	if dataDir == "" {
		dataDir = defaultDataDir()
	}
	return &SecretStore{path: filepath.Join(dataDir, "secrets.json")}
}

// NewSecretStoreAt returns a store backed by path.
func NewSecretStoreAt(path string) *SecretStore {
	return &SecretStore{path: path}
}

func (s *SecretStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (s *SecretStore) Get(name string) (string, error) {
	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := secrets[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (s *SecretStore) Set(name, value string) error {
	secrets, err := s.read()
	if err != nil {
		return err
	}
	secrets[name] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return maybe.WriteFile(s.path, out, 0o600)
}

// GetAPIToken returns the bearer token guarding the local HTTP API, creating
// and persisting one on first use.
func GetAPIToken(s *SecretStore) (string, error) {
	tok, err := s.Get(secretAPIToken)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	tok = uuid.NewString()
	if err := s.Set(secretAPIToken, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetGitHubToken stores the token used for GitHub release requests.
func SetGitHubToken(s *SecretStore, token string) error {
	return s.Set(secretGitHubToken, token)
}
