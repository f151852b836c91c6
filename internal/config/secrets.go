package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const secretService = "ticketlens"

// ErrSecretNotFound is returned when a secret has never been stored.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore reads and writes named secrets.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// fileSecrets keeps secrets in a 0600 JSON file shaped
// {"service": {"account": "value"}}.
type fileSecrets struct {
	mu   sync.Mutex
	path string
}

// NewSecretStore returns the secret store at
// $XDG_DATA_HOME/ticketlens/secrets.json.
func NewSecretStore() SecretStore {
	return &fileSecrets{path: filepath.Join(defaultDataDir(), "secrets.json")}
}

func (s *fileSecrets) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if secrets == nil {
		secrets = map[string]map[string]string{}
	}
	return secrets, nil
}

func (s *fileSecrets) Get(service, account string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.read()
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok || val == "" {
		return "", ErrSecretNotFound
	}
	return val, nil
}

func (s *fileSecrets) Set(service, account, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.read()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0o600)
}

// GetAPIToken returns the HTTP API bearer token, generating and storing a
// random one on first use.
func GetAPIToken(s SecretStore) (string, error) {
	tok, err := s.Get(secretService, "api_token")
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok = hex.EncodeToString(b)
	if err := s.Set(secretService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
