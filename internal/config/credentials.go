package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

const sessionSection = "session"

// DefaultCredentialsPath is ~/.config/cloudisk/credentials
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cloudisk", "credentials"), nil
}

// TokenStore keeps the session token in an ini file. A token saved for a
// different server is not handed out.
type TokenStore struct {
	path   string
	server string

	// create opens the file for writing, replaced in tests
	create func(path string) (io.WriteCloser, error)
}

// NewTokenStore creates a store for the token used against server
func NewTokenStore(path, server string) *TokenStore {
	return &TokenStore{path: path, server: server, create: createPrivate}
}

func createPrivate(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
}

func (s *TokenStore) load() (*ini.File, error) {
	// a missing file reads as empty
	file, err := ini.LoadSources(ini.LoadOptions{Loose: true}, s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.path, err)
	}
	return file, nil
}

// Load returns the stored token, or "" when there is none
func (s *TokenStore) Load() (string, error) {
	file, err := s.load()
	if err != nil {
		return "", err
	}
	section := file.Section(sessionSection)
	if server := section.Key("server").String(); server != "" && server != s.server {
		return "", nil
	}
	return section.Key("token").String(), nil
}

// Save stores token for the configured server
func (s *TokenStore) Save(token string) error {
	file, err := s.load()
	if err != nil {
		return err
	}
	section := file.Section(sessionSection)
	section.Key("token").SetValue(token)
	section.Key("server").SetValue(s.server)
	return s.write(file)
}

// Clear removes the token
func (s *TokenStore) Clear() error {
	file, err := s.load()
	if err != nil {
		return err
	}
	section := file.Section(sessionSection)
	if !section.HasKey("token") {
		return nil
	}
	section.DeleteKey("token")
	section.DeleteKey("server")
	return s.write(file)
}

func (s *TokenStore) write(file *ini.File) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(s.path), err)
	}
	f, err := s.create(s.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	if _, err := file.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
