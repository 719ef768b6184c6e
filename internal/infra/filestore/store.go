// Package filestore persists the OAuth client secret, the token pair and the
// device identity as JSON documents. Every write replaces the whole file
// atomically.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/moby/sys/atomicwriter"

	"text-assistant/internal/domain"
)

const privateFileMode = 0o600

var ErrCorruptToken = errors.New("token file is not valid JSON")

type clientSecretFile struct {
	Installed *clientSecretSection `json:"installed"`
	Web       *clientSecretSection `json:"web"`
}

type clientSecretSection struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	ProjectID    string   `json:"project_id"`
	RedirectURIs []string `json:"redirect_uris"`
}

type tokenFile struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

type deviceFile struct {
	DeviceModelID string `json:"device_model_id"`
	DeviceID      string `json:"device_id"`
	ProjectID     string `json:"project_id"`
}

type Store struct {
	paths domain.Artifacts
}

func New(paths domain.Artifacts) *Store {
	return &Store{paths: paths}
}

func (s *Store) Paths() domain.Artifacts {
	return s.paths
}

// LoadClientSecret reads the installed-app client document. A missing file
// yields domain.ErrMissingClientSecret.
func (s *Store) LoadClientSecret() (domain.ClientSecret, error) {
	data, err := os.ReadFile(s.paths.ClientSecret)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ClientSecret{}, domain.NewError(domain.KindMissingClientSecret, s.paths.ClientSecret, nil)
	}
	if err != nil {
		return domain.ClientSecret{}, domain.IOError(s.paths.ClientSecret, err)
	}

	var doc clientSecretFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ClientSecret{}, domain.IOError(s.paths.ClientSecret, fmt.Errorf("parsing client secret: %w", err))
	}

	section := doc.Installed
	if section == nil {
		section = doc.Web
	}
	if section == nil || section.ClientID == "" {
		return domain.ClientSecret{}, domain.IOError(s.paths.ClientSecret, errors.New("no installed client found"))
	}

	return domain.ClientSecret{
		ClientID:     section.ClientID,
		ClientSecret: section.ClientSecret,
		AuthURI:      section.AuthURI,
		TokenURI:     section.TokenURI,
		ProjectID:    section.ProjectID,
		RedirectURIs: section.RedirectURIs,
	}, nil
}

// LoadToken returns the persisted token pair. ok is false when the file is
// absent. A file that exists but cannot be parsed is reported through
// ErrCorruptToken so callers can fall back to re-issuance.
func (s *Store) LoadToken() (pair domain.TokenPair, ok bool, err error) {
	data, err := os.ReadFile(s.paths.Token)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.TokenPair{}, false, nil
	}
	if err != nil {
		return domain.TokenPair{}, false, domain.IOError(s.paths.Token, err)
	}

	var doc tokenFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.TokenPair{}, false, fmt.Errorf("%w: %s: %v", ErrCorruptToken, s.paths.Token, err)
	}

	return domain.TokenPair{
		AccessToken:  doc.Token,
		RefreshToken: doc.RefreshToken,
		Expiry:       doc.Expiry,
	}, true, nil
}

func (s *Store) SaveToken(pair domain.TokenPair) error {
	return s.writeJSON(s.paths.Token, tokenFile{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Expiry:       pair.Expiry.UTC(),
	})
}

// LoadDevice returns domain.ErrNotRegistered when no identity was persisted.
func (s *Store) LoadDevice() (domain.DeviceIdentity, error) {
	data, err := os.ReadFile(s.paths.Device)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.DeviceIdentity{}, domain.NewError(domain.KindNotRegistered, s.paths.Device, nil)
	}
	if err != nil {
		return domain.DeviceIdentity{}, domain.IOError(s.paths.Device, err)
	}

	var doc deviceFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.DeviceIdentity{}, domain.IOError(s.paths.Device, fmt.Errorf("parsing device config: %w", err))
	}
	if doc.DeviceID == "" || doc.DeviceModelID == "" {
		return domain.DeviceIdentity{}, domain.NewError(domain.KindNotRegistered, s.paths.Device, errors.New("incomplete device config"))
	}

	return domain.DeviceIdentity{
		ProjectID:     doc.ProjectID,
		DeviceModelID: doc.DeviceModelID,
		DeviceID:      doc.DeviceID,
	}, nil
}

func (s *Store) SaveDevice(id domain.DeviceIdentity) error {
	return s.writeJSON(s.paths.Device, deviceFile{
		DeviceModelID: id.DeviceModelID,
		DeviceID:      id.DeviceID,
		ProjectID:     id.ProjectID,
	})
}

// Reset removes the token and device identity. The client secret is kept.
func (s *Store) Reset() error {
	var errs []error
	for _, path := range []string{s.paths.Token, s.paths.Device} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, domain.IOError(path, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	data = append(data, '\n')

	if err := atomicwriter.WriteFile(path, data, privateFileMode); err != nil {
		return domain.IOError(path, err)
	}
	return nil
}
