// Package settings persists the remote-sync session between runs: client
// credentials, tokens, expiry and the chosen remote folder and file. Every
// value is encrypted with the store cipher before it touches disk, so the
// file is only readable while the store passphrase is known.
package settings

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rememberkey/pkg/cipher"
)

// ErrNoSession means the settings file is absent or cannot be decrypted
// with the active passphrase; either way the user is effectively signed
// out.
var ErrNoSession = errors.New("settings: no usable sync session")

// Session is the decrypted sync state.
type Session struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AccessToken  string
	RefreshToken string
	Expires      time.Time
	FolderID     string
	FolderName   string
	FileID       string
	FileName     string
}

// fileFormat is the on-disk shape; every field is ciphertext.
type fileFormat struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	Expires      string `yaml:"expires"`
	FolderID     string `yaml:"folder_id"`
	FolderName   string `yaml:"folder_name"`
	FileID       string `yaml:"file_id"`
	FileName     string `yaml:"file_name"`
}

// Save encrypts the session and writes it to path with owner-only
// permissions.
func Save(path string, s Session, eng *cipher.Engine) error {
	var f fileFormat
	var err error
	set := func(dst *string, plain string) {
		if err != nil {
			return
		}
		*dst, err = eng.Encrypt(plain)
	}
	set(&f.ClientID, s.ClientID)
	set(&f.ClientSecret, s.ClientSecret)
	set(&f.RedirectURI, s.RedirectURI)
	set(&f.AccessToken, s.AccessToken)
	set(&f.RefreshToken, s.RefreshToken)
	set(&f.Expires, s.Expires.Format(time.RFC3339))
	set(&f.FolderID, s.FolderID)
	set(&f.FolderName, s.FolderName)
	set(&f.FileID, s.FileID)
	set(&f.FileName, s.FileName)
	if err != nil {
		return fmt.Errorf("settings: encrypt session: %w", err)
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("settings: marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("settings: write session: %w", err)
	}
	return nil
}

// Load reads and decrypts the session at path. A missing file or one
// written under a different passphrase yields ErrNoSession.
func Load(path string, eng *cipher.Engine) (Session, error) {
	var s Session

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, ErrNoSession
		}
		return s, fmt.Errorf("settings: read session: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s, fmt.Errorf("settings: parse session: %w", err)
	}

	get := func(enc string) (string, error) {
		dec, err := eng.Decrypt(enc)
		if err != nil {
			return "", err
		}
		return cipher.TrimPadding(dec), nil
	}
	fields := []struct {
		dst *string
		src string
	}{
		{&s.ClientID, f.ClientID},
		{&s.ClientSecret, f.ClientSecret},
		{&s.RedirectURI, f.RedirectURI},
		{&s.AccessToken, f.AccessToken},
		{&s.RefreshToken, f.RefreshToken},
		{&s.FolderID, f.FolderID},
		{&s.FolderName, f.FolderName},
		{&s.FileID, f.FileID},
		{&s.FileName, f.FileName},
	}
	for _, fd := range fields {
		v, err := get(fd.src)
		if err != nil {
			return Session{}, ErrNoSession
		}
		*fd.dst = v
	}

	expires, err := get(f.Expires)
	if err != nil {
		return Session{}, ErrNoSession
	}
	if expires != "" {
		t, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			// Wrong passphrase produces garbage that still base64-decodes
			// now and then; an unparseable timestamp is the tell.
			return Session{}, ErrNoSession
		}
		s.Expires = t
	}
	return s, nil
}

// Remove deletes the session file; absence is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("settings: remove session: %w", err)
	}
	return nil
}
