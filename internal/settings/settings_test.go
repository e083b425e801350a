package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rememberkey/pkg/cipher"
)

func testEngine(t *testing.T, passphrase string) *cipher.Engine {
	t.Helper()
	eng := cipher.New()
	eng.Initialize(passphrase)
	return eng
}

func testSession() Session {
	return Session{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://login.live.com/oauth20_desktop.srf",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expires:      time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		FolderID:     "folder-1",
		FolderName:   "backups",
		FileID:       "file-1",
		FileName:     "keys.bak",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	eng := testEngine(t, "p1")
	path := filepath.Join(t.TempDir(), "onedrive.yaml")
	want := testSession()

	if err := Save(path, want, eng); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path, eng)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Expires.Equal(want.Expires) {
		t.Errorf("Expires = %v, want %v", got.Expires, want.Expires)
	}
	got.Expires = want.Expires
	if got != want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestFileHoldsNoPlaintext(t *testing.T) {
	eng := testEngine(t, "p1")
	path := filepath.Join(t.TempDir(), "onedrive.yaml")
	if err := Save(path, testSession(), eng); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	for _, secret := range []string{"secret-1", "access-1", "refresh-1"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("plaintext %q present in settings file", secret)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestLoadWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onedrive.yaml")
	if err := Save(path, testSession(), testEngine(t, "p1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(path, testEngine(t, "other")); !errors.Is(err, ErrNoSession) {
		t.Errorf("got %v, want ErrNoSession", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	eng := testEngine(t, "p1")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), eng); !errors.Is(err, ErrNoSession) {
		t.Errorf("got %v, want ErrNoSession", err)
	}
}

func TestRemove(t *testing.T) {
	eng := testEngine(t, "p1")
	path := filepath.Join(t.TempDir(), "onedrive.yaml")
	if err := Save(path, testSession(), eng); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}
