package backup

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"rememberkey/pkg/cipher"
	"rememberkey/pkg/keystore"
)

func newTestStore(t *testing.T, passphrase string) (*keystore.Store, *cipher.Engine) {
	t.Helper()
	eng := cipher.New()
	eng.Initialize(passphrase)
	s := keystore.New()
	if !s.Create(filepath.Join(t.TempDir(), "keys.db"), passphrase, eng) {
		t.Fatalf("Create failed: %s", s.LastError())
	}
	t.Cleanup(s.Close)
	return s, eng
}

func TestExportImportRoundTrip(t *testing.T) {
	src, eng := newTestStore(t, "p1")
	records := []keystore.KeyInfo{
		{Name: "Bank", Site: "bank.com", Username: "u1", Password: "s1", Notes: "n1"},
		{Name: "Mail", Site: "mail.org", Username: "u2", Password: "s2", Notes: ""},
		{Name: "With|Pipe", Site: "", Username: "u3", Password: "s3", Notes: "x"},
	}
	for _, r := range records {
		if !src.AddKeyInfo(r) {
			t.Fatalf("AddKeyInfo failed: %s", src.LastError())
		}
	}

	var buf bytes.Buffer
	if !NewCodec(src, eng).Export(&buf) {
		t.Fatalf("Export failed")
	}

	// Sentinel plus three records plus the token line.
	if got := strings.Count(buf.String(), "\n"); got != 5 {
		t.Errorf("expected 5 lines, got %d", got)
	}

	dst, dstEng := newTestStore(t, "p1")
	codec := NewCodec(dst, dstEng)
	if !codec.Import(&buf) {
		t.Fatalf("Import failed: %s", codec.LastError())
	}

	for i, want := range records {
		got, ok := dst.GetKeyInfo(i + 2)
		if !ok {
			t.Fatalf("GetKeyInfo(%d) failed: %s", i+2, dst.LastError())
		}
		if got.Name != want.Name || got.Site != want.Site ||
			got.Username != want.Username || got.Password != want.Password || got.Notes != want.Notes {
			t.Errorf("record %d mismatch: got %+v, want %+v", i+2, got, want)
		}
	}
}

func TestImportRejectsWrongPassphrase(t *testing.T) {
	src, eng := newTestStore(t, "p1")
	if !src.AddKeyInfo(keystore.KeyInfo{Name: "Bank", Username: "u", Password: "p"}) {
		t.Fatalf("AddKeyInfo failed: %s", src.LastError())
	}

	var buf bytes.Buffer
	if !NewCodec(src, eng).Export(&buf) {
		t.Fatal("Export failed")
	}

	dst, _ := newTestStore(t, "other")
	other := cipher.New()
	other.Initialize("other")
	codec := NewCodec(dst, other)
	if codec.Import(&buf) {
		t.Fatal("import under a different passphrase succeeded")
	}
	if !strings.Contains(codec.LastError(), "wrong password") {
		t.Errorf("unexpected error: %s", codec.LastError())
	}

	// Nothing beyond the sentinel was written.
	rows, ok := dst.AllRows()
	if !ok {
		t.Fatalf("AllRows failed: %s", dst.LastError())
	}
	if len(rows) != 1 {
		t.Errorf("expected only the sentinel, got %d rows", len(rows))
	}
}

func TestImportAppliesRowsUpToFirstBadLine(t *testing.T) {
	src, eng := newTestStore(t, "p1")
	for _, name := range []string{"One", "Two"} {
		if !src.AddKeyInfo(keystore.KeyInfo{Name: name, Username: "u", Password: "p"}) {
			t.Fatalf("AddKeyInfo failed: %s", src.LastError())
		}
	}

	var buf bytes.Buffer
	if !NewCodec(src, eng).Export(&buf) {
		t.Fatal("Export failed")
	}

	// Corrupt the last record line; token, sentinel and "One" stay valid.
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	lines[len(lines)-1] = "not base64!"
	mangled := strings.Join(lines, "\n") + "\n"

	dst, dstEng := newTestStore(t, "p1")
	codec := NewCodec(dst, dstEng)
	if codec.Import(strings.NewReader(mangled)) {
		t.Fatal("import of corrupted file succeeded")
	}

	rows, ok := dst.AllRows()
	if !ok {
		t.Fatalf("AllRows failed: %s", dst.LastError())
	}
	// Sentinel plus the one intact record survive.
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	got, ok := dst.GetKeyInfo(2)
	if !ok || got.Name != "One" {
		t.Errorf("intact record not applied: %+v", got)
	}
}

func TestImportRejectsEmptyAndGarbageFiles(t *testing.T) {
	dst, eng := newTestStore(t, "p1")
	codec := NewCodec(dst, eng)

	if codec.Import(strings.NewReader("")) {
		t.Error("empty file accepted")
	}
	if codec.Import(strings.NewReader("hello world\n")) {
		t.Error("garbage file accepted")
	}
}
