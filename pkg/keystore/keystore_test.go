package keystore

import (
	"path/filepath"
	"testing"

	"rememberkey/pkg/cipher"
)

func newTestStore(t *testing.T, passphrase string) (*Store, *cipher.Engine) {
	t.Helper()
	eng := cipher.New()
	eng.Initialize(passphrase)
	s := New()
	path := filepath.Join(t.TempDir(), "keys.db")
	if !s.Create(path, passphrase, eng) {
		t.Fatalf("Create failed: %s", s.LastError())
	}
	t.Cleanup(s.Close)
	return s, eng
}

func TestCreateWritesSentinel(t *testing.T) {
	s, _ := newTestStore(t, "p1")

	sentinel, ok := s.GetKeyInfo(SentinelID)
	if !ok {
		t.Fatalf("sentinel not readable: %s", s.LastError())
	}
	if sentinel.Password != cipher.PassphraseHash("p1") {
		t.Error("sentinel password field is not the passphrase hash")
	}
	if sentinel.Username != "" || sentinel.Notes != "" {
		t.Error("sentinel username/notes should be empty")
	}
}

func TestCreateRefusesExistingPath(t *testing.T) {
	eng := cipher.New()
	eng.Initialize("p1")
	path := filepath.Join(t.TempDir(), "keys.db")

	s := New()
	if !s.Create(path, "p1", eng) {
		t.Fatalf("Create failed: %s", s.LastError())
	}
	s.Close()

	s2 := New()
	if s2.Create(path, "p1", eng) {
		t.Fatal("Create succeeded on an existing path")
	}
	if s2.LastError() == "" {
		t.Error("expected a last-error message")
	}
}

func TestActivatePassword(t *testing.T) {
	eng := cipher.New()
	eng.Initialize("p1")
	path := filepath.Join(t.TempDir(), "keys.db")

	s := New()
	if !s.Create(path, "p1", eng) {
		t.Fatalf("Create failed: %s", s.LastError())
	}
	s.Close()

	if !s.Open(path) {
		t.Fatalf("Open failed: %s", s.LastError())
	}
	defer s.Close()

	wrong := cipher.New()
	wrong.Initialize("wrong")
	if s.ActivatePassword("wrong", wrong) {
		t.Fatal("wrong passphrase accepted")
	}
	if s.Unlocked() {
		t.Error("failed activation must clear the cipher")
	}

	// The store is intact after a failed attempt.
	right := cipher.New()
	right.Initialize("p1")
	if !s.ActivatePassword("p1", right) {
		t.Fatalf("correct passphrase rejected: %s", s.LastError())
	}
	if !s.Unlocked() {
		t.Error("expected store to be unlocked")
	}
}

func TestCRUDRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, "p1")

	in := KeyInfo{Name: "Bank", Site: "bank.com", Username: "u", Password: "p", Notes: "n"}
	if !s.AddKeyInfo(in) {
		t.Fatalf("AddKeyInfo failed: %s", s.LastError())
	}

	// The sentinel took id 1, so the first user record is id 2.
	got, ok := s.GetKeyInfo(2)
	if !ok {
		t.Fatalf("GetKeyInfo failed: %s", s.LastError())
	}
	if got.Name != in.Name || got.Site != in.Site ||
		got.Username != in.Username || got.Password != in.Password || got.Notes != in.Notes {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, in)
	}

	got.Password = "p2"
	if !s.UpdateKeyInfo(in, got) {
		t.Fatalf("UpdateKeyInfo failed: %s", s.LastError())
	}
	updated, ok := s.GetKeyInfo(2)
	if !ok || updated.Password != "p2" {
		t.Errorf("update not applied: %+v", updated)
	}

	if !s.DeleteKeyInfo(2) {
		t.Fatalf("DeleteKeyInfo failed: %s", s.LastError())
	}
	if _, ok := s.GetKeyInfo(2); ok {
		t.Error("record still readable after delete")
	}
	if s.LastError() == "" {
		t.Error("expected empty-result error message")
	}
}

func TestUpdateNoopPerformsNoWrite(t *testing.T) {
	s, _ := newTestStore(t, "p1")

	in := KeyInfo{Name: "Bank", Site: "bank.com", Username: "u", Password: "p", Notes: "n"}
	if !s.AddKeyInfo(in) {
		t.Fatalf("AddKeyInfo failed: %s", s.LastError())
	}
	r, ok := s.GetKeyInfo(2)
	if !ok {
		t.Fatalf("GetKeyInfo failed: %s", s.LastError())
	}

	before, _ := s.AllRows()
	if !s.UpdateKeyInfo(r, r) {
		t.Fatalf("no-op update failed: %s", s.LastError())
	}
	after, _ := s.AllRows()

	// Identical ciphertext proves nothing was re-encrypted or rewritten.
	for i := range before {
		if before[i].Other != after[i].Other {
			t.Error("no-op update rewrote a row")
		}
	}
}

func TestSearch(t *testing.T) {
	s, _ := newTestStore(t, "p1")

	records := []KeyInfo{
		{Name: "Bank", Site: "bank.com", Username: "u", Password: "p"},
		{Name: "Mail", Site: "mail.example.org", Username: "u", Password: "p"},
		{Name: "Forum", Site: "BANKforum.net", Username: "u", Password: "p"},
	}
	for _, r := range records {
		if !s.AddKeyInfo(r) {
			t.Fatalf("AddKeyInfo failed: %s", s.LastError())
		}
	}

	// Empty substring lists all non-sentinel records.
	if !s.Search("") {
		t.Fatalf("Search failed: %s", s.LastError())
	}
	if len(s.Rows()) != 3 {
		t.Errorf("expected 3 rows, got %d", len(s.Rows()))
	}

	// Case-insensitive substring on name or site.
	if !s.Search("bank") {
		t.Fatalf("Search failed: %s", s.LastError())
	}
	if len(s.Rows()) != 2 {
		t.Errorf("expected 2 rows matching 'bank', got %d", len(s.Rows()))
	}

	// The predicate is retained across mutations and re-applied on Refresh.
	if !s.AddKeyInfo(KeyInfo{Name: "Another Bank", Site: "other.com", Username: "u", Password: "p"}) {
		t.Fatalf("AddKeyInfo failed: %s", s.LastError())
	}
	if !s.Refresh() {
		t.Fatalf("Refresh failed: %s", s.LastError())
	}
	if len(s.Rows()) != 3 {
		t.Errorf("expected 3 rows after refresh, got %d", len(s.Rows()))
	}

	k, ok := s.KeyAt(0)
	if !ok {
		t.Fatalf("KeyAt failed: %s", s.LastError())
	}
	if k.Username != "u" {
		t.Errorf("row not decrypted: %+v", k)
	}
}

func TestSearchNeverListsSentinel(t *testing.T) {
	s, _ := newTestStore(t, "p1")

	if !s.Search("") {
		t.Fatalf("Search failed: %s", s.LastError())
	}
	for _, r := range s.Rows() {
		if r.ID == SentinelID {
			t.Error("sentinel listed by empty search")
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, "p1")
	s.Close()
	s.Close()
	if s.Unlocked() {
		t.Error("expected store to be locked after Close")
	}
	if _, ok := s.GetKeyInfo(SentinelID); ok {
		t.Error("closed store served a query")
	}
}

func TestUpsertRawPreservesIDs(t *testing.T) {
	s, _ := newTestStore(t, "p1")

	if !s.UpsertRaw(Row{ID: 7, Name: "N", Site: "S", Other: "Zm9v"}) {
		t.Fatalf("UpsertRaw insert failed: %s", s.LastError())
	}
	if !s.UpsertRaw(Row{ID: 7, Name: "N2", Site: "S2", Other: "YmFy"}) {
		t.Fatalf("UpsertRaw update failed: %s", s.LastError())
	}

	rows, ok := s.AllRows()
	if !ok {
		t.Fatalf("AllRows failed: %s", s.LastError())
	}
	var found *Row
	for i := range rows {
		if rows[i].ID == 7 {
			found = &rows[i]
		}
	}
	if found == nil {
		t.Fatal("row with explicit id 7 not found")
	}
	if found.Name != "N2" || found.Site != "S2" || found.Other != "YmFy" {
		t.Errorf("upsert did not update columns: %+v", found)
	}
}
