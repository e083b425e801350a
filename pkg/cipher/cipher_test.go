package cipher

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := New()
	e.Initialize("master passphrase")

	// 16-byte-aligned plaintext round-trips exactly (no padding added).
	aligned := "0123456789abcdef0123456789abcdef"
	ct, err := e.Encrypt(aligned)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	pt, err := e.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if pt != aligned {
		t.Errorf("round trip mismatch: got %q, want %q", pt, aligned)
	}
}

func TestDecryptKeepsPadding(t *testing.T) {
	e := New()
	e.Initialize("pw")

	ct, err := e.Encrypt("hello")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	pt, err := e.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if len(pt) != BlockSize {
		t.Errorf("expected %d bytes including padding, got %d", BlockSize, len(pt))
	}
	if !strings.HasPrefix(pt, "hello") {
		t.Errorf("expected plaintext prefix %q, got %q", "hello", pt)
	}
	if TrimPadding(pt) != "hello" {
		t.Errorf("TrimPadding: got %q, want %q", TrimPadding(pt), "hello")
	}
}

func TestEncryptBlockIndependence(t *testing.T) {
	e := New()
	e.Initialize("pw")

	// Two identical blocks must produce two identical ciphertext blocks;
	// existing files depend on this construction.
	block := "abcdefghijklmnop"
	ct, err := e.Encrypt(block + block)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(ct)
	if err != nil {
		t.Fatalf("ciphertext is not valid base64: %v", err)
	}
	if len(raw) != 2*BlockSize {
		t.Fatalf("expected 2 blocks, got %d bytes", len(raw))
	}
	if string(raw[:BlockSize]) != string(raw[BlockSize:]) {
		t.Error("identical plaintext blocks produced different ciphertext blocks")
	}
}

func TestEncryptEmpty(t *testing.T) {
	e := New()
	e.Initialize("pw")

	ct, err := e.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if ct != "" {
		t.Errorf("expected empty ciphertext, got %q", ct)
	}
	pt, err := e.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if pt != "" {
		t.Errorf("expected empty plaintext, got %q", pt)
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	e := New()
	e.Initialize("pw")

	tests := []struct {
		name  string
		input string
	}{
		{"invalid base64", "not//valid==base64!!"},
		{"not block aligned", base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Decrypt(tt.input); !errors.Is(err, ErrBadCiphertext) {
				t.Errorf("expected ErrBadCiphertext, got %v", err)
			}
		})
	}
}

func TestNotInitialized(t *testing.T) {
	e := New()

	if _, err := e.Encrypt("x"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Encrypt: expected ErrNotInitialized, got %v", err)
	}
	if _, err := e.Decrypt("AAAA"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Decrypt: expected ErrNotInitialized, got %v", err)
	}
	if e.Initialized() {
		t.Error("expected Initialized to be false")
	}
}

func TestReinitializeReplacesKey(t *testing.T) {
	e := New()
	e.Initialize("first")
	ct1, _ := e.Encrypt("same input text!")

	e.Initialize("second")
	ct2, _ := e.Encrypt("same input text!")

	if ct1 == ct2 {
		t.Error("different passphrases produced identical ciphertext")
	}

	// Decrypting first ciphertext with the second key yields garbage, not
	// an error: block decryption always succeeds on well-formed input.
	pt, err := e.Decrypt(ct1)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if pt == "same input text!" {
		t.Error("wrong key decrypted to original plaintext")
	}
}

func TestPassphraseHash(t *testing.T) {
	h1 := PassphraseHash("p1")
	h2 := PassphraseHash("p1")
	h3 := PassphraseHash("p2")

	if h1 != h2 {
		t.Error("hash is not deterministic")
	}
	if h1 == h3 {
		t.Error("different passphrases produced the same hash")
	}
	// base64 of a SHA-1 digest is always 28 characters.
	if len(h1) != 28 {
		t.Errorf("unexpected hash length %d", len(h1))
	}
}

func TestKeyCopy(t *testing.T) {
	e := New()
	if e.Key() != nil {
		t.Error("expected nil key before Initialize")
	}
	e.Initialize("pw")
	k := e.Key()
	if len(k) != 16 {
		t.Fatalf("expected 16-byte key, got %d", len(k))
	}
	k[0] ^= 0xff
	if e.Key()[0] == k[0] {
		t.Error("Key must return a copy, not the internal slice")
	}
}
