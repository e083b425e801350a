// Package cipher implements the passphrase-derived symmetric cipher used
// for all record encryption and for the portable backup format.
//
// The construction is fixed by the on-disk format and must not be changed:
//
//   - The 128-bit AES key is the MD5 digest of the passphrase's UTF-8 bytes.
//   - Plaintext is right-padded with zero bytes to the next 16-byte boundary
//     and each block is encrypted independently with the same key (no
//     chaining, no per-call IV).
//   - Ciphertext is exchanged as standard base64 text.
//
// Block-independent encryption leaks equal plaintext blocks and the zero
// padding is ambiguous for plaintexts ending in NUL bytes. Both are known
// weaknesses kept for compatibility with existing stores and backup files;
// a fixed construction would be a new, versioned format.
//
// Decrypt returns the trailing padding bytes as produced by decryption.
// Callers that need the original text strip them with TrimPadding.
package cipher

import (
	"crypto/aes"
	blockcipher "crypto/cipher"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"
)

// BlockSize is the cipher block size in bytes.
const BlockSize = aes.BlockSize

// Sentinel errors returned by Engine methods.
var (
	// ErrNotInitialized indicates Encrypt/Decrypt was called before Initialize.
	ErrNotInitialized = errors.New("cipher: engine not initialized")

	// ErrBadCiphertext indicates malformed base64 input or ciphertext whose
	// length is not a multiple of the block size. No partial decryption is
	// attempted.
	ErrBadCiphertext = errors.New("cipher: malformed ciphertext")
)

// Engine performs block-level encrypt/decrypt with a passphrase-derived key.
// The zero value is unusable until Initialize is called; re-initializing
// replaces the key material completely.
type Engine struct {
	block blockcipher.Block
	key   []byte
}

// New returns an uninitialized Engine.
func New() *Engine {
	return &Engine{}
}

// Initialize derives the key from the passphrase and installs the block
// schedules. Any previous key material is discarded.
func (e *Engine) Initialize(passphrase string) {
	key := md5.Sum([]byte(passphrase))
	// aes.NewCipher only fails for invalid key sizes; an MD5 digest is
	// always 16 bytes.
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic("cipher: " + err.Error())
	}
	e.block = block
	e.key = key[:]
}

// Initialized reports whether key material is installed.
func (e *Engine) Initialized() bool {
	return e.block != nil
}

// Key returns a copy of the derived key material. It is handed to the audit
// logger for HMAC key derivation and must not be persisted.
func (e *Engine) Key() []byte {
	if e.key == nil {
		return nil
	}
	out := make([]byte, len(e.key))
	copy(out, e.key)
	return out
}

// Encrypt encodes plaintext as UTF-8, zero-pads it to a whole number of
// blocks, encrypts every block independently and returns the base64 text of
// the concatenated ciphertext.
func (e *Engine) Encrypt(plaintext string) (string, error) {
	if e.block == nil {
		return "", ErrNotInitialized
	}

	in := []byte(plaintext)
	if rem := len(in) % BlockSize; rem != 0 {
		in = append(in, make([]byte, BlockSize-rem)...)
	}

	out := make([]byte, len(in))
	for off := 0; off < len(in); off += BlockSize {
		e.block.Encrypt(out[off:off+BlockSize], in[off:off+BlockSize])
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt base64-decodes the input, decrypts every block independently and
// returns the concatenated plaintext as UTF-8 text, including any trailing
// zero-padding bytes. Malformed base64 or ciphertext that is not a whole
// number of blocks is rejected with ErrBadCiphertext.
func (e *Engine) Decrypt(ciphertextBase64 string) (string, error) {
	if e.block == nil {
		return "", ErrNotInitialized
	}

	in, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrBadCiphertext
	}
	if len(in)%BlockSize != 0 {
		return "", ErrBadCiphertext
	}

	out := make([]byte, len(in))
	for off := 0; off < len(in); off += BlockSize {
		e.block.Decrypt(out[off:off+BlockSize], in[off:off+BlockSize])
	}

	return string(out), nil
}

// PassphraseHash returns the one-way hash of a passphrase stored in the
// sentinel record for verification: base64 of the SHA-1 digest of the
// passphrase's UTF-8 bytes. Fixed by the store format.
func PassphraseHash(passphrase string) string {
	sum := sha1.Sum([]byte(passphrase))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// TrimPadding strips the trailing zero bytes Decrypt leaves on padded
// plaintext. Plaintext that genuinely ended in NUL bytes loses them; the
// format cannot distinguish the two cases.
func TrimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}
