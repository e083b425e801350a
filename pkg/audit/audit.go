// Package audit records store and sync operations to an append-only JSONL
// file with an HMAC chain for tamper detection. The HMAC key is derived
// from the active store key, so the log can only be extended or verified
// while the store is unlocked.
//
// Logging is best-effort: the store never fails an operation because the
// audit log could not be written.
package audit

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Operation names.
const (
	OpStoreCreate       = "store.create"
	OpStoreUnlock       = "store.unlock"
	OpStoreUnlockFailed = "store.unlock_failed"
	OpStoreLock         = "store.lock"

	OpKeyAdd    = "key.add"
	OpKeyUpdate = "key.update"
	OpKeyDelete = "key.delete"

	OpExport = "backup.export"
	OpImport = "backup.import"

	OpSyncUpload   = "sync.upload"
	OpSyncDownload = "sync.download"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ErrKeyNotSet indicates logging was attempted before SetKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is a single audit record.
type Event struct {
	Timestamp string `json:"ts"` // RFC 3339, UTC
	Operation string `json:"op"`
	Detail    string `json:"detail,omitempty"`
	Result    string `json:"result"`
	Message   string `json:"msg,omitempty"` // error message, if any

	Sequence int64  `json:"seq"`
	PrevHMAC string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends HMAC-chained events to a single file. A nil *Logger is a
// no-op, so callers never have to guard logging sites.
type Logger struct {
	path     string
	mu       sync.Mutex
	key      []byte
	sequence int64
	prevHMAC string
}

// NewLogger returns a Logger writing to path. No file is touched until the
// first event is logged.
func NewLogger(path string) *Logger {
	return &Logger{path: path, prevHMAC: "genesis"}
}

// SetKey derives the 32-byte HMAC key from the store key via HKDF-SHA256
// and resumes the chain from the last record on disk, if any.
func (l *Logger) SetKey(storeKey []byte) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, storeKey, nil, []byte("rememberkey-audit-v1"))
	key := make([]byte, 32)
	if _, err := r.Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.key = key

	if last, err := l.lastEvent(); err == nil && last != nil {
		l.sequence = last.Sequence
		l.prevHMAC = last.HMAC
	} else {
		l.sequence = 0
		l.prevHMAC = "genesis"
	}
	return nil
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, detail string) error {
	return l.log(op, detail, ResultSuccess, "")
}

// LogError records a failed operation with its message.
func (l *Logger) LogError(op, detail, msg string) error {
	return l.log(op, detail, ResultError, msg)
}

func (l *Logger) log(op, detail, result, msg string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == nil {
		return ErrKeyNotSet
	}

	l.sequence++
	ev := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Operation: op,
		Detail:    detail,
		Result:    result,
		Message:   msg,
		Sequence:  l.sequence,
		PrevHMAC:  l.prevHMAC,
	}
	ev.HMAC = l.mac(&ev)
	l.prevHMAC = ev.HMAC

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// mac computes the record HMAC over the chain-relevant fields.
func (l *Logger) mac(ev *Event) string {
	m := hmac.New(sha256.New, l.key)
	fmt.Fprintf(m, "%d|%s|%s|%s|%s|%s|%s",
		ev.Sequence, ev.PrevHMAC, ev.Timestamp, ev.Operation, ev.Detail, ev.Result, ev.Message)
	return hex.EncodeToString(m.Sum(nil))
}

// VerifyResult summarizes a chain verification.
type VerifyResult struct {
	Valid  bool
	Events int
	BadSeq int64 // sequence of the first bad record, when invalid
}

// Verify walks the log and checks every record's HMAC and chain linkage.
func (l *Logger) Verify() (*VerifyResult, error) {
	if l == nil {
		return &VerifyResult{Valid: true}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.key == nil {
		return nil, ErrKeyNotSet
	}

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &VerifyResult{Valid: true}, nil
		}
		return nil, fmt.Errorf("audit: failed to open log: %w", err)
	}
	defer f.Close()

	res := &VerifyResult{Valid: true}
	prev := "genesis"
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			res.Valid = false
			res.BadSeq = int64(res.Events) + 1
			return res, nil
		}
		if ev.PrevHMAC != prev || ev.HMAC != l.mac(&ev) {
			res.Valid = false
			res.BadSeq = ev.Sequence
			return res, nil
		}
		prev = ev.HMAC
		res.Events++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read log: %w", err)
	}
	return res, nil
}

// lastEvent returns the final record in the log, or nil when empty.
func (l *Logger) lastEvent() (*Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var last *Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, err
		}
		last = &ev
	}
	return last, sc.Err()
}
