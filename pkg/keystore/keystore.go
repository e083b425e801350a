// Package keystore owns the encrypted credential table, the
// password-verification sentinel and search/CRUD over records.
//
// The persisted table is a single SQLite relation:
//
//	keypass(id integer primary key, name varchar(256) not null,
//	        site varchar(256), other clob not null)
//
// name and site are stored in the clear for searching; other holds the
// encrypted "username|password|notes" triple. Row id 1 is a reserved
// sentinel whose decoded password field is the one-way hash of the active
// passphrase; it exists purely for verification and is never listed.
//
// Operations return a success flag and record a human-readable message
// retrievable with LastError, so a caller can render context without
// unwinding through error chains.
package keystore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"rememberkey/pkg/audit"
	"rememberkey/pkg/cipher"

	_ "modernc.org/sqlite" // pure Go SQLite driver, registers as "sqlite"
)

// SentinelID is the reserved record id holding the passphrase hash.
const SentinelID = 1

// noneQuery is the view activated after unlock: matches nothing until the
// first search is issued.
const noneQuery = "select id, name, site, other from keypass where id < 0"

// KeyInfo is a fully decoded credential record.
type KeyInfo struct {
	ID       int
	Name     string
	Site     string
	Username string
	Password string
	Notes    string
}

// Row is a raw table row; Other is still ciphertext.
type Row struct {
	ID    int
	Name  string
	Site  string
	Other string
}

// view is the retained listing predicate, re-applied by Refresh until a new
// search replaces it.
type view struct {
	query string
	args  []any
}

// Store manages one credential table. The zero value is closed; use New.
type Store struct {
	db      *sql.DB
	crypto  *cipher.Engine
	path    string
	lastErr string
	last    view
	rows    []Row
	audit   *audit.Logger
}

// New returns a closed Store.
func New() *Store {
	return &Store{}
}

// LastError returns the message recorded by the most recent failed
// operation. Successful operations clear it.
func (s *Store) LastError() string {
	return s.lastErr
}

func (s *Store) setError(header, detail string) {
	s.lastErr = fmt.Sprintf("%s: %s", header, detail)
}

// Create initializes a fresh store at path, writes the sentinel record for
// the given passphrase and activates the empty default view. It fails if
// path already exists or cannot be created.
func (s *Store) Create(path, passphrase string, eng *cipher.Engine) bool {
	s.lastErr = ""
	s.Close()

	if _, err := os.Stat(path); err == nil {
		s.setError("Can't create store", "file already exists: "+path)
		return false
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		s.setError("Can't create store", err.Error())
		return false
	}

	if _, err := db.Exec(`create table keypass (
		id integer primary key,
		name varchar(256) not null,
		site varchar(256),
		other clob not null
	)`); err != nil {
		db.Close()
		s.setError("Can't create table", err.Error())
		return false
	}

	s.db = db
	s.path = path
	s.crypto = eng
	s.audit = audit.NewLogger(path + ".audit")
	s.setAuditKey()

	// The sentinel is the first row of a fresh table, so it receives id 1.
	sentinel := KeyInfo{Password: cipher.PassphraseHash(passphrase)}
	if !s.AddKeyInfo(sentinel) {
		s.setError("Can't save password", s.lastErr)
		s.Close()
		return false
	}

	s.last = view{query: noneQuery}
	s.rows = nil
	_ = s.audit.LogSuccess(audit.OpStoreCreate, "")
	return true
}

// Open opens an existing store without validating the passphrase;
// validation is a separate ActivatePassword step.
func (s *Store) Open(path string) bool {
	s.lastErr = ""
	s.Close()

	if _, err := os.Stat(path); err != nil {
		s.setError("Can't open store", err.Error())
		return false
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		s.setError("Can't open store", err.Error())
		return false
	}

	s.db = db
	s.path = path
	s.audit = audit.NewLogger(path + ".audit")
	return true
}

// ActivatePassword installs the cipher and verifies the passphrase against
// the sentinel record: the decrypted payload must split into exactly three
// pipe-delimited fields (a wrong key produces garbage that rarely does) and
// the decoded password field must equal the passphrase hash. Failing either
// check clears the cipher again.
func (s *Store) ActivatePassword(passphrase string, eng *cipher.Engine) bool {
	s.lastErr = ""
	s.crypto = eng

	sentinel, ok := s.GetKeyInfo(SentinelID)
	if !ok {
		s.setError("Check password failed", s.lastErr)
		s.ForgetPassword()
		_ = s.audit.LogError(audit.OpStoreUnlockFailed, "", s.lastErr)
		return false
	}
	if sentinel.Password != cipher.PassphraseHash(passphrase) {
		s.setError("Check password failed", "password mismatched")
		s.ForgetPassword()
		_ = s.audit.LogError(audit.OpStoreUnlockFailed, "", "password mismatched")
		return false
	}

	s.last = view{query: noneQuery}
	s.rows = nil
	s.setAuditKey()
	_ = s.audit.LogSuccess(audit.OpStoreUnlock, "")
	return true
}

// ForgetPassword discards the active cipher without touching persisted
// data.
func (s *Store) ForgetPassword() {
	s.crypto = nil
}

// Close discards the cipher, clears the active view and closes the
// database. Idempotent.
func (s *Store) Close() {
	if s.crypto != nil && s.audit != nil {
		_ = s.audit.LogSuccess(audit.OpStoreLock, "")
	}
	s.ForgetPassword()
	s.last = view{}
	s.rows = nil
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

// Unlocked reports whether a cipher is active.
func (s *Store) Unlocked() bool {
	return s.crypto != nil
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) setAuditKey() {
	if s.audit == nil || s.crypto == nil {
		return
	}
	if err := s.audit.SetKey(s.crypto.Key()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize audit logger: %v\n", err)
	}
}

// AuditLogger exposes the operation log so the sync layer can record
// upload/download events against the same chain.
func (s *Store) AuditLogger() *audit.Logger {
	return s.audit
}

// encryptOther joins username, password and notes with pipes and encrypts
// the result.
func (s *Store) encryptOther(k KeyInfo) (string, error) {
	if s.crypto == nil {
		return "", cipher.ErrNotInitialized
	}
	return s.crypto.Encrypt(k.Username + "|" + k.Password + "|" + k.Notes)
}

// decodeOther decrypts an other column into the three credential fields.
// The shape check doubles as passphrase verification: garbage rarely splits
// into exactly three fields.
func (s *Store) decodeOther(other string, k *KeyInfo) bool {
	if s.crypto == nil {
		s.setError("Can't decrypt data", "no active password")
		return false
	}
	dec, err := s.crypto.Decrypt(other)
	if err != nil {
		s.setError("Can't decrypt data", err.Error())
		return false
	}
	parts := strings.Split(cipher.TrimPadding(dec), "|")
	if len(parts) != 3 {
		s.setError("Can't decrypt data", "wrong password")
		return false
	}
	k.Username = parts[0]
	k.Password = parts[1]
	k.Notes = parts[2]
	return true
}

// AddKeyInfo encrypts the credential triple and inserts a new row, letting
// SQLite assign the id. All values travel as bind parameters.
func (s *Store) AddKeyInfo(k KeyInfo) bool {
	s.lastErr = ""
	if s.db == nil {
		s.setError("Can't add record", "store is not open")
		return false
	}
	other, err := s.encryptOther(k)
	if err != nil {
		s.setError("Can't add record", err.Error())
		return false
	}
	if _, err := s.db.Exec(
		"insert into keypass (id, name, site, other) values (null, ?, ?, ?)",
		k.Name, k.Site, other,
	); err != nil {
		s.setError("Can't add record", err.Error())
		return false
	}
	_ = s.audit.LogSuccess(audit.OpKeyAdd, k.Name)
	return true
}

// UpdateKeyInfo writes only the columns that differ between old and key:
// name and site independently, and one re-encryption of the credential
// triple if any of username/password/notes changed. A no-op delta returns
// success without issuing a statement.
func (s *Store) UpdateKeyInfo(old, key KeyInfo) bool {
	s.lastErr = ""
	if s.db == nil {
		s.setError("Can't update record", "store is not open")
		return false
	}

	var sets []string
	var args []any

	if old.Name != key.Name {
		sets = append(sets, "name = ?")
		args = append(args, key.Name)
	}
	if old.Site != key.Site {
		sets = append(sets, "site = ?")
		args = append(args, key.Site)
	}
	if old.Username != key.Username || old.Password != key.Password || old.Notes != key.Notes {
		other, err := s.encryptOther(key)
		if err != nil {
			s.setError("Can't update record", err.Error())
			return false
		}
		sets = append(sets, "other = ?")
		args = append(args, other)
	}

	if len(sets) == 0 {
		return true
	}

	args = append(args, key.ID)
	query := "update keypass set " + strings.Join(sets, ", ") + " where id = ?"
	if _, err := s.db.Exec(query, args...); err != nil {
		s.setError("Can't update record", err.Error())
		return false
	}
	_ = s.audit.LogSuccess(audit.OpKeyUpdate, key.Name)
	return true
}

// DeleteKeyInfo removes the row with the given id.
func (s *Store) DeleteKeyInfo(id int) bool {
	s.lastErr = ""
	if s.db == nil {
		s.setError("Can't delete record", "store is not open")
		return false
	}
	if _, err := s.db.Exec("delete from keypass where id = ?", id); err != nil {
		s.setError("Can't delete record", err.Error())
		return false
	}
	_ = s.audit.LogSuccess(audit.OpKeyDelete, fmt.Sprintf("id=%d", id))
	return true
}

// GetKeyInfo fetches and decrypts a single record. A missing row is
// reported through LastError, matching the empty-result contract.
func (s *Store) GetKeyInfo(id int) (KeyInfo, bool) {
	s.lastErr = ""
	var k KeyInfo
	if s.db == nil {
		s.setError("Can't get record", "store is not open")
		return k, false
	}

	var other string
	err := s.db.QueryRow(
		"select id, name, site, other from keypass where id = ?", id,
	).Scan(&k.ID, &k.Name, &k.Site, &other)
	if errors.Is(err, sql.ErrNoRows) {
		s.setError("Can't get record", "no record")
		return k, false
	}
	if err != nil {
		s.setError("Can't get record", err.Error())
		return k, false
	}
	if !s.decodeOther(other, &k) {
		return k, false
	}
	return k, true
}

// Search replaces the active view. An empty substring lists all
// non-sentinel records (the sentinel's name is empty); otherwise records
// whose name or site contains the substring, case-insensitively. The
// predicate is retained and re-applied by Refresh until the next Search.
func (s *Store) Search(substring string) bool {
	s.lastErr = ""
	if s.db == nil {
		s.setError("Can't search", "store is not open")
		return false
	}

	var v view
	if substring == "" {
		v = view{query: "select id, name, site, other from keypass where name != ''"}
	} else {
		pat := "%" + strings.ToLower(substring) + "%"
		v = view{
			query: "select id, name, site, other from keypass " +
				"where lower(name) like ? or lower(site) like ?",
			args: []any{pat, pat},
		}
	}

	s.last = v
	return s.Refresh()
}

// Refresh re-runs the retained view predicate and replaces the cached rows.
func (s *Store) Refresh() bool {
	s.lastErr = ""
	if s.db == nil {
		s.setError("Can't refresh view", "store is not open")
		return false
	}
	if s.last.query == "" {
		s.last = view{query: noneQuery}
	}

	rows, err := s.queryRows(s.last.query, s.last.args...)
	if err != nil {
		s.setError("Can't refresh view", err.Error())
		return false
	}
	s.rows = rows
	return true
}

// Rows returns the current view's raw rows in table order.
func (s *Store) Rows() []Row {
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// KeyAt decrypts the i-th row of the current view.
func (s *Store) KeyAt(i int) (KeyInfo, bool) {
	s.lastErr = ""
	var k KeyInfo
	if i < 0 || i >= len(s.rows) {
		s.setError("Can't get record", "row index out of range")
		return k, false
	}
	return s.DecryptRow(s.rows[i])
}

// DecryptRow decodes a raw row into a full record.
func (s *Store) DecryptRow(r Row) (KeyInfo, bool) {
	k := KeyInfo{ID: r.ID, Name: r.Name, Site: r.Site}
	if !s.decodeOther(r.Other, &k) {
		return k, false
	}
	return k, true
}

// AllRows returns every raw row including the sentinel, in id order; the
// backup codec serializes from here.
func (s *Store) AllRows() ([]Row, bool) {
	s.lastErr = ""
	if s.db == nil {
		s.setError("Can't export", "store is not open")
		return nil, false
	}
	rows, err := s.queryRows("select id, name, site, other from keypass order by id")
	if err != nil {
		s.setError("Can't export", err.Error())
		return nil, false
	}
	return rows, true
}

// UpsertRaw inserts a row with an exact id or, if the id exists, updates its
// name/site/other. Used by backup import; the sentinel can be overwritten
// here when the backup was made under a different passphrase, which is the
// documented import behavior.
func (s *Store) UpsertRaw(r Row) bool {
	s.lastErr = ""
	if s.db == nil {
		s.setError("Can't import record", "store is not open")
		return false
	}
	if _, err := s.db.Exec(`insert into keypass (id, name, site, other)
		values (?, ?, ?, ?)
		on conflict(id) do update set
			name = excluded.name,
			site = excluded.site,
			other = excluded.other`,
		r.ID, r.Name, r.Site, r.Other,
	); err != nil {
		s.setError("Can't import record", err.Error())
		return false
	}
	return true
}

func (s *Store) queryRows(query string, args ...any) ([]Row, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Name, &r.Site, &r.Other); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
