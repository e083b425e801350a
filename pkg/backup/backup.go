// Package backup serializes the credential table to a line-oriented text
// format and restores it. The format survives passphrase-blind transport:
// every field is encrypted, so a backup file reveals only record count and
// rough field sizes.
//
// Layout, one record per line:
//
//	E(E("RememberKey"))
//	E( E(id) "|" E(name) "|" E(site) "|" E(other) )
//	...
//
// where E is the store cipher and other is already ciphertext, so the
// credential triple ends up encrypted twice. The doubled magic token on the
// first line lets import reject a file written under a different passphrase
// before touching any rows.
package backup

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"rememberkey/pkg/audit"
	"rememberkey/pkg/cipher"
	"rememberkey/pkg/keystore"
)

// MagicToken is the plaintext of the first backup line.
const MagicToken = "RememberKey"

// Codec exports and imports backups for one store. Like the store itself it
// reports failures through LastError.
type Codec struct {
	store   *keystore.Store
	crypto  *cipher.Engine
	lastErr string
}

// NewCodec binds a codec to a store and its active cipher.
func NewCodec(store *keystore.Store, eng *cipher.Engine) *Codec {
	return &Codec{store: store, crypto: eng}
}

// LastError returns the message recorded by the most recent failed call.
func (c *Codec) LastError() string {
	return c.lastErr
}

// Export writes the magic line followed by every table row, sentinel
// included, in id order.
func (c *Codec) Export(w io.Writer) bool {
	c.lastErr = ""

	rows, ok := c.store.AllRows()
	if !ok {
		c.lastErr = c.store.LastError()
		return false
	}

	token, err := c.doubleEncrypt(MagicToken)
	if err != nil {
		c.lastErr = "Can't export: " + err.Error()
		return false
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, token)

	for _, r := range rows {
		line, err := c.encodeRow(r)
		if err != nil {
			c.lastErr = "Can't export: " + err.Error()
			return false
		}
		fmt.Fprintln(bw, line)
	}

	if err := bw.Flush(); err != nil {
		c.lastErr = "Can't export: " + err.Error()
		return false
	}
	_ = c.store.AuditLogger().LogSuccess(audit.OpExport, fmt.Sprintf("%d records", len(rows)))
	return true
}

// Import verifies the magic line and applies rows one by one. Rows are
// upserted as they parse, so a file that goes bad midway leaves the earlier
// rows applied; the failing line is reported and the rest is skipped.
func (c *Codec) Import(r io.Reader) bool {
	c.lastErr = ""

	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		c.lastErr = "Can't import: empty file"
		return false
	}
	if !c.checkToken(sc.Text()) {
		c.lastErr = "Can't import: not a backup file, or wrong password"
		return false
	}

	applied := 0
	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		row, err := c.decodeRow(line)
		if err != nil {
			c.lastErr = fmt.Sprintf("Can't import line %d: %v", lineNo, err)
			return false
		}
		if !c.store.UpsertRaw(row) {
			c.lastErr = c.store.LastError()
			return false
		}
		applied++
	}
	if err := sc.Err(); err != nil {
		c.lastErr = "Can't import: " + err.Error()
		return false
	}

	if ok := c.store.Refresh(); !ok {
		c.lastErr = c.store.LastError()
		return false
	}
	_ = c.store.AuditLogger().LogSuccess(audit.OpImport, fmt.Sprintf("%d records", applied))
	return true
}

func (c *Codec) doubleEncrypt(s string) (string, error) {
	inner, err := c.crypto.Encrypt(s)
	if err != nil {
		return "", err
	}
	return c.crypto.Encrypt(inner)
}

func (c *Codec) checkToken(line string) bool {
	inner, err := c.crypto.Decrypt(strings.TrimSpace(line))
	if err != nil {
		return false
	}
	plain, err := c.crypto.Decrypt(cipher.TrimPadding(inner))
	if err != nil {
		return false
	}
	return strings.HasPrefix(cipher.TrimPadding(plain), MagicToken)
}

// encodeRow encrypts each column separately, joins them with pipes and
// encrypts the joined line. other is ciphertext already, giving the triple
// its second layer.
func (c *Codec) encodeRow(r keystore.Row) (string, error) {
	cols := [4]string{strconv.Itoa(r.ID), r.Name, r.Site, r.Other}
	enc := make([]string, 0, len(cols))
	for _, col := range cols {
		e, err := c.crypto.Encrypt(col)
		if err != nil {
			return "", err
		}
		enc = append(enc, e)
	}
	return c.crypto.Encrypt(strings.Join(enc, "|"))
}

func (c *Codec) decodeRow(line string) (keystore.Row, error) {
	var row keystore.Row

	joined, err := c.crypto.Decrypt(line)
	if err != nil {
		return row, err
	}
	parts := strings.Split(cipher.TrimPadding(joined), "|")
	if len(parts) != 4 {
		return row, fmt.Errorf("malformed record: %d fields", len(parts))
	}

	var cols [4]string
	for i, p := range parts {
		dec, err := c.crypto.Decrypt(p)
		if err != nil {
			return row, err
		}
		cols[i] = cipher.TrimPadding(dec)
	}

	id, err := strconv.Atoi(cols[0])
	if err != nil {
		return row, fmt.Errorf("bad record id %q", cols[0])
	}
	row.ID = id
	row.Name = cols[1]
	row.Site = cols[2]
	row.Other = cols[3]
	return row, nil
}
