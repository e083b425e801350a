package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"rememberkey/pkg/keystore"
)

// DuplicateGroup is a set of records sharing one password.
type DuplicateGroup struct {
	Names []string
	Count int
}

// Checker compares passwords across records without retaining the
// plaintext: values are HMAC-SHA256 hashed under a key generated per
// Checker and never persisted.
type Checker struct {
	hmacKey []byte
}

// FindDuplicates groups records by shared password, most reused first.
// Records with empty passwords are ignored.
func (c *Checker) FindDuplicates(records []keystore.KeyInfo) ([]DuplicateGroup, error) {
	if c.hmacKey == nil {
		c.hmacKey = make([]byte, 32)
		if _, err := rand.Read(c.hmacKey); err != nil {
			return nil, fmt.Errorf("security: failed to generate session key: %w", err)
		}
	}

	byHash := make(map[string][]string)
	for _, r := range records {
		if r.Password == "" {
			continue
		}
		h := hmac.New(sha256.New, c.hmacKey)
		h.Write([]byte(r.Password))
		key := hex.EncodeToString(h.Sum(nil))
		byHash[key] = append(byHash[key], r.Name)
	}

	var groups []DuplicateGroup
	for _, names := range byHash {
		if len(names) > 1 {
			groups = append(groups, DuplicateGroup{Names: names, Count: len(names)})
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Names[0] < groups[j].Names[0]
	})
	return groups, nil
}
