// Package importer parses credential exports from other password managers
// into store records. The only supported source is the LastPass CSV export;
// its column layout is header-based, so column order in the file does not
// matter.
package importer

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"rememberkey/pkg/keystore"
)

// Result collects everything one parse produced.
type Result struct {
	Records  []keystore.KeyInfo
	Warnings []string
	Skipped  []SkippedItem
}

// SkippedItem is a row left out of Records, with the reason.
type SkippedItem struct {
	Name   string
	Reason string
}

// NormalizeValue trims whitespace and NFC-normalizes, so records imported
// from differently composed exports compare and search consistently.
func NormalizeValue(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// decodeHTMLEntities reverses the HTML encoding LastPass applies to special
// characters in some export versions.
func decodeHTMLEntities(s string) string {
	replacements := [...][2]string{
		{"&amp;", "&"},
		{"&lt;", "<"},
		{"&gt;", ">"},
		{"&quot;", `"`},
		{"&#39;", "'"},
		{"&apos;", "'"},
	}
	for _, r := range replacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}
	return s
}

// fallbackName derives a record name when the export row has none: the URL
// hostname when available, otherwise a counter-based placeholder.
func fallbackName(rawURL string, counter int) string {
	if host := extractHostname(rawURL); host != "" {
		return host
	}
	return fmt.Sprintf("imported_item_%d", counter)
}

func extractHostname(rawURL string) string {
	s := strings.TrimPrefix(rawURL, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexAny(s, "/:"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimPrefix(s, "www.")
}
