package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"rememberkey/pkg/keystore"
)

// LastPass CSV columns. The export is header-based:
// url,username,password,totp,extra,name,grouping,fav
const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColExtra    = "extra"
	lpColName     = "name"
)

// lastPassSecureNoteURL marks Secure Note rows, which carry no real URL.
const lastPassSecureNoteURL = "http://sn"

// ParseLastPass parses a LastPass CSV export into store records. Rows that
// cannot be used are reported in Result.Skipped or Result.Warnings rather
// than failing the whole file.
func ParseLastPass(data []byte) (*Result, error) {
	result := &Result{}

	// Strip the UTF-8 BOM some exports carry.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true // malformed exports happen

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read CSV header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex[lpColName]; !ok {
		return nil, fmt.Errorf("importer: missing required column %q", lpColName)
	}

	itemCounter := 1
	rowNum := 1
	for {
		rowNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: failed to parse: %v", rowNum, err))
			continue
		}
		if len(row) != len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)",
					rowNum, len(header), len(row)))
			continue
		}
		parseLastPassRow(row, colIndex, result, &itemCounter)
	}

	return result, nil
}

func parseLastPassRow(row []string, colIndex map[string]int, result *Result, itemCounter *int) {
	get := func(col string) string {
		if idx, ok := colIndex[col]; ok && idx < len(row) {
			return NormalizeValue(decodeHTMLEntities(row[idx]))
		}
		return ""
	}

	name := get(lpColName)
	rawURL := get(lpColURL)
	username := get(lpColUsername)
	password := get(lpColPassword)
	notes := get(lpColExtra)

	if username == "" && password == "" && notes == "" {
		result.Skipped = append(result.Skipped, SkippedItem{Name: name, Reason: "no useful data"})
		return
	}
	if name == "" {
		name = fallbackName(rawURL, *itemCounter)
		*itemCounter++
	}

	site := rawURL
	if site == lastPassSecureNoteURL {
		site = ""
	}

	// The encrypted payload is pipe-delimited, so pipes cannot survive the
	// round trip. Substitute and warn instead of corrupting the record.
	clean := func(field, v string) string {
		if strings.Contains(v, "|") {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: replaced %q in %s with %q", name, "|", field, "/"))
			return strings.ReplaceAll(v, "|", "/")
		}
		return v
	}

	result.Records = append(result.Records, keystore.KeyInfo{
		Name:     name,
		Site:     site,
		Username: clean("username", username),
		Password: clean("password", password),
		Notes:    clean("notes", notes),
	})
}
