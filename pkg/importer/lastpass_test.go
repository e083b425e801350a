package importer

import (
	"strings"
	"testing"
)

const sampleExport = `url,username,password,totp,extra,name,grouping,fav
https://bank.example.com/login,alice,s3cret,,,Bank,Finance,1
http://sn,,,,"These are my notes",Note Item,,0
https://www.mail.example.org:8443/inbox,bob,hunter2,,,,Email,0
,,,,,"Empty Row",,0
`

func TestParseLastPass(t *testing.T) {
	result, err := ParseLastPass([]byte(sampleExport))
	if err != nil {
		t.Fatalf("ParseLastPass: %v", err)
	}

	if len(result.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(result.Records))
	}

	bank := result.Records[0]
	if bank.Name != "Bank" || bank.Site != "https://bank.example.com/login" ||
		bank.Username != "alice" || bank.Password != "s3cret" {
		t.Errorf("bank record = %+v", bank)
	}

	// Secure Notes carry the marker URL, which must not become the site.
	note := result.Records[1]
	if note.Site != "" || note.Notes != "These are my notes" {
		t.Errorf("secure note record = %+v", note)
	}

	// Nameless rows fall back to the URL hostname.
	mail := result.Records[2]
	if mail.Name != "mail.example.org" {
		t.Errorf("fallback name = %q, want mail.example.org", mail.Name)
	}

	if len(result.Skipped) != 1 || result.Skipped[0].Name != "Empty Row" {
		t.Errorf("skipped = %+v", result.Skipped)
	}
}

func TestParseLastPassBOMAndEntities(t *testing.T) {
	data := "\xEF\xBB\xBF" + "url,username,password,totp,extra,name,grouping,fav\n" +
		`https://x.example,a&amp;b,p&quot;q,,,Entities,,0` + "\n"

	result, err := ParseLastPass([]byte(data))
	if err != nil {
		t.Fatalf("ParseLastPass: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	r := result.Records[0]
	if r.Username != "a&b" || r.Password != `p"q` {
		t.Errorf("entities not decoded: %+v", r)
	}
}

func TestParseLastPassPipesReplaced(t *testing.T) {
	data := "url,username,password,totp,extra,name,grouping,fav\n" +
		`https://x.example,user,pa|ss,,,Piped,,0` + "\n"

	result, err := ParseLastPass([]byte(data))
	if err != nil {
		t.Fatalf("ParseLastPass: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	if got := result.Records[0].Password; got != "pa/ss" {
		t.Errorf("password = %q, want pipes replaced", got)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings = %v, want one pipe warning", result.Warnings)
	}
}

func TestParseLastPassMissingNameColumn(t *testing.T) {
	if _, err := ParseLastPass([]byte("url,username,password\nx,y,z\n")); err == nil {
		t.Fatal("expected an error for a missing name column")
	}
}

func TestParseLastPassColumnMismatchWarns(t *testing.T) {
	data := "url,username,password,totp,extra,name,grouping,fav\n" +
		"short,row\n" +
		`https://x.example,user,pass,,,Good,,0` + "\n"

	result, err := ParseLastPass([]byte(data))
	if err != nil {
		t.Fatalf("ParseLastPass: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Name != "Good" {
		t.Errorf("records = %+v", result.Records)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "row 2") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want a row 2 warning", result.Warnings)
	}
}
