package security

import (
	"strings"
	"testing"

	"rememberkey/pkg/keystore"
)

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     Strength
	}{
		{"", Weak},
		{"short", Weak},
		{"1234567", Weak},
		{"12345678", Fair},
		{strings.Repeat("a", 13), Fair},
		{strings.Repeat("a", 14), Good},
		{strings.Repeat("a", 19), Good},
		{strings.Repeat("a", 20), Strong},
		{"correct horse battery staple", Strong},
	}
	for _, tt := range tests {
		if got := PasswordStrength(tt.password); got != tt.want {
			t.Errorf("PasswordStrength(%d chars) = %v, want %v", len(tt.password), got, tt.want)
		}
	}
}

func TestFindDuplicates(t *testing.T) {
	records := []keystore.KeyInfo{
		{Name: "Bank", Password: "shared-1"},
		{Name: "Mail", Password: "shared-1"},
		{Name: "Forum", Password: "shared-1"},
		{Name: "Work", Password: "shared-2"},
		{Name: "VPN", Password: "shared-2"},
		{Name: "Unique", Password: "only-here"},
		{Name: "NoPassword", Password: ""},
	}

	var c Checker
	groups, err := c.FindDuplicates(records)
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Count != 3 || groups[1].Count != 2 {
		t.Errorf("group counts = %d, %d; want 3, 2", groups[0].Count, groups[1].Count)
	}
	joined := strings.Join(groups[0].Names, ",")
	for _, name := range []string{"Bank", "Mail", "Forum"} {
		if !strings.Contains(joined, name) {
			t.Errorf("largest group missing %s: %v", name, groups[0].Names)
		}
	}
}

func TestFindDuplicatesNone(t *testing.T) {
	var c Checker
	groups, err := c.FindDuplicates([]keystore.KeyInfo{
		{Name: "A", Password: "one"},
		{Name: "B", Password: "two"},
	})
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("got %d groups, want none", len(groups))
	}
}
