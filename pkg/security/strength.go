// Package security analyzes the health of stored credentials: password
// strength and reuse across records.
package security

// Strength is the strength level of a stored password.
type Strength int

const (
	Weak Strength = iota
	Fair
	Good
	Strong
)

func (s Strength) String() string {
	switch s {
	case Weak:
		return "Weak"
	case Fair:
		return "Fair"
	case Good:
		return "Good"
	case Strong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// PasswordStrength evaluates a human-chosen password. Length is the primary
// factor per NIST SP 800-63B; composition rules are deliberately not scored.
func PasswordStrength(value string) Strength {
	switch length := len(value); {
	case length >= 20:
		return Strong
	case length >= 14:
		return Good
	case length >= 8:
		return Fair
	default:
		return Weak
	}
}
