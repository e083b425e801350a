package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"
)

const (
	charsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	charsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigits    = "0123456789"
	charsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	minPasswordLength     = 8
	maxPasswordLength     = 256
	defaultPasswordLength = 20
	maxPasswordCount      = 100
)

var (
	generateLength      int
	generateCount       int
	generateNoSymbols   bool
	generateNoNumbers   bool
	generateNoUppercase bool
	generateNoLowercase bool
	generateExclude     string
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVarP(&generateLength, "length", "l", defaultPasswordLength, "Password length (8-256)")
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "Number of passwords to generate (1-100)")
	generateCmd.Flags().BoolVar(&generateNoSymbols, "no-symbols", false, "Exclude symbols")
	generateCmd.Flags().BoolVar(&generateNoNumbers, "no-numbers", false, "Exclude digits")
	generateCmd.Flags().BoolVar(&generateNoUppercase, "no-uppercase", false, "Exclude uppercase letters")
	generateCmd.Flags().BoolVar(&generateNoLowercase, "no-lowercase", false, "Exclude lowercase letters")
	generateCmd.Flags().StringVar(&generateExclude, "exclude", "", "Characters to exclude")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate random passwords",
	Long: `Generate cryptographically secure random passwords.

Examples:
  # Generate a 20-character password (default)
  rememberkey generate

  # Generate a 32-character password without symbols
  rememberkey generate -l 32 --no-symbols

  # Generate a password excluding ambiguous characters
  rememberkey generate --exclude "0O1lI"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateLength < minPasswordLength || generateLength > maxPasswordLength {
			return fmt.Errorf("password length must be between %d and %d", minPasswordLength, maxPasswordLength)
		}
		if generateCount < 1 || generateCount > maxPasswordCount {
			return fmt.Errorf("count must be between 1 and %d", maxPasswordCount)
		}

		charset, err := buildCharset()
		if err != nil {
			return err
		}
		for i := 0; i < generateCount; i++ {
			password, err := generatePassword(charset, generateLength)
			if err != nil {
				return fmt.Errorf("failed to generate password: %w", err)
			}
			fmt.Println(password)
		}
		return nil
	},
}

// buildCharset assembles the allowed characters from the exclusion flags.
func buildCharset() (string, error) {
	var b strings.Builder
	if !generateNoLowercase {
		b.WriteString(charsetLowercase)
	}
	if !generateNoUppercase {
		b.WriteString(charsetUppercase)
	}
	if !generateNoNumbers {
		b.WriteString(charsetDigits)
	}
	if !generateNoSymbols {
		b.WriteString(charsetSymbols)
	}

	charset := b.String()
	if generateExclude != "" {
		charset = removeChars(charset, generateExclude)
	}
	if charset == "" {
		return "", fmt.Errorf("character set is empty: adjust flags to include at least one character type")
	}
	return charset, nil
}

func removeChars(s, chars string) string {
	var b strings.Builder
	for _, c := range s {
		if !strings.ContainsRune(chars, c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func generatePassword(charset string, length int) (string, error) {
	max := big.NewInt(int64(len(charset)))
	password := make([]byte, length)
	for i := range password {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		password[i] = charset[idx.Int64()]
	}
	return string(password), nil
}
