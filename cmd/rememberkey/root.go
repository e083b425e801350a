// Package main provides the rememberkey CLI application.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"rememberkey/pkg/cipher"
	"rememberkey/pkg/keystore"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/unicode/norm"
)

var (
	storePath string
	store     *keystore.Store
	engine    *cipher.Engine
)

var rootCmd = &cobra.Command{
	Use:   "rememberkey",
	Short: "rememberkey is an encrypted credential store with OneDrive backup",
	Long: `A credential store keeping usernames, passwords and notes encrypted
in a local database, with encrypted backup files that can be kept on
OneDrive.`,
	// PersistentPreRunE resolves the store location; individual commands
	// open and unlock it as needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if storePath != "" {
			return nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		storePath = filepath.Join(home, ".rememberkey", "keys.db")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Store file path (default ~/.rememberkey/keys.db)")
}

// promptPassphrase reads a passphrase without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Print(prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(pass), nil
}

// promptLine reads one echoed line and NFC-normalizes it so lookups behave
// the same regardless of how the terminal composed the input.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return normalize(strings.TrimRight(line, "\r\n")), nil
}

func normalize(s string) string {
	return norm.NFC.String(s)
}

// ensureUnlocked opens the store and activates the passphrase, prompting
// when needed.
func ensureUnlocked() error {
	if store != nil && store.Unlocked() {
		return nil
	}

	store = keystore.New()
	if !store.Open(storePath) {
		return errors.New(store.LastError())
	}

	pass, err := promptPassphrase("Enter passphrase: ")
	if err != nil {
		return err
	}
	engine = cipher.New()
	engine.Initialize(pass)
	if !store.ActivatePassword(pass, engine) {
		return errors.New(store.LastError())
	}
	return nil
}
