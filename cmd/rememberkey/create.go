package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rememberkey/pkg/cipher"
	"rememberkey/pkg/keystore"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(createCmd)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new credential store",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Creating store at %s\n", storePath)

		pass1, err := promptPassphrase("Enter passphrase: ")
		if err != nil {
			return err
		}
		pass2, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass1 != pass2 {
			return errors.New("passphrases do not match")
		}
		if pass1 == "" {
			return errors.New("passphrase must not be empty")
		}

		if err := os.MkdirAll(filepath.Dir(storePath), 0700); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}

		engine = cipher.New()
		engine.Initialize(pass1)
		store = keystore.New()
		if !store.Create(storePath, pass1, engine) {
			return errors.New(store.LastError())
		}
		defer store.Close()

		fmt.Println("Store created")
		return nil
	},
}
