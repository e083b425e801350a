package main

import (
	"errors"
	"fmt"

	"rememberkey/pkg/keystore"
	"rememberkey/pkg/security"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report weak and reused passwords",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		if !store.Search("") {
			return errors.New(store.LastError())
		}

		var records []keystore.KeyInfo
		var weak []string
		for _, row := range store.Rows() {
			k, ok := store.DecryptRow(row)
			if !ok {
				return errors.New(store.LastError())
			}
			records = append(records, k)
			if security.PasswordStrength(k.Password) == security.Weak {
				weak = append(weak, k.Name)
			}
		}
		if len(records) == 0 {
			fmt.Println("No records")
			return nil
		}

		for _, w := range weak {
			fmt.Printf("weak password: %s\n", w)
		}

		var checker security.Checker
		groups, err := checker.FindDuplicates(records)
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Printf("password shared by %d records: %v\n", g.Count, g.Names)
		}

		if len(weak) == 0 && len(groups) == 0 {
			fmt.Printf("All %d records look healthy\n", len(records))
		}
		return nil
	},
}
