package main

import (
	"errors"
	"fmt"
	"os"

	"rememberkey/pkg/importer"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(importLastPassCmd)
}

var importLastPassCmd = &cobra.Command{
	Use:   "import-lastpass <file.csv>",
	Short: "Import records from a LastPass CSV export",
	Long: `Import credentials from a LastPass CSV export. Unusable rows are
reported and skipped; everything else is added as new records.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read export file: %w", err)
		}

		result, err := importer.ParseLastPass(data)
		if err != nil {
			return err
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		added := 0
		for _, k := range result.Records {
			if !store.AddKeyInfo(k) {
				return errors.New(store.LastError())
			}
			added++
		}

		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		for _, s := range result.Skipped {
			fmt.Fprintf(os.Stderr, "skipped %q: %s\n", s.Name, s.Reason)
		}
		fmt.Printf("Imported %d records\n", added)
		return nil
	},
}
