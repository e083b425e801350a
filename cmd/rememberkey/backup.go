package main

import (
	"errors"
	"fmt"
	"os"

	"rememberkey/pkg/backup"

	"github.com/spf13/cobra"
)

var exportOutput string

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: stdout)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the store as an encrypted backup file",
	Long: `Export every record, sentinel included, as encrypted text. The file
can only be imported with the passphrase that was active at export time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.OpenFile(exportOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("failed to create backup file: %w", err)
			}
			defer f.Close()
			out = f
		}

		codec := backup.NewCodec(store, engine)
		if !codec.Export(out) {
			return errors.New(codec.LastError())
		}
		if exportOutput != "" {
			fmt.Fprintf(os.Stderr, "Exported to %s\n", exportOutput)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import records from an encrypted backup file",
	Long: `Import a backup made with the same passphrase. Records are applied one
by one; a malformed line aborts the import but rows applied before it
remain in the store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open backup file: %w", err)
		}
		defer f.Close()

		codec := backup.NewCodec(store, engine)
		if !codec.Import(f) {
			return errors.New(codec.LastError())
		}
		fmt.Println("Import complete")
		return nil
	},
}
