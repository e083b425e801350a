package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"rememberkey/pkg/keystore"

	"github.com/spf13/cobra"
)

var (
	addName     string
	addSite     string
	addUsername string
	addNotes    string

	getShowPassword bool
)

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	addCmd.Flags().StringVar(&addName, "name", "", "Record name")
	addCmd.Flags().StringVar(&addSite, "site", "", "Site or service URL")
	addCmd.Flags().StringVar(&addUsername, "username", "", "Username")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "Free-form notes")

	getCmd.Flags().BoolVar(&getShowPassword, "show-password", false, "Print the password instead of masking it")
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a credential record",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		k := keystore.KeyInfo{
			Name:     normalize(addName),
			Site:     normalize(addSite),
			Username: normalize(addUsername),
			Notes:    normalize(addNotes),
		}
		var err error
		if k.Name == "" {
			if k.Name, err = promptLine("Name: "); err != nil {
				return err
			}
		}
		if k.Name == "" {
			return errors.New("record name must not be empty")
		}
		if k.Password, err = promptPassphrase("Password for this record: "); err != nil {
			return err
		}

		if !store.AddKeyInfo(k) {
			return errors.New(store.LastError())
		}
		fmt.Printf("Added %q\n", k.Name)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one credential record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid record id %q", args[0])
		}
		if id == keystore.SentinelID {
			return errors.New("no record")
		}
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		k, ok := store.GetKeyInfo(id)
		if !ok {
			return errors.New(store.LastError())
		}

		password := "********"
		if getShowPassword {
			password = k.Password
		}
		fmt.Printf("ID:       %d\n", k.ID)
		fmt.Printf("Name:     %s\n", k.Name)
		fmt.Printf("Site:     %s\n", k.Site)
		fmt.Printf("Username: %s\n", k.Username)
		fmt.Printf("Password: %s\n", password)
		if k.Notes != "" {
			fmt.Printf("Notes:    %s\n", k.Notes)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list [substring]",
	Short: "List records, optionally filtered by a name/site substring",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		substring := ""
		if len(args) == 1 {
			substring = normalize(args[0])
		}
		if !store.Search(substring) {
			return errors.New(store.LastError())
		}

		rows := store.Rows()
		if len(rows) == 0 {
			fmt.Println("No records")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSITE")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Name, r.Site)
		}
		return w.Flush()
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a credential record",
	Long: `Update a credential record interactively. An empty answer keeps the
current value; only changed columns are rewritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid record id %q", args[0])
		}
		if id == keystore.SentinelID {
			return errors.New("no record")
		}
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		old, ok := store.GetKeyInfo(id)
		if !ok {
			return errors.New(store.LastError())
		}
		updated := old

		prompt := func(label, current string, dst *string) error {
			v, err := promptLine(fmt.Sprintf("%s [%s]: ", label, current))
			if err != nil {
				return err
			}
			if v != "" {
				*dst = v
			}
			return nil
		}
		if err := prompt("Name", old.Name, &updated.Name); err != nil {
			return err
		}
		if err := prompt("Site", old.Site, &updated.Site); err != nil {
			return err
		}
		if err := prompt("Username", old.Username, &updated.Username); err != nil {
			return err
		}
		pass, err := promptPassphrase("Password (empty keeps current): ")
		if err != nil {
			return err
		}
		if pass != "" {
			updated.Password = pass
		}
		if err := prompt("Notes", old.Notes, &updated.Notes); err != nil {
			return err
		}

		if !store.UpdateKeyInfo(old, updated) {
			return errors.New(store.LastError())
		}
		fmt.Printf("Updated %q\n", updated.Name)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a credential record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid record id %q", args[0])
		}
		if id == keystore.SentinelID {
			return errors.New("no record")
		}
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer store.Close()

		if !store.DeleteKeyInfo(id) {
			return errors.New(store.LastError())
		}
		fmt.Printf("Deleted record %d\n", id)
		return nil
	},
}
