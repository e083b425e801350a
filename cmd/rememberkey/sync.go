package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"rememberkey/internal/settings"
	"rememberkey/pkg/audit"
	"rememberkey/pkg/onedrive"

	"github.com/spf13/cobra"
)

// Sign-in flags; the credentials are persisted encrypted after the first
// successful sign-in.
var (
	syncClientID     string
	syncClientSecret string
	syncRedirectURI  string
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncAuthURLCmd)
	syncCmd.AddCommand(syncSignInCmd)
	syncCmd.AddCommand(syncSignOutCmd)
	syncCmd.AddCommand(syncLsCmd)
	syncCmd.AddCommand(syncMkdirCmd)
	syncCmd.AddCommand(syncUploadCmd)
	syncCmd.AddCommand(syncDownloadCmd)
	syncCmd.AddCommand(syncRmCmd)
	syncCmd.AddCommand(syncQuotaCmd)
	syncCmd.AddCommand(syncWhoamiCmd)

	for _, cmd := range []*cobra.Command{syncAuthURLCmd, syncSignInCmd} {
		cmd.Flags().StringVar(&syncClientID, "client-id", "", "OAuth2 client id")
		cmd.Flags().StringVar(&syncClientSecret, "client-secret", "", "OAuth2 client secret")
		cmd.Flags().StringVar(&syncRedirectURI, "redirect-uri", "https://login.live.com/oauth20_desktop.srf", "OAuth2 redirect URI")
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Move backups to and from OneDrive",
}

func sessionPath() string {
	return filepath.Join(filepath.Dir(storePath), "onedrive.yaml")
}

// loadSession unlocks the store and reads the persisted sync session.
func loadSession() (settings.Session, error) {
	if err := ensureUnlocked(); err != nil {
		return settings.Session{}, err
	}
	return settings.Load(sessionPath(), engine)
}

func saveSession(sess settings.Session) {
	if err := settings.Save(sessionPath(), sess, engine); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to persist sync session: %v\n", err)
	}
}

func clientFor(sess settings.Session) *onedrive.Client {
	c := onedrive.NewClient(onedrive.Config{
		ClientID:     sess.ClientID,
		ClientSecret: sess.ClientSecret,
		RedirectURI:  sess.RedirectURI,
	})
	if sess.AccessToken != "" {
		c.SetToken(sess.AccessToken, sess.RefreshToken, sess.Expires)
	}
	return c
}

// signedInSession loads the session and requires tokens to be present.
func signedInSession() (settings.Session, *onedrive.Client, error) {
	sess, err := loadSession()
	if err != nil {
		if errors.Is(err, settings.ErrNoSession) {
			return sess, nil, errors.New("not signed in: run 'rememberkey sync signin' first")
		}
		return sess, nil, err
	}
	if sess.AccessToken == "" {
		return sess, nil, errors.New("not signed in: run 'rememberkey sync signin' first")
	}
	return sess, clientFor(sess), nil
}

// await drains the client's events until the operation finishes, printing
// progress to stderr and persisting refreshed tokens as they arrive.
func await(c *onedrive.Client, sess *settings.Session) (onedrive.Event, error) {
	for ev := range c.Events() {
		switch ev.Type {
		case onedrive.EventProgress:
			fmt.Fprintf(os.Stderr, "\r%3d%%", ev.Percent)
		case onedrive.EventTokenChanged:
			sess.AccessToken = ev.Token.Access
			sess.RefreshToken = ev.Token.Refresh
			sess.Expires = ev.Token.Expires
			saveSession(*sess)
		case onedrive.EventSuccess:
			fmt.Fprint(os.Stderr, "\r")
			return ev, nil
		case onedrive.EventError:
			fmt.Fprint(os.Stderr, "\r")
			return ev, ev.Err
		}
	}
	return onedrive.Event{}, errors.New("event stream closed unexpectedly")
}

var syncAuthURLCmd = &cobra.Command{
	Use:   "auth-url",
	Short: "Print the browser URL that starts authorization",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession()
		if err != nil && !errors.Is(err, settings.ErrNoSession) {
			return err
		}
		applyCredentialFlags(&sess)
		if sess.ClientID == "" {
			return errors.New("a client id is required: pass --client-id")
		}

		fmt.Println(clientFor(sess).AuthCodeURL())
		return nil
	},
}

var syncSignInCmd = &cobra.Command{
	Use:   "signin <code-or-redirect-url>",
	Short: "Exchange an authorization code for tokens",
	Long: `Complete the authorization flow. Pass either the code itself or the
full redirect URL the browser landed on after consent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := loadSession()
		if err != nil && !errors.Is(err, settings.ErrNoSession) {
			return err
		}
		defer store.Close()
		applyCredentialFlags(&sess)
		if sess.ClientID == "" || sess.ClientSecret == "" {
			return errors.New("client credentials are required: pass --client-id and --client-secret")
		}

		code, err := codeFromArg(args[0])
		if err != nil {
			return err
		}

		c := clientFor(sess)
		if err := c.ExchangeCode(code); err != nil {
			return err
		}
		if _, err := await(c, &sess); err != nil {
			return err
		}
		saveSession(sess)
		fmt.Println("Signed in")
		return nil
	},
}

var syncSignOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and discard the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := c.SignOut(); err != nil {
			return err
		}
		if _, err := await(c, &sess); err != nil {
			return err
		}
		if err := settings.Remove(sessionPath()); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

var syncLsCmd = &cobra.Command{
	Use:   "ls [folderID]",
	Short: "List a remote folder (no argument lists the root)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		folderID := ""
		if len(args) == 1 {
			folderID = args[0]
		}
		if err := c.TraverseFolder(folderID); err != nil {
			return err
		}
		ev, err := await(c, &sess)
		if err != nil {
			return err
		}
		for _, e := range ev.Entries {
			kind := "file"
			if e.Folder {
				kind = "dir"
			}
			fmt.Printf("%-6s %-28s %s\n", kind, e.ID, e.Name)
		}
		return nil
	},
}

var syncMkdirCmd = &cobra.Command{
	Use:   "mkdir <name> [parentID]",
	Short: "Create a remote folder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		parentID := ""
		if len(args) == 2 {
			parentID = args[1]
		}
		if err := c.CreateFolder(args[0], parentID); err != nil {
			return err
		}
		ev, err := await(c, &sess)
		if err != nil {
			return err
		}
		fmt.Println(ev.ItemID)
		return nil
	},
}

var syncUploadCmd = &cobra.Command{
	Use:   "upload <file> [remoteName] [folderID]",
	Short: "Upload a file to OneDrive",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		remoteName := filepath.Base(args[0])
		if len(args) >= 2 {
			remoteName = args[1]
		}
		folderID := sess.FolderID
		if len(args) == 3 {
			folderID = args[2]
		}

		if err := c.UploadFile(args[0], remoteName, folderID); err != nil {
			return err
		}
		ev, err := await(c, &sess)
		if err != nil {
			return err
		}

		sess.FileID = ev.ItemID
		sess.FileName = remoteName
		saveSession(sess)
		_ = store.AuditLogger().LogSuccess(audit.OpSyncUpload, remoteName)
		fmt.Printf("Uploaded %s (%s)\n", remoteName, ev.ItemID)
		return nil
	},
}

var syncDownloadCmd = &cobra.Command{
	Use:   "download <fileID> <destination>",
	Short: "Download a file from OneDrive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := c.DownloadFile(args[1], args[0]); err != nil {
			return err
		}
		if _, err := await(c, &sess); err != nil {
			return err
		}
		_ = store.AuditLogger().LogSuccess(audit.OpSyncDownload, args[0])
		fmt.Printf("Downloaded to %s\n", args[1])
		return nil
	},
}

var syncRmCmd = &cobra.Command{
	Use:   "rm <itemID>",
	Short: "Delete a remote file or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := c.DeleteItem(args[0]); err != nil {
			return err
		}
		if _, err := await(c, &sess); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var syncQuotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show remote storage quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := c.GetStorageInfo(); err != nil {
			return err
		}
		ev, err := await(c, &sess)
		if err != nil {
			return err
		}
		used := ev.StorageInfo.Quota - ev.StorageInfo.Available
		fmt.Printf("Quota:     %d bytes\n", ev.StorageInfo.Quota)
		fmt.Printf("Used:      %d bytes\n", used)
		fmt.Printf("Available: %d bytes\n", ev.StorageInfo.Available)
		return nil
	},
}

var syncWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, c, err := signedInSession()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := c.GetUserInfo(); err != nil {
			return err
		}
		ev, err := await(c, &sess)
		if err != nil {
			return err
		}
		if name, ok := ev.UserInfo["name"].(string); ok {
			fmt.Println(name)
		}
		if id, ok := ev.UserInfo["id"].(string); ok {
			fmt.Printf("id: %s\n", id)
		}
		return nil
	},
}

// codeFromArg accepts either a bare authorization code or the full redirect
// URL the browser ended up on.
func codeFromArg(arg string) (string, error) {
	if !strings.Contains(arg, "://") {
		return arg, nil
	}
	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	return onedrive.CodeFromRedirect(u)
}

func applyCredentialFlags(sess *settings.Session) {
	if syncClientID != "" {
		sess.ClientID = syncClientID
	}
	if syncClientSecret != "" {
		sess.ClientSecret = syncClientSecret
	}
	if sess.RedirectURI == "" || syncRedirectURI != "" {
		sess.RedirectURI = syncRedirectURI
	}
}
