package onedrive

import "time"

// OpKind tags events with the logical operation they belong to, so a caller
// multiplexing several commands over one client can route results.
type OpKind int

const (
	OpSignIn OpKind = iota
	OpSignOut
	OpUserInfo
	OpStorageInfo
	OpRefreshToken
	OpTraverseFolder
	OpUpload
	OpDownload
	OpDeleteItem
	OpCreateFolder
)

var opNames = map[OpKind]string{
	OpSignIn:         "sign-in",
	OpSignOut:        "sign-out",
	OpUserInfo:       "user-info",
	OpStorageInfo:    "storage-info",
	OpRefreshToken:   "refresh-token",
	OpTraverseFolder: "traverse-folder",
	OpUpload:         "upload",
	OpDownload:       "download",
	OpDeleteItem:     "delete-item",
	OpCreateFolder:   "create-folder",
}

func (k OpKind) String() string {
	if n, ok := opNames[k]; ok {
		return n
	}
	return "unknown"
}

// EventType distinguishes the four things a running operation can report.
type EventType int

const (
	// EventSuccess carries the operation's result payload and marks its end.
	EventSuccess EventType = iota
	// EventProgress carries a transfer percentage for uploads and downloads.
	EventProgress
	// EventTokenChanged is emitted whenever sign-in or refresh installs new
	// tokens, so the caller can persist them.
	EventTokenChanged
	// EventError marks the end of a failed operation; Err is set.
	EventError
)

// Event is the single message type on the client's events channel. Which
// payload fields are meaningful depends on Type and Op.
type Event struct {
	Type EventType
	Op   OpKind

	// EventSuccess payloads.
	UserInfo    map[string]any // OpUserInfo
	StorageInfo *StorageInfo   // OpStorageInfo
	Entries     []DirEntry     // OpTraverseFolder
	ItemID      string         // OpUpload (new id), OpDownload/OpDeleteItem (acted-on id), OpCreateFolder (new id)
	Name        string         // OpUpload remote name

	// EventProgress payload, sent*100/total.
	Percent int64

	// EventTokenChanged payload.
	Token *Token

	// EventError payload.
	Err error
}

// Token is the credential triple shared with the persistence layer. Expires
// is the raw expiry; the client applies its own refresh margin when checking.
type Token struct {
	Access  string
	Refresh string
	Expires time.Time
}

// DirEntry is one listing entry, filtered to folders and explicitly typed
// files.
type DirEntry struct {
	ID     string
	Name   string
	Type   string
	Size   int64
	Folder bool
}

// StorageInfo is the remote quota report.
type StorageInfo struct {
	Quota     int64
	Available int64
}
