package onedrive

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// apiURL builds an authorized resource URL. The Live API expects the access
// token as a query parameter rather than an Authorization header; this is a
// remote-format constraint.
func (c *Client) apiURL(path string, extra url.Values) string {
	c.mu.Lock()
	access := c.token.Access
	c.mu.Unlock()

	q := url.Values{"access_token": {access}}
	for k, vs := range extra {
		q[k] = vs
	}
	return c.apiBase + "/" + path + "?" + q.Encode()
}

// GetUserInfo fetches the signed-in user's profile object.
func (c *Client) GetUserInfo() error {
	return c.start(StateGettingUserInfo, OpUserInfo,
		pendingOp{kind: OpUserInfo, state: StateGettingUserInfo},
		c.doGetUserInfo)
}

func (c *Client) doGetUserInfo() {
	obj, err := c.getObject(c.apiURL("me", nil))
	if err != nil {
		c.fail(OpUserInfo, err)
		return
	}
	c.succeed(Event{Op: OpUserInfo, UserInfo: obj})
}

// GetStorageInfo fetches the remote quota report.
func (c *Client) GetStorageInfo() error {
	return c.start(StateGettingStorageInfo, OpStorageInfo,
		pendingOp{kind: OpStorageInfo, state: StateGettingStorageInfo},
		c.doGetStorageInfo)
}

func (c *Client) doGetStorageInfo() {
	obj, err := c.getObject(c.apiURL("me/skydrive/quota", nil))
	if err != nil {
		c.fail(OpStorageInfo, err)
		return
	}
	quota, okQ := obj["quota"].(float64)
	avail, okA := obj["available"].(float64)
	if !okQ || !okA {
		c.fail(OpStorageInfo, &ProtocolError{Message: "quota response missing quota or available"})
		return
	}
	c.succeed(Event{Op: OpStorageInfo, StorageInfo: &StorageInfo{
		Quota:     int64(quota),
		Available: int64(avail),
	}})
}

// TraverseFolder lists the children of folderID. An empty id addresses the
// store root, which is reported as a single synthetic entry for the root
// folder itself rather than a child listing. Children are filtered to
// folders and items explicitly typed as files.
func (c *Client) TraverseFolder(folderID string) error {
	return c.start(StateTraversingFolder, OpTraverseFolder,
		pendingOp{kind: OpTraverseFolder, state: StateTraversingFolder},
		func() { c.doTraverseFolder(folderID) })
}

func (c *Client) doTraverseFolder(folderID string) {
	if folderID == "" {
		obj, err := c.getObject(c.apiURL("me/skydrive", nil))
		if err != nil {
			c.fail(OpTraverseFolder, err)
			return
		}
		id, _ := obj["id"].(string)
		name, _ := obj["name"].(string)
		if id == "" {
			c.fail(OpTraverseFolder, &ProtocolError{Message: "root folder response missing id"})
			return
		}
		c.succeed(Event{Op: OpTraverseFolder, Entries: []DirEntry{
			{ID: id, Name: name, Type: "folder", Folder: true},
		}})
		return
	}

	obj, err := c.getObject(c.apiURL(folderID+"/files", nil))
	if err != nil {
		c.fail(OpTraverseFolder, err)
		return
	}
	data, ok := obj["data"].([]any)
	if !ok {
		c.fail(OpTraverseFolder, &ProtocolError{Message: "listing response missing data array"})
		return
	}

	var entries []DirEntry
	for _, raw := range data {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := item["type"].(string)
		if typ != "folder" && typ != "file" {
			continue
		}
		e := DirEntry{Type: typ, Folder: typ == "folder"}
		e.ID, _ = item["id"].(string)
		e.Name, _ = item["name"].(string)
		if size, ok := item["size"].(float64); ok {
			e.Size = int64(size)
		}
		entries = append(entries, e)
	}
	c.succeed(Event{Op: OpTraverseFolder, Entries: entries})
}

// UploadFile streams the file at localPath to remoteName under folderID
// (empty id means the root). Progress events carry sent*100/total.
func (c *Client) UploadFile(localPath, remoteName, folderID string) error {
	return c.start(StateUploadingFile, OpUpload,
		pendingOp{kind: OpUpload, state: StateUploadingFile},
		func() { c.doUploadPath(localPath, remoteName, folderID) })
}

// UploadFrom streams an already open file. The file is rewound before the
// transfer, including on replay after a token refresh.
func (c *Client) UploadFrom(f *os.File, remoteName, folderID string) error {
	return c.start(StateUploadingFile, OpUpload,
		pendingOp{kind: OpUpload, state: StateUploadingFile},
		func() { c.doUploadFile(f, remoteName, folderID) })
}

// UploadData uploads an in-memory buffer.
func (c *Client) UploadData(data []byte, remoteName, folderID string) error {
	return c.start(StateUploadingFile, OpUpload,
		pendingOp{kind: OpUpload, state: StateUploadingFile},
		func() { c.doUpload(bytes.NewReader(data), int64(len(data)), remoteName, folderID) })
}

func (c *Client) doUploadPath(localPath, remoteName, folderID string) {
	f, err := os.Open(localPath)
	if err != nil {
		c.fail(OpUpload, fmt.Errorf("onedrive: open %s: %w", localPath, err))
		return
	}
	defer f.Close()
	c.doUploadFile(f, remoteName, folderID)
}

func (c *Client) doUploadFile(f *os.File, remoteName, folderID string) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.fail(OpUpload, fmt.Errorf("onedrive: rewind %s: %w", f.Name(), err))
		return
	}
	info, err := f.Stat()
	if err != nil {
		c.fail(OpUpload, fmt.Errorf("onedrive: stat %s: %w", f.Name(), err))
		return
	}
	c.doUpload(f, info.Size(), remoteName, folderID)
}

func (c *Client) doUpload(body io.Reader, total int64, remoteName, folderID string) {
	path := "me/skydrive/files/" + remoteName
	if folderID != "" {
		path = folderID + "/files/" + remoteName
	}
	u := c.apiURL(path, nil)

	pr := &progressReader{r: body, total: total, report: func(pct int64) {
		c.emit(Event{Type: EventProgress, Op: OpUpload, Name: remoteName, Percent: pct})
	}}
	req, err := http.NewRequest(http.MethodPut, u, pr)
	if err != nil {
		c.fail(OpUpload, fmt.Errorf("onedrive: build upload request: %w", err))
		return
	}
	req.ContentLength = total

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.fail(OpUpload, fmt.Errorf("onedrive: upload request: %w", err))
		return
	}
	obj, err := decodeObject(resp)
	if err != nil {
		c.fail(OpUpload, err)
		return
	}
	id, _ := obj["id"].(string)
	if id == "" {
		c.fail(OpUpload, &ProtocolError{Message: "upload response missing item id"})
		return
	}
	c.log.Info("uploaded file", "name", remoteName, "id", id)
	c.succeed(Event{Op: OpUpload, Name: remoteName, ItemID: id})
}

// DownloadFile fetches fileID into a freshly created local file. The
// destination is created before any bytes arrive and is left truncated on
// failure.
func (c *Client) DownloadFile(localPath, fileID string) error {
	return c.start(StateDownloadingFile, OpDownload,
		pendingOp{kind: OpDownload, state: StateDownloadingFile},
		func() { c.doDownloadPath(localPath, fileID) })
}

// DownloadTo streams fileID into w.
func (c *Client) DownloadTo(w io.Writer, fileID string) error {
	return c.start(StateDownloadingFile, OpDownload,
		pendingOp{kind: OpDownload, state: StateDownloadingFile},
		func() { c.doDownload(w, fileID) })
}

func (c *Client) doDownloadPath(localPath, fileID string) {
	f, err := os.Create(localPath)
	if err != nil {
		c.fail(OpDownload, fmt.Errorf("onedrive: create %s: %w", localPath, err))
		return
	}
	defer f.Close()
	c.doDownload(f, fileID)
}

// doDownload issues the content GET and follows at most one redirect hop.
// The hop is the same logical operation, so the busy and auth preamble does
// not run again.
func (c *Client) doDownload(w io.Writer, fileID string) {
	u := c.apiURL(fileID+"/content", url.Values{"download": {"true"}})

	resp, err := c.httpc.Get(u)
	if err != nil {
		c.fail(OpDownload, fmt.Errorf("onedrive: download request: %w", err))
		return
	}
	if loc := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 && loc != "" {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		resp, err = c.httpc.Get(loc)
		if err != nil {
			c.fail(OpDownload, fmt.Errorf("onedrive: download redirect: %w", err))
			return
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		_, err := decodeObject(resp)
		if err == nil {
			err = &TransportError{Status: resp.StatusCode}
		}
		c.fail(OpDownload, err)
		return
	}

	pw := &progressWriter{w: w, total: resp.ContentLength, report: func(pct int64) {
		c.emit(Event{Type: EventProgress, Op: OpDownload, ItemID: fileID, Percent: pct})
	}}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		c.fail(OpDownload, fmt.Errorf("onedrive: download body: %w", err))
		return
	}
	c.succeed(Event{Op: OpDownload, ItemID: fileID})
}

// DeleteItem removes a remote file or folder by id.
func (c *Client) DeleteItem(id string) error {
	return c.start(StateDeletingItem, OpDeleteItem,
		pendingOp{kind: OpDeleteItem, state: StateDeletingItem},
		func() { c.doDeleteItem(id) })
}

func (c *Client) doDeleteItem(id string) {
	req, err := http.NewRequest(http.MethodDelete, c.apiURL(id, nil), nil)
	if err != nil {
		c.fail(OpDeleteItem, fmt.Errorf("onedrive: build delete request: %w", err))
		return
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.fail(OpDeleteItem, fmt.Errorf("onedrive: delete request: %w", err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		c.fail(OpDeleteItem, &TransportError{Status: resp.StatusCode})
		return
	}
	c.succeed(Event{Op: OpDeleteItem, ItemID: id})
}

// CreateFolder makes a folder under parentID (empty id means the root) and
// reports the new folder's id.
func (c *Client) CreateFolder(name, parentID string) error {
	return c.start(StateCreatingFolder, OpCreateFolder,
		pendingOp{kind: OpCreateFolder, state: StateCreatingFolder},
		func() { c.doCreateFolder(name, parentID) })
}

func (c *Client) doCreateFolder(name, parentID string) {
	path := "me/skydrive"
	if parentID != "" {
		path = parentID
	}
	body := fmt.Sprintf(`{"name":%q}`, name)
	resp, err := c.httpc.Post(c.apiURL(path, nil), "application/json", strings.NewReader(body))
	if err != nil {
		c.fail(OpCreateFolder, fmt.Errorf("onedrive: create-folder request: %w", err))
		return
	}
	obj, err := decodeObject(resp)
	if err != nil {
		c.fail(OpCreateFolder, err)
		return
	}
	id, _ := obj["id"].(string)
	if id == "" {
		c.fail(OpCreateFolder, &ProtocolError{Message: "create-folder response missing id"})
		return
	}
	c.succeed(Event{Op: OpCreateFolder, Name: name, ItemID: id})
}

func (c *Client) getObject(u string) (map[string]any, error) {
	resp, err := c.httpc.Get(u)
	if err != nil {
		return nil, fmt.Errorf("onedrive: request: %w", err)
	}
	return decodeObject(resp)
}
