// Package onedrive is an event-driven client for the OneDrive Live API used
// to move backup files to and from remote storage.
//
// The client is a state machine with at most one logical operation in
// flight. Operation methods validate their preconditions synchronously and
// return ErrBusy or ErrNotSignedIn without touching the network; once
// launched, an operation reports exclusively through the Events channel and
// always finishes by returning the client to the idle state.
//
// When the cached access token is within a minute of expiry, the operation
// is captured as the single pending operation, a token refresh runs first,
// and the operation is then replayed with the fresh token. The refresh and
// the replay are strictly serialized; the client is never observable as
// idle between them.
package onedrive

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Authorization scopes requested at sign-in.
var scopes = []string{"wl.signin", "wl.offline_access", "wl.skydrive_update", "wl.skydrive"}

const (
	defaultAuthBase = "https://login.live.com"
	defaultAPIBase  = "https://apis.live.net/v5.0"

	// Tokens within this margin of expiry are refreshed before use.
	refreshMargin = 60 * time.Second
)

// State is the client's position in its operation lifecycle.
type State int

const (
	StateIdle State = iota
	StateSigningIn
	StateSigningOut
	StateGettingUserInfo
	StateRefreshingToken
	StateTraversingFolder
	StateUploadingFile
	StateDownloadingFile
	StateDeletingItem
	StateGettingStorageInfo
	StateCreatingFolder
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateSigningIn:          "signing-in",
	StateSigningOut:         "signing-out",
	StateGettingUserInfo:    "getting-user-info",
	StateRefreshingToken:    "refreshing-token",
	StateTraversingFolder:   "traversing-folder",
	StateUploadingFile:      "uploading-file",
	StateDownloadingFile:    "downloading-file",
	StateDeletingItem:       "deleting-item",
	StateGettingStorageInfo: "getting-storage-info",
	StateCreatingFolder:     "creating-folder",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Config identifies the registered application.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Client is an event-driven OneDrive session. Create with NewClient; the
// zero value is not usable.
type Client struct {
	cfg      Config
	httpc    *http.Client
	authBase string
	apiBase  string
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    State
	signedIn bool
	token    Token
	pending  *pendingOp

	events chan Event
}

// Option adjusts a Client at construction time.
type Option func(*Client)

// WithHTTPClient substitutes the transport. The client disables automatic
// redirect following on whatever transport it is given; downloads handle
// their single redirect hop themselves.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithBaseURLs points the client at alternative authorization and API
// origins.
func WithBaseURLs(authBase, apiBase string) Option {
	return func(c *Client) {
		c.authBase = authBase
		c.apiBase = apiBase
	}
}

// WithLogger substitutes the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient returns an idle, signed-out client.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:      cfg,
		authBase: defaultAuthBase,
		apiBase:  defaultAPIBase,
		log:      slog.Default(),
		now:      time.Now,
		events:   make(chan Event, 64),
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpc == nil {
		c.httpc = &http.Client{}
	}
	// One redirect hop on download is followed by hand; everything else
	// treats a redirect as a plain response.
	c.httpc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// Events is the stream of success, progress, token-change and error events.
// The channel is buffered; an undrained channel eventually blocks the
// in-flight operation.
func (c *Client) Events() <-chan Event {
	return c.events
}

// AuthCodeURL is the browser destination that starts the authorization
// flow. The redirect back carries either a code or an error_description
// query parameter; see CodeFromRedirect.
func (c *Client) AuthCodeURL() string {
	oc := oauth2.Config{
		ClientID:    c.cfg.ClientID,
		RedirectURL: c.cfg.RedirectURI,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: c.authBase + "/oauth20_authorize.srf",
		},
	}
	return oc.AuthCodeURL("")
}

// SetToken restores a persisted session and marks the client signed in.
func (c *Client) SetToken(access, refresh string, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = Token{Access: access, Refresh: refresh, Expires: expires}
	c.signedIn = true
}

// Token returns the current credential triple.
func (c *Client) Token() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SignedIn reports whether the client holds a session.
func (c *Client) SignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signedIn
}

// Busy reports whether an operation is in flight.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateIdle
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// pendingOp captures one operation while a token refresh runs in its place.
// Exactly one can be pending, and it is consumed exactly once.
type pendingOp struct {
	kind  OpKind
	state State
	run   func()
}

// start is the common entry for authorized operations: reject when busy or
// signed out, intercept for refresh when the token is stale, otherwise
// launch the operation body on its own goroutine.
func (c *Client) start(s State, op OpKind, p pendingOp, run func()) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.signedIn {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	if c.staleToken() {
		p.run = run
		c.pending = &p
		c.state = StateRefreshingToken
		c.mu.Unlock()
		c.log.Debug("token near expiry, refreshing first", "op", op.String())
		go c.refreshAndResume(op)
		return nil
	}
	c.state = s
	c.mu.Unlock()
	go run()
	return nil
}

// startUnauthenticated is the entry for sign-in and sign-out: only the busy
// check applies.
func (c *Client) startUnauthenticated(s State, run func()) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = s
	c.mu.Unlock()
	go run()
	return nil
}

// staleToken reports whether the access token is expired or within the
// refresh margin. Callers hold c.mu.
func (c *Client) staleToken() bool {
	return !c.now().Before(c.token.Expires.Add(-refreshMargin))
}

// refreshAndResume exchanges the refresh token and then replays the pending
// operation, moving directly from the refreshing state into the operation's
// own state so no other caller can slip in between.
func (c *Client) refreshAndResume(op OpKind) {
	tok, err := c.postTokenForm(refreshGrant)
	if err != nil {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
		c.fail(op, err)
		return
	}

	c.mu.Lock()
	c.token = tok
	p := c.pending
	c.pending = nil
	if p == nil {
		// Explicit RefreshToken call, nothing to resume.
		c.state = StateIdle
		c.mu.Unlock()
		c.emit(Event{Type: EventTokenChanged, Op: OpRefreshToken, Token: &tok})
		c.emit(Event{Type: EventSuccess, Op: OpRefreshToken, Token: &tok})
		return
	}
	c.state = p.state
	c.mu.Unlock()

	c.emit(Event{Type: EventTokenChanged, Op: p.kind, Token: &tok})
	c.log.Debug("token refreshed, resuming", "op", p.kind.String())
	p.run()
}

// succeed returns the client to idle and delivers the result event.
func (c *Client) succeed(ev Event) {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	ev.Type = EventSuccess
	c.emit(ev)
}

// fail returns the client to idle and delivers the error event tagged with
// the operation it ends.
func (c *Client) fail(op OpKind, err error) {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.log.Warn("operation failed", "op", op.String(), "error", err)
	c.emit(Event{Type: EventError, Op: op, Err: err})
}

func (c *Client) emit(ev Event) {
	c.events <- ev
}
