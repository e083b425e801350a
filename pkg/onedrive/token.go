package onedrive

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type grantKind int

const (
	codeGrant grantKind = iota
	refreshGrant
)

// CodeFromRedirect extracts the authorization code from the redirect URL
// the authorize endpoint sends the user back to. A redirect carrying an
// error_description means the user or the service denied authorization.
func CodeFromRedirect(u *url.URL) (string, error) {
	q := u.Query()
	if code := q.Get("code"); code != "" {
		return code, nil
	}
	if desc := q.Get("error_description"); desc != "" {
		return "", &AuthorizationError{Description: desc}
	}
	return "", &ProtocolError{Message: "redirect carries neither code nor error_description"}
}

// ExchangeCode posts the authorization code for tokens. On success the
// client is signed in; the events channel carries a token change followed
// by the sign-in result.
func (c *Client) ExchangeCode(code string) error {
	return c.startUnauthenticated(StateSigningIn, func() {
		tok, err := c.exchangeCode(code)
		if err != nil {
			c.fail(OpSignIn, err)
			return
		}
		c.mu.Lock()
		c.token = tok
		c.signedIn = true
		c.state = StateIdle
		c.mu.Unlock()
		c.emit(Event{Type: EventTokenChanged, Op: OpSignIn, Token: &tok})
		c.emit(Event{Type: EventSuccess, Op: OpSignIn})
	})
}

// RefreshToken forces a token refresh outside of any other operation.
func (c *Client) RefreshToken() error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.signedIn {
		c.mu.Unlock()
		return ErrNotSignedIn
	}
	c.state = StateRefreshingToken
	c.pending = nil
	c.mu.Unlock()
	go c.refreshAndResume(OpRefreshToken)
	return nil
}

// SignOut requests remote sign-out and clears the local session.
func (c *Client) SignOut() error {
	return c.startUnauthenticated(StateSigningOut, func() {
		u := c.authBase + "/oauth20_logout.srf?" + url.Values{
			"client_id":    {c.cfg.ClientID},
			"redirect_uri": {c.cfg.RedirectURI},
		}.Encode()
		resp, err := c.httpc.Get(u)
		if err != nil {
			c.fail(OpSignOut, fmt.Errorf("onedrive: sign-out request: %w", err))
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 400 {
			c.fail(OpSignOut, &TransportError{Status: resp.StatusCode})
			return
		}
		c.mu.Lock()
		c.signedIn = false
		c.token = Token{}
		c.state = StateIdle
		c.mu.Unlock()
		c.emit(Event{Type: EventSuccess, Op: OpSignOut})
	})
}

func (c *Client) exchangeCode(code string) (Token, error) {
	return c.postTokenFormWith(url.Values{
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"client_secret": {c.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
	})
}

// postTokenForm runs the refresh-token grant with the stored refresh token.
func (c *Client) postTokenForm(kind grantKind) (Token, error) {
	if kind != refreshGrant {
		return Token{}, &ProtocolError{Message: "unsupported grant"}
	}
	c.mu.Lock()
	refresh := c.token.Refresh
	c.mu.Unlock()
	return c.postTokenFormWith(url.Values{
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refresh},
		"grant_type":    {"refresh_token"},
	})
}

// postTokenFormWith posts a form-encoded grant to the token endpoint and
// parses the credential triple. Expires is the wall-clock time the returned
// access token lapses; the refresh margin is applied at use, not here.
func (c *Client) postTokenFormWith(form url.Values) (Token, error) {
	issued := c.now()
	resp, err := c.httpc.Post(
		c.authBase+"/oauth20_token.srf",
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return Token{}, fmt.Errorf("onedrive: token request: %w", err)
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return Token{}, err
	}

	access, _ := obj["access_token"].(string)
	refresh, _ := obj["refresh_token"].(string)
	expiresIn, okExp := obj["expires_in"].(float64)
	if access == "" || !okExp {
		return Token{}, &ProtocolError{Message: "token response missing access_token or expires_in"}
	}
	return Token{
		Access:  access,
		Refresh: refresh,
		Expires: issued.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// decodeObject consumes a response expected to carry a JSON object. Non-2xx
// statuses become TransportError with the service's error code and message
// when the body supplied them; 2xx bodies that are not JSON objects become
// ProtocolError.
func decodeObject(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("onedrive: read response: %w", err)
	}

	var obj map[string]any
	jsonErr := json.Unmarshal(body, &obj)

	if resp.StatusCode >= 400 {
		te := &TransportError{Status: resp.StatusCode}
		if jsonErr == nil {
			if e, ok := obj["error"].(map[string]any); ok {
				te.Code, _ = e["code"].(string)
				te.Message, _ = e["message"].(string)
			}
		}
		return nil, te
	}
	if jsonErr != nil {
		return nil, &ProtocolError{Message: "response is not a JSON object"}
	}
	return obj, nil
}
