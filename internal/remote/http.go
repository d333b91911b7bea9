package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

// HTTPClient is a Client for a `taskboard serve` backend.
type HTTPClient struct {
	*identity
	baseURL *url.URL
	http    *http.Client
}

var (
	_ Client     = (*HTTPClient)(nil)
	_ ChangeFeed = (*HTTPClient)(nil)
)

// errorBody is the backend's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewHTTPClient returns a client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts Options) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote url %q: scheme must be http or https", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPClient{
		identity: newIdentity(opts, "[remote] "),
		baseURL:  u,
		http:     hc,
	}, nil
}

// URL returns the backend base URL.
func (c *HTTPClient) URL() string {
	return c.baseURL.String()
}

// GetSession returns the current session after confirming it with the
// backend. A session the backend rejects signs the client out.
func (c *HTTPClient) GetSession(ctx context.Context) (*Session, error) {
	sess := c.current()
	if sess == nil {
		return nil, nil
	}

	err := c.do(ctx, http.MethodGet, "/auth/v1/user", sess.AccessToken, nil, nil)
	if errors.Is(err, ErrUnauthorized) {
		c.set(EventSignedOut, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}
	return sess, nil
}

// SignUp registers an account and signs it in.
func (c *HTTPClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "signup", "/auth/v1/signup", email, password)
}

// SignInWithPassword signs in an existing account.
func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "signin", "/auth/v1/token?grant_type=password", email, password)
}

func (c *HTTPClient) authenticate(ctx context.Context, op, path, email, password string) (*Session, error) {
	creds := schema.Credentials{Email: email, Password: password}

	var sess Session
	if err := c.do(ctx, http.MethodPost, path, "", creds, &sess); err != nil {
		var aerr *AuthError
		if errors.As(err, &aerr) {
			aerr.Op = op
			return nil, aerr
		}
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	if sess.AccessToken == "" {
		return nil, fmt.Errorf("failed to %s: backend returned no access token", op)
	}

	c.set(EventSignedIn, &sess)
	return &sess, nil
}

// SignOut revokes the current session. The local session is dropped even
// if the backend cannot be reached.
func (c *HTTPClient) SignOut(ctx context.Context) error {
	token := c.token()
	var err error
	if token != "" {
		err = c.do(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
		if errors.Is(err, ErrUnauthorized) {
			err = nil
		}
	}
	c.set(EventSignedOut, nil)
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// Select returns every record in collection c owned by the caller.
func (c *HTTPClient) Select(ctx context.Context, coll schema.Collection) ([]schema.Record, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/rest/v1/"+string(coll), token, nil, &raw); err != nil {
		return nil, err
	}
	return schema.DecodeRecords(coll, raw)
}

// Insert stores rec in collection c and returns the stored record.
func (c *HTTPClient) Insert(ctx context.Context, coll schema.Collection, rec schema.Record) (schema.Record, error) {
	if rec.RecordCollection() != coll {
		return nil, fmt.Errorf("%w: %s record in %s", ErrRejected, rec.RecordCollection(), coll)
	}
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/rest/v1/"+string(coll), token, rec, &raw); err != nil {
		return nil, err
	}
	return schema.DecodeRecord(coll, raw)
}

// Update changes fields of record id in collection c.
func (c *HTTPClient) Update(ctx context.Context, coll schema.Collection, id string, fields schema.Fields) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, "/rest/v1/"+string(coll)+"/"+url.PathEscape(id), token, fields, nil)
}

// Delete removes record id from collection c.
func (c *HTTPClient) Delete(ctx context.Context, coll schema.Collection, id string) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/rest/v1/"+string(coll)+"/"+url.PathEscape(id), token, nil, nil)
}

func (c *HTTPClient) requireToken() (string, error) {
	token := c.token()
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}

// do sends one request. in is JSON-encoded as the body when non-nil; out
// receives the decoded response when non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// decodeError maps a backend error response onto the client's errors.
func decodeError(status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}

	switch body.Error {
	case CodeInvalidCredentials, CodeEmailTaken, CodeWeakPassword, CodeInvalidEmail:
		return authErrorFor("", body.Error, body.Message)
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, body.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body.Message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, body.Message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusMethodNotAllowed:
		return fmt.Errorf("%w: %s", ErrRejected, body.Message)
	default:
		return fmt.Errorf("backend returned %d: %s", status, body.Message)
	}
}

// Changes connects to the backend's realtime endpoint and streams row
// changes made by any client of the signed-in user.
func (c *HTTPClient) Changes(ctx context.Context) (<-chan Change, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}

	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path += "/realtime/v1"
	wsURL.RawQuery = url.Values{"access_token": {token}}.Encode()

	conn, _, err := websocket.Dial(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to change feed: %w", err)
	}

	changes := make(chan Change, 16)
	go func() {
		defer close(changes)
		defer conn.Close(websocket.StatusNormalClosure, "")

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Printf("Change feed closed: %v", err)
				}
				return
			}

			var change Change
			if err := json.Unmarshal(data, &change); err != nil {
				c.logger.Printf("Ignoring malformed change: %v", err)
				continue
			}
			if change.Type != "change" {
				continue
			}

			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, nil
}
