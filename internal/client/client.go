package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"auth-rotation/internal/autherr"
	"auth-rotation/internal/wire"
)

// Client talks to the session API. The refresh credential lives only in the
// cookie jar; the access credential lives only in the SessionStore.
type Client struct {
	base  *url.URL
	http  *http.Client
	store *SessionStore
	coord *Coordinator
	log   *slog.Logger
}

type Option func(*options)

type options struct {
	transport http.RoundTripper
	timeout   time.Duration
	log       *slog.Logger
}

// WithTransport sets the transport underneath the Coordinator.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q: scheme and host required", baseURL)
	}

	o := options{transport: http.DefaultTransport, timeout: 30 * time.Second, log: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	c := &Client{base: base, store: NewSessionStore(), log: o.log}
	c.coord = NewCoordinator(c.store, o.transport, func() Refresher {
		return RefresherFunc(c.refreshCall)
	}, WithCoordinatorLogger(o.log))
	c.http = &http.Client{Transport: c.coord, Jar: jar, Timeout: o.timeout}
	return c, nil
}

func (c *Client) Store() *SessionStore { return c.store }

func (c *Client) Coordinator() *Coordinator { return c.coord }

// SessionInvalidated subscribes to the session-invalidated notification.
func (c *Client) SessionInvalidated() (<-chan struct{}, func()) { return c.store.Subscribe() }

// Login authenticates and stores the access credential. The refresh
// credential is captured by the cookie jar.
func (c *Client) Login(ctx context.Context, username, password string) (wire.TokenResponse, error) {
	var out wire.TokenResponse
	if err := c.call(ctx, http.MethodPost, wire.PathLogin, wire.LoginRequest{Username: username, Password: password}, &out); err != nil {
		return wire.TokenResponse{}, fmt.Errorf("login: %w", err)
	}
	if out.AccessToken == "" {
		return wire.TokenResponse{}, fmt.Errorf("login: %w: empty access token", ErrMalformedResponse)
	}
	c.store.SetAccessToken(out.AccessToken)
	c.coord.MarkAuthenticated()
	c.log.Debug("logged in", "subject", c.store.Subject())
	return out, nil
}

// Refresh forces a refresh through the Coordinator, joining one already in flight.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.coord.Refresh(ctx)
}

// Logout clears local state and asks the server to drop the refresh record.
// A refresh in flight is fenced off first, so the server sees the newest
// refresh credential. Transport failures are returned but local state is
// cleared regardless.
func (c *Client) Logout(ctx context.Context) error {
	err := c.coord.Reset(ctx)
	c.store.Clear()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	var out wire.LogoutResponse
	if err := c.call(ctx, http.MethodPost, wire.PathLogout, nil, &out); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Do sends req through the Coordinator.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Get issues a GET for path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Protected fetches the protected resource and returns its payload.
func (c *Client) Protected(ctx context.Context) (string, error) {
	var out wire.ProtectedResponse
	if err := c.call(ctx, http.MethodGet, wire.PathProtected, nil, &out); err != nil {
		return "", err
	}
	return out.Data, nil
}

// refreshCall is the raw refresh request. The refresh path is excluded from
// the Coordinator, so this never recurses.
func (c *Client) refreshCall(ctx context.Context) (string, error) {
	var out wire.TokenResponse
	if err := c.call(ctx, http.MethodPost, wire.PathRefresh, nil, &out); err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	return out.AccessToken, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

// statusError maps an error body to its autherr sentinel when the code is known.
func statusError(resp *http.Response) error {
	var e wire.ErrorResponse
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(b, &e) == nil {
		if sentinel := autherr.FromCode(e.Error); sentinel != nil {
			return fmt.Errorf("%w (status %d)", sentinel, resp.StatusCode)
		}
	}
	return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
}

// IsSessionExpired reports whether err came from a failed refresh.
func IsSessionExpired(err error) bool { return errors.Is(err, ErrSessionExpired) }
