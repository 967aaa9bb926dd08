package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"auth-rotation/internal/wire"
)

type State int32

const (
	StateIdle State = iota
	StateAuthenticated
	StateRefreshing
	StateSessionExpired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateSessionExpired:
		return "session_expired"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Refresher performs one refresh call and returns the new access credential.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

type RefresherFunc func(ctx context.Context) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// flight is one refresh attempt. token and err are written before done closes.
type flight struct {
	done  chan struct{}
	epoch uint64
	token string
	err   error
}

// Coordinator attaches the access credential to outgoing requests and owns the
// refresh state machine.
//
// At most one refresh runs at a time. A request that sees a 401 either starts
// it or waits on the running one, then is replayed with its result. The
// refresher is resolved on first use so it may itself be built on top of the
// http.Client that uses this Coordinator.
type Coordinator struct {
	next    http.RoundTripper
	store   *SessionStore
	resolve func() Refresher
	log     *slog.Logger

	excluded []string

	refresherOnce sync.Once
	refresher     Refresher

	state     atomic.Int32
	refreshes atomic.Int64

	mu      sync.Mutex
	cur     *flight
	last    *flight
	settled uint64
	// epoch advances on Reset. A flight from an older epoch lands nowhere.
	epoch uint64
}

type CoordinatorOption func(*Coordinator)

// WithExcludedPaths replaces the paths that bypass the coordinator.
func WithExcludedPaths(paths ...string) CoordinatorOption {
	return func(c *Coordinator) { c.excluded = paths }
}

func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// DefaultExcludedPaths are the session endpoints. Attaching a stale credential
// to them, or refreshing on their 401, would deadlock the state machine.
func DefaultExcludedPaths() []string {
	return []string{wire.PathLogin, wire.PathRefresh, wire.PathLogout}
}

func NewCoordinator(store *SessionStore, next http.RoundTripper, refresher func() Refresher, opts ...CoordinatorOption) *Coordinator {
	if next == nil {
		next = http.DefaultTransport
	}
	c := &Coordinator{
		next:     next,
		store:    store,
		resolve:  refresher,
		log:      slog.Default(),
		excluded: DefaultExcludedPaths(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) State() State { return State(c.state.Load()) }

// Refreshes counts refresh calls started since construction.
func (c *Coordinator) Refreshes() int64 { return c.refreshes.Load() }

// MarkAuthenticated records a successful login.
func (c *Coordinator) MarkAuthenticated() { c.transition(StateAuthenticated) }

// Reset returns to Idle after logout. A refresh still in flight is fenced off:
// its result is discarded and its waiters get ErrLoggedOut. Reset waits for
// that refresh to land so the cookie jar holds the newest refresh credential
// before the caller asks the server to drop it.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.epoch++
	f := c.cur
	c.transition(StateIdle)
	c.mu.Unlock()

	if f == nil {
		return nil
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RoundTrip implements http.RoundTripper.
func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.isExcluded(req.URL.Path) {
		return c.next.RoundTrip(req)
	}

	body, err := readBody(req)
	if err != nil {
		return nil, err
	}

	sent, seen := c.snapshot()
	resp, err := c.next.RoundTrip(withCredential(req, body, sent))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	tok, err := c.await(req.Context(), sent, seen, false)
	if err != nil {
		return nil, err
	}
	c.log.Debug("replaying request", "path", req.URL.Path)
	return c.next.RoundTrip(withCredential(req, body, tok))
}

// Refresh runs (or joins) a refresh regardless of the current credential.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	return c.await(ctx, "", 0, true)
}

// snapshot returns the credential to send and the settle generation it belongs to.
func (c *Coordinator) snapshot() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.AccessToken(), c.settled
}

// await returns the credential to replay with. sent and seen describe the
// failed request. When the credential changed or a refresh settled after it
// was sent, that outcome is reused instead of refreshing again.
func (c *Coordinator) await(ctx context.Context, sent string, seen uint64, force bool) (string, error) {
	c.mu.Lock()
	if c.cur == nil && !force {
		tok := c.store.AccessToken()
		switch {
		case tok != "" && tok != sent:
			c.mu.Unlock()
			return tok, nil
		case seen != c.settled && c.last.err != nil:
			err := c.last.err
			c.mu.Unlock()
			return "", err
		}
	}
	f := c.cur
	if f == nil {
		f = &flight{done: make(chan struct{}), epoch: c.epoch}
		c.cur = f
		c.transition(StateRefreshing)
		c.refreshes.Add(1)
		// The refresh belongs to every waiter, not to the request that started it.
		go c.run(context.WithoutCancel(ctx), f)
	}
	c.mu.Unlock()

	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, f *flight) {
	tok, err := c.refresherFor().Refresh(ctx)
	if err == nil && tok == "" {
		err = fmt.Errorf("%w: empty access token", ErrMalformedResponse)
	}

	c.mu.Lock()
	switch {
	case f.epoch != c.epoch:
		c.log.Debug("refresh result discarded after logout")
		tok, err = "", ErrLoggedOut
	case err != nil:
		c.log.Debug("refresh failed", "err", err)
		c.transition(StateSessionExpired)
		c.store.Invalidate()
		tok, err = "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	default:
		c.store.SetAccessToken(tok)
		c.transition(StateAuthenticated)
	}
	f.token, f.err = tok, err
	c.cur, c.last = nil, f
	c.settled++
	c.mu.Unlock()
	close(f.done)
}

func (c *Coordinator) refresherFor() Refresher {
	c.refresherOnce.Do(func() {
		if c.resolve != nil {
			c.refresher = c.resolve()
		}
		if c.refresher == nil {
			c.refresher = RefresherFunc(func(context.Context) (string, error) {
				return "", errors.New("no refresher configured")
			})
		}
	})
	return c.refresher
}

func (c *Coordinator) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	if from != to {
		c.log.Debug("coordinator state", "from", from.String(), "to", to.String())
	}
}

func (c *Coordinator) isExcluded(path string) bool {
	for _, p := range c.excluded {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// readBody buffers the request body so the request can be replayed.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return b, nil
}

func withCredential(req *http.Request, body []byte, tok string) *http.Request {
	r := req.Clone(req.Context())
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		r.ContentLength = int64(len(body))
	}
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return r
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
