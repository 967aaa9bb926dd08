package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auth-rotation/internal/autherr"
	"auth-rotation/internal/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    r,
	}
}

// backend accepts only "Bearer <valid>" and counts rejections.
type backend struct {
	mu       sync.Mutex
	valid    string
	rejected atomic.Int32
	seen     []string
}

func (b *backend) setValid(tok string) {
	b.mu.Lock()
	b.valid = tok
	b.mu.Unlock()
}

func (b *backend) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Body != nil {
		_, _ = io.ReadAll(r.Body)
	}
	h := r.Header.Get("Authorization")
	b.mu.Lock()
	b.seen = append(b.seen, h)
	ok := h == "Bearer "+b.valid
	b.mu.Unlock()
	if !ok {
		b.rejected.Add(1)
		return respond(r, http.StatusUnauthorized, `{"error":"invalid_access_token"}`), nil
	}
	return respond(r, http.StatusOK, h), nil
}

func newRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://api.test"+path, nil)
	require.NoError(t, err)
	return req
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestCoordinator_AttachesCredential(t *testing.T) {
	be := &backend{valid: "a1"}
	store := NewSessionStore()
	store.SetAccessToken("a1")
	c := NewCoordinator(store, be, nil)

	resp, err := c.RoundTrip(newRequest(t, wire.PathProtected))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer a1", readAll(t, resp))
	assert.Equal(t, int64(0), c.Refreshes())
}

func TestCoordinator_SendsUnauthenticatedWithoutCredential(t *testing.T) {
	var got []string
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = append(got, r.Header.Get("Authorization"))
		return respond(r, http.StatusOK, ""), nil
	})
	c := NewCoordinator(NewSessionStore(), next, nil)

	resp, err := c.RoundTrip(newRequest(t, "/public"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{""}, got)
}

func TestCoordinator_ConcurrentUnauthorizedRefreshOnce(t *testing.T) {
	const n = 16
	be := &backend{valid: "a2"}
	store := NewSessionStore()
	store.SetAccessToken("a1")

	release := make(chan struct{})
	var calls atomic.Int32
	c := NewCoordinator(store, be, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "a2", nil
		})
	})

	var wg sync.WaitGroup
	bodies := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.RoundTrip(newRequest(t, wire.PathProtected))
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			bodies[i] = string(b)
		}(i)
	}

	require.Eventually(t, func() bool { return be.rejected.Load() == n }, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateRefreshing, c.State())
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Refreshes())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Bearer a2", bodies[i])
	}
	assert.Equal(t, "a2", store.AccessToken())
	assert.Equal(t, StateAuthenticated, c.State())
}

func TestCoordinator_FailedRefreshRejectsAllAndNotifiesOnce(t *testing.T) {
	const n = 8
	be := &backend{valid: "never"}
	store := NewSessionStore()
	store.SetAccessToken("a1")
	invalidated, cancel := store.Subscribe()
	defer cancel()

	release := make(chan struct{})
	c := NewCoordinator(store, be, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			<-release
			return "", autherr.ErrInvalidRefreshCredential
		})
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.RoundTrip(newRequest(t, wire.PathProtected))
			if resp != nil {
				resp.Body.Close()
			}
			errs[i] = err
		}(i)
	}
	require.Eventually(t, func() bool { return be.rejected.Load() == n }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.ErrorIs(t, err, autherr.ErrInvalidRefreshCredential)
	}
	assert.Equal(t, int64(1), c.Refreshes())
	assert.Equal(t, StateSessionExpired, c.State())
	assert.Empty(t, store.AccessToken())

	select {
	case <-invalidated:
	default:
		t.Fatal("no session-invalidated notification")
	}
	select {
	case <-invalidated:
		t.Fatal("notified more than once")
	default:
	}
}

func TestCoordinator_LateUnauthorizedAfterFailureDoesNotRefreshAgain(t *testing.T) {
	store := NewSessionStore()
	store.SetAccessToken("a1")
	c := NewCoordinator(store, &backend{valid: "never"}, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			return "", autherr.ErrNoRefreshCredential
		})
	})

	sent, seen := c.snapshot()
	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)

	// A request sent before the failure settled reuses its outcome.
	_, err = c.await(context.Background(), sent, seen, false)
	assert.ErrorIs(t, err, autherr.ErrNoRefreshCredential)
	assert.Equal(t, int64(1), c.Refreshes())
}

func TestCoordinator_LaterUnauthorizedStartsNewCycle(t *testing.T) {
	be := &backend{valid: "a2"}
	store := NewSessionStore()
	store.SetAccessToken("a1")
	var calls atomic.Int32
	c := NewCoordinator(store, be, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "a2", nil
			}
			return "a3", nil
		})
	})

	resp, err := c.RoundTrip(newRequest(t, wire.PathProtected))
	require.NoError(t, err)
	assert.Equal(t, "Bearer a2", readAll(t, resp))

	be.setValid("a3")
	resp, err = c.RoundTrip(newRequest(t, wire.PathProtected))
	require.NoError(t, err)
	assert.Equal(t, "Bearer a3", readAll(t, resp))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCoordinator_StaleCredentialReplaysWithoutRefresh(t *testing.T) {
	be := &backend{valid: "a2"}
	store := NewSessionStore()
	store.SetAccessToken("a1")
	c := NewCoordinator(store, be, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			t.Error("refresh must not run")
			return "", errors.New("unexpected")
		})
	})

	sent, seen := c.snapshot()
	store.SetAccessToken("a2")

	tok, err := c.await(context.Background(), sent, seen, false)
	require.NoError(t, err)
	assert.Equal(t, "a2", tok)
	assert.Equal(t, int64(0), c.Refreshes())
}

func TestCoordinator_ExcludedPathsBypass(t *testing.T) {
	var auth []string
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		auth = append(auth, r.Header.Get("Authorization"))
		return respond(r, http.StatusUnauthorized, `{"error":"no_refresh_token"}`), nil
	})
	store := NewSessionStore()
	store.SetAccessToken("a1")
	c := NewCoordinator(store, next, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			t.Error("refresh must not run for excluded paths")
			return "", nil
		})
	})

	for _, p := range DefaultExcludedPaths() {
		resp, err := c.RoundTrip(newRequest(t, p))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, []string{"", "", ""}, auth)
	assert.Equal(t, int64(0), c.Refreshes())
}

func TestCoordinator_CustomExcludedPaths(t *testing.T) {
	var auth []string
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		auth = append(auth, r.Header.Get("Authorization"))
		return respond(r, http.StatusUnauthorized, ""), nil
	})
	store := NewSessionStore()
	store.SetAccessToken("a1")
	c := NewCoordinator(store, next, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) { return "", errors.New("no refresh") })
	}, WithExcludedPaths("/auth/token"))

	resp, err := c.RoundTrip(newRequest(t, "/auth/token"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{""}, auth)
	assert.Equal(t, int64(0), c.Refreshes())

	// The defaults no longer apply once replaced.
	_, err = c.RoundTrip(newRequest(t, wire.PathRefresh))
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int64(1), c.Refreshes())
}

func TestCoordinator_ResetDiscardsRefreshInFlight(t *testing.T) {
	store := NewSessionStore()
	store.SetAccessToken("a1")
	invalidated, cancel := store.Subscribe()
	defer cancel()

	release := make(chan struct{})
	c := NewCoordinator(store, &backend{}, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			<-release
			return "a2", nil
		})
	})
	c.MarkAuthenticated()

	refreshErr := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		refreshErr <- err
	}()
	require.Eventually(t, func() bool { return c.State() == StateRefreshing }, 2*time.Second, time.Millisecond)

	reset := make(chan error, 1)
	go func() { reset <- c.Reset(context.Background()) }()
	require.Eventually(t, func() bool { return c.State() == StateIdle }, 2*time.Second, time.Millisecond)
	select {
	case <-reset:
		t.Fatal("reset returned before the refresh landed")
	default:
	}
	store.Clear()
	close(release)

	require.NoError(t, <-reset)
	assert.ErrorIs(t, <-refreshErr, ErrLoggedOut)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, store.AccessToken())
	select {
	case <-invalidated:
		t.Fatal("discarded refresh must not notify")
	default:
	}
}

func TestCoordinator_ResetWithoutFlight(t *testing.T) {
	c := NewCoordinator(NewSessionStore(), &backend{}, nil)
	c.MarkAuthenticated()
	require.NoError(t, c.Reset(context.Background()))
	assert.Equal(t, StateIdle, c.State())
}

func TestCoordinator_ReplaysRequestBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer a2" {
			return respond(r, http.StatusUnauthorized, ""), nil
		}
		return respond(r, http.StatusOK, ""), nil
	})
	store := NewSessionStore()
	store.SetAccessToken("a1")
	c := NewCoordinator(store, next, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) { return "a2", nil })
	})

	req, err := http.NewRequest(http.MethodPost, "http://api.test/things", strings.NewReader(`{"x":1}`))
	require.NoError(t, err)
	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{`{"x":1}`, `{"x":1}`}, bodies)
}

func TestCoordinator_WaiterHonorsContext(t *testing.T) {
	store := NewSessionStore()
	release := make(chan struct{})
	defer close(release)
	c := NewCoordinator(store, &backend{}, func() Refresher {
		return RefresherFunc(func(context.Context) (string, error) {
			<-release
			return "a2", nil
		})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Refresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRefreshing, c.State())
}

func TestCoordinator_MissingRefresher(t *testing.T) {
	c := NewCoordinator(NewSessionStore(), &backend{}, nil)
	_, err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "session_expired", StateSessionExpired.String())
	assert.Equal(t, "State(9)", State(9).String())
}
