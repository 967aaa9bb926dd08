// Package apitest runs the session API in-process for tests of its callers.
package apitest

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"auth-rotation/internal/audit"
	"auth-rotation/internal/config"
	"auth-rotation/internal/httpapi"
	"auth-rotation/internal/refreshstore"
	"auth-rotation/internal/session"
	"auth-rotation/internal/token"
	"auth-rotation/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	AccessTTL  = 10 * time.Second
	RefreshTTL = time.Hour
)

// Clock is a settable time source shared by the authority and the record store.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type Server struct {
	URL     string
	Clock   *Clock
	Records *refreshstore.MemoryStore
	Audit   *audit.MemoryRepo
}

// Start serves the API with the demo account on an httptest server that is
// closed when t finishes.
func Start(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &Clock{now: time.Now().Truncate(time.Second)}
	codec, err := token.NewCodec(config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     AccessTTL,
		RefreshTokenTTL:    RefreshTTL,
	})
	require.NoError(t, err)
	dir, err := users.NewMemoryDirectory(bcrypt.MinCost, users.DemoAccounts()...)
	require.NoError(t, err)

	records := refreshstore.NewMemoryStore().WithClock(clock.Now)
	repo := audit.NewMemoryRepo()
	authority, err := session.NewAuthority(codec, records, dir, session.Options{
		Clock: clock.Now,
		Audit: audit.NewService(repo),
	})
	require.NoError(t, err)

	r := gin.New()
	httpapi.Register(r, httpapi.Handlers{
		Session:    authority,
		Cookie:     config.CookieConfig{Name: "refresh_token"},
		RefreshTTL: RefreshTTL,
		Records:    records,
		Audit:      repo,
	}, false)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &Server{URL: srv.URL, Clock: clock, Records: records, Audit: repo}
}
