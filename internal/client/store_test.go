package client

import (
	"testing"
	"time"

	"auth-rotation/internal/config"
	"auth-rotation/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueAccess(t *testing.T, now time.Time, ttl time.Duration) token.Issued {
	t.Helper()
	codec, err := token.NewCodec(config.AuthConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     ttl,
		RefreshTokenTTL:    time.Hour,
	})
	require.NoError(t, err)
	issued, err := codec.IssueAccess(now, "user-alice")
	require.NoError(t, err)
	return issued
}

func TestSessionStore_DecodesCredential(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issued := issueAccess(t, now, 30*time.Second)

	s := NewSessionStore()
	s.clock = func() time.Time { return now }
	assert.True(t, s.Expired(), "empty store counts as expired")

	s.SetAccessToken(issued.Token)
	assert.Equal(t, issued.Token, s.AccessToken())
	assert.Equal(t, "user-alice", s.Subject())
	exp, ok := s.ExpiresAt()
	require.True(t, ok)
	assert.True(t, exp.Equal(issued.ExpiresAt))

	assert.False(t, s.Expired())
	assert.False(t, s.ExpiringWithin(10*time.Second))
	assert.True(t, s.ExpiringWithin(30*time.Second))

	s.clock = func() time.Time { return now.Add(31 * time.Second) }
	assert.True(t, s.Expired())
}

func TestSessionStore_LenientOnUndecodable(t *testing.T) {
	s := NewSessionStore()
	s.SetAccessToken("opaque")

	assert.Equal(t, "opaque", s.AccessToken())
	_, ok := s.ExpiresAt()
	assert.False(t, ok)
	assert.True(t, s.Expired(), "unknown expiry counts as expired")

	s.Clear()
	assert.Empty(t, s.AccessToken())
}

func TestSessionStore_InvalidateNotifiesOncePerSubscriber(t *testing.T) {
	s := NewSessionStore()
	s.SetAccessToken("opaque")

	a, cancelA := s.Subscribe()
	defer cancelA()
	b, cancelB := s.Subscribe()
	cancelB()

	s.Invalidate()
	s.Invalidate()

	assert.Empty(t, s.AccessToken())
	select {
	case <-a:
	default:
		t.Fatal("subscriber not notified")
	}
	select {
	case <-a:
		t.Fatal("pending notifications must coalesce")
	default:
	}
	select {
	case <-b:
		t.Fatal("cancelled subscriber notified")
	default:
	}
}
