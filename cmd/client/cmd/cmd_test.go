package cmd

import (
	"bytes"
	"strings"
	"testing"

	"auth-rotation/internal/apitest"
	"auth-rotation/internal/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, srv *apitest.Server, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--url", srv.URL, "--user", "alice", "--password", "password123"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestLoginCmd(t *testing.T) {
	srv := apitest.Start(t)
	out, err := run(t, srv, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as user-alice")
	assert.Len(t, srv.Audit.OfType(audit.EventTypeLoginSucceeded), 1)
}

func TestLoginCmd_BadPassword(t *testing.T) {
	srv := apitest.Start(t)
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--url", srv.URL, "--password", "wrong", "login"})
	assert.ErrorContains(t, root.Execute(), "invalid credentials")
}

func TestGetCmd(t *testing.T) {
	srv := apitest.Start(t)
	out, err := run(t, srv, "get")
	require.NoError(t, err)
	assert.Equal(t, "200 {\"data\":\"protected data for user-alice\"}\n", out)
}

func TestBurstCmd(t *testing.T) {
	srv := apitest.Start(t)
	out, err := run(t, srv, "burst", "-n", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "8 requests: 8 ok, 0 session expired, 0 refresh(es)")
}

func TestBurstCmd_RejectsZero(t *testing.T) {
	srv := apitest.Start(t)
	_, err := run(t, srv, "burst", "-n", "0")
	assert.Error(t, err)
}

func TestLogoutCmd_ReportsSessionExpiredOnce(t *testing.T) {
	srv := apitest.Start(t)
	out, err := run(t, srv, "logout")
	require.NoError(t, err)

	assert.Contains(t, out, "logged out")
	assert.Contains(t, out, "refresh after logout rejected")
	assert.Equal(t, 1, strings.Count(out, "session expired\n"))
	assert.Equal(t, 0, srv.Records.Len())
}

func TestLogoutCmd_NoCheck(t *testing.T) {
	srv := apitest.Start(t)
	out, err := run(t, srv, "logout", "--check=false")
	require.NoError(t, err)
	assert.Equal(t, "logged out\n", out)
}
