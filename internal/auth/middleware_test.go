package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"auth-rotation/internal/autherr"

	"github.com/gin-gonic/gin"
)

type verifierFunc func(string) (string, error)

func (f verifierFunc) VerifyAccess(tok string) (string, error) { return f(tok) }

func newRouter(v Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireAccessToken(v), func(c *gin.Context) {
		s, _ := Subject(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"subject": s})
	})
	return r
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body["error"]
}

func TestRequireAccessToken_Missing(t *testing.T) {
	r := newRouter(verifierFunc(func(string) (string, error) { return "u", nil }))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != autherr.CodeMissingAuth {
		t.Fatalf("expected 401 missing_auth, got %d %s", w.Code, w.Body.String())
	}
}

func TestRequireAccessToken_NotBearer(t *testing.T) {
	r := newRouter(verifierFunc(func(string) (string, error) { return "u", nil }))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Basic abc")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != autherr.CodeInvalidAccessToken {
		t.Fatalf("expected 401 invalid_access_token, got %d %s", w.Code, w.Body.String())
	}
}

func TestRequireAccessToken_Invalid(t *testing.T) {
	r := newRouter(verifierFunc(func(string) (string, error) {
		return "", fmt.Errorf("%w: expired", autherr.ErrInvalidAccessCredential)
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer stale")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != autherr.CodeInvalidAccessToken {
		t.Fatalf("expected 401 invalid_access_token, got %d %s", w.Code, w.Body.String())
	}
}

func TestRequireAccessToken_InjectsSubject(t *testing.T) {
	var got string
	r := newRouter(verifierFunc(func(tok string) (string, error) {
		got = tok
		return "user-alice", nil
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got != "good" {
		t.Fatalf("expected token passed through, got %q", got)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["subject"] != "user-alice" {
		t.Fatalf("expected subject in context, got %v", body)
	}
}
