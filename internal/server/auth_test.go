package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeIdentities is a test double for the IdentityLookup interface.
type fakeIdentities struct {
	// active is returned by Active when err is nil.
	active bool
	// err simulates a directory outage.
	err error
	// lastPrincipal records what the middleware passed in.
	lastPrincipal string
}

func (f *fakeIdentities) Active(_ context.Context, principal string) (bool, error) {
	f.lastPrincipal = principal
	return f.active, f.err
}

// TestAuthMiddleware_Disabled verifies that when no API key is configured
// all requests pass through without an Authorization header.
func TestAuthMiddleware_Disabled(t *testing.T) {
	t.Parallel()

	h := authMiddleware("", nil, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when auth disabled, got %d", w.Code)
	}
}

// TestAuthMiddleware_MissingHeader verifies that a request with no
// Authorization header receives 401 when auth is enabled.
func TestAuthMiddleware_MissingHeader(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", nil, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header on 401")
	}
}

// TestAuthMiddleware_WrongToken verifies that an incorrect Bearer token
// receives 401.
func TestAuthMiddleware_WrongToken(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", nil, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

// TestAuthMiddleware_CorrectToken verifies that a valid Bearer token
// passes through to the downstream handler.
func TestAuthMiddleware_CorrectToken(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", nil, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// TestAuthMiddleware_CaseInsensitiveScheme verifies that "bearer" (lowercase)
// is accepted as well as "Bearer".
func TestAuthMiddleware_CaseInsensitiveScheme(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", nil, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	req.Header.Set("Authorization", "bearer secret")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with lowercase bearer scheme, got %d", w.Code)
	}
}

// TestAuthMiddleware_ActivePrincipal verifies that an active principal with
// a valid token passes through the identity gate.
func TestAuthMiddleware_ActivePrincipal(t *testing.T) {
	t.Parallel()

	ids := &fakeIdentities{active: true}
	h := authMiddleware("secret", ids, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for active principal, got %d", w.Code)
	}
	if ids.lastPrincipal != "secret" {
		t.Errorf("expected lookup with presented token, got %q", ids.lastPrincipal)
	}
}

// TestAuthMiddleware_InactivePrincipal verifies that a valid token whose
// principal is disabled receives 403, not 401.
func TestAuthMiddleware_InactivePrincipal(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", &fakeIdentities{active: false}, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for inactive principal, got %d", w.Code)
	}
}

// TestAuthMiddleware_LookupFailure verifies that an identity directory
// outage fails closed with 503 rather than letting the request through.
func TestAuthMiddleware_LookupFailure(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", &fakeIdentities{err: errors.New("directory down")}, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 on lookup failure, got %d", w.Code)
	}
}

// TestAuthMiddleware_LookupSkippedOnBadToken verifies that the identity gate
// never runs for a rejected token.
func TestAuthMiddleware_LookupSkippedOnBadToken(t *testing.T) {
	t.Parallel()

	ids := &fakeIdentities{active: true}
	h := authMiddleware("secret", ids, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if ids.lastPrincipal != "" {
		t.Error("identity lookup must not run for an invalid token")
	}
}

// TestBearerToken verifies the bearerToken extraction helper.
func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got := bearerToken(req)
		if got != tc.want {
			t.Errorf("header=%q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
