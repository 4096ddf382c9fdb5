package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/papernest/internal/domain"
)

type stubAuthenticator struct {
	users map[string]domain.User
	err   error
}

func (a *stubAuthenticator) Authenticate(_ context.Context, sessionID string) (domain.User, error) {
	if a.err != nil {
		return domain.User{}, a.err
	}
	u, ok := a.users[sessionID]
	if !ok {
		return domain.User{}, domain.ErrUnauthorized
	}
	return u, nil
}

func userEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"username": u.Username})
	})
}

func failOnError(t *testing.T) func(http.ResponseWriter, error) {
	return func(w http.ResponseWriter, err error) {
		t.Errorf("unexpected error callback: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func TestSessionMiddleware_MissingHeader_401(t *testing.T) {
	handler := SessionMiddleware(&stubAuthenticator{}, failOnError(t))(userEcho())

	req := httptest.NewRequest("GET", "/papers", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeUnauthorized {
		t.Errorf("error code: got %s, want %s", errResp.Code, codeUnauthorized)
	}
}

func TestSessionMiddleware_UnknownSession_401(t *testing.T) {
	handler := SessionMiddleware(&stubAuthenticator{}, failOnError(t))(userEcho())

	req := httptest.NewRequest("GET", "/papers", http.NoBody)
	req.Header.Set(SessionHeader, "expired")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown session: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_ValidSession_PutsUser(t *testing.T) {
	auth := &stubAuthenticator{users: map[string]domain.User{"s1": {ID: 7, Username: "ada"}}}
	handler := SessionMiddleware(auth, failOnError(t))(userEcho())

	req := httptest.NewRequest("GET", "/papers", http.NoBody)
	req.Header.Set(SessionHeader, "s1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("valid session: got %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["username"] != "ada" {
		t.Errorf("user not in context: %v", body)
	}
}

func TestSessionMiddleware_StoreFailure_UsesErrorCallback(t *testing.T) {
	called := false
	auth := &stubAuthenticator{err: errors.New("redis down")}
	handler := SessionMiddleware(auth, func(w http.ResponseWriter, _ error) {
		called = true
		w.WriteHeader(http.StatusInternalServerError)
	})(userEcho())

	req := httptest.NewRequest("GET", "/papers", http.NoBody)
	req.Header.Set(SessionHeader, "s1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called || rr.Code != http.StatusInternalServerError {
		t.Errorf("store failure: called=%v code=%d", called, rr.Code)
	}
}

func TestSessionMiddleware_ExemptPaths(t *testing.T) {
	handler := SessionMiddleware(&stubAuthenticator{}, failOnError(t))(userEcho())

	for _, path := range []string{"/", "/health", "/metrics", "/auth/register", "/auth/login"} {
		req := httptest.NewRequest("GET", path, http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("exempt path %s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}
