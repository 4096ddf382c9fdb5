package chi

import (
	"context"
	"errors"
	"net/http"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// SessionHeader carries the opaque session ID issued by /auth/login.
const SessionHeader = "X-Session-ID"

// exemptPaths are routes that bypass authentication.
var exemptPaths = map[string]struct{}{
	"/":              {},
	"/health":        {},
	"/metrics":       {},
	"/auth/register": {},
	"/auth/login":    {},
}

type userKey struct{}

// Authenticator resolves a session ID to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (domain.User, error)
}

// SessionMiddleware resolves the X-Session-ID header and puts the user into the request context.
// Requests without a valid session get 401, except on exempt paths.
func SessionMiddleware(auth Authenticator, onError func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := r.Header.Get(SessionHeader)
			if sessionID == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing "+SessionHeader+" header")
				return
			}

			user, err := auth.Authenticate(r.Context(), sessionID)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid or expired session")
					return
				}
				onError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated user.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}
