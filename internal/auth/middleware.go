// middleware.go

// Access-control gateway and session middleware.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MGallo-Code/dirshare/internal/web"
	"github.com/gofrs/uuid/v5"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const userIDKey contextKey = "user_id"
const sessionIDKey contextKey = "session_id"

// UserIDFromContext retrieves authenticated user's ID from context.
// Returns zero UUID and false if no session middleware has run.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// SessionIDFromContext retrieves the session id from context.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}

// WithSession returns ctx carrying the user and session ids.
func WithSession(ctx context.Context, userID uuid.UUID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// publicExact and publicPrefixes are the only paths reachable without a session.
var publicExact = map[string]bool{
	"/":            true,
	"/health":      true,
	"/favicon.ico": true,
}

var publicPrefixes = []string{
	"/auth/",
	"/public/",
	"/api/public/",
	"/s/",
	"/static/",
}

// IsPublicPath reports whether path bypasses the gateway. Everything else is protected.
func IsPublicPath(path string) bool {
	if publicExact[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// LoginURL is where the gateway sends unauthenticated requests.
const LoginURL = "/auth/login"

// Gateway classifies every request as public or protected. Protected requests
// need a valid session cookie; otherwise the client is redirected to the login
// page with a redirect parameter pointing back at the original path and query.
// An invalid session also clears the cookie. Evaluated fresh on every request.
func (h *AuthHandler) Gateway(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			web.LogDebug(r, "gateway redirect", "reason", "missing_session_cookie")
			redirectToLogin(w, r)
			return
		}

		userID, sessionID, err := h.validateCookie(r.Context(), c.Value)
		if err != nil {
			// A storage failure says nothing about the cookie, so it is kept.
			if !errors.Is(err, ErrSessionNotFound) {
				web.LogError(r, "gateway session validation failed", "error", err)
			} else {
				web.LogInfo(r, "gateway redirect", "reason", "invalid_session")
				ClearSessionCookie(w, h.CookieSecure)
			}
			redirectToLogin(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), userID, sessionID)))
	})
}

// RequireSession is the API flavour of the gateway: 401 JSON instead of a redirect.
// Used on JSON endpoints under public prefixes such as /auth/change-password.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			web.LogWarn(r, "require session failed", "reason", "missing_session_cookie")
			web.Unauthorized(w, "unauthorized")
			return
		}
		userID, sessionID, err := h.validateCookie(r.Context(), c.Value)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				web.InternalServerError(w, r, err)
				return
			}
			web.LogWarn(r, "require session failed", "reason", "invalid_session")
			ClearSessionCookie(w, h.CookieSecure)
			web.Unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), userID, sessionID)))
	})
}

// validateCookie maps a malformed token to ErrSessionNotFound so callers treat it like any stale cookie.
func (h *AuthHandler) validateCookie(ctx context.Context, token string) (uuid.UUID, string, error) {
	sessionID, err := SessionIDFromToken(token)
	if err != nil {
		return uuid.Nil, "", ErrSessionNotFound
	}
	userID, err := h.Svc.ValidateSession(ctx, sessionID)
	if err != nil {
		return uuid.Nil, "", err
	}
	return userID, sessionID, nil
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := LoginURL + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}
