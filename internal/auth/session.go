// session.go

// Session token generation and cookie management.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// CookieName is the session cookie.
const CookieName = "auth_session"

// GenerateToken returns a 256-bit random session token (cookie value, base64url)
// and the session id derived from it.
func GenerateToken() (token string, sessionID string, err error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", fmt.Errorf("generating token with rand: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw[:])
	return token, hashToken(raw[:]), nil
}

// SessionIDFromToken maps a cookie value to its storage id.
// Only the hash is ever stored, so a dump of sessions/ yields no usable cookie.
func SessionIDFromToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty session token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decoding session token: %w", err)
	}
	if len(raw) != 32 {
		return "", errors.New("session token has wrong length")
	}
	return hashToken(raw), nil
}

func hashToken(raw []byte) string {
	sum := sha256.Sum256(raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// sessionIDFromRequest reads the cookie and returns the derived session id.
func sessionIDFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	id, err := SessionIDFromToken(c.Value)
	if err != nil {
		return "", false
	}
	return id, true
}

// SetSessionCookie writes auth_session with HttpOnly, SameSite=Lax, Path=/.
// Secure is off only for local plain-HTTP development.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearSessionCookie overwrites auth_session with MaxAge=-1 (sent as Max-Age=0) to trigger browser deletion.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
