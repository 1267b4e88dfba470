package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- GenerateToken ---

func TestGenerateToken(t *testing.T) {
	t.Run("session id is the hash of the token", func(t *testing.T) {
		token, id, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken returned error: %v", err)
		}

		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			t.Fatalf("token is not base64url: %v", err)
		}
		if len(raw) != 32 {
			t.Errorf("token length: expected 32 bytes, got %d", len(raw))
		}
		sum := sha256.Sum256(raw)
		if id != base64.RawURLEncoding.EncodeToString(sum[:]) {
			t.Error("session id does not match SHA-256 of token")
		}
	})

	t.Run("tokens are unique", func(t *testing.T) {
		a, _, _ := GenerateToken()
		b, _, _ := GenerateToken()
		if a == b {
			t.Error("two tokens should differ")
		}
	})
}

// --- SessionIDFromToken ---

func TestSessionIDFromToken(t *testing.T) {
	t.Run("round-trips GenerateToken", func(t *testing.T) {
		token, id, _ := GenerateToken()
		got, err := SessionIDFromToken(token)
		if err != nil {
			t.Fatalf("SessionIDFromToken: %v", err)
		}
		if got != id {
			t.Errorf("expected %s, got %s", id, got)
		}
	})

	for name, bad := range map[string]string{
		"empty":         "",
		"not base64":    "!!!not-base64!!!",
		"wrong length":  base64.RawURLEncoding.EncodeToString([]byte("short")),
		"padded base64": base64.URLEncoding.EncodeToString(make([]byte, 32)),
	} {
		t.Run("rejects "+name, func(t *testing.T) {
			if _, err := SessionIDFromToken(bad); err == nil {
				t.Errorf("expected error for %q", bad)
			}
		})
	}
}

// --- Cookies ---

func TestSessionCookies(t *testing.T) {
	t.Run("SetSessionCookie sets the auth_session attributes", func(t *testing.T) {
		w := httptest.NewRecorder()
		SetSessionCookie(w, "tok", 24*time.Hour, true)

		cookies := w.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("expected 1 cookie, got %d", len(cookies))
		}
		c := cookies[0]
		if c.Name != "auth_session" || c.Value != "tok" {
			t.Errorf("cookie: got %s=%s", c.Name, c.Value)
		}
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
			t.Errorf("unexpected attributes: %+v", c)
		}
		if c.MaxAge != 86400 {
			t.Errorf("MaxAge: expected 86400, got %d", c.MaxAge)
		}
	})

	t.Run("ClearSessionCookie expires the cookie immediately", func(t *testing.T) {
		w := httptest.NewRecorder()
		ClearSessionCookie(w, false)

		c := w.Result().Cookies()[0]
		if c.Value != "" {
			t.Errorf("Value: expected empty, got %q", c.Value)
		}
		if c.MaxAge >= 0 {
			t.Errorf("MaxAge: expected negative (Max-Age=0 on the wire), got %d", c.MaxAge)
		}
		if c.Secure {
			t.Error("Secure should follow the flag")
		}
	})
}

// --- GenerateCode ---

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if len(code) != 8 {
		t.Errorf("length: expected 8, got %d", len(code))
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			t.Errorf("unexpected character %q in %s", r, code)
		}
	}
}
