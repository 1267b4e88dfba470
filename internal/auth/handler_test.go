package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MGallo-Code/dirshare/internal/captcha"
	"github.com/MGallo-Code/dirshare/internal/store"
)

func newTestHandler(t *testing.T) (*AuthHandler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return &AuthHandler{Svc: f.svc, Blobs: f.blobs}, f
}

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "203.0.113.7:51234"
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

// loginCookie logs testPhone in through the handler and returns the cookie.
func loginCookie(t *testing.T, h *AuthHandler) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	h.Login(w, postJSON(t, "/auth/login", map[string]string{"phoneNumber": testPhone, "password": testPassword}))
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	c := sessionCookie(w)
	if c == nil {
		t.Fatal("login did not set a session cookie")
	}
	return c
}

// --- Login ---

func TestLoginHandler(t *testing.T) {
	t.Run("success sets cookie and returns userId", func(t *testing.T) {
		h, f := newTestHandler(t)
		u := f.seedUser(t, testPhone, true)

		w := httptest.NewRecorder()
		h.Login(w, postJSON(t, "/auth/login", map[string]string{"phoneNumber": testPhone, "password": testPassword}))

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["success"] != true || body["userId"] != u.ID.String() {
			t.Errorf("unexpected body: %v", body)
		}
		c := sessionCookie(w)
		if c == nil || c.Value == "" || !c.HttpOnly {
			t.Fatalf("session cookie missing or wrong: %+v", c)
		}
		id, _ := SessionIDFromToken(c.Value)
		sess, err := f.recs.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("cookie does not map to stored session: %v", err)
		}
		if sess.IPAddress == nil || *sess.IPAddress != "203.0.113.7" {
			t.Errorf("IPAddress: got %v", sess.IPAddress)
		}
	})

	cases := []struct {
		name    string
		body    map[string]string
		active  bool
		want    int
		wantMsg string
	}{
		{"missing phone", map[string]string{"password": testPassword}, true, http.StatusBadRequest, "No phone number provided!"},
		{"bad phone format", map[string]string{"phoneNumber": "123", "password": testPassword}, true, http.StatusBadRequest, "Invalid phone number format"},
		{"wrong password", map[string]string{"phoneNumber": testPhone, "password": "nope-nope"}, true, http.StatusUnauthorized, "Invalid phone number or password"},
		{"unknown phone", map[string]string{"phoneNumber": "13912345678", "password": testPassword}, true, http.StatusUnauthorized, "Invalid phone number or password"},
		{"inactive without code", map[string]string{"phoneNumber": testPhone, "password": testPassword}, false, http.StatusForbidden, "Account requires an activation code"},
		{"inactive with bad code", map[string]string{"phoneNumber": testPhone, "password": testPassword, "activationCode": "BADCODE1"}, false, http.StatusForbidden, "Invalid or expired activation code"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, f := newTestHandler(t)
			f.seedUser(t, testPhone, tc.active)

			w := httptest.NewRecorder()
			h.Login(w, postJSON(t, "/auth/login", tc.body))

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if msg := decodeBody(t, w)["message"]; msg != tc.wantMsg {
				t.Errorf("message: expected %q, got %q", tc.wantMsg, msg)
			}
			if sessionCookie(w) != nil {
				t.Error("failed login must not set a cookie")
			}
		})
	}

	t.Run("inactive without code flags requiresActivation", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.seedUser(t, testPhone, false)
		w := httptest.NewRecorder()
		h.Login(w, postJSON(t, "/auth/login", map[string]string{"phoneNumber": testPhone, "password": testPassword}))
		if decodeBody(t, w)["requiresActivation"] != true {
			t.Error("expected requiresActivation=true")
		}
	})

	t.Run("locked out returns 429 with lockoutMinutes", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.seedUser(t, testPhone, true)
		for i := 0; i < 5; i++ {
			h.Login(httptest.NewRecorder(), postJSON(t, "/auth/login", map[string]string{"phoneNumber": testPhone, "password": "nope-nope"}))
		}
		w := httptest.NewRecorder()
		h.Login(w, postJSON(t, "/auth/login", map[string]string{"phoneNumber": testPhone, "password": testPassword}))
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", w.Code)
		}
		if mins, _ := decodeBody(t, w)["lockoutMinutes"].(float64); mins < 1 {
			t.Errorf("lockoutMinutes should be positive, got %v", mins)
		}
	})

	t.Run("malformed JSON returns 400", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Login(w, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("storage failure returns 500", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.blobs.GetErr = errors.New("blob store down")
		w := httptest.NewRecorder()
		h.Login(w, postJSON(t, "/auth/login", map[string]string{"phoneNumber": testPhone, "password": testPassword}))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", w.Code)
		}
	})
}

// --- Logout ---

func TestLogoutHandler(t *testing.T) {
	t.Run("deletes the session and clears the cookie", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.seedUser(t, testPhone, true)
		c := loginCookie(t, h)

		r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		r.AddCookie(c)
		w := httptest.NewRecorder()
		h.Logout(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if cleared := sessionCookie(w); cleared == nil || cleared.MaxAge >= 0 {
			t.Errorf("cookie not cleared: %+v", cleared)
		}
		id, _ := SessionIDFromToken(c.Value)
		if _, err := f.svc.ValidateSession(context.Background(), id); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("session should be gone, got %v", err)
		}
	})

	t.Run("clears the cookie even when the delete fails", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.seedUser(t, testPhone, true)
		c := loginCookie(t, h)
		f.blobs.DeleteErr = errors.New("delete failed")
		f.blobs.FailPrefix = "sessions/"

		r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		r.AddCookie(c)
		w := httptest.NewRecorder()
		h.Logout(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if cleared := sessionCookie(w); cleared == nil || cleared.MaxAge >= 0 {
			t.Errorf("cookie not cleared: %+v", cleared)
		}
	})

	t.Run("no cookie still succeeds", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
	})
}

// --- CheckSession ---

func TestCheckSessionHandler(t *testing.T) {
	t.Run("authenticated user", func(t *testing.T) {
		h, f := newTestHandler(t)
		u := f.seedUser(t, testPhone, true)
		c := loginCookie(t, h)

		r := httptest.NewRequest(http.MethodGet, "/auth/check-session", nil)
		r.AddCookie(c)
		w := httptest.NewRecorder()
		h.CheckSession(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		body := decodeBody(t, w)
		user, _ := body["user"].(map[string]any)
		if body["authenticated"] != true || user["id"] != u.ID.String() || user["phoneNumber"] != testPhone {
			t.Errorf("unexpected body: %v", body)
		}
		if _, leaked := user["passwordHash"]; leaked {
			t.Error("password hash must not be exposed")
		}
	})

	t.Run("anonymous request", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.CheckSession(w, httptest.NewRequest(http.MethodGet, "/auth/check-session", nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if decodeBody(t, w)["authenticated"] != false {
			t.Error("expected authenticated=false")
		}
	})
}

// --- Register ---

type stubVerifier struct{ err error }

func (s stubVerifier) Verify(context.Context, string, string) error { return s.err }

var _ captcha.Verifier = stubVerifier{}

func TestRegisterHandler(t *testing.T) {
	valid := map[string]string{"phoneNumber": testPhone, "password": testPassword, "confirmPassword": testPassword}

	t.Run("created", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.Register(w, postJSON(t, "/auth/register", valid))
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["success"] != true || body["userId"] == "" || body["isActive"] != true {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("taken phone is 409", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.seedUser(t, testPhone, true)
		w := httptest.NewRecorder()
		h.Register(w, postJSON(t, "/auth/register", valid))
		if w.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", w.Code)
		}
	})

	t.Run("bad invitation is 400", func(t *testing.T) {
		h, _ := newTestHandler(t)
		body := map[string]string{"phoneNumber": testPhone, "password": testPassword, "confirmPassword": testPassword, "invitationCode": "NOPE0000"}
		w := httptest.NewRecorder()
		h.Register(w, postJSON(t, "/auth/register", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("rejected captcha is 400 and creates nothing", func(t *testing.T) {
		h, f := newTestHandler(t)
		h.Captcha = stubVerifier{err: captcha.ErrMissingToken}
		w := httptest.NewRecorder()
		h.Register(w, postJSON(t, "/auth/register", valid))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if _, err := f.recs.GetUserByPhone(context.Background(), testPhone); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("no user should exist, got %v", err)
		}
	})
}

// --- Protected auth endpoints ---

func TestChangePasswordHandler(t *testing.T) {
	t.Run("wrong current password is 401", func(t *testing.T) {
		h, f := newTestHandler(t)
		u := f.seedUser(t, testPhone, true)
		r := postJSON(t, "/auth/change-password", map[string]string{"currentPassword": "wrong-one", "newPassword": "newpassword1"})
		r = r.WithContext(WithSession(r.Context(), u.ID, "sid"))
		w := httptest.NewRecorder()
		h.ChangePassword(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("success clears the cookie", func(t *testing.T) {
		h, f := newTestHandler(t)
		u := f.seedUser(t, testPhone, true)
		r := postJSON(t, "/auth/change-password", map[string]string{"currentPassword": testPassword, "newPassword": "newpassword1"})
		r = r.WithContext(WithSession(r.Context(), u.ID, "sid"))
		w := httptest.NewRecorder()
		h.ChangePassword(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if c := sessionCookie(w); c == nil || c.MaxAge >= 0 {
			t.Error("cookie should be cleared")
		}
	})
}

func TestGenerateInvitationHandler(t *testing.T) {
	t.Run("defaults to five uses without expiry", func(t *testing.T) {
		h, f := newTestHandler(t)
		u := f.seedUser(t, testPhone, true)
		r := httptest.NewRequest(http.MethodPost, "/invitation/generate", nil)
		r = r.WithContext(WithSession(r.Context(), u.ID, "sid"))
		w := httptest.NewRecorder()
		h.GenerateInvitation(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["maxUsage"] != float64(5) || body["expiresAt"] != nil {
			t.Errorf("unexpected body: %v", body)
		}
		code, _ := body["code"].(string)
		stored, err := f.recs.GetInvitationCode(context.Background(), code)
		if err != nil || stored.UserID != u.ID {
			t.Errorf("code not stored for user: %v, %v", stored, err)
		}
	})

	t.Run("negative expiry is 400", func(t *testing.T) {
		h, f := newTestHandler(t)
		u := f.seedUser(t, testPhone, true)
		r := postJSON(t, "/invitation/generate", map[string]int{"expiresInDays": -1})
		r = r.WithContext(WithSession(r.Context(), u.ID, "sid"))
		w := httptest.NewRecorder()
		h.GenerateInvitation(w, r)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

// --- Health ---

func TestCheckHealth(t *testing.T) {
	t.Run("healthy store with cache", func(t *testing.T) {
		h, _ := newTestHandler(t)
		w := httptest.NewRecorder()
		h.CheckHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if body := decodeBody(t, w); body["blob"] != "ok" || body["cache"] != "ok" {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("disabled cache is still healthy", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.svc.Cache = store.NoopSessionCache{}
		w := httptest.NewRecorder()
		h.CheckHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if decodeBody(t, w)["cache"] != "disabled" {
			t.Error("expected cache=disabled")
		}
	})

	t.Run("cache failure is 503", func(t *testing.T) {
		h, f := newTestHandler(t)
		f.cache.HealthErr = errors.New("redis down")
		w := httptest.NewRecorder()
		h.CheckHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}
