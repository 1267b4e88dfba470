// handler.go -- HTTP handlers for all /auth/* endpoints and invitation codes.
package auth

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/MGallo-Code/dirshare/internal/blob"
	"github.com/MGallo-Code/dirshare/internal/captcha"
	"github.com/MGallo-Code/dirshare/internal/web"
)

// AuthHandler holds dependencies for all auth HTTP handlers and middleware.
type AuthHandler struct {
	Svc     *Service
	Captcha captcha.Verifier
	// Blobs is pinged by /health.
	Blobs blob.Store
	// CookieSecure sets the Secure flag; false only for plain-HTTP development.
	CookieSecure bool
}

// invalidCredentialsMsg is identical for unknown phone and wrong password.
const invalidCredentialsMsg = "Invalid phone number or password"

// Login handles POST /auth/login -- phone + password (+ activation code) authentication.
// Returns 200 with session cookie, 400 bad input, 401 bad credentials,
// 403 activation problems, 429 rate limited, 500 storage failures.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginInput struct {
		PhoneNumber    string `json:"phoneNumber"`
		Password       string `json:"password"`
		ActivationCode string `json:"activationCode"`
	}
	if err := web.DecodeJSON(w, r, &loginInput); err != nil {
		web.LogWarn(r, "failed to decode login input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	res, err := h.Svc.Login(r.Context(), LoginInput{
		PhoneNumber:    loginInput.PhoneNumber,
		Password:       loginInput.Password,
		ActivationCode: loginInput.ActivationCode,
		IPAddress:      remoteIP(r),
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		var inputErr *InputError
		var limited *RateLimitedError
		switch {
		case errors.As(err, &inputErr):
			web.BadRequest(w, inputErr.Msg)
		case errors.As(err, &limited):
			web.LogWarn(r, "login rate limited", "remaining_minutes", limited.RemainingMinutes)
			web.JSON(w, http.StatusTooManyRequests, map[string]any{
				"message":        "Too many failed attempts, try again later",
				"lockoutMinutes": limited.RemainingMinutes,
			})
		case errors.Is(err, ErrInvalidCredentials):
			web.LogInfo(r, "login failed", "reason", "invalid_credentials")
			web.Unauthorized(w, invalidCredentialsMsg)
		case errors.Is(err, ErrActivationRequired):
			web.JSON(w, http.StatusForbidden, map[string]any{
				"message":            "Account requires an activation code",
				"requiresActivation": true,
			})
		case errors.Is(err, ErrInvalidActivationCode):
			web.Forbidden(w, "Invalid or expired activation code")
		default:
			web.InternalServerError(w, r, err)
		}
		return
	}

	SetSessionCookie(w, res.Token, h.Svc.SessionTTL, h.CookieSecure)
	web.LogInfo(r, "user logged in successfully", "user_id", res.User.ID)
	web.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"userId":  res.User.ID,
	})
}

// LoginRequired handles GET /auth/login, the gateway's redirect target.
// Page rendering lives in the frontend; this just echoes where to return after login.
func (h *AuthHandler) LoginRequired(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, http.StatusOK, map[string]any{
		"message":  "login required",
		"redirect": r.URL.Query().Get("redirect"),
	})
}

// Logout handles POST /auth/logout. The cookie is cleared even when the delete fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := sessionIDFromRequest(r); ok {
		if err := h.Svc.Logout(r.Context(), sessionID); err != nil {
			web.LogError(r, "failed to delete session", "error", err)
		}
	}
	ClearSessionCookie(w, h.CookieSecure)
	web.LogInfo(r, "user logged out")
	web.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// CheckSession handles GET /auth/check-session.
func (h *AuthHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	current := h.currentUser(r)
	if current == nil {
		web.JSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false})
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":          current.User.ID,
			"phoneNumber": current.User.PhoneNumber,
		},
	})
}

// currentUser reads the session cookie and resolves it; nil when not logged in.
func (h *AuthHandler) currentUser(r *http.Request) *CurrentUser {
	sessionID, ok := sessionIDFromRequest(r)
	if !ok {
		return nil
	}
	return h.Svc.CurrentUserFromSession(r.Context(), sessionID)
}

// Register handles POST /auth/register.
// Returns 201 with userId, 400 for validation/invitation/captcha failures, 409 for a taken phone.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerInput struct {
		PhoneNumber     string `json:"phoneNumber"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
		InvitationCode  string `json:"invitationCode"`
		CaptchaToken    string `json:"captchaToken"`
	}
	if err := web.DecodeJSON(w, r, &registerInput); err != nil {
		web.LogWarn(r, "failed to decode register input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	if h.Captcha != nil {
		if err := h.Captcha.Verify(r.Context(), registerInput.CaptchaToken, remoteIP(r)); err != nil {
			web.LogWarn(r, "captcha rejected", "error", err)
			web.BadRequest(w, "captcha verification failed")
			return
		}
	}

	user, err := h.Svc.Register(r.Context(), RegisterInput{
		PhoneNumber:     registerInput.PhoneNumber,
		Password:        registerInput.Password,
		ConfirmPassword: registerInput.ConfirmPassword,
		InvitationCode:  registerInput.InvitationCode,
	})
	if err != nil {
		var inputErr *InputError
		switch {
		case errors.As(err, &inputErr):
			web.BadRequest(w, inputErr.Msg)
		case errors.Is(err, ErrInvalidInvitationCode):
			web.BadRequest(w, "Invalid or expired invitation code")
		case errors.Is(err, ErrPhoneTaken):
			web.LogInfo(r, "registration attempted with existing phone")
			web.Conflict(w, "Phone number already registered")
		default:
			web.InternalServerError(w, r, err)
		}
		return
	}

	web.LogInfo(r, "user registered", "user_id", user.ID, "active", user.IsActive)
	web.JSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"userId":   user.ID,
		"isActive": user.IsActive,
	})
}

// ChangePassword handles POST /auth/change-password. Requires RequireSession.
// Ends every session of the user and clears the cookie on success.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}

	var input struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := web.DecodeJSON(w, r, &input); err != nil {
		web.BadRequest(w, "error decoding request body")
		return
	}

	if err := h.Svc.ChangePassword(r.Context(), userID, input.CurrentPassword, input.NewPassword); err != nil {
		var inputErr *InputError
		switch {
		case errors.As(err, &inputErr):
			web.BadRequest(w, inputErr.Msg)
		case errors.Is(err, ErrInvalidCredentials):
			web.LogInfo(r, "password change with wrong current password", "user_id", userID)
			web.Unauthorized(w, "Current password is incorrect")
		default:
			web.InternalServerError(w, r, err)
		}
		return
	}

	ClearSessionCookie(w, h.CookieSecure)
	web.LogInfo(r, "password changed", "user_id", userID)
	web.OK(w, "password changed")
}

// LogoutAll handles POST /auth/logout-all -- ends every session for the authenticated user.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}
	if err := h.Svc.LogoutAll(r.Context(), userID); err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	ClearSessionCookie(w, h.CookieSecure)
	web.LogInfo(r, "user logged out of all devices", "user_id", userID)
	web.OK(w, "logged out of all devices")
}

// GenerateInvitation handles POST /invitation/generate for the logged-in user.
// Body is optional: {maxUsage: 5, expiresInDays: 0 (never)}.
func (h *AuthHandler) GenerateInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}

	input := struct {
		MaxUsage      int `json:"maxUsage"`
		ExpiresInDays int `json:"expiresInDays"`
	}{MaxUsage: 5}
	if r.ContentLength != 0 {
		if err := web.DecodeJSON(w, r, &input); err != nil {
			web.BadRequest(w, "error decoding request body")
			return
		}
	}
	if input.ExpiresInDays < 0 {
		web.BadRequest(w, "expiresInDays must not be negative")
		return
	}

	code, err := h.Svc.CreateInvitationCode(r.Context(), userID, input.MaxUsage,
		time.Duration(input.ExpiresInDays)*24*time.Hour)
	if err != nil {
		var inputErr *InputError
		if errors.As(err, &inputErr) {
			web.BadRequest(w, inputErr.Msg)
			return
		}
		web.InternalServerError(w, r, err)
		return
	}

	web.LogInfo(r, "invitation code generated", "user_id", userID)
	web.JSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"code":      code.Code,
		"maxUsage":  code.MaxUsage,
		"expiresAt": code.ExpiresAt,
	})
}

// remoteIP strips the port from RemoteAddr.
func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
