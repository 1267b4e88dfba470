// service.go -- Credential checks, session lifecycle, and account codes.
//
// Handlers and the gateway go through Service; nothing else touches session records.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGallo-Code/dirshare/internal/clock"
	"github.com/MGallo-Code/dirshare/internal/store"
	"github.com/gofrs/uuid/v5"
)

// Store defines record operations needed by the auth service.
// Satisfied by *store.Records -- defined here (at consumer) per Go convention.
type Store interface {
	CreateUser(ctx context.Context, u *store.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*store.User, error)
	UpdateUser(ctx context.Context, u *store.User) error

	// GetUserByPhone returns store.ErrNotFound when no account uses phone.
	GetUserByPhone(ctx context.Context, phone string) (*store.User, error)

	CreateSession(ctx context.Context, s *store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// DeleteUserSessions removes all sessions of a user and returns their ids.
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) ([]string, error)

	PutActivationCode(ctx context.Context, c *store.ActivationCode) error
	GetActivationCode(ctx context.Context, code string) (*store.ActivationCode, error)
	PutInvitationCode(ctx context.Context, c *store.InvitationCode) error
	GetInvitationCode(ctx context.Context, code string) (*store.InvitationCode, error)
}

// SessionCache defines session cache operations needed by the auth service.
// Satisfied by *store.RedisSessionCache and store.NoopSessionCache.
type SessionCache interface {
	GetSession(ctx context.Context, sessionID string) (*store.CachedSession, error)
	SetSession(ctx context.Context, sessionID string, session store.CachedSession, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string, userID uuid.UUID) error
	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error
	CheckHealth(ctx context.Context) error
}

// dummyPasswordHash is a precomputed Argon2id hash for timing attack mitigation.
// When a user doesn't exist, verify against this so both paths take equal time.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$YWJjZGVmZ2hpamtsbW5vcA$kC6C6jqLzC0JLlJgXhHbKMhLLpVvLJLLQw/IqT9ZYPU"

// Service holds auth dependencies. Construct with NewService.
type Service struct {
	Store   Store
	Cache   SessionCache
	Limiter *LoginLimiter
	Clock   clock.Clock

	// SessionTTL is the lifetime of new sessions and their cookie.
	SessionTTL time.Duration

	// RequireActivation makes accounts registered without an invitation start inactive.
	RequireActivation bool
}

// NewService wires defaults: no cache, real clock, 24h sessions, 5 attempts per 15 minutes.
func NewService(s Store) *Service {
	c := clock.Real{}
	return &Service{
		Store:      s,
		Cache:      store.NoopSessionCache{},
		Limiter:    NewLoginLimiter(5, 15*time.Minute, c),
		Clock:      c,
		SessionTTL: 24 * time.Hour,
	}
}

// LoginInput is what the client submits plus request metadata stored on the session.
type LoginInput struct {
	PhoneNumber    string
	Password       string
	ActivationCode string
	IPAddress      string
	UserAgent      string
}

// LoginResult carries the cookie token and the persisted session.
type LoginResult struct {
	Token   string
	Session *store.Session
	User    *store.PublicUser
}

// Login authenticates and issues a session. The check order is fixed:
// input shape, rate limit, user lookup, password, activation, then session.
// Unknown phone and wrong password both record a failure and return
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if msg := ValidatePhone(in.PhoneNumber); msg != "" {
		return nil, invalidInput(msg)
	}
	if in.Password == "" {
		return nil, invalidInput("No password provided!")
	}

	if err := s.Limiter.Check(in.PhoneNumber); err != nil {
		return nil, err
	}

	user, err := s.Store.GetUserByPhone(ctx, in.PhoneNumber)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up user: %w", err)
		}
		// Equalise timing with the found-user path.
		VerifyPassword(in.Password, dummyPasswordHash)
		s.Limiter.RecordFailure(in.PhoneNumber)
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.Limiter.RecordFailure(in.PhoneNumber)
		return nil, ErrInvalidCredentials
	}

	now := s.Clock.Now().UTC()

	if !user.IsActive {
		if in.ActivationCode == "" {
			return nil, ErrActivationRequired
		}
		code, err := s.Store.GetActivationCode(ctx, in.ActivationCode)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrInvalidActivationCode
			}
			return nil, fmt.Errorf("loading activation code: %w", err)
		}
		if !code.Usable(now) {
			return nil, ErrInvalidActivationCode
		}
		code.UsageCount++
		code.IsUsed = code.UsageCount >= code.MaxUsage
		if err := s.Store.PutActivationCode(ctx, code); err != nil {
			slog.Warn("failed to record activation code usage", "code", code.Code, "error", err)
		}
		user.IsActive = true
	}

	user.LastLoginAt = &now
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		slog.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	s.Limiter.Reset(in.PhoneNumber)

	token, sessionID, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	sess := &store.Session{
		ID:        sessionID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.SessionTTL),
	}
	if in.IPAddress != "" {
		sess.IPAddress = &in.IPAddress
	}
	if in.UserAgent != "" {
		sess.UserAgent = &in.UserAgent
	}
	if err := s.Store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	// Cache is an optimisation; the blob record is the source of truth.
	if err := s.Cache.SetSession(ctx, sess.ID, store.CachedSession{UserID: sess.UserID, ExpiresAt: sess.ExpiresAt}, s.SessionTTL); err != nil {
		slog.Warn("failed to cache session", "error", err)
	}

	return &LoginResult{Token: token, Session: sess, User: user.Public()}, nil
}

// ValidateSession returns the owning user id, or ErrSessionNotFound for a
// session that was never issued, was logged out, or has expired. Expired
// sessions are deleted best-effort. Other errors are storage failures.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) (uuid.UUID, error) {
	now := s.Clock.Now()

	cached, err := s.Cache.GetSession(ctx, sessionID)
	if err == nil {
		if now.Before(cached.ExpiresAt) {
			return cached.UserID, nil
		}
		s.expire(ctx, sessionID, cached.UserID)
		return uuid.Nil, ErrSessionNotFound
	}
	if !errors.Is(err, store.ErrCacheMiss) {
		slog.Error("session cache lookup failed, falling back to store", "error", err)
	}

	sess, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, ErrSessionNotFound
		}
		return uuid.Nil, fmt.Errorf("loading session: %w", err)
	}
	if !now.Before(sess.ExpiresAt) {
		s.expire(ctx, sessionID, sess.UserID)
		return uuid.Nil, ErrSessionNotFound
	}

	// Repopulate cache, non-fatal on failure.
	if ttl := sess.ExpiresAt.Sub(now); ttl > 0 {
		if err := s.Cache.SetSession(ctx, sess.ID, store.CachedSession{UserID: sess.UserID, ExpiresAt: sess.ExpiresAt}, ttl); err != nil {
			slog.Warn("failed to repopulate session cache", "error", err)
		}
	}
	return sess.UserID, nil
}

func (s *Service) expire(ctx context.Context, sessionID string, userID uuid.UUID) {
	if err := s.Cache.DeleteSession(ctx, sessionID, userID); err != nil {
		slog.Warn("failed to evict expired session from cache", "error", err)
	}
	if err := s.Store.DeleteSession(ctx, sessionID); err != nil {
		slog.Warn("failed to delete expired session", "error", err)
	}
}

// Logout deletes the session from the store and the cache. The cache entry is
// evicted even when the store read fails, since ValidateSession trusts cache hits.
// The returned error is for logging only; callers clear the cookie regardless.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	var userID uuid.UUID
	if sess, err := s.Store.GetSession(ctx, sessionID); err == nil {
		userID = sess.UserID
	} else if cached, cerr := s.Cache.GetSession(ctx, sessionID); cerr == nil {
		userID = cached.UserID
	}

	var errs []error
	if err := s.Cache.DeleteSession(ctx, sessionID, userID); err != nil {
		errs = append(errs, fmt.Errorf("evicting cached session: %w", err))
	}
	if err := s.Store.DeleteSession(ctx, sessionID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogoutAll deletes every session owned by userID. Each deleted id is also
// evicted from the cache individually, so a stale per-user index in the cache
// cannot leave a session behind.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.Cache.DeleteAllUserSessions(ctx, userID); err != nil {
		slog.Warn("failed to delete user sessions from cache", "user_id", userID, "error", err)
	}

	ids, err := s.Store.DeleteUserSessions(ctx, userID)

	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("deleting user sessions: %w", err))
	}
	for _, id := range ids {
		if cerr := s.Cache.DeleteSession(ctx, id, userID); cerr != nil {
			errs = append(errs, fmt.Errorf("evicting cached session: %w", cerr))
		}
	}
	return errors.Join(errs...)
}

// CurrentUser is the logged-in user for a request.
type CurrentUser struct {
	User      *store.PublicUser
	SessionID string
}

// CurrentUserFromSession resolves sessionID to its user with the password hash stripped.
// Returns nil for any failure along the way; "not logged in" is never an error.
func (s *Service) CurrentUserFromSession(ctx context.Context, sessionID string) *CurrentUser {
	userID, err := s.ValidateSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			slog.Warn("current user lookup failed", "error", err)
		}
		return nil
	}
	u, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("current user lookup failed", "user_id", userID, "error", err)
		}
		return nil
	}
	return &CurrentUser{User: u.Public(), SessionID: sessionID}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	PhoneNumber     string
	Password        string
	ConfirmPassword string
	InvitationCode  string
}

// Register creates an account. Phone uniqueness is a best-effort pre-check:
// two racing registrations for one phone can both succeed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*store.User, error) {
	if msg := ValidatePhone(in.PhoneNumber); msg != "" {
		return nil, invalidInput(msg)
	}
	if msg := ValidatePassword(in.Password); msg != "" {
		return nil, invalidInput(msg)
	}
	if in.Password != in.ConfirmPassword {
		return nil, invalidInput("Passwords do not match")
	}

	now := s.Clock.Now().UTC()

	var invitation *store.InvitationCode
	if in.InvitationCode != "" {
		code, err := s.Store.GetInvitationCode(ctx, in.InvitationCode)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrInvalidInvitationCode
			}
			return nil, fmt.Errorf("loading invitation code: %w", err)
		}
		if !code.Usable(now) {
			return nil, ErrInvalidInvitationCode
		}
		invitation = code
	}

	if _, err := s.Store.GetUserByPhone(ctx, in.PhoneNumber); err == nil {
		return nil, ErrPhoneTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking phone: %w", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating user id: %w", err)
	}

	user := &store.User{
		ID:           id,
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: hash,
		RegisteredAt: now,
		IsActive:     invitation != nil || !s.RequireActivation,
	}
	if invitation != nil {
		user.InvitedBy = &invitation.Code
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if invitation != nil {
		invitation.UsageCount++
		if err := s.Store.PutInvitationCode(ctx, invitation); err != nil {
			slog.Warn("failed to record invitation code usage", "code", invitation.Code, "error", err)
		}
	}
	return user, nil
}

// ChangePassword verifies current, stores the new hash, and ends every session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if current == "" {
		return invalidInput("No current password provided!")
	}
	if msg := ValidatePassword(next); msg != "" {
		return invalidInput(msg)
	}

	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	ok, err := VerifyPassword(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return err
	}
	return s.LogoutAll(ctx, userID)
}

// CreateInvitationCode issues a code owned by userID. expiresIn <= 0 means it never expires.
func (s *Service) CreateInvitationCode(ctx context.Context, userID uuid.UUID, maxUsage int, expiresIn time.Duration) (*store.InvitationCode, error) {
	if maxUsage <= 0 {
		return nil, invalidInput("maxUsage must be positive")
	}
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now().UTC()
	c := &store.InvitationCode{
		Code:      code,
		UserID:    userID,
		MaxUsage:  maxUsage,
		CreatedAt: now,
	}
	if expiresIn > 0 {
		exp := now.Add(expiresIn)
		c.ExpiresAt = &exp
	}
	if err := s.Store.PutInvitationCode(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateActivationCode issues a code for activating inactive accounts. ttl <= 0 means no expiry.
func (s *Service) CreateActivationCode(ctx context.Context, maxUsage int, ttl time.Duration) (*store.ActivationCode, error) {
	if maxUsage <= 0 {
		return nil, invalidInput("maxUsage must be positive")
	}
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now().UTC()
	c := &store.ActivationCode{
		Code:      code,
		MaxUsage:  maxUsage,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		c.ExpiresAt = &exp
	}
	if err := s.Store.PutActivationCode(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
