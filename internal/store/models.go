// models.go -- Shared domain types for the store package.
// Every record is persisted as one JSON blob; field tags are the on-disk format.
package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrNotFound is returned when a record does not exist.
// Callers use errors.Is to distinguish a missing record from a storage failure.
var ErrNotFound = errors.New("record not found")

// ErrCacheMiss is returned by GetSession when the key is not in Redis.
// Callers use errors.Is to distinguish a true miss from a Redis infrastructure failure.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheDisabled is returned by NoopSessionCache.CheckHealth when Redis is not configured.
var ErrCacheDisabled = errors.New("cache disabled")

// User is stored at users/{id}.json.
// LastLoginAt is nil until the first successful login. InvitedBy holds the
// invitation code used at registration, if any.
type User struct {
	ID           uuid.UUID  `json:"id"`
	PhoneNumber  string     `json:"phoneNumber"`
	PasswordHash string     `json:"passwordHash"`
	RegisteredAt time.Time  `json:"registeredAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt"`
	InvitedBy    *string    `json:"invitedBy,omitempty"`
	IsActive     bool       `json:"isActive"`
}

// PublicUser is User without PasswordHash, safe to hand to handlers and clients.
type PublicUser struct {
	ID           uuid.UUID  `json:"id"`
	PhoneNumber  string     `json:"phoneNumber"`
	RegisteredAt time.Time  `json:"registeredAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt"`
	InvitedBy    *string    `json:"invitedBy,omitempty"`
	IsActive     bool       `json:"isActive"`
}

// Public strips the password hash.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:           u.ID,
		PhoneNumber:  u.PhoneNumber,
		RegisteredAt: u.RegisteredAt,
		LastLoginAt:  u.LastLoginAt,
		InvitedBy:    u.InvitedBy,
		IsActive:     u.IsActive,
	}
}

// Session is stored at sessions/{id}.json, where ID is the hash of the cookie token.
// Valid iff now < ExpiresAt.
type Session struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IPAddress *string   `json:"ipAddress,omitempty"`
	UserAgent *string   `json:"userAgent,omitempty"`
}

// CachedSession is the JSON shape stored in Redis for cached sessions.
// Only the fields needed for fast session validation.
type CachedSession struct {
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActivationCode is stored at activation-codes/{code}.json.
// ExpiresAt nil means the code never expires.
type ActivationCode struct {
	Code       string     `json:"code"`
	UsageCount int        `json:"usageCount"`
	MaxUsage   int        `json:"maxUsage"`
	IsUsed     bool       `json:"isUsed"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Usable reports whether the code is unexpired and under its usage cap at now.
func (c *ActivationCode) Usable(now time.Time) bool {
	return usable(c.UsageCount, c.MaxUsage, c.ExpiresAt, now)
}

// InvitationCode is stored at invitation-codes/{code}.json.
// UserID is the issuing user.
type InvitationCode struct {
	Code       string     `json:"code"`
	UserID     uuid.UUID  `json:"userId"`
	UsageCount int        `json:"usageCount"`
	MaxUsage   int        `json:"maxUsage"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Usable reports whether the code is unexpired and under its usage cap at now.
func (c *InvitationCode) Usable(now time.Time) bool {
	return usable(c.UsageCount, c.MaxUsage, c.ExpiresAt, now)
}

func usable(count, limit int, expiresAt *time.Time, now time.Time) bool {
	if expiresAt != nil && !now.Before(*expiresAt) {
		return false
	}
	return count < limit
}

// Project is stored at projects/{id}.json. Data is the parsed directory tree, kept opaque.
type Project struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	Name      string          `json:"name"`
	Size      int64           `json:"size"`
	ItemCount int             `json:"itemCount"`
	ShortID   string          `json:"shortId,omitempty"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ProjectSummary is one entry of project-user-index/{userId}: project metadata without Data.
type ProjectSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	ItemCount int       `json:"itemCount"`
	ShortID   string    `json:"shortId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary drops the tree payload.
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{
		ID:        p.ID,
		Name:      p.Name,
		Size:      p.Size,
		ItemCount: p.ItemCount,
		ShortID:   p.ShortID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ShortURL is stored at short-urls/{shortId}.json.
// IsExpired is sticky: once set it is never cleared.
type ShortURL struct {
	ShortID      string    `json:"shortId"`
	OriginalURL  string    `json:"originalUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessAt time.Time `json:"lastAccessAt"`
	AccessCount  int64     `json:"accessCount"`
	IsExpired    bool      `json:"isExpired"`
}

// ShortURLIndexEntry is stored at short-url-index/{hash(originalUrl)}.
// OriginalURL is kept to rule out a hash collision on read.
type ShortURLIndexEntry struct {
	ShortID     string `json:"shortId"`
	OriginalURL string `json:"originalUrl"`
}
