// records.go -- Typed record access over the blob store.
//
// Owns every key layout. Nothing here is transactional: a record and its index
// entry are two independent writes, and readers must tolerate them diverging.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MGallo-Code/dirshare/internal/blob"
	"github.com/gofrs/uuid/v5"
)

const (
	usersPrefix         = "users/"
	phoneIndexPrefix    = "user-phone-index/"
	sessionsPrefix      = "sessions/"
	activationPrefix    = "activation-codes/"
	invitationPrefix    = "invitation-codes/"
	projectsPrefix      = "projects/"
	projectIndexPrefix  = "project-user-index/"
	shortURLsPrefix     = "short-urls/"
	shortURLIndexPrefix = "short-url-index/"
	jsonSuffix          = ".json"
)

// Records reads and writes domain records as JSON blobs.
// Safe for concurrent use if the underlying Store is.
type Records struct {
	blobs blob.Store

	// ScanOnIndexMiss lets GetUserByPhone fall back to scanning every user
	// when the phone index has no entry. Only for imported data whose index
	// was never built: each miss costs one List plus a Get per user.
	ScanOnIndexMiss bool
}

// NewRecords wraps s.
func NewRecords(s blob.Store) *Records {
	return &Records{blobs: s}
}

// Blobs returns the underlying store, used by health checks.
func (r *Records) Blobs() blob.Store {
	return r.blobs
}

// get decodes key into a T, mapping blob.ErrNotFound to ErrNotFound.
func get[T any](ctx context.Context, s blob.Store, key string) (*T, error) {
	v, err := blob.GetJSON[T](ctx, s, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// --- Users ---

func userKey(id uuid.UUID) string { return usersPrefix + id.String() + jsonSuffix }

// CreateUser writes the user record then its phone index entry.
// Phone uniqueness is the caller's pre-check; this does not enforce it.
func (r *Records) CreateUser(ctx context.Context, u *User) error {
	if err := blob.PutJSON(ctx, r.blobs, userKey(u.ID), u); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	if _, err := r.blobs.Put(ctx, phoneIndexPrefix+u.PhoneNumber, []byte(u.ID.String())); err != nil {
		return fmt.Errorf("indexing user phone: %w", err)
	}
	return nil
}

// GetUser loads a user by id.
func (r *Records) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return get[User](ctx, r.blobs, userKey(id))
}

// UpdateUser overwrites the user record. Phone changes are not supported.
func (r *Records) UpdateUser(ctx context.Context, u *User) error {
	if err := blob.PutJSON(ctx, r.blobs, userKey(u.ID), u); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// GetUserByPhone resolves the phone index. With ScanOnIndexMiss set, a missing
// or stale entry falls back to a full users/ scan and a hit repairs the index.
func (r *Records) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	raw, err := r.blobs.Get(ctx, phoneIndexPrefix+phone)
	switch {
	case err == nil:
		if id, perr := uuid.FromString(string(raw)); perr == nil {
			u, gerr := r.GetUser(ctx, id)
			if gerr == nil && u.PhoneNumber == phone {
				return u, nil
			}
			if gerr != nil && !errors.Is(gerr, ErrNotFound) {
				return nil, gerr
			}
		}
	case !errors.Is(err, blob.ErrNotFound):
		return nil, fmt.Errorf("reading phone index: %w", err)
	}

	if !r.ScanOnIndexMiss {
		return nil, ErrNotFound
	}

	objs, err := r.blobs.List(ctx, usersPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for _, o := range objs {
		u, err := get[User](ctx, r.blobs, o.Key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if u.PhoneNumber == phone {
			if _, err := r.blobs.Put(ctx, phoneIndexPrefix+phone, []byte(u.ID.String())); err != nil {
				slog.Warn("failed to repair phone index", "user_id", u.ID, "error", err)
			}
			return u, nil
		}
	}
	return nil, ErrNotFound
}

// --- Sessions ---

func sessionKey(id string) string { return sessionsPrefix + id + jsonSuffix }

func (r *Records) CreateSession(ctx context.Context, s *Session) error {
	if err := blob.PutJSON(ctx, r.blobs, sessionKey(s.ID), s); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (r *Records) GetSession(ctx context.Context, id string) (*Session, error) {
	return get[Session](ctx, r.blobs, sessionKey(id))
}

func (r *Records) DeleteSession(ctx context.Context, id string) error {
	if err := r.blobs.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ListUserSessions scans sessions/ for records owned by userID.
func (r *Records) ListUserSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	objs, err := r.blobs.List(ctx, sessionsPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var out []*Session
	for _, o := range objs {
		s, err := get[Session](ctx, r.blobs, o.Key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

// DeleteUserSessions removes every session owned by userID and returns their ids.
// Stops at the first delete failure; ids deleted so far are still returned.
func (r *Records) DeleteUserSessions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	sessions, err := r.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if err := r.DeleteSession(ctx, s.ID); err != nil {
			return ids, err
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// --- Activation + invitation codes ---

func (r *Records) PutActivationCode(ctx context.Context, c *ActivationCode) error {
	if err := blob.PutJSON(ctx, r.blobs, activationPrefix+c.Code+jsonSuffix, c); err != nil {
		return fmt.Errorf("saving activation code: %w", err)
	}
	return nil
}

func (r *Records) GetActivationCode(ctx context.Context, code string) (*ActivationCode, error) {
	return get[ActivationCode](ctx, r.blobs, activationPrefix+code+jsonSuffix)
}

func (r *Records) PutInvitationCode(ctx context.Context, c *InvitationCode) error {
	if err := blob.PutJSON(ctx, r.blobs, invitationPrefix+c.Code+jsonSuffix, c); err != nil {
		return fmt.Errorf("saving invitation code: %w", err)
	}
	return nil
}

func (r *Records) GetInvitationCode(ctx context.Context, code string) (*InvitationCode, error) {
	return get[InvitationCode](ctx, r.blobs, invitationPrefix+code+jsonSuffix)
}

// --- Projects ---

func projectKey(id uuid.UUID) string { return projectsPrefix + id.String() + jsonSuffix }

func projectIndexKey(userID uuid.UUID) string { return projectIndexPrefix + userID.String() }

// SaveProject writes the project and upserts its summary in the owner's index,
// newest first. Two racing saves for one owner can drop an index entry.
func (r *Records) SaveProject(ctx context.Context, p *Project) error {
	if err := blob.PutJSON(ctx, r.blobs, projectKey(p.ID), p); err != nil {
		return fmt.Errorf("saving project: %w", err)
	}

	index, err := r.ListUserProjects(ctx, p.UserID)
	if err != nil {
		return err
	}
	next := make([]ProjectSummary, 0, len(index)+1)
	found := false
	for _, s := range index {
		if s.ID == p.ID {
			next = append(next, p.Summary())
			found = true
			continue
		}
		next = append(next, s)
	}
	if !found {
		next = append([]ProjectSummary{p.Summary()}, next...)
	}
	if err := blob.PutJSON(ctx, r.blobs, projectIndexKey(p.UserID), next); err != nil {
		return fmt.Errorf("updating project index: %w", err)
	}
	return nil
}

func (r *Records) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	return get[Project](ctx, r.blobs, projectKey(id))
}

// ListUserProjects returns the owner's index; a missing index is an empty list.
func (r *Records) ListUserProjects(ctx context.Context, userID uuid.UUID) ([]ProjectSummary, error) {
	list, err := get[[]ProjectSummary](ctx, r.blobs, projectIndexKey(userID))
	if errors.Is(err, ErrNotFound) {
		return []ProjectSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project index: %w", err)
	}
	return *list, nil
}

// DeleteProject removes the project and its owner index entry.
func (r *Records) DeleteProject(ctx context.Context, p *Project) error {
	if err := r.blobs.Delete(ctx, projectKey(p.ID)); err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	index, err := r.ListUserProjects(ctx, p.UserID)
	if err != nil {
		return err
	}
	next := make([]ProjectSummary, 0, len(index))
	for _, s := range index {
		if s.ID != p.ID {
			next = append(next, s)
		}
	}
	if err := blob.PutJSON(ctx, r.blobs, projectIndexKey(p.UserID), next); err != nil {
		return fmt.Errorf("updating project index: %w", err)
	}
	return nil
}

// --- Short URLs ---

func shortURLKey(id string) string { return shortURLsPrefix + id + jsonSuffix }

// shortURLIndexKey hashes the URL so arbitrary characters never reach the key.
func shortURLIndexKey(originalURL string) string {
	sum := sha256.Sum256([]byte(originalURL))
	return shortURLIndexPrefix + hex.EncodeToString(sum[:])
}

func (r *Records) PutShortURL(ctx context.Context, s *ShortURL) error {
	if err := blob.PutJSON(ctx, r.blobs, shortURLKey(s.ShortID), s); err != nil {
		return fmt.Errorf("saving short url: %w", err)
	}
	return nil
}

func (r *Records) GetShortURL(ctx context.Context, id string) (*ShortURL, error) {
	return get[ShortURL](ctx, r.blobs, shortURLKey(id))
}

func (r *Records) DeleteShortURL(ctx context.Context, id string) error {
	if err := r.blobs.Delete(ctx, shortURLKey(id)); err != nil {
		return fmt.Errorf("deleting short url: %w", err)
	}
	return nil
}

// ListShortURLIDs returns the id of every stored short URL record.
func (r *Records) ListShortURLIDs(ctx context.Context) ([]string, error) {
	objs, err := r.blobs.List(ctx, shortURLsPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing short urls: %w", err)
	}
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		id := strings.TrimSuffix(strings.TrimPrefix(o.Key, shortURLsPrefix), jsonSuffix)
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetShortURLIndex returns the dedup entry for originalURL, or ErrNotFound.
// An entry whose stored URL differs (hash collision) is treated as missing.
func (r *Records) GetShortURLIndex(ctx context.Context, originalURL string) (*ShortURLIndexEntry, error) {
	e, err := get[ShortURLIndexEntry](ctx, r.blobs, shortURLIndexKey(originalURL))
	if err != nil {
		return nil, err
	}
	if e.OriginalURL != originalURL {
		return nil, ErrNotFound
	}
	return e, nil
}

func (r *Records) PutShortURLIndex(ctx context.Context, e *ShortURLIndexEntry) error {
	if err := blob.PutJSON(ctx, r.blobs, shortURLIndexKey(e.OriginalURL), e); err != nil {
		return fmt.Errorf("saving short url index: %w", err)
	}
	return nil
}

func (r *Records) DeleteShortURLIndex(ctx context.Context, originalURL string) error {
	if err := r.blobs.Delete(ctx, shortURLIndexKey(originalURL)); err != nil {
		return fmt.Errorf("deleting short url index: %w", err)
	}
	return nil
}
