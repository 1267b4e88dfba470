// service.go -- Short URL creation, resolution and retention.
//
// A record moves through three states. Fresh: created within Expiry.
// In grace: older than Expiry but accessed within Grace. Expired: both
// windows exceeded. Resolving a fresh or in-grace record bumps its access
// bookkeeping; resolving an expired one marks it IsExpired for good.
package shorturl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MGallo-Code/dirshare/internal/clock"
	"github.com/MGallo-Code/dirshare/internal/store"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExpiry = 30 * 24 * time.Hour
	DefaultGrace  = 7 * 24 * time.Hour

	// maxIDAttempts bounds the retries on a short id collision.
	maxIDAttempts = 5

	bookkeepingTimeout = 10 * time.Second
)

var (
	// ErrNotFound covers both unknown and expired short ids.
	ErrNotFound = errors.New("short url not found")

	ErrEmptyURL = errors.New("original url is empty")

	// ErrIDSpaceExhausted means every generated id collided with an existing record.
	ErrIDSpaceExhausted = errors.New("could not allocate a unique short id")
)

// Store defines record operations needed by the short URL service.
// Satisfied by *store.Records.
type Store interface {
	PutShortURL(ctx context.Context, s *store.ShortURL) error
	GetShortURL(ctx context.Context, id string) (*store.ShortURL, error)
	DeleteShortURL(ctx context.Context, id string) error
	ListShortURLIDs(ctx context.Context) ([]string, error)

	GetShortURLIndex(ctx context.Context, originalURL string) (*store.ShortURLIndexEntry, error)
	PutShortURLIndex(ctx context.Context, e *store.ShortURLIndexEntry) error
	DeleteShortURLIndex(ctx context.Context, originalURL string) error
}

// Service owns short URL records. Construct with NewService.
type Service struct {
	Store Store
	Cache *Cache
	Clock clock.Clock

	// NewID mints candidate ids; swapped in tests to force collisions.
	NewID func() (string, error)

	Expiry time.Duration
	Grace  time.Duration

	creating singleflight.Group
	pending  sync.WaitGroup
}

// NewService wires defaults: 30 day expiry, 7 day grace, 5 minute cache, real clock.
func NewService(s Store) *Service {
	return &Service{
		Store:  s,
		Cache:  NewCache(DefaultCacheTTL),
		Clock:  clock.Real{},
		NewID:  NewID,
		Expiry: DefaultExpiry,
		Grace:  DefaultGrace,
	}
}

// expired reports whether rec has exceeded both retention windows at now.
func (s *Service) expired(rec *store.ShortURL, now time.Time) bool {
	if rec.IsExpired {
		return true
	}
	return now.Sub(rec.CreatedAt) > s.Expiry && now.Sub(rec.LastAccessAt) > s.Grace
}

// Create returns the short id for originalURL, minting one if none exists.
// The URL is stored verbatim. Concurrent calls for the same URL in this
// process share one creation; callers in other processes can still race
// and produce a second id, which is harmless.
func (s *Service) Create(ctx context.Context, originalURL string) (string, error) {
	if originalURL == "" {
		return "", ErrEmptyURL
	}
	if id, ok := s.Cache.LookupURL(originalURL, s.Clock.Now()); ok {
		return id, nil
	}

	// Waiters share this call, so it must not die with the first caller's request.
	v, err, _ := s.creating.Do(originalURL, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		return s.create(cctx, originalURL)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) create(ctx context.Context, originalURL string) (string, error) {
	now := s.Clock.Now().UTC()

	// A second caller may have finished while this one waited on the group.
	if id, ok := s.Cache.LookupURL(originalURL, now); ok {
		return id, nil
	}

	existing, err := s.lookupIndex(ctx, originalURL, now)
	if err != nil {
		return "", err
	}
	if existing != nil {
		s.Cache.Put(*existing, now)
		return existing.ShortID, nil
	}

	id, err := s.allocateID(ctx)
	if err != nil {
		return "", err
	}

	rec := &store.ShortURL{
		ShortID:      id,
		OriginalURL:  originalURL,
		CreatedAt:    now,
		LastAccessAt: now,
	}
	if err := s.Store.PutShortURL(ctx, rec); err != nil {
		return "", err
	}
	if err := s.Store.PutShortURLIndex(ctx, &store.ShortURLIndexEntry{ShortID: id, OriginalURL: originalURL}); err != nil {
		return "", err
	}
	s.Cache.Put(*rec, now)

	slog.Info("short url created", "short_id", id)
	return id, nil
}

// lookupIndex returns the live record the dedup index points at, or nil.
// An entry whose record is gone, expired or reassigned is stale and ignored;
// the caller overwrites it.
func (s *Service) lookupIndex(ctx context.Context, originalURL string, now time.Time) (*store.ShortURL, error) {
	entry, err := s.Store.GetShortURLIndex(ctx, originalURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading short url index: %w", err)
	}

	rec, err := s.Store.GetShortURL(ctx, entry.ShortID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("stale short url index entry", "short_id", entry.ShortID)
			return nil, nil
		}
		return nil, fmt.Errorf("reading indexed short url: %w", err)
	}
	if rec.OriginalURL != originalURL || s.expired(rec, now) {
		return nil, nil
	}
	return rec, nil
}

// allocateID draws ids until one is unused.
func (s *Service) allocateID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.NewID()
		if err != nil {
			return "", err
		}
		_, err = s.Store.GetShortURL(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking short id: %w", err)
		}
		slog.Warn("short id collision, retrying", "short_id", id, "attempt", attempt+1)
	}
	return "", ErrIDSpaceExhausted
}

// Resolve returns the original URL behind id, or ErrNotFound when the id is
// unknown or expired. Access bookkeeping is written in the background and a
// failed write never fails the resolution.
func (s *Service) Resolve(ctx context.Context, id string) (string, error) {
	now := s.Clock.Now().UTC()

	rec, ok := s.Cache.Get(id, now)
	if !ok {
		loaded, err := s.Store.GetShortURL(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", ErrNotFound
			}
			return "", fmt.Errorf("loading short url: %w", err)
		}
		rec = *loaded
		s.Cache.Put(rec, now)
	}

	if s.expired(&rec, now) {
		s.Cache.Delete(id)
		if !rec.IsExpired {
			rec.IsExpired = true
			if err := s.Store.PutShortURL(ctx, &rec); err != nil {
				slog.Warn("failed to mark short url expired", "short_id", id, "error", err)
			} else {
				slog.Info("short url expired", "short_id", id)
			}
		}
		return "", ErrNotFound
	}

	rec.AccessCount++
	rec.LastAccessAt = now
	s.Cache.Touch(rec)
	s.recordAccess(rec)

	return rec.OriginalURL, nil
}

// recordAccess persists bookkeeping off the request path. Concurrent resolutions
// can overwrite each other's counts; the counter only needs to be non-decreasing.
func (s *Service) recordAccess(rec store.ShortURL) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancel()
		if err := s.Store.PutShortURL(ctx, &rec); err != nil {
			slog.Warn("failed to record short url access", "short_id", rec.ShortID, "error", err)
		}
	}()
}

// Wait blocks until every pending bookkeeping write has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// CleanupResult summarises one Cleanup sweep.
type CleanupResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// Cleanup deletes every record that has gone unaccessed for longer than Grace
// and is past its expiry window (or already marked expired). Fresh records are
// never swept. Per-record failures are logged and counted; only a failed
// listing aborts the sweep. Safe to run alongside Resolve.
func (s *Service) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult

	ids, err := s.Store.ListShortURLIDs(ctx)
	if err != nil {
		return res, err
	}
	now := s.Clock.Now().UTC()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		rec, err := s.Store.GetShortURL(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				slog.Warn("cleanup failed to load short url", "short_id", id, "error", err)
				res.Failed++
			}
			continue
		}
		if now.Sub(rec.LastAccessAt) <= s.Grace || !s.expired(rec, now) {
			continue
		}

		if err := s.Store.DeleteShortURL(ctx, id); err != nil {
			slog.Warn("cleanup failed to delete short url", "short_id", id, "error", err)
			res.Failed++
			continue
		}
		s.Cache.Delete(id)
		s.dropIndex(ctx, rec)
		res.Deleted++
	}

	slog.Info("short url cleanup finished", "scanned", res.Scanned, "deleted", res.Deleted, "failed", res.Failed)
	return res, nil
}

// dropIndex removes the dedup entry for rec if it still points at rec.
func (s *Service) dropIndex(ctx context.Context, rec *store.ShortURL) {
	entry, err := s.Store.GetShortURLIndex(ctx, rec.OriginalURL)
	if err != nil || entry.ShortID != rec.ShortID {
		return
	}
	if err := s.Store.DeleteShortURLIndex(ctx, rec.OriginalURL); err != nil {
		slog.Warn("cleanup failed to delete short url index", "short_id", rec.ShortID, "error", err)
	}
}

// PruneCache evicts aged-out cache entries.
func (s *Service) PruneCache() int {
	return s.Cache.Prune(s.Clock.Now())
}
