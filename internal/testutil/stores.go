// stores.go
//
// Shared fakes for blob.Store and auth.SessionCache.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MGallo-Code/dirshare/internal/blob"
	"github.com/MGallo-Code/dirshare/internal/store"
	"github.com/gofrs/uuid/v5"
)

// FaultyStore wraps a real blob.Store and injects errors.
// Use *Err fields to fail specific operations...zero value means pass through.
// FailPrefix limits injection to keys starting with it; empty fails every key.
type FaultyStore struct {
	blob.Store

	PutErr    error
	GetErr    error
	ListErr   error
	DeleteErr error

	FailPrefix string

	// CheckContext makes every call fail with ctx.Err() once ctx is done,
	// like a network backend would.
	CheckContext bool

	mu    sync.Mutex
	Puts  int
	Gets  int
	Lists int
}

// NewFaultyStore wraps an empty in-memory store.
func NewFaultyStore() *FaultyStore {
	return &FaultyStore{Store: blob.NewMemory()}
}

func (f *FaultyStore) match(key string) bool {
	return strings.HasPrefix(key, f.FailPrefix)
}

func (f *FaultyStore) ctxErr(ctx context.Context) error {
	if f.CheckContext {
		return ctx.Err()
	}
	return nil
}

func (f *FaultyStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	f.Puts++
	err := f.PutErr
	f.mu.Unlock()
	if err != nil && f.match(key) {
		return "", err
	}
	if err := f.ctxErr(ctx); err != nil {
		return "", err
	}
	return f.Store.Put(ctx, key, data)
}

func (f *FaultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	f.Gets++
	err := f.GetErr
	f.mu.Unlock()
	if err != nil && f.match(key) {
		return nil, err
	}
	if err := f.ctxErr(ctx); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, key)
}

func (f *FaultyStore) List(ctx context.Context, prefix string) ([]blob.Object, error) {
	f.mu.Lock()
	f.Lists++
	err := f.ListErr
	f.mu.Unlock()
	if err != nil && f.match(prefix) {
		return nil, err
	}
	if err := f.ctxErr(ctx); err != nil {
		return nil, err
	}
	return f.Store.List(ctx, prefix)
}

func (f *FaultyStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	err := f.DeleteErr
	f.mu.Unlock()
	if err != nil && f.match(key) {
		return err
	}
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

// SetErrs swaps the injected errors under the lock; safe while requests are in flight.
func (f *FaultyStore) SetErrs(put, get, list, del error) {
	f.mu.Lock()
	f.PutErr, f.GetErr, f.ListErr, f.DeleteErr = put, get, list, del
	f.mu.Unlock()
}

// GetCount returns how many Get calls have been made.
func (f *FaultyStore) GetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Gets
}

// MockSessionCache implements auth.SessionCache for tests.
// Stateful...sessions live in a map. Use *Err fields to inject errors.
type MockSessionCache struct {
	GetSessionErr    error
	SetSessionErr    error
	DeleteSessionErr error
	DeleteAllErr     error
	HealthErr        error

	Sessions map[string]store.CachedSession

	mu sync.Mutex
}

func NewMockSessionCache() *MockSessionCache {
	return &MockSessionCache{Sessions: make(map[string]store.CachedSession)}
}

func (m *MockSessionCache) CheckHealth(context.Context) error { return m.HealthErr }

func (m *MockSessionCache) SetSession(_ context.Context, id string, s store.CachedSession, _ time.Duration) error {
	if m.SetSessionErr != nil {
		return m.SetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Sessions == nil {
		m.Sessions = make(map[string]store.CachedSession)
	}
	m.Sessions[id] = s
	return nil
}

func (m *MockSessionCache) GetSession(_ context.Context, id string) (*store.CachedSession, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[id]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return &s, nil
}

func (m *MockSessionCache) DeleteSession(_ context.Context, id string, _ uuid.UUID) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, id)
	return nil
}

func (m *MockSessionCache) DeleteAllUserSessions(_ context.Context, userID uuid.UUID) error {
	if m.DeleteAllErr != nil {
		return m.DeleteAllErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.Sessions {
		if s.UserID == userID {
			delete(m.Sessions, id)
		}
	}
	return nil
}

// Len returns the number of cached sessions.
func (m *MockSessionCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sessions)
}
