package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MGallo-Code/dirshare/internal/blob"
	"github.com/gofrs/uuid/v5"
)

func newTestRecords(t *testing.T) (*Records, *blob.Memory) {
	t.Helper()
	m := blob.NewMemory()
	return NewRecords(m), m
}

func newUser(t *testing.T, phone string) *User {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("generating id: %v", err)
	}
	return &User{
		ID:           id,
		PhoneNumber:  phone,
		PasswordHash: "hash",
		RegisteredAt: time.Now().UTC(),
		IsActive:     true,
	}
}

// --- Users ---

func TestUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateUser then GetUserByPhone uses the index", func(t *testing.T) {
		r, _ := newTestRecords(t)
		u := newUser(t, "13800000000")
		if err := r.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}

		got, err := r.GetUserByPhone(ctx, "13800000000")
		if err != nil {
			t.Fatalf("GetUserByPhone failed: %v", err)
		}
		if got.ID != u.ID {
			t.Errorf("ID: expected %v, got %v", u.ID, got.ID)
		}
	})

	t.Run("GetUserByPhone does not scan on an index miss by default", func(t *testing.T) {
		r, m := newTestRecords(t)
		u := newUser(t, "13900000001")
		if err := blob.PutJSON(ctx, m, userKey(u.ID), u); err != nil {
			t.Fatalf("seeding user: %v", err)
		}

		if _, err := r.GetUserByPhone(ctx, "13900000001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound without ScanOnIndexMiss, got %v", err)
		}
	})

	t.Run("GetUserByPhone scans and repairs the index when ScanOnIndexMiss is set", func(t *testing.T) {
		r, m := newTestRecords(t)
		r.ScanOnIndexMiss = true
		u := newUser(t, "13900000001")
		if err := blob.PutJSON(ctx, m, userKey(u.ID), u); err != nil {
			t.Fatalf("seeding user: %v", err)
		}

		got, err := r.GetUserByPhone(ctx, "13900000001")
		if err != nil {
			t.Fatalf("GetUserByPhone failed: %v", err)
		}
		if got.ID != u.ID {
			t.Errorf("ID: expected %v, got %v", u.ID, got.ID)
		}

		raw, err := m.Get(ctx, phoneIndexPrefix+"13900000001")
		if err != nil {
			t.Fatalf("phone index not repaired: %v", err)
		}
		if string(raw) != u.ID.String() {
			t.Errorf("index entry: expected %v, got %q", u.ID, raw)
		}
	})

	t.Run("GetUserByPhone returns ErrNotFound for an unknown phone", func(t *testing.T) {
		r, _ := newTestRecords(t)
		if _, err := r.GetUserByPhone(ctx, "13700000000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateUser persists changes", func(t *testing.T) {
		r, _ := newTestRecords(t)
		u := newUser(t, "13600000000")
		r.CreateUser(ctx, u)

		now := time.Now().UTC().Truncate(time.Second)
		u.LastLoginAt = &now
		if err := r.UpdateUser(ctx, u); err != nil {
			t.Fatalf("UpdateUser failed: %v", err)
		}
		got, _ := r.GetUser(ctx, u.ID)
		if got.LastLoginAt == nil || !got.LastLoginAt.Equal(now) {
			t.Errorf("LastLoginAt: expected %v, got %v", now, got.LastLoginAt)
		}
	})

	t.Run("Public drops the password hash", func(t *testing.T) {
		u := newUser(t, "13500000000")
		raw, _ := json.Marshal(u.Public())
		var m map[string]any
		json.Unmarshal(raw, &m)
		if _, ok := m["passwordHash"]; ok {
			t.Error("public user must not carry passwordHash")
		}
	})
}

// --- Sessions ---

func TestSessions(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecords(t)
	alice, _ := uuid.NewV7()
	bob, _ := uuid.NewV7()

	for _, s := range []*Session{
		{ID: "a1", UserID: alice, ExpiresAt: time.Now().Add(time.Hour)},
		{ID: "a2", UserID: alice, ExpiresAt: time.Now().Add(time.Hour)},
		{ID: "b1", UserID: bob, ExpiresAt: time.Now().Add(time.Hour)},
	} {
		if err := r.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	t.Run("ListUserSessions filters by owner", func(t *testing.T) {
		got, err := r.ListUserSessions(ctx, alice)
		if err != nil {
			t.Fatalf("ListUserSessions failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 sessions, got %d", len(got))
		}
	})

	t.Run("DeleteUserSessions leaves other users alone", func(t *testing.T) {
		ids, err := r.DeleteUserSessions(ctx, alice)
		if err != nil {
			t.Fatalf("DeleteUserSessions failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 deleted ids, got %v", ids)
		}
		if _, err := r.GetSession(ctx, "a1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("a1: expected ErrNotFound, got %v", err)
		}
		if _, err := r.GetSession(ctx, "b1"); err != nil {
			t.Errorf("b1 should survive, got %v", err)
		}
	})
}

// --- Codes ---

func TestCodeUsable(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		code ActivationCode
		want bool
	}{
		{"under cap, no expiry", ActivationCode{UsageCount: 0, MaxUsage: 1}, true},
		{"at cap", ActivationCode{UsageCount: 1, MaxUsage: 1}, false},
		{"expired", ActivationCode{UsageCount: 0, MaxUsage: 5, ExpiresAt: &past}, false},
		{"not yet expired", ActivationCode{UsageCount: 4, MaxUsage: 5, ExpiresAt: &future}, true},
		{"expiring exactly now", ActivationCode{MaxUsage: 5, ExpiresAt: &now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Usable(now); got != tt.want {
				t.Errorf("Usable: expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("invitation codes share the rule", func(t *testing.T) {
		c := InvitationCode{UsageCount: 2, MaxUsage: 2}
		if c.Usable(now) {
			t.Error("exhausted invitation code should not be usable")
		}
	})
}

func TestCodesRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecords(t)

	if err := r.PutActivationCode(ctx, &ActivationCode{Code: "ABCD1234", MaxUsage: 1}); err != nil {
		t.Fatalf("PutActivationCode failed: %v", err)
	}
	got, err := r.GetActivationCode(ctx, "ABCD1234")
	if err != nil || got.MaxUsage != 1 {
		t.Fatalf("GetActivationCode: got %+v, %v", got, err)
	}
	if _, err := r.GetInvitationCode(ctx, "ABCD1234"); !errors.Is(err, ErrNotFound) {
		t.Errorf("invitation namespace must be separate, got %v", err)
	}
}

// --- Projects ---

func TestProjects(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecords(t)
	owner, _ := uuid.NewV7()

	mk := func(name string) *Project {
		id, _ := uuid.NewV7()
		return &Project{ID: id, UserID: owner, Name: name, Data: json.RawMessage(`{"name":"root"}`)}
	}
	first, second := mk("first"), mk("second")

	t.Run("SaveProject prepends new projects to the owner index", func(t *testing.T) {
		r.SaveProject(ctx, first)
		r.SaveProject(ctx, second)

		list, err := r.ListUserProjects(ctx, owner)
		if err != nil {
			t.Fatalf("ListUserProjects failed: %v", err)
		}
		if len(list) != 2 || list[0].ID != second.ID {
			t.Errorf("expected [second first], got %+v", list)
		}
	})

	t.Run("SaveProject updates an existing summary in place", func(t *testing.T) {
		first.Name = "renamed"
		r.SaveProject(ctx, first)
		list, _ := r.ListUserProjects(ctx, owner)
		if len(list) != 2 || list[1].Name != "renamed" {
			t.Errorf("expected renamed summary at index 1, got %+v", list)
		}
	})

	t.Run("DeleteProject removes record and index entry", func(t *testing.T) {
		if err := r.DeleteProject(ctx, second); err != nil {
			t.Fatalf("DeleteProject failed: %v", err)
		}
		if _, err := r.GetProject(ctx, second.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		list, _ := r.ListUserProjects(ctx, owner)
		if len(list) != 1 || list[0].ID != first.ID {
			t.Errorf("expected only first, got %+v", list)
		}
	})

	t.Run("ListUserProjects is empty for a user with no index", func(t *testing.T) {
		nobody, _ := uuid.NewV7()
		list, err := r.ListUserProjects(ctx, nobody)
		if err != nil || len(list) != 0 {
			t.Errorf("expected empty list, got %v, %v", list, err)
		}
	})
}

// --- Short URLs ---

func TestShortURLs(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRecords(t)

	t.Run("ListShortURLIDs strips the key layout", func(t *testing.T) {
		r.PutShortURL(ctx, &ShortURL{ShortID: "abc234", OriginalURL: "https://a"})
		r.PutShortURL(ctx, &ShortURL{ShortID: "xyz789", OriginalURL: "https://b"})
		r.PutShortURLIndex(ctx, &ShortURLIndexEntry{ShortID: "abc234", OriginalURL: "https://a"})

		ids, err := r.ListShortURLIDs(ctx)
		if err != nil {
			t.Fatalf("ListShortURLIDs failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 ids, got %v", ids)
		}
	})

	t.Run("index lookup is keyed by original URL", func(t *testing.T) {
		e, err := r.GetShortURLIndex(ctx, "https://a")
		if err != nil {
			t.Fatalf("GetShortURLIndex failed: %v", err)
		}
		if e.ShortID != "abc234" {
			t.Errorf("ShortID: expected abc234, got %s", e.ShortID)
		}
		if _, err := r.GetShortURLIndex(ctx, "https://b"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for unindexed url, got %v", err)
		}
	})

	t.Run("DeleteShortURLIndex removes the entry", func(t *testing.T) {
		r.DeleteShortURLIndex(ctx, "https://a")
		if _, err := r.GetShortURLIndex(ctx, "https://a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
