package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MGallo-Code/dirshare/internal/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend", func(t *testing.T) {
		s, closeFn, err := Open(ctx, &config.Config{BlobBackend: config.BackendMemory}, nil, nil)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer closeFn()
		if _, ok := s.(*Memory); !ok {
			t.Errorf("expected *Memory, got %T", s)
		}
	})

	t.Run("sqlite backend opens the configured file", func(t *testing.T) {
		cfg := &config.Config{
			BlobBackend: config.BackendSQLite,
			SQLitePath:  filepath.Join(t.TempDir(), "blobs.db"),
		}
		s, closeFn, err := Open(ctx, cfg, nil, nil)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer closeFn()
		if _, ok := s.(*SQLite); !ok {
			t.Fatalf("expected *SQLite, got %T", s)
		}
		if _, err := s.Put(ctx, "k", []byte("v")); err != nil {
			t.Errorf("Put: %v", err)
		}
	})

	t.Run("redis backend without a client errors", func(t *testing.T) {
		_, closeFn, err := Open(ctx, &config.Config{BlobBackend: config.BackendRedis}, nil, nil)
		if err == nil {
			t.Error("expected error, got nil")
		}
		if closeFn == nil {
			t.Error("close func must never be nil")
		}
	})
}
