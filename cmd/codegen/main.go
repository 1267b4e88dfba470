// Command codegen issues activation codes for accounts created while
// REQUIRE_ACTIVATION is on. It writes to the same blob backend as the server.
//
//	codegen -max 1 -hours 24 -n 1
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MGallo-Code/dirshare/internal/auth"
	"github.com/MGallo-Code/dirshare/internal/blob"
	"github.com/MGallo-Code/dirshare/internal/config"
	"github.com/MGallo-Code/dirshare/internal/store"
	"github.com/redis/go-redis/v9"
)

func main() {
	maxUsage := flag.Int("max", 1, "uses allowed per code")
	hours := flag.Int("hours", 24, "hours until the codes expire; 0 for no expiry")
	n := flag.Int("n", 1, "number of codes to generate")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(context.Background(), *maxUsage, *hours, *n); err != nil {
		fmt.Fprintln(os.Stderr, "codegen:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, maxUsage, hours, n int) error {
	if maxUsage <= 0 || n <= 0 || hours < 0 {
		return fmt.Errorf("-max and -n must be positive, -hours must not be negative")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.BlobBackend == config.BackendMemory {
		return fmt.Errorf("BLOB_BACKEND=memory: codes would vanish when codegen exits")
	}

	var rdb *redis.Client
	if cfg.BlobBackend == config.BackendRedis {
		rdb, err = store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
	}

	// The server owns migrations; codegen expects the schema to exist.
	blobs, closeBlobs, err := blob.Open(ctx, cfg, rdb, nil)
	if err != nil {
		return err
	}
	defer closeBlobs()

	svc := auth.NewService(store.NewRecords(blob.WithTimeout(blobs, cfg.BlobTimeout)))
	ttl := time.Duration(hours) * time.Hour

	for i := 0; i < n; i++ {
		code, err := svc.CreateActivationCode(ctx, maxUsage, ttl)
		if err != nil {
			return fmt.Errorf("creating code %d of %d: %w", i+1, n, err)
		}
		expires := "never"
		if code.ExpiresAt != nil {
			expires = code.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%s\tmax_usage=%d\texpires=%s\n", code.Code, code.MaxUsage, expires)
	}
	return nil
}
