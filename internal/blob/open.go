// open.go -- backend selection from config.
package blob

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/MGallo-Code/dirshare/internal/config"
	"github.com/redis/go-redis/v9"
)

// Open connects the backend named by cfg.BlobBackend. The returned close func is never nil.
// rdb is reused by the redis backend so the session cache and blobs share one pool;
// its lifetime stays with the caller. migrations is applied to postgres when non-nil.
func Open(ctx context.Context, cfg *config.Config, rdb *redis.Client, migrations fs.FS) (Store, func(), error) {
	noop := func() {}
	switch cfg.BlobBackend {
	case config.BackendPostgres:
		ps, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to set up postgres blob store: %w", err)
		}
		if migrations != nil {
			if err := ps.Migrate(ctx, migrations); err != nil {
				ps.Close()
				return nil, noop, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return ps, ps.Close, nil

	case config.BackendSQLite:
		ss, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to set up sqlite blob store: %w", err)
		}
		return ss, func() { ss.Close() }, nil

	case config.BackendRedis:
		if rdb == nil {
			return nil, noop, fmt.Errorf("redis blob backend needs a redis client")
		}
		return NewRedisFromClient(rdb), noop, nil

	case config.BackendS3:
		s3s, err := NewS3(ctx, S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to set up s3 blob store: %w", err)
		}
		return s3s, noop, nil

	default:
		slog.Warn("using in-memory blob store; data is lost on restart")
		return NewMemory(), noop, nil
	}
}
