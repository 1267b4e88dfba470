// postgres.go -- pgxpool-backed Store.
//
// One table, one row per key. Creates a connection pool at startup, shared
// across all handlers. All queries use parameterized statements.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores blobs in the blobs table created by the embedded migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates and returns a verified connection pool wrapped in a Store.
// Call once at startup from main.go...the returned store is safe for concurrent use.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Postgres{pool}, nil
}

// Close shuts down the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping reports whether Postgres is reachable.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO blobs (key, data) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, data)
	if err != nil {
		return "", fmt.Errorf("putting %s: %w", key, err)
	}
	return key, nil
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, "SELECT data FROM blobs WHERE key = $1", key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return data, nil
}

func (s *Postgres) List(ctx context.Context, prefix string) ([]Object, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM blobs WHERE key LIKE $1 ESCAPE '\'`,
		likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		out = append(out, Object{Key: key, URL: key})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return out, nil
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM blobs WHERE key = $1", key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// likePrefix escapes LIKE wildcards in prefix and appends %.
// Shared with the SQLite backend.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
