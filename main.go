package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/dirshare/internal/auth"
	"github.com/MGallo-Code/dirshare/internal/blob"
	"github.com/MGallo-Code/dirshare/internal/captcha"
	"github.com/MGallo-Code/dirshare/internal/clock"
	"github.com/MGallo-Code/dirshare/internal/config"
	"github.com/MGallo-Code/dirshare/internal/projects"
	"github.com/MGallo-Code/dirshare/internal/shorturl"
	"github.com/MGallo-Code/dirshare/internal/store"
	"github.com/MGallo-Code/dirshare/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron"
	"github.com/redis/go-redis/v9"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// services bundles everything buildRouter and the maintenance jobs need.
type services struct {
	auth     *auth.AuthHandler
	short    *shorturl.Handler
	projects *projects.Handler
	throttle *web.IPThrottle
}

func newServices(cfg *config.Config, blobs blob.Store, cache auth.SessionCache) *services {
	records := store.NewRecords(blob.WithTimeout(blobs, cfg.BlobTimeout))
	records.ScanOnIndexMiss = cfg.PhoneIndexScan

	authSvc := auth.NewService(records)
	authSvc.Cache = cache
	authSvc.Limiter = auth.NewLoginLimiter(cfg.LoginMaxAttempts, cfg.LoginLockout, clock.Real{})
	authSvc.SessionTTL = cfg.SessionTTL
	authSvc.RequireActivation = cfg.RequireActivation

	shortSvc := shorturl.NewService(records)
	shortSvc.Cache = shorturl.NewCache(cfg.ShortURLCacheTTL)
	shortSvc.Expiry = cfg.ShortURLExpiry
	shortSvc.Grace = cfg.ShortURLGrace

	ah := &auth.AuthHandler{Svc: authSvc, Blobs: blobs, CookieSecure: cfg.CookieSecure}
	if cfg.TurnstileSecret != "" {
		ah.Captcha = captcha.NewTurnstileVerifier(cfg.TurnstileSecret, captcha.DefaultTurnstileURL)
	}

	return &services{
		auth:     ah,
		short:    &shorturl.Handler{Svc: shortSvc, BaseURL: cfg.BaseURL},
		projects: &projects.Handler{Svc: projects.NewService(records, shortSvc, cfg.BaseURL)},
		throttle: web.NewIPThrottle(cfg.RequestRate, cfg.RequestBurst),
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	// Shared Redis client; the session cache and the redis blob backend share one pool.
	var rdb *redis.Client
	var cache auth.SessionCache = store.NoopSessionCache{}
	if cfg.RedisURL != "" {
		var err error
		rdb, err = store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		cache = store.NewRedisSessionCache(rdb)
	}

	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	blobs, closeBlobs, err := blob.Open(ctx, cfg, rdb, migrationsFS)
	if err != nil {
		return err
	}
	defer closeBlobs()

	svc := newServices(cfg, blobs, cache)

	sched, err := startMaintenance(cfg, svc)
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	defer sched.Stop()

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{Handler: buildRouter(svc)}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("dirshare listening", "addr", ln.Addr().String(), "blob_backend", cfg.BlobBackend)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting conns, then waits for in-flight requests or the timeout.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	// Let background access bookkeeping land before the store closes.
	svc.short.Svc.Wait()

	slog.Info("server stopped")
	return nil
}

// startMaintenance schedules the periodic jobs: short URL retention sweep and
// pruning of the in-process cache, login counters and IP buckets.
func startMaintenance(cfg *config.Config, svc *services) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	shortSvc := svc.short.Svc
	if _, err := s.Every(cfg.CleanupInterval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CleanupInterval)
		defer cancel()
		if _, err := shortSvc.Cleanup(ctx); err != nil {
			slog.Warn("short url cleanup failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	limiter := svc.auth.Svc.Limiter
	if _, err := s.Every(cfg.ShortURLCacheTTL).Do(func() {
		cached := shortSvc.PruneCache()
		counters := limiter.Prune()
		buckets := svc.throttle.Prune(10 * time.Minute)
		slog.Debug("pruned in-process state", "short_url_cache", cached, "login_counters", counters, "ip_buckets", buckets)
	}); err != nil {
		return nil, err
	}

	s.StartAsync()
	return s, nil
}

// buildRouter wires all routes and middleware.
// Called from run() for smoke tests.
func buildRouter(svc *services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Default-deny: everything outside the public allow-list needs a session.
	r.Use(svc.auth.Gateway)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		web.JSON(w, http.StatusOK, map[string]string{"service": "dirshare"})
	})
	r.Get("/health", svc.auth.CheckHealth)

	r.Group(func(r chi.Router) {
		r.Use(svc.throttle.Middleware)

		r.Get("/auth/login", svc.auth.LoginRequired)
		r.Post("/auth/login", svc.auth.Login)
		r.Post("/auth/logout", svc.auth.Logout)
		r.Get("/auth/check-session", svc.auth.CheckSession)
		r.Post("/auth/register", svc.auth.Register)

		// /auth/ is public to the gateway; these still need a session.
		r.Group(func(r chi.Router) {
			r.Use(svc.auth.RequireSession)
			r.Post("/auth/change-password", svc.auth.ChangePassword)
			r.Post("/auth/logout-all", svc.auth.LogoutAll)
		})

		r.Post("/short-url", svc.short.Create)
	})

	r.Get("/s/{shortId}", svc.short.Redirect)
	r.Post("/invitation/generate", svc.auth.GenerateInvitation)

	r.Route("/api/projects", func(r chi.Router) {
		r.Post("/", svc.projects.Create)
		r.Get("/", svc.projects.List)
		r.Get("/{id}", svc.projects.Get)
		r.Patch("/{id}", svc.projects.Rename)
		r.Delete("/{id}", svc.projects.Delete)
	})
	r.Get("/api/public/projects/{id}", svc.projects.Public)
	r.Get("/public/projects/{id}", svc.projects.Public)

	return r
}
