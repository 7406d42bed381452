package main

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dilemma.fyi/internal/app"
	"dilemma.fyi/internal/auth"
	"dilemma.fyi/internal/cache"
	"dilemma.fyi/internal/database"
	"dilemma.fyi/internal/email"
	"dilemma.fyi/internal/ratelimit"
	"dilemma.fyi/internal/store"
)

// viewRetention is how long raw view events are kept before the daily purge
// drops them. All scoring windows are much shorter, so purged events can no
// longer influence any score except the all-time aggregates, which are
// computed before the purge runs.
const viewRetention = 90 * 24 * time.Hour

func main() {
	loadDotEnv(".env")

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	if err := database.Migrate(databaseURL); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("connect db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("ping db", "error", err)
		os.Exit(1)
	}

	queries := store.New(pool)

	var listings *cache.ListingCache
	if addr := os.Getenv("CACHE_ADDR"); addr != "" {
		client, err := cache.Connect(addr, os.Getenv("CACHE_PASSWORD"))
		if err != nil {
			logger.Error("connect cache", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		ttl, err := time.ParseDuration(envOrDefault("CACHE_TTL", "60s"))
		if err != nil {
			logger.Error("CACHE_TTL must be a duration")
			os.Exit(1)
		}
		listings = cache.NewListingCache(client, ttl, logger)
		logger.Info("listing cache enabled", "addr", addr, "ttl", ttl.String())
	}

	appURL := strings.TrimRight(envOrDefault("APP_URL", "http://localhost:8080"), "/")

	mailer := email.NewSender(
		envOrDefault("ZOHO_HOST", "api.zeptomail.eu"),
		os.Getenv("ZOHO_TOKEN"),
		envOrDefault("FROM_EMAIL", "noreply@dilemma.fyi"),
		envOrDefault("FROM_NAME", "Dilemma"),
		logger,
	)
	notifier := email.NewNotifier(mailer, queries, appURL, logger)

	responseLimiter := ratelimit.New(10, time.Minute)
	subscribeLimiter := ratelimit.New(5, time.Hour)
	done := make(chan struct{})
	responseLimiter.StartCleanup(5*time.Minute, done)
	subscribeLimiter.StartCleanup(5*time.Minute, done)

	a := &app.App{
		Queries:          queries,
		Notifier:         notifier,
		Admin:            auth.NewAdminGuard(os.Getenv("ADMIN_TOKEN_HASH"), logger),
		Listings:         listings,
		ResponseLimiter:  responseLimiter,
		SubscribeLimiter: subscribeLimiter,
		Log:              logger,
	}

	addr := envOrDefault("ADDR", ":8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Hourly sweep keeps ranked listings honest as scores decay, and the
	// daily purge trims raw view telemetry past its retention window.
	go func() {
		sweep := time.NewTicker(1 * time.Hour)
		purge := time.NewTicker(24 * time.Hour)
		defer sweep.Stop()
		defer purge.Stop()
		for {
			select {
			case <-sweep.C:
				updated, err := queries.RecalculateAll(context.Background(), time.Now().UTC(), logger)
				if err != nil {
					logger.Error("metrics sweep", "error", err)
					continue
				}
				logger.Info("metrics sweep complete", "updated", updated)
			case <-purge.C:
				cutoff := time.Now().UTC().Add(-viewRetention)
				purged, err := queries.PurgeOldViews(context.Background(), cutoff)
				if err != nil {
					logger.Error("view purge", "error", err)
					continue
				}
				logger.Info("view purge complete", "questions", purged)
			case <-done:
				return
			}
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdownCh
		logger.Info("shutdown signal received", "signal", sig.String())

		close(done)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); exists {
			continue
		}

		_ = os.Setenv(key, strings.Trim(value, `"'`))
	}
}
