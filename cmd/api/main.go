package main

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"onelink/pkg/access"
	"onelink/pkg/blob"
	"onelink/pkg/config"
	"onelink/pkg/http"
	"onelink/pkg/logging"
	"onelink/pkg/middleware"
	"onelink/pkg/ratelimit"
	"onelink/pkg/service"
	"onelink/pkg/storage"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB connection
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	linkStorage := storage.NewPostgresStorage(pool)
	if err := linkStorage.ApplySchema(ctx); err != nil {
		log.Fatal(err)
	}

	// Redis connection
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	counters := ratelimit.NewRedisStore(redisClient)
	if err := counters.Ping(ctx); err != nil {
		// Limiting degrades per failure mode, so an unreachable Redis is not fatal.
		logger.Warn(ctx, "redis unreachable at startup", "error", err)
	}

	// Blob store
	blobs, err := blob.NewMinioStore(blob.MinioConfig{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		Region:    cfg.BlobRegion,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		log.Fatal(err)
	}

	// Rate limiting
	policies, err := ratelimit.DefaultPolicies().WithFailureModes(cfg.RateLimitFailureModes)
	if err != nil {
		log.Fatal(err)
	}
	fallback := ratelimit.NewLocalFallback()
	limiter := ratelimit.NewLimiter(counters, logger,
		ratelimit.WithRecorder(ratelimit.NewRedisStats(redisClient)),
		ratelimit.WithFallback(fallback),
	)
	gate := access.NewGate(limiter, policies, logger)
	go sweepFallback(ctx, fallback)

	// Auth
	var auth middleware.Authenticator
	switch cfg.AuthMode {
	case config.AuthModeSession:
		auth = middleware.NewSessionAuthenticator(cfg.SessionSecret)
	default:
		auth, err = middleware.NewOIDCAuthenticator(ctx, middleware.OAuthConfig{
			IssuerURL: cfg.OIDCIssuer,
			Audience:  cfg.OIDCAudience,
		})
		if err != nil {
			log.Fatal("Failed to create OIDC authenticator:", err)
		}
	}

	// Services
	links := service.NewLinkService(linkStorage, blobs, logger)
	resolver := service.NewSlugResolver(linkStorage, logger)
	services := http.Services{
		Links:       links,
		Resolver:    resolver,
		Uploads:     service.NewUploadService(links, blobs, logger),
		Accounts:    service.NewAccountService(linkStorage, linkStorage, blobs, logger),
		Browse:      service.NewBrowseService(linkStorage, logger),
		Maintenance: service.NewMaintenanceService(linkStorage, logger),
	}

	// Handler
	handler := http.NewHandler(services, gate, blobs, logger, http.Settings{
		FileServeMode: http.FileServeMode(cfg.FileServeMode),
		CronSecret:    cfg.CronSecret,
		AdminSecret:   cfg.AdminSecret,
		Development:   cfg.IsDevelopment(),
	})

	// Router
	r := chi.NewRouter()
	http.SetupRoutes(r, handler, auth)

	// Server
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "starting API server", "addr", srv.Addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown failed", "error", err)
	}
	resolver.Wait()
}

func sweepFallback(ctx context.Context, fallback *ratelimit.LocalFallback) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fallback.Cleanup(now)
		}
	}
}
