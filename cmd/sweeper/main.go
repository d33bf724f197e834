package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"onelink/pkg/blob"
	"onelink/pkg/config"
	"onelink/pkg/logging"
	"onelink/pkg/service"
	"onelink/pkg/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// sweeper deletes expired links and their files once and exits, for use from a
// scheduler that cannot call the cron endpoint.
func main() {
	cfg, err := config.LoadSweeper()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx)

	// DB connection
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

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

	links := service.NewLinkService(storage.NewPostgresStorage(pool), blobs, logger)
	result, err := links.SweepExpired(ctx)
	if err != nil {
		logger.Error(ctx, "sweep failed", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "sweep finished", "deleted", result.Deleted, "files_deleted", result.FilesDeleted)
}
