// Package main is the entry point for the PhotoFlow server binary. In Go every
// executable program must define package main and a main() function, while
// libraries use other package names.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/PhotoFlow/internal/blob"
	"github.com/dharsanguruparan/PhotoFlow/internal/config"
	"github.com/dharsanguruparan/PhotoFlow/internal/events"
	"github.com/dharsanguruparan/PhotoFlow/internal/scheduler"
	"github.com/dharsanguruparan/PhotoFlow/internal/server"
	"github.com/dharsanguruparan/PhotoFlow/internal/signing"
	"github.com/dharsanguruparan/PhotoFlow/internal/store"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Step 1: load configuration from environment variables (Go prefers
	// returning values + errors rather than throwing exceptions).
	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Step 2: construct dependencies. In Go it's idiomatic to instantiate
	// structs via constructors that return pointers.
	photos, err := store.NewPhotoStore(cfg.DataDir)
	if err != nil {
		log.Error("init photo store", slog.String("err", err.Error()))
		os.Exit(1)
	}
	logbook, err := store.NewWorkflowLog(cfg.DataDir)
	if err != nil {
		log.Error("init workflow log", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// Step 3: create a context that cancels when SIGINT/SIGTERM arrive. Context
	// is Go's mechanism for cancellation deadlines and propagation.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := newBlobStorage(ctx, cfg)
	if err != nil {
		log.Error("init blob storage", slog.String("err", err.Error()))
		os.Exit(1)
	}

	bus := events.NewBus(log, cfg.EventBuffer)
	sched := scheduler.New(log, photos, bus, scheduler.Config{
		TickInterval:       cfg.TickInterval,
		ProcessingDuration: cfg.ProcessingDuration,
		SuccessRate:        cfg.SuccessRate,
	})
	signer := signing.NewSigner(cfg.SigningSecret)
	srv := server.New(cfg, log, photos, logbook, bus, blobs, sched, signer)

	log.Info("PhotoFlow listening", slog.String("addr", cfg.Address))
	// Step 4: block until the HTTP server exits.
	if err := srv.Serve(ctx); err != nil {
		log.Error("server stopped", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

// newBlobStorage picks the byte backend: an S3 endpoint selects MinIO,
// otherwise photo bytes live in the local uploads directory.
func newBlobStorage(ctx context.Context, cfg *config.Config) (blob.Storage, error) {
	if cfg.S3Endpoint == "" {
		return blob.NewDisk(cfg.UploadDir)
	}
	s3, err := blob.NewS3(blob.S3Options{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s3, nil
}
