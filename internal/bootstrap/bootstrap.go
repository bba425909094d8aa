// Package bootstrap wires the retiming service from process configuration.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/jumpcutter/internal/audio"
	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/job"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/metrics"
	"github.com/maauso/jumpcutter/internal/storage"
)

// Dependencies holds all initialized dependencies shared by the CLI and
// the HTTP server.
type Dependencies struct {
	Service *job.Service
	Metrics *metrics.Metrics
	Storage storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, scratch, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()

	engine := media.NewFFmpeg(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithScratchDir(scratch),
		media.WithObserver(m),
	)
	extractor := audio.NewFFmpegExtractor(cfg.FFmpegPath)

	repo := job.NewMemoryRepository()

	svc := job.NewService(repo, engine, extractor, engine, store, logger)
	svc.SetMaxConcurrentSections(cfg.MaxConcurrentSections)
	svc.SetRecorder(m)

	return &Dependencies{
		Service: svc,
		Metrics: m,
		Storage: store,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
// It also returns the root directory used for engine scratch files.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, s3Store.TempDir(), nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, localStore.TempDir(), nil
}
