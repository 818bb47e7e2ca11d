// Package app wires the HTTP server: config, metadata store, object store,
// cache, and the Image/Revision services, following the teacher's
// App{cfg, server, logger, ...}/NewApp/Run shape.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"image-processor/internal/broker"
	"image-processor/internal/cache"
	"image-processor/internal/config"
	"image-processor/internal/httpapi"
	"image-processor/internal/migrations"
	"image-processor/internal/retry"
	"image-processor/internal/service/image"
	"image-processor/internal/service/revision"
	"image-processor/internal/storage/metadata"
	"image-processor/internal/storage/object"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

type App struct {
	cfg      *config.Config
	server   *http.Server
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *broker.Producer
}

func NewApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	retries := retry.Default()

	if err := migrations.Run(cfg.PostgresDSN(), logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	redisClient, err := cache.Dial(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure redis client: %w", err)
	}

	metaStore := metadata.New(pool, retries)
	objStore := object.New(minioClient, cfg, retries)
	if err := objStore.EnsureBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure buckets: %w", err)
	}
	thumbCache := cache.New(redisClient)

	producer := broker.NewProducer(splitBrokers(cfg.KafkaBrokers), retries)

	revisionSvc := revision.New(revision.NewPostgresMetadataStore(metaStore), objStore, thumbCache, logger).
		WithWarmNotifier(producer)
	imageSvc := image.New(metaStore, objStore, thumbCache, logger)

	handler := httpapi.NewHandler(imageSvc, revisionSvc, logger)
	mux := httpapi.NewRouter(handler, cfg.CORSOrigin)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	return &App{cfg: cfg, server: server, logger: logger, pool: pool, redis: redisClient, producer: producer}, nil
}

func (a *App) Run() error {
	a.logger.Info().Str("addr", a.server.Addr).Msg("starting server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.handleSignals(cancel)

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		a.logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("server shutdown failed")
		}

		a.pool.Close()
		_ = a.redis.Close()
		_ = a.producer.Close()

		a.logger.Info().Msg("server stopped gracefully")
		return nil
	}
}

func (a *App) handleSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	a.logger.Info().Str("signal", sig.String()).Msg("received signal")
	cancel()
}

func splitBrokers(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return []string{"localhost:9092"}
	}
	return out
}
