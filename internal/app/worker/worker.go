// Package worker runs the thumbnail-warm consumer: a best-effort process
// that re-derives a thumbnail after ApplyOp or Undo commits and writes it to
// the thumb bucket and the cache (§4.8 supplement). GetThumbnail does not
// re-derive on a miss, so a lost message leaves the earlier thumbnail in
// place; it never touches the correctness path of the revision pipeline.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"image-processor/internal/broker"
	"image-processor/internal/cache"
	"image-processor/internal/config"
	"image-processor/internal/migrations"
	"image-processor/internal/retry"
	"image-processor/internal/service/image"
	"image-processor/internal/storage/metadata"
	"image-processor/internal/storage/object"
)

type thumbnailRefresher interface {
	RefreshThumbnail(ctx context.Context, imageID string) error
}

type Worker struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	redis       *cache.Cache
	consumer    *broker.Consumer
	images      thumbnailRefresher
	concurrency int
	wg          sync.WaitGroup
}

const defaultConcurrency = 4

func NewWorker(cfg *config.Config, logger zerolog.Logger) (*Worker, error) {
	retries := retry.Default()

	// The worker can be the first process up in a fresh environment, so it
	// applies migrations itself rather than assuming cmd/server already has.
	if err := migrations.Run(cfg.PostgresDSN(), logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN())
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
	thumbCache := cache.New(redisClient)
	imageSvc := image.New(metaStore, objStore, thumbCache, logger)

	consumer := broker.NewConsumer(splitBrokers(cfg.KafkaBrokers), "thumbnail-warm-worker")

	return &Worker{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redis:       thumbCache,
		consumer:    consumer,
		images:      imageSvc,
		concurrency: defaultConcurrency,
	}, nil
}

func (w *Worker) Run() error {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("starting thumbnail-warm worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		w.logger.Info().Str("signal", sig.String()).Msg("received signal, stopping worker")
		cancel()
	}()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.loop(ctx, id)
		}(i)
	}

	w.wg.Wait()

	w.pool.Close()
	_ = w.consumer.Close()

	w.logger.Info().Msg("thumbnail-warm worker stopped gracefully")
	return nil
}

func (w *Worker) loop(ctx context.Context, id int) {
	w.logger.Info().Int("worker_id", id).Msg("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug().Int("worker_id", id).Msg("worker stopping")
			return
		default:
		}

		msg, err := w.consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error().Err(err).Int("worker_id", id).Msg("failed to fetch message")
			continue
		}

		imageID := string(msg.Value)
		start := time.Now()

		if err := w.safeRefresh(ctx, imageID); err != nil {
			w.logger.Error().Err(err).Int("worker_id", id).Str("image_id", imageID).Msg("thumbnail refresh failed")
		} else {
			w.logger.Debug().Int("worker_id", id).Str("image_id", imageID).Dur("duration", time.Since(start)).Msg("thumbnail refreshed")
		}

		if err := w.consumer.CommitMessage(ctx, msg); err != nil {
			w.logger.Error().Err(err).Int("worker_id", id).Str("image_id", imageID).Msg("failed to commit message")
		}
	}
}

func (w *Worker) safeRefresh(ctx context.Context, imageID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic refreshing thumbnail for %s: %v", imageID, r)
		}
	}()
	return w.images.RefreshThumbnail(ctx, imageID)
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
