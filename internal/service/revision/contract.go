package revision

import (
	"context"
	"time"

	"image-processor/internal/domain"
	"image-processor/internal/storage/metadata"
	"image-processor/internal/storage/object"
)

// metadataStore and imageTxn narrow *metadata.Store / *metadata.ImageTxn to
// what this service needs, following the teacher's contract-first pattern
// (internal/usecase/image/contract.go) — unit tests substitute in-memory
// fakes instead of a live Postgres connection.
type metadataStore interface {
	GetImage(ctx context.Context, id string) (*domain.Image, error)
	GetHistory(ctx context.Context, imageID string) ([]domain.Revision, error)
	WithImageLock(ctx context.Context, imageID string, fn func(ctx context.Context, txn imageTxn) error) error
}

type imageTxn interface {
	GetImage(ctx context.Context) (*domain.Image, error)
	GetLatestRevision(ctx context.Context) (*domain.Revision, error)
	GetRevision(ctx context.Context, id string) (*domain.Revision, error)
	CreateRevision(ctx context.Context, rev *domain.Revision) error
	Tombstone(ctx context.Context, revisionID string, at time.Time) error
}

type objectStore interface {
	Get(ctx context.Context, bucket object.Bucket, path string) ([]byte, error)
	Put(ctx context.Context, bucket object.Bucket, path string, data []byte, contentType string) error
}

type thumbCache interface {
	InvalidateThumb(ctx context.Context, imageID string) error
}

// warmNotifier is the optional best-effort thumbnail-warm publisher
// (SPEC_FULL.md §4.8 supplement). A nil warmNotifier is valid: ApplyOp and
// Undo simply skip the notification.
type warmNotifier interface {
	NotifyThumbnailWarm(ctx context.Context, imageID string) error
}

// postgresAdapter adapts *metadata.Store's concrete ImageTxn callback shape
// to the imageTxn interface above, so production code can hand a real
// metadata.Store to revision.New while tests hand in a fakeMetadata.
type postgresAdapter struct {
	store *metadata.Store
}

// NewPostgresMetadataStore wraps a live metadata.Store for production
// wiring (cmd/server).
func NewPostgresMetadataStore(store *metadata.Store) metadataStore {
	return postgresAdapter{store: store}
}

func (a postgresAdapter) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	return a.store.GetImage(ctx, id)
}

func (a postgresAdapter) GetHistory(ctx context.Context, imageID string) ([]domain.Revision, error) {
	return a.store.GetHistory(ctx, imageID)
}

func (a postgresAdapter) WithImageLock(ctx context.Context, imageID string, fn func(ctx context.Context, txn imageTxn) error) error {
	return a.store.WithImageLock(ctx, imageID, func(ctx context.Context, txn *metadata.ImageTxn) error {
		return fn(ctx, txn)
	})
}
