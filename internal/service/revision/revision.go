// Package revision implements the Revision Service (§4.6): the state
// machine at the heart of the repository. apply_op and undo serialize
// through the Metadata Store's per-image lock; get_history reads without it.
package revision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"image-processor/internal/domain"
	"image-processor/internal/pipeline"
	"image-processor/internal/storage/object"
)

type Service struct {
	meta    metadataStore
	objects objectStore
	thumbs  thumbCache
	warm    warmNotifier
	logger  zerolog.Logger
}

func New(meta metadataStore, objects objectStore, thumbs thumbCache, logger zerolog.Logger) *Service {
	return &Service{meta: meta, objects: objects, thumbs: thumbs, logger: logger}
}

// WithWarmNotifier attaches the best-effort thumbnail-warm publisher.
// Optional: a Service without one simply skips the notification.
func (s *Service) WithWarmNotifier(warm warmNotifier) *Service {
	s.warm = warm
	return s
}

const warmNotifyTimeout = 5 * time.Second

// notifyWarm publishes in the background under its own short deadline, so
// the caller's response never waits on the send.
func (s *Service) notifyWarm(ctx context.Context, imageID string) {
	if s.warm == nil {
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), warmNotifyTimeout)
		defer cancel()
		if err := s.warm.NotifyThumbnailWarm(sendCtx, imageID); err != nil {
			s.logger.Warn().Err(err).Str("image_id", imageID).Msg("thumbnail warm notification failed, swallowing")
		}
	}()
}

// ApplyOp is the state machine of §4.6: re-read the image, select the
// source (latest revision's result, or the original), run the Pipeline
// Adapter, write the result blob, insert the revision row, and — best
// effort, outside the transaction — invalidate the thumbnail cache.
func (s *Service) ApplyOp(ctx context.Context, imageID string, op domain.Operation) (*domain.Revision, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	var committed *domain.Revision

	err := s.meta.WithImageLock(ctx, imageID, func(ctx context.Context, txn imageTxn) error {
		img, err := txn.GetImage(ctx)
		if err != nil {
			return err
		}

		parent, err := txn.GetLatestRevision(ctx)
		if err != nil {
			return err
		}

		var srcBucket object.Bucket
		var srcPath, srcMime string
		if parent != nil {
			srcBucket = object.BucketResults
			srcPath = parent.StoragePath
			srcMime = parent.ContentType
		} else {
			srcBucket = object.BucketRaw
			srcPath = img.OriginalPath
			srcMime = img.Mime
		}

		srcBytes, err := s.objects.Get(ctx, srcBucket, srcPath)
		if err != nil {
			return fmt.Errorf("%w: read source for %s: %v", domain.ErrStorage, imageID, err)
		}

		result, err := pipeline.Apply(op, srcBytes, srcMime)
		if err != nil {
			return err
		}

		revisionID := uuid.New().String()
		resultPath := object.ResultPath(imageID, revisionID, object.ExtFromMime(result.ContentType))

		if err := s.objects.Put(ctx, object.BucketResults, resultPath, result.Bytes, result.ContentType); err != nil {
			return fmt.Errorf("%w: write revision result: %v", domain.ErrStorage, err)
		}

		var parentID *string
		if parent != nil {
			parentID = &parent.ID
		}

		rev := &domain.Revision{
			ID:          revisionID,
			ImageID:     imageID,
			ParentID:    parentID,
			OpType:      op.Type(),
			OpParams:    op.Params(),
			StoragePath: resultPath,
			ContentType: result.ContentType,
			CreatedAt:   time.Now(),
		}

		if err := txn.CreateRevision(ctx, rev); err != nil {
			return err
		}

		committed = rev
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.thumbs.InvalidateThumb(ctx, imageID); err != nil {
		s.logger.Warn().Err(err).Str("image_id", imageID).Msg("thumbnail cache invalidation failed, swallowing")
	}
	s.notifyWarm(ctx, imageID)

	return committed, nil
}

// Undo walks the active revision back one step. It tombstones the current
// latest revision rather than deleting it or its blob — the tombstoned row
// stays in place as a diverged tail, and a subsequent ApplyOp will take the
// newly-visible latest revision as its parent (§4.6).
func (s *Service) Undo(ctx context.Context, imageID string) (*domain.Revision, error) {
	var result *domain.Revision

	err := s.meta.WithImageLock(ctx, imageID, func(ctx context.Context, txn imageTxn) error {
		if _, err := txn.GetImage(ctx); err != nil {
			return err
		}

		cur, err := txn.GetLatestRevision(ctx)
		if err != nil {
			return err
		}
		if cur == nil {
			return domain.ErrNothingToUndo
		}
		if cur.ParentID == nil {
			return domain.ErrCannotUndoOriginal
		}

		parent, err := txn.GetRevision(ctx, *cur.ParentID)
		if err != nil {
			return fmt.Errorf("%w: parent %s of %s missing", domain.ErrCorrupted, *cur.ParentID, cur.ID)
		}

		if err := txn.Tombstone(ctx, cur.ID, time.Now()); err != nil {
			return err
		}

		result = parent
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.thumbs.InvalidateThumb(ctx, imageID); err != nil {
		s.logger.Warn().Err(err).Str("image_id", imageID).Msg("thumbnail cache invalidation failed, swallowing")
	}
	s.notifyWarm(ctx, imageID)

	return result, nil
}

// GetHistory returns all non-tombstoned revisions of imageID in ascending
// created_at order. Read-only: does not take the per-image lock (§5).
func (s *Service) GetHistory(ctx context.Context, imageID string) ([]domain.Revision, error) {
	if _, err := s.meta.GetImage(ctx, imageID); err != nil {
		return nil, err
	}
	return s.meta.GetHistory(ctx, imageID)
}
