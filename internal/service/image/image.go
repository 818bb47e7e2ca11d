// Package image implements the Image Service (§4.7): ingest, thumbnail
// derivation, metadata lookup, deletion, and download URL minting.
package image

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"image-processor/internal/cache"
	"image-processor/internal/domain"
	"image-processor/internal/pipeline"
	"image-processor/internal/storage/metadata"
	"image-processor/internal/storage/object"
)

const (
	thumbnailMaxDim   = 400
	thumbnailQuality  = 80
	thumbnailCacheTTL = time.Hour
)

type Service struct {
	meta    *metadata.Store
	objects *object.Store
	thumbs  *cache.Cache
	logger  zerolog.Logger
}

func New(meta *metadata.Store, objects *object.Store, thumbs *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{meta: meta, objects: objects, thumbs: thumbs, logger: logger}
}

// Ingest validates, stores, and registers a new Image, then synchronously
// derives its thumbnail (§2 ingest data flow, §4.7).
func (s *Service) Ingest(ctx context.Context, owner string, data []byte, mime string) (*domain.Image, string, error) {
	if int64(len(data)) > domain.MaxIngestBytes {
		return nil, "", fmt.Errorf("%w: %d bytes exceeds %d byte cap", domain.ErrTooLarge, len(data), domain.MaxIngestBytes)
	}
	if !domain.AllowedIngestMime(mime) {
		return nil, "", fmt.Errorf("%w: mime %q not in allow-list", domain.ErrUnsupportedMime, mime)
	}

	imageID := uuid.New().String()
	rawPath := object.RawPath(owner, imageID, object.ExtFromMime(mime))

	if err := s.objects.Put(ctx, object.BucketRaw, rawPath, data, mime); err != nil {
		return nil, "", err
	}

	now := time.Now()
	img := &domain.Image{
		ID:           imageID,
		Owner:        owner,
		OriginalPath: rawPath,
		SizeBytes:    int64(len(data)),
		Mime:         mime,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.meta.CreateImage(ctx, img); err != nil {
		_ = s.objects.Delete(ctx, object.BucketRaw, rawPath)
		return nil, "", err
	}

	thumbURL, err := s.deriveThumbnail(ctx, imageID, data)
	if err != nil {
		// Ingest itself has committed; a failed thumbnail derivation is
		// logged and reported only as an empty thumbnail URL. The Image
		// remains usable; RefreshThumbnail can derive the thumbnail later.
		s.logger.Error().Err(err).Str("image_id", imageID).Msg("thumbnail derivation failed at ingest")
		return img, "", nil
	}

	return img, thumbURL, nil
}

// deriveThumbnail resizes rawBytes to fit inside 400x400 with Lanczos-3,
// writes it to the thumb bucket, and populates the cache with a one-hour
// TTL (§4.7, §4.8).
func (s *Service) deriveThumbnail(ctx context.Context, imageID string, rawBytes []byte) (string, error) {
	img, err := pipeline.Decode(rawBytes)
	if err != nil {
		return "", err
	}

	thumbImg := pipeline.ThumbnailFitInside(img, thumbnailMaxDim)
	encoded, err := pipeline.EncodeJPEG(thumbImg, thumbnailQuality)
	if err != nil {
		return "", fmt.Errorf("%w: encode thumbnail: %v", domain.ErrCodec, err)
	}

	path := object.ThumbPath(imageID)
	if err := s.objects.Put(ctx, object.BucketThumb, path, encoded, domain.MimeJPEG); err != nil {
		return "", err
	}

	if err := s.thumbs.SetThumb(ctx, imageID, encoded, thumbnailCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("image_id", imageID).Msg("thumbnail cache population failed, swallowing")
	}

	return s.objects.SignedURL(ctx, object.BucketThumb, path, 0)
}

// RefreshThumbnail re-derives the thumbnail from the current latest
// revision (or the raw original, if none exists yet) and repopulates the
// cache. Called by the thumbnail-warm consumer in response to a best-effort
// notification published by the Revision Service (§4.8 supplement); never
// on the request path.
func (s *Service) RefreshThumbnail(ctx context.Context, imageID string) error {
	img, err := s.meta.GetImage(ctx, imageID)
	if err != nil {
		return err
	}

	srcBucket := object.BucketRaw
	srcPath := img.OriginalPath

	latest, err := s.meta.GetLatestRevision(ctx, imageID)
	if err != nil {
		return err
	}
	if latest != nil {
		srcBucket = object.BucketResults
		srcPath = latest.StoragePath
	}

	data, err := s.objects.Get(ctx, srcBucket, srcPath)
	if err != nil {
		return err
	}

	_, err = s.deriveThumbnail(ctx, imageID, data)
	return err
}

// GetThumbnail serves from cache when possible, falling back to the thumb
// bucket and re-populating the cache on miss — the cache is a performance
// layer only (§4.8, §9).
func (s *Service) GetThumbnail(ctx context.Context, imageID string) ([]byte, error) {
	if data, ok, err := s.thumbs.GetThumb(ctx, imageID); err == nil && ok {
		return data, nil
	}

	data, err := s.objects.Get(ctx, object.BucketThumb, object.ThumbPath(imageID))
	if err != nil {
		return nil, err
	}
	if err := s.thumbs.SetThumb(ctx, imageID, data, thumbnailCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("image_id", imageID).Msg("thumbnail cache population failed, swallowing")
	}
	return data, nil
}

func (s *Service) Metadata(ctx context.Context, imageID string) (*domain.Image, error) {
	return s.meta.GetImage(ctx, imageID)
}

// Delete cascades: metadata row (and its revisions, via ON DELETE CASCADE),
// then every object under results/<imageID>* and thumb/<imageID>.webp, then
// the raw original (§3 invariant 5, §8 invariant 4). Blob cleanup failures
// are real StorageErrors (§7) and must propagate: a 204 response promises
// the objects are gone, so silently swallowing a cleanup failure would
// violate invariant 4 without the caller ever finding out.
func (s *Service) Delete(ctx context.Context, imageID string) error {
	img, err := s.meta.GetImage(ctx, imageID)
	if err != nil {
		return err
	}

	if err := s.meta.DeleteImage(ctx, imageID); err != nil {
		return err
	}

	var blobErr error
	if err := s.objects.DeleteAllForImage(ctx, imageID); err != nil {
		s.logger.Error().Err(err).Str("image_id", imageID).Msg("failed to delete result/thumb objects")
		blobErr = err
	}
	if err := s.objects.Delete(ctx, object.BucketRaw, img.OriginalPath); err != nil {
		s.logger.Error().Err(err).Str("image_id", imageID).Msg("failed to delete raw object")
		if blobErr == nil {
			blobErr = err
		}
	}

	// Cache invalidation stays best-effort (§4.6 step 9, §7): a stale
	// thumbnail cache entry is a performance concern, not a correctness one.
	if err := s.thumbs.InvalidateThumb(ctx, imageID); err != nil {
		s.logger.Warn().Err(err).Str("image_id", imageID).Msg("thumbnail cache invalidation failed, swallowing")
	}

	return blobErr
}

// DownloadURL signs a URL for the original (revisionID == "") or a specific
// revision's result blob.
func (s *Service) DownloadURL(ctx context.Context, imageID, revisionID string) (string, error) {
	if revisionID == "" {
		img, err := s.meta.GetImage(ctx, imageID)
		if err != nil {
			return "", err
		}
		return s.objects.SignedURL(ctx, object.BucketRaw, img.OriginalPath, 0)
	}

	rev, err := s.meta.GetRevision(ctx, revisionID)
	if err != nil {
		return "", err
	}
	if rev.ImageID != imageID {
		return "", fmt.Errorf("%w: revision %s does not belong to image %s", domain.ErrNotFound, revisionID, imageID)
	}
	return s.objects.SignedURL(ctx, object.BucketResults, rev.StoragePath, 0)
}
