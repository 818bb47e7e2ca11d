// Package object implements the three-bucket object store (§4.3) on top of
// the MinIO S3-compatible client.
package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"image-processor/internal/config"
	"image-processor/internal/domain"
	"image-processor/internal/retry"
)

// Bucket names the three logical namespaces from §4.3.
type Bucket string

const (
	BucketRaw     Bucket = "raw"
	BucketResults Bucket = "results"
	BucketThumb   Bucket = "thumb"
)

const defaultSignedURLTTL = time.Hour

// BucketLifecycleTTL is the ceiling on a requested signed-URL TTL. The
// buckets themselves carry no lifecycle rule: EnsureBuckets creates them
// without one, so objects are not deleted by age.
const BucketLifecycleTTL = 24 * time.Hour

type Store struct {
	client  *minio.Client
	cfg     *config.Config
	retries retry.Strategy
	names   map[Bucket]string
}

func New(client *minio.Client, cfg *config.Config, retries retry.Strategy) *Store {
	prefix := cfg.GCSBucketPrefix
	if prefix == "" {
		prefix = "imgrev"
	}
	return &Store{
		client:  client,
		cfg:     cfg,
		retries: retries,
		names: map[Bucket]string{
			BucketRaw:     prefix + "-raw",
			BucketResults: prefix + "-results",
			BucketThumb:   prefix + "-thumb",
		},
	}
}

// EnsureBuckets creates the three buckets if they do not already exist.
// Called once at startup; idempotent.
func (s *Store) EnsureBuckets(ctx context.Context) error {
	for _, name := range s.names {
		exists, err := s.client.BucketExists(ctx, name)
		if err != nil {
			return fmt.Errorf("%w: bucket exists check for %s: %v", domain.ErrStorage, name, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("%w: make bucket %s: %v", domain.ErrStorage, name, err)
			}
		}
	}
	return nil
}

func (s *Store) Put(ctx context.Context, bucket Bucket, path string, data []byte, contentType string) error {
	var err error
	err = s.retries.Do(ctx, func() error {
		_, putErr := s.client.PutObject(ctx, s.names[bucket], path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: contentType,
		})
		return putErr
	})
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", domain.ErrStorage, bucket, path, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, bucket Bucket, path string) ([]byte, error) {
	var data []byte
	err := s.retries.Do(ctx, func() error {
		obj, getErr := s.client.GetObject(ctx, s.names[bucket], path, minio.GetObjectOptions{})
		if getErr != nil {
			return getErr
		}
		defer obj.Close()
		b, readErr := io.ReadAll(obj)
		if readErr != nil {
			return readErr
		}
		data = b
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, bucket, path)
		}
		return nil, fmt.Errorf("%w: get %s/%s: %v", domain.ErrStorage, bucket, path, err)
	}
	return data, nil
}

// SignedURL grants time-limited, read-only access. ttl is clamped to
// BucketLifecycleTTL.
func (s *Store) SignedURL(ctx context.Context, bucket Bucket, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	if ttl > BucketLifecycleTTL {
		ttl = BucketLifecycleTTL
	}

	u, err := s.client.PresignedGetObject(ctx, s.names[bucket], path, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("%w: sign %s/%s: %v", domain.ErrStorage, bucket, path, err)
	}
	return u.String(), nil
}

// Delete is idempotent: a missing object is not an error.
func (s *Store) Delete(ctx context.Context, bucket Bucket, path string) error {
	err := s.client.RemoveObject(ctx, s.names[bucket], path, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: delete %s/%s: %v", domain.ErrStorage, bucket, path, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, bucket Bucket, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.names[bucket], path, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat %s/%s: %v", domain.ErrStorage, bucket, path, err)
	}
	return true, nil
}

// DeleteAllForImage removes every object in results whose path begins with
// imageID, plus thumb/<imageID>.webp — used by Image.delete (§4.3, §8
// invariant 4).
func (s *Store) DeleteAllForImage(ctx context.Context, imageID string) error {
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for obj := range s.client.ListObjects(ctx, s.names[BucketResults], minio.ListObjectsOptions{
			Prefix:    imageID,
			Recursive: true,
		}) {
			if obj.Err != nil {
				continue
			}
			objectsCh <- obj
		}
	}()

	for rmErr := range s.client.RemoveObjects(ctx, s.names[BucketResults], objectsCh, minio.RemoveObjectsOptions{}) {
		if rmErr.Err != nil {
			return fmt.Errorf("%w: bulk delete for image %s: %v", domain.ErrStorage, imageID, rmErr.Err)
		}
	}

	return s.Delete(ctx, BucketThumb, ThumbPath(imageID))
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || strings.Contains(err.Error(), "key does not exist")
}

// Path conventions (§4.3).

func RawPath(owner, imageID, ext string) string {
	return fmt.Sprintf("%s/%s.%s", owner, imageID, ext)
}

func ResultPath(imageID, revisionID, ext string) string {
	return fmt.Sprintf("%s_%s.%s", imageID, revisionID, ext)
}

func ThumbPath(imageID string) string {
	return imageID + ".webp"
}

func ExtFromMime(mime string) string {
	switch mime {
	case domain.MimePNG:
		return "png"
	default:
		return "jpg"
	}
}
