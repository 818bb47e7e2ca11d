// Package metadata is the Postgres-backed Metadata Store (§4.4): the
// images and revisions relations, plus the per-image advisory lock that
// serializes the write path.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"image-processor/internal/domain"
	"image-processor/internal/retry"
)

type Store struct {
	pool    *pgxpool.Pool
	retries retry.Strategy
}

func New(pool *pgxpool.Pool, retries retry.Strategy) *Store {
	return &Store{pool: pool, retries: retries}
}

func (s *Store) CreateImage(ctx context.Context, img *domain.Image) error {
	const q = `
		INSERT INTO images (id, owner, original_path, size_bytes, mime, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	err := s.retries.Do(ctx, func() error {
		_, execErr := s.pool.Exec(ctx, q, img.ID, img.Owner, img.OriginalPath, img.SizeBytes, img.Mime, img.CreatedAt, img.UpdatedAt)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("%w: create image: %v", domain.ErrMetadata, err)
	}
	return nil
}

func (s *Store) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	return getImageTx(ctx, s.pool, id)
}

func getImageTx(ctx context.Context, q querier, id string) (*domain.Image, error) {
	const query = `
		SELECT id, owner, original_path, size_bytes, mime, created_at, updated_at
		FROM images WHERE id = $1
	`
	row := q.QueryRow(ctx, query, id)

	var img domain.Image
	err := row.Scan(&img.ID, &img.Owner, &img.OriginalPath, &img.SizeBytes, &img.Mime, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: image %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get image: %v", domain.ErrMetadata, err)
	}
	return &img, nil
}

// DeleteImage cascades to revisions via the schema's ON DELETE CASCADE
// (§3 invariant 5). Blob cleanup is the caller's responsibility (Image
// Service), since the metadata store does not know about bucket layout.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	const q = `DELETE FROM images WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("%w: delete image: %v", domain.ErrMetadata, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: image %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *Store) GetRevision(ctx context.Context, id string) (*domain.Revision, error) {
	return getRevisionTx(ctx, s.pool, id)
}

func getRevisionTx(ctx context.Context, q querier, id string) (*domain.Revision, error) {
	const query = `
		SELECT id, image_id, parent_id, op_type, op_params, storage_path, content_type, created_at, tombstoned_at
		FROM revisions WHERE id = $1
	`
	return scanRevision(q.QueryRow(ctx, query, id))
}

func (s *Store) GetLatestRevision(ctx context.Context, imageID string) (*domain.Revision, error) {
	return getLatestRevisionTx(ctx, s.pool, imageID)
}

func getLatestRevisionTx(ctx context.Context, q querier, imageID string) (*domain.Revision, error) {
	const query = `
		SELECT id, image_id, parent_id, op_type, op_params, storage_path, content_type, created_at, tombstoned_at
		FROM revisions
		WHERE image_id = $1 AND tombstoned_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	rev, err := scanRevision(q.QueryRow(ctx, query, imageID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rev, nil
}

// GetHistory returns all non-tombstoned revisions in ascending created_at
// order (§4.6 get_history).
func (s *Store) GetHistory(ctx context.Context, imageID string) ([]domain.Revision, error) {
	const query = `
		SELECT id, image_id, parent_id, op_type, op_params, storage_path, content_type, created_at, tombstoned_at
		FROM revisions
		WHERE image_id = $1 AND tombstoned_at IS NULL
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, imageID)
	if err != nil {
		return nil, fmt.Errorf("%w: get history: %v", domain.ErrMetadata, err)
	}
	defer rows.Close()

	var out []domain.Revision
	for rows.Next() {
		rev, scanErr := scanRevisionRows(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: scan history row: %v", domain.ErrMetadata, scanErr)
		}
		out = append(out, *rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: get history: %v", domain.ErrMetadata, err)
	}
	return out, nil
}

// ImageTxn is the set of Metadata Store operations available to a callback
// running inside WithImageLock — all on the locked transaction, never on
// the pool directly.
type ImageTxn struct {
	tx      pgx.Tx
	imageID string
}

func (t *ImageTxn) GetImage(ctx context.Context) (*domain.Image, error) {
	return getImageTx(ctx, t.tx, t.imageID)
}

func (t *ImageTxn) GetLatestRevision(ctx context.Context) (*domain.Revision, error) {
	return getLatestRevisionTx(ctx, t.tx, t.imageID)
}

func (t *ImageTxn) GetRevision(ctx context.Context, id string) (*domain.Revision, error) {
	return getRevisionTx(ctx, t.tx, id)
}

func (t *ImageTxn) CreateRevision(ctx context.Context, rev *domain.Revision) error {
	const q = `
		INSERT INTO revisions (id, image_id, parent_id, op_type, op_params, storage_path, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	params, err := json.Marshal(rev.OpParams)
	if err != nil {
		return fmt.Errorf("%w: marshal op_params: %v", domain.ErrMetadata, err)
	}
	_, err = t.tx.Exec(ctx, q, rev.ID, rev.ImageID, rev.ParentID, int(rev.OpType), params, rev.StoragePath, rev.ContentType, rev.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: create revision: %v", domain.ErrMetadata, err)
	}
	return nil
}

func (t *ImageTxn) Tombstone(ctx context.Context, revisionID string, at time.Time) error {
	const q = `UPDATE revisions SET tombstoned_at = $2 WHERE id = $1`
	_, err := t.tx.Exec(ctx, q, revisionID, at)
	if err != nil {
		return fmt.Errorf("%w: tombstone revision: %v", domain.ErrMetadata, err)
	}
	return nil
}

// WithImageLock acquires an exclusive, transaction-scoped advisory lock on
// imageID (pg_advisory_xact_lock, keyed by hashtext(imageID)) and invokes
// fn. The transaction commits on fn's successful return and rolls back
// otherwise; the lock is released automatically at transaction end on
// every exit path (§4.4).
func (s *Store) WithImageLock(ctx context.Context, imageID string, fn func(ctx context.Context, txn *ImageTxn) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", domain.ErrConcurrency, err)
	}
	defer tx.Rollback(ctx) // no-op if already committed

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, imageID); err != nil {
		return fmt.Errorf("%w: acquire image lock: %v", domain.ErrConcurrency, err)
	}

	txn := &ImageTxn{tx: tx, imageID: imageID}
	if err := fn(ctx, txn); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", domain.ErrMetadata, err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row pgx.Row) (*domain.Revision, error) {
	return scanRevisionRows(row)
}

func scanRevisionRows(row rowScanner) (*domain.Revision, error) {
	var (
		rev        domain.Revision
		opType     int
		paramsJSON []byte
		parentID   *string
	)
	err := row.Scan(&rev.ID, &rev.ImageID, &parentID, &opType, &paramsJSON, &rev.StoragePath, &rev.ContentType, &rev.CreatedAt, &rev.TombstonedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: revision", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: scan revision: %v", domain.ErrMetadata, err)
	}
	rev.ParentID = parentID
	rev.OpType = domain.OperationType(opType)
	if len(paramsJSON) > 0 {
		if jsonErr := json.Unmarshal(paramsJSON, &rev.OpParams); jsonErr != nil {
			return nil, fmt.Errorf("%w: unmarshal op_params: %v", domain.ErrMetadata, jsonErr)
		}
	}
	return &rev, nil
}
