package domain

import "time"

// MIME types accepted at ingest. Anything else fails ErrUnsupportedMime/415.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// MaxIngestBytes bounds the size of an uploaded original (§4.7, §3).
const MaxIngestBytes = 10 << 20

func AllowedIngestMime(mime string) bool {
	return mime == MimeJPEG || mime == MimePNG
}

// Image is an immutable uploaded original and the identity under which all
// edits of it are grouped. Never mutated in place; destroyed (cascading to
// revisions and blobs) on explicit delete.
type Image struct {
	ID           string
	Owner        string
	OriginalPath string
	SizeBytes    int64
	Mime         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Revision is an immutable derived artifact produced by applying one
// Operation to a source (another revision or the original).
type Revision struct {
	ID            string
	ImageID       string
	ParentID      *string
	OpType        OperationType
	OpParams      map[string]any
	StoragePath   string
	ContentType   string
	CreatedAt     time.Time
	TombstonedAt  *time.Time
}

func (r Revision) IsTombstoned() bool { return r.TombstonedAt != nil }
