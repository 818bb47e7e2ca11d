package domain

import "errors"

// Sentinel error kinds (§7). The HTTP layer maps these to status codes with
// errors.Is; lower layers wrap them with fmt.Errorf("...: %w", err).
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrTooLarge           = errors.New("payload too large")
	ErrUnsupportedMime    = errors.New("unsupported mime type")
	ErrCodec              = errors.New("codec error")
	ErrStorage            = errors.New("storage error")
	ErrMetadata           = errors.New("metadata error")
	ErrCache              = errors.New("cache error")
	ErrConcurrency        = errors.New("concurrency error")
	ErrProtocol           = errors.New("protocol error")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrCannotUndoOriginal = errors.New("cannot undo the original revision")
	ErrCorrupted          = errors.New("corrupted revision chain")
)
