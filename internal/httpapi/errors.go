package httpapi

import (
	"errors"
	"net/http"

	"image-processor/internal/domain"
)

// statusFor maps a domain error kind to its HTTP status (§7).
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedMime):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNothingToUndo),
		errors.Is(err, domain.ErrCannotUndoOriginal):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCodec):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConcurrency):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrProtocol):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStorage),
		errors.Is(err, domain.ErrMetadata),
		errors.Is(err, domain.ErrCache),
		errors.Is(err, domain.ErrCorrupted):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
