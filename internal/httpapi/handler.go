// Package httpapi is the HTTP transport: handlers, DTOs, router, and
// middleware for the surface described in §6.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"image-processor/internal/domain"
	"image-processor/internal/httpapi/dto"
)

// imageService and revisionService narrow the concrete service.Service
// types to what the handler needs, following the teacher's
// contract-at-call-site pattern.
type imageService interface {
	Ingest(ctx context.Context, owner string, data []byte, mime string) (*domain.Image, string, error)
	Metadata(ctx context.Context, imageID string) (*domain.Image, error)
	Delete(ctx context.Context, imageID string) error
	DownloadURL(ctx context.Context, imageID, revisionID string) (string, error)
}

type revisionService interface {
	ApplyOp(ctx context.Context, imageID string, op domain.Operation) (*domain.Revision, error)
	Undo(ctx context.Context, imageID string) (*domain.Revision, error)
	GetHistory(ctx context.Context, imageID string) ([]domain.Revision, error)
}

type Handler struct {
	images    imageService
	revisions revisionService
	validate  *validator.Validate
	logger    zerolog.Logger
}

func NewHandler(images imageService, revisions revisionService, logger zerolog.Logger) *Handler {
	return &Handler{images: images, revisions: revisions, validate: validator.New(), logger: logger}
}

const maxUploadMemory = 32 << 20

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxIngestBytes+1024)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "field \"image\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	mime := header.Header.Get("Content-Type")
	owner := UserIDFromContext(ctx)

	img, thumbURL, err := h.images.Ingest(ctx, owner, data, mime)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, dto.UploadResponse{
		ImageID:      img.ID,
		ThumbnailURL: thumbURL,
		Size:         img.SizeBytes,
		MimeType:     img.Mime,
	})
}

func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	img, err := h.images.Metadata(ctx, id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	downloadURL, err := h.images.DownloadURL(ctx, id, "")
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, dto.ImageResponse{
		ImageID:     img.ID,
		Owner:       img.Owner,
		MimeType:    img.Mime,
		Size:        img.SizeBytes,
		CreatedAt:   img.CreatedAt,
		UpdatedAt:   img.UpdatedAt,
		DownloadURL: downloadURL,
	})
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.images.Delete(r.Context(), id); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Rotate(w http.ResponseWriter, r *http.Request) {
	var req dto.RotateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.applyOp(w, r, domain.RotateOp{Degrees: req.Degrees})
}

func (h *Handler) Flip(w http.ResponseWriter, r *http.Request) {
	var req dto.FlipRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.applyOp(w, r, domain.FlipOp{Horizontal: req.Horizontal, Vertical: req.Vertical})
}

func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	var req dto.ResizeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.applyOp(w, r, domain.ResizeOp{Width: req.Width, Height: req.Height})
}

func (h *Handler) Compress(w http.ResponseWriter, r *http.Request) {
	var req dto.CompressRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.applyOp(w, r, domain.CompressOp{Quality: req.Quality})
}

func (h *Handler) applyOp(w http.ResponseWriter, r *http.Request, op domain.Operation) {
	id := chi.URLParam(r, "id")
	rev, err := h.revisions.ApplyOp(r.Context(), id, op)
	if err != nil {
		h.handleError(w, err)
		return
	}

	downloadURL, err := h.images.DownloadURL(r.Context(), id, rev.ID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, dto.RevisionResponse{
		RevisionID:  rev.ID,
		DownloadURL: downloadURL,
		Operation:   rev.OpType.String(),
		Params:      rev.OpParams,
	})
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rev, err := h.revisions.Undo(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	downloadURL, err := h.images.DownloadURL(r.Context(), id, rev.ID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, dto.RevisionResponse{
		RevisionID:  rev.ID,
		DownloadURL: downloadURL,
		Operation:   rev.OpType.String(),
		Params:      rev.OpParams,
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	revisions, err := h.revisions.GetHistory(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}

	out := make([]dto.RevisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		downloadURL, err := h.images.DownloadURL(r.Context(), id, rev.ID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		out = append(out, dto.RevisionResponse{
			RevisionID:  rev.ID,
			DownloadURL: downloadURL,
			Operation:   rev.OpType.String(),
			Params:      rev.OpParams,
		})
	}

	h.respondJSON(w, http.StatusOK, dto.HistoryResponse{ImageID: id, Revisions: out})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dto.HealthResponse{Status: "ok", Timestamp: time.Now()})
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error().Err(err).Msg("request failed")
	}
	h.respondError(w, status, err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, dto.ErrorResponse{Error: msg})
}
