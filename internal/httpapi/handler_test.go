package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"image-processor/internal/domain"
)

type fakeImages struct {
	ingested map[string]*domain.Image
}

func newFakeImages() *fakeImages { return &fakeImages{ingested: map[string]*domain.Image{}} }

func (f *fakeImages) Ingest(ctx context.Context, owner string, data []byte, mime string) (*domain.Image, string, error) {
	if !domain.AllowedIngestMime(mime) {
		return nil, "", domain.ErrUnsupportedMime
	}
	if int64(len(data)) > domain.MaxIngestBytes {
		return nil, "", domain.ErrTooLarge
	}
	img := &domain.Image{ID: "img-1", Owner: owner, Mime: mime, SizeBytes: int64(len(data)), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.ingested[img.ID] = img
	return img, "http://thumb.example/img-1.webp", nil
}

func (f *fakeImages) Metadata(ctx context.Context, imageID string) (*domain.Image, error) {
	img, ok := f.ingested[imageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (f *fakeImages) Delete(ctx context.Context, imageID string) error {
	if _, ok := f.ingested[imageID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.ingested, imageID)
	return nil
}

func (f *fakeImages) DownloadURL(ctx context.Context, imageID, revisionID string) (string, error) {
	if _, ok := f.ingested[imageID]; !ok {
		return "", domain.ErrNotFound
	}
	return "http://download.example/" + imageID + "/" + revisionID, nil
}

type fakeRevisions struct{}

func (f *fakeRevisions) ApplyOp(ctx context.Context, imageID string, op domain.Operation) (*domain.Revision, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return &domain.Revision{ID: "rev-1", ImageID: imageID, OpType: op.Type(), OpParams: op.Params(), CreatedAt: time.Now()}, nil
}

func (f *fakeRevisions) Undo(ctx context.Context, imageID string) (*domain.Revision, error) {
	return nil, domain.ErrNothingToUndo
}

func (f *fakeRevisions) GetHistory(ctx context.Context, imageID string) ([]domain.Revision, error) {
	return []domain.Revision{{ID: "rev-1", ImageID: imageID, OpType: domain.OpRotate, OpParams: map[string]any{"degrees": 90}}}, nil
}

func newTestHandler() (*Handler, *fakeImages) {
	images := newFakeImages()
	h := NewHandler(images, &fakeRevisions{}, zerolog.Nop())
	return h, images
}

func multipartUpload(t *testing.T, fieldName, filename, partContentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, filename))
	partHeader.Set("Content-Type", partContentType)
	part, err := w.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	part.Write(data)
	w.Close()
	return body, w.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	h, images := newTestHandler()
	body, contentType := multipartUpload(t, "image", "test.png", domain.MimePNG, []byte("fake-png-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/v1/images/", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(context.WithValue(req.Context(), userIDContextKey, "owner-1"))
	rec := httptest.NewRecorder()

	h.UploadImage(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(images.ingested) != 1 {
		t.Fatalf("expected 1 ingested image, got %d", len(images.ingested))
	}
}

func TestGetImageNotFound(t *testing.T) {
	h, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/v1/images/missing", nil)
	rec := httptest.NewRecorder()

	router := NewRouter(h, "*")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRotateValidation(t *testing.T) {
	h, images := newTestHandler()
	images.ingested["img-1"] = &domain.Image{ID: "img-1"}

	body, _ := json.Marshal(map[string]int{"degrees": 45})
	req := httptest.NewRequest(http.MethodPost, "/v1/images/img-1/rotate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router := NewRouter(h, "*")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for degrees=45, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRotateSuccess(t *testing.T) {
	h, images := newTestHandler()
	images.ingested["img-1"] = &domain.Image{ID: "img-1"}

	body, _ := json.Marshal(map[string]int{"degrees": 90})
	req := httptest.NewRequest(http.MethodPost, "/v1/images/img-1/rotate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router := NewRouter(h, "*")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	Health(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
