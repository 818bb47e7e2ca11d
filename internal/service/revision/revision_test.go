package revision

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"image-processor/internal/domain"
	"image-processor/internal/storage/object"
)

// --- in-memory fakes, grounded on the teacher's contract-interface style
// and this repo's own postgresAdapter/imageTxn split ---

type fakeMetadata struct {
	mu        sync.Mutex
	images    map[string]*domain.Image
	revisions map[string]*domain.Revision
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{images: map[string]*domain.Image{}, revisions: map[string]*domain.Revision{}}
}

func (f *fakeMetadata) putImage(img *domain.Image) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[img.ID] = img
}

func (f *fakeMetadata) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (f *fakeMetadata) GetHistory(ctx context.Context, imageID string) ([]domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Revision
	for _, r := range f.revisions {
		if r.ImageID == imageID && r.TombstonedAt == nil {
			out = append(out, *r)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (f *fakeMetadata) WithImageLock(ctx context.Context, imageID string, fn func(ctx context.Context, txn imageTxn) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn := &fakeTxn{f: f, imageID: imageID}
	return fn(ctx, txn)
}

type fakeTxn struct {
	f       *fakeMetadata
	imageID string
}

func (t *fakeTxn) GetImage(ctx context.Context) (*domain.Image, error) {
	img, ok := t.f.images[t.imageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return img, nil
}

func (t *fakeTxn) GetLatestRevision(ctx context.Context) (*domain.Revision, error) {
	var latest *domain.Revision
	for _, r := range t.f.revisions {
		if r.ImageID != t.imageID || r.TombstonedAt != nil {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest, nil
}

func (t *fakeTxn) GetRevision(ctx context.Context, id string) (*domain.Revision, error) {
	r, ok := t.f.revisions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (t *fakeTxn) CreateRevision(ctx context.Context, rev *domain.Revision) error {
	t.f.revisions[rev.ID] = rev
	return nil
}

func (t *fakeTxn) Tombstone(ctx context.Context, revisionID string, at time.Time) error {
	r, ok := t.f.revisions[revisionID]
	if !ok {
		return domain.ErrNotFound
	}
	at2 := at
	r.TombstonedAt = &at2
	return nil
}

func sortByCreatedAt(revs []domain.Revision) {
	for i := 1; i < len(revs); i++ {
		for j := i; j > 0 && revs[j-1].CreatedAt.After(revs[j].CreatedAt); j-- {
			revs[j-1], revs[j] = revs[j], revs[j-1]
		}
	}
}

type fakeObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeObjects() *fakeObjects { return &fakeObjects{data: map[string][]byte{}} }

func key(b object.Bucket, path string) string { return string(b) + "/" + path }

func (f *fakeObjects) Get(ctx context.Context, bucket object.Bucket, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key(bucket, path)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeObjects) Put(ctx context.Context, bucket object.Bucket, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key(bucket, path)] = data
	return nil
}

type fakeThumbCache struct{ invalidated []string }

func (f *fakeThumbCache) InvalidateThumb(ctx context.Context, imageID string) error {
	f.invalidated = append(f.invalidated, imageID)
	return nil
}

func redPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode fixture png: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *fakeMetadata, *fakeObjects, string) {
	t.Helper()
	meta := newFakeMetadata()
	objs := newFakeObjects()
	thumbs := &fakeThumbCache{}

	imageID := uuid.New().String()
	meta.putImage(&domain.Image{
		ID:           imageID,
		Owner:        "owner-1",
		OriginalPath: "owner-1/" + imageID + ".png",
		Mime:         domain.MimePNG,
		SizeBytes:    1000,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	objs.Put(context.Background(), object.BucketRaw, "owner-1/"+imageID+".png", redPNG(t, 100, 200), domain.MimePNG)

	svc := New(meta, objs, thumbs, zerolog.Nop())
	return svc, meta, objs, imageID
}

func TestApplyOpRotateRoundTrip(t *testing.T) {
	svc, _, objs, imageID := newTestService(t)
	ctx := context.Background()

	rev1, err := svc.ApplyOp(ctx, imageID, domain.RotateOp{Degrees: 90})
	if err != nil {
		t.Fatalf("ApplyOp rotate 90: %v", err)
	}
	if rev1.ParentID != nil {
		t.Errorf("expected first revision to have nil parent, got %v", *rev1.ParentID)
	}

	decoded, err := decodePNGOrJPEG(objs, rev1)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("after rotate 90, expected 200x100, got %dx%d", b.Dx(), b.Dy())
	}

	rev2, err := svc.ApplyOp(ctx, imageID, domain.RotateOp{Degrees: 270})
	if err != nil {
		t.Fatalf("ApplyOp rotate 270: %v", err)
	}
	if rev2.ParentID == nil || *rev2.ParentID != rev1.ID {
		t.Errorf("expected rev2's parent to be rev1")
	}

	decoded, err = decodePNGOrJPEG(objs, rev2)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	b = decoded.Bounds()
	if b.Dx() != 100 || b.Dy() != 200 {
		t.Errorf("after rotate 270, expected 100x200, got %dx%d", b.Dx(), b.Dy())
	}
}

func decodePNGOrJPEG(objs *fakeObjects, rev *domain.Revision) (image.Image, error) {
	data, err := objs.Get(context.Background(), object.BucketResults, rev.StoragePath)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func TestUndoChain(t *testing.T) {
	svc, meta, _, imageID := newTestService(t)
	ctx := context.Background()

	rev1, err := svc.ApplyOp(ctx, imageID, domain.RotateOp{Degrees: 90})
	if err != nil {
		t.Fatalf("rotate 90: %v", err)
	}
	_, err = svc.ApplyOp(ctx, imageID, domain.FlipOp{Horizontal: true})
	if err != nil {
		t.Fatalf("flip: %v", err)
	}

	undone, err := svc.Undo(ctx, imageID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if undone.ID != rev1.ID {
		t.Fatalf("expected undo to return rev1 (%s), got %s", rev1.ID, undone.ID)
	}

	latest, _ := meta.GetImage(ctx, imageID)
	_ = latest
	hist, err := svc.GetHistory(ctx, imageID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != rev1.ID {
		t.Fatalf("expected history [%s], got %v", rev1.ID, hist)
	}

	rev3, err := svc.ApplyOp(ctx, imageID, domain.RotateOp{Degrees: 180})
	if err != nil {
		t.Fatalf("rotate 180: %v", err)
	}
	if rev3.ParentID == nil || *rev3.ParentID != rev1.ID {
		t.Fatalf("expected rev3's parent to be rev1, got %v", rev3.ParentID)
	}
}

func TestUndoNothingToUndo(t *testing.T) {
	svc, _, _, imageID := newTestService(t)
	if _, err := svc.Undo(context.Background(), imageID); !errors.Is(err, domain.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestUndoCannotUndoOriginal(t *testing.T) {
	svc, _, _, imageID := newTestService(t)
	ctx := context.Background()
	if _, err := svc.ApplyOp(ctx, imageID, domain.RotateOp{Degrees: 90}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := svc.ApplyOp(ctx, imageID, domain.FlipOp{Horizontal: true}); err != nil {
		t.Fatalf("flip: %v", err)
	}
	if _, err := svc.Undo(ctx, imageID); err != nil {
		t.Fatalf("first undo: %v", err)
	}
	if _, err := svc.Undo(ctx, imageID); !errors.Is(err, domain.ErrCannotUndoOriginal) {
		t.Fatalf("expected ErrCannotUndoOriginal on second undo, got %v", err)
	}
}

func TestApplyOpValidation(t *testing.T) {
	svc, _, _, imageID := newTestService(t)
	ctx := context.Background()

	cases := []domain.Operation{
		domain.RotateOp{Degrees: 45},
		domain.ResizeOp{Width: 100},
		domain.CompressOp{Quality: 5},
		domain.CompressOp{Quality: 150},
	}
	for _, op := range cases {
		if _, err := svc.ApplyOp(ctx, imageID, op); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("op %#v: expected ErrValidation, got %v", op, err)
		}
	}
}

func TestApplyOpNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, err := svc.ApplyOp(context.Background(), "does-not-exist", domain.RotateOp{Degrees: 90}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentApplyOpFormsSingleChain(t *testing.T) {
	svc, _, _, imageID := newTestService(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyOp(ctx, imageID, domain.RotateOp{Degrees: 90})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("concurrent ApplyOp: %v", err)
		}
	}

	hist, err := svc.GetHistory(ctx, imageID)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(hist) != n {
		t.Fatalf("expected %d revisions, got %d", n, len(hist))
	}

	byParent := map[string]int{}
	for _, r := range hist {
		if r.ParentID == nil {
			byParent["<root>"]++
		} else {
			byParent[*r.ParentID]++
		}
	}
	for k, c := range byParent {
		if c > 1 {
			t.Errorf("parent %s has %d children, expected at most 1 (single chain)", k, c)
		}
	}
}
