package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client)
}

func TestThumbRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, ok, err := c.GetThumb(ctx, "img-1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := c.SetThumb(ctx, "img-1", []byte("thumb-bytes"), time.Minute); err != nil {
		t.Fatalf("SetThumb: %v", err)
	}

	data, ok, err := c.GetThumb(ctx, "img-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(data) != "thumb-bytes" {
		t.Errorf("got %q, want %q", data, "thumb-bytes")
	}

	if err := c.InvalidateThumb(ctx, "img-1"); err != nil {
		t.Fatalf("InvalidateThumb: %v", err)
	}
	if _, ok, _ := c.GetThumb(ctx, "img-1"); ok {
		t.Error("expected miss after invalidate")
	}
}

func TestLockMutualExclusion(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "image-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed, got ok=%v err=%v", ok, err)
	}

	if _, ok, err := c.AcquireLock(ctx, "image-1", time.Minute); err != nil || ok {
		t.Fatalf("second acquire should fail, got ok=%v err=%v", ok, err)
	}

	if err := c.ReleaseLock(ctx, "image-1", token); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}

	if _, ok, err := c.AcquireLock(ctx, "image-1", time.Minute); err != nil || !ok {
		t.Fatalf("acquire after release should succeed, got ok=%v err=%v", ok, err)
	}
}

func TestWithLockSerializesAndReleases(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ran := false
	if err := c.WithLock(ctx, "image-2", time.Minute, func(ctx context.Context) error {
		ran = true
		if _, ok, err := c.AcquireLock(ctx, "image-2", time.Minute); err != nil || ok {
			t.Errorf("expected lock to be held while fn runs, got ok=%v err=%v", ok, err)
		}
		return nil
	}); err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Error("expected fn to run")
	}

	// lock released after WithLock returns
	token, ok, err := c.AcquireLock(ctx, "image-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock to be free after WithLock, got ok=%v err=%v", ok, err)
	}
	_ = c.ReleaseLock(ctx, "image-2", token)
}
