package convert

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testCache(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	opts, err := redis.ParseURL("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	return redis.NewClient(opts)
}

func TestStepToSTLReturnsCachedResult(t *testing.T) {
	cache := testCache(t)
	defer cache.Close()

	ctx := context.Background()
	cached := []byte("cached-stl-bytes")
	if err := cache.Set(ctx, cacheKey("cad_uploads", "quotes/42/part.step", "etag-1"), cached, time.Hour).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	// Converter binary deliberately does not exist; a warm cache must still
	// serve the preview.
	svc := New("definitely-not-a-converter", time.Second, cache, time.Hour, nil)
	got, err := svc.StepToSTL(ctx, "cad_uploads", "quotes/42/part.step", "etag-1", bytes.NewReader([]byte("step")))
	if err != nil {
		t.Fatalf("StepToSTL() error = %v", err)
	}
	if !bytes.Equal(got, cached) {
		t.Fatalf("expected cached bytes, got %q", got)
	}
}

func TestStepToSTLMissesCacheOnEtagChange(t *testing.T) {
	cache := testCache(t)
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, cacheKey("cad_uploads", "quotes/42/part.step", "etag-1"), []byte("stale"), time.Hour).Err(); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	svc := New("definitely-not-a-converter", time.Second, cache, time.Hour, nil)
	_, err := svc.StepToSTL(ctx, "cad_uploads", "quotes/42/part.step", "etag-2", bytes.NewReader([]byte("step")))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on cache miss without converter, got %v", err)
	}
}

func TestStepToSTLUnavailableWhenConverterMissing(t *testing.T) {
	svc := New("definitely-not-a-converter", time.Second, nil, time.Hour, nil)
	_, err := svc.StepToSTL(context.Background(), "cad_uploads", "quotes/42/part.step", "etag", bytes.NewReader([]byte("step")))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
