// Package convert produces triangle-mesh approximations of STEP files. The
// geometry kernel is an external converter binary; this package wraps it with
// a timeout and caches results by storage key so repeat previews skip the
// conversion entirely. Correctness never depends on a warm cache.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrUnavailable reports that a STEP preview cannot be produced, either
// because the converter is missing or because it rejected the input. The
// gateway maps it to the step_preview_unavailable sentinel.
var ErrUnavailable = errors.New("step preview unavailable")

type Service struct {
	bin     string
	timeout time.Duration
	cache   *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

// New builds a conversion service. cache may be nil; conversion then runs
// uncached.
func New(bin string, timeout time.Duration, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{bin: bin, timeout: timeout, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(bucket, path, etag string) string {
	return "stepstl:" + bucket + "/" + path + "@" + etag
}

// StepToSTL converts STEP bytes to a binary STL approximation. bucket, path
// and etag key the cache; etag changes invalidate stale entries naturally.
func (s *Service) StepToSTL(ctx context.Context, bucket, path, etag string, stepData io.Reader) ([]byte, error) {
	key := cacheKey(bucket, path, etag)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key).Bytes()
		if err == nil && len(cached) > 0 {
			return cached, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn("conversion cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	converted, err := s.run(ctx, stepData)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, converted, s.ttl).Err(); err != nil {
			// A cold cache on the next request is acceptable.
			s.logger.Warn("conversion cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return converted, nil
}

func (s *Service) run(ctx context.Context, stepData io.Reader) ([]byte, error) {
	if _, err := exec.LookPath(s.bin); err != nil {
		return nil, fmt.Errorf("%w: converter %q not installed", ErrUnavailable, s.bin)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// The converter reads STEP from a file argument and writes STL to
	// stdout. Stage the input through a temp file so arbitrarily large
	// uploads never sit in an argv or pipe buffer.
	tmp, err := os.CreateTemp("", "partquote-step-*.step")
	if err != nil {
		return nil, fmt.Errorf("stage step input: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, stepData); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("stage step input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("stage step input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.bin, tmp.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		s.logger.Warn("step conversion failed",
			zap.String("converter", s.bin),
			zap.String("stderr", stderr.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: converter produced no output", ErrUnavailable)
	}
	return stdout.Bytes(), nil
}
