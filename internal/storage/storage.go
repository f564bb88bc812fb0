// Package storage abstracts the object store holding CAD uploads and
// generated previews. The backend is a plain key-value blob store; list is
// for diagnostics only and never routes a live preview.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("object not found")

type ObjectInfo struct {
	Name string
	Size int64
	ETag string
}

type ObjectStore interface {
	Get(ctx context.Context, bucket, path string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, path string) (ObjectInfo, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
