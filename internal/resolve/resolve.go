// Package resolve turns marketplace file records into normalized storage
// identities. Records arrive with the path and bucket spread across canonical
// or legacy column names; resolution prefers canonical fields, fails closed
// on unknown buckets, and never guesses silently.
package resolve

import (
	"strings"
)

// FileRecord is a read-only view of one uploaded-file row. Fields holds the
// raw column values keyed by column name, whichever table shape they came
// from.
type FileRecord struct {
	QuoteID          string
	FileID           string
	DeclaredFilename string
	Fields           map[string]string
}

// StorageIdentity is the resolved (bucket, path) pair plus provenance naming
// the field pair that produced it. Derived per request, never persisted.
type StorageIdentity struct {
	Bucket     string
	Path       string
	Filename   string
	Provenance string
}

// fieldPair names one (bucket column, path column) combination. The slice
// below is the resolution priority: new legacy shapes are appended here, the
// resolution logic never changes.
type fieldPair struct {
	name        string
	bucketField string
	pathField   string
}

var candidatePairs = []fieldPair{
	{name: "canonical", bucketField: "bucket", pathField: "object_path"},
	{name: "legacy_s3", bucketField: "s3_bucket", pathField: "file_path"},
	{name: "legacy_storage", bucketField: "storage_bucket", pathField: "storage_key"},
}

type Resolver struct {
	allowed       map[string]string // normalized spelling -> canonical bucket name
	defaultBucket string
}

// New builds a resolver over the closed bucket allow-list. defaultBucket is
// the injected last-resort bucket; pass "" to disable the fallback entirely.
func New(allowedBuckets []string, defaultBucket string) *Resolver {
	allowed := make(map[string]string, len(allowedBuckets)*2)
	for _, bucket := range allowedBuckets {
		allowed[bucketKey(bucket)] = bucket
	}
	return &Resolver{allowed: allowed, defaultBucket: defaultBucket}
}

// bucketKey folds the historical hyphen/underscore spelling drift so
// "cad-uploads" and "cad_uploads" name the same bucket.
func bucketKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// Resolve produces a normalized identity or nil. Nil means the record cannot
// be previewed or proxied: either no non-empty path survived normalization or
// the bucket is not on the allow-list.
func (r *Resolver) Resolve(rec FileRecord) *StorageIdentity {
	var rawPath, rawBucket, provenance string

	for _, pair := range candidatePairs {
		if rawPath == "" {
			if v := strings.TrimSpace(rec.Fields[pair.pathField]); v != "" {
				rawPath = v
				provenance = pair.name
			}
		}
		if rawBucket == "" {
			if v := strings.TrimSpace(rec.Fields[pair.bucketField]); v != "" {
				rawBucket = v
			}
		}
	}
	if rawPath == "" {
		return nil
	}

	bucket, ok := r.allowed[bucketKey(rawBucket)]
	if rawBucket == "" {
		// Last resort: historical bugs stored "bucket/path" in path-only
		// columns. Recover only when the first segment names a known bucket.
		if fromPath, found := r.allowed[bucketKey(firstSegment(rawPath))]; found {
			bucket = fromPath
			ok = true
			provenance += "+path_prefix"
		} else if r.defaultBucket != "" {
			bucket, ok = r.allowed[bucketKey(r.defaultBucket)]
			provenance += "+default_bucket"
		}
	}
	if !ok {
		return nil
	}

	path := NormalizePath(bucket, rawPath)
	if path == "" {
		return nil
	}

	filename := strings.TrimSpace(rec.DeclaredFilename)
	if filename == "" {
		filename = Basename(path)
	}

	return &StorageIdentity{
		Bucket:     bucket,
		Path:       path,
		Filename:   filename,
		Provenance: provenance,
	}
}

// NormalizePath applies the normalization rules in order: strip a leading
// slash, collapse repeated slashes, strip a duplicated bucket prefix
// (including spelling aliases), re-collapse. Idempotent.
func NormalizePath(bucket, path string) string {
	path = strings.TrimPrefix(path, "/")
	path = collapseSlashes(path)
	key := bucketKey(bucket)
	for {
		segment, rest := splitFirstSegment(path)
		if rest == "" || bucketKey(segment) != key {
			break
		}
		path = rest
	}
	return collapseSlashes(path)
}

func collapseSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return strings.TrimPrefix(path, "/")
}

func firstSegment(path string) string {
	segment, _ := splitFirstSegment(strings.TrimPrefix(path, "/"))
	return segment
}

func splitFirstSegment(path string) (segment, rest string) {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

// Basename returns the final path segment.
func Basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
