package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"partquote/api/internal/cad"
	"partquote/api/internal/config"
	"partquote/api/internal/convert"
	"partquote/api/internal/previewtoken"
	"partquote/api/internal/resolve"
	"partquote/api/internal/storage"
)

// FileStore reads marketplace file records. The marketplace owns the tables;
// this service never writes them.
type FileStore interface {
	Ping(ctx context.Context) error
	FileRecordsForQuote(ctx context.Context, quoteID string) ([]resolve.FileRecord, error)
	DeclaredFilenames(ctx context.Context, quoteID string) ([]string, error)
}

// Converter produces an STL approximation of a STEP object.
type Converter interface {
	StepToSTL(ctx context.Context, bucket, path, etag string, stepData io.Reader) ([]byte, error)
}

type Service struct {
	cfg      config.Config
	logger   *zap.Logger
	files    FileStore
	objects  storage.ObjectStore
	convert  Converter
	resolver *resolve.Resolver
}

func NewService(cfg config.Config, logger *zap.Logger, files FileStore, objects storage.ObjectStore, converter Converter) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		files:    files,
		objects:  objects,
		convert:  converter,
		resolver: resolve.New(cfg.AllowedBuckets(), cfg.UploadBucket),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.files.Ping(ctx)
}

// QuoteFileEntry is one row of the portal's file list for a quote.
type QuoteFileEntry struct {
	Filename         string `json:"filename"`
	CadKind          string `json:"cadKind,omitempty"`
	PreviewURL       string `json:"previewUrl,omitempty"`
	DownloadURL      string `json:"downloadUrl,omitempty"`
	PreviewAvailable bool   `json:"previewAvailable"`
	Extra            bool   `json:"extra,omitempty"`
}

// ListQuoteFiles resolves every storage row of a quote, pairs the results
// with the quote's declared filename list and mints a preview token per
// previewable entry. Resolution is memoized per request by (bucket, path) so
// duplicate rows collapse into one candidate.
func (s *Service) ListQuoteFiles(ctx context.Context, userID, quoteID string) ([]QuoteFileEntry, error) {
	records, err := s.files.FileRecordsForQuote(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("load file records: %w", err)
	}
	declared, err := s.files.DeclaredFilenames(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("load declared filenames: %w", err)
	}

	seen := make(map[string]struct{})
	fileIDs := make(map[*resolve.StorageIdentity]string)
	var candidates []*resolve.StorageIdentity
	for _, rec := range records {
		identity := s.resolver.Resolve(rec)
		if identity == nil {
			s.logger.Warn("file record did not resolve",
				zap.String("quote_id", quoteID),
				zap.String("file_id", rec.FileID),
				zap.String("filename", rec.DeclaredFilename),
			)
			continue
		}
		key := identity.Bucket + "/" + identity.Path
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fileIDs[identity] = rec.FileID
		candidates = append(candidates, identity)
	}

	// Quotes predating the declared-files table fall back to the storage
	// rows' own filenames.
	if len(declared) == 0 {
		for _, rec := range records {
			if rec.DeclaredFilename != "" {
				declared = append(declared, rec.DeclaredFilename)
			}
		}
	}

	matched := resolve.MatchDeclared(declared, candidates)
	entries := make([]QuoteFileEntry, 0, len(matched))
	for _, m := range matched {
		entry := QuoteFileEntry{
			Filename:         m.Filename,
			PreviewAvailable: m.PreviewAvailable,
			Extra:            m.Extra,
		}
		if m.Identity != nil {
			kind := cad.KindFromFilename(m.Filename)
			if kind == cad.KindUnknown {
				kind = cad.KindFromFilename(m.Identity.Path)
			}
			entry.CadKind = string(kind)
			token, err := s.issueToken(userID, quoteID, fileIDs[m.Identity], m.Identity)
			if err != nil {
				return nil, fmt.Errorf("issue preview token: %w", err)
			}
			entry.PreviewURL = previewURL(token, kind, "")
			entry.DownloadURL = previewURL(token, cad.KindUnknown, "attachment")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) issueToken(userID, quoteID, fileID string, identity *resolve.StorageIdentity) (string, error) {
	return previewtoken.Issue([]byte(s.cfg.PreviewSecret), previewtoken.Payload{
		UserID:   userID,
		Bucket:   identity.Bucket,
		Path:     identity.Path,
		Exp:      time.Now().Add(s.cfg.PreviewTTL).Unix(),
		QuoteID:  quoteID,
		FileID:   fileID,
		Filename: identity.Filename,
	})
}

func previewURL(token string, kind cad.Kind, disposition string) string {
	query := url.Values{"token": {token}}
	if kind == cad.KindSTEP {
		// STEP entries preview through the server-side STL approximation.
		query.Set("kind", "stl_preview")
	}
	if disposition != "" {
		query.Set("disposition", disposition)
	}
	return "/api/preview?" + query.Encode()
}

// PreviewRequest is one proxy fetch. Either Token or (Bucket, Path) is set;
// the privileged pair requires Privileged to be pre-authenticated by the
// HTTP layer.
type PreviewRequest struct {
	Token       string
	Bucket      string
	Path        string
	Kind        string // explicit kind hint, or "stl_preview" for converted STEP
	Disposition string // "" (inline) or "attachment"
	Privileged  bool
}

type PreviewResult struct {
	Content     []byte
	ContentType string
	Filename    string
	Disposition string
}

// Preview verifies authorization, fetches the object and optionally converts
// STEP to STL. Token verification happens before any storage I/O.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	var bucket, path, filename string

	switch {
	case req.Token != "":
		payload, err := previewtoken.Verify([]byte(s.cfg.PreviewSecret), req.Token)
		if err != nil {
			return PreviewResult{}, err
		}
		bucket, path, filename = payload.Bucket, payload.Path, payload.Filename
	case req.Privileged:
		identity := s.resolver.Resolve(resolve.FileRecord{Fields: map[string]string{
			"bucket":      req.Bucket,
			"object_path": req.Path,
		}})
		if identity == nil {
			// Fail closed: an off-list bucket looks identical to a
			// missing object.
			return PreviewResult{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		bucket, path, filename = identity.Bucket, identity.Path, identity.Filename
	default:
		return PreviewResult{}, domainError(http.StatusUnauthorized, "TOKEN_INVALID", "A preview token is required", nil)
	}

	kind := classifyPreview(req.Kind, filename, path)

	info, err := s.objects.Stat(ctx, bucket, path)
	if err != nil {
		return PreviewResult{}, err
	}
	if info.Size > s.cfg.MaxPreviewBytes {
		return PreviewResult{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the preview size limit", nil)
	}

	body, _, err := s.objects.Get(ctx, bucket, path)
	if err != nil {
		return PreviewResult{}, err
	}
	defer body.Close()

	if kind == cad.KindSTEP && req.Kind == "stl_preview" {
		converted, err := s.convert.StepToSTL(ctx, bucket, path, info.ETag, body)
		if err != nil {
			s.logger.Warn("step preview conversion failed",
				zap.String("bucket", bucket),
				zap.String("path", path),
				zap.Error(err),
			)
			if !errors.Is(err, convert.ErrUnavailable) {
				err = fmt.Errorf("%w: %v", convert.ErrUnavailable, err)
			}
			return PreviewResult{}, err
		}
		return PreviewResult{
			Content:     converted,
			ContentType: cad.ContentType(cad.KindSTL),
			Filename:    filename,
			Disposition: dispositionOrInline(req.Disposition),
		}, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxPreviewBytes+1))
	if err != nil {
		return PreviewResult{}, fmt.Errorf("read object: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxPreviewBytes {
		return PreviewResult{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the preview size limit", nil)
	}
	return PreviewResult{
		Content:     data,
		ContentType: cad.ContentType(kind),
		Filename:    filename,
		Disposition: dispositionOrInline(req.Disposition),
	}, nil
}

// classifyPreview picks the response kind: explicit parameter hint, then the
// token filename, then the path basename. "stl_preview" is a conversion
// request, not a kind, and classifies as step.
func classifyPreview(param, filename, path string) cad.Kind {
	switch param {
	case "stl_preview":
		return cad.KindSTEP
	case "":
	default:
		if kind := cad.KindFromFilename("x." + param); kind != cad.KindUnknown {
			return kind
		}
	}
	if kind := cad.KindFromFilename(filename); kind != cad.KindUnknown {
		return kind
	}
	return cad.KindFromFilename(resolve.Basename(path))
}

func dispositionOrInline(disposition string) string {
	if disposition == "attachment" {
		return "attachment"
	}
	return "inline"
}

// ReconcileReport is the diagnostic diff between resolved identities and the
// object listing under a quote's prefix. Best effort; listing failures are
// reported, never fatal.
type ReconcileReport struct {
	QuoteID  string      `json:"quoteId"`
	Checked  int         `json:"checked"`
	Missing  []ObjectRef `json:"missing"`
	Orphaned []ObjectRef `json:"orphaned"`
	Errors   []string    `json:"errors,omitempty"`
}

type ObjectRef struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// Reconcile compares what the database says a quote stores against what the
// object store actually holds under the quote prefix.
func (s *Service) Reconcile(ctx context.Context, quoteID string) (ReconcileReport, error) {
	records, err := s.files.FileRecordsForQuote(ctx, quoteID)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("load file records: %w", err)
	}

	report := ReconcileReport{QuoteID: quoteID, Missing: []ObjectRef{}, Orphaned: []ObjectRef{}}
	resolved := make(map[string]struct{})
	for _, rec := range records {
		identity := s.resolver.Resolve(rec)
		if identity == nil {
			continue
		}
		key := identity.Bucket + "/" + identity.Path
		if _, dup := resolved[key]; dup {
			continue
		}
		resolved[key] = struct{}{}
		report.Checked++
		if _, err := s.objects.Stat(ctx, identity.Bucket, identity.Path); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				report.Missing = append(report.Missing, ObjectRef{Bucket: identity.Bucket, Path: identity.Path})
				continue
			}
			report.Errors = append(report.Errors, fmt.Sprintf("stat %s: %v", key, err))
		}
	}

	prefix := quoteID + "/"
	for _, bucket := range s.cfg.AllowedBuckets() {
		objects, err := s.objects.List(ctx, bucket, prefix)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("list %s/%s: %v", bucket, prefix, err))
			continue
		}
		for _, obj := range objects {
			if _, known := resolved[bucket+"/"+obj.Name]; !known {
				report.Orphaned = append(report.Orphaned, ObjectRef{Bucket: bucket, Path: obj.Name})
			}
		}
	}
	return report, nil
}
