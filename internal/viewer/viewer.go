// Package viewer drives the client-side preview pipeline: fetch, classify,
// parse, fit, render. One Viewer exists per mounted preview; it owns its
// state exclusively and publishes transitions through a status callback.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"partquote/api/internal/cad"
)

type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateError       State = "error"
	StateUnsupported State = "unsupported"
)

// Error reasons surfaced to the host UI. Short and machine-readable; the
// host owns the copy.
const (
	ReasonWebGLUnavailable  = "webgl_unavailable"
	ReasonFileTooLarge      = "file_too_large"
	ReasonFetchFailed       = "fetch_failed"
	ReasonParseFailed       = "parse_failed"
	ReasonStepUnavailable   = "step_preview_unavailable"
	ReasonStepPreviewFailed = "failed_to_load_step_stl_preview"
	ReasonUnsupportedFormat = "unsupported_format"
)

type Status struct {
	State       State
	CadKind     cad.Kind
	ErrorReason string
}

// Request describes one preview load. KindHint beats the response filename,
// which beats FilenameHint, when classifying.
type Request struct {
	URL          string
	FilenameHint string
	KindHint     cad.Kind
}

// FetchResult is the raw response of a preview GET.
type FetchResult struct {
	StatusCode int
	Body       []byte
	Filename   string // derived from Content-Disposition when present
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// HTTPFetcher is the production Fetcher.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	limit := f.MaxBytes
	if limit <= 0 {
		limit = 64 << 20
	}
	// Read one byte past the ceiling so oversize is detectable without
	// buffering an unbounded body.
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		Filename:   filenameFromDisposition(resp.Header.Get("Content-Disposition")),
	}, nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

type Options struct {
	Surface   RenderSurface
	Fetcher   Fetcher
	Scheduler FrameScheduler
	MaxBytes  int64
	OnStatus  func(Status)
	Logger    *zap.Logger
}

type Viewer struct {
	surface   RenderSurface
	fetcher   Fetcher
	scheduler FrameScheduler
	maxBytes  int64
	onStatus  func(Status)
	logger    *zap.Logger
	fitter    *Fitter

	// parse is swappable so tests can observe whether a parser ran.
	parse func(kind cad.Kind, data []byte) (*cad.Model, error)

	mu         sync.Mutex
	cancel     context.CancelFunc
	root       *Object
	renderer   Renderer
	disconnect func()
	loopDone   chan struct{}
}

func New(opts Options) *Viewer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = &HTTPFetcher{MaxBytes: maxBytes}
	}
	return &Viewer{
		surface:   opts.Surface,
		fetcher:   fetcher,
		scheduler: opts.Scheduler,
		maxBytes:  maxBytes,
		onStatus:  opts.OnStatus,
		logger:    logger,
		fitter:    NewFitter(),
		parse:     parseModel,
	}
}

func parseModel(kind cad.Kind, data []byte) (*cad.Model, error) {
	switch kind {
	case cad.KindSTL:
		return cad.ParseSTL(data)
	case cad.KindOBJ:
		return cad.ParseOBJ(data)
	case cad.KindGLB:
		return cad.ParseGLB(data)
	case cad.KindSTEP:
		// The gateway already converted STEP to an STL approximation.
		return cad.ParseSTL(data)
	default:
		return nil, fmt.Errorf("no parser for kind %q", kind)
	}
}

func (v *Viewer) publish(ctx context.Context, status Status) {
	// Never touch host state after cancellation.
	if ctx != nil && ctx.Err() != nil {
		return
	}
	if v.onStatus != nil {
		v.onStatus(status)
	}
}

// Load restarts the pipeline for a new URL. An empty URL parks the viewer in
// idle. Load returns once the pipeline reaches a terminal state for this
// request; a concurrent Load cancels the previous one.
func (v *Viewer) Load(ctx context.Context, req Request) {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	done := v.loopDone
	v.loopDone = nil
	v.mu.Unlock()
	if done != nil {
		// The previous render loop must stop before its renderer is
		// disposed underneath it.
		<-done
	}

	v.mu.Lock()
	disconnect := v.teardownLocked()
	loadCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()
	if disconnect != nil {
		disconnect()
	}

	if req.URL == "" {
		v.publish(loadCtx, Status{State: StateIdle})
		return
	}
	v.run(loadCtx, req)
}

func (v *Viewer) run(ctx context.Context, req Request) {
	kind := req.KindHint
	v.publish(ctx, Status{State: StateLoading, CadKind: kind})

	// Environment guard comes before any fetch: no bandwidth spent on a
	// surface that cannot render.
	if v.surface == nil || !v.surface.Supported() {
		v.publish(ctx, Status{State: StateError, CadKind: kind, ErrorReason: ReasonWebGLUnavailable})
		return
	}

	result, err := v.fetcher.Fetch(ctx, req.URL)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		v.publish(ctx, Status{State: StateError, CadKind: kind, ErrorReason: ReasonFetchFailed})
		return
	}

	if result.StatusCode != http.StatusOK {
		reason := ReasonFetchFailed
		if hintedStep(kind, req, result) && bodyCarriesStepSentinel(result.Body) {
			reason = ReasonStepUnavailable
		} else if hintedStep(kind, req, result) {
			reason = ReasonStepPreviewFailed
		}
		v.publish(ctx, Status{State: StateError, CadKind: kind, ErrorReason: reason})
		return
	}

	// Oversize blobs fail before any parser sees them.
	if int64(len(result.Body)) > v.maxBytes {
		v.publish(ctx, Status{State: StateError, CadKind: kind, ErrorReason: ReasonFileTooLarge})
		return
	}

	if kind == cad.KindUnknown {
		kind = classify(req, result)
	}
	if kind == cad.KindUnknown {
		v.publish(ctx, Status{State: StateUnsupported, ErrorReason: ReasonUnsupportedFormat})
		return
	}

	model, err := v.parse(kind, result.Body)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		reason := ReasonParseFailed
		if kind == cad.KindSTEP {
			reason = ReasonStepPreviewFailed
		}
		v.logger.Warn("preview parse failed", zap.String("kind", string(kind)), zap.Error(err))
		v.publish(ctx, Status{State: StateError, CadKind: kind, ErrorReason: reason})
		return
	}

	if err := v.mount(ctx, model, kind); err != nil {
		v.publish(ctx, Status{State: StateError, CadKind: kind, ErrorReason: ReasonParseFailed})
		return
	}
	if ctx.Err() != nil {
		return
	}
	v.publish(ctx, Status{State: StateReady, CadKind: kind})
}

// classify picks the best filename signal: explicit hint, then the response
// header filename, then the declared filename.
func classify(req Request, result FetchResult) cad.Kind {
	if kind := cad.KindFromFilename(result.Filename); kind != cad.KindUnknown {
		return kind
	}
	return cad.KindFromFilename(req.FilenameHint)
}

func hintedStep(kind cad.Kind, req Request, result FetchResult) bool {
	if kind == cad.KindSTEP {
		return true
	}
	return classify(req, result) == cad.KindSTEP
}

// bodyCarriesStepSentinel detects the gateway's structured conversion
// failure: {"ok":false,"error":"step_preview_unavailable"}.
func bodyCarriesStepSentinel(body []byte) bool {
	var payload struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return !payload.OK && payload.Error == ReasonStepUnavailable
}

// mount replaces the render scene: dispose the old tree, build the new one,
// fit the camera, start the render loop.
func (v *Viewer) mount(ctx context.Context, model *cad.Model, kind cad.Kind) error {
	v.mu.Lock()
	disconnect := v.teardownLocked()
	v.mu.Unlock()
	if disconnect != nil {
		disconnect()
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	renderer, err := v.surface.CreateRenderer()
	if err != nil {
		return err
	}
	root := BuildObject(model, kind)
	width, height := v.surface.Viewport()
	camera := NewPerspectiveCamera(45, 1)
	controls := &OrbitControls{}
	if !v.fitter.FitAndCenter(root, camera, controls, width, height) {
		renderer.Dispose()
		v.fitter.Forget(root)
		DisposeTree(root)
		return fmt.Errorf("object has no measurable bounds")
	}

	v.mu.Lock()
	if ctx.Err() != nil {
		// A newer load tore down while this scene was being built; it
		// must not survive that load.
		v.mu.Unlock()
		renderer.Dispose()
		v.fitter.Forget(root)
		DisposeTree(root)
		return ctx.Err()
	}
	v.root = root
	v.renderer = renderer
	v.disconnect = v.surface.OnResize(func(w, h int) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.root == root {
			v.fitter.FitAndCenter(root, camera, controls, w, h)
		}
	})

	if v.scheduler != nil {
		done := make(chan struct{})
		v.loopDone = done
		go func() {
			defer close(done)
			for v.scheduler.NextFrame(ctx) {
				renderer.Render(root, camera)
			}
		}()
	}
	v.mu.Unlock()
	return nil
}

// teardownLocked releases the current scene and returns the resize
// disconnect. Callers hold v.mu and must invoke the disconnect only after
// releasing it: a surface may flush in-flight resize callbacks from
// disconnect, and those callbacks take the lock.
func (v *Viewer) teardownLocked() (disconnect func()) {
	disconnect = v.disconnect
	v.disconnect = nil
	if v.renderer != nil {
		v.renderer.Dispose()
		v.renderer = nil
	}
	if v.root != nil {
		v.fitter.Forget(v.root)
		DisposeTree(v.root)
		v.root = nil
	}
	v.loopDone = nil
	return disconnect
}

// Unmount cancels any in-flight load and releases all render resources.
func (v *Viewer) Unmount() {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	done := v.loopDone
	disconnect := v.teardownLocked()
	v.mu.Unlock()
	if disconnect != nil {
		disconnect()
	}
	if done != nil {
		<-done
	}
}
