package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"testing"

	"partquote/api/internal/cad"
	"partquote/api/internal/resolve"
	"partquote/api/internal/viewer"
)

type e2eRenderer struct{}

func (e2eRenderer) Render(root *viewer.Object, camera *viewer.PerspectiveCamera) {}

func (e2eRenderer) Dispose() {}

type e2eSurface struct{}

func (e2eSurface) Supported() bool {
	return true
}

func (e2eSurface) Viewport() (int, int) {
	return 800, 600
}

func (e2eSurface) CreateRenderer() (viewer.Renderer, error) {
	return e2eRenderer{}, nil
}

func (e2eSurface) OnResize(fn func(int, int)) (cancel func()) {
	return func() {}
}

func oneTriangleSTL() []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 80))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, []float32{
		0, 0, 1,
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	})
	buf.Write([]byte{0, 0})
	return buf.Bytes()
}

// TestPreviewPipelineEndToEnd walks the full path a portal user exercises:
// the file listing resolves the record and mints a token, the proxy serves
// the bytes, and the viewer reaches ready with the right kind.
func TestPreviewPipelineEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.objects.Put("cad_uploads", "q1/bracket.stl", oneTriangleSTL())
	env.files.records = func(ctx context.Context, quoteID string) ([]resolve.FileRecord, error) {
		return []resolve.FileRecord{{
			QuoteID:          quoteID,
			FileID:           "f1",
			DeclaredFilename: "bracket.stl",
			Fields:           map[string]string{"bucket": "cad_uploads", "object_path": "q1/bracket.stl"},
		}}, nil
	}
	env.files.declared = func(ctx context.Context, quoteID string) ([]string, error) {
		return []string{"bracket.stl"}, nil
	}

	resp, body := env.get(t, "/api/quotes/q1/files", env.session(t, "buyer"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listing status = %d, body = %s", resp.StatusCode, body)
	}
	var listing struct {
		Files []QuoteFileEntry `json:"files"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Files) != 1 || listing.Files[0].PreviewURL == "" {
		t.Fatalf("listing = %+v", listing.Files)
	}
	entry := listing.Files[0]

	var statuses []viewer.Status
	v := viewer.New(viewer.Options{
		Surface:  e2eSurface{},
		Fetcher:  &viewer.HTTPFetcher{},
		OnStatus: func(s viewer.Status) { statuses = append(statuses, s) },
	})
	v.Load(context.Background(), viewer.Request{
		URL:          env.server.URL + entry.PreviewURL,
		FilenameHint: entry.Filename,
	})
	defer v.Unmount()

	if len(statuses) == 0 {
		t.Fatal("viewer published no status")
	}
	final := statuses[len(statuses)-1]
	if final.State != viewer.StateReady {
		t.Fatalf("final state = %q (reason %q), want ready", final.State, final.ErrorReason)
	}
	if final.CadKind != cad.KindSTL {
		t.Fatalf("kind = %q, want stl", final.CadKind)
	}
}
