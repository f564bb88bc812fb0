package viewer

import "context"

// RenderSurface abstracts the host's 3D-capable drawing target. A surface
// without acceleration support fails the viewer before any bytes are fetched.
type RenderSurface interface {
	// Supported reports whether the surface can render 3D content at all.
	Supported() bool
	// Viewport returns the current pixel dimensions of the container.
	Viewport() (width, height int)
	// CreateRenderer allocates a renderer bound to this surface.
	CreateRenderer() (Renderer, error)
	// OnResize registers a viewport-change callback and returns a function
	// that disconnects the observer.
	OnResize(fn func(width, height int)) (disconnect func())
}

// Renderer draws a scene each frame and owns GPU-side state that must be
// disposed when the viewer unmounts or rebuilds.
type Renderer interface {
	Render(root *Object, camera *PerspectiveCamera)
	Dispose()
}

// FrameScheduler paces the render loop; the production scheduler follows the
// environment's animation frames.
type FrameScheduler interface {
	// NextFrame blocks until the next frame or context cancellation;
	// it returns false once the context is done.
	NextFrame(ctx context.Context) bool
}
