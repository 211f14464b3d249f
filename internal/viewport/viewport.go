package viewport

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"

	"mri-viewer/pkg/geometry"
)

var (
	// ErrClosed is reported for loads on a closed viewport.
	ErrClosed = errors.New("viewport closed")
	// ErrSuperseded is reported when a newer load replaced this one.
	ErrSuperseded = errors.New("image load superseded")
)

// LoadResult describes the outcome of LoadImage.
type LoadResult struct {
	Source string
	Width  int
	Height int
	Err    error
}

// Dimensions returns the natural image size. ok is false when the load
// failed; no dimensions are reported in that case.
func (r LoadResult) Dimensions() (size geometry.Size, ok bool) {
	if r.Err != nil {
		return geometry.Size{}, false
	}
	return geometry.NewSize(float64(r.Width), float64(r.Height)), true
}

// Viewport holds one image, its annotation regions and the pan/zoom state,
// and renders them onto a Surface. Instances share nothing.
type Viewport struct {
	mu sync.Mutex

	state   State
	image   *SourceImage
	regions []AnnotationRegion
	style   Style

	loader     *Loader
	generation uint64
	closed     bool

	// Listeners
	onInvalidate func()
	onLoad       func(LoadResult)
}

// Option configures a Viewport.
type Option func(*Viewport)

// WithLoader sets the loader used by LoadImage.
func WithLoader(l *Loader) Option {
	return func(v *Viewport) { v.loader = l }
}

// WithStyle sets the region style.
func WithStyle(s Style) Option {
	return func(v *Viewport) { v.style = s }
}

// New creates an empty viewport.
func New(opts ...Option) *Viewport {
	v := &Viewport{
		state: NewState(),
		style: DefaultStyle(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.loader == nil {
		v.loader = NewLoader(nil)
	}
	return v
}

// OnInvalidate sets the callback invoked whenever a render input changes.
// It is called outside the viewport's lock.
func (v *Viewport) OnInvalidate(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.onInvalidate = fn
}

// OnLoad sets the callback invoked when a load completes or fails. Loads
// that were superseded are not reported.
func (v *Viewport) OnLoad(fn func(LoadResult)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.onLoad = fn
}

// LoadImage decodes source in the background. The returned channel receives
// exactly one result and is then closed. Until the load completes the
// previous image, if any, stays in place.
func (v *Viewport) LoadImage(ctx context.Context, source string) <-chan LoadResult {
	out := make(chan LoadResult, 1)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		out <- LoadResult{Source: source, Err: ErrClosed}
		close(out)
		return out
	}
	v.generation++
	gen := v.generation
	loader := v.loader
	v.mu.Unlock()

	go func() {
		defer close(out)
		img, err := loader.Load(ctx, source)
		out <- v.finishLoad(gen, source, img, err)
	}()
	return out
}

func (v *Viewport) finishLoad(gen uint64, source string, img *SourceImage, err error) LoadResult {
	res := LoadResult{Source: source, Err: err}

	v.mu.Lock()
	switch {
	case v.closed:
		res.Err = ErrClosed
	case gen != v.generation:
		res.Err = ErrSuperseded
	case err != nil:
		log.Printf("[viewport] load %s: %v", shortSource(source), err)
	default:
		v.image = img
		v.state.resetForImage()
		res.Width, res.Height = img.Width, img.Height
	}
	invalidate, onLoad := v.onInvalidate, v.onLoad
	v.mu.Unlock()

	if errors.Is(res.Err, ErrClosed) || errors.Is(res.Err, ErrSuperseded) {
		return res
	}
	if res.Err == nil && invalidate != nil {
		invalidate()
	}
	if onLoad != nil {
		onLoad(res)
	}
	return res
}

// SetImage installs an already decoded image and resets the view. A nil
// image clears the viewport. Any load in flight is superseded.
func (v *Viewport) SetImage(img image.Image, source string) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.generation++
	if img == nil || img.Bounds().Empty() {
		v.image = nil
	} else {
		v.image = NewSourceImage(img, source)
	}
	v.state.resetForImage()
	invalidate := v.onInvalidate
	v.mu.Unlock()

	if invalidate != nil {
		invalidate()
	}
}

// ReplaceBitmap swaps the pixels of the current image while keeping its
// source, the regions and the view state. It is used to show derived images
// such as heatmap overlays. It returns false if the displayed image was not
// loaded from source or the new bitmap has different dimensions.
func (v *Viewport) ReplaceBitmap(source string, img image.Image) bool {
	v.mu.Lock()
	if v.closed || v.image == nil || img == nil || v.image.Source != source {
		v.mu.Unlock()
		return false
	}
	b := img.Bounds()
	if b.Dx() != v.image.Width || b.Dy() != v.image.Height {
		v.mu.Unlock()
		return false
	}
	v.image = NewSourceImage(img, v.image.Source)
	invalidate := v.onInvalidate
	v.mu.Unlock()

	if invalidate != nil {
		invalidate()
	}
	return true
}

// SetAnnotations replaces the region list. The slice is copied.
func (v *Viewport) SetAnnotations(regions []AnnotationRegion) {
	cp := append([]AnnotationRegion(nil), regions...)
	v.update(func(*State) bool {
		v.regions = cp
		return true
	})
}

// Annotations returns a copy of the current regions.
func (v *Viewport) Annotations() []AnnotationRegion {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]AnnotationRegion(nil), v.regions...)
}

// SetStyle changes how regions are drawn.
func (v *Viewport) SetStyle(s Style) {
	v.update(func(*State) bool {
		v.style = s
		return true
	})
}

// HasImage reports whether a bitmap is loaded.
func (v *Viewport) HasImage() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.image != nil
}

// ImageSize returns the natural size of the loaded image.
func (v *Viewport) ImageSize() (geometry.Size, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.image == nil {
		return geometry.Size{}, false
	}
	return v.image.Size(), true
}

// State returns a snapshot of the interaction state.
func (v *Viewport) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Zoom returns the current zoom factor.
func (v *Viewport) Zoom() float64 {
	return v.State().Zoom
}

// Pan returns the current pan offset.
func (v *Viewport) Pan() geometry.Point2D {
	return v.State().Pan
}

// CanZoomIn reports whether zooming in is possible.
func (v *Viewport) CanZoomIn() bool {
	return v.State().CanZoomIn()
}

// CanZoomOut reports whether zooming out is possible.
func (v *Viewport) CanZoomOut() bool {
	return v.State().CanZoomOut()
}

// ZoomIn zooms by the button step.
func (v *Viewport) ZoomIn() { v.update((*State).ZoomIn) }

// ZoomOut zooms out by the button step.
func (v *Viewport) ZoomOut() { v.update((*State).ZoomOut) }

// Wheel applies one wheel tick; negative dy zooms in.
func (v *Viewport) Wheel(dy float64) {
	v.update(func(s *State) bool { return s.Wheel(dy) })
}

// SetZoom sets the zoom factor, clamped to [MinZoom, MaxZoom].
func (v *Viewport) SetZoom(z float64) {
	v.update(func(s *State) bool { return s.SetZoom(z) })
}

// PanBy moves the image by delta layout units.
func (v *Viewport) PanBy(delta geometry.Point2D) {
	v.update(func(s *State) bool { return s.PanBy(delta) })
}

// ResetView restores zoom 1 and pan (0,0).
func (v *Viewport) ResetView() { v.update((*State).Reset) }

// PointerDown starts a drag.
func (v *Viewport) PointerDown(p geometry.Point2D) {
	v.update(func(s *State) bool {
		s.PointerDown(p)
		return false
	})
}

// PointerMove pans while dragging.
func (v *Viewport) PointerMove(p geometry.Point2D) {
	v.update(func(s *State) bool { return s.PointerMove(p) })
}

// PointerUp ends a drag.
func (v *Viewport) PointerUp() {
	v.update(func(s *State) bool {
		s.PointerUp()
		return false
	})
}

// PointerLeave ends a drag when the pointer leaves the surface.
func (v *Viewport) PointerLeave() {
	v.update(func(s *State) bool {
		s.PointerLeave()
		return false
	})
}

// TouchStart begins a single-contact drag.
func (v *Viewport) TouchStart(id int, p geometry.Point2D) {
	v.update(func(s *State) bool {
		s.TouchStart(id, p)
		return false
	})
}

// TouchMove pans for the active contact.
func (v *Viewport) TouchMove(id int, p geometry.Point2D) {
	v.update(func(s *State) bool { return s.TouchMove(id, p) })
}

// TouchEnd ends the drag for the active contact.
func (v *Viewport) TouchEnd(id int) {
	v.update(func(s *State) bool {
		s.TouchEnd(id)
		return false
	})
}

// Frame returns a snapshot of all render inputs.
func (v *Viewport) Frame() Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Frame{
		Image:   v.image,
		State:   v.state,
		Regions: append([]AnnotationRegion(nil), v.regions...),
		Style:   v.style,
	}
}

// Render draws the current frame onto s.
func (v *Viewport) Render(s Surface) RenderStats {
	return RenderFrame(s, v.Frame())
}

// SurfaceToImage maps a surface pixel to image coordinates for a surface of
// the given size. ok is false when no image is loaded.
func (v *Viewport) SurfaceToImage(surface geometry.Size, p geometry.Point2D) (geometry.Point2D, bool) {
	f := v.Frame()
	if f.Image == nil {
		return geometry.Point2D{}, false
	}
	return SurfaceToImage(surface, f.Image, f.State, p)
}

// CapturesWheel reports whether wheel events over the surface should be
// consumed. It is true until Close.
func (v *Viewport) CapturesWheel() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed
}

// Close releases the bitmap and detaches all listeners. Pending loads are
// discarded. Interaction calls after Close are harmless.
func (v *Viewport) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.generation++
	v.image = nil
	v.regions = nil
	v.onInvalidate = nil
	v.onLoad = nil
}

// update runs fn under the lock and notifies the invalidate listener if fn
// reports a change.
func (v *Viewport) update(fn func(*State) bool) {
	v.mu.Lock()
	changed := fn(&v.state)
	invalidate := v.onInvalidate
	v.mu.Unlock()

	if changed && invalidate != nil {
		invalidate()
	}
}
