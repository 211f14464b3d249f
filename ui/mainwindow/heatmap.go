package mainwindow

import (
	"context"
	"image"
	"sync"

	"mri-viewer/internal/overlay"
	view "mri-viewer/internal/viewport"
)

// heatmapView overlays a prediction heatmap on the displayed scan. It keeps
// the plain scan so the overlay can be removed or re-blended.
type heatmapView struct {
	vp     *view.Viewport
	loader *view.Loader
	mode   overlay.BlendMode

	mu     sync.Mutex
	epoch  uint64
	source string
	base   image.Image
	url    string
	heat   image.Image
}

func newHeatmapView(vp *view.Viewport, loader *view.Loader, mode overlay.BlendMode) *heatmapView {
	return &heatmapView{vp: vp, loader: loader, mode: mode}
}

// Reset forgets the cached scan and heatmap. Call it when the image changes.
func (h *heatmapView) Reset() {
	h.mu.Lock()
	h.epoch++
	h.source, h.base, h.url, h.heat = "", nil, "", nil
	h.mu.Unlock()
}

// Show blends the heatmap at url over the scan loaded from source. It
// blocks while the heatmap is fetched, and does nothing until that scan is
// on screen.
func (h *heatmapView) Show(ctx context.Context, source, url string, opacity float64) error {
	base, epoch := h.captureBase(source)
	if base == nil {
		return nil
	}

	h.mu.Lock()
	heat := h.heat
	cached := h.url == url
	h.mu.Unlock()

	if !cached || heat == nil {
		img, err := h.loader.Load(ctx, url)
		if err != nil {
			return err
		}
		heat = img.Image
	}
	blended := overlay.Composite(base, overlay.Layer{Image: heat, Mode: h.mode, Opacity: opacity})

	// The image may have changed while the heatmap was fetched.
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.epoch != epoch || !h.vp.ReplaceBitmap(source, blended) {
		return nil
	}
	h.url, h.heat = url, heat
	return nil
}

// Hide restores the plain scan.
func (h *heatmapView) Hide() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.base != nil {
		h.vp.ReplaceBitmap(h.source, h.base)
	}
}

func (h *heatmapView) captureBase(source string) (image.Image, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.base == nil {
		if f := h.vp.Frame(); f.Image != nil && f.Image.Source == source {
			h.source, h.base = source, f.Image.Image
		}
	}
	if h.source != source {
		return nil, h.epoch
	}
	return h.base, h.epoch
}
