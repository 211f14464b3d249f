// Package viewport provides the fyne widget that shows a scan with its
// annotation regions, a zoom toolbar and mouse pan/zoom.
package viewport

import (
	"context"
	"fmt"
	"image"
	"sync"

	view "mri-viewer/internal/viewport"
	"mri-viewer/pkg/geometry"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"golang.org/x/image/draw"
)

// ImageViewport is a widget that renders a view.Viewport and forwards
// pointer, wheel and toolbar input to it.
type ImageViewport struct {
	widget.BaseWidget

	vp     *view.Viewport
	raster *canvas.Raster
	area   *viewArea

	// Toolbar
	zoomOutBtn *widget.Button
	zoomInBtn  *widget.Button
	resetBtn   *widget.Button
	zoomLabel  *widget.Label

	interp draw.Interpolator

	mu         sync.Mutex
	pixelScale float64 // raster pixels per fyne unit
	lastOutput *image.RGBA

	onPointer func(p geometry.Point2D, ok bool)
}

// NewImageViewport creates a viewport widget. minSize is the smallest size
// of the drawing area.
func NewImageViewport(vp *view.Viewport, minSize fyne.Size, interp draw.Interpolator) *ImageViewport {
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	iv := &ImageViewport{
		vp:         vp,
		interp:     interp,
		pixelScale: 1,
	}

	iv.raster = canvas.NewRaster(iv.draw)
	iv.raster.ScaleMode = canvas.ImageScalePixels
	iv.raster.SetMinSize(minSize)
	iv.area = newViewArea(iv)

	iv.zoomOutBtn = widget.NewButtonWithIcon("", theme.ZoomOutIcon(), vp.ZoomOut)
	iv.zoomInBtn = widget.NewButtonWithIcon("", theme.ZoomInIcon(), vp.ZoomIn)
	iv.resetBtn = widget.NewButtonWithIcon("Reset", theme.ViewRestoreIcon(), vp.ResetView)
	iv.zoomLabel = widget.NewLabel("")
	iv.zoomLabel.Alignment = fyne.TextAlignCenter

	vp.OnInvalidate(iv.invalidate)
	iv.updateControls()

	iv.ExtendBaseWidget(iv)
	return iv
}

// Viewport returns the underlying viewport.
func (iv *ImageViewport) Viewport() *view.Viewport {
	return iv.vp
}

// Load starts loading source into the viewport.
func (iv *ImageViewport) Load(ctx context.Context, source string) <-chan view.LoadResult {
	return iv.vp.LoadImage(ctx, source)
}

// SetAnnotations replaces the annotation regions.
func (iv *ImageViewport) SetAnnotations(regions []view.AnnotationRegion) {
	iv.vp.SetAnnotations(regions)
}

// OnPointer sets the callback that receives the image coordinate under the
// mouse. ok is false when the mouse leaves or no image is loaded.
func (iv *ImageViewport) OnPointer(fn func(p geometry.Point2D, ok bool)) {
	iv.onPointer = fn
}

// RenderedOutput returns the last frame drawn by the widget.
func (iv *ImageViewport) RenderedOutput() *image.RGBA {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.lastOutput
}

// ZoomText returns the toolbar's zoom label.
func (iv *ImageViewport) ZoomText() string {
	return iv.zoomLabel.Text
}

// Close detaches the widget from the viewport and releases the image.
func (iv *ImageViewport) Close() {
	iv.vp.Close()
	iv.mu.Lock()
	iv.lastOutput = nil
	iv.mu.Unlock()
}

func (iv *ImageViewport) invalidate() {
	iv.updateControls()
	iv.raster.Refresh()
}

func (iv *ImageViewport) updateControls() {
	iv.zoomLabel.SetText(fmt.Sprintf("%.0f%%", iv.vp.Zoom()*100))
	setEnabled(iv.zoomInBtn, iv.vp.CanZoomIn())
	setEnabled(iv.zoomOutBtn, iv.vp.CanZoomOut())
}

func setEnabled(b *widget.Button, enabled bool) {
	if enabled {
		b.Enable()
	} else {
		b.Disable()
	}
}

// draw renders the current frame at the raster's pixel size.
func (iv *ImageViewport) draw(w, h int) image.Image {
	surface := view.NewRasterSurface(w, h)
	surface.Interpolator = iv.interp
	iv.vp.Render(surface)

	iv.mu.Lock()
	if width := iv.area.Size().Width; width > 0 && w > 0 {
		iv.pixelScale = float64(w) / float64(width)
	}
	iv.lastOutput = surface.Image()
	iv.mu.Unlock()
	return surface.Image()
}

// toSurface converts a widget position to raster pixels.
func (iv *ImageViewport) toSurface(pos fyne.Position) geometry.Point2D {
	iv.mu.Lock()
	scale := iv.pixelScale
	iv.mu.Unlock()
	return geometry.NewPoint2D(float64(pos.X)*scale, float64(pos.Y)*scale)
}

func (iv *ImageViewport) surfaceSize() geometry.Size {
	iv.mu.Lock()
	scale := iv.pixelScale
	iv.mu.Unlock()
	size := iv.area.Size()
	return geometry.NewSize(float64(size.Width)*scale, float64(size.Height)*scale)
}

func (iv *ImageViewport) reportPointer(pos fyne.Position) {
	if iv.onPointer == nil {
		return
	}
	p, ok := iv.vp.SurfaceToImage(iv.surfaceSize(), iv.toSurface(pos))
	iv.onPointer(p, ok)
}

func (iv *ImageViewport) CreateRenderer() fyne.WidgetRenderer {
	toolbar := container.NewHBox(iv.zoomOutBtn, iv.zoomLabel, iv.zoomInBtn, iv.resetBtn)
	content := container.NewBorder(nil, container.NewCenter(toolbar), nil, nil, iv.area)
	return &imageViewportRenderer{iv: iv, content: content}
}

type imageViewportRenderer struct {
	iv      *ImageViewport
	content *fyne.Container
}

func (r *imageViewportRenderer) Layout(size fyne.Size) {
	r.content.Resize(size)
}

func (r *imageViewportRenderer) MinSize() fyne.Size {
	return r.content.MinSize()
}

func (r *imageViewportRenderer) Refresh() {
	r.iv.updateControls()
	r.content.Refresh()
}

func (r *imageViewportRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.content}
}

// Destroy runs when the widget is removed from its window.
func (r *imageViewportRenderer) Destroy() {
	r.iv.Close()
}

// viewArea wraps the raster to receive mouse events.
type viewArea struct {
	widget.BaseWidget
	iv *ImageViewport
}

var (
	_ fyne.Draggable      = (*viewArea)(nil)
	_ fyne.Scrollable     = (*viewArea)(nil)
	_ fyne.DoubleTappable = (*viewArea)(nil)
	_ desktop.Mouseable   = (*viewArea)(nil)
	_ desktop.Hoverable   = (*viewArea)(nil)
)

func newViewArea(iv *ImageViewport) *viewArea {
	a := &viewArea{iv: iv}
	a.ExtendBaseWidget(a)
	return a
}

func (a *viewArea) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(a.iv.raster)
}

func (a *viewArea) MinSize() fyne.Size {
	return a.iv.raster.MinSize()
}

func (a *viewArea) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	a.iv.vp.PointerDown(a.iv.toSurface(ev.Position))
}

func (a *viewArea) MouseUp(ev *desktop.MouseEvent) {
	a.iv.vp.PointerUp()
}

func (a *viewArea) MouseIn(ev *desktop.MouseEvent) {
	a.iv.reportPointer(ev.Position)
}

func (a *viewArea) MouseMoved(ev *desktop.MouseEvent) {
	a.iv.reportPointer(ev.Position)
}

func (a *viewArea) MouseOut() {
	a.iv.vp.PointerLeave()
	if a.iv.onPointer != nil {
		a.iv.onPointer(geometry.Point2D{}, false)
	}
}

// Dragged moves the image. Touch drivers deliver drags without a preceding
// MouseDown, so the drag is anchored at the start of the first movement.
func (a *viewArea) Dragged(ev *fyne.DragEvent) {
	p := a.iv.toSurface(ev.Position)
	if !a.iv.vp.State().Dragging {
		start := ev.Position.Subtract(ev.Dragged)
		a.iv.vp.PointerDown(a.iv.toSurface(start))
	}
	a.iv.vp.PointerMove(p)
}

func (a *viewArea) DragEnd() {
	a.iv.vp.PointerUp()
}

// Scrolled zooms by the wheel step. fyne reports wheel-up as positive DY.
func (a *viewArea) Scrolled(ev *fyne.ScrollEvent) {
	if !a.iv.vp.CapturesWheel() {
		return
	}
	a.iv.vp.Wheel(-float64(ev.Scrolled.DY))
}

// DoubleTapped resets zoom and pan.
func (a *viewArea) DoubleTapped(ev *fyne.PointEvent) {
	a.iv.vp.ResetView()
}
