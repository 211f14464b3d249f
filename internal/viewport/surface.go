package viewport

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"mri-viewer/pkg/colorutil"
	"mri-viewer/pkg/geometry"

	"golang.org/x/image/draw"
)

// Surface is a 2D drawing target with a current transform, in the manner of
// an HTML canvas context. Coordinates passed to the draw calls are layout
// coordinates; the surface applies its transform.
type Surface interface {
	Size() geometry.Size
	Clear()
	SetTransform(t geometry.AffineTransform)
	DrawImage(img image.Image, at geometry.Point2D)
	// StrokeRect outlines r. lineWidth is in layout units and is scaled by
	// the current transform like everything else.
	StrokeRect(r geometry.Rect, lineWidth float64, c color.Color)
	FillRect(r geometry.Rect, c color.Color)
}

// Interpolator names accepted by ParseInterpolator.
const (
	InterpNearest  = "nearest"
	InterpBilinear = "bilinear"
	InterpCatmull  = "catmullrom"
)

// ParseInterpolator returns the x/image interpolator for a name.
func ParseInterpolator(name string) (draw.Interpolator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", InterpBilinear:
		return draw.ApproxBiLinear, nil
	case InterpNearest:
		return draw.NearestNeighbor, nil
	case InterpCatmull:
		return draw.CatmullRom, nil
	}
	return nil, fmt.Errorf("unknown interpolator %q", name)
}

// RasterSurface draws into an *image.RGBA.
type RasterSurface struct {
	dst       *image.RGBA
	transform geometry.AffineTransform

	// Background is the color Clear fills with.
	Background color.Color
	// Interpolator resamples the bitmap in DrawImage.
	Interpolator draw.Interpolator
}

// NewRasterSurface creates a w x h raster surface with a transparent
// background.
func NewRasterSurface(w, h int) *RasterSurface {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return NewRasterSurfaceFor(image.NewRGBA(image.Rect(0, 0, w, h)))
}

// NewRasterSurfaceFor wraps an existing image.
func NewRasterSurfaceFor(dst *image.RGBA) *RasterSurface {
	return &RasterSurface{
		dst:          dst,
		transform:    geometry.Identity(),
		Background:   colorutil.Transparent,
		Interpolator: draw.ApproxBiLinear,
	}
}

// Image returns the backing image.
func (s *RasterSurface) Image() *image.RGBA {
	return s.dst
}

func (s *RasterSurface) Size() geometry.Size {
	b := s.dst.Bounds()
	return geometry.NewSize(float64(b.Dx()), float64(b.Dy()))
}

func (s *RasterSurface) Clear() {
	bg := s.Background
	if bg == nil {
		bg = colorutil.Transparent
	}
	draw.Draw(s.dst, s.dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
}

func (s *RasterSurface) SetTransform(t geometry.AffineTransform) {
	s.transform = t
}

func (s *RasterSurface) DrawImage(img image.Image, at geometry.Point2D) {
	if img == nil {
		return
	}
	b := img.Bounds()
	if b.Empty() {
		return
	}
	interp := s.Interpolator
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	m := s.transform.Compose(geometry.Translation(at.X-float64(b.Min.X), at.Y-float64(b.Min.Y)))
	interp.Transform(s.dst, m.Aff3(), img, b, draw.Over, nil)
}

func (s *RasterSurface) FillRect(r geometry.Rect, c color.Color) {
	s.fill(s.transform.ApplyRect(r), c)
}

// StrokeRect draws the outline centered on the rectangle's edges, as a
// canvas stroke does. The four bands do not overlap, so translucent strokes
// blend once.
func (s *RasterSurface) StrokeRect(r geometry.Rect, lineWidth float64, c color.Color) {
	if lineWidth <= 0 {
		return
	}
	sr := s.transform.ApplyRect(r)
	half := lineWidth * s.transform.ScaleFactor() / 2

	ox1, oy1 := sr.X-half, sr.Y-half
	ox2, oy2 := sr.X+sr.Width+half, sr.Y+sr.Height+half
	ix1, iy1 := sr.X+half, sr.Y+half
	ix2, iy2 := sr.X+sr.Width-half, sr.Y+sr.Height-half

	if ix2 <= ix1 || iy2 <= iy1 {
		s.fill(geometry.NewRect(ox1, oy1, ox2-ox1, oy2-oy1), c)
		return
	}
	s.fill(geometry.NewRect(ox1, oy1, ox2-ox1, iy1-oy1), c) // top
	s.fill(geometry.NewRect(ox1, iy2, ox2-ox1, oy2-iy2), c) // bottom
	s.fill(geometry.NewRect(ox1, iy1, ix1-ox1, iy2-iy1), c) // left
	s.fill(geometry.NewRect(ix2, iy1, ox2-ix2, iy2-iy1), c) // right
}

// fill paints a rectangle given in surface pixels.
func (s *RasterSurface) fill(r geometry.Rect, c color.Color) {
	pr := image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	).Intersect(s.dst.Bounds())
	if pr.Empty() {
		return
	}
	draw.Draw(s.dst, pr, image.NewUniform(c), image.Point{}, draw.Over)
}
