package viewport

import (
	"image"
	"image/color"

	"mri-viewer/pkg/colorutil"
	"mri-viewer/pkg/geometry"
)

// SourceImage is a decoded bitmap. It is never mutated once loaded.
type SourceImage struct {
	Width  int
	Height int
	Image  image.Image
	Source string
}

// NewSourceImage wraps a decoded image.
func NewSourceImage(img image.Image, source string) *SourceImage {
	b := img.Bounds()
	return &SourceImage{Width: b.Dx(), Height: b.Dy(), Image: img, Source: source}
}

// Size returns the natural dimensions.
func (s *SourceImage) Size() geometry.Size {
	return geometry.NewSize(float64(s.Width), float64(s.Height))
}

// AnnotationRegion is a rectangle in source-image pixel coordinates.
type AnnotationRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect returns the region as a geometry.Rect.
func (a AnnotationRegion) Rect() geometry.Rect {
	return geometry.NewRect(a.X, a.Y, a.Width, a.Height)
}

// Style controls how regions are drawn.
type Style struct {
	Stroke color.Color
	Fill   color.Color
	// LineWidth is the stroke width in surface pixels, kept constant at
	// every zoom level.
	LineWidth float64
}

// DefaultStyle draws regions in translucent red with a 3px outline.
func DefaultStyle() Style {
	return Style{
		Stroke:    colorutil.RegionStroke,
		Fill:      colorutil.RegionFill,
		LineWidth: 3,
	}
}

// Frame is everything a render depends on.
type Frame struct {
	Image   *SourceImage
	State   State
	Regions []AnnotationRegion
	Style   Style
}

// RenderStats summarizes a render pass.
type RenderStats struct {
	ImageDrawn bool
	Regions    int // Regions drawn
	Skipped    int // Regions rejected as invalid
}

// RenderFrame draws f onto s. It clears the surface, and if an image is
// present draws it under the view transform followed by each valid region.
func RenderFrame(s Surface, f Frame) RenderStats {
	var stats RenderStats

	s.Clear()
	if f.Image == nil || f.Image.Image == nil {
		return stats
	}

	size := s.Size()
	zoom := ClampZoom(f.State.Zoom)
	s.SetTransform(ViewTransform(size, zoom, f.State.Pan))
	defer s.SetTransform(geometry.Identity())

	origin := ImageOrigin(size, f.Image.Width, f.Image.Height)
	s.DrawImage(f.Image.Image, origin)
	stats.ImageDrawn = true

	style := f.Style
	if style.LineWidth <= 0 {
		style.LineWidth = DefaultStyle().LineWidth
	}
	if style.Stroke == nil {
		style.Stroke = DefaultStyle().Stroke
	}
	if style.Fill == nil {
		style.Fill = DefaultStyle().Fill
	}
	lineWidth := style.LineWidth / zoom

	for _, region := range f.Regions {
		r := region.Rect()
		if !r.Valid() {
			stats.Skipped++
			continue
		}
		r = r.Translate(origin)
		s.StrokeRect(r, lineWidth, style.Stroke)
		s.FillRect(r, style.Fill)
		stats.Regions++
	}
	return stats
}
