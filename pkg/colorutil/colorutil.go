// Package colorutil provides shared color utilities for the MRI viewer.
package colorutil

import (
	"fmt"
	"image/color"
	"math"
	"strings"
)

// Common overlay colors used throughout the application.
var (
	Black       = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Transparent = color.RGBA{}

	// RegionStroke outlines detected regions: rgba(255, 0, 0, 0.8).
	RegionStroke = NRGBA(255, 0, 0, 0.8)
	// RegionFill highlights the inside of detected regions: rgba(255, 0, 0, 0.2).
	RegionFill = NRGBA(255, 0, 0, 0.2)
	// SurfaceBackground is the light gray shown behind the image.
	SurfaceBackground = color.RGBA{R: 243, G: 244, B: 246, A: 255}
)

// NRGBA builds a non-premultiplied color from 8-bit channels and an alpha in
// the range 0-1, the way CSS rgba() does.
func NRGBA(r, g, b uint8, alpha float64) color.NRGBA {
	return color.NRGBA{R: r, G: g, B: b, A: alphaByte(alpha)}
}

// WithAlpha returns c with its alpha replaced, keeping the visible color.
func WithAlpha(c color.Color, alpha float64) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = alphaByte(alpha)
	return n
}

// ParseHex parses "#rrggbb" or "#rrggbbaa".
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var c color.NRGBA
	switch len(s) {
	case 6:
		c.A = 255
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
	default:
		return color.NRGBA{}, fmt.Errorf("invalid color %q: expected 6 or 8 hex digits", s)
	}
	return c, nil
}

func alphaByte(alpha float64) uint8 {
	if math.IsNaN(alpha) || alpha <= 0 {
		return 0
	}
	if alpha >= 1 {
		return 255
	}
	return uint8(math.Round(alpha * 255))
}
