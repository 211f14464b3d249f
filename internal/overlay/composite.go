// Package overlay blends prediction heatmaps over the source scan.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// BlendMode specifies how a layer is combined with the image below it.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "normal"
	case BlendMultiply:
		return "multiply"
	case BlendScreen:
		return "screen"
	case BlendOverlay:
		return "overlay"
	case BlendDifference:
		return "difference"
	default:
		return "unknown"
	}
}

// ParseBlendMode returns the mode for a name. The empty string is normal.
func ParseBlendMode(name string) (BlendMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "normal":
		return BlendNormal, nil
	case "multiply":
		return BlendMultiply, nil
	case "screen":
		return BlendScreen, nil
	case "overlay":
		return BlendOverlay, nil
	case "difference":
		return BlendDifference, nil
	}
	return BlendNormal, fmt.Errorf("unknown blend mode %q", name)
}

// Layer is an image blended over the base.
type Layer struct {
	Image   image.Image
	Mode    BlendMode
	Opacity float64 // 0..1
}

// Composite blends layers over base and returns a new image the size of
// base. Layers of a different size are stretched to fit, since the service
// may return a heatmap at model resolution.
func Composite(base image.Image, layers ...Layer) *image.RGBA {
	b := base.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), base, b.Min, draw.Src)

	for _, l := range layers {
		if l.Image == nil || l.Opacity <= 0 || l.Image.Bounds().Empty() {
			continue
		}
		blendLayer(result, fitTo(l.Image, result.Bounds()), l.Mode, clamp(l.Opacity, 0, 1))
	}
	return result
}

func fitTo(src image.Image, bounds image.Rectangle) image.Image {
	sb := src.Bounds()
	if sb.Dx() == bounds.Dx() && sb.Dy() == bounds.Dy() {
		return src
	}
	dst := image.NewRGBA(bounds)
	draw.ApproxBiLinear.Scale(dst, bounds, src, sb, draw.Src, nil)
	return dst
}

func blendLayer(dst *image.RGBA, src image.Image, mode BlendMode, opacity float64) {
	sb := src.Bounds()
	db := dst.Bounds()
	for y := 0; y < db.Dy(); y++ {
		for x := 0; x < db.Dx(); x++ {
			sc := src.At(sb.Min.X+x, sb.Min.Y+y)
			dst.SetRGBA(x, y, blend(dst.RGBAAt(x, y), sc, mode, opacity))
		}
	}
}

// blend performs the blend operation between two colors.
func blend(dst color.RGBA, src color.Color, mode BlendMode, opacity float64) color.RGBA {
	sr, sg, sb, sa := src.RGBA()
	if sa == 0 {
		return dst
	}
	// Un-premultiply the source so blend formulas see straight color.
	sf := [4]float64{float64(sr) / float64(sa), float64(sg) / float64(sa), float64(sb) / float64(sa), float64(sa) / 65535.0}
	df := [4]float64{float64(dst.R) / 255, float64(dst.G) / 255, float64(dst.B) / 255, float64(dst.A) / 255}

	var rf [3]float64
	for i := 0; i < 3; i++ {
		switch mode {
		case BlendMultiply:
			rf[i] = sf[i] * df[i]
		case BlendScreen:
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		case BlendOverlay:
			if df[i] < 0.5 {
				rf[i] = 2 * sf[i] * df[i]
			} else {
				rf[i] = 1 - 2*(1-sf[i])*(1-df[i])
			}
		case BlendDifference:
			rf[i] = math.Abs(sf[i] - df[i])
		default:
			rf[i] = sf[i]
		}
	}

	alpha := sf[3] * opacity
	out := color.RGBA{A: uint8(math.Round(clamp(alpha+df[3]*(1-alpha), 0, 1) * 255))}
	out.R = channel(rf[0], df[0], alpha)
	out.G = channel(rf[1], df[1], alpha)
	out.B = channel(rf[2], df[2], alpha)
	return out
}

func channel(src, dst, alpha float64) uint8 {
	return uint8(math.Round(clamp(src*alpha+dst*(1-alpha), 0, 1) * 255))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
