package viewport

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"mri-viewer/pkg/geometry"
)

// DrawOp identifies a recorded draw call.
type DrawOp int

const (
	OpClear DrawOp = iota
	OpDrawImage
	OpStrokeRect
	OpFillRect
)

func (op DrawOp) String() string {
	switch op {
	case OpClear:
		return "clear"
	case OpDrawImage:
		return "image"
	case OpStrokeRect:
		return "stroke"
	case OpFillRect:
		return "fill"
	default:
		return "unknown"
	}
}

// DrawCall is one recorded call, resolved to surface pixels.
type DrawCall struct {
	Op        DrawOp
	Rect      geometry.Rect // Surface-space bounds (empty for clear)
	LineWidth float64       // Surface-space stroke width (stroke only)
	Color     color.Color
}

// Recorder is a Surface that records calls instead of drawing. Each call is
// resolved through the current transform so that tests can check geometry
// without sampling pixels.
type Recorder struct {
	size      geometry.Size
	transform geometry.AffineTransform
	Calls     []DrawCall
}

// NewRecorder creates a recorder for a surface of the given size.
func NewRecorder(width, height float64) *Recorder {
	return &Recorder{
		size:      geometry.NewSize(width, height),
		transform: geometry.Identity(),
	}
}

func (r *Recorder) Size() geometry.Size { return r.size }

func (r *Recorder) Clear() {
	r.Calls = append(r.Calls, DrawCall{Op: OpClear})
}

func (r *Recorder) SetTransform(t geometry.AffineTransform) {
	r.transform = t
}

func (r *Recorder) DrawImage(img image.Image, at geometry.Point2D) {
	b := img.Bounds()
	rect := geometry.NewRect(at.X, at.Y, float64(b.Dx()), float64(b.Dy()))
	r.Calls = append(r.Calls, DrawCall{Op: OpDrawImage, Rect: r.transform.ApplyRect(rect)})
}

func (r *Recorder) StrokeRect(rect geometry.Rect, lineWidth float64, c color.Color) {
	r.Calls = append(r.Calls, DrawCall{
		Op:        OpStrokeRect,
		Rect:      r.transform.ApplyRect(rect),
		LineWidth: lineWidth * r.transform.ScaleFactor(),
		Color:     c,
	})
}

func (r *Recorder) FillRect(rect geometry.Rect, c color.Color) {
	r.Calls = append(r.Calls, DrawCall{Op: OpFillRect, Rect: r.transform.ApplyRect(rect), Color: c})
}

// Count returns how many calls of op were recorded.
func (r *Recorder) Count(op DrawOp) int {
	n := 0
	for _, c := range r.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Filter returns the recorded calls of op, in order.
func (r *Recorder) Filter(op DrawOp) []DrawCall {
	var out []DrawCall
	for _, c := range r.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset discards recorded calls.
func (r *Recorder) Reset() {
	r.Calls = nil
	r.transform = geometry.Identity()
}

// WriteTo prints one line per call.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, c := range r.Calls {
		var n int
		var err error
		switch c.Op {
		case OpClear:
			n, err = fmt.Fprintf(w, "%3d %-6s\n", i, c.Op)
		case OpStrokeRect:
			n, err = fmt.Fprintf(w, "%3d %-6s x=%.2f y=%.2f w=%.2f h=%.2f line=%.2f\n",
				i, c.Op, c.Rect.X, c.Rect.Y, c.Rect.Width, c.Rect.Height, c.LineWidth)
		default:
			n, err = fmt.Fprintf(w, "%3d %-6s x=%.2f y=%.2f w=%.2f h=%.2f\n",
				i, c.Op, c.Rect.X, c.Rect.Y, c.Rect.Width, c.Rect.Height)
		}
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
