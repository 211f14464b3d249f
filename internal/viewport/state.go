// Package viewport implements the pan/zoom image viewport: interaction state,
// the view transform, image loading and rendering onto a drawing surface.
package viewport

import (
	"math"

	"mri-viewer/pkg/geometry"
)

const (
	MinZoom = 0.5
	MaxZoom = 5.0

	// ButtonZoomStep is applied per zoom button click.
	ButtonZoomStep = 1.2
	// WheelZoomStep is applied per mouse wheel tick.
	WheelZoomStep = 1.1
)

// State is the interaction state of a single viewport.
//
// Pan is expressed in pre-scale (image) units. DragAnchor is fixed when a
// drag starts so that Pan = pointer - DragAnchor never accumulates drift.
type State struct {
	Zoom       float64
	Pan        geometry.Point2D
	Dragging   bool
	DragAnchor geometry.Point2D

	// Touch contact currently driving the drag, if any.
	touchActive bool
	touchID     int
}

// NewState returns the identity view.
func NewState() State {
	return State{Zoom: 1}
}

// ClampZoom limits z to [MinZoom, MaxZoom]. NaN maps to 1.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// SetZoom sets the zoom factor, clamped. Returns true if it changed.
func (s *State) SetZoom(z float64) bool {
	z = ClampZoom(z)
	if z == s.Zoom {
		return false
	}
	s.Zoom = z
	return true
}

// ZoomIn multiplies the zoom factor by ButtonZoomStep.
func (s *State) ZoomIn() bool {
	return s.SetZoom(ClampZoom(s.Zoom) * ButtonZoomStep)
}

// ZoomOut divides the zoom factor by ButtonZoomStep.
func (s *State) ZoomOut() bool {
	return s.SetZoom(ClampZoom(s.Zoom) / ButtonZoomStep)
}

// Wheel applies one wheel tick. Negative dy (scrolling up) zooms in.
func (s *State) Wheel(dy float64) bool {
	switch {
	case dy < 0:
		return s.SetZoom(ClampZoom(s.Zoom) * WheelZoomStep)
	case dy > 0:
		return s.SetZoom(ClampZoom(s.Zoom) / WheelZoomStep)
	}
	return false
}

// CanZoomIn reports whether the zoom-in control should be enabled.
func (s State) CanZoomIn() bool {
	return s.Zoom < MaxZoom
}

// CanZoomOut reports whether the zoom-out control should be enabled.
func (s State) CanZoomOut() bool {
	return s.Zoom > MinZoom
}

// PanBy adds delta to the pan offset. Pan is unbounded.
func (s *State) PanBy(delta geometry.Point2D) bool {
	if !delta.IsFinite() || (delta.X == 0 && delta.Y == 0) {
		return false
	}
	s.Pan = s.Pan.Add(delta)
	return true
}

// SetPan replaces the pan offset. Non-finite offsets are ignored.
func (s *State) SetPan(p geometry.Point2D) bool {
	if !p.IsFinite() || p == s.Pan {
		return false
	}
	s.Pan = p
	return true
}

// Reset restores zoom 1 and pan (0,0).
func (s *State) Reset() bool {
	changed := s.Zoom != 1 || s.Pan != (geometry.Point2D{})
	s.Zoom = 1
	s.Pan = geometry.Point2D{}
	return changed
}

// resetForImage is applied when the source image changes identity.
func (s *State) resetForImage() {
	*s = NewState()
}

// PointerDown starts a drag at p.
func (s *State) PointerDown(p geometry.Point2D) {
	if !p.IsFinite() {
		return
	}
	s.Dragging = true
	s.DragAnchor = p.Sub(s.Pan)
}

// PointerMove updates the pan offset while dragging.
func (s *State) PointerMove(p geometry.Point2D) bool {
	if !s.Dragging {
		return false
	}
	return s.SetPan(p.Sub(s.DragAnchor))
}

// PointerUp ends the drag.
func (s *State) PointerUp() {
	s.Dragging = false
	s.touchActive = false
}

// PointerLeave ends the drag the same way PointerUp does.
func (s *State) PointerLeave() {
	s.PointerUp()
}

// TouchStart begins a drag for the first touch contact. Further contacts
// are ignored while one is active.
func (s *State) TouchStart(id int, p geometry.Point2D) bool {
	if s.touchActive || s.Dragging || !p.IsFinite() {
		return false
	}
	s.touchActive = true
	s.touchID = id
	s.PointerDown(p)
	return true
}

// TouchMove pans for the active contact only.
func (s *State) TouchMove(id int, p geometry.Point2D) bool {
	if !s.touchActive || id != s.touchID {
		return false
	}
	return s.PointerMove(p)
}

// TouchEnd ends the drag if id is the active contact.
func (s *State) TouchEnd(id int) {
	if !s.touchActive || id != s.touchID {
		return
	}
	s.PointerUp()
}
