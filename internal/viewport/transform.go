package viewport

import (
	"mri-viewer/pkg/geometry"
)

// ViewTransform returns the mapping from layout coordinates to surface
// pixels: translate to the surface center, scale by zoom, then translate by
// -center + pan. Zoom is therefore always anchored on the surface midpoint
// and pan is measured in pre-scale units.
func ViewTransform(surface geometry.Size, zoom float64, pan geometry.Point2D) geometry.AffineTransform {
	c := surface.Center()
	zoom = ClampZoom(zoom)
	return geometry.Translation(c.X, c.Y).
		Compose(geometry.Scale(zoom, zoom)).
		Compose(geometry.Translation(-c.X+pan.X, -c.Y+pan.Y))
}

// ImageOrigin returns where the image's top-left corner sits in layout
// coordinates so that the image is centered on the surface.
func ImageOrigin(surface geometry.Size, width, height int) geometry.Point2D {
	return geometry.Point2D{
		X: (surface.Width - float64(width)) / 2,
		Y: (surface.Height - float64(height)) / 2,
	}
}

// ImageToSurface maps a point in image pixel coordinates to surface pixels.
func ImageToSurface(surface geometry.Size, img *SourceImage, st State, p geometry.Point2D) geometry.Point2D {
	origin := ImageOrigin(surface, img.Width, img.Height)
	return ViewTransform(surface, st.Zoom, st.Pan).Apply(p.Add(origin))
}

// SurfaceToImage maps a surface pixel back to image pixel coordinates.
func SurfaceToImage(surface geometry.Size, img *SourceImage, st State, p geometry.Point2D) (geometry.Point2D, bool) {
	inv, ok := ViewTransform(surface, st.Zoom, st.Pan).Inverse()
	if !ok {
		return geometry.Point2D{}, false
	}
	origin := ImageOrigin(surface, img.Width, img.Height)
	return inv.Apply(p).Sub(origin), true
}
