package pipemap

import "math"

const (
	// MinScale and MaxScale bound the continuous zoom factor k.
	MinScale = 1.0
	MaxScale = 20.0
)

func clampScale(k float64) float64 {
	return math.Max(MinScale, math.Min(MaxScale, k))
}

// Viewport is the continuous affine map from base pixel space to screen
// space: screen = base*k + translate. It is the sole source of truth for
// where the user is looking.
type Viewport struct {
	Scale      float64
	TranslateX float64
	TranslateY float64
}

// NewViewport returns the identity viewport at minimum zoom.
func NewViewport() Viewport {
	return Viewport{Scale: 1, TranslateX: 0, TranslateY: 0}
}

// Apply maps a base pixel coordinate to screen space.
func (v Viewport) Apply(x, y float64) (float64, float64) {
	return x*v.Scale + v.TranslateX, y*v.Scale + v.TranslateY
}

// Invert maps a screen coordinate back to base pixel space. The scale is
// always ≥ MinScale so the inverse exists.
func (v Viewport) Invert(x, y float64) (float64, float64) {
	return (x - v.TranslateX) / v.Scale, (y - v.TranslateY) / v.Scale
}

// Pan shifts the view by a screen-space delta.
func (v Viewport) Pan(dx, dy float64) Viewport {
	v.TranslateX += dx
	v.TranslateY += dy
	return v
}

// ZoomAt scales the view by factor while keeping the screen anchor point
// (px, py) fixed, matching wheel-zoom behavior. The resulting scale is
// clamped to [MinScale, MaxScale] and the translation adjusted accordingly.
func (v Viewport) ZoomAt(px, py, factor float64) Viewport {
	newScale := clampScale(v.Scale * factor)
	ratio := newScale / v.Scale
	v.TranslateX = px - (px-v.TranslateX)*ratio
	v.TranslateY = py - (py-v.TranslateY)*ratio
	v.Scale = newScale
	return v
}

// SetTransform replaces the transform wholesale (codec/URL restore path).
func (v Viewport) SetTransform(k, tx, ty float64) Viewport {
	v.Scale = clampScale(k)
	v.TranslateX = tx
	v.TranslateY = ty
	return v
}
