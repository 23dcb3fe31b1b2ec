package pipemap

import (
	"math"

	"github.com/paulmach/orb"
)

// Projection maps geographic coordinates into the base pixel space the
// vector layer renders in at k=1. It is a web-mercator projection scaled
// and offset so the dataset bounds fill the viewport.
//
// WorldWidth is the pixel width of the full 360° world at k=1; it ties the
// continuous zoom factor to the discrete slippy tile pyramid.
type Projection struct {
	WorldWidth float64
	OriginX    float64 // subtracted after projecting, in world pixels
	OriginY    float64
}

// mercatorUnit maps lon/lat to the web-mercator unit square [0,1]².
func mercatorUnit(lon, lat float64) (float64, float64) {
	// Clamp to the mercator-safe latitude range.
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	x := (lon + 180) / 360
	rad := lat * math.Pi / 180
	y := (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2
	return x, y
}

// mercatorUnitInverse maps unit-square coordinates back to lon/lat.
func mercatorUnitInverse(x, y float64) (float64, float64) {
	lon := x*360 - 180
	n := math.Pi - 2*math.Pi*y
	lat := 180 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
	return lon, lat
}

// NewProjection fits the dataset bound into a viewport of the given pixel
// size at k=1, with the bound centered.
func NewProjection(bound orb.Bound, viewportW, viewportH int) Projection {
	minX, minY := mercatorUnit(bound.Min[0], bound.Max[1]) // north-west corner
	maxX, maxY := mercatorUnit(bound.Max[0], bound.Min[1]) // south-east corner

	spanX := maxX - minX
	spanY := maxY - minY
	if spanX <= 0 {
		spanX = 1e-9
	}
	if spanY <= 0 {
		spanY = 1e-9
	}

	// Uniform scale so the whole bound fits both axes.
	worldWidth := math.Min(float64(viewportW)/spanX, float64(viewportH)/spanY)

	centerX := (minX + maxX) / 2 * worldWidth
	centerY := (minY + maxY) / 2 * worldWidth

	return Projection{
		WorldWidth: worldWidth,
		OriginX:    centerX - float64(viewportW)/2,
		OriginY:    centerY - float64(viewportH)/2,
	}
}

// Project maps lon/lat to base pixel space.
func (p Projection) Project(lon, lat float64) (float64, float64) {
	ux, uy := mercatorUnit(lon, lat)
	return ux*p.WorldWidth - p.OriginX, uy*p.WorldWidth - p.OriginY
}

// Unproject maps base pixel coordinates back to lon/lat.
func (p Projection) Unproject(x, y float64) (float64, float64) {
	ux := (x + p.OriginX) / p.WorldWidth
	uy := (y + p.OriginY) / p.WorldWidth
	return mercatorUnitInverse(ux, uy)
}
