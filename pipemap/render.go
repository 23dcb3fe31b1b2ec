package pipemap

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/draw"
)

// canvasRenderer is the shared surface of the svg and rasterizer backends.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

var backgroundColor = color.RGBA{255, 255, 255, 255}

// RenderPNG rasterizes the current view: white background, then the raster
// basemap tiles, then the styled vector layer on top.
func (s *ViewSession) RenderPNG(w io.Writer) error {
	snap := s.snapshot()

	base := image.NewRGBA(image.Rect(0, 0, snap.width, snap.height))
	draw.Draw(base, base.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	if snap.state.BasemapEnabled {
		compositeTiles(base, snap)
	}

	// Vector layer on its own transparent surface, composited over the
	// tiles. One canvas unit maps to one output pixel.
	rast := rasterizer.New(float64(snap.width), float64(snap.height), canvas.DPMM(1.0), canvas.DefaultColorSpace)
	renderVectors(rast, snap)
	draw.Draw(base, base.Bounds(), rast, image.Point{}, draw.Over)

	return png.Encode(w, base)
}

// RenderSVG writes the vector layer as SVG. The raster basemap is a PNG-only
// concern; the SVG export carries the mains geometry alone.
func (s *ViewSession) RenderSVG(w io.Writer) error {
	snap := s.snapshot()

	svgRenderer := svg.New(w, float64(snap.width), float64(snap.height), nil)

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	svgRenderer.RenderPath(canvas.Rectangle(float64(snap.width), float64(snap.height)), bgStyle, canvas.Identity)

	renderVectors(svgRenderer, snap)

	return svgRenderer.Close()
}

// compositeTiles scales each loaded tile into its screen rectangle. Tiles
// still in flight have a nil image and stay blank.
func compositeTiles(base *image.RGBA, snap renderSnapshot) {
	for _, tile := range snap.tiles {
		if tile.Image == nil {
			continue
		}
		minX, minY, maxX, maxY := TilePixelRect(tile.Desc, snap.proj)
		sx0, sy0 := snap.vp.Apply(minX, minY)
		sx1, sy1 := snap.vp.Apply(maxX, maxY)

		// Scale clips to the destination bounds; only fully offscreen
		// tiles are skipped.
		dst := image.Rect(int(sx0), int(sy0), int(sx1)+1, int(sy1)+1)
		if dst.Intersect(base.Bounds()).Empty() {
			continue
		}
		draw.ApproxBiLinear.Scale(base, dst, tile.Image, tile.Image.Bounds(), draw.Over, nil)
	}
}

// renderVectors draws every visible segment with its computed stroke style
// (shared logic for SVG and PNG).
func renderVectors(renderer canvasRenderer, snap renderSnapshot) {
	for i := range snap.segments {
		seg := &snap.segments[i]
		attrs, ok := snap.cache.Get(seg.ID)
		if !ok || !Visible(attrs, snap.state) {
			continue
		}

		style := StyleFor(attrs, snap.state)
		strokeStyle := canvas.DefaultStyle
		strokeStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		strokeStyle.Stroke = canvas.Paint{Color: style.Color}
		strokeStyle.StrokeWidth = style.Width
		strokeStyle.Dashes = style.Dashes

		switch g := seg.Geometry.(type) {
		case orb.LineString:
			if p := linePath(g, snap); p != nil {
				renderer.RenderPath(p, strokeStyle, canvas.Identity)
			}
		case orb.MultiLineString:
			for _, ls := range g {
				if p := linePath(ls, snap); p != nil {
					renderer.RenderPath(p, strokeStyle, canvas.Identity)
				}
			}
		}
	}
}

// linePath projects one linestring through projection and viewport into a
// canvas path. Screen y grows downward while canvas y grows upward, so the
// y coordinate is flipped here to keep the vector layer aligned with the
// tile compositor.
func linePath(ls orb.LineString, snap renderSnapshot) *canvas.Path {
	if len(ls) < 2 {
		return nil
	}
	h := float64(snap.height)
	cp := &canvas.Path{}
	for i, pt := range ls {
		bx, by := snap.proj.Project(pt[0], pt[1])
		sx, sy := snap.vp.Apply(bx, by)
		if i == 0 {
			cp.MoveTo(sx, h-sy)
		} else {
			cp.LineTo(sx, h-sy)
		}
	}
	return cp
}
