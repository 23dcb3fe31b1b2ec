package pipemap

import (
	"fmt"
	"image"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	// Tile providers serve PNG or JPEG; register both decoders.
	_ "image/jpeg"
	_ "image/png"
)

const tileSizePx = 256

// ZoomLevel derives the discrete slippy zoom level equivalent to the
// continuous scale k, given the projection's world pixel width at k=1.
func ZoomLevel(p Projection, k float64, maxZoom int) int {
	z := int(math.Round(math.Log2(p.WorldWidth/tileSizePx) + math.Log2(k)))
	if z < 0 {
		z = 0
	}
	if z > maxZoom {
		z = maxZoom
	}
	return z
}

// TileRange is a contiguous, clamped rectangle of tile indices at one zoom
// level.
type TileRange struct {
	Z          int
	MinX, MaxX int
	MinY, MaxY int
}

// Tiles expands the range into the full rectangular descriptor set.
func (r TileRange) Tiles() []TileDescriptor {
	out := make([]TileDescriptor, 0, (r.MaxX-r.MinX+1)*(r.MaxY-r.MinY+1))
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			out = append(out, TileDescriptor{Z: r.Z, X: x, Y: y})
		}
	}
	return out
}

// tileIndex converts lon/lat to tile indices at zoom z using the standard
// slippy-map formulas.
func tileIndex(lon, lat float64, z int) (int, int) {
	n := math.Exp2(float64(z))
	x := int(math.Floor((lon + 180) / 360 * n))
	rad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * n))
	return x, y
}

func clampTile(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// VisibleTileRange computes the padded, clamped tile rectangle covering the
// current viewport. ok is false when the inverted viewport rectangle is
// degenerate; callers skip the tile update for that frame.
func VisibleTileRange(vp Viewport, p Projection, viewportW, viewportH, maxZoom int) (TileRange, bool) {
	z := ZoomLevel(p, vp.Scale, maxZoom)

	// Invert the viewport corners to base pixel space, then to lon/lat.
	x0, y0 := vp.Invert(0, 0)
	x1, y1 := vp.Invert(float64(viewportW), float64(viewportH))
	lonMin, latMax := p.Unproject(x0, y0)
	lonMax, latMin := p.Unproject(x1, y1)

	if math.IsNaN(lonMin) || math.IsNaN(lonMax) || math.IsNaN(latMin) || math.IsNaN(latMax) {
		return TileRange{}, false
	}
	if lonMin >= lonMax || latMin >= latMax {
		return TileRange{}, false
	}

	minX, minY := tileIndex(lonMin, latMax, z)
	maxX, maxY := tileIndex(lonMax, latMin, z)

	// Pad by one tile in each direction to avoid edge flicker during pan.
	maxIndex := int(math.Exp2(float64(z))) - 1
	r := TileRange{
		Z:    z,
		MinX: clampTile(minX-1, maxIndex),
		MaxX: clampTile(maxX+1, maxIndex),
		MinY: clampTile(minY-1, maxIndex),
		MaxY: clampTile(maxY+1, maxIndex),
	}
	if r.MinX > r.MaxX || r.MinY > r.MaxY {
		return TileRange{}, false
	}
	return r, true
}

// TileBounds returns the tile's geographic corners (west, south, east,
// north).
func TileBounds(t TileDescriptor) (float64, float64, float64, float64) {
	n := math.Exp2(float64(t.Z))
	west := float64(t.X)/n*360 - 180
	east := float64(t.X+1)/n*360 - 180
	north := tileLat(float64(t.Y), n)
	south := tileLat(float64(t.Y+1), n)
	return west, south, east, north
}

func tileLat(y, n float64) float64 {
	rad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))
	return rad * 180 / math.Pi
}

// TilePixelRect projects the tile's geographic corners into base pixel
// space so raster content lands in exactly the coordinate frame the vector
// layer uses.
func TilePixelRect(t TileDescriptor, p Projection) (minX, minY, maxX, maxY float64) {
	west, south, east, north := TileBounds(t)
	minX, minY = p.Project(west, north)
	maxX, maxY = p.Project(east, south)
	return minX, minY, maxX, maxY
}

// DiffTiles compares the desired tile set against the previous one by key.
// Tiles present in both sets are untouched so they are never re-fetched.
func DiffTiles(prev map[string]TileDescriptor, next []TileDescriptor) (added, removed []TileDescriptor) {
	nextKeys := make(map[string]bool, len(next))
	for _, t := range next {
		nextKeys[t.Key()] = true
		if _, ok := prev[t.Key()]; !ok {
			added = append(added, t)
		}
	}
	for key, t := range prev {
		if !nextKeys[key] {
			removed = append(removed, t)
		}
	}
	return added, removed
}

// TileFetcher retrieves one raster tile image.
type TileFetcher interface {
	Fetch(t TileDescriptor) (image.Image, error)
}

// HTTPTileFetcher fetches tiles from a {z}/{x}/{y} URL template.
// Best-effort: single attempt, no retry.
type HTTPTileFetcher struct {
	URLTemplate string
	Client      *http.Client
}

// NewHTTPTileFetcher creates a fetcher with a sane default timeout.
func NewHTTPTileFetcher(urlTemplate string) *HTTPTileFetcher {
	return &HTTPTileFetcher{
		URLTemplate: urlTemplate,
		Client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// URL expands the template for one tile.
func (f *HTTPTileFetcher) URL(t TileDescriptor) string {
	r := strings.NewReplacer(
		"{z}", fmt.Sprintf("%d", t.Z),
		"{x}", fmt.Sprintf("%d", t.X),
		"{y}", fmt.Sprintf("%d", t.Y),
	)
	return r.Replace(f.URLTemplate)
}

// Fetch performs a single HTTP GET and decodes the image.
func (f *HTTPTileFetcher) Fetch(t TileDescriptor) (image.Image, error) {
	url := f.URL(t)
	resp, err := f.Client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding tile %s: %w", t.Key(), err)
	}
	return img, nil
}

// TileLayer keeps the rendered raster tile set in sync with the viewport.
// Fetches are fire-and-forget: the render path never waits on them, a
// missing image is a blank cell until it resolves, and fetch errors are
// terminal (no retry). In-flight requests are not cancelled when the
// viewport moves on; a stale response is kept only if its key is still in
// the desired set.
type TileLayer struct {
	mu      sync.Mutex
	fetcher TileFetcher
	tiles   map[string]*tileEntry
}

type tileEntry struct {
	desc TileDescriptor
	img  image.Image // nil until the fetch resolves
}

// NewTileLayer creates an empty layer. A nil fetcher disables fetching
// (descriptors are still tracked, cells stay blank).
func NewTileLayer(fetcher TileFetcher) *TileLayer {
	return &TileLayer{
		fetcher: fetcher,
		tiles:   make(map[string]*tileEntry),
	}
}

// Sync diffs the desired tile set against the current one: new keys start a
// background fetch, dropped keys are removed immediately. Returns how many
// tiles were added and removed.
func (l *TileLayer) Sync(desired []TileDescriptor) (added, removed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := make(map[string]TileDescriptor, len(l.tiles))
	for key, e := range l.tiles {
		prev[key] = e.desc
	}

	add, remove := DiffTiles(prev, desired)
	for _, t := range remove {
		delete(l.tiles, t.Key())
	}
	for _, t := range add {
		l.tiles[t.Key()] = &tileEntry{desc: t}
		if l.fetcher != nil {
			go l.fetchTile(t)
		}
	}
	return len(add), len(remove)
}

func (l *TileLayer) fetchTile(t TileDescriptor) {
	img, err := l.fetcher.Fetch(t)
	if err != nil {
		// Silent failure by contract; the cell stays blank.
		log.Printf("tile %s fetch failed: %v", t.Key(), err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Accept the response only if the key is still wanted.
	if e, ok := l.tiles[t.Key()]; ok {
		e.img = img
	}
}

// Snapshot returns the current tiles and their images (nil image = still
// loading or failed).
func (l *TileLayer) Snapshot() []TileImage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]TileImage, 0, len(l.tiles))
	for _, e := range l.tiles {
		out = append(out, TileImage{Desc: e.desc, Image: e.img})
	}
	return out
}

// Len returns the number of tracked tiles.
func (l *TileLayer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tiles)
}

// TileImage pairs a descriptor with its (possibly not yet loaded) image.
type TileImage struct {
	Desc  TileDescriptor
	Image image.Image
}
