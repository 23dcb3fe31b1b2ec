package pipemap

import (
	"sync"
)

// ViewSession owns the single mutable ViewState for one map view and
// enforces the update contract: every mutation runs the full cascade of
// (1) apply the transform, (2) recompute visibility/styling inputs,
// (3) resync the raster tile set, synchronously, before the next event.
type ViewSession struct {
	mu sync.RWMutex

	segments []PipeSegment
	index    map[string]int // segment ID -> slice index
	cache    *AttributeCache
	labels   map[string]string

	proj      Projection
	viewportW int
	viewportH int
	maxZoom   int

	state ViewState
	tiles *TileLayer

	visibleCount int
}

// NewViewSession builds a session over a loaded dataset. The fetcher may be
// nil to disable basemap fetching (tiles are still tracked).
func NewViewSession(segments []PipeSegment, cache *AttributeCache, labels map[string]string, fetcher TileFetcher, viewportW, viewportH, maxZoom int) *ViewSession {
	index := make(map[string]int, len(segments))
	for i := range segments {
		index[segments[i].ID] = i
	}

	s := &ViewSession{
		segments:  segments,
		index:     index,
		cache:     cache,
		labels:    labels,
		proj:      NewProjection(DatasetBounds(segments), viewportW, viewportH),
		viewportW: viewportW,
		viewportH: viewportH,
		maxZoom:   maxZoom,
		state:     DefaultViewState(cache),
		tiles:     NewTileLayer(fetcher),
	}
	s.cascadeLocked()
	return s
}

// DefaultViewState returns the initial state: all bins selected, asset
// mode, basemap on, identity transform.
func DefaultViewState(cache *AttributeCache) ViewState {
	vs := ViewState{
		Scale:          1,
		Mode:           StyleAsset,
		BasemapEnabled: true,
		DiameterFilter: make(map[string]bool),
		AgeFilter:      make(map[string]bool),
		MaterialFilter: make(map[string]bool),
	}
	for _, b := range AllDiameterBins {
		vs.DiameterFilter[b] = true
	}
	for _, b := range AllAgeBins {
		vs.AgeFilter[b] = true
	}
	if cache != nil {
		for _, g := range cache.MaterialGroups() {
			vs.MaterialFilter[g] = true
		}
	}
	return vs
}

// cascadeLocked runs the three-step update cascade. Callers hold s.mu.
// Step 1 (the transform) already lives in s.state; step 2 recomputes the
// visible set from the cached attributes; step 3 diffs the tile set.
// A degenerate viewport rectangle skips the tile update for this frame.
func (s *ViewSession) cascadeLocked() {
	vp := s.viewportLocked()

	count := 0
	for i := range s.segments {
		attrs, ok := s.cache.Get(s.segments[i].ID)
		if ok && Visible(attrs, s.state) {
			count++
		}
	}
	s.visibleCount = count

	if !s.state.BasemapEnabled {
		s.tiles.Sync(nil)
		return
	}
	r, ok := VisibleTileRange(vp, s.proj, s.viewportW, s.viewportH, s.maxZoom)
	if !ok {
		return
	}
	s.tiles.Sync(r.Tiles())
}

func (s *ViewSession) viewportLocked() Viewport {
	return Viewport{Scale: s.state.Scale, TranslateX: s.state.TranslateX, TranslateY: s.state.TranslateY}
}

// Pan shifts the view by a screen-space delta and runs the cascade.
func (s *ViewSession) Pan(dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vp := s.viewportLocked().Pan(dx, dy)
	s.state.Scale, s.state.TranslateX, s.state.TranslateY = vp.Scale, vp.TranslateX, vp.TranslateY
	s.cascadeLocked()
}

// ZoomAt zooms by factor around the screen anchor (px, py) and runs the
// cascade.
func (s *ViewSession) ZoomAt(px, py, factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vp := s.viewportLocked().ZoomAt(px, py, factor)
	s.state.Scale, s.state.TranslateX, s.state.TranslateY = vp.Scale, vp.TranslateX, vp.TranslateY
	s.cascadeLocked()
}

// SetStyleMode activates exactly one symbology mode; any other overlay is
// implicitly turned off by the tagged enum.
func (s *ViewSession) SetStyleMode(mode StyleMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Mode = mode
	s.cascadeLocked()
}

// FilterKind names one of the three independent filter sets.
type FilterKind int

const (
	FilterDiameter FilterKind = iota
	FilterAge
	FilterMaterial
)

// SetFilter replaces one filter set with the given active labels.
func (s *ViewSession) SetFilter(kind FilterKind, labels []string) {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case FilterDiameter:
		s.state.DiameterFilter = set
	case FilterAge:
		s.state.AgeFilter = set
	case FilterMaterial:
		s.state.MaterialFilter = set
	}
	s.cascadeLocked()
}

// SetBasemap toggles the raster basemap layer.
func (s *ViewSession) SetBasemap(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BasemapEnabled = enabled
	s.cascadeLocked()
}

// ApplyQuery decodes a shareable-URL query string onto the current state
// and runs the cascade once. Unset keys keep their current values.
func (s *ViewSession) ApplyQuery(query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := DecodeViewState(query, &s.state); err != nil {
		return err
	}
	s.cascadeLocked()
	return nil
}

// EncodeQuery serializes the current state to the shareable form.
func (s *ViewSession) EncodeQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EncodeViewState(s.state)
}

// Resize re-fits the projection to a new viewport size. Derived attributes
// are reused, not recomputed.
func (s *ViewSession) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewportW = w
	s.viewportH = h
	s.proj = NewProjection(DatasetBounds(s.segments), w, h)
	s.cascadeLocked()
}

// SetStatus patches one segment's raw status (live feed path), recomputes
// just that segment's derived attributes, and runs the cascade.
func (s *ViewSession) SetStatus(id, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.segments[i].StatusRaw = status
	s.cache.Recompute(&s.segments[i])
	s.cascadeLocked()
	return true
}

// State returns a deep copy of the current ViewState.
func (s *ViewSession) State() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// VisibleCount returns the number of segments passing all filters at the
// current zoom.
func (s *ViewSession) VisibleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleCount
}

// SegmentCount returns the dataset size.
func (s *ViewSession) SegmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Attributes exposes the cached derived attributes for one segment.
func (s *ViewSession) Attributes(id string) (DerivedAttributes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Get(id)
}

// RiskSummary counts segments per risk bin, for the live feed publisher
// and the features endpoint.
func (s *ViewSession) RiskSummary() [4]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts [4]int
	for i := range s.segments {
		if attrs, ok := s.cache.Get(s.segments[i].ID); ok && attrs.RiskBin >= 1 && attrs.RiskBin <= 4 {
			counts[attrs.RiskBin-1]++
		}
	}
	return counts
}

// LegendEntries builds the legend for the active style mode.
func (s *ViewSession) LegendEntries() []LegendEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Legend(s.state.Mode, s.cache.MaterialGroups(), s.labels)
}

// TileCount reports how many raster tiles are currently tracked.
func (s *ViewSession) TileCount() int {
	return s.tiles.Len()
}

// renderSnapshot gathers everything the renderer needs under one read
// lock.
type renderSnapshot struct {
	segments []PipeSegment
	cache    *AttributeCache
	state    ViewState
	proj     Projection
	vp       Viewport
	tiles    []TileImage
	width    int
	height   int
}

func (s *ViewSession) snapshot() renderSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return renderSnapshot{
		segments: s.segments,
		cache:    s.cache,
		state:    s.state.Clone(),
		proj:     s.proj,
		vp:       s.viewportLocked(),
		tiles:    s.tiles.Snapshot(),
		width:    s.viewportW,
		height:   s.viewportH,
	}
}
