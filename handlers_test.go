package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/kwv/mainsmap/pipemap"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// testServer builds an HTTP handler over a small in-memory dataset: two
// mains near Toronto, one large and one small so the zoom LOD is exercised.
func testServer(t *testing.T) (http.Handler, *pipemap.ViewSession) {
	t.Helper()

	segments := []pipemap.PipeSegment{
		{
			ID: "m1", MaterialRaw: "CI", DiameterRaw: "150", YearRaw: "1960",
			Geometry: orb.LineString{{-79.40, 43.65}, {-79.39, 43.65}},
		},
		{
			ID: "m2", MaterialRaw: "DI", DiameterRaw: "500", YearRaw: "1990",
			Geometry: orb.LineString{{-79.39, 43.66}, {-79.38, 43.66}},
		},
	}
	cache := pipemap.NewAttributeCache(segments, 2025, nil, 3)
	session := pipemap.NewViewSession(segments, cache, nil, nil, 400, 300, 19)
	return newHTTPServer(session), session
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	handler, _ := testServer(t)
	rec := doRequest(t, handler, http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var status struct {
		Status   string `json:"status"`
		Segments int    `json:"segments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("status = %q, want %q", status.Status, "ok")
	}
	if status.Segments != 2 {
		t.Errorf("segments = %d, want 2", status.Segments)
	}
}

func TestMapPNGEndpoint(t *testing.T) {
	handler, _ := testServer(t)
	rec := doRequest(t, handler, http.MethodGet, "/map.png")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 400, 300) {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestMapSVGEndpoint(t *testing.T) {
	handler, _ := testServer(t)
	rec := doRequest(t, handler, http.MethodGet, "/map.svg")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want image/svg+xml", ct)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("response does not contain an <svg> element")
	}
}

func TestViewEndpoint(t *testing.T) {
	handler, session := testServer(t)

	t.Run("GET returns the shareable query", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/view")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		got := strings.TrimSpace(rec.Body.String())
		if got != session.EncodeQuery() {
			t.Errorf("body = %q, want %q", got, session.EncodeQuery())
		}
	})

	t.Run("POST applies a view query", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/view?k=5&ov=risk")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		state := session.State()
		if state.Scale != 5 {
			t.Errorf("Scale = %g, want 5", state.Scale)
		}
		if state.Mode != pipemap.StyleRisk {
			t.Errorf("Mode = %v, want StyleRisk", state.Mode)
		}
	})

	t.Run("POST with bad syntax is rejected", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/view?k=%zz")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("other methods rejected", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodDelete, "/view")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestPanEndpoint(t *testing.T) {
	handler, session := testServer(t)
	before := session.State()

	rec := doRequest(t, handler, http.MethodPost, "/pan?dx=30&dy=-10")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	after := session.State()
	if after.TranslateX != before.TranslateX+30 || after.TranslateY != before.TranslateY-10 {
		t.Errorf("translate = (%g,%g)", after.TranslateX, after.TranslateY)
	}

	var resp struct {
		View    string `json:"view"`
		Visible int    `json:"visible"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.View != session.EncodeQuery() {
		t.Errorf("view = %q, want %q", resp.View, session.EncodeQuery())
	}

	t.Run("non-numeric deltas rejected", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/pan?dx=left&dy=0")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("GET rejected", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/pan?dx=1&dy=1")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestZoomEndpoint(t *testing.T) {
	handler, session := testServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/zoom?f=2&px=200&py=150")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if session.State().Scale != 2 {
		t.Errorf("Scale = %g, want 2", session.State().Scale)
	}

	t.Run("zero factor rejected", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/zoom?f=0&px=0&py=0")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing anchor rejected", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/zoom?f=2")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestStyleEndpoint(t *testing.T) {
	handler, session := testServer(t)

	for _, mode := range []string{"risk", "consequence", "none"} {
		rec := doRequest(t, handler, http.MethodPost, "/style?mode="+mode)
		if rec.Code != http.StatusOK {
			t.Fatalf("mode %q: status = %d, want 200", mode, rec.Code)
		}
		if session.State().Mode.String() != mode {
			t.Errorf("mode = %q, want %q", session.State().Mode, mode)
		}
	}

	rec := doRequest(t, handler, http.MethodPost, "/style?mode=sparkles")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFilterEndpoint(t *testing.T) {
	handler, session := testServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/filter?kind=mat&values=DI")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	state := session.State()
	if !state.MaterialFilter["DI"] || state.MaterialFilter["CI"] {
		t.Errorf("MaterialFilter = %v, want only DI", state.MaterialFilter)
	}

	t.Run("empty values deactivates the set", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/filter?kind=dia&values=")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if session.VisibleCount() != 0 {
			t.Errorf("VisibleCount = %d, want 0", session.VisibleCount())
		}
	})

	t.Run("unicode bin labels survive URL transport", func(t *testing.T) {
		target := "/filter?kind=dia&values=" + url.QueryEscape("≤150,≥750")
		rec := doRequest(t, handler, http.MethodPost, target)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !session.State().DiameterFilter["≤150"] {
			t.Error("≤150 not active after filter update")
		}
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodPost, "/filter?kind=nope&values=x")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestBasemapEndpoint(t *testing.T) {
	handler, session := testServer(t)

	rec := doRequest(t, handler, http.MethodPost, "/basemap?on=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if session.State().BasemapEnabled {
		t.Error("basemap still enabled after on=0")
	}

	rec = doRequest(t, handler, http.MethodPost, "/basemap?on=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !session.State().BasemapEnabled {
		t.Error("basemap not enabled after on=1")
	}

	rec = doRequest(t, handler, http.MethodPost, "/basemap?on=maybe")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLegendEndpoint(t *testing.T) {
	handler, session := testServer(t)
	session.SetStyleMode(pipemap.StyleRisk)

	rec := doRequest(t, handler, http.MethodGet, "/legend.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var entries []pipemap.LegendEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding legend: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("len = %d, want 4", len(entries))
	}
	if entries[0].Label != "Low" {
		t.Errorf("first label = %q, want Low", entries[0].Label)
	}
	if !strings.HasPrefix(entries[0].Color, "#") {
		t.Errorf("color = %q, want #RRGGBB", entries[0].Color)
	}
}

func TestFeaturesEndpoint(t *testing.T) {
	handler, _ := testServer(t)
	rec := doRequest(t, handler, http.MethodGet, "/features.json")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var summary struct {
		Segments int `json:"segments"`
		Visible  int `json:"visible"`
		Risk     struct {
			Low      int `json:"low"`
			Medium   int `json:"medium"`
			High     int `json:"high"`
			VeryHigh int `json:"veryHigh"`
		} `json:"risk"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.Segments != 2 {
		t.Errorf("segments = %d, want 2", summary.Segments)
	}
	total := summary.Risk.Low + summary.Risk.Medium + summary.Risk.High + summary.Risk.VeryHigh
	if total != 2 {
		t.Errorf("risk counts sum to %d, want 2", total)
	}
}

func TestIndexPage(t *testing.T) {
	handler, _ := testServer(t)

	rec := doRequest(t, handler, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/map.png") {
		t.Error("index page does not embed the map image")
	}

	t.Run("unknown paths 404", func(t *testing.T) {
		rec := doRequest(t, handler, http.MethodGet, "/nope")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
