package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/mainsmap/pipemap"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(session *pipemap.ViewSession) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Segments  int       `json:"segments"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Segments:  session.SegmentCount(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// Raster map endpoint
	mux.HandleFunc("/map.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := session.RenderPNG(w); err != nil {
			log.Printf("Error encoding map PNG: %v", err)
		}
	})

	// Vector map endpoint
	mux.HandleFunc("/map.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := session.RenderSVG(w); err != nil {
			log.Printf("Error encoding map SVG: %v", err)
		}
	})

	// View state endpoint: GET returns the shareable query string, POST
	// applies one (partial updates allowed; unknown keys ignored).
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprintln(w, session.EncodeQuery())
		case http.MethodPost:
			if err := session.ApplyQuery(r.URL.RawQuery); err != nil {
				http.Error(w, fmt.Sprintf("invalid view query: %v", err), http.StatusBadRequest)
				return
			}
			writeViewState(w, session)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Pan endpoint: dx/dy in screen pixels
	mux.HandleFunc("/pan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		dx, errX := strconv.ParseFloat(r.URL.Query().Get("dx"), 64)
		dy, errY := strconv.ParseFloat(r.URL.Query().Get("dy"), 64)
		if errX != nil || errY != nil {
			http.Error(w, "dx and dy must be numbers", http.StatusBadRequest)
			return
		}
		session.Pan(dx, dy)
		writeViewState(w, session)
	})

	// Zoom endpoint: factor f around screen anchor px/py
	mux.HandleFunc("/zoom", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		f, errF := strconv.ParseFloat(q.Get("f"), 64)
		px, errX := strconv.ParseFloat(q.Get("px"), 64)
		py, errY := strconv.ParseFloat(q.Get("py"), 64)
		if errF != nil || errX != nil || errY != nil {
			http.Error(w, "f, px and py must be numbers", http.StatusBadRequest)
			return
		}
		if f <= 0 {
			http.Error(w, "f must be positive", http.StatusBadRequest)
			return
		}
		session.ZoomAt(px, py, f)
		writeViewState(w, session)
	})

	// Style mode endpoint: mode=none|risk|consequence
	mux.HandleFunc("/style", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		mode, err := pipemap.ParseStyleMode(r.URL.Query().Get("mode"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		session.SetStyleMode(mode)
		writeViewState(w, session)
	})

	// Filter endpoint: kind=dia|age|mat, values=comma-joined active labels.
	// An empty values parameter deactivates the whole set.
	mux.HandleFunc("/filter", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var kind pipemap.FilterKind
		switch r.URL.Query().Get("kind") {
		case "dia":
			kind = pipemap.FilterDiameter
		case "age":
			kind = pipemap.FilterAge
		case "mat":
			kind = pipemap.FilterMaterial
		default:
			http.Error(w, "kind must be dia, age or mat", http.StatusBadRequest)
			return
		}
		var values []string
		if raw := r.URL.Query().Get("values"); raw != "" {
			values = strings.Split(raw, ",")
		}
		session.SetFilter(kind, values)
		writeViewState(w, session)
	})

	// Basemap toggle: on=0|1
	mux.HandleFunc("/basemap", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch r.URL.Query().Get("on") {
		case "0":
			session.SetBasemap(false)
		case "1":
			session.SetBasemap(true)
		default:
			http.Error(w, "on must be 0 or 1", http.StatusBadRequest)
			return
		}
		writeViewState(w, session)
	})

	// Legend for the active style mode
	mux.HandleFunc("/legend.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(session.LegendEntries()); err != nil {
			log.Printf("Error encoding legend: %v", err)
		}
	})

	// Segment and risk counts
	mux.HandleFunc("/features.json", func(w http.ResponseWriter, r *http.Request) {
		counts := session.RiskSummary()
		summary := struct {
			Segments int `json:"segments"`
			Visible  int `json:"visible"`
			Tiles    int `json:"tiles"`
			Risk     struct {
				Low      int `json:"low"`
				Medium   int `json:"medium"`
				High     int `json:"high"`
				VeryHigh int `json:"veryHigh"`
			} `json:"risk"`
		}{
			Segments: session.SegmentCount(),
			Visible:  session.VisibleCount(),
			Tiles:    session.TileCount(),
		}
		summary.Risk.Low = counts[0]
		summary.Risk.Medium = counts[1]
		summary.Risk.High = counts[2]
		summary.Risk.VeryHigh = counts[3]

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			log.Printf("Error encoding feature summary: %v", err)
		}
	})

	// Default route serves an HTML page embedding the map
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>mainsmap</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#1a1a1a}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/map.png" alt="Water mains map">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

// writeViewState responds with the canonical encoded view state so clients
// can update their address bar after a mutation.
func writeViewState(w http.ResponseWriter, session *pipemap.ViewSession) {
	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		View    string `json:"view"`
		Visible int    `json:"visible"`
	}{
		View:    session.EncodeQuery(),
		Visible: session.VisibleCount(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Error encoding view state: %v", err)
	}
}
