package pipemap

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// View-state codec: the bidirectional mapping between a ViewState and the
// shareable URL query string.
//
// Keys: k (scale, 4 decimals), x/y (translation, 2 decimals), bm (basemap
// 0/1), ov (style mode, "none" for asset), dia/age/mat (comma-joined active
// filter labels). A key present with an empty value clears the set; an
// absent key leaves the field at its current value.

// EncodeViewState serializes a ViewState to query-string form. Set members
// are sorted so the encoding is deterministic.
func EncodeViewState(vs ViewState) string {
	v := url.Values{}
	v.Set("k", strconv.FormatFloat(vs.Scale, 'f', 4, 64))
	v.Set("x", strconv.FormatFloat(vs.TranslateX, 'f', 2, 64))
	v.Set("y", strconv.FormatFloat(vs.TranslateY, 'f', 2, 64))
	v.Set("ov", vs.Mode.String())
	if vs.BasemapEnabled {
		v.Set("bm", "1")
	} else {
		v.Set("bm", "0")
	}
	v.Set("dia", joinSet(vs.DiameterFilter))
	v.Set("age", joinSet(vs.AgeFilter))
	v.Set("mat", joinSet(vs.MaterialFilter))
	return v.Encode()
}

func joinSet(set map[string]bool) string {
	labels := make([]string, 0, len(set))
	for label, active := range set {
		if active {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return strings.Join(labels, ",")
}

func splitSet(s string) map[string]bool {
	set := make(map[string]bool)
	if s == "" {
		return set
	}
	for _, label := range strings.Split(s, ",") {
		if label != "" {
			set[label] = true
		}
	}
	return set
}

// DecodeViewState applies a query string onto an existing ViewState.
// Unset keys leave fields untouched; malformed numeric values are ignored
// as if absent. The scale is clamped to the viewport's legal range.
func DecodeViewState(query string, vs *ViewState) error {
	values, err := url.ParseQuery(query)
	if err != nil {
		return fmt.Errorf("parsing view query: %w", err)
	}

	if values.Has("k") {
		if k, err := strconv.ParseFloat(values.Get("k"), 64); err == nil {
			vs.Scale = clampScale(k)
		}
	}
	if values.Has("x") {
		if x, err := strconv.ParseFloat(values.Get("x"), 64); err == nil {
			vs.TranslateX = x
		}
	}
	if values.Has("y") {
		if y, err := strconv.ParseFloat(values.Get("y"), 64); err == nil {
			vs.TranslateY = y
		}
	}
	if values.Has("bm") {
		switch values.Get("bm") {
		case "0":
			vs.BasemapEnabled = false
		case "1":
			vs.BasemapEnabled = true
		}
	}
	if values.Has("ov") {
		if mode, err := ParseStyleMode(values.Get("ov")); err == nil {
			vs.Mode = mode
		}
	}
	if values.Has("dia") {
		vs.DiameterFilter = splitSet(values.Get("dia"))
	}
	if values.Has("age") {
		vs.AgeFilter = splitSet(values.Get("age"))
	}
	if values.Has("mat") {
		vs.MaterialFilter = splitSet(values.Get("mat"))
	}
	return nil
}
