package pipemap

import (
	"fmt"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadDataset reads the mains GeoJSON FeatureCollection and converts it
// into PipeSegments. Features without line geometry are skipped; attribute
// parsing is deferred to the attribute cache so malformed properties never
// fail the load.
func LoadDataset(path string) ([]PipeSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset converts raw GeoJSON bytes into PipeSegments.
func ParseDataset(data []byte) ([]PipeSegment, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing dataset GeoJSON: %w", err)
	}

	segments := make([]PipeSegment, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.LineString, orb.MultiLineString:
		default:
			continue
		}

		segments = append(segments, PipeSegment{
			ID:          featureID(f, i),
			Geometry:    f.Geometry,
			MaterialRaw: propString(f, "material"),
			DiameterRaw: propString(f, "diam"),
			YearRaw:     propString(f, "year"),
			StatusRaw:   propString(f, "status_ind"),
			LengthRaw:   propString(f, "length"),
		})
	}

	return segments, nil
}

// featureID uses the feature's stable id when present, the positional
// index otherwise. Identity is bookkeeping only; it never feeds scoring.
func featureID(f *geojson.Feature, index int) string {
	switch id := f.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	}
	return strconv.Itoa(index)
}

// propString stringifies a property value; numbers keep their shortest
// decimal form so raw override keys match the source text.
func propString(f *geojson.Feature, key string) string {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// DatasetBounds computes the geographic bound of all segments.
func DatasetBounds(segments []PipeSegment) orb.Bound {
	var bound orb.Bound
	first := true
	for i := range segments {
		if segments[i].Geometry == nil {
			continue
		}
		b := segments[i].Geometry.Bound()
		if first {
			bound = b
			first = false
		} else {
			bound = bound.Union(b)
		}
	}
	return bound
}
