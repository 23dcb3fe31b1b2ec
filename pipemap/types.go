package pipemap

import (
	"fmt"

	"github.com/paulmach/orb"
)

// PipeSegment is one water-main segment as read from the source GeoJSON.
// All attribute fields are kept raw; parsing and normalization happen once
// in the attribute cache, never here.
type PipeSegment struct {
	ID          string
	Geometry    orb.Geometry // LineString or MultiLineString, geographic coordinates
	MaterialRaw string
	DiameterRaw string // millimeters, free text
	YearRaw     string // free text, may embed a 4-digit year
	StatusRaw   string
	LengthRaw   string // meters, free text, optional
}

// ScoreSource records which path produced a score component.
type ScoreSource string

const (
	SourceRule     ScoreSource = "rule"
	SourceOverride ScoreSource = "override"
)

// DerivedAttributes holds everything styling and scoring need for one
// segment. It is a pure function of the segment's raw fields and the
// configured reference year, computed once per dataset load.
type DerivedAttributes struct {
	MaterialCode string // normalized uppercase token, "Unknown" if empty
	DiameterMm   *float64
	InstallYear  *int
	AgeYears     *int
	LengthMeters *float64

	DiameterBin   string
	AgeBin        string
	MaterialGroup string

	PoF       int // 1..4
	CoF       int // 1..4
	RiskBin   int // 1..4
	PoFSource ScoreSource
	CoFSource ScoreSource
}

// StyleMode selects which symbology drives stroke attributes. Exactly one
// mode is active at a time.
type StyleMode int

const (
	StyleAsset StyleMode = iota
	StyleRisk
	StyleConsequence
)

// String returns the mode's wire name. Asset mode encodes as "none" because
// it is the default with no overlay active.
func (m StyleMode) String() string {
	switch m {
	case StyleRisk:
		return "risk"
	case StyleConsequence:
		return "consequence"
	default:
		return "none"
	}
}

// ParseStyleMode parses a wire name back into a StyleMode.
func ParseStyleMode(s string) (StyleMode, error) {
	switch s {
	case "none", "asset", "":
		return StyleAsset, nil
	case "risk":
		return StyleRisk, nil
	case "consequence":
		return StyleConsequence, nil
	}
	return StyleAsset, fmt.Errorf("unknown style mode %q", s)
}

// ViewState is the single mutable view description for a session: the
// continuous viewport transform plus filter and symbology toggles.
type ViewState struct {
	Scale      float64 // k, constrained to [1, 20]
	TranslateX float64
	TranslateY float64

	Mode           StyleMode
	DiameterFilter map[string]bool // active diameter bin labels
	AgeFilter      map[string]bool
	MaterialFilter map[string]bool
	BasemapEnabled bool
}

// Clone returns a deep copy so snapshots can be handed out without
// exposing the session's live maps.
func (vs ViewState) Clone() ViewState {
	out := vs
	out.DiameterFilter = cloneSet(vs.DiameterFilter)
	out.AgeFilter = cloneSet(vs.AgeFilter)
	out.MaterialFilter = cloneSet(vs.MaterialFilter)
	return out
}

func cloneSet(s map[string]bool) map[string]bool {
	if s == nil {
		return nil
	}
	out := make(map[string]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// TileDescriptor identifies one slippy-map raster tile.
type TileDescriptor struct {
	Z int
	X int
	Y int
}

// Key returns the canonical "z/x/y" set key for diffing.
func (t TileDescriptor) Key() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// MQTTConfig holds the optional live status feed settings. An empty broker
// disables the feed.
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	StatusTopic   string `yaml:"statusTopic,omitempty" json:"statusTopic,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
}

// Config is the full configuration file.
type Config struct {
	DatasetPath   string `yaml:"dataset" json:"dataset"`
	LabelsPath    string `yaml:"labels,omitempty" json:"labels,omitempty"`
	OverridesPath string `yaml:"overrides,omitempty" json:"overrides,omitempty"`

	TileURLTemplate string `yaml:"tileUrl,omitempty" json:"tileUrl,omitempty"` // {z}/{x}/{y} placeholders
	MaxZoom         int    `yaml:"maxZoom,omitempty" json:"maxZoom,omitempty"`

	CurrentYear   int `yaml:"currentYear,omitempty" json:"currentYear,omitempty"`
	SteelSeverity int `yaml:"steelSeverity,omitempty" json:"steelSeverity,omitempty"` // CoF floor for large steel: 3 or 4

	ViewportWidth  int `yaml:"viewportWidth,omitempty" json:"viewportWidth,omitempty"`
	ViewportHeight int `yaml:"viewportHeight,omitempty" json:"viewportHeight,omitempty"`

	MQTT MQTTConfig `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
}
