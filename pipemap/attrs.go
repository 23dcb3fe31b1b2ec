package pipemap

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// UnknownLabel is the bucket every unparseable attribute falls into, so the
// feature stays visible and filterable instead of being dropped.
const UnknownLabel = "Unknown"

var yearPattern = regexp.MustCompile(`(18|19|20)\d{2}`)

// NormalizeMaterial upper-cases and trims a raw material value. The textual
// "COPPER" token is folded into the short code CU. Empty input maps to
// UnknownLabel.
func NormalizeMaterial(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return UnknownLabel
	}
	if s == "COPPER" {
		return "CU"
	}
	return s
}

// ParseDiameterMm parses a raw diameter value in millimeters. Returns nil
// for anything that is not a positive number.
func ParseDiameterMm(raw string) *float64 {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// ParseInstallYear extracts the first 4-digit year-like substring (18xx,
// 19xx or 20xx) from raw text. Years outside [1800, currentYear] are
// rejected.
func ParseInstallYear(raw string, currentYear int) *int {
	m := yearPattern.FindString(raw)
	if m == "" {
		return nil
	}
	y, err := strconv.Atoi(m)
	if err != nil || y < 1800 || y > currentYear {
		return nil
	}
	return &y
}

// AgeYears returns currentYear minus the install year, or nil when the year
// is unknown or in the future.
func AgeYears(installYear *int, currentYear int) *int {
	if installYear == nil {
		return nil
	}
	a := currentYear - *installYear
	if a < 0 {
		return nil
	}
	return &a
}

// ParseLengthMeters parses the raw length property; nil when absent or
// non-positive.
func ParseLengthMeters(raw string) *float64 {
	return ParseDiameterMm(raw) // same numeric parse rules
}

// AllDiameterBins lists the diameter bucket labels in ascending order, with
// Unknown last.
var AllDiameterBins = []string{"≤150", "200–250", "300", "400", "500–600", "≥750", UnknownLabel}

// DiameterBin buckets a diameter into one of seven labeled buckets keyed to
// the nominal sizes present in the mains dataset.
func DiameterBin(mm *float64) string {
	if mm == nil {
		return UnknownLabel
	}
	d := *mm
	switch {
	case d <= 150:
		return "≤150"
	case d <= 250:
		return "200–250"
	case d <= 350:
		return "300"
	case d <= 450:
		return "400"
	case d <= 600:
		return "500–600"
	default:
		return "≥750"
	}
}

// AllAgeBins lists the age bucket labels in ascending order, with Unknown
// last.
var AllAgeBins = []string{"<20", "20–50", "50–80", "≥80", UnknownLabel}

// AgeBin buckets an age in years into one of five labeled buckets.
func AgeBin(years *int) string {
	if years == nil {
		return UnknownLabel
	}
	a := *years
	switch {
	case a < 20:
		return "<20"
	case a <= 50:
		return "20–50"
	case a <= 80:
		return "50–80"
	default:
		return "≥80"
	}
}

// knownMaterials is the fixed palette of material codes with dedicated
// colors; everything else groups into Other.
var knownMaterials = map[string]bool{
	"CI": true, "DI": true, "PDI": true, "YDI": true,
	"ST": true, "STEEL": true,
	"PVC": true, "PE": true, "HDPE": true,
	"AC": true, "CU": true,
	"PCI": true, "PCCP": true,
}

// OtherLabel groups recognized-but-unpaletted material codes.
const OtherLabel = "Other"

// MaterialGroup maps a normalized material code to its display group: the
// code itself when it has a palette entry, Other for any other real code,
// and Unknown when the code itself is unknown.
func MaterialGroup(code string) string {
	if code == UnknownLabel {
		return UnknownLabel
	}
	if knownMaterials[code] {
		return code
	}
	return OtherLabel
}

// geometryLengthMeters sums haversine distances over every line in the
// segment geometry.
func geometryLengthMeters(g orb.Geometry) *float64 {
	var total float64
	switch ls := g.(type) {
	case orb.LineString:
		total = lineLength(ls)
	case orb.MultiLineString:
		for _, l := range ls {
			total += lineLength(l)
		}
	default:
		return nil
	}
	if total <= 0 {
		return nil
	}
	return &total
}

func lineLength(ls orb.LineString) float64 {
	var sum float64
	for i := 1; i < len(ls); i++ {
		sum += geo.Distance(ls[i-1], ls[i])
	}
	return sum
}

// ComputeDerived derives every cached value for one segment. Parsing
// failures degrade to nil/Unknown; they never fail the computation.
func ComputeDerived(seg *PipeSegment, currentYear int, overrides *OverrideTable, steelSeverity int) DerivedAttributes {
	code := NormalizeMaterial(seg.MaterialRaw)
	diam := ParseDiameterMm(seg.DiameterRaw)
	year := ParseInstallYear(seg.YearRaw, currentYear)
	age := AgeYears(year, currentYear)

	length := ParseLengthMeters(seg.LengthRaw)
	if length == nil && seg.Geometry != nil {
		length = geometryLengthMeters(seg.Geometry)
	}

	attrs := DerivedAttributes{
		MaterialCode:  code,
		DiameterMm:    diam,
		InstallYear:   year,
		AgeYears:      age,
		LengthMeters:  length,
		DiameterBin:   DiameterBin(diam),
		AgeBin:        AgeBin(age),
		MaterialGroup: MaterialGroup(code),
	}

	score := ScoreSegment(ScoreInput{
		MaterialCode:  code,
		DiameterMm:    diam,
		InstallYear:   year,
		AgeYears:      age,
		StatusRaw:     seg.StatusRaw,
		LengthMeters:  length,
		SteelSeverity: steelSeverity,
	}, overrides, OverrideKey(seg.MaterialRaw, seg.DiameterRaw, seg.YearRaw))

	attrs.PoF = score.PoF
	attrs.CoF = score.CoF
	attrs.RiskBin = score.RiskBin
	attrs.PoFSource = score.PoFSource
	attrs.CoFSource = score.CoFSource
	return attrs
}

// AttributeCache is the side table of DerivedAttributes, keyed by segment
// ID. The input dataset itself is never mutated.
type AttributeCache struct {
	currentYear   int
	steelSeverity int
	overrides     *OverrideTable
	attrs         map[string]DerivedAttributes
}

// NewAttributeCache computes DerivedAttributes for every segment exactly
// once. Reload the dataset to recompute.
func NewAttributeCache(segments []PipeSegment, currentYear int, overrides *OverrideTable, steelSeverity int) *AttributeCache {
	c := &AttributeCache{
		currentYear:   currentYear,
		steelSeverity: steelSeverity,
		overrides:     overrides,
		attrs:         make(map[string]DerivedAttributes, len(segments)),
	}
	for i := range segments {
		c.attrs[segments[i].ID] = ComputeDerived(&segments[i], currentYear, overrides, steelSeverity)
	}
	return c
}

// Get returns the cached attributes for a segment ID.
func (c *AttributeCache) Get(id string) (DerivedAttributes, bool) {
	a, ok := c.attrs[id]
	return a, ok
}

// Recompute refreshes a single entry after its source segment changed
// (e.g. a live status update).
func (c *AttributeCache) Recompute(seg *PipeSegment) DerivedAttributes {
	a := ComputeDerived(seg, c.currentYear, c.overrides, c.steelSeverity)
	c.attrs[seg.ID] = a
	return a
}

// Len returns the number of cached entries.
func (c *AttributeCache) Len() int {
	return len(c.attrs)
}

// MaterialGroups returns the distinct material groups present in the
// cache, sorted for stable legend and filter ordering.
func (c *AttributeCache) MaterialGroups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range c.attrs {
		if !seen[a.MaterialGroup] {
			seen[a.MaterialGroup] = true
			out = append(out, a.MaterialGroup)
		}
	}
	sort.Strings(out)
	return out
}
