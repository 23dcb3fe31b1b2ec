package pipemap

import (
	"image/color"
	"math"
)

// MinVisibleDiameter returns the smallest diameter (mm) rendered at scale
// k. Smaller mains are culled at low zoom to bound the rendered feature
// count; everything is shown from k=8 up.
func MinVisibleDiameter(k float64) float64 {
	switch {
	case k < 1.5:
		return 400
	case k < 4:
		return 250
	case k < 8:
		return 150
	default:
		return 0
	}
}

// Visible is the per-frame visibility predicate: the AND of the three
// filter-set memberships and the zoom LOD cut. Segments with unknown
// diameter pass the LOD cut so parse failures stay visible.
func Visible(attrs DerivedAttributes, vs ViewState) bool {
	if !vs.DiameterFilter[attrs.DiameterBin] {
		return false
	}
	if !vs.AgeFilter[attrs.AgeBin] {
		return false
	}
	if !vs.MaterialFilter[attrs.MaterialGroup] {
		return false
	}
	if attrs.DiameterMm != nil && *attrs.DiameterMm < MinVisibleDiameter(vs.Scale) {
		return false
	}
	return true
}

// materialPalette is the fixed categorical palette for asset mode.
var materialPalette = map[string]color.RGBA{
	"CI":    {178, 34, 34, 255},  // firebrick
	"DI":    {70, 130, 180, 255}, // steel blue
	"PDI":   {100, 149, 237, 255},
	"YDI":   {65, 105, 225, 255},
	"ST":    {112, 128, 144, 255}, // slate grey
	"STEEL": {112, 128, 144, 255},
	"PVC":   {60, 179, 113, 255}, // medium sea green
	"PE":    {46, 139, 87, 255},
	"HDPE":  {34, 139, 34, 255},
	"AC":    {218, 165, 32, 255}, // goldenrod
	"CU":    {184, 115, 51, 255}, // copper
	"PCI":   {148, 0, 211, 255},
	"PCCP":  {138, 43, 226, 255},
}

var (
	otherColor   = color.RGBA{105, 105, 105, 255}
	unknownColor = color.RGBA{169, 169, 169, 255}
)

// riskPalette is the 4-step diverging palette indexed by riskBin-1.
var riskPalette = [4]color.RGBA{
	{26, 152, 80, 255},  // 1 Low
	{254, 224, 139, 255}, // 2 Medium
	{244, 109, 67, 255}, // 3 High
	{165, 0, 38, 255},   // 4 Very High
}

// cofPalette is the 4-step sequential palette indexed by cof-1.
var cofPalette = [4]color.RGBA{
	{198, 219, 239, 255},
	{107, 174, 214, 255},
	{33, 113, 181, 255},
	{8, 48, 107, 255},
}

// ageDashes maps age bins to stroke dash patterns; newer pipe draws solid.
var ageDashes = map[string][]float64{
	"<20":        nil,
	"20–50":      nil,
	"50–80":      {6, 3},
	"≥80":        {3, 3},
	UnknownLabel: {1, 3},
}

// diameterWidths maps diameter bins to base stroke widths in pixels.
var diameterWidths = map[string]float64{
	"≤150":       1.0,
	"200–250":    1.5,
	"300":        2.0,
	"400":        2.5,
	"500–600":    3.0,
	"≥750":       4.0,
	UnknownLabel: 1.0,
}

// widthBoost is the bounded log-zoom factor applied to asset-mode widths so
// strokes thicken gently as the user zooms in.
func widthBoost(k float64) float64 {
	return 1 + 0.3*math.Min(math.Log2(math.Max(k, 1)), 3)
}

// levelWidth is the linear-in-level stroke width used by risk and
// consequence modes.
func levelWidth(level int) float64 {
	return 1.0 + 0.5*float64(level-1)
}

// StrokeStyle is the rendered appearance of one segment.
type StrokeStyle struct {
	Color  color.RGBA
	Width  float64
	Dashes []float64
}

// MaterialColor resolves the asset-mode color for a material group.
func MaterialColor(group string) color.RGBA {
	if c, ok := materialPalette[group]; ok {
		return c
	}
	if group == UnknownLabel {
		return unknownColor
	}
	return otherColor
}

// RiskColor resolves the diverging palette color for a 1..4 risk bin.
func RiskColor(bin int) color.RGBA {
	if bin < 1 || bin > 4 {
		return unknownColor
	}
	return riskPalette[bin-1]
}

// ConsequenceColor resolves the sequential palette color for a 1..4 CoF.
func ConsequenceColor(cof int) color.RGBA {
	if cof < 1 || cof > 4 {
		return unknownColor
	}
	return cofPalette[cof-1]
}

// StyleFor computes stroke attributes for one segment under the active
// style mode.
func StyleFor(attrs DerivedAttributes, vs ViewState) StrokeStyle {
	switch vs.Mode {
	case StyleRisk:
		return StrokeStyle{
			Color: RiskColor(attrs.RiskBin),
			Width: levelWidth(attrs.RiskBin),
		}
	case StyleConsequence:
		return StrokeStyle{
			Color: ConsequenceColor(attrs.CoF),
			Width: levelWidth(attrs.CoF),
		}
	default:
		return StrokeStyle{
			Color:  MaterialColor(attrs.MaterialGroup),
			Width:  diameterWidths[attrs.DiameterBin] * widthBoost(vs.Scale),
			Dashes: ageDashes[attrs.AgeBin],
		}
	}
}

// LegendEntry describes one legend row for the active mode.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"` // #RRGGBB
}

func hexColor(c color.RGBA) string {
	const digits = "0123456789ABCDEF"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []uint8{c.R, c.G, c.B} {
		b[1+2*i] = digits[v>>4]
		b[2+2*i] = digits[v&0xF]
	}
	return string(b)
}

// Legend builds the legend rows for a style mode. Asset mode lists the
// material groups (resolved through the optional label lookup); risk and
// consequence list their four levels.
func Legend(mode StyleMode, groups []string, labels map[string]string) []LegendEntry {
	switch mode {
	case StyleRisk:
		out := make([]LegendEntry, 4)
		for i := range out {
			out[i] = LegendEntry{Label: RiskLabel(i + 1), Color: hexColor(riskPalette[i])}
		}
		return out
	case StyleConsequence:
		out := make([]LegendEntry, 4)
		for i := range out {
			out[i] = LegendEntry{Label: RiskLabel(i + 1), Color: hexColor(cofPalette[i])}
		}
		return out
	default:
		out := make([]LegendEntry, 0, len(groups))
		for _, g := range groups {
			out = append(out, LegendEntry{Label: DisplayName(labels, g), Color: hexColor(MaterialColor(g))})
		}
		return out
	}
}
