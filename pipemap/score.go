package pipemap

import (
	"math"
	"strings"
)

// pofBaseByMaterial is the fixed base likelihood lookup. Unlisted materials
// default to 2 (moderate).
var pofBaseByMaterial = map[string]float64{
	"PVC":    1,
	"PE":     1,
	"HDPE":   1,
	"DI":     2,
	"PDI":    2,
	"YDI":    2,
	"ST":     2,
	"STEEL":  2,
	"CI":     3,
	"AC":     3,
	"PCI":    1,
	"PCCP":   1,
	"CU":     2,
	"COPPER": 2,
}

// sizeSensitiveMaterials are the brittle/metallic classes where small
// distribution mains fail more often than large transmission mains.
var sizeSensitiveMaterials = map[string]bool{
	"DI": true, "PDI": true, "YDI": true,
	"ST": true, "STEEL": true,
	"CI": true, "AC": true,
}

// concreteMaterials is the prestressed concrete cylinder pipe family, which
// carries the vintage override and the catastrophic-consequence floor.
var concreteMaterials = map[string]bool{"PCI": true, "PCCP": true}

func clampLevel(n float64) int {
	return int(math.Max(1, math.Min(4, math.Round(n))))
}

// PoFSizeUplift returns the diameter uplift for size-sensitive materials:
// +1.0 at ≤150mm, +0.5 at ≤305mm, 0 otherwise.
func PoFSizeUplift(materialCode string, diameterMm *float64) float64 {
	if diameterMm == nil || !sizeSensitiveMaterials[materialCode] {
		return 0
	}
	switch {
	case *diameterMm <= 150:
		return 1.0
	case *diameterMm <= 305:
		return 0.5
	default:
		return 0
	}
}

// PoFScore computes the rule-based probability-of-failure level in 1..4.
//
// The vintage override for the concrete cylinder family takes precedence
// over the additive steps: install years 1972–1978 force a floor of 4,
// 1970–1980 a floor of 3.
func PoFScore(materialCode string, installYear, ageYears *int, statusRaw string, diameterMm *float64) int {
	base, ok := pofBaseByMaterial[materialCode]
	if !ok {
		base = 2
	}
	score := base + PoFSizeUplift(materialCode, diameterMm)

	if ageYears != nil {
		if materialCode == "CI" && *ageYears > 50 {
			score += 1
		}
		if materialCode == "AC" && *ageYears > 50 {
			score += 2
		}
	}

	if installYear != nil && concreteMaterials[materialCode] {
		switch y := *installYear; {
		case y >= 1972 && y <= 1978:
			score = math.Max(score, 4)
		case y >= 1970 && y <= 1980:
			score = math.Max(score, 3)
		}
	}

	status := strings.ToUpper(statusRaw)
	if strings.Contains(status, "ABAND") || strings.Contains(status, "OUT") || strings.Contains(status, "INACT") {
		score += 1
	}

	return clampLevel(score)
}

// CoFScore computes the rule-based consequence-of-failure level in 1..4.
// steelSeverity configures the floor applied to large-diameter steel
// (3 or 4); values outside that range fall back to 3.
func CoFScore(materialCode string, diameterMm, lengthMeters *float64, steelSeverity int) int {
	score := 2.0
	if diameterMm != nil {
		switch d := *diameterMm; {
		case d <= 150:
			score = 1
		case d <= 250:
			score = 2
		case d <= 400:
			score = 3
		default:
			score = 4
		}
	}

	if concreteMaterials[materialCode] {
		score = math.Max(score, 4)
	}
	if (materialCode == "ST" || materialCode == "STEEL") && diameterMm != nil && *diameterMm >= 400 {
		floor := 3.0
		if steelSeverity == 4 {
			floor = 4
		}
		score = math.Max(score, floor)
	}
	switch materialCode {
	case "CU":
		score = math.Min(score, 1)
	case "PVC", "PE", "HDPE":
		score = math.Min(score, 3)
	case "CI", "DI", "PDI", "YDI":
		score = math.Max(score, 2)
	}

	if lengthMeters != nil && *lengthMeters >= 500 {
		score += 1
	}

	return clampLevel(score)
}

// RiskBin combines PoF and CoF into the 1..4 risk classification using the
// fixed product thresholds 4/8/12.
func RiskBin(pof, cof int) int {
	if pof == 0 {
		pof = 2
	}
	if cof == 0 {
		cof = 2
	}
	product := pof * cof
	switch {
	case product <= 4:
		return 1
	case product <= 8:
		return 2
	case product <= 12:
		return 3
	default:
		return 4
	}
}

var riskLabels = [4]string{"Low", "Medium", "High", "Very High"}

// RiskLabel returns the human label for a 1..4 risk bin.
func RiskLabel(bin int) string {
	if bin < 1 || bin > 4 {
		return UnknownLabel
	}
	return riskLabels[bin-1]
}

// CollapseOverrideLevel maps a fractional override value to the 1..4
// integer scale: ≤2.0→1, ≤3.0→2, ≤4.0→3, else 4.
func CollapseOverrideLevel(v float64) int {
	switch {
	case v <= 2.0:
		return 1
	case v <= 3.0:
		return 2
	case v <= 4.0:
		return 3
	default:
		return 4
	}
}

// ScoreInput carries the normalized attributes the rule-based engine needs.
type ScoreInput struct {
	MaterialCode  string
	DiameterMm    *float64
	InstallYear   *int
	AgeYears      *int
	StatusRaw     string
	LengthMeters  *float64
	SteelSeverity int
}

// Score is the engine output with per-component provenance so callers can
// trace whether a value came from the override table or the rules.
type Score struct {
	PoF       int
	CoF       int
	RiskBin   int
	PoFSource ScoreSource
	CoFSource ScoreSource
}

// ScoreSegment produces the combined score for one segment. When the
// override table has an entry for the segment's raw key, the override value
// replaces the rule-based computation per component; missing components
// fall back to the rules.
func ScoreSegment(in ScoreInput, overrides *OverrideTable, key string) Score {
	s := Score{PoFSource: SourceRule, CoFSource: SourceRule}

	var row *OverrideRow
	if overrides != nil {
		row = overrides.Lookup(key)
	}

	if row != nil && row.HasLoF {
		s.PoF = CollapseOverrideLevel(row.LoF)
		s.PoFSource = SourceOverride
	} else {
		s.PoF = PoFScore(in.MaterialCode, in.InstallYear, in.AgeYears, in.StatusRaw, in.DiameterMm)
	}

	if row != nil && row.HasCoF {
		s.CoF = CollapseOverrideLevel(row.CoF)
		s.CoFSource = SourceOverride
	} else {
		s.CoF = CoFScore(in.MaterialCode, in.DiameterMm, in.LengthMeters, in.SteelSeverity)
	}

	s.RiskBin = RiskBin(s.PoF, s.CoF)
	return s
}
