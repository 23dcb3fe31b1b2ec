package pipemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

// ---------------------------------------------------------------------------
// PoFScore / CoFScore / RiskBin: known combinations
// ---------------------------------------------------------------------------

func TestScore_KnownCombinations(t *testing.T) {
	const currentYear = 2025

	cases := []struct {
		name     string
		material string
		diam     float64
		year     int
		wantPoF  int
		wantCoF  int
		wantRisk int
	}{
		{"old small cast iron", "CI", 150, 1960, 4, 2, 2},
		{"modern small PVC", "PVC", 150, 1990, 1, 1, 1},
		{"PCCP problem vintage", "PCCP", 600, 1976, 4, 4, 4},
		{"PCCP outside vintage", "PCCP", 600, 1986, 1, 4, 1},
		{"PCCP edge of broad vintage", "PCCP", 600, 1980, 3, 4, 3},
		{"large steel", "ST", 600, 2000, 2, 4, 2},
		{"small ductile iron", "DI", 100, 2000, 3, 2, 2},
		{"old asbestos cement", "AC", 300, 1955, 4, 3, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			year := tc.year
			age := currentYear - tc.year
			diam := tc.diam

			pof := PoFScore(tc.material, &year, &age, "", &diam)
			cof := CoFScore(tc.material, &diam, nil, 3)
			risk := RiskBin(pof, cof)

			if pof != tc.wantPoF {
				t.Errorf("PoF = %d, want %d", pof, tc.wantPoF)
			}
			if cof != tc.wantCoF {
				t.Errorf("CoF = %d, want %d", cof, tc.wantCoF)
			}
			if risk != tc.wantRisk {
				t.Errorf("RiskBin = %d, want %d", risk, tc.wantRisk)
			}
		})
	}
}

func TestPoFScore_MissingAttributes(t *testing.T) {
	// Unknown everything still yields an in-range score.
	pof := PoFScore(UnknownLabel, nil, nil, "", nil)
	if pof < 1 || pof > 4 {
		t.Fatalf("PoF = %d, want in [1,4]", pof)
	}
	if pof != 2 {
		t.Errorf("unknown material PoF = %d, want default 2", pof)
	}
}

func TestPoFScore_StatusUplift(t *testing.T) {
	year := 1990
	age := 35
	diam := 300.0

	base := PoFScore("DI", &year, &age, "ACTIVE", &diam)
	for _, status := range []string{"ABANDONED", "abandoned", "OUT OF SERVICE", "INACTIVE"} {
		got := PoFScore("DI", &year, &age, status, &diam)
		if got != base+1 && !(base == 4 && got == 4) {
			t.Errorf("status %q PoF = %d, want %d", status, got, base+1)
		}
	}
}

func TestPoFSizeUplift(t *testing.T) {
	assert.Equal(t, 1.0, PoFSizeUplift("CI", fptr(150)))
	assert.Equal(t, 0.5, PoFSizeUplift("CI", fptr(300)))
	assert.Equal(t, 0.0, PoFSizeUplift("CI", fptr(400)))
	// Plastics are not size-sensitive.
	assert.Equal(t, 0.0, PoFSizeUplift("PVC", fptr(100)))
	assert.Equal(t, 0.0, PoFSizeUplift("CI", nil))
}

func TestCoFScore_Floors(t *testing.T) {
	// Copper is capped at 1 regardless of diameter.
	if got := CoFScore("CU", fptr(600), nil, 3); got != 1 {
		t.Errorf("CU CoF = %d, want 1", got)
	}
	// Plastics cap at 3.
	if got := CoFScore("PVC", fptr(600), nil, 3); got != 3 {
		t.Errorf("large PVC CoF = %d, want 3", got)
	}
	// Concrete cylinder pipe floors at 4 even when small.
	if got := CoFScore("PCI", fptr(100), nil, 3); got != 4 {
		t.Errorf("small PCI CoF = %d, want 4", got)
	}
	// Iron floors at 2 even when small.
	if got := CoFScore("CI", fptr(100), nil, 3); got != 2 {
		t.Errorf("small CI CoF = %d, want 2", got)
	}
}

func TestCoFScore_SteelSeverity(t *testing.T) {
	if got := CoFScore("ST", fptr(400), nil, 3); got != 3 {
		t.Errorf("steelSeverity=3 CoF = %d, want 3", got)
	}
	if got := CoFScore("ST", fptr(400), nil, 4); got != 4 {
		t.Errorf("steelSeverity=4 CoF = %d, want 4", got)
	}
	// Small steel is unaffected by the severity setting.
	if got := CoFScore("ST", fptr(100), nil, 4); got != 1 {
		t.Errorf("small steel CoF = %d, want 1", got)
	}
}

func TestCoFScore_LongSegmentUplift(t *testing.T) {
	short := CoFScore("DI", fptr(300), fptr(100), 3)
	long := CoFScore("DI", fptr(300), fptr(800), 3)
	if long != short+1 {
		t.Errorf("long segment CoF = %d, want %d", long, short+1)
	}
}

// ---------------------------------------------------------------------------
// Score range property: every input combination stays in [1,4]
// ---------------------------------------------------------------------------

func TestScore_AlwaysInRange(t *testing.T) {
	materials := []string{"CI", "DI", "PDI", "YDI", "ST", "STEEL", "PVC", "PE", "HDPE", "AC", "CU", "PCI", "PCCP", "WOOD", UnknownLabel}
	diameters := []*float64{nil, fptr(50), fptr(150), fptr(305), fptr(400), fptr(600), fptr(1200)}
	years := []*int{nil, iptr(1890), iptr(1955), iptr(1972), iptr(1976), iptr(1980), iptr(2010)}
	statuses := []string{"", "ACTIVE", "ABANDONED"}

	const currentYear = 2025
	for _, m := range materials {
		for _, d := range diameters {
			for _, y := range years {
				for _, s := range statuses {
					age := AgeYears(y, currentYear)
					pof := PoFScore(m, y, age, s, d)
					cof := CoFScore(m, d, nil, 3)
					risk := RiskBin(pof, cof)
					if pof < 1 || pof > 4 || cof < 1 || cof > 4 || risk < 1 || risk > 4 {
						t.Fatalf("out-of-range score for %s/%v/%v/%q: pof=%d cof=%d risk=%d",
							m, d, y, s, pof, cof, risk)
					}
				}
			}
		}
	}
}

func TestRiskBin_AllPairs(t *testing.T) {
	want := map[[2]int]int{}
	for pof := 1; pof <= 4; pof++ {
		for cof := 1; cof <= 4; cof++ {
			p := pof * cof
			switch {
			case p <= 4:
				want[[2]int{pof, cof}] = 1
			case p <= 8:
				want[[2]int{pof, cof}] = 2
			case p <= 12:
				want[[2]int{pof, cof}] = 3
			default:
				want[[2]int{pof, cof}] = 4
			}
		}
	}
	for pair, w := range want {
		if got := RiskBin(pair[0], pair[1]); got != w {
			t.Errorf("RiskBin(%d,%d) = %d, want %d", pair[0], pair[1], got, w)
		}
	}

	// Zero components default to 2.
	if got := RiskBin(0, 0); got != RiskBin(2, 2) {
		t.Errorf("RiskBin(0,0) = %d, want %d", got, RiskBin(2, 2))
	}
}

// ---------------------------------------------------------------------------
// Override collapse and provenance
// ---------------------------------------------------------------------------

func TestCollapseOverrideLevel(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{1.0, 1}, {1.5, 1}, {2.0, 1},
		{2.5, 2}, {3.0, 2},
		{3.5, 3}, {4.0, 3},
		{4.5, 4}, {5.0, 4},
	}
	for _, tc := range cases {
		if got := CollapseOverrideLevel(tc.in); got != tc.want {
			t.Errorf("CollapseOverrideLevel(%g) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestScoreSegment_OverridePrecedence(t *testing.T) {
	in := ScoreInput{
		MaterialCode:  "CI",
		DiameterMm:    fptr(150),
		InstallYear:   iptr(1960),
		AgeYears:      iptr(65),
		SteelSeverity: 3,
	}

	t.Run("no overrides uses rules", func(t *testing.T) {
		s := ScoreSegment(in, nil, "CI|150|1960")
		assert.Equal(t, 4, s.PoF)
		assert.Equal(t, 2, s.CoF)
		assert.Equal(t, SourceRule, s.PoFSource)
		assert.Equal(t, SourceRule, s.CoFSource)
	})

	t.Run("full override replaces both components", func(t *testing.T) {
		table := &OverrideTable{rows: map[string]OverrideRow{
			"CI|150|1960": {LoF: 1.5, CoF: 4.5, HasLoF: true, HasCoF: true},
		}}
		s := ScoreSegment(in, table, "CI|150|1960")
		assert.Equal(t, 1, s.PoF)
		assert.Equal(t, 4, s.CoF)
		assert.Equal(t, SourceOverride, s.PoFSource)
		assert.Equal(t, SourceOverride, s.CoFSource)
		assert.Equal(t, RiskBin(1, 4), s.RiskBin)
	})

	t.Run("partial override mixes sources", func(t *testing.T) {
		table := &OverrideTable{rows: map[string]OverrideRow{
			"CI|150|1960": {LoF: 3.5, HasLoF: true},
		}}
		s := ScoreSegment(in, table, "CI|150|1960")
		assert.Equal(t, 3, s.PoF)
		assert.Equal(t, SourceOverride, s.PoFSource)
		assert.Equal(t, 2, s.CoF) // rule-based
		assert.Equal(t, SourceRule, s.CoFSource)
	})

	t.Run("unmatched key falls through to rules", func(t *testing.T) {
		table := &OverrideTable{rows: map[string]OverrideRow{
			"DI|300|1990": {LoF: 4.5, HasLoF: true},
		}}
		s := ScoreSegment(in, table, "CI|150|1960")
		assert.Equal(t, SourceRule, s.PoFSource)
		assert.Equal(t, SourceRule, s.CoFSource)
	})
}

func TestRiskLabel(t *testing.T) {
	assert.Equal(t, "Low", RiskLabel(1))
	assert.Equal(t, "Medium", RiskLabel(2))
	assert.Equal(t, "High", RiskLabel(3))
	assert.Equal(t, "Very High", RiskLabel(4))
	assert.Equal(t, UnknownLabel, RiskLabel(0))
	assert.Equal(t, UnknownLabel, RiskLabel(5))
}
