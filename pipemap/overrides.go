package pipemap

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// OverrideRow is one pre-computed scoring entry from the external review
// table. LoF/CoF are possibly-fractional (half-integer values such as 1.5
// or 4.5 appear in practice).
type OverrideRow struct {
	LoF    float64
	CoF    float64
	HasLoF bool
	HasCoF bool
	Label  string // optional descriptive text
}

// OverrideTable maps raw (material, diam, year) string triples to
// pre-computed scores. Consumed read-only by the scoring engine.
type OverrideTable struct {
	rows map[string]OverrideRow
}

// OverrideKey builds the lookup key from the *raw* property values; the
// table is keyed before any normalization.
func OverrideKey(materialRaw, diamRaw, yearRaw string) string {
	return strings.TrimSpace(materialRaw) + "|" + strings.TrimSpace(diamRaw) + "|" + strings.TrimSpace(yearRaw)
}

// Lookup returns the row for a key, or nil when the combination has no
// override.
func (t *OverrideTable) Lookup(key string) *OverrideRow {
	if t == nil {
		return nil
	}
	if row, ok := t.rows[key]; ok {
		return &row
	}
	return nil
}

// Len returns the number of override rows.
func (t *OverrideTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// LoadOverrides reads the combination-override CSV. Expected columns are
// material, diam, year plus LoF/CoF (LoF_float/CoF_float are preferred when
// present). Unparseable numeric cells leave the component unset so the
// rule-based path applies for it.
func LoadOverrides(path string) (*OverrideTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening overrides file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing overrides CSV: %w", err)
	}
	if len(records) == 0 {
		return &OverrideTable{rows: map[string]OverrideRow{}}, nil
	}

	col := make(map[string]int)
	for i, name := range records[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"material", "diam", "year"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("overrides CSV missing %q column", required)
		}
	}

	cell := func(rec []string, name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}

	num := func(rec []string, names ...string) (float64, bool) {
		for _, name := range names {
			s, ok := cell(rec, name)
			if !ok || s == "" {
				continue
			}
			if v, err := strconv.ParseFloat(s, 64); err == nil {
				return v, true
			}
		}
		return 0, false
	}

	table := &OverrideTable{rows: make(map[string]OverrideRow, len(records)-1)}
	for _, rec := range records[1:] {
		material, _ := cell(rec, "material")
		diam, _ := cell(rec, "diam")
		year, _ := cell(rec, "year")

		var row OverrideRow
		row.LoF, row.HasLoF = num(rec, "LoF_float", "LoF")
		row.CoF, row.HasCoF = num(rec, "CoF_float", "CoF")
		row.Label, _ = cell(rec, "risk_label")

		if !row.HasLoF && !row.HasCoF {
			continue
		}
		table.rows[OverrideKey(material, diam, year)] = row
	}

	return table, nil
}

// comboStat accumulates per-combination counts for the review CSV.
type comboStat struct {
	materialRaw string
	diamRaw     string
	yearRaw     string
	statusRaw   string
	count       int
}

// WriteReviewCSV emits the review table of every distinct raw
// (material, diam, year) combination in the dataset with the rule-based
// scores the current model assigns. The web map never reads this file; it
// is an audit artifact for producing the override table.
func WriteReviewCSV(path string, segments []PipeSegment, currentYear, steelSeverity int) error {
	combos := make(map[string]*comboStat)
	for i := range segments {
		seg := &segments[i]
		key := OverrideKey(seg.MaterialRaw, seg.DiameterRaw, seg.YearRaw)
		st, ok := combos[key]
		if !ok {
			st = &comboStat{
				materialRaw: strings.TrimSpace(seg.MaterialRaw),
				diamRaw:     strings.TrimSpace(seg.DiameterRaw),
				yearRaw:     strings.TrimSpace(seg.YearRaw),
				statusRaw:   seg.StatusRaw,
			}
			combos[key] = st
		}
		st.count++
	}

	stats := make([]*comboStat, 0, len(combos))
	for _, st := range combos {
		stats = append(stats, st)
	}
	// Most frequent combinations first, then lexicographic for stability.
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		ki := stats[i].materialRaw + "|" + stats[i].diamRaw + "|" + stats[i].yearRaw
		kj := stats[j].materialRaw + "|" + stats[j].diamRaw + "|" + stats[j].yearRaw
		return ki < kj
	})

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating review CSV: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	header := []string{
		"material", "diam", "year", "count",
		"LoF", "CoF", "LoF_float", "CoF_float",
		"risk_bin", "risk_label", "pof_size_uplift", "source",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing review CSV header: %w", err)
	}

	for _, st := range stats {
		code := NormalizeMaterial(st.materialRaw)
		diam := ParseDiameterMm(st.diamRaw)
		year := ParseInstallYear(st.yearRaw, currentYear)
		age := AgeYears(year, currentYear)

		pof := PoFScore(code, year, age, st.statusRaw, diam)
		cof := CoFScore(code, diam, nil, steelSeverity)
		rb := RiskBin(pof, cof)
		uplift := PoFSizeUplift(code, diam)

		rec := []string{
			st.materialRaw, st.diamRaw, st.yearRaw,
			strconv.Itoa(st.count),
			strconv.Itoa(pof), strconv.Itoa(cof),
			strconv.FormatFloat(float64(pof), 'f', 1, 64),
			strconv.FormatFloat(float64(cof), 'f', 1, 64),
			strconv.Itoa(rb), RiskLabel(rb),
			strconv.FormatFloat(uplift, 'f', 1, 64),
			"doc",
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("writing review CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing review CSV: %w", err)
	}
	return nil
}
