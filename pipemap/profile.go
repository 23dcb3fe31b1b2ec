package pipemap

import (
	"fmt"
	"io"
	"sort"
)

// DatasetProfile summarizes attribute coverage and score distribution for
// one loaded dataset.
type DatasetProfile struct {
	SegmentCount int

	MaterialCounts map[string]int // by material group
	DiameterCounts map[string]int // by diameter bin
	AgeCounts      map[string]int // by age bin
	RiskCounts     [4]int         // by risk bin 1..4

	UnknownDiameter int
	UnknownYear     int
	UnknownMaterial int
	OverriddenPoF   int
	OverriddenCoF   int

	TotalLengthKm float64
}

// Profile walks the cache and tallies the distributions.
func Profile(segments []PipeSegment, cache *AttributeCache) DatasetProfile {
	p := DatasetProfile{
		SegmentCount:   len(segments),
		MaterialCounts: make(map[string]int),
		DiameterCounts: make(map[string]int),
		AgeCounts:      make(map[string]int),
	}

	for i := range segments {
		attrs, ok := cache.Get(segments[i].ID)
		if !ok {
			continue
		}

		p.MaterialCounts[attrs.MaterialGroup]++
		p.DiameterCounts[attrs.DiameterBin]++
		p.AgeCounts[attrs.AgeBin]++
		if attrs.RiskBin >= 1 && attrs.RiskBin <= 4 {
			p.RiskCounts[attrs.RiskBin-1]++
		}

		if attrs.DiameterMm == nil {
			p.UnknownDiameter++
		}
		if attrs.InstallYear == nil {
			p.UnknownYear++
		}
		if attrs.MaterialCode == UnknownLabel {
			p.UnknownMaterial++
		}
		if attrs.PoFSource == SourceOverride {
			p.OverriddenPoF++
		}
		if attrs.CoFSource == SourceOverride {
			p.OverriddenCoF++
		}
		if attrs.LengthMeters != nil {
			p.TotalLengthKm += *attrs.LengthMeters / 1000
		}
	}

	return p
}

// WriteTo prints the profile in a human-readable report form.
func (p DatasetProfile) WriteTo(w io.Writer, labels map[string]string) {
	fmt.Fprintf(w, "Segments: %d\n", p.SegmentCount)
	fmt.Fprintf(w, "Total length: %.1f km\n\n", p.TotalLengthKm)

	fmt.Fprintln(w, "By material:")
	for _, group := range sortedKeys(p.MaterialCounts) {
		fmt.Fprintf(w, "  %-24s %6d\n", DisplayName(labels, group), p.MaterialCounts[group])
	}

	fmt.Fprintln(w, "\nBy diameter:")
	for _, bin := range AllDiameterBins {
		if n := p.DiameterCounts[bin]; n > 0 {
			fmt.Fprintf(w, "  %-24s %6d\n", bin, n)
		}
	}

	fmt.Fprintln(w, "\nBy age:")
	for _, bin := range AllAgeBins {
		if n := p.AgeCounts[bin]; n > 0 {
			fmt.Fprintf(w, "  %-24s %6d\n", bin, n)
		}
	}

	fmt.Fprintln(w, "\nBy risk:")
	for i, n := range p.RiskCounts {
		fmt.Fprintf(w, "  %-24s %6d\n", RiskLabel(i+1), n)
	}

	fmt.Fprintln(w, "\nData quality:")
	fmt.Fprintf(w, "  unknown material       %6d\n", p.UnknownMaterial)
	fmt.Fprintf(w, "  unknown diameter       %6d\n", p.UnknownDiameter)
	fmt.Fprintf(w, "  unknown install year   %6d\n", p.UnknownYear)
	fmt.Fprintf(w, "  PoF from override      %6d\n", p.OverriddenPoF)
	fmt.Fprintf(w, "  CoF from override      %6d\n", p.OverriddenCoF)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
