package pipemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleViewState() ViewState {
	return ViewState{
		Scale:          3.5,
		TranslateX:     -120.25,
		TranslateY:     48.5,
		Mode:           StyleRisk,
		BasemapEnabled: true,
		DiameterFilter: map[string]bool{"≤150": true, "300": true},
		AgeFilter:      map[string]bool{"<20": true},
		MaterialFilter: map[string]bool{"CI": true, "PVC": true},
	}
}

// ---------------------------------------------------------------------------
// EncodeViewState / DecodeViewState
// ---------------------------------------------------------------------------

func TestViewStateRoundTrip(t *testing.T) {
	original := sampleViewState()
	query := EncodeViewState(original)

	decoded := ViewState{
		Scale:          1,
		DiameterFilter: map[string]bool{},
		AgeFilter:      map[string]bool{},
		MaterialFilter: map[string]bool{},
	}
	require.NoError(t, DecodeViewState(query, &decoded))

	assert.Equal(t, original.Scale, decoded.Scale)
	assert.Equal(t, original.TranslateX, decoded.TranslateX)
	assert.Equal(t, original.TranslateY, decoded.TranslateY)
	assert.Equal(t, original.Mode, decoded.Mode)
	assert.Equal(t, original.BasemapEnabled, decoded.BasemapEnabled)
	assert.Equal(t, original.DiameterFilter, decoded.DiameterFilter)
	assert.Equal(t, original.AgeFilter, decoded.AgeFilter)
	assert.Equal(t, original.MaterialFilter, decoded.MaterialFilter)
}

func TestEncodeViewState_Deterministic(t *testing.T) {
	vs := sampleViewState()
	first := EncodeViewState(vs)
	for i := 0; i < 20; i++ {
		if got := EncodeViewState(vs); got != first {
			t.Fatalf("encoding not deterministic: %q vs %q", got, first)
		}
	}
}

func TestDecodeViewState_PartialUpdate(t *testing.T) {
	vs := sampleViewState()

	// Only k present: everything else stays as-is.
	require.NoError(t, DecodeViewState("k=7.0", &vs))
	assert.Equal(t, 7.0, vs.Scale)
	assert.Equal(t, -120.25, vs.TranslateX)
	assert.Equal(t, StyleRisk, vs.Mode)
	assert.True(t, vs.DiameterFilter["≤150"])
}

func TestDecodeViewState_PresentEmptyClearsSet(t *testing.T) {
	vs := sampleViewState()

	// dia present but empty deactivates the whole set; mat absent is kept.
	require.NoError(t, DecodeViewState("dia=", &vs))
	assert.Empty(t, vs.DiameterFilter)
	assert.True(t, vs.MaterialFilter["CI"])
}

func TestDecodeViewState_MalformedValuesIgnored(t *testing.T) {
	vs := sampleViewState()

	require.NoError(t, DecodeViewState("k=abc&x=12..5&bm=maybe&ov=sparkles", &vs))
	assert.Equal(t, 3.5, vs.Scale)
	assert.Equal(t, -120.25, vs.TranslateX)
	assert.True(t, vs.BasemapEnabled)
	assert.Equal(t, StyleRisk, vs.Mode)
}

func TestDecodeViewState_ScaleClamped(t *testing.T) {
	vs := sampleViewState()

	require.NoError(t, DecodeViewState("k=500", &vs))
	assert.Equal(t, MaxScale, vs.Scale)

	require.NoError(t, DecodeViewState("k=0.01", &vs))
	assert.Equal(t, MinScale, vs.Scale)
}

func TestDecodeViewState_BadQuerySyntax(t *testing.T) {
	vs := sampleViewState()
	err := DecodeViewState("k=%zz", &vs)
	assert.Error(t, err)
}

func TestDecodeViewState_StyleModes(t *testing.T) {
	cases := []struct {
		ov   string
		want StyleMode
	}{
		{"none", StyleAsset},
		{"asset", StyleAsset},
		{"risk", StyleRisk},
		{"consequence", StyleConsequence},
	}
	for _, tc := range cases {
		vs := ViewState{}
		require.NoError(t, DecodeViewState("ov="+tc.ov, &vs))
		if vs.Mode != tc.want {
			t.Errorf("ov=%q -> mode %v, want %v", tc.ov, vs.Mode, tc.want)
		}
	}
}
