package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Layout(t *testing.T) {
	h, err := Build([]float64{-1020, 0, 180})
	require.NoError(t, err)

	require.Len(t, h.Counts, NumBins)
	require.Len(t, h.Midpoints, NumBins)
	require.Len(t, h.Edges, NumBins+1)

	assert.Equal(t, Low, h.Edges[0])
	assert.Equal(t, High, h.Edges[NumBins])
	assert.Equal(t, -1017.5, h.Midpoints[0])
	assert.Equal(t, 177.5, h.Midpoints[NumBins-1])
	assert.Equal(t, 5.0, BinWidth)

	// left edge goes to the first bin, the closing edge to the last
	assert.Greater(t, h.Counts[0], 0.0)
	assert.Greater(t, h.Counts[NumBins-1], 0.0)
	assert.Greater(t, h.Counts[204], 0.0)
}

func TestBuild_DensityNormalised(t *testing.T) {
	cases := map[string][]float64{
		"single":  {-850},
		"spread":  {-1000, -900, -800, -700, -100, 0, 100},
		"uniform": uniformGrid(),
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			h, err := Build(values)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, h.Total()*BinWidth, 1e-12)
		})
	}
}

func TestBuild_NoValues(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrNoValues)

	_, err = Build([]float64{-2000, 3000})
	assert.ErrorIs(t, err, ErrNoValues)
}

func TestValidate(t *testing.T) {
	h, err := Build([]float64{-850})
	require.NoError(t, err)

	h.Midpoints = h.Midpoints[:NumBins-1]
	assert.ErrorIs(t, h.Validate(), ErrInconsistent)
}

func TestFraction_Bounded(t *testing.T) {
	for _, values := range [][]float64{{-850}, {0}, uniformGrid()} {
		h, err := Build(values)
		require.NoError(t, err)

		f := h.Fraction(-950, -750)
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 1.0)
	}

	h, err := Build([]float64{-850, -850, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, h.Fraction(-950, -750), 1e-12)
}

func TestWindow(t *testing.T) {
	h, err := Build(uniformGrid())
	require.NoError(t, err)

	x, y := h.Window(-950, -700)
	require.Len(t, x, 50)
	require.Len(t, y, 50)
	assert.Equal(t, -947.5, x[0])
	assert.Equal(t, -702.5, x[len(x)-1])
}

func TestVentilation(t *testing.T) {
	// one value per compartment plus one outside every band
	h, err := Build([]float64{-950, -700, -300, 0, 150})
	require.NoError(t, err)

	v := h.Ventilation()
	assert.InDelta(t, 0.2, v.OverInflated, 1e-12)
	assert.InDelta(t, 0.2, v.NormallyAerated, 1e-12)
	assert.InDelta(t, 0.2, v.NonAerated, 1e-12)
	assert.InDelta(t, 0.2, v.Consolidated, 1e-12)
}

// uniformGrid returns one value per HU in [-1020, 180), five per bin
func uniformGrid() []float64 {
	values := make([]float64, 0, int(High-Low))
	for v := Low; v < High; v++ {
		values = append(values, v)
	}
	return values
}
