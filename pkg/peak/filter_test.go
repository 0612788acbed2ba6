package peak

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedianFilter(t *testing.T) {
	cases := []struct {
		name   string
		in     []float64
		kernel int
		want   []float64
	}{
		{"spike", []float64{1, 1, 9, 1, 1}, 3, []float64{1, 1, 1, 1, 1}},
		{"zero padded", []float64{5, 5, 5}, 3, []float64{5, 5, 5}},
		{"edges see zeros", []float64{1, 2, 3}, 3, []float64{1, 2, 2}},
		{"even kernel", []float64{1, 1, 9, 1, 1}, 2, []float64{1, 1, 1, 1, 1}},
		{"identity", []float64{3, 1, 2}, 1, []float64{3, 1, 2}},
		{"empty", nil, 5, []float64{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MedianFilter(tc.in, tc.kernel))
		})
	}
}

func TestMedianFilter_DoesNotModifyInput(t *testing.T) {
	in := []float64{3, 9, 1, 7}
	MedianFilter(in, 3)
	assert.Equal(t, []float64{3, 9, 1, 7}, in)
}

func TestGradient(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 0.5, -1.5, -2}, Gradient([]float64{0, 1, 3, 2, 0}))
	assert.Equal(t, []float64{0}, Gradient([]float64{7}))
	assert.Empty(t, Gradient(nil))
}

func TestFirstExtremum(t *testing.T) {
	cases := []struct {
		name   string
		grad   []float64
		idx    int
		wantOK bool
	}{
		{"single peak", []float64{1, 2, 1, -1, -2}, 2, true},
		{"plateau", []float64{1, 1, 0, 0, -1}, 1, true},
		{"leading zeros", []float64{0, 0, 1, -1}, 2, true},
		{"valley first", []float64{-1, -1, 2}, 1, true},
		{"monotone", []float64{1, 2, 3}, 0, false},
		{"flat", []float64{0, 0, 0}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx, ok := FirstExtremum(tc.grad)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.idx, idx)
		})
	}
}
