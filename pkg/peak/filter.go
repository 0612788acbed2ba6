package peak

import "sort"

// MedianFilter applies a 1-D median filter of odd size kernel. The signal is
// zero-padded at both ends, so edge samples see zeros outside the range.
func MedianFilter(data []float64, kernel int) []float64 {
	out := make([]float64, len(data))
	if kernel < 1 {
		copy(out, data)
		return out
	}
	if kernel%2 == 0 {
		kernel++
	}
	half := kernel / 2

	window := make([]float64, kernel)
	for i := range data {
		for k := 0; k < kernel; k++ {
			j := i - half + k
			if j < 0 || j >= len(data) {
				window[k] = 0
			} else {
				window[k] = data[j]
			}
		}
		sort.Float64s(window)
		out[i] = window[half]
	}
	return out
}

// Gradient returns the discrete derivative of data with unit spacing:
// central differences inside, one-sided differences at the ends.
func Gradient(data []float64) []float64 {
	n := len(data)
	out := make([]float64, n)
	switch n {
	case 0, 1:
		return out
	}
	out[0] = data[1] - data[0]
	out[n-1] = data[n-1] - data[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (data[i+1] - data[i-1]) / 2
	}
	return out
}

// FirstExtremum scans grad left to right and returns the index of the last
// nonzero entry before the first sign change. Zero entries are skipped, so a
// plateau between a rising and a falling edge reports the end of the rise.
// ok is false when the sign never changes.
func FirstExtremum(grad []float64) (idx int, ok bool) {
	prev, last := 0, 0
	for i, g := range grad {
		s := sign(g)
		if s == 0 {
			continue
		}
		if prev != 0 && s != prev {
			return last, true
		}
		prev, last = s, i
	}
	return 0, false
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
