package modem

const fullScale = 0x7fffffff

// Int32ToFloat64 converts device samples into [-1, 1], reusing dst when it is
// large enough.
func Int32ToFloat64(dst []float64, input []int32) []float64 {
	if cap(dst) < len(input) {
		dst = make([]float64, len(input))
	}
	dst = dst[:len(input)]
	for i, v := range input {
		dst[i] = float64(v) / fullScale
	}
	return dst
}

// Float64ToInt32 writes input into out, clipping at full scale.
func Float64ToInt32(out []int32, input []float64) {
	for i, v := range input[:min(len(input), len(out))] {
		switch {
		case v >= 1:
			out[i] = fullScale
		case v <= -1:
			out[i] = -fullScale
		default:
			out[i] = int32(v * fullScale)
		}
	}
}
