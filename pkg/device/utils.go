package device

import (
	"math"

	"golang.org/x/exp/rand"
)

const fullScale = 0x7fffffff

// sumi32 stores a + b into c, saturating at full scale.
func sumi32(a, b, c []int32) {
	for i := range a {
		sum := int64(a[i]) + int64(b[i])
		if sum > 0x7fffffff {
			sum = 0x7fffffff
		} else if sum < -0x80000000 {
			sum = -0x80000000
		}
		c[i] = int32(sum)
	}
}

func alloci32(n int) []int32 {
	return make([]int32, n)
}

// WhiteNoise returns a shaper adding gaussian noise with the given standard
// deviation, relative to full scale, drawn from a seeded source.
func WhiteNoise(std float64, seed uint64) func(block []int32) {
	rng := rand.New(rand.NewSource(seed))
	return func(block []int32) {
		for i, v := range block {
			x := float64(v) + rng.NormFloat64()*std*fullScale
			block[i] = int32(max(min(x, fullScale), -fullScale))
		}
	}
}

// Tone returns a shaper adding a sine of the given frequency and amplitude
// relative to full scale. It keeps its phase across blocks.
func Tone(freq, amplitude, sampleRate float64) func(block []int32) {
	var n int64
	buf := make([]int32, 0)
	return func(block []int32) {
		if cap(buf) < len(block) {
			buf = make([]int32, len(block))
		}
		buf = buf[:len(block)]
		for i := range buf {
			buf[i] = int32(amplitude * fullScale * math.Sin(2*math.Pi*freq*float64(n)/sampleRate))
			n++
		}
		sumi32(block, buf, block)
	}
}
