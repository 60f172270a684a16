package modem

import "math"

// appendChirp appends a linear sweep from f0 to f1 Hz. The phase is
// accumulated sample by sample so consecutive sweeps join without a jump.
func appendChirp(dst []float64, phase *float64, f0, f1 float64, n int, sampleRate float64) []float64 {
	for i := range n {
		f := f0 + (f1-f0)*float64(i)/float64(n)
		dst = append(dst, math.Sin(*phase))
		*phase += 2 * math.Pi * f / sampleRate
	}
	return dst
}

// PreambleParams describes an up chirp followed by a down chirp. The waveform
// has unit peak; the modulator scales it.
type PreambleParams struct {
	MinFreq    float64
	MaxFreq    float64
	Length     int
	SampleRate float64
}

func (p PreambleParams) New() []float64 {
	preamble := make([]float64, 0, p.Length)
	phase := 0.0
	preamble = appendChirp(preamble, &phase, p.MinFreq, p.MaxFreq, p.Length/2, p.SampleRate)
	return appendChirp(preamble, &phase, p.MaxFreq, p.MinFreq, p.Length-p.Length/2, p.SampleRate)
}
