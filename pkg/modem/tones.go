package modem

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ToneConfig describes an MFSK alphabet. Every tone sits on an integer FFT bin
// of a SymbolSize-point transform, so a symbol window always holds a whole
// number of cycles and tones are orthogonal over one window.
type ToneConfig struct {
	SampleRate    float64
	SymbolSize    int // samples per symbol
	BitsPerSymbol int // 1, 2, 4 or 8
	BaseBin       int // bin of the first tone
	BinSpacing    int // bins between adjacent tones
}

func (c ToneConfig) Validate() error {
	switch c.BitsPerSymbol {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("bits per symbol must divide 8, got %d", c.BitsPerSymbol)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if c.SymbolSize < 8 {
		return fmt.Errorf("symbol size %d is too short", c.SymbolSize)
	}
	if c.BaseBin < 1 || c.BinSpacing < 1 {
		return fmt.Errorf("base bin and bin spacing must be positive, got %d and %d", c.BaseBin, c.BinSpacing)
	}
	if top := c.BaseBin + c.BinSpacing*(1<<c.BitsPerSymbol-1); top >= c.SymbolSize/2 {
		return fmt.Errorf("highest tone bin %d reaches nyquist bin %d", top, c.SymbolSize/2)
	}
	return nil
}

// Tones is a synthesized alphabet. It is read-only after New and may be
// shared between a modulator and demodulators.
type Tones struct {
	ToneConfig
	bins  []int
	waves [][]float64
}

func (c ToneConfig) New() (*Tones, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	size := 1 << c.BitsPerSymbol
	t := &Tones{
		ToneConfig: c,
		bins:       make([]int, size),
		waves:      make([][]float64, size),
	}

	fft := fourier.NewFFT(c.SymbolSize)
	coeff := make([]complex128, c.SymbolSize/2+1)
	for i := range size {
		bin := c.BaseBin + i*c.BinSpacing
		clear(coeff)
		coeff[bin] = complex(0, -1) // a sine, starting at zero
		wave := fft.Sequence(nil, coeff)
		normalize(wave)
		t.bins[i] = bin
		t.waves[i] = wave
	}
	return t, nil
}

// Size is the number of symbols in the alphabet.
func (t *Tones) Size() int {
	return len(t.bins)
}

func (t *Tones) Bin(symbol int) int {
	return t.bins[symbol]
}

func (t *Tones) Frequency(symbol int) float64 {
	return float64(t.bins[symbol]) * t.SampleRate / float64(t.SymbolSize)
}

// Waveform returns the unit-peak samples of a symbol. Callers must not modify it.
func (t *Tones) Waveform(symbol int) []float64 {
	return t.waves[symbol]
}

// normalize scales a waveform to unit peak.
func normalize(wave []float64) {
	peak := 0.0
	for _, v := range wave {
		peak = max(peak, math.Abs(v))
	}
	if peak == 0 {
		return
	}
	for i := range wave {
		wave[i] /= peak
	}
}

// detector finds the strongest alphabet tone in one symbol window.
type detector struct {
	tones *Tones
	fft   *fourier.FFT
	coeff []complex128
}

func newDetector(t *Tones) *detector {
	return &detector{
		tones: t,
		fft:   fourier.NewFFT(t.SymbolSize),
		coeff: make([]complex128, t.SymbolSize/2+1),
	}
}

// detect returns the index of the strongest tone, the share of the window's
// spectral energy it holds, and the mean power of the window.
func (d *detector) detect(window []float64) (symbol int, concentration, power float64) {
	d.coeff = d.fft.Coefficients(d.coeff, window)

	total := 0.0
	for _, c := range d.coeff {
		total += sqrAbs(c)
	}
	best := -1.0
	for i, bin := range d.tones.bins {
		if p := sqrAbs(d.coeff[bin]); p > best {
			symbol, best = i, p
		}
	}
	if total > 0 {
		concentration = best / total
	}
	for _, v := range window {
		power += v * v
	}
	power /= float64(len(window))
	return
}

func sqrAbs(c complex128) float64 {
	a := cmplx.Abs(c)
	return a * a
}
