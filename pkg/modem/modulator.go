package modem

// Modulator maps bits onto tone symbols. Output is deterministic.
type Modulator struct {
	Preamble  []float64 // unit-peak synchronization waveform
	Tones     *Tones
	Amplitude float64 // peak amplitude in (0, 1]
}

func (m *Modulator) amplitude() float64 {
	if m.Amplitude <= 0 || m.Amplitude > 1 {
		return 1
	}
	return m.Amplitude
}

// Modulate encodes bits, BitsPerSymbol at a time MSB first, with the last
// group zero padded. Symbols are concatenated without gaps.
func (m *Modulator) Modulate(bits []bool) []float64 {
	width := m.Tones.BitsPerSymbol
	symbols := (len(bits) + width - 1) / width
	out := make([]float64, 0, symbols*m.Tones.SymbolSize)
	return m.appendSymbols(out, bits)
}

func (m *Modulator) appendSymbols(out []float64, bits []bool) []float64 {
	width := m.Tones.BitsPerSymbol
	amp := m.amplitude()
	for i := 0; i < len(bits); i += width {
		v := 0
		for j := i; j < i+width; j++ {
			v <<= 1
			if j < len(bits) && bits[j] {
				v |= 1
			}
		}
		for _, s := range m.Tones.Waveform(gray(v)) {
			out = append(out, amp*s)
		}
	}
	return out
}

// ModulateFrame emits the preamble followed by the symbols of data.
func (m *Modulator) ModulateFrame(data []byte) []float64 {
	out := make([]float64, 0, m.Airtime(len(data)))
	amp := m.amplitude()
	for _, s := range m.Preamble {
		out = append(out, amp*s)
	}
	return m.appendSymbols(out, BytesToBits(data))
}

// Airtime is the number of samples ModulateFrame produces for n bytes.
func (m *Modulator) Airtime(n int) int {
	width := m.Tones.BitsPerSymbol
	return len(m.Preamble) + (n*8+width-1)/width*m.Tones.SymbolSize
}
