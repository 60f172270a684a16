package modem

// BytesToBits expands bytes MSB first.
func BytesToBits(data []byte) []bool {
	bits := make([]bool, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>i)&1 == 1)
		}
	}
	return bits
}

// BitsToBytes packs bits MSB first; a trailing partial byte is zero padded.
func BitsToBytes(bits []bool) []byte {
	data := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			data[i/8] |= 0x80 >> (i % 8)
		}
	}
	return data
}

func gray(v int) int {
	return v ^ (v >> 1)
}

func grayInverse(g int) int {
	v := g
	for s := g >> 1; s != 0; s >>= 1 {
		v ^= s
	}
	return v
}

// byteWriter collects symbols of a fixed bit width into bytes.
type byteWriter struct {
	data  []byte
	cur   byte
	nbits int
}

// Write appends the low width bits of v and reports whether a byte completed.
func (w *byteWriter) Write(v, width int) (completed bool) {
	for i := width - 1; i >= 0; i-- {
		w.cur = w.cur<<1 | byte(v>>i)&1
		w.nbits++
		if w.nbits == 8 {
			w.data = append(w.data, w.cur)
			w.cur, w.nbits = 0, 0
			completed = true
		}
	}
	return
}

func (w *byteWriter) Reset() {
	w.data = nil
	w.cur, w.nbits = 0, 0
}
