package modem

import (
	"reflect"
	"testing"
)

func TestBytesToBits(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected []bool
	}{
		{"empty", nil, []bool{}},
		{"msb first", []byte{0x81}, []bool{true, false, false, false, false, false, false, true}},
		{"two bytes", []byte{0x0f, 0xf0}, []bool{
			false, false, false, false, true, true, true, true,
			true, true, true, true, false, false, false, false,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bits := BytesToBits(tt.data)
			if !reflect.DeepEqual(bits, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, bits)
			}
			if back := BitsToBytes(bits); len(tt.data) > 0 && !reflect.DeepEqual(back, tt.data) {
				t.Errorf("expected %v, got %v", tt.data, back)
			}
		})
	}
}

func TestBitsToBytesPadsPartialByte(t *testing.T) {
	got := BitsToBytes([]bool{true, true, false})
	if !reflect.DeepEqual(got, []byte{0xc0}) {
		t.Errorf("expected [0xc0], got %v", got)
	}
}

func TestGray(t *testing.T) {
	for v := range 256 {
		if grayInverse(gray(v)) != v {
			t.Fatalf("gray round trip failed for %d", v)
		}
		// adjacent tones differ in a single bit
		if v > 0 {
			diff := gray(v) ^ gray(v-1)
			if diff&(diff-1) != 0 {
				t.Fatalf("gray(%d) and gray(%d) differ in more than one bit", v, v-1)
			}
		}
	}
}

func TestByteWriter(t *testing.T) {
	var w byteWriter
	completed := 0
	for _, nibble := range []int{0xa, 0x5, 0xf, 0x0} {
		if w.Write(nibble, 4) {
			completed++
		}
	}
	if completed != 2 || !reflect.DeepEqual(w.data, []byte{0xa5, 0xf0}) {
		t.Errorf("expected [0xa5 0xf0] in 2 bytes, got %v in %d", w.data, completed)
	}
	w.Reset()
	if len(w.data) != 0 || w.nbits != 0 {
		t.Error("Reset did not clear the writer")
	}
}
