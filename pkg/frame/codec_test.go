package frame

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vivint/infectious"
	"golang.org/x/exp/rand"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(128, 4)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	rng := rand.New(rand.NewSource(1))

	for length := 0; length <= c.MaxPayload(); length++ {
		payload := make([]byte, length)
		rng.Read(payload)
		in := Frame{
			Header:  Header{Type: TypeData, Flags: FlagEOP, Src: 1, Dst: 2, Seq: uint8(length)},
			Payload: payload,
		}

		raw, err := c.Encode(in)
		if err != nil {
			t.Fatalf("length %d: Encode: %v", length, err)
		}
		if len(raw) != c.Overhead()+length {
			t.Fatalf("length %d: expected %d bytes, got %d", length, c.Overhead()+length, len(raw))
		}
		size, err := c.FrameSize(raw[:c.TagSize()])
		if err != nil || size != len(raw) {
			t.Fatalf("length %d: FrameSize = %d, %v", length, size, err)
		}

		out, err := c.Decode(raw)
		if err != nil {
			t.Fatalf("length %d: Decode: %v", length, err)
		}
		if out.Type != TypeData || out.Seq != uint8(length) || out.Src != 1 || out.Dst != 2 || !out.IsLast() {
			t.Errorf("length %d: header mismatch: %v", length, out)
		}
		if !reflect.DeepEqual(payload, out.Payload) && !(length == 0 && len(out.Payload) == 0) {
			t.Errorf("length %d: payload mismatch", length)
		}
	}
}

func TestCodecPayloadTooLarge(t *testing.T) {
	c := newTestCodec(t)
	_, err := c.Encode(Frame{Header: Header{Type: TypeData}, Payload: make([]byte, c.MaxPayload()+1)})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestNewCodecRejectsOversizedCodeword(t *testing.T) {
	if _, err := NewCodec(255, 8); err == nil {
		t.Error("expected an error for a codeword longer than 256 bytes")
	}
	if _, err := NewCodec(16, 0); err == nil {
		t.Error("expected an error for zero fec strength")
	}
}

// corrupt flips count distinct bytes of the codeword (tag excluded).
func corrupt(rng *rand.Rand, raw []byte, from, count int) {
	for _, i := range rng.Perm(len(raw) - from)[:count] {
		raw[from+i] ^= byte(1 + rng.Intn(255))
	}
}

func TestCodecCorrectsUpToStrength(t *testing.T) {
	c := newTestCodec(t)
	rng := rand.New(rand.NewSource(2))

	for trial := 0; trial < 50; trial++ {
		payload := make([]byte, 1+rng.Intn(c.MaxPayload()))
		rng.Read(payload)
		raw, err := c.Encode(Frame{Header: Header{Type: TypeData, Seq: uint8(trial)}, Payload: payload})
		if err != nil {
			t.Fatal(err)
		}

		corrupt(rng, raw, c.TagSize(), c.Strength())
		// the tag has its own budget of Strength bytes
		for _, i := range rng.Perm(c.TagSize())[:c.Strength()] {
			raw[i] ^= byte(1 + rng.Intn(255))
		}

		out, err := c.Decode(raw)
		if err != nil {
			t.Fatalf("trial %d: Decode: %v", trial, err)
		}
		if !reflect.DeepEqual(payload, out.Payload) {
			t.Fatalf("trial %d: payload mismatch after correction", trial)
		}
	}
}

func TestCodecBeyondStrength(t *testing.T) {
	c := newTestCodec(t)
	rng := rand.New(rand.NewSource(3))

	payload := []byte("HELLO, acoustic world")
	clean, err := c.Encode(Frame{Header: Header{Type: TypeData, Seq: 7}, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}

	uncorrectable := 0
	for trial := 0; trial < 50; trial++ {
		raw := append([]byte(nil), clean...)
		corrupt(rng, raw, c.TagSize(), c.Strength()+1)

		out, err := c.Decode(raw)
		switch {
		case errors.Is(err, ErrUncorrectable):
			uncorrectable++
		case err != nil:
		case !reflect.DeepEqual(out.Payload, payload):
			t.Fatalf("trial %d: corrupted payload silently accepted", trial)
		}
	}
	if uncorrectable == 0 {
		t.Error("expected at least one ErrUncorrectable")
	}
}

func TestCodecChecksumSensitivity(t *testing.T) {
	c := newTestCodec(t)
	payload := []byte("checksum")

	// flip every single bit of header and payload and re-seal the codeword with
	// fresh parity so the error-correction layer cannot undo the flip
	for bit := 0; bit < (HeaderSize+len(payload))*8; bit++ {
		raw, err := c.Encode(Frame{Header: Header{Type: TypeData, Seq: 1}, Payload: payload})
		if err != nil {
			t.Fatal(err)
		}
		k := HeaderSize + len(payload) + checksumSize
		data := append([]byte(nil), raw[c.TagSize():c.TagSize()+k]...)
		data[bit/8] ^= 1 << (bit % 8)
		codeword, err := c.parity(data)
		if err != nil {
			t.Fatal(err)
		}
		copy(raw[c.TagSize():], codeword)

		if _, err := c.Decode(raw); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("bit %d: expected ErrChecksumMismatch, got %v", bit, err)
		}
	}
}

func TestCodecCorrectsTagUpToStrength(t *testing.T) {
	c := newTestCodec(t)
	if c.TagSize() != 2+2*c.Strength() {
		t.Fatalf("expected a %d byte tag, got %d", 2+2*c.Strength(), c.TagSize())
	}

	clean, err := c.Encode(Frame{Header: Header{Type: TypeData, Seq: 9}, Payload: []byte("HELLO")})
	if err != nil {
		t.Fatal(err)
	}
	for first := 0; first+c.Strength() <= c.TagSize(); first++ {
		raw := append([]byte(nil), clean...)
		for i := first; i < first+c.Strength(); i++ {
			raw[i] ^= 0xff
		}
		out, err := c.Decode(raw)
		if err != nil {
			t.Fatalf("tag bytes %d..%d corrupted: %v", first, first+c.Strength()-1, err)
		}
		if string(out.Payload) != "HELLO" {
			t.Fatalf("tag bytes %d..%d corrupted: got %q", first, first+c.Strength()-1, out.Payload)
		}
	}
}

// rawTag seals an arbitrary pair of length bytes under the tag code.
func rawTag(t *testing.T, c *Codec, a, b byte) []byte {
	t.Helper()
	tag := make([]byte, c.TagSize())
	if err := c.tag.Encode([]byte{a, b}, func(s infectious.Share) {
		tag[s.Number] = s.Data[0]
	}); err != nil {
		t.Fatal(err)
	}
	return tag
}

func TestCodecRejectsBadTag(t *testing.T) {
	c := newTestCodec(t)

	if _, err := c.FrameSize(rawTag(t, c, 5, 5)); !errors.Is(err, ErrUncorrectable) {
		t.Errorf("expected ErrUncorrectable for an inconsistent tag, got %v", err)
	}
	if _, err := c.FrameSize(rawTag(t, c, 200, ^byte(200))); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for a length beyond the maximum, got %v", err)
	}
	if size, err := c.FrameSize(rawTag(t, c, 5, ^byte(5))); err != nil || size != c.Overhead()+5 {
		t.Errorf("expected %d bytes, got %d %v", c.Overhead()+5, size, err)
	}

	raw, err := c.Encode(Frame{Header: Header{Type: TypeAck, Seq: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(raw[:4]); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for a truncated tag, got %v", err)
	}
}

func TestHeaderRejectsUnknownType(t *testing.T) {
	var h Header
	if err := h.FromBytes([]byte{0xf0, 0, 0, 0, 0}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	in := Header{Type: TypePong, Flags: FlagEOP, Src: 3, Dst: Broadcast, Seq: 200, Length: 9}
	if err := h.FromBytes(in.ToBytes()); err != nil || h != in {
		t.Errorf("header round trip: got %+v, %v", h, err)
	}
}
