package frame

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/vivint/infectious"
)

const (
	checksumSize = 4

	// the length tag is [L, ^L] under the same strength as the body
	tagData   = 2
	maxShares = 256
)

// Codec turns frames into self-delimited byte sequences and back.
//
// Wire format: tag(2+2*Strength) | header(5) | payload(L) | CRC-32(4) | parity(2*Strength).
// The tag carries the payload length under its own Reed-Solomon code so that a
// streaming receiver learns the frame size before the body arrives. Up to
// Strength corrupted tag bytes are corrected as well. Parity is a
// systematic Reed-Solomon code over header, payload and checksum with one-byte
// shares, so up to Strength corrupted bytes are corrected.
type Codec struct {
	maxPayload int
	strength   int

	tag      *infectious.FEC
	tagTotal int

	mu   sync.Mutex
	fecs map[int]*infectious.FEC // keyed by data length
}

func NewCodec(maxPayload, strength int) (*Codec, error) {
	if strength < 1 {
		return nil, fmt.Errorf("fec strength must be positive, got %d", strength)
	}
	if maxPayload < 0 || maxPayload > 0xff {
		return nil, fmt.Errorf("max payload must be in [0, 255], got %d", maxPayload)
	}
	if n := HeaderSize + maxPayload + checksumSize + 2*strength; n > maxShares {
		return nil, fmt.Errorf("codeword of %d bytes exceeds %d, lower max payload or fec strength", n, maxShares)
	}
	tag, err := infectious.NewFEC(tagData, tagData+2*strength)
	if err != nil {
		return nil, fmt.Errorf("length tag code: %w", err)
	}
	return &Codec{
		maxPayload: maxPayload,
		strength:   strength,
		tag:        tag,
		tagTotal:   tag.Total(),
		fecs:       make(map[int]*infectious.FEC),
	}, nil
}

func (c *Codec) MaxPayload() int {
	return c.maxPayload
}

func (c *Codec) Strength() int {
	return c.strength
}

func (c *Codec) TagSize() int {
	return c.tagTotal
}

// Overhead is the number of bytes a frame adds to its payload.
func (c *Codec) Overhead() int {
	return c.tagTotal + HeaderSize + checksumSize + 2*c.strength
}

// FrameSize returns the total frame length announced by a received tag.
func (c *Codec) FrameSize(tag []byte) (int, error) {
	length, err := c.decodeTag(tag)
	if err != nil {
		return 0, err
	}
	return c.Overhead() + length, nil
}

func (c *Codec) fec(k int) (*infectious.FEC, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.fecs[k]; ok {
		return f, nil
	}
	f, err := infectious.NewFEC(k, k+2*c.strength)
	if err != nil {
		return nil, err
	}
	c.fecs[k] = f
	return f, nil
}

func (c *Codec) Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > c.maxPayload {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(f.Payload), c.maxPayload)
	}
	f.Length = uint8(len(f.Payload))

	data := make([]byte, 0, HeaderSize+len(f.Payload)+checksumSize)
	data = append(data, f.Header.ToBytes()...)
	data = append(data, f.Payload...)
	data = binary.BigEndian.AppendUint32(data, crc32.ChecksumIEEE(data))

	out := make([]byte, c.tagTotal, c.Overhead()+len(f.Payload))
	if err := c.encodeTag(out, f.Length); err != nil {
		return nil, err
	}
	codeword, err := c.parity(data)
	if err != nil {
		return nil, err
	}
	return append(out, codeword...), nil
}

// parity returns data followed by its Reed-Solomon parity bytes.
func (c *Codec) parity(data []byte) ([]byte, error) {
	fec, err := c.fec(len(data))
	if err != nil {
		return nil, err
	}
	codeword := make([]byte, fec.Total())
	err = fec.Encode(data, func(s infectious.Share) {
		codeword[s.Number] = s.Data[0]
	})
	return codeword, err
}

func (c *Codec) encodeTag(out []byte, length uint8) error {
	return c.tag.Encode([]byte{length, ^length}, func(s infectious.Share) {
		out[s.Number] = s.Data[0]
	})
}

func (c *Codec) decodeTag(tag []byte) (int, error) {
	if len(tag) < c.tagTotal {
		return 0, fmt.Errorf("%w: tag needs %d bytes, got %d", ErrMalformed, c.tagTotal, len(tag))
	}
	data, err := c.tag.Decode(nil, shares(tag[:c.tagTotal]))
	if err != nil {
		return 0, fmt.Errorf("%w: length tag: %v", ErrUncorrectable, err)
	}
	if data[0] != ^data[1] {
		return 0, fmt.Errorf("%w: length tag inconsistent", ErrUncorrectable)
	}
	if int(data[0]) > c.maxPayload {
		return 0, fmt.Errorf("%w: announced length %d exceeds %d", ErrMalformed, data[0], c.maxPayload)
	}
	return int(data[0]), nil
}

func (c *Codec) Decode(raw []byte) (f Frame, err error) {
	length, err := c.decodeTag(raw)
	if err != nil {
		return
	}
	if expected := c.Overhead() + length; len(raw) != expected {
		err = fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformed, expected, len(raw))
		return
	}

	k := HeaderSize + length + checksumSize
	fec, err := c.fec(k)
	if err != nil {
		return
	}
	data, err := fec.Decode(nil, shares(raw[c.tagTotal:]))
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUncorrectable, err)
		return
	}

	body := data[:k-checksumSize]
	if crc32.ChecksumIEEE(body) != binary.BigEndian.Uint32(data[k-checksumSize:k]) {
		err = ErrChecksumMismatch
		return
	}
	if err = f.Header.FromBytes(body); err != nil {
		return
	}
	if int(f.Length) != length {
		err = fmt.Errorf("%w: header length %d, tag length %d", ErrMalformed, f.Length, length)
		return
	}
	f.Payload = append([]byte(nil), body[HeaderSize:]...)
	return
}

// shares splits a codeword into one-byte shares. The decoder mutates them, so
// the bytes are copied.
func shares(codeword []byte) []infectious.Share {
	buf := append([]byte(nil), codeword...)
	out := make([]infectious.Share, len(buf))
	for i := range buf {
		out[i] = infectious.Share{Number: i, Data: buf[i : i+1]}
	}
	return out
}
