package frame

import "errors"

var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUncorrectable    = errors.New("uncorrectable frame")
	ErrMalformed        = errors.New("malformed frame")
)
