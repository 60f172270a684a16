package device

// Device drives callback once per block of mono samples. in holds the
// captured block and out must be filled with the block to play.
type Device interface {
	Start(callback func(in, out []int32)) error
	Stop()
}

// BufferSize is the default block size in samples.
const BufferSize = 512
