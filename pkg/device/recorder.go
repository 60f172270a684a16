package device

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// Recorder wraps a device and keeps every block it captures and plays.
type Recorder struct {
	Device

	mu  sync.Mutex
	in  []int32
	out []int32
}

func (r *Recorder) Start(callback func(in, out []int32)) error {
	return r.Device.Start(func(in, out []int32) {
		callback(in, out)
		r.mu.Lock()
		r.in = append(r.in, in...)
		r.out = append(r.out, out...)
		r.mu.Unlock()
	})
}

// Tracks returns copies of the captured and played samples.
func (r *Recorder) Tracks() (in, out []int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int32(nil), r.in...), append([]int32(nil), r.out...)
}

// Save writes the captured track as little endian int32 samples.
func (r *Recorder) Save(filename string) error {
	in, _ := r.Tracks()
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, in); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
