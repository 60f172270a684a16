package device

import (
	"sync"
	"time"
)

// Loopback feeds every output block back as the next input block.
type Loopback struct {
	SampleRate float64 // the fake sample rate, 0 means no limit
	BlockSize  int     // 0 means BufferSize

	done chan struct{}
	wg   sync.WaitGroup
}

func (d *Loopback) Start(callback func(in, out []int32)) error {
	size := d.BlockSize
	if size <= 0 {
		size = BufferSize
	}
	d.done = make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		buf := [2][]int32{alloci32(size), alloci32(size)}

		swap := true
		update := func() {
			if swap {
				callback(buf[0], buf[1])
			} else {
				callback(buf[1], buf[0])
			}
			swap = !swap
		}

		if d.SampleRate == 0 {
			for {
				select {
				case <-d.done:
					return
				default:
					update()
				}
			}
		}
		ticker := time.NewTicker(blockPeriod(size, d.SampleRate))
		defer ticker.Stop()
		for {
			select {
			case <-d.done:
				return
			case <-ticker.C:
				update()
			}
		}
	}()
	return nil
}

// Stop returns after the last callback has finished.
func (d *Loopback) Stop() {
	close(d.done)
	d.wg.Wait()
}

func blockPeriod(size int, sampleRate float64) time.Duration {
	return time.Duration(float64(size) / sampleRate * float64(time.Second))
}
