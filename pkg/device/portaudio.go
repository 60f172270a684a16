//go:build !windows

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio runs the default duplex stream with blocking reads and writes.
// The callback runs on the stream goroutine, one block at a time.
type PortAudio struct {
	SampleRate float64
	BlockSize  int // 0 means BufferSize
	Logger     *slog.Logger

	stream *portaudio.Stream
	done   chan struct{}
	wg     sync.WaitGroup
}

func (p *PortAudio) Start(callback func(in, out []int32)) error {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	size := p.BlockSize
	if size <= 0 {
		size = BufferSize
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}

	in, out := alloci32(size), alloci32(size)
	stream, err := portaudio.OpenDefaultStream(1, 1, p.SampleRate, size, in, out)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}

	p.stream = stream
	p.done = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.done:
				return
			default:
			}
			if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
				p.Logger.Error("portaudio read", "error", err)
				return
			}
			callback(in, out)
			if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
				p.Logger.Error("portaudio write", "error", err)
				return
			}
		}
	}()
	return nil
}

func (p *PortAudio) Stop() {
	if p.stream == nil {
		return
	}
	close(p.done)
	p.wg.Wait()
	p.stream.Stop()
	p.stream.Close()
	p.stream = nil
	portaudio.Terminate()
}

// Describe lists the audio devices known to PortAudio.
func Describe() ([]Info, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(devices))
	for _, d := range devices {
		info := Info{
			Name:       d.Name,
			Inputs:     d.MaxInputChannels,
			Outputs:    d.MaxOutputChannels,
			SampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		infos = append(infos, info)
	}
	return infos, nil
}
