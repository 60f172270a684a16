package layers

import (
	"log/slog"
	"sync"

	"Athernet/pkg/device"
	"Athernet/pkg/modem"
)

// PhysicalLayer owns the device callback. Every block is sensed and
// demodulated first, then handed to Handler, then the output block is
// written. Carrier methods are only valid from inside Handler.
type PhysicalLayer struct {
	Device      device.Device
	Modulator   *modem.Modulator
	Demodulator *modem.Demodulator
	Monitor     *PowerMonitor
	Handler     func(elapsed int, frames [][]byte)
	Logger      *slog.Logger

	once    sync.Once
	input   []float64
	current []int32 // samples of the frame being written
	frames  [][]byte
}

func (p *PhysicalLayer) init() {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	p.Logger = p.Logger.With("layer", "physical")
}

func (p *PhysicalLayer) Open() error {
	p.once.Do(p.init)
	return p.Device.Start(p.callback)
}

func (p *PhysicalLayer) Close() {
	p.Device.Stop()
}

func (p *PhysicalLayer) callback(in, out []int32) {
	p.input = modem.Int32ToFloat64(p.input, in)
	p.Monitor.Update(p.input)

	p.frames = p.frames[:0]
	for _, c := range p.Demodulator.Update(p.input) {
		if c.Err != nil {
			p.Logger.Debug("frame lost", "start", c.Start, "error", c.Err)
			continue
		}
		p.frames = append(p.frames, c.Bytes)
	}

	if p.Handler != nil {
		p.Handler(len(in), p.frames)
	}
	p.write(out)
}

// write consumes the current frame into out and pads with silence.
func (p *PhysicalLayer) write(out []int32) {
	i := copy(out, p.current)
	p.current = p.current[i:]
	clear(out[i:])
}

func (p *PhysicalLayer) IsBusy() bool {
	return p.Monitor.IsBusy()
}

func (p *PhysicalLayer) Emit(data []byte) int {
	samples := p.Modulator.ModulateFrame(data)
	p.current = make([]int32, len(samples))
	modem.Float64ToInt32(p.current, samples)
	return len(samples)
}

func (p *PhysicalLayer) Emitting() bool {
	return len(p.current) > 0
}
