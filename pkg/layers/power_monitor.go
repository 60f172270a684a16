package layers

import (
	"math"
	"sync"
	"sync/atomic"
)

// rate at which the idle noise floor follows the measured power, per sample
const floorTracking = 1e-3

// PowerMonitor senses whether the shared medium is occupied. Update is called
// from the sample consumer; IsBusy may be read from anywhere.
type PowerMonitor struct {
	Window     int     // samples in the moving average
	BusyRatio  float64 // busy when power exceeds the noise floor by this factor
	NoiseFloor float64 // lower bound of the tracked noise floor
	BusyHold   int     // samples above threshold before declaring busy
	IdleHold   int     // samples below threshold before declaring idle

	once  sync.Once
	ring  []float64
	head  int
	sum   float64
	floor float64
	above int
	below int

	busy      atomic.Bool
	power     atomic.Uint64
	threshold atomic.Uint64
}

func (p *PowerMonitor) Reset() {
	p.ring = make([]float64, max(p.Window, 1))
	p.head, p.sum = 0, 0
	p.floor = p.NoiseFloor
	p.above, p.below = 0, 0
	p.busy.Store(false)
	p.power.Store(0)
	p.threshold.Store(math.Float64bits(p.floor * p.BusyRatio))
}

func (p *PowerMonitor) Update(samples []float64) {
	p.once.Do(p.Reset)

	busy := p.busy.Load()
	power := 0.0
	for _, x := range samples {
		sq := x * x
		p.sum += sq - p.ring[p.head]
		p.ring[p.head] = sq
		p.head = (p.head + 1) % len(p.ring)
		if p.head == 0 {
			p.sum = 0
			for _, v := range p.ring {
				p.sum += v
			}
		}
		power = max(p.sum, 0) / float64(len(p.ring))

		if power > p.floor*p.BusyRatio {
			p.above++
			p.below = 0
			if !busy && p.above >= p.BusyHold {
				busy = true
			}
		} else {
			p.below++
			p.above = 0
			if busy && p.below >= p.IdleHold {
				busy = false
			}
		}

		if !busy {
			p.floor = max(p.NoiseFloor, p.floor+floorTracking*(power-p.floor))
		}
	}

	p.busy.Store(busy)
	p.power.Store(math.Float64bits(power))
	p.threshold.Store(math.Float64bits(p.floor * p.BusyRatio))
}

func (p *PowerMonitor) IsBusy() bool {
	return p.busy.Load()
}

// Power is the latest moving-average power.
func (p *PowerMonitor) Power() float64 {
	return math.Float64frombits(p.power.Load())
}

// Threshold is the power above which the channel counts as occupied.
func (p *PowerMonitor) Threshold() float64 {
	return math.Float64frombits(p.threshold.Load())
}
