package modem

import (
	"errors"
	"log/slog"
	"math"
	"sync"
)

var ErrSynchronizationLost = errors.New("synchronization lost")

// FrameSizer tells the demodulator how long a frame is once its leading tag
// has been received.
type FrameSizer interface {
	TagSize() int
	FrameSize(tag []byte) (int, error)
}

// Candidate is one detected frame. Bytes holds whatever was recovered; Err is
// set when the frame could not be delimited.
type Candidate struct {
	Bytes []byte
	Err   error
	Start int64 // sample index of the last preamble sample
}

type demodulateState int

const (
	preambleDetection demodulateState = iota
	dataExtraction
)

const (
	// a neighbouring window must beat the nominal one by this share of
	// spectral concentration before the symbol clock moves
	driftMargin = 0.01
	// a later correlation peak within the guard must beat the current one by
	// this share to replace it; anything closer counts as a tie
	tieMargin = 0.05
	// consecutive silent symbols that abort a frame
	maxQuietSymbols = 2
)

// Demodulator is a streaming receiver. Feed it consecutive sample blocks with
// Update; it is not safe for concurrent use.
type Demodulator struct {
	Preamble      []float64
	Tones         *Tones
	Sizer         FrameSizer
	Threshold     float64 // normalized correlation needed for a preamble
	Guard         int     // samples without a higher peak before a start is confirmed
	EnergyFloor   float64 // mean power under which nothing is considered signal
	DriftTracking bool
	Logger        *slog.Logger

	once  sync.Once
	state demodulateState
	clock int64

	// preamble detection
	window         []float64 // ring of the last len(Preamble) samples
	head           int
	filled         int
	energy         float64
	preambleEnergy float64
	best           float64
	bestAt         int64
	sinceBest      int // -1 while there is no candidate
	pending        []float64

	// data extraction
	detector *detector
	buf      []float64 // buf[0] is the sample right before the current symbol
	bufAt    int64
	bytes    byteWriter
	expected int
	quiet    int

	queue   []float64 // samples to rescan after a frame ends
	queueAt int64
	out     []Candidate
}

func (d *Demodulator) init() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("layer", "demodulation")
	d.Reset()
}

// Reset drops any partial frame and restarts preamble detection.
func (d *Demodulator) Reset() {
	d.window = make([]float64, len(d.Preamble))
	d.preambleEnergy = 0
	for _, v := range d.Preamble {
		d.preambleEnergy += v * v
	}
	d.detector = newDetector(d.Tones)
	d.queue = nil
	d.resetDetection()
}

func (d *Demodulator) resetDetection() {
	d.state = preambleDetection
	clear(d.window)
	d.head, d.filled, d.energy = 0, 0, 0
	d.best, d.sinceBest = 0, -1
	d.pending = d.pending[:0]
}

// Update consumes a block of samples and returns the frames completed in it.
func (d *Demodulator) Update(samples []float64) []Candidate {
	d.once.Do(d.init)
	d.out = nil
	for _, x := range samples {
		d.step(x, d.clock)
		d.clock++
		for len(d.queue) > 0 {
			y, at := d.queue[0], d.queueAt
			d.queue = d.queue[1:]
			d.queueAt++
			d.step(y, at)
		}
	}
	return d.out
}

func (d *Demodulator) step(x float64, at int64) {
	switch d.state {
	case preambleDetection:
		d.detectPreamble(x, at)
	case dataExtraction:
		d.buf = append(d.buf, x)
		d.extractData()
	}
}

func (d *Demodulator) detectPreamble(x float64, at int64) {
	n := len(d.window)
	old := d.window[d.head]
	d.window[d.head] = x
	d.head = (d.head + 1) % n
	d.energy += x*x - old*old
	if d.head == 0 {
		// limit the rounding drift of the running sum
		d.energy = 0
		for _, v := range d.window {
			d.energy += v * v
		}
	}
	d.filled = min(d.filled+1, n)

	if d.sinceBest >= 0 {
		d.pending = append(d.pending, x)
		d.sinceBest++
	}

	if d.filled == n && d.energy/float64(n) > d.EnergyFloor {
		// near-equal peaks resolve to the earliest
		if c := d.correlate(); c > d.Threshold && c > d.best*(1+tieMargin) {
			d.Logger.Debug("potential preamble", "correlation", c, "at", at)
			d.best, d.bestAt, d.sinceBest = c, at, 0
			// the peak sample is kept as look-behind for drift tracking
			d.pending = append(d.pending[:0], x)
		}
	}

	if d.sinceBest >= 0 && d.sinceBest >= d.Guard {
		d.Logger.Debug("preamble confirmed", "correlation", d.best, "at", d.bestAt)
		d.state = dataExtraction
		d.buf = append(d.buf[:0], d.pending...)
		d.bufAt = d.bestAt
		d.bytes.Reset()
		d.expected, d.quiet = 0, 0
		d.extractData()
	}
}

// correlate returns the normalized cross-correlation of the ring against the
// preamble.
func (d *Demodulator) correlate() float64 {
	// the oldest sample sits at head
	dot := 0.0
	older, newer := d.window[d.head:], d.window[:d.head]
	for j, v := range older {
		dot += d.Preamble[j] * v
	}
	for j, v := range newer {
		dot += d.Preamble[len(older)+j] * v
	}
	norm := math.Sqrt(d.energy * d.preambleEnergy)
	if norm == 0 {
		return 0
	}
	return dot / norm
}

func (d *Demodulator) extractData() {
	size := d.Tones.SymbolSize
	for d.state == dataExtraction && len(d.buf) >= size+2 {
		offset := 0
		symbol, concentration, power := d.detector.detect(d.buf[1 : size+1])
		if d.DriftTracking {
			for _, o := range [...]int{-1, 1} {
				s, c, p := d.detector.detect(d.buf[1+o : 1+o+size])
				if c > concentration*(1+driftMargin) {
					symbol, concentration, power, offset = s, c, p, o
				}
			}
			if offset != 0 {
				d.Logger.Debug("symbol clock re-aligned", "offset", offset, "at", d.bufAt+1)
			}
		}
		d.buf = d.buf[size+offset:]
		d.bufAt += int64(size + offset)

		if power < d.EnergyFloor {
			d.quiet++
			if d.quiet >= maxQuietSymbols {
				d.finish(ErrSynchronizationLost)
				return
			}
		} else {
			d.quiet = 0
		}

		if d.bytes.Write(grayInverse(symbol), d.Tones.BitsPerSymbol) {
			d.receiveByte()
		}
	}
}

func (d *Demodulator) receiveByte() {
	received := len(d.bytes.data)
	if d.expected == 0 && received == d.Sizer.TagSize() {
		size, err := d.Sizer.FrameSize(d.bytes.data)
		if err != nil {
			d.finish(err)
			return
		}
		d.expected = size
	}
	if d.expected > 0 && received >= d.expected {
		d.finish(nil)
	}
}

// finish emits the current frame and rescans the samples that follow it.
func (d *Demodulator) finish(err error) {
	c := Candidate{Bytes: d.bytes.data, Err: err, Start: d.bestAt}
	d.out = append(d.out, c)
	if err != nil {
		d.Logger.Debug("frame dropped", "error", err, "bytes", len(c.Bytes))
	}

	leftover := append(append([]float64(nil), d.buf...), d.queue...)
	leftoverAt := d.bufAt
	d.bytes.Reset()
	d.buf = d.buf[:0]
	d.resetDetection()
	d.queue, d.queueAt = leftover, leftoverAt
}
