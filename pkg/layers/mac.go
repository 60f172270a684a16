package layers

import (
	"log/slog"
	"sync"

	"Athernet/pkg/frame"
)

// Carrier is the transmit side of the physical layer as the MAC sees it.
type Carrier interface {
	IsBusy() bool
	// Emit hands an encoded frame to the sample sink and returns its airtime
	// in samples.
	Emit(frame []byte) int
	// Emitting reports whether samples of the last emitted frame are still
	// being written.
	Emitting() bool
}

// RetryPolicy decides whether an unacknowledged frame is sent again.
type RetryPolicy interface {
	Retry(p *Pending) bool
}

type StateKind int

const (
	StateIdle StateKind = iota
	StateSensing
	StateBackoff
	StateTransmitting
	StateAwaitingAck
	StateFailed
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "Idle"
	case StateSensing:
		return "Sensing"
	case StateBackoff:
		return "Backoff"
	case StateTransmitting:
		return "Transmitting"
	case StateAwaitingAck:
		return "AwaitingAck"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type macState interface {
	Kind() StateKind
}

type idleState struct{}

type sensingState struct {
	p    *Pending
	idle int64 // consecutive idle samples observed
}

type backoffState struct {
	p        *Pending
	counter  int   // slots left
	progress int64 // idle samples into the current slot
}

type transmittingState struct {
	p *Pending
}

type awaitingAckState struct {
	p        *Pending
	deadline int64
}

type failedState struct {
	p   *Pending
	err error
}

func (*idleState) Kind() StateKind         { return StateIdle }
func (*sensingState) Kind() StateKind      { return StateSensing }
func (*backoffState) Kind() StateKind      { return StateBackoff }
func (*transmittingState) Kind() StateKind { return StateTransmitting }
func (*awaitingAckState) Kind() StateKind  { return StateAwaitingAck }
func (*failedState) Kind() StateKind       { return StateFailed }

// transitions allowed within a single Step
const maxTransitions = 8

// MACLayer is the CSMA/CA scheduler. It owns the right to emit samples and is
// driven by Step once per sample block from a single goroutine. All times
// are in samples.
type MACLayer struct {
	Address       frame.Address
	Carrier       Carrier
	Backoff       Backoff
	Policy        RetryPolicy
	SlotTime      int64
	InterFrameGap int64
	AckGap        int64
	AckTimeout    int64
	AccessTimeout int64 // 0 means unlimited
	MaxBackoffs   int   // 0 means unlimited
	Logger        *slog.Logger
	Stats         *Stats

	once   sync.Once
	state  macState
	parked *awaitingAckState // data frame waiting for its ACK while an urgent frame is sent
	urgent []*Pending
	queue  []*Pending
	now    int64
}

func (m *MACLayer) init() {
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
	m.Logger = m.Logger.With("layer", "mac", "addr", m.Address)
	if m.Stats == nil {
		m.Stats = &Stats{}
	}
	m.state = &idleState{}
}

func (m *MACLayer) State() StateKind {
	m.once.Do(m.init)
	return m.state.Kind()
}

// Queued is the number of frames waiting for admission.
func (m *MACLayer) Queued() int {
	return len(m.urgent) + len(m.queue)
}

func (m *MACLayer) Enqueue(p *Pending) {
	m.once.Do(m.init)
	if p.urgent {
		m.urgent = append(m.urgent, p)
	} else {
		m.queue = append(m.queue, p)
	}
}

// Acknowledge settles the data frame sent to src with the given sequence
// number. It reports whether such a frame was outstanding.
func (m *MACLayer) Acknowledge(src frame.Address, seq uint8) bool {
	m.once.Do(m.init)
	matches := func(p *Pending) bool {
		return p.expectAck && p.Frame.Dst == src && p.Frame.Seq == seq
	}

	if m.parked != nil && matches(m.parked.p) {
		m.succeed(m.parked.p)
		m.parked = nil
		return true
	}

	switch s := m.state.(type) {
	case *awaitingAckState:
		if matches(s.p) {
			m.succeed(s.p)
			m.state = m.idle()
			return true
		}
	case *sensingState:
		// a late ACK for an earlier transmission of a frame waiting to be resent
		if s.p.retries > 0 && matches(s.p) {
			m.succeed(s.p)
			m.state = m.idle()
			return true
		}
	case *backoffState:
		if s.p.retries > 0 && matches(s.p) {
			m.succeed(s.p)
			m.state = m.idle()
			return true
		}
	case *transmittingState:
		if s.p.retries > 0 && matches(s.p) {
			s.p.acked = true
			return true
		}
	}

	// a resend that yielded the medium to an urgent frame
	for i, q := range m.queue {
		if q.retries > 0 && matches(q) {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.succeed(q)
			return true
		}
	}
	return false
}

func (m *MACLayer) succeed(p *Pending) {
	m.Logger.Debug("frame acknowledged", "seq", p.Frame.Seq, "dst", p.Frame.Dst, "retries", p.retries)
	p.complete(nil)
}

// Step advances the state machine to now, elapsed samples after the previous
// step.
func (m *MACLayer) Step(now int64, elapsed int) {
	m.once.Do(m.init)
	m.now = now
	n := int64(elapsed)
	for range maxTransitions {
		next := m.transition(n)
		if next == nil {
			return
		}
		m.Logger.Debug("transition", "from", m.state.Kind(), "to", next.Kind())
		m.state = next
		// later transitions in the same block do not count the block again
		n = 0
	}
}

func (m *MACLayer) transition(n int64) macState {
	switch s := m.state.(type) {
	case *idleState:
		return m.fromIdle()
	case *sensingState:
		return m.fromSensing(s, n)
	case *backoffState:
		return m.fromBackoff(s, n)
	case *transmittingState:
		return m.fromTransmitting(s)
	case *awaitingAckState:
		return m.fromAwaitingAck(s)
	case *failedState:
		return m.fromFailed(s)
	}
	panic("unknown mac state")
}

// idle is where a finished transmission leads: back to a parked wait for an
// acknowledgment if there is one.
func (m *MACLayer) idle() macState {
	if m.parked != nil {
		s := m.parked
		m.parked = nil
		return s
	}
	return &idleState{}
}

func (m *MACLayer) pop() *Pending {
	if len(m.urgent) > 0 {
		p := m.urgent[0]
		m.urgent = m.urgent[1:]
		return p
	}
	for len(m.queue) > 0 {
		p := m.queue[0]
		m.queue = m.queue[1:]
		if p.canceled() {
			p.complete(p.ctx.Err())
			continue
		}
		return p
	}
	return nil
}

func (m *MACLayer) admit(p *Pending) macState {
	if !p.started {
		p.started = true
		p.attempts = 0
		p.admitted = m.now
	}
	return &sensingState{p: p}
}

func (m *MACLayer) fromIdle() macState {
	p := m.pop()
	if p == nil {
		return nil
	}
	return m.admit(p)
}

// abandon checks the conditions under which a frame leaves Sensing or
// Backoff without being sent.
func (m *MACLayer) abandon(p *Pending) macState {
	if p.canceled() {
		m.Logger.Debug("send canceled before admission", "seq", p.Frame.Seq)
		p.complete(p.ctx.Err())
		return m.idle()
	}
	if m.AccessTimeout > 0 && m.now-p.admitted >= m.AccessTimeout {
		return &failedState{p: p, err: ErrChannelAccess}
	}
	if !p.urgent && len(m.urgent) > 0 {
		// acknowledgments go first; the data frame keeps its counters
		m.queue = append([]*Pending{p}, m.queue...)
		return m.idle()
	}
	return nil
}

func (m *MACLayer) gap(p *Pending) int64 {
	if p.urgent {
		return m.AckGap
	}
	return m.InterFrameGap
}

func (m *MACLayer) fromSensing(s *sensingState, n int64) macState {
	if next := m.abandon(s.p); next != nil {
		return next
	}

	if m.Carrier.IsBusy() {
		s.p.attempts++
		if m.MaxBackoffs > 0 && s.p.attempts > m.MaxBackoffs {
			return &failedState{p: s.p, err: ErrChannelAccess}
		}
		slots := m.Backoff.Slots(s.p.attempts)
		m.Stats.Backoffs.Add(1)
		m.Logger.Debug("channel busy, backing off", "seq", s.p.Frame.Seq, "attempt", s.p.attempts, "slots", slots)
		return &backoffState{p: s.p, counter: slots}
	}

	s.idle += n
	if s.idle < m.gap(s.p) {
		return nil
	}

	airtime := m.Carrier.Emit(s.p.raw)
	s.p.emittedAt = m.now
	m.Stats.Sent.Add(1)
	m.Logger.Debug("transmitting", "frame", s.p.Frame, "airtime", airtime)
	return &transmittingState{p: s.p}
}

func (m *MACLayer) fromBackoff(s *backoffState, n int64) macState {
	if next := m.abandon(s.p); next != nil {
		return next
	}

	if m.Carrier.IsBusy() {
		// the counter freezes and the partial slot is lost
		s.progress = 0
		return nil
	}
	s.progress += n
	for s.counter > 0 && s.progress >= m.SlotTime {
		s.counter--
		s.progress -= m.SlotTime
	}
	if s.counter > 0 {
		return nil
	}
	return &sensingState{p: s.p}
}

func (m *MACLayer) fromTransmitting(s *transmittingState) macState {
	if m.Carrier.Emitting() {
		return nil
	}
	if s.p.expectAck && !s.p.acked {
		return &awaitingAckState{p: s.p, deadline: m.now + m.AckTimeout}
	}
	s.p.complete(nil)
	return m.idle()
}

func (m *MACLayer) fromAwaitingAck(s *awaitingAckState) macState {
	if s.p.canceled() {
		m.Logger.Debug("send canceled while awaiting ack", "seq", s.p.Frame.Seq)
		s.p.complete(s.p.ctx.Err())
		return &idleState{}
	}
	if m.now >= s.deadline {
		if m.Policy != nil && m.Policy.Retry(s.p) {
			m.Logger.Debug("ack timeout, retransmitting", "seq", s.p.Frame.Seq, "retry", s.p.retries)
			s.p.attempts = 0
			s.p.admitted = m.now
			return &sensingState{p: s.p}
		}
		return &failedState{p: s.p, err: ErrRetriesExhausted}
	}
	if len(m.urgent) > 0 {
		m.parked = s
		return m.admit(m.pop())
	}
	return nil
}

func (m *MACLayer) fromFailed(s *failedState) macState {
	m.Stats.Failed.Add(1)
	err := &TransmitFailure{
		Seq:      s.p.Frame.Seq,
		Dst:      s.p.Frame.Dst,
		Attempts: s.p.retries + 1,
		Cause:    s.err,
	}
	m.Logger.Warn("transmission failed", "frame", s.p.Frame, "error", s.err)
	s.p.complete(err)
	return m.idle()
}
