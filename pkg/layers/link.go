package layers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"Athernet/pkg/async"
	"Athernet/pkg/frame"
)

// Packet is a payload delivered to the upper layer.
type Packet struct {
	Src     frame.Address
	Seq     uint8
	Flags   frame.Flags
	Payload []byte
}

// Link combines the MAC scheduler and the ARQ engine. Callers talk to it from
// any goroutine; the frames themselves are handled by Tick on the owner path.
type Link struct {
	Address    frame.Address
	Peer       frame.Address
	SampleRate float64
	Codec      *frame.Codec
	MAC        *MACLayer
	ARQ        *ARQ
	Logger     *slog.Logger
	Stats      *Stats

	submit    chan *Pending
	deliver   chan Packet
	closed    chan struct{}
	closeOnce sync.Once

	clock   int64
	pings   map[uint8]*Pending
	pingSeq uint8
}

func NewLink(cfg Config, carrier Carrier, logger *slog.Logger) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := frame.NewCodec(cfg.Frame.MaxPayload, cfg.Frame.Strength)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	stats := &Stats{}
	arq := &ARQ{
		Address:       cfg.Address,
		MaxRetries:    cfg.ARQ.MaxRetries,
		DedupCapacity: cfg.ARQ.DedupCapacity,
		Stats:         stats,
	}
	mac := &MACLayer{
		Address: cfg.Address,
		Carrier: carrier,
		Backoff: &RandomBackoff{
			MinWindow: cfg.MAC.MinWindow,
			MaxWindow: cfg.MAC.MaxWindow,
		},
		Policy:        arq,
		SlotTime:      cfg.samples(cfg.MAC.SlotTime),
		InterFrameGap: cfg.samples(cfg.MAC.InterFrameGap),
		AckGap:        cfg.samples(cfg.MAC.AckGap),
		AckTimeout:    cfg.samples(cfg.ARQ.AckTimeout),
		AccessTimeout: cfg.samples(cfg.MAC.AccessTimeout),
		MaxBackoffs:   cfg.MAC.MaxBackoffs,
		Logger:        logger,
		Stats:         stats,
	}

	return &Link{
		Address:    cfg.Address,
		Peer:       cfg.Peer,
		SampleRate: cfg.SampleRate,
		Codec:      codec,
		MAC:        mac,
		ARQ:        arq,
		Logger:     logger.With("layer", "link", "addr", cfg.Address),
		Stats:      stats,
		submit:     make(chan *Pending, cfg.MAC.QueueSize),
		deliver:    make(chan Packet, cfg.ARQ.ReceiveBuffer),
		closed:     make(chan struct{}),
		pings:      make(map[uint8]*Pending),
	}, nil
}

// Tick runs one sample block on the owner path: it admits submitted frames,
// handles the frames decoded from the block and steps the MAC.
func (l *Link) Tick(elapsed int, frames [][]byte) {
	l.clock += int64(elapsed)

	for drained := false; !drained; {
		select {
		case p := <-l.submit:
			l.accept(p)
		default:
			drained = true
		}
	}

	for _, raw := range frames {
		l.handle(raw)
	}

	l.MAC.Step(l.clock, elapsed)
}

// Clock is the number of samples seen by Tick. Only meaningful on the owner
// path.
func (l *Link) Clock() int64 {
	return l.clock
}

func (l *Link) accept(p *Pending) {
	if p.canceled() {
		p.complete(p.ctx.Err())
		return
	}
	p.Frame.Src = l.Address
	switch p.Frame.Type {
	case frame.TypeData:
		p.Frame.Seq = l.ARQ.NextSeq()
		p.expectAck = p.Frame.Dst != frame.Broadcast
	case frame.TypePing:
		for seq, q := range l.pings {
			if q.canceled() {
				delete(l.pings, seq)
			}
		}
		p.Frame.Seq = l.pingSeq
		l.pingSeq++
		l.pings[p.Frame.Seq] = p
	}
	l.enqueue(p)
}

func (l *Link) enqueue(p *Pending) {
	raw, err := l.Codec.Encode(p.Frame)
	if err != nil {
		p.complete(err)
		return
	}
	p.raw = raw
	l.MAC.Enqueue(p)
}

func (l *Link) reply(t frame.Type, dst frame.Address, seq uint8) {
	p := newPending(nil, frame.Frame{
		Header: frame.Header{Type: t, Src: l.Address, Dst: dst, Seq: seq},
	})
	p.urgent = true
	l.enqueue(p)
}

func (l *Link) handle(raw []byte) {
	f, err := l.Codec.Decode(raw)
	if err != nil {
		l.Stats.Corrupted.Add(1)
		l.Logger.Debug("dropping frame", "error", err)
		return
	}
	if f.Src == l.Address {
		return
	}
	if f.Dst != l.Address && f.Dst != frame.Broadcast {
		return
	}
	l.Stats.Received.Add(1)
	l.Logger.Debug("received", "frame", f)

	switch f.Type {
	case frame.TypeAck:
		if !l.MAC.Acknowledge(f.Src, f.Seq) {
			l.Logger.Debug("stray ack", "src", f.Src, "seq", f.Seq)
		}
	case frame.TypeData:
		full := len(l.deliver) == cap(l.deliver)
		ack, deliver := l.ARQ.Accept(f, full)
		if ack {
			l.reply(frame.TypeAck, f.Src, f.Seq)
		}
		if deliver {
			l.deliver <- Packet{Src: f.Src, Seq: f.Seq, Flags: f.Flags, Payload: f.Payload}
			l.Stats.Delivered.Add(1)
		} else if full {
			l.Logger.Debug("receive buffer full", "src", f.Src, "seq", f.Seq)
		}
	case frame.TypePing:
		l.reply(frame.TypePong, f.Src, f.Seq)
	case frame.TypePong:
		p, ok := l.pings[f.Seq]
		if !ok || p.Frame.Dst != f.Src && p.Frame.Dst != frame.Broadcast {
			return
		}
		delete(l.pings, f.Seq)
		p.pong <- l.clock - p.emittedAt
	}
}

func (l *Link) submitPending(ctx context.Context, p *Pending) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	select {
	case l.submit <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed:
		return ErrClosed
	}
}

func (l *Link) send(ctx context.Context, dst frame.Address, flags frame.Flags, data []byte) error {
	if len(data) > l.Codec.MaxPayload() {
		return fmt.Errorf("%w: %d bytes, max %d", frame.ErrPayloadTooLarge, len(data), l.Codec.MaxPayload())
	}
	p := newPending(ctx, frame.Frame{
		Header:  frame.Header{Type: frame.TypeData, Flags: flags, Dst: dst},
		Payload: append([]byte(nil), data...),
	})
	if err := l.submitPending(ctx, p); err != nil {
		return err
	}
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed:
		return ErrClosed
	}
}

// Send delivers one payload to the configured peer and returns once it is
// acknowledged.
func (l *Link) Send(ctx context.Context, data []byte) error {
	return l.send(ctx, l.Peer, frame.FlagEOP, data)
}

// SendTo sends to dst. Broadcast frames return once they are on the air.
func (l *Link) SendTo(ctx context.Context, dst frame.Address, data []byte) error {
	return l.send(ctx, dst, frame.FlagEOP, data)
}

func (l *Link) SendAsync(ctx context.Context, data []byte) <-chan error {
	return async.Promise(func() error {
		return l.Send(ctx, data)
	})
}

// Ping measures the round trip to dst on the sample clock.
func (l *Link) Ping(ctx context.Context, dst frame.Address) (time.Duration, error) {
	p := newPending(ctx, frame.Frame{
		Header: frame.Header{Type: frame.TypePing, Dst: dst},
	})
	p.pong = make(chan int64, 1)
	if err := l.submitPending(ctx, p); err != nil {
		return 0, err
	}

	done := p.done
	for {
		select {
		case err := <-done:
			if err != nil {
				return 0, err
			}
			done = nil
		case rtt := <-p.pong:
			return time.Duration(float64(rtt) / l.SampleRate * float64(time.Second)), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-l.closed:
			return 0, ErrClosed
		}
	}
}

func (l *Link) ReceiveContext(ctx context.Context) (Packet, error) {
	select {
	case p := <-l.deliver:
		return p, nil
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-l.closed:
		return Packet{}, ErrClosed
	}
}

func (l *Link) Receive() (Packet, error) {
	return l.ReceiveContext(context.Background())
}

func (l *Link) ReceiveAsync() <-chan Packet {
	return l.deliver
}

func (l *Link) ReceiveWithTimeout(timeout time.Duration) (Packet, error) {
	select {
	case p := <-l.deliver:
		return p, nil
	case <-time.After(timeout):
		return Packet{}, ErrTimeout
	case <-l.closed:
		return Packet{}, ErrClosed
	}
}

func (l *Link) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
}
