package layers

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"Athernet/pkg/async"
	"Athernet/pkg/frame"
)

const (
	airBlock   = 480  // 10 ms at 48 kHz
	airAirtime = 4800 // 100 ms per frame
)

// air is a frame-level shared medium. A frame reaches every station, the
// sender included, once its airtime has passed.
type air struct {
	jammed bool
	drop   func(f frame.Frame) bool

	links    []*Link
	carriers []*airCarrier
	inbox    [][][]byte
}

type airCarrier struct {
	air     *air
	left    int
	raw     []byte
	emitted int
}

func (c *airCarrier) IsBusy() bool {
	if c.air.jammed {
		return true
	}
	for _, o := range c.air.carriers {
		if o != c && o.left > 0 {
			return true
		}
	}
	return false
}

func (c *airCarrier) Emit(f []byte) int {
	c.raw = f
	c.left = airAirtime
	c.emitted++
	return airAirtime
}

func (c *airCarrier) Emitting() bool { return c.left > 0 }

func (a *air) join(t *testing.T, addr, peer frame.Address, modify ...func(*Config)) *Link {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address, cfg.Peer = addr, peer
	for _, m := range modify {
		m(&cfg)
	}
	c := &airCarrier{air: a}
	l, err := NewLink(cfg, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.links = append(a.links, l)
	a.carriers = append(a.carriers, c)
	a.inbox = append(a.inbox, nil)
	return l
}

func (a *air) tick() {
	for i, l := range a.links {
		frames := a.inbox[i]
		a.inbox[i] = nil
		l.Tick(airBlock, frames)
	}
	for _, c := range a.carriers {
		if c.left == 0 {
			continue
		}
		c.left = max(c.left-airBlock, 0)
		if c.left > 0 {
			continue
		}
		if a.drop != nil {
			if f, err := a.links[0].Codec.Decode(c.raw); err == nil && a.drop(f) {
				continue
			}
		}
		for i := range a.inbox {
			a.inbox[i] = append(a.inbox[i], c.raw)
		}
	}
	runtime.Gosched()
}

func (a *air) ticks(n int) {
	for range n {
		a.tick()
	}
}

func (a *air) await(t *testing.T, errc <-chan error, limit int) error {
	t.Helper()
	for range limit {
		select {
		case err := <-errc:
			return err
		default:
		}
		a.tick()
	}
	t.Fatalf("no result after %d blocks", limit)
	return nil
}

func (a *air) until(t *testing.T, cond func() bool, limit int) {
	t.Helper()
	for range limit {
		if cond() {
			return
		}
		a.tick()
	}
	t.Fatalf("condition not reached after %d blocks", limit)
}

func TestLinkHello(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)
	b := m.join(t, 2, 1)

	err := m.await(t, a.SendAsync(context.Background(), []byte("HELLO")), 1000)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	p, err := b.ReceiveWithTimeout(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if p.Src != 1 || string(p.Payload) != "HELLO" || p.Flags&frame.FlagEOP == 0 {
		t.Errorf("unexpected packet %+v", p)
	}

	if got := a.Stats.Sent.Load(); got != 1 {
		t.Errorf("expected one data frame sent, got %d", got)
	}
	if got := b.Stats.Sent.Load(); got != 1 {
		t.Errorf("expected one ack sent, got %d", got)
	}
	// each station hears its own emission and ignores it
	if a.Stats.Received.Load() != 1 || b.Stats.Received.Load() != 1 {
		t.Errorf("expected one frame received by each, got %d and %d", a.Stats.Received.Load(), b.Stats.Received.Load())
	}
}

func TestLinkRetransmitsLostAcks(t *testing.T) {
	var m air
	dropped := 0
	m.drop = func(f frame.Frame) bool {
		if f.Type == frame.TypeAck && dropped < 2 {
			dropped++
			return true
		}
		return false
	}
	a := m.join(t, 1, 2)
	b := m.join(t, 2, 1)

	if err := m.await(t, a.SendAsync(context.Background(), []byte("again")), 2000); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := a.Stats.Retransmitted.Load(); got != 2 {
		t.Errorf("expected 2 retransmissions, got %d", got)
	}
	if got := b.Stats.Duplicates.Load(); got != 2 {
		t.Errorf("expected 2 duplicates, got %d", got)
	}

	if p, err := b.ReceiveWithTimeout(time.Second); err != nil || string(p.Payload) != "again" {
		t.Fatalf("expected the payload once, got %+v %v", p, err)
	}
	if _, err := b.ReceiveWithTimeout(10 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("payload delivered twice: %v", err)
	}
}

func TestLinkRetriesExhausted(t *testing.T) {
	var m air
	m.drop = func(f frame.Frame) bool { return f.Type == frame.TypeAck }
	a := m.join(t, 1, 2)
	b := m.join(t, 2, 1)

	err := m.await(t, a.SendAsync(context.Background(), []byte("lost")), 5000)
	var failure *TransmitFailure
	if !errors.As(err, &failure) || !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected retries exhausted, got %v", err)
	}
	if failure.Attempts != 6 || failure.Dst != 2 {
		t.Errorf("unexpected failure %+v", failure)
	}
	if got := a.Stats.Sent.Load(); got != 6 {
		t.Errorf("expected 6 transmissions, got %d", got)
	}
	if got := b.Stats.Delivered.Load(); got != 1 {
		t.Errorf("expected a single delivery, got %d", got)
	}
}

func TestLinkForcedBusy(t *testing.T) {
	var m air
	m.jammed = true
	a := m.join(t, 1, 2, func(c *Config) { c.MAC.AccessTimeout = 500 * time.Millisecond })
	m.join(t, 2, 1)

	err := m.await(t, a.SendAsync(context.Background(), []byte("stuck")), 1000)
	var failure *TransmitFailure
	if !errors.As(err, &failure) || !errors.Is(err, ErrChannelAccess) {
		t.Fatalf("expected a channel access failure, got %v", err)
	}
	if m.carriers[0].emitted != 0 {
		t.Errorf("expected nothing emitted, got %d frames", m.carriers[0].emitted)
	}
}

func TestLinkBroadcast(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)
	b := m.join(t, 2, 1)
	c := m.join(t, 3, 1)

	if err := m.await(t, async.Promise(func() error {
		return a.SendTo(context.Background(), frame.Broadcast, []byte("all"))
	}), 1000); err != nil {
		t.Fatal(err)
	}
	m.ticks(50)

	for _, l := range []*Link{b, c} {
		p, err := l.ReceiveWithTimeout(time.Second)
		if err != nil || string(p.Payload) != "all" {
			t.Errorf("station %d: expected the broadcast, got %+v %v", l.Address, p, err)
		}
	}
	if m.carriers[1].emitted != 0 || m.carriers[2].emitted != 0 {
		t.Error("broadcast frames must not be acknowledged")
	}
}

func TestLinkIgnoresOtherDestinations(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)
	m.join(t, 2, 1)
	c := m.join(t, 3, 1)

	if err := m.await(t, a.SendAsync(context.Background(), []byte("private")), 1000); err != nil {
		t.Fatal(err)
	}
	if got := c.Stats.Received.Load(); got != 0 {
		t.Errorf("bystander accepted %d frames", got)
	}
}

func TestLinkPing(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)
	m.join(t, 2, 1)

	type pong struct {
		rtt time.Duration
		err error
	}
	res := async.Promise(func() pong {
		rtt, err := a.Ping(context.Background(), 2)
		return pong{rtt, err}
	})

	var r pong
	m.until(t, func() bool {
		select {
		case r = <-res:
			return true
		default:
			return false
		}
	}, 1000)
	if r.err != nil {
		t.Fatal(r.err)
	}
	// two frames of 100 ms each must fit in the round trip
	if r.rtt < 200*time.Millisecond || r.rtt > time.Second {
		t.Errorf("implausible round trip %v", r.rtt)
	}
}

func TestLinkBackpressure(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)
	b := m.join(t, 2, 1, func(c *Config) { c.ARQ.ReceiveBuffer = 1 })

	errc := async.Promise(func() error {
		if err := a.Send(context.Background(), []byte("one")); err != nil {
			return err
		}
		return a.Send(context.Background(), []byte("two"))
	})

	m.until(t, func() bool { return b.Stats.Overruns.Load() > 0 }, 2000)
	if p, err := b.Receive(); err != nil || string(p.Payload) != "one" {
		t.Fatalf("expected the first packet, got %+v %v", p, err)
	}

	if err := m.await(t, errc, 2000); err != nil {
		t.Fatal(err)
	}
	if p, err := b.ReceiveWithTimeout(time.Second); err != nil || string(p.Payload) != "two" {
		t.Fatalf("expected the second packet, got %+v %v", p, err)
	}
	if a.Stats.Retransmitted.Load() == 0 {
		t.Error("the refused frame should have been retransmitted")
	}
}

func TestLinkRejectsOversizedPayload(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)

	err := a.Send(context.Background(), bytes.Repeat([]byte{1}, a.Codec.MaxPayload()+1))
	if !errors.Is(err, frame.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestLinkCountsCorruptedFrames(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)

	a.Tick(airBlock, [][]byte{{1, 2, 3}, bytes.Repeat([]byte{0x55}, 40)})
	if got := a.Stats.Corrupted.Load(); got != 2 {
		t.Errorf("expected 2 corrupted frames, got %d", got)
	}
}

func TestLinkClosed(t *testing.T) {
	var m air
	a := m.join(t, 1, 2)
	a.Close()
	a.Close()

	if err := a.Send(context.Background(), []byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := a.Receive(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLinkCancel(t *testing.T) {
	var m air
	m.jammed = true
	a := m.join(t, 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	errc := a.SendAsync(ctx, []byte("never"))
	m.ticks(5)
	cancel()
	if err := m.await(t, errc, 100); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	m.jammed = false
	m.ticks(100)
	if m.carriers[0].emitted != 0 {
		t.Error("canceled frame was emitted")
	}
}

func TestLinkDuplicateIsAckedAgain(t *testing.T) {
	var m air
	r := m.join(t, 2, 1)

	raw, err := r.Codec.Encode(frame.Frame{
		Header:  frame.Header{Type: frame.TypeData, Flags: frame.FlagEOP, Src: 1, Dst: 2, Seq: 33},
		Payload: []byte("once"),
	})
	if err != nil {
		t.Fatal(err)
	}
	r.Tick(airBlock, [][]byte{raw})
	r.Tick(airBlock, [][]byte{raw})
	m.ticks(100)

	if got := r.Stats.Delivered.Load(); got != 1 {
		t.Errorf("expected a single delivery, got %d", got)
	}
	if got := r.Stats.Duplicates.Load(); got != 1 {
		t.Errorf("expected one duplicate, got %d", got)
	}
	if got := m.carriers[0].emitted; got != 2 {
		t.Errorf("expected an ack for each copy, got %d", got)
	}
}
