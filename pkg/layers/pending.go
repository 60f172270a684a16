package layers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"Athernet/pkg/frame"
)

var (
	ErrRetriesExhausted = errors.New("no acknowledgment after all retransmissions")
	ErrChannelAccess    = errors.New("channel stayed busy")
	ErrClosed           = errors.New("link closed")
	ErrTimeout          = errors.New("receive timed out")
)

// TransmitFailure is the only link failure reported to senders.
type TransmitFailure struct {
	Seq      uint8
	Dst      frame.Address
	Attempts int
	Cause    error
}

func (e *TransmitFailure) Error() string {
	return fmt.Sprintf("transmit seq %d to %02x failed after %d attempts: %v", e.Seq, e.Dst, e.Attempts, e.Cause)
}

func (e *TransmitFailure) Unwrap() error {
	return e.Cause
}

// Pending is a frame waiting for the medium, in the air, or waiting for its
// acknowledgment. Only the scheduler touches it after submission.
type Pending struct {
	Frame frame.Frame

	raw       []byte // encoded once, retransmissions reuse it
	ctx       context.Context
	done      chan error
	urgent    bool // ACK and PONG skip the data queue and use the short gap
	expectAck bool

	started   bool  // admission began
	admitted  int64 // sample clock of the current admission attempt
	emittedAt int64
	attempts  int // consecutive contentions in the current admission
	retries   int
	acked     bool

	pong chan int64 // round trip in samples, for pings
}

func newPending(ctx context.Context, f frame.Frame) *Pending {
	return &Pending{
		Frame: f,
		ctx:   ctx,
		done:  make(chan error, 1),
	}
}

func (p *Pending) canceled() bool {
	return p.ctx != nil && p.ctx.Err() != nil
}

func (p *Pending) complete(err error) {
	select {
	case p.done <- err:
	default:
	}
}

// Stats counts link events. All fields are safe for concurrent reads.
type Stats struct {
	Sent          atomic.Int64 // frames emitted, retransmissions included
	Retransmitted atomic.Int64
	Backoffs      atomic.Int64
	Failed        atomic.Int64
	Received      atomic.Int64 // valid frames addressed to this node
	Delivered     atomic.Int64
	Duplicates    atomic.Int64
	Corrupted     atomic.Int64
	Overruns      atomic.Int64 // frames refused because the receive buffer was full
}
