package layers

import (
	"sync"

	"golang.org/x/exp/rand"

	"Athernet/pkg/frame"
)

// DedupSet remembers the most recent sequence numbers accepted from one peer.
type DedupSet struct {
	ring []uint8
	seen [256]bool
	head int
	size int
}

func NewDedupSet(capacity int) *DedupSet {
	return &DedupSet{ring: make([]uint8, capacity)}
}

func (d *DedupSet) Contains(seq uint8) bool {
	return d.seen[seq]
}

// Add records seq, evicting the oldest entry when full. It reports whether
// seq was new.
func (d *DedupSet) Add(seq uint8) bool {
	if d.seen[seq] {
		return false
	}
	if d.size == len(d.ring) {
		d.seen[d.ring[d.head]] = false
	} else {
		d.size++
	}
	d.ring[d.head] = seq
	d.seen[seq] = true
	d.head = (d.head + 1) % len(d.ring)
	return true
}

func (d *DedupSet) Len() int {
	return d.size
}

// ARQ is the stop-and-wait reliability policy: sequence numbering, the
// retransmission budget, and duplicate suppression per peer.
type ARQ struct {
	Address       frame.Address
	MaxRetries    int
	DedupCapacity int
	Rand          *rand.Rand // nil uses the global source
	Stats         *Stats

	once  sync.Once
	seq   uint8
	peers map[frame.Address]*DedupSet
}

func (a *ARQ) init() {
	if a.Stats == nil {
		a.Stats = &Stats{}
	}
	if a.DedupCapacity <= 0 {
		a.DedupCapacity = 16
	}
	a.peers = make(map[frame.Address]*DedupSet)
	if a.Rand == nil {
		a.seq = uint8(rand.Intn(256))
	} else {
		a.seq = uint8(a.Rand.Intn(256))
	}
}

// NextSeq numbers the next data frame. The first number is random so a
// restarted node is not mistaken for a duplicate.
func (a *ARQ) NextSeq() uint8 {
	a.once.Do(a.init)
	seq := a.seq
	a.seq++
	return seq
}

// Retry implements RetryPolicy.
func (a *ARQ) Retry(p *Pending) bool {
	a.once.Do(a.init)
	if p.retries >= a.MaxRetries {
		return false
	}
	p.retries++
	a.Stats.Retransmitted.Add(1)
	return true
}

func (a *ARQ) Seen(src frame.Address, seq uint8) bool {
	a.once.Do(a.init)
	d, ok := a.peers[src]
	return ok && d.Contains(seq)
}

// Record marks (src, seq) as delivered and reports whether it was new.
func (a *ARQ) Record(src frame.Address, seq uint8) bool {
	a.once.Do(a.init)
	d, ok := a.peers[src]
	if !ok {
		d = NewDedupSet(a.DedupCapacity)
		a.peers[src] = d
	}
	return d.Add(seq)
}

// AckFor builds the acknowledgment of a received data frame.
func (a *ARQ) AckFor(f frame.Frame) frame.Frame {
	return frame.Frame{
		Header: frame.Header{
			Type: frame.TypeAck,
			Src:  a.Address,
			Dst:  f.Src,
			Seq:  f.Seq,
		},
	}
}

// Accept applies the receive rules to a data frame addressed to this node.
// full reports that the upward buffer has no room. A frame refused for lack
// of room is neither acknowledged nor recorded, so the sender retransmits it.
func (a *ARQ) Accept(f frame.Frame, full bool) (ack bool, deliver bool) {
	a.once.Do(a.init)
	unicast := f.Dst != frame.Broadcast
	if a.Seen(f.Src, f.Seq) {
		a.Stats.Duplicates.Add(1)
		return unicast, false
	}
	if full {
		a.Stats.Overruns.Add(1)
		return false, false
	}
	a.Record(f.Src, f.Seq)
	return unicast, true
}
