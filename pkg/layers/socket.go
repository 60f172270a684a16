package layers

import (
	"context"
	"sync"

	"Athernet/pkg/frame"
)

// Socket carries packets of any length over a link by splitting them into
// frames. The last fragment of each packet carries the EOP flag, and the
// fragments of one packet carry consecutive sequence numbers.
type Socket struct {
	link    *Link
	writeMu sync.Mutex
	partial map[frame.Address]*reassembly
}

type reassembly struct {
	data []byte
	next uint8 // sequence number the following fragment must carry
}

func NewSocket(l *Link) *Socket {
	return &Socket{link: l, partial: make(map[frame.Address]*reassembly)}
}

func (s *Socket) Link() *Link {
	return s.link
}

// WriteTo sends data to dst fragment by fragment, each acknowledged before
// the next is sent.
func (s *Socket) WriteTo(ctx context.Context, dst frame.Address, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	size := s.link.Codec.MaxPayload()
	for {
		n := min(len(data), size)
		var flags frame.Flags
		if n == len(data) {
			flags = frame.FlagEOP
		}
		if err := s.link.send(ctx, dst, flags, data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if flags&frame.FlagEOP != 0 {
			return nil
		}
	}
}

func (s *Socket) Write(ctx context.Context, data []byte) error {
	return s.WriteTo(ctx, s.link.Peer, data)
}

// ReadFrom returns the next complete packet and its source. A fragment that
// does not follow the previous one from the same source discards what was
// gathered so far. Not safe for concurrent use.
func (s *Socket) ReadFrom(ctx context.Context) ([]byte, frame.Address, error) {
	for {
		p, err := s.link.ReceiveContext(ctx)
		if err != nil {
			return nil, 0, err
		}
		r := s.partial[p.Src]
		if r != nil && r.next != p.Seq {
			s.link.Logger.Debug("dropping incomplete packet", "src", p.Src, "bytes", len(r.data), "seq", p.Seq)
			delete(s.partial, p.Src)
			r = nil
		}
		if p.Flags&frame.FlagEOP != 0 {
			delete(s.partial, p.Src)
			if r == nil {
				return p.Payload, p.Src, nil
			}
			return append(r.data, p.Payload...), p.Src, nil
		}
		if r == nil {
			r = &reassembly{}
			s.partial[p.Src] = r
		}
		r.data = append(r.data, p.Payload...)
		r.next = p.Seq + 1
	}
}
