package iface

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/gopacket"

	"Athernet/pkg/frame"
)

// Conn is the packet service of the acoustic link.
type Conn interface {
	WriteTo(ctx context.Context, dst frame.Address, data []byte) error
	ReadFrom(ctx context.Context) ([]byte, frame.Address, error)
}

// Bridge forwards IP packets between a host interface and the acoustic link.
type Bridge struct {
	Interface Interface
	Conn      Conn
	Peer      frame.Address
	Filter    Filter // nil forwards everything
	Logger    *slog.Logger
}

func (b *Bridge) allowed(packet gopacket.Packet) bool {
	return b.Filter == nil || b.Filter(packet)
}

// Run pumps packets both ways until ctx is done or either side fails.
func (b *Bridge) Run(ctx context.Context) error {
	if b.Logger == nil {
		b.Logger = slog.Default()
	}
	logger := b.Logger.With("layer", "bridge", "iface", b.Interface.Name())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 2)

	go func() {
		errc <- b.outbound(ctx, logger)
	}()
	go func() {
		errc <- b.inbound(ctx, logger)
	}()

	err := <-errc
	cancel()
	<-errc
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bridge) outbound(ctx context.Context, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-b.Interface.Packets():
			if !ok {
				return errors.New("interface closed")
			}
			if !b.allowed(packet) {
				continue
			}
			logger.Debug("outbound", "packet", packet.String())
			if err := b.Conn.WriteTo(ctx, b.Peer, packet.Data()); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// a lost packet is for the transport above to recover
				logger.Warn("send failed", "error", err)
			}
		}
	}
}

func (b *Bridge) inbound(ctx context.Context, logger *slog.Logger) error {
	for {
		data, src, err := b.Conn.ReadFrom(ctx)
		if err != nil {
			return err
		}
		packet, err := DecodeIPPacket(data)
		if err != nil {
			logger.Debug("dropping inbound", "src", src, "error", err)
			continue
		}
		if !b.allowed(packet) {
			continue
		}
		logger.Debug("inbound", "src", src, "packet", packet.String())
		if err := b.Interface.Write(data); err != nil {
			return err
		}
	}
}
