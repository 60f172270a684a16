package iface

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/songgao/water"
)

const frameSize = 1600

// TUN is a layer 3 virtual interface.
type TUN struct {
	Prefix netip.Prefix // address and netmask of the interface
	MTU    int
	Logger *slog.Logger

	iface   *water.Interface
	packets chan gopacket.Packet
}

func OpenTUN(prefix netip.Prefix, mtu int, logger *slog.Logger) (*TUN, error) {
	t := &TUN{Prefix: prefix, MTU: mtu, Logger: logger}
	return t, t.Open()
}

func (t *TUN) Open() (err error) {
	if t.Logger == nil {
		t.Logger = slog.Default()
	}
	if t.iface, err = water.New(water.Config{DeviceType: water.TUN}); err != nil {
		return fmt.Errorf("create tun: %w", err)
	}
	t.Logger = t.Logger.With("iface", t.iface.Name())
	if err = configure(t.iface.Name(), t.Prefix, t.MTU); err != nil {
		t.iface.Close()
		return fmt.Errorf("configure %s: %w", t.iface.Name(), err)
	}

	t.packets = make(chan gopacket.Packet, 16)
	go func() {
		defer close(t.packets)
		buf := make([]byte, frameSize)
		for {
			n, err := t.iface.Read(buf)
			if err != nil {
				t.Logger.Debug("tun read stopped", "error", err)
				return
			}
			packet, err := DecodeIPPacket(append([]byte(nil), buf[:n]...))
			if err != nil {
				t.Logger.Debug("dropping packet", "error", err)
				continue
			}
			t.packets <- packet
		}
	}()
	return nil
}

func (t *TUN) Close() {
	t.iface.Close()
}

func (t *TUN) Name() string {
	return t.iface.Name()
}

func (t *TUN) Packets() <-chan gopacket.Packet {
	return t.packets
}

func (t *TUN) Write(data []byte) error {
	_, err := t.iface.Write(data)
	return err
}
