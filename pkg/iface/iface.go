package iface

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var ErrNotIP = errors.New("not an ip packet")

// Interface is a host network interface carrying raw IP packets.
type Interface interface {
	Open() error
	Close()
	Name() string
	Packets() <-chan gopacket.Packet
	Write(data []byte) error
}

func DecodeIPPacket(data []byte) (gopacket.Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrNotIP)
	}
	var layerType gopacket.LayerType
	switch data[0] >> 4 {
	case 4:
		layerType = layers.LayerTypeIPv4
	case 6:
		layerType = layers.LayerTypeIPv6
	default:
		return nil, fmt.Errorf("%w: version %d", ErrNotIP, data[0]>>4)
	}
	packet := gopacket.NewPacket(data, layerType, gopacket.Lazy)
	if err := packet.ErrorLayer(); err != nil {
		return nil, fmt.Errorf("decode %v: %w", layerType, err.Error())
	}
	return packet, nil
}

// Filter decides which packets cross the acoustic link.
type Filter func(packet gopacket.Packet) bool

// Forwardable lets through the traffic the link is meant for: ICMP echo,
// DNS and the transport protocols.
func Forwardable(packet gopacket.Packet) bool {
	for _, t := range []gopacket.LayerType{
		layers.LayerTypeICMPv4,
		layers.LayerTypeDNS,
		layers.LayerTypeTCP,
		layers.LayerTypeUDP,
	} {
		if packet.Layer(t) != nil {
			return true
		}
	}
	return false
}
