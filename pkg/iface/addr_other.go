//go:build !linux

package iface

import (
	"log/slog"
	"net/netip"
)

func configure(name string, prefix netip.Prefix, mtu int) error {
	slog.Warn("interface address must be set by hand on this platform", "iface", name, "prefix", prefix, "mtu", mtu)
	return nil
}
