package iface

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// configure assigns the address and MTU of an interface and brings it up.
func configure(name string, prefix netip.Prefix, mtu int) error {
	if !prefix.Addr().Is4() {
		return fmt.Errorf("only ipv4 prefixes are supported, got %v", prefix)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	ioctl := func(what string, req uint, set func(*unix.Ifreq) error) error {
		ifr, err := unix.NewIfreq(name)
		if err != nil {
			return err
		}
		if set != nil {
			if err := set(ifr); err != nil {
				return err
			}
		}
		if err := unix.IoctlIfreq(fd, req, ifr); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		return nil
	}

	addr := prefix.Addr().AsSlice()
	mask := net.CIDRMask(prefix.Bits(), 32)
	if err := ioctl("set address", unix.SIOCSIFADDR, func(ifr *unix.Ifreq) error {
		return ifr.SetInet4Addr(addr)
	}); err != nil {
		return err
	}
	if err := ioctl("set netmask", unix.SIOCSIFNETMASK, func(ifr *unix.Ifreq) error {
		return ifr.SetInet4Addr(mask)
	}); err != nil {
		return err
	}
	if mtu > 0 {
		if err := ioctl("set mtu", unix.SIOCSIFMTU, func(ifr *unix.Ifreq) error {
			ifr.SetUint32(uint32(mtu))
			return nil
		}); err != nil {
			return err
		}
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return fmt.Errorf("get flags: %w", err)
	}
	ifr.SetUint16(ifr.Uint16() | unix.IFF_UP | unix.IFF_RUNNING)
	if err := unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr); err != nil {
		return fmt.Errorf("set flags: %w", err)
	}
	return nil
}
