package controller

import (
	"context"
	"net"
)

// InterfaceMonitor treats the network as associated once any non-loopback
// interface is up and has an address.
type InterfaceMonitor struct{}

func (InterfaceMonitor) Associated(ctx context.Context) bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}
