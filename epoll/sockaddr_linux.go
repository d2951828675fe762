//go:build linux

package epoll

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// sockaddr resolves a host:port pair queued via QueueConnect into a
// unix.Sockaddr. Only literal IPv4/IPv6 addresses are supported; the
// runtime's AsyncIO contract does not perform DNS resolution.
func sockaddr(host string, port int) (unix.Sockaddr, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("epoll: connect: %q is not a literal IP address", host)
	}
	if v4 := ip.To4(); v4 != nil {
		return &unix.SockaddrInet4{Port: port, Addr: [4]byte{v4[0], v4[1], v4[2], v4[3]}}, nil
	}
	v6 := ip.To16()
	var addr [16]byte
	copy(addr[:], v6)
	return &unix.SockaddrInet6{Port: port, Addr: addr}, nil
}
