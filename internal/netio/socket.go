//go:build linux

package netio

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock indicates a non-blocking socket had nothing to read
// (EAGAIN/EWOULDBLOCK). Callers treat this exactly like "no data yet".
var ErrWouldBlock = errors.New("netio: would block")

// Socket is a non-blocking UDP socket bound to a single local address.
// It is the unit of I/O the event loop polls and the forwarder reads
// and writes; there is deliberately no buffering or goroutine behind it.
type Socket struct {
	fd     int
	local  netip.AddrPort
	isIPv6 bool
}

// NewSocket creates, binds, and configures a non-blocking UDP socket on
// laddr. When laddr's address is IPv4 and tos is non-zero, IP_TOS is
// applied (spec.md section 3: "IP_TOS is applied to IPv4 sockets").
func NewSocket(laddr netip.AddrPort, tos int) (*Socket, error) {
	isIPv6 := laddr.Addr().Is6() && !laddr.Addr().Is4In6()

	domain := unix.AF_INET
	if isIPv6 {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("netio: socket: %w", err)
	}

	s := &Socket{fd: fd, local: laddr, isIPv6: isIPv6}

	if err := s.configure(tos); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := unix.Bind(fd, sockaddrFromAddrPort(laddr)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: bind %s: %w", laddr, err)
	}

	return s, nil
}

func (s *Socket) configure(tos int) error {
	if err := unix.SetNonblock(s.fd, true); err != nil {
		return fmt.Errorf("netio: set nonblock: %w", err)
	}

	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("netio: set SO_REUSEADDR: %w", err)
	}

	if !s.isIPv6 && tos != 0 {
		if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_TOS, tos); err != nil {
			return fmt.Errorf("netio: set IP_TOS: %w", err)
		}
	}

	return nil
}

// Fd returns the raw file descriptor, for use with a PollSet.
func (s *Socket) Fd() int {
	return s.fd
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() netip.AddrPort {
	return s.local
}

// RecvFrom reads one datagram into buf. Returns ErrWouldBlock when the
// socket is non-blocking and no datagram is pending -- the normal "drained
// the socket" signal in the forwarder's per-descriptor drain loop.
func (s *Socket) RecvFrom(buf []byte) (int, netip.AddrPort, error) {
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, netip.AddrPort{}, ErrWouldBlock
		}
		return 0, netip.AddrPort{}, fmt.Errorf("netio: recvfrom: %w", err)
	}

	src, ok := addrPortFromSockaddr(from)
	if !ok {
		return 0, netip.AddrPort{}, fmt.Errorf("netio: recvfrom: unsupported sockaddr type")
	}

	return n, src, nil
}

// SendTo writes one datagram to dst. Per spec.md section 5, media sendto
// errors (including EWOULDBLOCK and partial sends) are not propagated to
// the caller as fatal -- UDP is lossy by design and drops are accounted
// for by the forwarder's counters, not by this layer. The error is
// returned so callers that DO care (control-socket replies) can act on
// it; forwarding callers intentionally ignore it.
func (s *Socket) SendTo(buf []byte, dst netip.AddrPort) error {
	err := unix.Sendto(s.fd, buf, 0, sockaddrFromAddrPort(dst))
	if err != nil {
		return fmt.Errorf("netio: sendto %s: %w", dst, err)
	}
	return nil
}

// Close closes the underlying file descriptor.
func (s *Socket) Close() error {
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("netio: close: %w", err)
	}
	return nil
}

func sockaddrFromAddrPort(ap netip.AddrPort) unix.Sockaddr {
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		sa := &unix.SockaddrInet4{Port: int(ap.Port())}
		sa.Addr = ap.Addr().As4()
		return sa
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port())}
	sa.Addr = ap.Addr().As16()
	return sa
}

func addrPortFromSockaddr(sa unix.Sockaddr) (netip.AddrPort, bool) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port)), true
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port)), true
	default:
		return netip.AddrPort{}, false
	}
}
