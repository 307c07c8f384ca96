// Package addr parses and renders the host:port endpoints carried on the
// control wire and learned from media traffic. It is a thin, family-tagged
// wrapper over net/netip, used everywhere a session direction needs to
// remember "who it talks to" without repeatedly re-parsing strings.
package addr

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrEmptyHost indicates an address string had no host component.
var ErrEmptyHost = errors.New("addr: empty host")

// Endpoint is a resolved remote or local media address. V6 records whether
// the address was explicitly supplied (or learned) as IPv6 -- the control
// protocol's "6" modifier and reply suffix key off this, not off the
// address family netip would otherwise infer.
type Endpoint struct {
	IP   netip.Addr
	Port uint16
	V6   bool
}

// Parse builds an Endpoint from a host string and a port number, as used
// when decoding a "U"/"L" command's addr/port tokens. v6 (the "6"
// modifier) sets the V6 flag; the IP itself is stored unmapped, so
// SameHost and Equal compare it the same way with or without the flag.
func Parse(host string, port uint16, v6 bool) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, ErrEmptyHost
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("addr: parse host %q: %w", host, err)
	}

	return Endpoint{IP: ip.Unmap(), Port: port, V6: v6 || ip.Is6()}, nil
}

// FromAddrPort builds an Endpoint from a netip.AddrPort as returned by a
// socket read (the observed source of an inbound datagram).
func FromAddrPort(ap netip.AddrPort) Endpoint {
	ip := ap.Addr().Unmap()
	return Endpoint{IP: ip, Port: ap.Port(), V6: ip.Is6()}
}

// IsValid reports whether e holds a resolved address (the zero Endpoint
// represents "no remote learned yet").
func (e Endpoint) IsValid() bool {
	return e.IP.IsValid()
}

// AddrPort returns the netip.AddrPort view used for socket I/O.
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.IP, e.Port)
}

// SameHost reports whether e and other share the same IP, ignoring port.
// Used by the NAT learner's asymmetric-peer authenticity check.
func (e Endpoint) SameHost(other Endpoint) bool {
	return e.IP == other.IP
}

// Equal reports whether e and other are byte-equal, including port. Used
// by the learner's symmetric-peer authenticity check.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.IP == other.IP && e.Port == other.Port
}

// WithPort returns a copy of e with a different port -- used to guess an
// RTCP twin's remote address as "same host, RTP port + 1".
func (e Endpoint) WithPort(port uint16) Endpoint {
	e.Port = port
	return e
}

// String renders "ip:port", matching the reply format the control
// dispatcher writes back to the controller.
func (e Endpoint) String() string {
	if !e.IsValid() {
		return "<unset>"
	}
	return fmt.Sprintf("%s:%d", e.IP.String(), e.Port)
}
