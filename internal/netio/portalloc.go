//go:build linux

package netio

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrPortsExhausted indicates the configured port range was scanned once,
// end to end, without finding a free (RTP, RTCP) pair (spec.md section
// 4.1: "wrapping at port_max back to port_min exactly once; failure
// returns an error").
var ErrPortsExhausted = errors.New("netio: no free port pair in range")

// Allocator hands out even/odd RTP/RTCP socket pairs from a bounded port
// range, rotating a cursor per bind address so repeated allocations
// spread across the range instead of always retrying from port_min.
type Allocator struct {
	portMin, portMax uint16
	tos              int
	next             [2]uint16 // next_port[0], next_port[1]
}

// NewAllocator creates an Allocator over [portMin, portMax]. Both bounds
// must be even (spec.md invariant 2); the caller validates this at
// startup (internal/config).
func NewAllocator(portMin, portMax uint16, tos int) *Allocator {
	return &Allocator{
		portMin: portMin,
		portMax: portMax,
		tos:     tos,
		next:    [2]uint16{portMin, portMin},
	}
}

// Pair is a bound RTP/RTCP socket pair plus the chosen (even) RTP port.
type Pair struct {
	RTP, RTCP *Socket
	Port      uint16
}

// Allocate opens a non-blocking RTP socket at the next free even port on
// bindAddr and its RTCP twin at port+1, advancing the rotating cursor for
// bind-address slot j (0 or 1, selecting which of the two configured bind
// addresses this allocation is for -- see spec.md section 4.1).
func (a *Allocator) Allocate(bindAddr netip.Addr, j int) (Pair, error) {
	if j != 0 && j != 1 {
		return Pair{}, fmt.Errorf("netio: invalid bind slot %d", j)
	}

	start := a.next[j]
	if start < a.portMin || start > a.portMax {
		start = a.portMin
	}

	candidates := (a.portMax-a.portMin)/2 + 1
	port := start

	for range candidates {
		rtp, err := NewSocket(netip.AddrPortFrom(bindAddr, port), a.tos)
		if err == nil {
			rtcp, err2 := NewSocket(netip.AddrPortFrom(bindAddr, port+1), a.tos)
			if err2 == nil {
				a.next[j] = port + 2
				if a.next[j] > a.portMax {
					a.next[j] = a.portMin
				}
				return Pair{RTP: rtp, RTCP: rtcp, Port: port}, nil
			}
			_ = rtp.Close()
		}

		port += 2
		if port > a.portMax {
			port = a.portMin
		}
	}

	return Pair{}, ErrPortsExhausted
}
