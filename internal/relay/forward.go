package relay

import (
	"errors"
	"time"

	"github.com/dantte-lp/relayd/internal/addr"
	"github.com/dantte-lp/relayd/internal/netio"
)

const (
	// drainLimit caps packets read per descriptor per sweep (spec.md
	// section 4.2: "drain up to 5 packets").
	drainLimit = 5

	// lbrThreshold is LBR_THRS: packets smaller than this are sent
	// twice when dmode is enabled.
	lbrThreshold = 80

	maxDatagram = 1500
)

// Sweep drains every readable poll slot, forwards the packets it finds,
// and compacts holes left by any session that was destroyed while being
// drained. This is the event loop's step 5 (spec.md section 4.5).
func (t *Table) Sweep(now time.Time) {
	n := t.poll.Len()
	for i := 1; i < n; i++ {
		if !t.poll.Readable(i) {
			continue
		}
		if t.slots[i] == nil {
			continue
		}
		t.drain(i, now)
	}
	t.CompactHoles()
}

// drain reads up to drainLimit packets from the socket owning poll index
// i and forwards each. It stops early if the session is destroyed mid-
// drain, since the session pointer is no longer valid afterward (spec.md
// section 5: "the forwarder breaks its drain loop after removing the
// session it was draining").
func (t *Table) drain(i int, now time.Time) {
	var buf [maxDatagram]byte

	for range drainLimit {
		info := t.slots[i]
		if info == nil {
			return
		}
		s, d := info.session, info.dir

		sock := s.Dir[d].Socket
		n, from, err := sock.RecvFrom(buf[:])
		if err != nil {
			if errors.Is(err, netio.ErrWouldBlock) {
				return
			}
			t.logger.Error("recvfrom failed", "call_id", s.CallID, "err", err)
			return
		}

		if removed := t.forwardOne(s, d, addr.FromAddrPort(from), buf[:n], now); removed {
			return
		}
	}
}

// forwardOne implements spec.md section 4.2's five-step per-packet
// pipeline. It returns true if forwarding this packet caused the owning
// session to be destroyed, signaling the caller to stop draining it.
func (t *Table) forwardOne(s *Session, d Direction, src addr.Endpoint, pkt []byte, now time.Time) bool {
	dir := &s.Dir[d]

	switch Authenticate(dir, src) {
	case AuthDrop:
		s.Counts[CounterDropped]++
		if t.metrics != nil {
			t.metrics.PacketDropped()
		}
		return false
	case AuthLearn:
		Learn(s, d, src)
	case AuthAccept:
	}

	s.Counts[inCounter(d)]++
	t.primaryOf(s).TTL = t.cfg.MaxTTL
	if t.metrics != nil {
		t.metrics.PacketIn(d)
	}

	out := d.Other()
	outDir := &s.Dir[out]
	suppressed := !outDir.Remote.IsValid() || outDir.hasPlayer()

	if dir.Recorder != nil && !outDir.hasPlayer() {
		if err := dir.Recorder.Write(d, pkt); err != nil {
			t.logger.Warn("recorder write failed", "call_id", s.CallID, "err", err)
		}
	}

	if suppressed {
		s.Counts[CounterDropped]++
		if t.metrics != nil {
			t.metrics.PacketDropped()
		}
		return false
	}

	payloads := [][]byte{pkt}
	if dir.Resizer != nil && dir.Resizer.OutputSamples() > 0 {
		reframed, err := dir.Resizer.Push(pkt)
		if err != nil {
			t.logger.Warn("resizer push failed", "call_id", s.CallID, "err", err)
			return false
		}
		payloads = reframed
	}

	for _, p := range payloads {
		t.send(s, outDir, p)
		s.Counts[CounterRelayed]++
		if t.metrics != nil {
			t.metrics.PacketRelayed()
		}
	}

	return false
}

// send writes p to outDir's remote address, double-sending small packets
// when dmode is enabled (spec.md section 4.2 step 3). Send errors are
// intentionally not propagated: UDP media is lossy by design.
func (t *Table) send(s *Session, outDir *SessionDir, p []byte) {
	if err := outDir.Socket.SendTo(p, outDir.Remote.AddrPort()); err != nil {
		t.logger.Debug("sendto failed", "call_id", s.CallID, "err", err)
		return
	}
	if t.cfg.DoubleSend && len(p) < lbrThreshold {
		_ = outDir.Socket.SendTo(p, outDir.Remote.AddrPort())
	}
}

func (t *Table) primaryOf(s *Session) *Session {
	if s.IsTwin {
		return s.Primary
	}
	return s
}

func inCounter(d Direction) Counter {
	if d == DirCallee {
		return CounterInCallee
	}
	return CounterInCaller
}
