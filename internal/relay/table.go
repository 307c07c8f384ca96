package relay

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/dantte-lp/relayd/internal/addr"
	"github.com/dantte-lp/relayd/internal/metrics"
	"github.com/dantte-lp/relayd/internal/netio"
)

// Config holds the relay engine's static, startup-resolved configuration
// (spec.md section 3 "Global state" and section 6 CLI flags).
type Config struct {
	BindAddr   [2]netip.Addr // lia[0], lia[1]; BindAddr[1] valid only when Bridging
	Bridging   bool          // bmode
	PortMin    uint16
	PortMax    uint16
	MaxTTL     int
	TOS        int
	DoubleSend bool // dmode: double-send packets below LBR_THRS
	RecordRTCP bool // rrtcp
}

// slotInfo is the back-reference for one poll descriptor slot: which
// session and which of its two directions owns the socket at that index.
type slotInfo struct {
	session *Session
	dir     Direction
}

// Table is the session registry: the poll descriptor set, the dense
// primary-session list used for control-plane lookups, and the
// rtp_servers[] list of sessions with an active synthetic source.
//
// Index 0 of the poll set is the control-channel pseudo-entry (spec.md
// section 3); Table writes it only in SetControlFd and skips it during
// compaction.
type Table struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector
	alloc   *netio.Allocator

	poll  *netio.PollSet
	slots []*slotInfo // index-aligned with poll; slots[0] is nil

	sessions   []*Session // primaries only, dense
	rtpServers []*Session // sessions with >=1 active player, dense
}

// NewTable creates an empty Table. The poll set, its slot list,
// sessions[], and rtp_servers[] are allocated at startup with room for
// (port_max - port_min + 1) * 2 + 1 entries (spec.md section 5).
func NewTable(cfg Config, logger *slog.Logger, mc *metrics.Collector) *Table {
	capacity := int(cfg.PortMax-cfg.PortMin+1)*2 + 1

	poll := netio.NewPollSet(capacity)
	poll.Append(-1) // index 0, control pseudo-entry; SetControlFd fills it in

	slots := make([]*slotInfo, 1, capacity)

	return &Table{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "relay.table")),
		metrics:    mc,
		alloc:      netio.NewAllocator(cfg.PortMin, cfg.PortMax, cfg.TOS),
		poll:       poll,
		slots:      slots,
		sessions:   make([]*Session, 0, capacity),
		rtpServers: make([]*Session, 0, capacity),
	}
}

// SetControlFd installs the control transport's descriptor at poll index 0.
func (t *Table) SetControlFd(fd int) {
	t.poll.Set(0, fd)
}

// Poll returns the shared poll descriptor set, for the event loop's
// Wait() call.
func (t *Table) Poll() *netio.PollSet {
	return t.poll
}

// NumSlots reports the current poll set size, including holes awaiting
// compaction.
func (t *Table) NumSlots() int {
	return t.poll.Len()
}

// SlotSession returns the session and direction owning poll index i, or
// (nil, 0) for a hole or the reserved index 0.
func (t *Table) SlotSession(i int) (*Session, Direction) {
	info := t.slots[i]
	if info == nil {
		return nil, 0
	}
	return info.session, info.dir
}

// Sessions returns the live primary sessions, for the TTL reaper and the
// "I" info dump.
func (t *Table) Sessions() []*Session {
	return t.sessions
}

// RTPServers returns the sessions with an active synthetic source, for
// the player scheduler.
func (t *Table) RTPServers() []*Session {
	return t.rtpServers
}

// bindAddrSlot resolves spec.md section 4.1's "j = (bind_addr[0] ==
// local_addr) ? 0 : 1" for the allocator's rotating cursor.
func (t *Table) bindAddrSlot(bindAddr netip.Addr) int {
	if t.cfg.Bridging && bindAddr == t.cfg.BindAddr[1] {
		return 1
	}
	return 0
}

// bindSlot registers sock as direction dir's socket on session s and
// appends a new poll descriptor slot for it.
func (t *Table) bindSlot(s *Session, dir Direction, sock *netio.Socket, local addr.Endpoint, asymmetric bool) {
	idx := t.poll.Append(sock.Fd())
	t.slots = append(t.slots, &slotInfo{session: s, dir: dir})
	s.Dir[dir].slot = idx
	s.Dir[dir].Socket = sock
	s.Dir[dir].Local = local
	s.Dir[dir].Asymmetric = asymmetric
	s.Dir[dir].CanUpdate = true
}

// CreateSession allocates a new primary session and its RTCP twin,
// entering the primary into the logical session list. Neither direction
// is bound to a socket yet; BindDirection does that.
func (t *Table) CreateSession(callID, fromTag string, mediaNum int) *Session {
	twin := &Session{
		CallID:        callID,
		FromTag:       fromTag,
		MediaNum:      mediaNum,
		IsTwin:        true,
		TTL:           -1,
		rtpServerSlot: -1,
	}
	primary := &Session{
		CallID:        callID,
		FromTag:       fromTag,
		MediaNum:      mediaNum,
		TTL:           t.cfg.MaxTTL,
		RTCP:          twin,
		rtpServerSlot: -1,
	}
	twin.Primary = primary

	t.sessions = append(t.sessions, primary)
	if t.metrics != nil {
		t.metrics.SessionCreated()
	}

	return primary
}

// BindDirection allocates an RTP/RTCP socket pair on bindAddr for
// direction dir of s, unless that direction is already bound (idempotent
// re-request, spec.md section 4.1's find-or-create). Returns the chosen
// RTP port.
func (t *Table) BindDirection(s *Session, dir Direction, bindAddr netip.Addr, asymmetric bool) (uint16, error) {
	if s.Dir[dir].bound() {
		return s.Dir[dir].Local.Port, nil
	}

	pair, err := t.alloc.Allocate(bindAddr, t.bindAddrSlot(bindAddr))
	if err != nil {
		return 0, fmt.Errorf("relay: bind direction: %w", err)
	}

	t.bindSlot(s, dir, pair.RTP, addr.Endpoint{IP: bindAddr, Port: pair.Port}, asymmetric)
	t.bindSlot(s.RTCP, dir, pair.RTCP, addr.Endpoint{IP: bindAddr, Port: pair.Port + 1}, asymmetric)

	return pair.Port, nil
}

// SetRemote records a controller-supplied remote address for direction
// dir, setting CanUpdate to NOT(asymmetric) per spec.md section 3.
func (t *Table) SetRemote(s *Session, dir Direction, remote addr.Endpoint) {
	s.Dir[dir].Remote = remote
	s.Dir[dir].CanUpdate = !s.Dir[dir].Asymmetric
}

// FindByCallID returns the primary sessions sharing callID.
func (t *Table) FindByCallID(callID string) []*Session {
	var out []*Session
	for _, s := range t.sessions {
		if s.CallID == callID {
			out = append(out, s)
		}
	}
	return out
}

// FindByTag scans the primaries for callID and matches tag against the
// stored FromTag, then ToTag, returning the first hit along with which
// side matched and the parsed medianum (spec.md section 4.1: "Lookups
// also accept a to_tag for the reverse direction"). prefix reports
// whether the match was a "<tag>;<digits>" prefix match rather than
// exact, which callers use to decide whether to keep scanning for
// sibling media streams sharing the same tag prefix.
func (t *Table) FindByTag(callID, tag string) (s *Session, matchedDir Direction, medianum int, found, prefix bool) {
	for _, cand := range t.sessions {
		if cand.CallID != callID {
			continue
		}
		if m, n := compareSessionTags(cand.FromTag, tag); m != tagNoMatch {
			return cand, DirCallee, n, true, m == tagPrefix
		}
		if cand.ToTag != "" {
			if m, n := compareSessionTags(cand.ToTag, tag); m != tagNoMatch {
				return cand, DirCaller, n, true, m == tagPrefix
			}
		}
	}
	return nil, 0, 0, false, false
}

// FindAllByTagPrefix returns every primary session sharing callID whose
// FromTag or ToTag is an exact or prefix match for tag -- used by D's
// "delete all media streams sharing the tag prefix" semantics (spec.md
// section 4.1).
func (t *Table) FindAllByTagPrefix(callID, tag string) []*Session {
	var out []*Session
	for _, cand := range t.sessions {
		if cand.CallID != callID {
			continue
		}
		if m, _ := compareSessionTags(cand.FromTag, tag); m != tagNoMatch {
			out = append(out, cand)
			continue
		}
		if cand.ToTag != "" {
			if m, _ := compareSessionTags(cand.ToTag, tag); m != tagNoMatch {
				out = append(out, cand)
			}
		}
	}
	return out
}

// Destroy tears a session (and its twin) down: closes sockets, players,
// recorders, and resizers, marks the vacated poll slots as holes for the
// next forwarder sweep to compact, and removes the session from the
// logical lists. reason is logged at info level with the final counters
// (spec.md section 3 "Lifecycle").
func (t *Table) Destroy(s *Session, reason string) {
	if s.IsTwin {
		s = s.Primary
	}

	t.logger.Info("session destroyed",
		slog.String("call_id", s.CallID),
		slog.String("from_tag", s.FromTag),
		slog.String("reason", reason),
		slog.Uint64("in0", s.Counts[CounterInCallee]),
		slog.Uint64("in1", s.Counts[CounterInCaller]),
		slog.Uint64("relayed", s.Counts[CounterRelayed]),
		slog.Uint64("dropped", s.Counts[CounterDropped]),
	)

	t.detachAll(s)
	t.detachAll(s.RTCP)
	t.removeFromRTPServers(s)

	for i, cand := range t.sessions {
		if cand == s {
			t.sessions[i] = t.sessions[len(t.sessions)-1]
			t.sessions = t.sessions[:len(t.sessions)-1]
			break
		}
	}

	if t.metrics != nil {
		t.metrics.SessionDestroyed()
	}
}

// detachAll closes a session's (primary or twin) bound sockets, players,
// recorders, and resizers, and marks its poll slots as holes.
func (t *Table) detachAll(s *Session) {
	for d := range 2 {
		dir := &s.Dir[d]
		if dir.Player != nil {
			_ = dir.Player.Close()
			dir.Player = nil
		}
		if dir.Recorder != nil {
			_ = dir.Recorder.Close()
			dir.Recorder = nil
		}
		dir.Resizer = nil

		if dir.bound() {
			_ = dir.Socket.Close()
			t.poll.Clear(dir.slot)
			t.slots[dir.slot] = nil
			dir.Socket = nil
			dir.slot = -1
		}
	}
}

// CompactHoles shifts surviving poll-set entries over holes left by
// Destroy, shrinking the poll set. This is the forwarder sweep's
// compaction step (spec.md section 4.5 step 5); it is never done eagerly
// at Destroy time.
func (t *Table) CompactHoles() {
	write := 1
	for read := 1; read < len(t.slots); read++ {
		if t.slots[read] == nil {
			continue
		}
		if write != read {
			t.slots[write] = t.slots[read]
			t.poll.Set(write, t.poll.Fd(read))
			t.slots[write].session.Dir[t.slots[write].dir].slot = write
		}
		write++
	}
	t.slots = t.slots[:write]
	t.poll.Truncate(write)
}

// removeFromRTPServers drops s from the rtp_servers[] list, if present.
func (t *Table) removeFromRTPServers(s *Session) {
	if s.rtpServerSlot < 0 {
		return
	}
	last := len(t.rtpServers) - 1
	idx := s.rtpServerSlot
	if idx != last {
		t.rtpServers[idx] = t.rtpServers[last]
		t.rtpServers[idx].rtpServerSlot = idx
	}
	t.rtpServers = t.rtpServers[:last]
	s.rtpServerSlot = -1
}

// addToRTPServers enters s into the rtp_servers[] list if it is not
// already present (spec.md invariant 4).
func (t *Table) addToRTPServers(s *Session) {
	if s.rtpServerSlot >= 0 {
		return
	}
	s.rtpServerSlot = len(t.rtpServers)
	t.rtpServers = append(t.rtpServers, s)
}
