package relay

import "time"

// RunPlayers implements process_rtp_servers (spec.md section 4.3):
// walk every session with an active player, pull datagrams due "now",
// and send them out that direction's own socket toward its remote.
// Exhausted players are detached; sessions with no player left in
// either direction are dropped from the rtp_servers list.
func (t *Table) RunPlayers(now time.Time) {
	for _, s := range t.rtpServers {
		for d := range 2 {
			dir := &s.Dir[d]
			if dir.Player == nil || !dir.Remote.IsValid() {
				continue
			}
			t.servePlayer(s, Direction(d), now)
		}
	}

	write := 0
	for _, s := range t.rtpServers {
		if s.HasPlayer() {
			t.rtpServers[write] = s
			s.rtpServerSlot = write
			write++
		} else {
			s.rtpServerSlot = -1
		}
	}
	t.rtpServers = t.rtpServers[:write]
}

// servePlayer drains dir's player until it reports RTPSLater, detaching
// it on RTPSEOF.
func (t *Table) servePlayer(s *Session, d Direction, now time.Time) {
	dir := &s.Dir[d]

	for {
		pkt, result := dir.Player.Next(now)
		switch result {
		case RTPSLater:
			return
		case RTPSEOF:
			_ = dir.Player.Close()
			dir.Player = nil
			return
		case RTPSData:
			t.send(s, dir, pkt)
		}
	}
}

// AttachPlayer installs src as direction d's synthetic source and enters
// s into the rtp_servers list.
func (t *Table) AttachPlayer(s *Session, d Direction, src PlaySource) {
	if s.Dir[d].Player != nil {
		_ = s.Dir[d].Player.Close()
	}
	s.Dir[d].Player = src
	t.addToRTPServers(s)
}

// DetachPlayer stops and removes direction d's synthetic source, if any.
func (t *Table) DetachPlayer(s *Session, d Direction) {
	if s.Dir[d].Player == nil {
		return
	}
	_ = s.Dir[d].Player.Close()
	s.Dir[d].Player = nil
	if !s.HasPlayer() {
		t.removeFromRTPServers(s)
	}
}
