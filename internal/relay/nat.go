package relay

import "github.com/dantte-lp/relayd/internal/addr"

// AuthVerdict is the outcome of the authenticity check (spec.md section
// 4.2 step 1).
type AuthVerdict int

const (
	// AuthAccept means the packet's source matches the latched remote
	// address; forward without relearning.
	AuthAccept AuthVerdict = iota
	// AuthLearn means the remote address is unset, or can_update allows
	// this source to replace it; forward and relearn.
	AuthLearn
	// AuthDrop means the source does not match and can_update is
	// latched closed; drop without forwarding.
	AuthDrop
)

// Authenticate applies spec.md section 4.2 step 1 to an inbound packet
// from src on direction dir.
func Authenticate(dir *SessionDir, src addr.Endpoint) AuthVerdict {
	if !dir.Remote.IsValid() {
		return AuthLearn
	}

	var matches bool
	if dir.Asymmetric {
		matches = dir.Remote.SameHost(src)
	} else {
		matches = dir.Remote.Equal(src)
	}
	if matches {
		return AuthAccept
	}
	if dir.CanUpdate {
		return AuthLearn
	}
	return AuthDrop
}

// Learn records src as direction dir's remote address and latches
// can_update closed (spec.md section 4.2 step 2). When dir belongs to an
// RTP session, it also guesses the RTCP twin's remote address as the
// same host, RTP port + 1, unless the twin already agrees.
func Learn(s *Session, d Direction, src addr.Endpoint) {
	dir := &s.Dir[d]
	dir.Remote = src
	dir.CanUpdate = false

	if s.IsTwin {
		return
	}

	twinDir := &s.RTCP.Dir[d]
	guess := src.WithPort(src.Port + 1)
	if twinDir.Remote.IsValid() && twinDir.Remote.Equal(guess) {
		return
	}

	twinDir.Remote = guess
	twinDir.CanUpdate = !twinDir.Asymmetric
}
