package relay_test

import (
	"testing"

	"github.com/dantte-lp/relayd/internal/addr"
	"github.com/dantte-lp/relayd/internal/relay"
)

func TestAuthenticateLearnsUnsetRemote(t *testing.T) {
	t.Parallel()

	dir := &relay.SessionDir{}
	src, _ := addr.Parse("10.0.0.1", 30000, false)

	if got := relay.Authenticate(dir, src); got != relay.AuthLearn {
		t.Fatalf("Authenticate() = %v, want AuthLearn for an unset remote", got)
	}
}

func TestAuthenticateAcceptsMatchingSource(t *testing.T) {
	t.Parallel()

	remote, _ := addr.Parse("10.0.0.1", 30000, false)
	dir := &relay.SessionDir{Remote: remote}

	if got := relay.Authenticate(dir, remote); got != relay.AuthAccept {
		t.Fatalf("Authenticate() = %v, want AuthAccept", got)
	}
}

func TestAuthenticateDropsMismatchWhenLatched(t *testing.T) {
	t.Parallel()

	remote, _ := addr.Parse("10.0.0.1", 30000, false)
	other, _ := addr.Parse("10.0.0.2", 30000, false)
	dir := &relay.SessionDir{Remote: remote, CanUpdate: false}

	if got := relay.Authenticate(dir, other); got != relay.AuthDrop {
		t.Fatalf("Authenticate() = %v, want AuthDrop", got)
	}
}

func TestAuthenticateRelearnsWhenCanUpdate(t *testing.T) {
	t.Parallel()

	remote, _ := addr.Parse("10.0.0.1", 30000, false)
	other, _ := addr.Parse("10.0.0.2", 30000, false)
	dir := &relay.SessionDir{Remote: remote, CanUpdate: true}

	if got := relay.Authenticate(dir, other); got != relay.AuthLearn {
		t.Fatalf("Authenticate() = %v, want AuthLearn", got)
	}
}

func TestAuthenticateAsymmetricIgnoresPort(t *testing.T) {
	t.Parallel()

	remote, _ := addr.Parse("10.0.0.1", 30000, false)
	samehost, _ := addr.Parse("10.0.0.1", 40000, false)
	dir := &relay.SessionDir{Remote: remote, Asymmetric: true, CanUpdate: false}

	if got := relay.Authenticate(dir, samehost); got != relay.AuthAccept {
		t.Fatalf("Authenticate() = %v, want AuthAccept for same host, different port under asymmetric", got)
	}
}

func TestLearnLatchesCanUpdateClosed(t *testing.T) {
	t.Parallel()

	twin := &relay.Session{IsTwin: true, Primary: nil}
	s := &relay.Session{RTCP: twin}
	twin.Primary = s

	src, _ := addr.Parse("10.0.0.1", 30000, false)
	relay.Learn(s, relay.DirCallee, src)

	if s.Dir[relay.DirCallee].Remote != src {
		t.Fatalf("Learn did not record the source address")
	}
	if s.Dir[relay.DirCallee].CanUpdate {
		t.Fatal("Learn must latch CanUpdate closed")
	}
}

func TestLearnGuessesTwinRTCPPort(t *testing.T) {
	t.Parallel()

	twin := &relay.Session{IsTwin: true}
	s := &relay.Session{RTCP: twin}
	twin.Primary = s

	src, _ := addr.Parse("10.0.0.1", 30000, false)
	relay.Learn(s, relay.DirCallee, src)

	want, _ := addr.Parse("10.0.0.1", 30001, false)
	if twin.Dir[relay.DirCallee].Remote != want {
		t.Fatalf("twin remote = %v, want %v (RTP port + 1)", twin.Dir[relay.DirCallee].Remote, want)
	}
}

func TestLearnOnTwinDoesNotTouchPrimary(t *testing.T) {
	t.Parallel()

	primary := &relay.Session{}
	twin := &relay.Session{IsTwin: true, Primary: primary}
	primary.RTCP = twin

	src, _ := addr.Parse("10.0.0.1", 30001, false)
	relay.Learn(twin, relay.DirCallee, src)

	if primary.Dir[relay.DirCallee].Remote.IsValid() {
		t.Fatal("learning on the twin must not populate the primary's remote address")
	}
}
