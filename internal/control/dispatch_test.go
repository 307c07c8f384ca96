package control_test

import (
	"io"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"testing"

	"github.com/dantte-lp/relayd/internal/control"
	"github.com/dantte-lp/relayd/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(t *testing.T, portMin, portMax uint16) (*control.Dispatcher, *relay.Table) {
	t.Helper()
	bindAddr := netip.MustParseAddr("127.0.0.1")

	tbl := relay.NewTable(relay.Config{
		BindAddr: [2]netip.Addr{bindAddr},
		PortMin:  portMin,
		PortMax:  portMax,
		MaxTTL:   30,
	}, testLogger(), nil)

	d := control.NewDispatcher(tbl, control.Config{
		BindAddr: [2]netip.Addr{bindAddr},
	}, testLogger(), nil)

	return d, tbl
}

func TestExecuteUpdateCreatesSession(t *testing.T) {
	t.Parallel()

	d, tbl := newDispatcher(t, 31400, 31460)

	reply := d.Execute("U call-1 10.0.0.1 30000 tag-1")
	if strings.HasPrefix(reply, "E") {
		t.Fatalf("U returned an error reply: %s", reply)
	}
	if _, err := strconv.ParseUint(reply, 10, 16); err != nil {
		t.Fatalf("U reply %q is not a bare port number: %v", reply, err)
	}
	if len(tbl.Sessions()) != 1 {
		t.Fatalf("Sessions() = %d, want 1 after U", len(tbl.Sessions()))
	}
}

func TestExecuteUpdateIsIdempotentForTheSameLeg(t *testing.T) {
	t.Parallel()

	d, tbl := newDispatcher(t, 31500, 31560)

	first := d.Execute("U call-1 10.0.0.1 30000 tag-1")
	second := d.Execute("U call-1 10.0.0.1 30002 tag-1")

	if first != second {
		t.Fatalf("repeated U for the same leg returned different ports: %q vs %q", first, second)
	}
	if len(tbl.Sessions()) != 1 {
		t.Fatalf("Sessions() = %d, want 1 (U must find, not recreate)", len(tbl.Sessions()))
	}
}

func TestExecuteLookupMissingSessionReturnsZero(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, 31600, 31660)

	reply := d.Execute("L call-1 10.0.0.1 30000 tag-1 tag-2")
	if reply != "0" {
		t.Fatalf("L for a missing session = %q, want \"0\"", reply)
	}
}

func TestExecuteDeleteTearsDownSession(t *testing.T) {
	t.Parallel()

	d, tbl := newDispatcher(t, 31700, 31760)

	d.Execute("U call-1 10.0.0.1 30000 tag-1")
	reply := d.Execute("D call-1 tag-1")

	if reply != "0" {
		t.Fatalf("D reply = %q, want \"0\"", reply)
	}
	if len(tbl.Sessions()) != 0 {
		t.Fatalf("Sessions() = %d, want 0 after D", len(tbl.Sessions()))
	}
}

func TestExecuteDeleteUnknownSessionIsError(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, 31800, 31860)

	reply := d.Execute("D call-404 tag-404")
	if reply != "E8" {
		t.Fatalf("D on an unknown session = %q, want E8 (ECNotFound)", reply)
	}
}

func TestExecuteUnknownVerbIsSyntaxError(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, 31900, 31960)

	reply := d.Execute("Z bogus")
	if reply != "E3" {
		t.Fatalf("unknown verb reply = %q, want E3 (ECUnknownVerb)", reply)
	}
}

func TestExecuteMalformedLineIsSyntaxError(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, 32000, 32060)

	if reply := d.Execute("   "); reply != "E1" {
		t.Fatalf("blank line reply = %q, want E1 (ECSyntax)", reply)
	}
}

func TestExecuteVersionReportsProtocol(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, 32100, 32160)

	reply := d.Execute("V")
	if reply != "1" {
		t.Fatalf("V reply = %q, want \"1\"", reply)
	}
}

func TestExecuteInfoReportsSessionCount(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, 32200, 32260)

	d.Execute("U call-1 10.0.0.1 30000 tag-1")
	reply := d.Execute("I")

	if !strings.HasPrefix(reply, "1\n") {
		t.Fatalf("I reply = %q, want a leading session count of 1", reply)
	}
	if !strings.Contains(reply, "call-1") {
		t.Fatalf("I reply %q does not mention the session's call-id", reply)
	}
}

func TestExecuteRejectsNewSessionsWhileDraining(t *testing.T) {
	t.Parallel()

	d, tbl := newDispatcher(t, 32300, 32360)
	d.SetDraining(true)

	reply := d.Execute("U call-1 10.0.0.1 30000 tag-1")
	if reply != "E9" {
		t.Fatalf("U while draining = %q, want E9 (ECShuttingDown)", reply)
	}
	if len(tbl.Sessions()) != 0 {
		t.Fatal("U must not create a session while draining")
	}
}

func TestExecuteStillAllowsDeleteWhileDraining(t *testing.T) {
	t.Parallel()

	d, _ := newDispatcher(t, 32400, 32460)

	d.Execute("U call-1 10.0.0.1 30000 tag-1")
	d.SetDraining(true)

	reply := d.Execute("D call-1 tag-1")
	if reply != "0" {
		t.Fatalf("D while draining = %q, want \"0\" (D must still work)", reply)
	}
}
