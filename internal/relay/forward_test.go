package relay_test

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/dantte-lp/relayd/internal/addr"
	"github.com/dantte-lp/relayd/internal/relay"
)

// dialPhone opens a UDP socket standing in for an external RTP endpoint,
// so the test can send into and receive out of the relay's bound sockets
// without needing a second relayd instance.
func dialPhone(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("dial phone: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSweepLearnsAndForwards(t *testing.T) {
	t.Parallel()

	bindAddr := netip.MustParseAddr("127.0.0.1")
	cfg := relay.Config{BindAddr: [2]netip.Addr{bindAddr}, PortMin: 31200, PortMax: 31260, MaxTTL: 5}
	tbl := relay.NewTable(cfg, testLogger(), nil)

	s := tbl.CreateSession("call-1", "tag-1", 0)
	if _, err := tbl.BindDirection(s, relay.DirCallee, bindAddr, false); err != nil {
		t.Fatalf("BindDirection callee: %v", err)
	}
	if _, err := tbl.BindDirection(s, relay.DirCaller, bindAddr, false); err != nil {
		t.Fatalf("BindDirection caller: %v", err)
	}

	phoneA := dialPhone(t) // stands in for the callee's far end
	phoneB := dialPhone(t) // stands in for the caller's far end

	phoneBAddr := addr.FromAddrPort(phoneB.LocalAddr().(*net.UDPAddr).AddrPort())
	tbl.SetRemote(s, relay.DirCaller, phoneBAddr)

	calleeAddr := s.Dir[relay.DirCallee].Local.AddrPort()
	payload := []byte("hello rtp")
	if _, err := phoneA.WriteToUDP(payload, net.UDPAddrFromAddrPort(calleeAddr)); err != nil {
		t.Fatalf("write to relay: %v", err)
	}

	// Give the datagram a moment to land, poll for readability as the
	// event loop does, then drive one sweep.
	time.Sleep(20 * time.Millisecond)
	if _, err := tbl.Poll().Wait(0); err != nil {
		t.Fatalf("poll: %v", err)
	}
	tbl.Sweep(time.Now())

	if s.Dir[relay.DirCallee].Remote.AddrPort() != phoneA.LocalAddr().(*net.UDPAddr).AddrPort() {
		t.Fatalf("callee remote not learned: got %v", s.Dir[relay.DirCallee].Remote)
	}
	if s.Counts[relay.CounterInCallee] != 1 {
		t.Fatalf("in0 counter = %d, want 1", s.Counts[relay.CounterInCallee])
	}
	if s.Counts[relay.CounterRelayed] != 1 {
		t.Fatalf("relayed counter = %d, want 1", s.Counts[relay.CounterRelayed])
	}
	if s.TTL != cfg.MaxTTL {
		t.Fatalf("TTL = %d, want refreshed to MaxTTL (%d)", s.TTL, cfg.MaxTTL)
	}

	_ = phoneB.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1500)
	n, _, err := phoneB.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("phoneB did not receive the forwarded packet: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("forwarded payload = %q, want %q", buf[:n], payload)
	}
}

func TestSweepSuppressesWithoutLearnedRemote(t *testing.T) {
	t.Parallel()

	bindAddr := netip.MustParseAddr("127.0.0.1")
	cfg := relay.Config{BindAddr: [2]netip.Addr{bindAddr}, PortMin: 31300, PortMax: 31360, MaxTTL: 5}
	tbl := relay.NewTable(cfg, testLogger(), nil)

	s := tbl.CreateSession("call-2", "tag-2", 0)
	if _, err := tbl.BindDirection(s, relay.DirCallee, bindAddr, false); err != nil {
		t.Fatalf("BindDirection callee: %v", err)
	}
	if _, err := tbl.BindDirection(s, relay.DirCaller, bindAddr, false); err != nil {
		t.Fatalf("BindDirection caller: %v", err)
	}

	phoneA := dialPhone(t)
	calleeAddr := s.Dir[relay.DirCallee].Local.AddrPort()
	if _, err := phoneA.WriteToUDP([]byte("no listener yet"), net.UDPAddrFromAddrPort(calleeAddr)); err != nil {
		t.Fatalf("write to relay: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := tbl.Poll().Wait(0); err != nil {
		t.Fatalf("poll: %v", err)
	}
	tbl.Sweep(time.Now())

	if s.Counts[relay.CounterRelayed] != 0 {
		t.Fatalf("relayed counter = %d, want 0 (caller remote never learned)", s.Counts[relay.CounterRelayed])
	}
	if s.Counts[relay.CounterDropped] != 1 {
		t.Fatalf("dropped counter = %d, want 1", s.Counts[relay.CounterDropped])
	}
}
