package control

import (
	"errors"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/dantte-lp/relayd/internal/netio"
)

// UnixTransport serves the control protocol over a UNIX domain stream
// socket: each connection carries exactly one command and is closed
// after one reply (spec.md section 4.5 step 6: "accept each pending
// connection, handle one command, close").
type UnixTransport struct {
	listener   *netio.StreamListener
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewUnixTransport creates a UNIX stream control transport at path.
func NewUnixTransport(path string, d *Dispatcher, logger *slog.Logger) (*UnixTransport, error) {
	l, err := netio.NewStreamListener(path)
	if err != nil {
		return nil, err
	}
	return &UnixTransport{listener: l, dispatcher: d, logger: logger.With(slog.String("transport", "unix"))}, nil
}

// Fd returns the listening descriptor, for registration at poll index 0.
func (t *UnixTransport) Fd() int {
	return t.listener.Fd()
}

// Close closes the listener and unlinks the socket path.
func (t *UnixTransport) Close() error {
	return t.listener.Close()
}

// HandleReadable implements relay.ControlHandler: accept every pending
// connection, read its single command, reply, and close.
func (t *UnixTransport) HandleReadable() {
	for {
		fd, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, netio.ErrWouldBlock) {
				return
			}
			t.logger.Error("accept failed", "err", err)
			return
		}
		t.handleConn(fd)
	}
}

func (t *UnixTransport) handleConn(fd int) {
	defer func() { _ = netio.CloseConn(fd) }()

	var buf [2048]byte
	n, err := readWithRetry(fd, buf[:])
	if err != nil {
		t.logger.Warn("control read failed", "err", err)
		return
	}

	reply := t.dispatcher.Execute(string(buf[:n]))
	if err := netio.WriteConn(fd, []byte(reply+"\n")); err != nil {
		t.logger.Warn("control write failed", "err", err)
	}
}

// readWithRetry polls a freshly accepted non-blocking connection for its
// one command line. The client is expected to write immediately after
// connecting, so a bounded spin is an acceptable, allocation-free way to
// stay single-threaded without a dedicated read-readiness poll cycle.
func readWithRetry(fd int, buf []byte) (int, error) {
	for range 100000 {
		n, err := netio.ReadConn(fd, buf)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, netio.ErrWouldBlock) {
			continue
		}
		return 0, err
	}
	return 0, netio.ErrWouldBlock
}

// UDPTransport serves the control protocol over a UDP (or UDP6) socket,
// where the first whitespace-delimited token of every datagram is a
// cookie echoed back verbatim in the reply (spec.md section 4.1).
type UDPTransport struct {
	sock       *netio.Socket
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewUDPTransport creates a UDP control transport over an
// already-bound, non-blocking socket.
func NewUDPTransport(sock *netio.Socket, d *Dispatcher, logger *slog.Logger) *UDPTransport {
	return &UDPTransport{sock: sock, dispatcher: d, logger: logger.With(slog.String("transport", "udp"))}
}

// Fd returns the socket descriptor, for registration at poll index 0.
func (t *UDPTransport) Fd() int {
	return t.sock.Fd()
}

// Close closes the underlying socket.
func (t *UDPTransport) Close() error {
	return t.sock.Close()
}

// HandleReadable implements relay.ControlHandler: drain every pending
// datagram and reply to each individually.
func (t *UDPTransport) HandleReadable() {
	var buf [2048]byte
	for {
		n, from, err := t.sock.RecvFrom(buf[:])
		if err != nil {
			if errors.Is(err, netio.ErrWouldBlock) {
				return
			}
			t.logger.Error("recvfrom failed", "err", err)
			return
		}
		t.handleDatagram(buf[:n], from)
	}
}

func (t *UDPTransport) handleDatagram(data []byte, from netip.AddrPort) {
	tokens := tokenize(string(data))
	if len(tokens) == 0 {
		return
	}

	cookie := tokens[0]
	reply := t.dispatcher.Execute(strings.Join(tokens[1:], " "))

	out := cookie + " " + reply + "\n"
	if err := t.sock.SendTo([]byte(out), from); err != nil {
		t.logger.Warn("control reply failed", "err", err)
	}
}
