package commands

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dantte-lp/relayd/internal/config"
)

// wireClient sends one control-wire command line at a time to relayd and
// reads back its whole reply, over whichever transport -addr names
// (spec.md section 6: "-s {unix:|udp:|udp6:}path").
type wireClient struct {
	scheme string
	target string
	dialer net.Dialer
	cookie bool
}

// newWireClient parses spec ("unix:/path", "udp:host:port",
// "udp6:[host]:port") the same way relayd itself parses -s.
func newWireClient(spec string) (*wireClient, error) {
	scheme, target, err := config.ParseControlSocket(spec)
	if err != nil {
		return nil, fmt.Errorf("parse control address %q: %w", spec, err)
	}
	return &wireClient{
		scheme: scheme,
		target: target,
		dialer: net.Dialer{Timeout: 3 * time.Second},
		cookie: scheme == "udp" || scheme == "udp6",
	}, nil
}

// Send writes line as one command and returns relayd's reply, with any
// UDP cookie stripped back off (spec.md section 4.1: "a UDP client must
// prefix every command with a cookie token... echoed back verbatim").
func (c *wireClient) Send(line string) (string, error) {
	network, addr := "unix", c.target
	if c.scheme == "udp" {
		network = "udp4"
	} else if c.scheme == "udp6" {
		network = "udp6"
	}

	conn, err := c.dialer.Dial(network, addr)
	if err != nil {
		return "", fmt.Errorf("dial %s %s: %w", network, addr, err)
	}
	defer func() { _ = conn.Close() }()

	wire := line
	cookie := ""
	if c.cookie {
		cookie = uuid.NewString()
		wire = cookie + " " + line
	}

	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}
	if _, err := conn.Write([]byte(wire)); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}
	if cn, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cn.CloseWrite()
	}

	// A reply may span several lines (the I dump). Over UDP it arrives as
	// one datagram; over UNIX the daemon closes the connection after it.
	var raw []byte
	if c.cookie {
		buf := make([]byte, 65535)
		n, rerr := conn.Read(buf)
		raw, err = buf[:n], rerr
	} else {
		raw, err = io.ReadAll(conn)
	}
	if err != nil && len(raw) == 0 {
		return "", fmt.Errorf("read reply: %w", err)
	}
	reply := strings.TrimRight(string(raw), "\r\n")

	if c.cookie {
		reply = strings.TrimPrefix(reply, cookie+" ")
	}
	return reply, nil
}

// parsePort is a small local helper so commands can validate a port
// flag before it ever reaches the wire.
func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(n), nil
}
