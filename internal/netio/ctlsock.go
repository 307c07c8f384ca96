//go:build linux

package netio

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// StreamListener is a non-blocking UNIX domain stream listener used for
// the control channel in "-s unix:path" mode. It is the single poll
// index 0 entry (spec.md section 3); each readability event means at
// least one connection is pending accept().
type StreamListener struct {
	fd   int
	path string
}

// NewStreamListener creates a non-blocking UNIX stream listener at path,
// unlinking any stale socket file first (spec.md section 6: "the command
// socket path is unlinked at startup").
func NewStreamListener(path string) (*StreamListener, error) {
	_ = unix.Unlink(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("netio: socket: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: listen %s: %w", path, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netio: set nonblock: %w", err)
	}

	return &StreamListener{fd: fd, path: path}, nil
}

// Fd returns the listening descriptor, for registration in a PollSet.
func (l *StreamListener) Fd() int {
	return l.fd
}

// Accept accepts one pending non-blocking connection, returning
// ErrWouldBlock if none is pending despite the readability event (can
// happen if a peer reset the connection between poll and accept).
func (l *StreamListener) Accept() (int, error) {
	fd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return -1, ErrWouldBlock
		}
		return -1, fmt.Errorf("netio: accept: %w", err)
	}
	return fd, nil
}

// Close closes the listening descriptor and unlinks the socket path.
func (l *StreamListener) Close() error {
	_ = unix.Unlink(l.path)
	if err := unix.Close(l.fd); err != nil {
		return fmt.Errorf("netio: close: %w", err)
	}
	return nil
}

// ReadConn reads from an accepted connection fd, reporting ErrWouldBlock
// when no data is pending yet.
func ReadConn(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("netio: read: %w", err)
	}
	return n, nil
}

// WriteConn writes to an accepted connection fd, retrying on
// ENOBUFS/EAGAIN per spec.md section 5's control-reply retry policy.
func WriteConn(fd int, buf []byte) error {
	for {
		_, err := unix.Write(fd, buf)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.EAGAIN) {
			continue
		}
		return fmt.Errorf("netio: write: %w", err)
	}
}

// CloseConn closes an accepted connection fd.
func CloseConn(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("netio: close conn: %w", err)
	}
	return nil
}
