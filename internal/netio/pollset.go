//go:build linux

package netio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PollSet is the single poll(2) descriptor set the event loop waits on.
// Index 0 is conventionally the control-channel pseudo-entry (spec.md
// section 3: "index 0 reserved for the control channel pseudo-entry");
// everything else is a session direction's socket. Entries are removed by
// setting Fd to -1 so that compaction can happen lazily during the
// forwarder's sweep, exactly as the session table's own slots are.
type PollSet struct {
	fds []unix.PollFd
}

// NewPollSet creates an empty PollSet with capacity reserved up front,
// matching the "sized at startup, never grows" invariant of the session
// registry (spec.md section 5).
func NewPollSet(capacity int) *PollSet {
	return &PollSet{fds: make([]unix.PollFd, 0, capacity)}
}

// Len returns the number of entries, including holes.
func (p *PollSet) Len() int {
	return len(p.fds)
}

// Append adds a new descriptor to watch for readability and returns its
// index.
func (p *PollSet) Append(fd int) int {
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	return len(p.fds) - 1
}

// Clear marks index i as a hole (fd == -1); it stays in place until the
// owner shifts survivors over it with Set and shrinks the set with
// Truncate.
func (p *PollSet) Clear(i int) {
	p.fds[i].Fd = -1
	p.fds[i].Revents = 0
}

// Set overwrites index i's descriptor, used when compaction shifts a
// survivor into a vacated slot.
func (p *PollSet) Set(i, fd int) {
	p.fds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
}

// Fd returns the descriptor at index i, or -1 for a hole.
func (p *PollSet) Fd(i int) int {
	return int(p.fds[i].Fd)
}

// Truncate drops the trailing n entries after compaction has moved all
// survivors to the front.
func (p *PollSet) Truncate(n int) {
	p.fds = p.fds[:n]
}

// Readable reports whether index i's descriptor had POLLIN set by the
// last Wait.
func (p *PollSet) Readable(i int) bool {
	return p.fds[i].Revents&unix.POLLIN != 0
}

// Wait blocks in poll(2) for up to timeoutMs milliseconds (or
// indefinitely if negative). EINTR is retried transparently, matching
// spec.md section 4.5 ("EINTR restarts the iteration") folded into this
// call so the event loop never has to special-case it.
func (p *PollSet) Wait(timeoutMs int) (int, error) {
	for {
		n, err := unix.Poll(p.fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("netio: poll: %w", err)
		}
		return n, nil
	}
}
