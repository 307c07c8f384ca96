package relay

import (
	"context"
	"time"
)

const (
	// TimeTick is the TTL clock period (spec.md section 4.4, "TIMETICK").
	TimeTick = 1 * time.Second

	// RTPSTicksMin bounds how long poll() may block while any session or
	// player is active, keeping playback pacing and TTL bookkeeping
	// responsive (spec.md section 4.5 step 1).
	RTPSTicksMin = 20 * time.Millisecond

	// PollLimit caps poll(2) calls per second (spec.md section 4.5 step 2,
	// "POLL_LIMIT").
	PollLimit = 1000
)

// ControlHandler processes one readable event on the control channel
// (poll index 0). internal/control's UnixTransport and UDPTransport
// implement it; the
// interface lives here, not a concrete type, so this package stays
// ignorant of the wire format it is driving.
type ControlHandler interface {
	HandleReadable()
}

// Engine runs the single-threaded, cooperative event loop of spec.md
// section 4.5 over a Table: no goroutines, no mutexes, no channels on
// the hot path -- the only suspension points are the poll(2) call and the
// self-imposed rate-limit sleep.
type Engine struct {
	table   *Table
	control ControlHandler

	lastTick time.Time
}

// NewEngine creates an Engine driving table and dispatching control
// events to control.
func NewEngine(table *Table, control ControlHandler) *Engine {
	return &Engine{table: table, control: control}
}

// Run executes the event loop until ctx is canceled, implementing each
// of spec.md section 4.5's seven steps per iteration.
func (e *Engine) Run(ctx context.Context) error {
	e.lastTick = time.Now()
	minInterval := time.Second / PollLimit

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		iterStart := time.Now()

		timeout := TimeTick
		if e.table.NumSlots() > 1 || len(e.table.RTPServers()) > 0 {
			timeout = RTPSTicksMin
		}

		n, err := e.table.Poll().Wait(int(timeout.Milliseconds()))
		if err != nil {
			return err
		}

		now := time.Now()
		e.table.RunPlayers(now)
		e.table.Sweep(now)

		if n > 0 && e.table.Poll().Readable(0) {
			e.control.HandleReadable()
		}

		if now.Sub(e.lastTick) >= TimeTick {
			e.table.Reap()
			e.lastTick = now
		}

		if elapsed := time.Since(iterStart); elapsed < minInterval {
			time.Sleep(minInterval - elapsed)
		}
	}
}
