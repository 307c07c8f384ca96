package control

import (
	"fmt"
	"strings"

	"github.com/dantte-lp/relayd/internal/relay"
)

// info implements the I verb: a multi-line dump of every live session's
// identity, per-direction remote addresses, packet counters, TTL, and
// attachment state (spec.md section 4.1's "multi-line info dump",
// columns fixed per the supplemented feature list).
func (d *Dispatcher) info() string {
	sessions := d.table.Sessions()

	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", len(sessions))

	for _, s := range sessions {
		fmt.Fprintf(&b, "%s %s;%d: ttl=%d in0=%d in1=%d relayed=%d dropped=%d",
			s.CallID, s.FromTag, s.MediaNum, s.TTL,
			s.Counts[relay.CounterInCallee], s.Counts[relay.CounterInCaller],
			s.Counts[relay.CounterRelayed], s.Counts[relay.CounterDropped])

		for d := range 2 {
			dir := &s.Dir[d]
			fmt.Fprintf(&b, " remote%d=%s", d, dir.Remote)
			if dir.Player != nil {
				fmt.Fprintf(&b, " play%d=1", d)
			}
			if dir.Recorder != nil {
				fmt.Fprintf(&b, " rec%d=1", d)
			}
		}

		b.WriteByte('\n')
	}

	return b.String()
}
