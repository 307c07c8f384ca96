package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// infoCmd builds the "info" (I) subcommand: dump every live session
// (spec.md section 4.1, "multi-line info dump of all sessions"). The
// dump already reports packet counts, remote addresses, and
// player/recorder attachment for every session, so no modifier is
// needed on the wire.
func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "dump every live session (verb I)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := newWireClient(controlAddr)
			if err != nil {
				return err
			}
			reply, err := c.Send("I")
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}
