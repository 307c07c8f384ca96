package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionCmd builds the "version" (V) subcommand: either print relayd's
// control protocol version, or check a specific capability with VF
// (spec.md section 6).
func versionCmd() *cobra.Command {
	var capability string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "print relayd's control protocol version, or probe a capability (verb V/VF)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			verb := "V"
			arg := ""
			if capability != "" {
				verb = "VF"
				arg = " " + capability
			}

			c, err := newWireClient(controlAddr)
			if err != nil {
				return err
			}
			reply, err := c.Send(verb + arg)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}

	cmd.Flags().StringVar(&capability, "capability", "", "probe support for a capability string with VF, e.g. 20071116")
	return cmd
}
