package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// playCmd builds the "play" (P) subcommand: attach a synthetic prompt
// source to a session leg (spec.md section 4.1).
func playCmd() *cobra.Command {
	var repeat int

	cmd := &cobra.Command{
		Use:   "play <call-id> <prompt-name> <codecs> <from-tag>",
		Short: "play a prompt into a session leg (verb P)",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			mod := ""
			if repeat > 0 {
				mod = fmt.Sprintf("%d", repeat)
			}
			line := fmt.Sprintf("P%s %s %s %s %s", mod, args[0], args[1], args[2], args[3])

			c, err := newWireClient(controlAddr)
			if err != nil {
				return err
			}
			reply, err := c.Send(line)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}

	cmd.Flags().IntVar(&repeat, "repeat", 0, "repeat count before the player stops itself (modifier P<n>)")
	return cmd
}

// stopCmd builds the "stop" (S) subcommand: detach a leg's player, if
// any (spec.md section 4.1).
func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <call-id> <from-tag>",
		Short: "stop playback on a session leg (verb S)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := newWireClient(controlAddr)
			if err != nil {
				return err
			}
			reply, err := c.Send(fmt.Sprintf("S %s %s", args[0], args[1]))
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}

// recordCmd builds the "record" (R) subcommand: attach a recording sink
// to both directions of a session (spec.md section 4.1).
func recordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <call-id> <from-tag>",
		Short: "start recording a session (verb R)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := newWireClient(controlAddr)
			if err != nil {
				return err
			}
			reply, err := c.Send(fmt.Sprintf("R %s %s", args[0], args[1]))
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}
}
