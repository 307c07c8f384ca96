package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// updateLookupCmd builds the "update" (U) and "lookup" (L) subcommands:
// both bind a session leg's remote address, differing only in whether a
// missing session is created (U) or reported as gone (L, spec.md section
// 4.1).
func updateLookupCmd(verb byte, use, short string) *cobra.Command {
	var (
		asym      bool
		symmetric bool
		weak      bool
		ipv6      bool
	)

	args := cobra.RangeArgs(4, 5)
	if verb == 'L' {
		args = cobra.ExactArgs(5)
	}

	cmd := &cobra.Command{
		Use:   use + " <call-id> <host> <port> <from-tag> [to-tag]",
		Short: short,
		Args:  args,
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := parsePort(args[2]); err != nil {
				return err
			}

			mods := ""
			switch {
			case asym:
				mods += "A"
			case symmetric:
				mods += "S"
			}
			if weak {
				mods += "W"
			}
			if ipv6 {
				mods += "6"
			}

			line := fmt.Sprintf("%c%s %s", verb, mods, joinArgs(args))

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

	cmd.Flags().BoolVar(&asym, "asym", false, "mark this leg's address as learned asymmetrically (modifier A)")
	cmd.Flags().BoolVar(&symmetric, "symmetric", false, "force symmetric RTP (modifier S)")
	cmd.Flags().BoolVar(&weak, "weak", false, "weak reference to this leg (modifier W)")
	cmd.Flags().BoolVar(&ipv6, "ipv6", false, "the host argument is an IPv6 literal (modifier 6)")

	return cmd
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

// deleteCmd builds the "delete" (D) subcommand: clear a leg's liveness
// flag, tearing the session down once every leg is clear (spec.md
// section 4.1).
func deleteCmd() *cobra.Command {
	var weak bool

	cmd := &cobra.Command{
		Use:   "delete <call-id> <from-tag>",
		Short: "delete a session leg (verb D)",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			mod := ""
			if weak {
				mod = "W"
			}
			line := fmt.Sprintf("D%s %s %s", mod, args[0], args[1])

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

	cmd.Flags().BoolVar(&weak, "weak", false, "weak reference to this leg (modifier W)")
	return cmd
}
