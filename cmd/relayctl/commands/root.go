package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// controlAddr is the -addr flag value, in the same "-s" syntax relayd
// itself accepts: "unix:path", "udp:host:port", or "udp6:[host]:port".
var controlAddr string

// rootCmd is the top-level cobra command for relayctl.
var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "CLI client for the relayd media-relay daemon",
	Long:  "relayctl sends control-wire commands (U/L/D/P/S/R/V/I) to a running relayd instance.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controlAddr, "addr", "udp:127.0.0.1:22222",
		"relayd control socket (unix:path, udp:host:port, or udp6:[host]:port)")

	rootCmd.AddCommand(updateLookupCmd('U', "update", "create or update a session leg (verb U)"))
	rootCmd.AddCommand(updateLookupCmd('L', "lookup", "look up an existing session leg (verb L)"))
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
