// relayctl is the operator CLI for relayd: it speaks the same
// cookie/line control-wire protocol a signalling controller would
// (spec.md section 4.1 and section 6), over either a UNIX stream socket
// or a UDP control port, so a human can poke sessions by hand.
package main

import "github.com/dantte-lp/relayd/cmd/relayctl/commands"

func main() {
	commands.Execute()
}
