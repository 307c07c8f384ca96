package control

import (
	"errors"
	"fmt"

	"github.com/dantte-lp/relayd/internal/addr"
	"github.com/dantte-lp/relayd/internal/relay"
)

// errCode maps a relay/control error to its stable wire error code
// (spec.md section 4.1's "ecode" table).
func errCode(err error) relay.ErrCode {
	switch {
	case errors.Is(err, relay.ErrSyntax):
		return relay.ECSyntax
	case errors.Is(err, relay.ErrBadModifier):
		return relay.ECBadModifier
	case errors.Is(err, relay.ErrUnknownVerb):
		return relay.ECUnknownVerb
	case errors.Is(err, relay.ErrArity):
		return relay.ECArity
	case errors.Is(err, relay.ErrSessionNotFound):
		return relay.ECNotFound
	case errors.Is(err, relay.ErrShuttingDown):
		return relay.ECShuttingDown
	case errors.Is(err, relay.ErrPlayerFailed):
		return relay.ECPlayerBuild
	case errors.Is(err, relay.ErrListenFailedFrom):
		return relay.ECListenFromSide
	case errors.Is(err, relay.ErrListenFailedTo):
		return relay.ECListenToSide
	default:
		return relay.ECSyntax
	}
}

func errorReply(err error) string {
	return fmt.Sprintf("E%d", errCode(err))
}

// portReply formats a successful U/L bind reply: the bound port, plus
// the bind address (and a "6" suffix for IPv6) when bridging mode makes
// the bind address ambiguous (spec.md section 4.1).
func portReply(port uint16, local addr.Endpoint, bridging bool) string {
	if !bridging {
		return fmt.Sprintf("%d", port)
	}
	if local.V6 || local.IP.Is6() {
		return fmt.Sprintf("%d %s 6", port, local.IP)
	}
	return fmt.Sprintf("%d %s", port, local.IP)
}
