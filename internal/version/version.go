// Package version provides build version information injected via ldflags.
//
// All variables are set at build time:
//
//	-ldflags="-X github.com/dantte-lp/relayd/internal/version.Version=v1.0.0
//	          -X github.com/dantte-lp/relayd/internal/version.GitCommit=abc1234
//	          -X github.com/dantte-lp/relayd/internal/version.BuildDate=2026-02-22T12:00:00Z"
package version

import "fmt"

// Version is the semantic version (e.g., "v0.1.0" or "dev").
var Version = "dev"

// GitCommit is the short git commit hash at build time.
var GitCommit = "unknown"

// BuildDate is the RFC 3339 build timestamp.
var BuildDate = "unknown"

// ControlProtocol is the base control-protocol version advertised by the
// bare "V" command (CPROTOVER in the glossary).
const ControlProtocol = 1

// Capabilities lists the date-stamped capability identifiers recognized by
// "VF <id>". Every entry here predates relayd itself; they are carried
// forward from the rtpproxy control-protocol lineage this daemon implements,
// so that controllers probing for them get the expected "1".
var Capabilities = map[string]bool{
	"20040107": true,
	"20050322": true,
	"20060704": true,
	"20071116": true,
}

// Full returns a human-readable multi-line version string for "-v".
func Full(binary string) string {
	return fmt.Sprintf("%s %s\n  commit:  %s\n  built:   %s\n  control: %d",
		binary, Version, GitCommit, BuildDate, ControlProtocol)
}
