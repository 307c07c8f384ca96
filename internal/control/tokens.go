// Package control implements the ASCII control-wire dispatcher and
// transport (spec.md section 4.1 and section 6): a thin adapter between
// the line/datagram protocol a signalling controller speaks and the
// relay.Table it mutates.
package control

import (
	"strconv"
	"strings"

	"github.com/dantte-lp/relayd/internal/relay"
)

// isDelim reports whether r is one of the wire protocol's token
// terminators (spec.md section 6: "terminators \r\n\t ").
func isDelim(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n':
		return true
	default:
		return false
	}
}

func tokenize(line string) []string {
	return strings.FieldsFunc(line, isDelim)
}

// Modifiers holds the parsed state of a verb token's characters after
// the leading verb letter (spec.md section 4.1).
type Modifiers struct {
	AsymSet  bool
	Asym     bool
	IPv6     bool
	Weak     bool
	BindSlot int
	Nsamples int
	Repeat   int
}

// parseModifiers scans s (argv[0] with the verb character already
// stripped) for the U/L/D/P modifier alphabet. verb selects whether a
// leading digit run is a P<n> repeat count.
func parseModifiers(verb byte, s string) (Modifiers, error) {
	m := Modifiers{BindSlot: 0}
	lidx := 1

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == 'a' || c == 'A':
			m.AsymSet, m.Asym = true, true
			i++
		case c == 's' || c == 'S':
			m.AsymSet, m.Asym = true, false
			i++
		case c == 'e' || c == 'E' || c == 'i' || c == 'I':
			if lidx < 0 {
				return m, relay.ErrSyntax
			}
			m.BindSlot = lidx
			lidx--
			i++
		case c == '6':
			m.IPv6 = true
			i++
		case c == 'w' || c == 'W':
			m.Weak = true
			i++
		case c == 'z' || c == 'Z':
			j := i + 1
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			if j == i+1 {
				return m, relay.ErrSyntax
			}
			ms, _ := strconv.Atoi(s[i+1 : j])
			n := (ms / 10) * 80
			if n <= 0 {
				return m, relay.ErrSyntax
			}
			m.Nsamples = n
			i = j
		case c >= '0' && c <= '9' && (verb == 'p' || verb == 'P'):
			j := i
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(s[i:j])
			m.Repeat = n
			i = j
		case (c == 'f' || c == 'F') && (verb == 'v' || verb == 'V'):
			// VF: capability query, handled by handleVersion.
			i++
		default:
			return m, relay.ErrBadModifier
		}
	}

	return m, nil
}

// splitCodecs parses a play command's comma-separated codec list
// ("0,8") into RTP static payload type numbers.
func splitCodecs(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, relay.ErrSyntax
		}
		out = append(out, n)
	}
	return out, nil
}
