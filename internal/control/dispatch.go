package control

import (
	"fmt"
	"log/slog"
	"net/netip"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dantte-lp/relayd/internal/addr"
	"github.com/dantte-lp/relayd/internal/metrics"
	"github.com/dantte-lp/relayd/internal/player"
	"github.com/dantte-lp/relayd/internal/recorder"
	"github.com/dantte-lp/relayd/internal/relay"
	"github.com/dantte-lp/relayd/internal/rtpframe"
	"github.com/dantte-lp/relayd/internal/version"
)

// Config holds the controller-facing settings the dispatcher needs but
// the relay.Table does not itself track: the bind addresses available
// to the E/I modifier, and the directories P and R resolve files under.
type Config struct {
	BindAddr  [2]netip.Addr
	Bridging  bool
	PromptDir string // base directory for P's pname argument
	RecordDir string // rdir; empty disables R entirely
}

// Dispatcher parses and executes control-wire commands against a
// relay.Table. It is a thin adapter, in the manner of a ConnectRPC
// service handler: each verb delegates to the table for the actual
// domain mutation.
type Dispatcher struct {
	table   *relay.Table
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector

	// draining is set once the daemon starts its shutdown drain window
	// (SPEC_FULL.md "Graceful drain on shutdown"). New U/L/P commands are
	// rejected with ErrShuttingDown; D keeps working so callers can still
	// tear down in-flight sessions. SetDraining is called from the
	// shutdown goroutine while the event loop reads the flag, so it is
	// atomic.
	draining atomic.Bool
}

// NewDispatcher creates a Dispatcher over table.
func NewDispatcher(table *relay.Table, cfg Config, logger *slog.Logger, mc *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		table:   table,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "control.dispatcher")),
		metrics: mc,
	}
}

// SetDraining enters or leaves the shutdown drain window. See the
// draining field doc for the effect on U/L/P.
func (d *Dispatcher) SetDraining(v bool) {
	d.draining.Store(v)
}

// Execute runs one command line (without its cookie, if any) and
// returns the reply line (without its cookie). The transport layer
// handles cookie echoing. Each call is tagged with a correlation ID,
// logged at debug level, so a single command's trail through the logs
// can be grepped out even though the wire protocol itself has no
// request identifier.
func (d *Dispatcher) Execute(line string) string {
	corrID := uuid.NewString()
	log := d.logger.With(slog.String("corr_id", corrID))

	tokens := tokenize(line)
	if len(tokens) == 0 {
		log.Debug("malformed command", slog.String("line", line))
		return errorReply(relay.ErrSyntax)
	}

	verb := tokens[0][0]
	log.Debug("command received", slog.String("verb", string(verb)), slog.Int("argc", len(tokens)))

	mods, err := parseModifiers(verb, tokens[0][1:])
	if err != nil {
		log.Debug("command rejected", slog.String("error", err.Error()))
		if d.metrics != nil {
			d.metrics.CommandError(string(verb), errCode(err))
		}
		return errorReply(err)
	}

	if d.draining.Load() {
		switch verb {
		case 'u', 'U', 'l', 'L', 'p', 'P':
			if d.metrics != nil {
				d.metrics.CommandError(string(verb), relay.ECShuttingDown)
			}
			return errorReply(relay.ErrShuttingDown)
		}
	}

	var reply string
	switch verb {
	case 'u', 'U':
		reply, err = d.handleUL(relay.DirCallee, tokens, mods)
	case 'l', 'L':
		reply, err = d.handleUL(relay.DirCaller, tokens, mods)
	case 'd', 'D':
		reply, err = d.handleDelete(tokens, mods)
	case 'p', 'P':
		reply, err = d.handlePlay(tokens, mods)
	case 's', 'S':
		reply, err = d.handleStop(tokens)
	case 'r', 'R':
		reply, err = d.handleRecord(tokens)
	case 'v', 'V':
		reply, err = d.handleVersion(tokens, verbToken(tokens[0]))
	case 'i', 'I':
		reply = d.info()
	default:
		err = relay.ErrUnknownVerb
	}

	if d.metrics != nil {
		if err != nil {
			d.metrics.CommandError(string(verb), errCode(err))
		} else {
			d.metrics.CommandOK(string(verb))
		}
	}

	if err != nil {
		log.Debug("command failed", slog.String("error", err.Error()))
		return errorReply(err)
	}
	log.Debug("command ok")
	return reply
}

func verbToken(t string) string {
	if len(t) > 1 {
		return t[1:]
	}
	return ""
}

// handleUL implements the U and L verbs: find-or-create (U) or find
// (L) a session, then bind and learn the given direction's remote
// address (spec.md section 4.1).
func (d *Dispatcher) handleUL(dir relay.Direction, tokens []string, mods Modifiers) (string, error) {
	isRequest := dir == relay.DirCallee
	minArgs := 5
	if !isRequest {
		minArgs = 6
	}
	if len(tokens) < minArgs {
		return "", relay.ErrArity
	}

	callID, host, portTok, fromTag := tokens[1], tokens[2], tokens[3], tokens[4]
	toTag := ""
	if len(tokens) > 5 {
		toTag = tokens[5]
	}

	port, err := parsePort(portTok)
	if err != nil {
		return "", relay.ErrSyntax
	}

	var s *relay.Session
	if isRequest {
		var found bool
		s, _, _, found, _ = d.table.FindByTag(callID, fromTag)
		if !found {
			s = d.table.CreateSession(callID, fromTag, medianumOf(fromTag))
		}
	} else {
		var found bool
		s, _, _, found, _ = d.table.FindByTag(callID, fromTag)
		if !found {
			return "0", nil
		}
		s.ToTag = toTag
	}

	asym := mods.Asym
	if !mods.AsymSet {
		asym = d.cfg.Bridging
	}

	bindAddr := d.cfg.BindAddr[mods.BindSlot%2]
	localPort, err := d.table.BindDirection(s, dir, bindAddr, asym)
	if err != nil {
		if isRequest {
			return "", fmt.Errorf("%w: %v", relay.ErrListenFailedFrom, err)
		}
		return "", fmt.Errorf("%w: %v", relay.ErrListenFailedTo, err)
	}

	remote, err := addr.Parse(host, port, mods.IPv6)
	if err != nil {
		return "", relay.ErrSyntax
	}
	d.table.SetRemote(s, dir, remote)

	if mods.Nsamples > 0 {
		s.Dir[dir].Resizer = rtpframe.NewResizer(mods.Nsamples)
	}

	s.Hold(mods.Weak, dir)

	local := s.Dir[dir].Local
	return portReply(localPort, local, d.cfg.Bridging), nil
}

// handleDelete implements D: clear a liveness flag and tear the session
// down once all are clear, deleting every sibling media stream sharing
// the tag prefix when the match was a prefix match (spec.md section
// 4.1, "continues after destruction to delete all media streams sharing
// the tag prefix").
func (d *Dispatcher) handleDelete(tokens []string, mods Modifiers) (string, error) {
	if len(tokens) < 3 {
		return "", relay.ErrArity
	}
	callID, fromTag := tokens[1], tokens[2]

	first, matchedDir, _, found, prefix := d.table.FindByTag(callID, fromTag)
	if !found {
		return "", relay.ErrSessionNotFound
	}

	targets := []*relay.Session{first}
	if prefix {
		targets = d.table.FindAllByTagPrefix(callID, fromTag)
	}

	ndeleted := 0
	for _, s := range targets {
		if s.Release(mods.Weak, matchedDir) {
			d.table.Destroy(s, "deleted")
		}
		ndeleted++
	}

	if ndeleted == 0 {
		return "", relay.ErrSessionNotFound
	}
	return "0", nil
}

// handlePlay implements P: attach a synthetic source repeating Repeat
// times using the first codec in codecs that builds (spec.md section
// 4.1).
func (d *Dispatcher) handlePlay(tokens []string, mods Modifiers) (string, error) {
	if len(tokens) < 5 {
		return "", relay.ErrArity
	}
	callID, pname, codecList, fromTag := tokens[1], tokens[2], tokens[3], tokens[4]

	s, dir, _, found, _ := d.table.FindByTag(callID, fromTag)
	if !found {
		return "", relay.ErrSessionNotFound
	}

	codecs, err := splitCodecs(codecList)
	if err != nil {
		return "", err
	}

	src, err := player.Open(filepath.Join(d.cfg.PromptDir, pname), codecs, mods.Repeat)
	if err != nil {
		return "", relay.ErrPlayerFailed
	}

	d.table.AttachPlayer(s, dir, src)
	return "0", nil
}

// handleStop implements S: detach the player from the leg, if any.
func (d *Dispatcher) handleStop(tokens []string) (string, error) {
	if len(tokens) < 3 {
		return "", relay.ErrArity
	}
	callID, fromTag := tokens[1], tokens[2]

	s, dir, _, found, _ := d.table.FindByTag(callID, fromTag)
	if !found {
		return "", relay.ErrSessionNotFound
	}

	d.table.DetachPlayer(s, dir)
	return "0", nil
}

// handleRecord implements R: attach a recorder to both directions of
// the session's leg. Recording is silently a no-op when no -r directory
// was configured.
func (d *Dispatcher) handleRecord(tokens []string) (string, error) {
	if len(tokens) < 3 {
		return "", relay.ErrArity
	}
	callID, fromTag := tokens[1], tokens[2]

	s, _, _, found, _ := d.table.FindByTag(callID, fromTag)
	if !found {
		return "", relay.ErrSessionNotFound
	}
	if d.cfg.RecordDir == "" {
		return "0", nil
	}

	sink, err := recorder.Open(d.cfg.RecordDir, callID, fromTag)
	if err != nil {
		d.logger.Error("recorder open failed", "call_id", callID, "err", err)
		return "0", nil
	}

	s.Dir[0].Recorder = sink
	s.Dir[1].Recorder = sink
	return "0", nil
}

// handleVersion implements V / VF (spec.md section 6).
func (d *Dispatcher) handleVersion(tokens []string, mod string) (string, error) {
	if mod == "f" || mod == "F" {
		if len(tokens) < 2 {
			return "", relay.ErrArity
		}
		if version.Capabilities[tokens[1]] {
			return "1", nil
		}
		return "0", nil
	}
	return fmt.Sprintf("%d", version.ControlProtocol), nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, relay.ErrSyntax
	}
	return uint16(n), nil
}

func medianumOf(tag string) int {
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ';' {
			n := 0
			for _, c := range tag[i+1:] {
				if c < '0' || c > '9' {
					return 0
				}
				n = n*10 + int(c-'0')
			}
			return n
		}
	}
	return 0
}
