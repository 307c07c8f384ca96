// Package config resolves relayd's startup configuration: the CLI flags
// of spec.md section 6, overlaid with RELAYD_-prefixed environment
// variables, validated before the daemon binds anything.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete relayd configuration, resolved from CLI
// flags and environment overrides (spec.md section 6).
type Config struct {
	Foreground bool `koanf:"foreground"` // -f
	DoubleSend bool `koanf:"double_send"` // -2
	RecordRTCP bool `koanf:"record_rtcp"` // NOT(-R)

	BindV4 [2]string `koanf:"bind_v4"` // -l addr[/addr2]
	BindV6 [2]string `koanf:"bind_v6"` // -6 addr[/addr2]

	ControlSocket string `koanf:"control_socket"` // -s {unix:|udp:|udp6:}path

	TOS              int    `koanf:"tos"`                // -t
	RecordDir        string `koanf:"record_dir"`         // -r
	SessionRecordDir string `koanf:"session_record_dir"` // -S

	MaxTTL  int    `koanf:"max_ttl"`  // -T, seconds
	MaxOpenFiles uint64 `koanf:"max_open_files"` // -L, rlimit nofile

	PortMin uint16 `koanf:"port_min"` // -m
	PortMax uint16 `koanf:"port_max"` // -M

	PidFile string `koanf:"pid_file"` // -p

	// StatsInterval, when nonzero, logs aggregate packet-count deltas at
	// that period, independent of the TTL tick (supplemented feature,
	// SPEC_FULL "-i interval").
	StatsInterval time.Duration `koanf:"stats_interval"`

	ShowVersion bool `koanf:"-"` // -v, consumed by main before daemonizing

	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// LogConfig holds the logging configuration (ambient stack, ungoverned
// by spec.md's flag table, grounded on the teacher's LogConfig).
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration
// (ambient stack; see SPEC_FULL.md's domain-stack wiring of
// prometheus/client_golang).
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// Bridging reports whether either bind family carries a second ("internal")
// address, putting the session table into bridging mode (spec.md section
// 3, "bmode").
func (c *Config) Bridging() bool {
	return c.BindV4[1] != "" || c.BindV6[1] != ""
}

// BindPair returns the configured bind address pair and whether it is
// IPv6. Exactly one of BindV4/BindV6 carries a primary address once the
// config has passed Validate.
func (c *Config) BindPair() (pair [2]string, isV6 bool) {
	if c.BindV6[0] != "" {
		return c.BindV6, true
	}
	return c.BindV4, false
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

const (
	defaultControlSocket = "udp:127.0.0.1:22222"
	defaultPortMin        = 35000
	defaultPortMax        = 65000
	defaultMaxTTL         = 60
	defaultPidFile        = "/var/run/relayd.pid"
)

// DefaultConfig returns a Config populated with sensible defaults,
// mirroring the original rtpproxy's built-in defaults where spec.md
// does not fix a value.
func DefaultConfig() *Config {
	return &Config{
		RecordRTCP:    true,
		ControlSocket: defaultControlSocket,
		MaxTTL:        defaultMaxTTL,
		PortMin:       defaultPortMin,
		PortMax:       defaultPortMax,
		PidFile:       defaultPidFile,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// -------------------------------------------------------------------------
// Flag parsing + env overlay
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for relayd configuration.
// Variables are named RELAYD_<SECTION>_<KEY>, e.g. RELAYD_LOG_LEVEL.
const envPrefix = "RELAYD_"

// Load parses args as CLI flags per spec.md section 6, overlays
// RELAYD_-prefixed environment variables on top, and validates the
// result. args is typically os.Args[1:].
func Load(args []string) (*Config, error) {
	cfg, err := parseFlags(args)
	if err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := applyEnvOverlay(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if cfg.ShowVersion {
		return cfg, nil
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}

	return cfg, nil
}

// parseFlags builds the spec.md section 6 flag set over DefaultConfig()
// and returns the resulting Config.
func parseFlags(args []string) (*Config, error) {
	d := DefaultConfig()
	fs := flag.NewFlagSet("relayd", flag.ContinueOnError)

	foreground := fs.Bool("f", d.Foreground, "run in the foreground instead of daemonizing")
	doubleSend := fs.Bool("2", d.DoubleSend, "double-send packets smaller than the low-bitrate threshold")
	noRTCPRecord := fs.Bool("R", !d.RecordRTCP, "disable recording of RTCP alongside RTP")
	bindV4 := fs.String("l", "", "IPv4 bind address(es): addr or addr/addr2 for bridging mode")
	bindV6 := fs.String("6", "", "IPv6 bind address(es): addr or addr/addr2 for bridging mode")
	controlSocket := fs.String("s", d.ControlSocket, "command socket: unix:path, udp:host:port, or udp6:host:port")
	tos := fs.Int("t", d.TOS, "IP_TOS value applied to IPv4 media sockets")
	recordDir := fs.String("r", d.RecordDir, "base directory for recordings (required for -S and R)")
	sessionRecordDir := fs.String("S", d.SessionRecordDir, "session-recording subdirectory beneath -r")
	maxTTL := fs.Int("T", d.MaxTTL, "session TTL in seconds")
	maxOpenFiles := fs.Uint64("L", d.MaxOpenFiles, "RLIMIT_NOFILE to request at startup (0 leaves it unchanged)")
	portMin := fs.Int("m", int(d.PortMin), "lowest RTP port to allocate from")
	portMax := fs.Int("M", int(d.PortMax), "highest RTP port to allocate from")
	pidFile := fs.String("p", d.PidFile, "path to the PID file")
	statsInterval := fs.Duration("i", d.StatsInterval, "aggregate stats log interval (0 disables, supplemented feature)")
	showVersion := fs.Bool("v", false, "print version and capabilities, then exit")

	logLevel := fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", d.Log.Format, "log format: json or text")
	metricsAddr := fs.String("metrics-addr", d.Metrics.Addr, "Prometheus metrics HTTP listen address")
	metricsPath := fs.String("metrics-path", d.Metrics.Path, "Prometheus metrics HTTP path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	d.Foreground = *foreground
	d.DoubleSend = *doubleSend
	d.RecordRTCP = !*noRTCPRecord
	d.BindV4 = splitBindPair(*bindV4)
	d.BindV6 = splitBindPair(*bindV6)
	d.ControlSocket = *controlSocket
	d.TOS = *tos
	d.RecordDir = *recordDir
	d.SessionRecordDir = *sessionRecordDir
	d.MaxTTL = *maxTTL
	d.MaxOpenFiles = *maxOpenFiles
	d.PortMin = uint16(*portMin)
	d.PortMax = uint16(*portMax)
	d.PidFile = *pidFile
	d.StatsInterval = *statsInterval
	d.ShowVersion = *showVersion
	d.Log.Level = *logLevel
	d.Log.Format = *logFormat
	d.Metrics.Addr = *metricsAddr
	d.Metrics.Path = *metricsPath

	return d, nil
}

// splitBindPair splits a "-l"/"-6" argument of the form "addr[/addr2]"
// into the external/internal bind address pair (spec.md section 6:
// "`/` enables bridging").
func splitBindPair(s string) [2]string {
	if s == "" {
		return [2]string{}
	}
	parts := strings.SplitN(s, "/", 2)
	var pair [2]string
	pair[0] = parts[0]
	if len(parts) == 2 {
		pair[1] = parts[1]
	}
	return pair
}

// applyEnvOverlay overlays RELAYD_-prefixed environment variables on top
// of the flag-resolved cfg, using koanf's env provider the way the
// teacher layers GOBFD_ over its YAML-and-default base.
func applyEnvOverlay(cfg *Config) error {
	k := koanf.New(".")

	base := map[string]any{
		"foreground":        cfg.Foreground,
		"double_send":       cfg.DoubleSend,
		"record_rtcp":       cfg.RecordRTCP,
		"control_socket":    cfg.ControlSocket,
		"tos":               cfg.TOS,
		"record_dir":        cfg.RecordDir,
		"session_record_dir": cfg.SessionRecordDir,
		"max_ttl":           cfg.MaxTTL,
		"max_open_files":    cfg.MaxOpenFiles,
		"port_min":          cfg.PortMin,
		"port_max":          cfg.PortMax,
		"pid_file":          cfg.PidFile,
		"stats_interval":    cfg.StatsInterval.String(),
		"log.level":         cfg.Log.Level,
		"log.format":        cfg.Log.Format,
		"metrics.addr":      cfg.Metrics.Addr,
		"metrics.path":      cfg.Metrics.Path,
	}
	for key, val := range base {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set base %s: %w", key, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}

	cfg.Foreground = k.Bool("foreground")
	cfg.DoubleSend = k.Bool("double_send")
	cfg.RecordRTCP = k.Bool("record_rtcp")
	cfg.ControlSocket = k.String("control_socket")
	cfg.TOS = k.Int("tos")
	cfg.RecordDir = k.String("record_dir")
	cfg.SessionRecordDir = k.String("session_record_dir")
	cfg.MaxTTL = k.Int("max_ttl")
	cfg.MaxOpenFiles = uint64(k.Int64("max_open_files"))
	cfg.PortMin = uint16(k.Int("port_min"))
	cfg.PortMax = uint16(k.Int("port_max"))
	cfg.PidFile = k.String("pid_file")
	if iv := k.String("stats_interval"); iv != "" {
		d, err := time.ParseDuration(iv)
		if err != nil {
			return fmt.Errorf("parse stats_interval %q: %w", iv, err)
		}
		cfg.StatsInterval = d
	}
	cfg.Log.Level = k.String("log.level")
	cfg.Log.Format = k.String("log.format")
	cfg.Metrics.Addr = k.String("metrics.addr")
	cfg.Metrics.Path = k.String("metrics.path")

	return nil
}

// envKeyMap lists the exact RELAYD_* environment variables relayd
// recognizes and the koanf key each overlays. A plain underscore-to-dot
// transform (as the teacher's GOBFD_ mapper does) does not round-trip
// here: several of relayd's own keys contain underscores
// (e.g. "max_ttl"), not just section/field dot-separators.
var envKeyMap = map[string]string{
	"RELAYD_FOREGROUND":          "foreground",
	"RELAYD_DOUBLE_SEND":         "double_send",
	"RELAYD_RECORD_RTCP":         "record_rtcp",
	"RELAYD_CONTROL_SOCKET":      "control_socket",
	"RELAYD_TOS":                 "tos",
	"RELAYD_RECORD_DIR":          "record_dir",
	"RELAYD_SESSION_RECORD_DIR":  "session_record_dir",
	"RELAYD_MAX_TTL":             "max_ttl",
	"RELAYD_MAX_OPEN_FILES":      "max_open_files",
	"RELAYD_PORT_MIN":            "port_min",
	"RELAYD_PORT_MAX":            "port_max",
	"RELAYD_PID_FILE":            "pid_file",
	"RELAYD_STATS_INTERVAL":      "stats_interval",
	"RELAYD_LOG_LEVEL":           "log.level",
	"RELAYD_LOG_FORMAT":          "log.format",
	"RELAYD_METRICS_ADDR":        "metrics.addr",
	"RELAYD_METRICS_PATH":        "metrics.path",
}

// envKeyMapper maps a RELAYD_-prefixed environment variable name to its
// koanf key via envKeyMap, or "" to skip variables relayd does not
// recognize.
func envKeyMapper(s string) string {
	return envKeyMap[s]
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors (spec.md section 6: "`-S` without `-r`, out-of-range
// ports, and inconsistent bridging addresses are fatal with a message").
var (
	ErrSessionRecordWithoutRecordDir = errors.New("config: -S requires -r")
	ErrPortRangeInvalid              = errors.New("config: port_min/port_max must be even, nonzero, and port_min <= port_max")
	ErrDualFamilyUnsupported         = errors.New("config: -l and -6 cannot both be set; relayd binds one address family per instance")
	ErrNoBindAddress                 = errors.New("config: at least one of -l or -6 must be set")
	ErrInvalidControlSocket          = errors.New("config: -s must be unix:path, udp:host:port, or udp6:host:port")
	ErrInvalidMaxTTL                 = errors.New("config: -T must be > 0")
)

// Validate checks cfg for the fatal misconfigurations spec.md section 6
// calls out explicitly.
func Validate(cfg *Config) error {
	if cfg.SessionRecordDir != "" && cfg.RecordDir == "" {
		return ErrSessionRecordWithoutRecordDir
	}

	if cfg.PortMin == 0 || cfg.PortMax == 0 || cfg.PortMin > cfg.PortMax ||
		cfg.PortMin%2 != 0 || cfg.PortMax%2 != 0 {
		return ErrPortRangeInvalid
	}

	if cfg.MaxTTL <= 0 {
		return ErrInvalidMaxTTL
	}

	if cfg.BindV4[0] != "" && cfg.BindV6[0] != "" {
		return ErrDualFamilyUnsupported
	}

	if cfg.BindV4[0] == "" && cfg.BindV6[0] == "" {
		return ErrNoBindAddress
	}

	if _, _, err := ParseControlSocket(cfg.ControlSocket); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidControlSocket, err)
	}

	return nil
}

// ParseControlSocket splits a "-s" value into its scheme
// ("unix", "udp", "udp6") and the remaining target (a filesystem path
// for unix, or a host:port for udp/udp6).
func ParseControlSocket(s string) (scheme, target string, err error) {
	for _, candidate := range []string{"unix:", "udp6:", "udp:"} {
		if strings.HasPrefix(s, candidate) {
			return strings.TrimSuffix(candidate, ":"), strings.TrimPrefix(s, candidate), nil
		}
	}
	return "", "", fmt.Errorf("unrecognized control socket scheme in %q", s)
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
