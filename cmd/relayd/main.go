// relayd is the media-relay daemon: it forwards RTP/RTCP datagrams
// between the two peers of a signalled call under the direction of an
// external signalling controller, per spec.md.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/dantte-lp/relayd/internal/config"
	"github.com/dantte-lp/relayd/internal/control"
	"github.com/dantte-lp/relayd/internal/metrics"
	"github.com/dantte-lp/relayd/internal/netio"
	"github.com/dantte-lp/relayd/internal/relay"
	appversion "github.com/dantte-lp/relayd/internal/version"
)

// drainTimeout is how long the daemon keeps forwarding and answering D
// after a shutdown signal before it actually exits (SPEC_FULL.md
// "Graceful drain on shutdown").
const drainTimeout = 2 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Println(appversion.Full("relayd"))
		fmt.Println("capabilities:")
		for id := range appversion.Capabilities {
			fmt.Println("  " + id)
		}
		return 0
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLogger(cfg.Log.Format, logLevel)

	logger.Info("relayd starting",
		slog.String("version", appversion.Version),
		slog.String("control_socket", cfg.ControlSocket),
		slog.Int("port_min", int(cfg.PortMin)),
		slog.Int("port_max", int(cfg.PortMax)),
	)

	if err := applyRlimit(cfg.MaxOpenFiles); err != nil {
		logger.Warn("failed to raise RLIMIT_NOFILE", slog.String("error", err.Error()))
	}

	if err := writePidFile(cfg.PidFile); err != nil {
		logger.Error("failed to write pid file", slog.String("error", err.Error()))
		return 1
	}
	defer func() { _ = os.Remove(cfg.PidFile) }()

	if err := runDaemon(cfg, logger); err != nil {
		logger.Error("relayd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("relayd stopped")
	return 0
}

func newLogger(format string, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// runDaemon builds the relay engine, the control transport, and the
// metrics HTTP server, then runs them under an errgroup with
// signal-aware shutdown (spec.md sections 4.5 and 6).
func runDaemon(cfg *config.Config, logger *slog.Logger) error {
	bindPair, isV6 := cfg.BindPair()
	bindAddrs, err := resolveBindPair(bindPair, isV6)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	relayCfg := relay.Config{
		BindAddr:   bindAddrs,
		Bridging:   cfg.Bridging(),
		PortMin:    cfg.PortMin,
		PortMax:    cfg.PortMax,
		MaxTTL:     cfg.MaxTTL,
		TOS:        cfg.TOS,
		DoubleSend: cfg.DoubleSend,
		RecordRTCP: cfg.RecordRTCP,
	}
	table := relay.NewTable(relayCfg, logger, collector)

	controlCfg := control.Config{
		BindAddr:  bindAddrs,
		Bridging:  cfg.Bridging(),
		RecordDir: cfg.RecordDir,
	}
	dispatcher := control.NewDispatcher(table, controlCfg, logger, collector)

	transport, err := newControlTransport(cfg.ControlSocket, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("create control transport: %w", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("control transport close failed", slog.String("error", err.Error()))
		}
	}()
	table.SetControlFd(transport.Fd())

	engine := relay.NewEngine(table, transport)

	ctx, stop := signal.NotifyContext(context.Background(), exitSignals()...)
	defer stop()
	signal.Ignore(syscall.SIGPIPE)

	g, gCtx := errgroup.WithContext(ctx)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr), slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	if cfg.StatsInterval > 0 {
		g.Go(func() error {
			runStatsLogger(gCtx, table, cfg.StatsInterval, logger)
			return nil
		})
	}

	// The event loop runs on its own context so that it keeps forwarding
	// and answering D through the drain window after a signal.
	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()

	g.Go(func() error {
		return engine.Run(engineCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		err := gracefulShutdown(dispatcher, metricsSrv, logger)
		stopEngine()
		return err
	})

	notifyReady(logger)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run relayd: %w", err)
	}
	return nil
}

// exitSignals lists every signal spec.md section 6 maps to a clean exit
// via the at-exit handler.
func exitSignals() []os.Signal {
	return []os.Signal{
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM,
		syscall.SIGUSR1, syscall.SIGUSR2,
		syscall.SIGXCPU, syscall.SIGXFSZ,
		syscall.SIGVTALRM, syscall.SIGPROF,
	}
}

// gracefulShutdown enters the dispatcher's drain window (rejecting new
// U/L/P with E9 while still answering D and forwarding media), waits out
// drainTimeout, then shuts down the metrics server.
func gracefulShutdown(d *control.Dispatcher, metricsSrv *http.Server, logger *slog.Logger) error {
	logger.Info("shutting down, entering drain window", slog.Duration("drain_timeout", drainTimeout))
	d.SetDraining(true)

	notifyStopping(logger)

	time.Sleep(drainTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: cfg.Addr, Handler: mux}
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// controlTransport is satisfied by both control.UnixTransport and
// control.UDPTransport: the poll-registration and lifecycle surface the
// event loop and main need, beyond relay.ControlHandler's HandleReadable.
type controlTransport interface {
	relay.ControlHandler
	Fd() int
	Close() error
}

// newControlTransport builds the control-wire transport named by sockSpec
// (spec.md section 6: "-s {unix:|udp:|udp6:}path").
func newControlTransport(sockSpec string, d *control.Dispatcher, logger *slog.Logger) (controlTransport, error) {
	scheme, target, err := config.ParseControlSocket(sockSpec)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "unix":
		return control.NewUnixTransport(target, d, logger)
	case "udp", "udp6":
		laddr, err := netip.ParseAddrPort(target)
		if err != nil {
			return nil, fmt.Errorf("parse control udp address %q: %w", target, err)
		}
		sock, err := netio.NewSocket(laddr, 0)
		if err != nil {
			return nil, fmt.Errorf("bind control udp socket: %w", err)
		}
		return control.NewUDPTransport(sock, d, logger), nil
	default:
		return nil, fmt.Errorf("unsupported control socket scheme %q", scheme)
	}
}

// resolveBindPair parses a "-l"/"-6" address pair into the netip.Addr
// pair relay.Config expects. The second slot stays the zero value
// outside bridging mode.
func resolveBindPair(pair [2]string, isV6 bool) ([2]netip.Addr, error) {
	var out [2]netip.Addr
	for i, s := range pair {
		if s == "" {
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return out, fmt.Errorf("parse bind address %q: %w", s, err)
		}
		if isV6 && a.Is4() {
			return out, fmt.Errorf("bind address %q is not IPv6", s)
		}
		out[i] = a
	}
	return out, nil
}

// applyRlimit requests RLIMIT_NOFILE of n (spec.md section 6, "-L
// nfiles"). n == 0 leaves the inherited limit untouched.
func applyRlimit(n uint64) error {
	if n == 0 {
		return nil
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: n, Max: n})
}

// writePidFile truncates and writes path with the current process ID
// (spec.md section 6: "a PID file is truncated and written at startup").
func writePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// runStatsLogger periodically logs aggregate packet-count deltas,
// independent of the 1 Hz TTL tick (SPEC_FULL.md "-i interval",
// supplemented from the rtpproxy lineage's periodic stats logging).
func runStatsLogger(ctx context.Context, table *relay.Table, interval time.Duration, logger *slog.Logger) {
	var lastIn, lastRelayed, lastDropped uint64

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var in, relayed, dropped uint64
			for _, s := range table.Sessions() {
				in += s.Counts[relay.CounterInCallee] + s.Counts[relay.CounterInCaller]
				relayed += s.Counts[relay.CounterRelayed]
				dropped += s.Counts[relay.CounterDropped]
			}

			dIn, dRelayed, dDropped := in-lastIn, relayed-lastRelayed, dropped-lastDropped
			lastIn, lastRelayed, lastDropped = in, relayed, dropped

			logger.Info("relay stats",
				slog.Int("sessions", len(table.Sessions())),
				slog.Uint64("packets_in_delta", dIn),
				slog.Uint64("packets_relayed_delta", dRelayed),
				slog.Uint64("packets_dropped_delta", dDropped),
			)
		}
	}
}

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}
