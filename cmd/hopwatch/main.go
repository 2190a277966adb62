package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hopwatch/internal/config"
	"hopwatch/internal/echo"
	"hopwatch/internal/execx"
	"hopwatch/internal/hops"
	"hopwatch/internal/metrics"
	"hopwatch/internal/model"
	"hopwatch/internal/monitor"
	"hopwatch/internal/probe"
	"hopwatch/internal/resolve"
	"hopwatch/internal/stunutil"
	"hopwatch/internal/view"
)

const usage = `hopwatch - live latency monitor with a durable CSV log

Usage:
  hopwatch [flags] [target ...]
  hopwatch stats <file.csv>
  hopwatch echo serve [--listen :0]
  hopwatch echo probe --peer <host:port> [--timeout 1s]
  hopwatch stun [--server stun.l.google.com:19302] [--timeout 3s]
  hopwatch config init --config <path>

Targets are host names or addresses (ICMP), udp://host:port (echo
responder) or stun:host:port. With --cmd every target is a command to time.
Without targets, three hosts are picked from a traceroute to --trace-host.

Run "hopwatch -h" for the monitor flags.
`

func main() {
	if len(os.Args) < 2 {
		handleRun(nil)
		return
	}

	switch os.Args[1] {
	case "help", "--help":
		fmt.Print(usage)
	case "stats":
		handleStats(os.Args[2:])
	case "echo":
		handleEcho(os.Args[2:])
	case "stun":
		handleSTUN(os.Args[2:])
	case "config":
		handleConfig(os.Args[2:])
	default:
		handleRun(os.Args[1:])
	}
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("hopwatch", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nFlags:")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "path to YAML config")
	cmdMode := fs.Bool("cmd", false, "treat targets as commands to time")
	interval := fs.Duration("n", 0, "probe interval (default 500ms)")
	window := fs.Duration("b", 0, "chart window (default 30s)")
	ipv4 := fs.Bool("4", false, "resolve hosts to IPv4 only")
	ipv6 := fs.Bool("6", false, "resolve hosts to IPv6 only")
	timeout := fs.Duration("timeout", 0, "per-probe timeout (default 1s)")
	logDir := fs.String("log-dir", "", "directory for pingN.csv logs (default .)")
	traceHost := fs.String("trace-host", "", "traceroute destination used when no targets are given")
	nameserver := fs.String("nameserver", "", "DNS server for host lookups")
	stunList := fs.String("stun", "", "comma-separated STUN servers to monitor")
	noClear := fs.Bool("no-clear", false, "append frames instead of redrawing the screen")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	overrideRun(&cfg, *cmdMode, *ipv4, *ipv6, *interval, *window, *timeout, *logDir, *traceHost, *nameserver, *stunList)
	cfg.Targets = append(cfg.Targets, fs.Args()...)
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	runner := execx.NewOSRunner()
	resolver := resolve.New(cfg.Nameserver)

	if len(cfg.Targets) == 0 {
		sel, err := hops.Discover(ctx, runner, resolver, hops.Native(), cfg.TraceHost)
		if err != nil {
			fatal(fmt.Errorf("discover hosts via %s: %w", cfg.TraceHost, err))
		}
		cfg.Targets = sel[:]
		fmt.Fprintf(os.Stdout, "pinging the following hosts: %s\n", strings.Join(cfg.Targets, ", "))
	}
	if !cfg.Cmd {
		for _, server := range cfg.STUNServers {
			cfg.Targets = append(cfg.Targets, "stun:"+server)
		}
	}

	targets, err := buildTargets(ctx, resolver, cfg)
	if err != nil {
		fatal(err)
	}

	opts := probe.Options{Runner: runner, Interval: cfg.Interval, Timeout: cfg.Timeout}
	producers := make([]probe.Producer, len(targets))
	labels := make([]string, len(targets))
	for i, t := range targets {
		if producers[i], err = probe.For(t, opts); err != nil {
			fatal(err)
		}
		labels[i] = t.Label()
	}

	logger, err := metrics.Create(cfg.LogDir, labels, cfg.Interval)
	if err != nil {
		fatal(err)
	}

	sup := probe.NewSupervisor(probe.DefaultQueue)
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			sup.Cancel("interrupt")
		case <-finished:
		}
	}()

	m := monitor.New(targets, logger, view.NewPrinter(os.Stdout, !*noClear), monitor.Options{
		Window:         cfg.Window,
		TimeoutValue:   cfg.TimeoutValue,
		RedrawInterval: cfg.RedrawInterval,
	})
	sup.StartAll(targets, producers)
	err = m.Run(context.Background(), sup)
	close(finished)

	fmt.Fprintf(os.Stdout, "latency log written to %s\n", logger.Path())
	fatal(err)
}

func buildTargets(ctx context.Context, resolver *resolve.Resolver, cfg config.Config) ([]model.Target, error) {
	family := resolve.Any
	switch {
	case cfg.IPv4:
		family = resolve.V4
	case cfg.IPv6:
		family = resolve.V6
	}

	targets := make([]model.Target, 0, len(cfg.Targets))
	for i, raw := range cfg.Targets {
		name, kind := model.ParseTarget(raw, cfg.Cmd)
		t := model.Target{Index: i, Name: name, Kind: kind}
		switch kind {
		case model.KindHost:
			addr, err := resolver.Pick(ctx, name, family)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", name, err)
			}
			t.Addr = addr.String()
		case model.KindUDP, model.KindSTUN:
			t.Addr = name
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatal(errors.New("usage: hopwatch stats <file.csv>"))
	}

	lg, err := metrics.ReadLog(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	summary, err := metrics.Summarize(lg.Columns)
	if errors.Is(err, metrics.ErrNoData) {
		fmt.Fprintln(os.Stdout, "no samples")
		return
	}
	if err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stdout, "rows=%d\n", len(lg.Times))
	fmt.Fprintf(os.Stdout, "%-32s  %8s  %8s  %8s  %8s\n", "TARGET", "SAMPLES", "AVG_MS", "P95_MS", "P99_MS")
	for i, s := range summary {
		fmt.Fprintf(os.Stdout, "%-32s  %8d  %8d  %8d  %8d\n", lg.Labels[i], s.Count, s.Avg, s.P95, s.P99)
	}
}

func handleEcho(args []string) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "echo subcommand required\n")
		os.Exit(2)
	}

	switch args[0] {
	case "serve":
		echoServe(args[1:])
	case "probe":
		echoProbe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown echo subcommand %q\n", args[0])
		os.Exit(2)
	}
}

func echoServe(args []string) {
	fs := flag.NewFlagSet("echo serve", flag.ExitOnError)
	listen := fs.String("listen", ":0", "local UDP listen address")
	_ = fs.Parse(args)

	resp, err := echo.Listen(*listen)
	if err != nil {
		fatal(err)
	}
	defer resp.Close()

	fmt.Fprintf(os.Stdout, "echo responder listening on %s\n", resp.Addr())
	waitForSignal()
}

func echoProbe(args []string) {
	fs := flag.NewFlagSet("echo probe", flag.ExitOnError)
	peer := fs.String("peer", "", "responder host:port")
	timeout := fs.Duration("timeout", config.DefaultTimeout, "probe timeout")
	_ = fs.Parse(args)

	if *peer == "" {
		fatal(errors.New("--peer is required"))
	}
	rtt, err := echo.Probe(context.Background(), *peer, *timeout)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "echo ok peer=%s rtt=%s\n", *peer, rtt)
}

func handleSTUN(args []string) {
	fs := flag.NewFlagSet("stun", flag.ExitOnError)
	server := fs.String("server", "stun.l.google.com:19302", "STUN server")
	timeout := fs.Duration("timeout", 3*time.Second, "binding timeout")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	res, err := stunutil.RoundTrip(ctx, *server, *timeout)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "stun ok server=%s rtt=%s mapped=%s\n", *server, res.RTT, res.Mapped)
}

func handleConfig(args []string) {
	if len(args) == 0 || args[0] != "init" {
		fmt.Fprint(os.Stderr, "usage: hopwatch config init --config <path>\n")
		os.Exit(2)
	}
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	configPath := fs.String("config", "", "path to write")
	_ = fs.Parse(args[1:])

	if *configPath == "" {
		fatal(errors.New("--config is required"))
	}
	cfg := config.Config{Targets: fs.Args()}
	if err := config.Save(*configPath, cfg); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *configPath)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func overrideRun(cfg *config.Config, cmdMode, ipv4, ipv6 bool, interval, window, timeout time.Duration, logDir, traceHost, nameserver, stunList string) {
	if cmdMode {
		cfg.Cmd = true
	}
	if ipv4 {
		cfg.IPv4 = true
	}
	if ipv6 {
		cfg.IPv6 = true
	}
	if interval > 0 {
		cfg.Interval = interval
	}
	if window > 0 {
		cfg.Window = window
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if logDir != "" {
		cfg.LogDir = logDir
	}
	if traceHost != "" {
		cfg.TraceHost = traceHost
	}
	if nameserver != "" {
		cfg.Nameserver = nameserver
	}
	if stunList != "" {
		cfg.STUNServers = splitList(stunList)
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()
	return ctx, cancel
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
