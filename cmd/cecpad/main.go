package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("cecpad v%s\n", version)
	fmt.Println("HDMI-CEC remote to virtual gamepad bridge with TV-driven CPU throttling")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  cecpad [OPTIONS]")
	fmt.Println("  cecpad unrestrict-cpu [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that joins the HDMI-CEC bus through libcec, turns TV remote")
	fmt.Println("  keys into gamepad input on a uinput device, and restricts the user slice")
	fmt.Println("  CPU quota while the TV is in standby. A small HTTP endpoint turns the TV")
	fmt.Println("  on and off and shuts the host down.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; defaults apply without it)")
	fmt.Println()
	fmt.Println("  -cec-backend string")
	fmt.Println("        CEC backend: libcec or cec-client (default \"libcec\")")
	fmt.Println()
	fmt.Println("  -cec-client string")
	fmt.Println("        cec-client binary for the cec-client backend (default \"cec-client\")")
	fmt.Println()
	fmt.Println("  -cec-adapter string")
	fmt.Println("        CEC adapter port, e.g. /dev/ttyACM0 (default: autodetect)")
	fmt.Println()
	fmt.Println("  -device-name string")
	fmt.Println("        OSD name announced on the bus (default: hostname)")
	fmt.Println()
	fmt.Println("  -uinput string")
	fmt.Println("        uinput character device (default \"/dev/uinput\")")
	fmt.Println()
	fmt.Println("  -slice string")
	fmt.Println("        systemd slice to throttle (default \"user-1000.slice\")")
	fmt.Println()
	fmt.Println("  -limit-percent int")
	fmt.Println("        CPU quota applied while the TV is in standby (default 10)")
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Println("        HTTP control endpoint address; empty disables (default \"0.0.0.0:3000\")")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC; empty disables (default \"/tmp/cecpad.sock\")")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  unrestrict-cpu")
	fmt.Println("        Lift the CPU quota on the configured slice and exit (status 1 on failure)")
	fmt.Println("        Options: -config, -log-level")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start daemon with default settings")
	fmt.Println("  cecpad")
	fmt.Println()
	fmt.Println("  # Explicit adapter and a gentler throttle")
	fmt.Println("  cecpad -cec-adapter /dev/ttyACM0 -limit-percent 25")
	fmt.Println()
	fmt.Println("  # Restore full CPU at boot, before the daemon starts")
	fmt.Println("  ExecStartPre=/usr/local/bin/cecpad unrestrict-cpu")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires write access to /dev/uinput (run as root or add a udev rule)")
	fmt.Println("  - Changing slice properties requires privileges for systemctl set-property")
	fmt.Println("  - The libcec backend links libcec through cgo; binaries built with")
	fmt.Println("    -tags nolibcec (or CGO_ENABLED=0) only offer the cec-client backend")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "unrestrict-cpu" {
		runUnrestrictSubcommand()
		return
	}

	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		cecBackend    = flag.String("cec-backend", BackendLibCEC, "CEC backend: libcec or cec-client")
		cecClientPath = flag.String("cec-client", "cec-client", "cec-client binary")
		cecAdapter    = flag.String("cec-adapter", "", "CEC adapter port (empty autodetects)")
		deviceName    = flag.String("device-name", "", "OSD name announced on the bus (empty means hostname)")
		uinputPath    = flag.String("uinput", "/dev/uinput", "uinput character device")
		slice         = flag.String("slice", "user-1000.slice", "systemd slice to throttle")
		limitPercent  = flag.Int("limit-percent", 10, "CPU quota percent while the TV is in standby")
		httpListen    = flag.String("http-listen", "0.0.0.0:3000", "HTTP control endpoint address (empty disables)")
		ipcSocketPath = flag.String("ipc-socket", "/tmp/cecpad.sock", "Unix domain socket path for IPC (empty disables)")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Only flags given on the command line override the config file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cec-backend":
			ov.CECBackend = cecBackend
		case "cec-client":
			ov.CECClientPath = cecClientPath
		case "cec-adapter":
			ov.CECAdapter = cecAdapter
		case "device-name":
			ov.CECDeviceName = deviceName
		case "uinput":
			ov.UinputPath = uinputPath
		case "slice":
			ov.Slice = slice
		case "limit-percent":
			ov.LimitPercent = limitPercent
		case "http-listen":
			ov.HTTPListen = httpListen
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})

	cfg, err := loadConfig(*configPath, ov)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := cfg.ResolveDeviceName(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, os.Stdout)

	if err := runDaemon(cfg, logger); err != nil {
		logger.Error("cecpad exited with error", "error", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration: defaults, then the optional
// file, then command-line overrides, then validation.
func loadConfig(path string, ov FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = LoadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
	}
	ov.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runDaemon creates the device and the CEC session and runs every component
// until SIGINT/SIGTERM or the first component failure.
func runDaemon(cfg Config, logger *slog.Logger) error {
	logger.Debug("starting cecpad", "version", version)
	logger.Debug("configuration",
		"cec_backend", cfg.CEC.Backend,
		"cec_client", cfg.CEC.ClientPath,
		"cec_adapter", cfg.CEC.Adapter,
		"device_name", cfg.CEC.DeviceName,
		"uinput", cfg.Device.UinputPath,
		"slice", cfg.Power.Slice,
		"limit_percent", cfg.Power.LimitPercent,
		"http_listen", cfg.HTTP.Listen,
		"ipc_socket", cfg.IPC.SocketPath)

	keymap, err := cfg.BuildKeymap()
	if err != nil {
		return err
	}

	pad, sysname, err := openVirtualPad(cfg.Device, keymap)
	if err != nil {
		return err
	}
	defer func() {
		if err := pad.Close(); err != nil {
			logger.Warn("failed to destroy virtual device", "error", err)
		}
	}()
	logger.Info("virtual gamepad created", "name", cfg.Device.Name, "sysname", sysname, "mapped_keys", keymap.Len())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan Event, cfg.Daemon.EventQueue)
	effects := make(chan Command, cfg.Daemon.EffectsQueue)
	broadcasts := make(chan StateBroadcast, 64)
	stats := NewStats()
	sink := eventSink{events: events, stats: stats, logger: logger}

	session, err := openCECSession(cfg.CEC, newSessionHandlers(sink, logger), logger)
	if err != nil {
		return fmt.Errorf("open CEC session: %w", err)
	}

	control := NewControlPlane(session, NewHostPower(cfg.Power.ShutdownCommand), sink, stats, logger)
	ws := NewStateServer(logger, events, HubConfig{})

	loop := &daemonLoop{
		pad:        pad,
		keymap:     keymap,
		cfg:        cfg.ToCoordinatorConfig(),
		effects:    effects,
		broadcasts: broadcasts,
		stats:      stats,
		logger:     logger,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loop.run(gctx, events, NewDaemonState(time.Now()))
		return nil
	})
	g.Go(func() error {
		runEffectsWorker(gctx, effects, NewSliceQuota(cfg.Power), events, stats, logger)
		return nil
	})
	g.Go(func() error {
		ws.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gctx, ws.Hub(), broadcasts, logger)
		return nil
	})

	if cfg.HTTP.Listen != "" {
		handler := newHTTPHandler(control, events, stats, ws, logger)
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Listen, handler, logger)
		})
	} else {
		logger.Info("HTTP control endpoint disabled")
	}

	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			return runIPCServer(gctx, cfg.IPC.SocketPath, control, logger)
		})
	}

	// The session ends the process if the bus connection is lost; Close on
	// shutdown makes Wait return nil.
	g.Go(session.Wait)
	g.Go(func() error {
		<-gctx.Done()
		return session.Close()
	})

	logger.Info("listening", "http", cfg.HTTP.Listen, "ipc", cfg.IPC.SocketPath, "device_name", cfg.CEC.DeviceName)

	err = g.Wait()
	logger.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ============================================================================
// unrestrict-cpu subcommand
// ============================================================================

func printUnrestrictUsage() {
	fmt.Printf("cecpad unrestrict-cpu v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  cecpad unrestrict-cpu [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Clears the CPUQuota of the configured slice and exits. Does not create")
	fmt.Println("  the virtual device or join the CEC bus.")
	fmt.Println()
	fmt.Println("  Exits with status 1 if systemctl fails, so a unit using it as")
	fmt.Println("  ExecStartPre stops there; prefix the line with \"-\" to ignore failures.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
}

func runUnrestrictSubcommand() {
	fs := flag.NewFlagSet("unrestrict-cpu", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	logLevelStr := fs.String("log-level", "", "Log level: error, warn, info, debug")
	showHelp := fs.Bool("help", false, "Print help message")

	fs.Usage = printUnrestrictUsage
	fs.Parse(os.Args[2:])

	if *showHelp {
		printUnrestrictUsage()
		return
	}

	var ov FlagOverrides
	if *logLevelStr != "" {
		ov.LogLevel = logLevelStr
	}
	cfg, err := loadConfig(*configPath, ov)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, os.Stdout)

	if err := unrestrictCPU(NewSliceQuota(cfg.Power), cfg.Power.Slice, logger); err != nil {
		os.Exit(1)
	}
}

// unrestrictCPU lifts the quota once and logs the outcome.
func unrestrictCPU(quota quotaController, slice string, logger *slog.Logger) error {
	if err := quota.Unlimit(); err != nil {
		logger.Error("failed unlimiting CPU", "slice", slice, "error", err)
		return err
	}
	logger.Info("CPU unrestricted", "slice", slice)
	return nil
}
