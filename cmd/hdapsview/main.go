package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("hdapsview v%s\n", version)
	fmt.Println("Live 3D view of a ThinkPad's tilt from the HDAPS accelerometer")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  hdapsview [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls the HDAPS position file, captures the first sample as the level")
	fmt.Println("  rest position and draws a laptop tilted by the debounced offset.")
	fmt.Println("  The scene is redrawn only when the displayed rotation changes.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -sensor-source string")
	fmt.Println("        Sensor source: sysfs|sim (default \"sysfs\")")
	fmt.Println()
	fmt.Println("  -sensor-path string")
	fmt.Printf("        HDAPS position file (default %q)\n", defaultSensorPath)
	fmt.Println()
	fmt.Println("  -poll-interval-ms int")
	fmt.Printf("        Yield between sensor polls in ms (default %d)\n", defaultPollIntervalMS)
	fmt.Println()
	fmt.Println("  -threshold int")
	fmt.Printf("        Debounce band in raw sensor units (default %d)\n", defaultThreshold)
	fmt.Println()
	fmt.Println("  -display string")
	fmt.Println("        Display mode: terminal|headless (default \"terminal\")")
	fmt.Println()
	fmt.Println("  -fullscreen")
	fmt.Println("        Start fullscreen (default true)")
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Printf("        Enable the HTTP server on this address (default %q when enabled)\n", defaultHTTPListen)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -mqtt-broker string")
	fmt.Println("        Publish rotations to this MQTT broker (enables MQTT)")
	fmt.Println()
	fmt.Println("  -mqtt-topic string")
	fmt.Printf("        MQTT topic (default %q)\n", defaultMQTTTopic)
	fmt.Println()
	fmt.Println("  -metrics")
	fmt.Println("        Serve Prometheus metrics at /metrics (requires the HTTP server)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -log-file string")
	fmt.Println("        Append logs to this file (terminal mode discards logs otherwise)")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("KEYS:")
	fmt.Println("  f        toggle fullscreen")
	fmt.Println("  q, Esc   quit")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Terminal view with default settings")
	fmt.Println("  hdapsview")
	fmt.Println()
	fmt.Println("  # Headless, serve frames and a websocket feed")
	fmt.Println("  hdapsview -display headless -http-listen 127.0.0.1:8091")
	fmt.Println()
	fmt.Println("  # Try it without HDAPS hardware")
	fmt.Println("  hdapsview -sensor-source sim")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires the hdaps kernel module (modprobe hdaps)")
	fmt.Println("  - Keep the machine level at startup; the first sample is the rest position")
	fmt.Println()
}

func main() {
	os.Exit(run())
}

func run() int {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return 0
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return 0
		}
	}

	var (
		configPath     = flag.String("config", "", "YAML config file")
		sensorSource   = flag.String("sensor-source", SensorSourceSysfs, "Sensor source: sysfs|sim")
		sensorPath     = flag.String("sensor-path", defaultSensorPath, "HDAPS position file")
		pollIntervalMS = flag.Int("poll-interval-ms", defaultPollIntervalMS, "Yield between sensor polls in ms")
		threshold      = flag.Int("threshold", defaultThreshold, "Debounce band in raw sensor units")
		displayMode    = flag.String("display", DisplayModeTerminal, "Display mode: terminal|headless")
		fullscreen     = flag.Bool("fullscreen", true, "Start fullscreen")
		httpListen     = flag.String("http-listen", defaultHTTPListen, "HTTP listen address (enables HTTP)")
		ipcSocket      = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		mqttBroker     = flag.String("mqtt-broker", defaultMQTTBroker, "MQTT broker URL (enables MQTT)")
		mqttTopic      = flag.String("mqtt-topic", defaultMQTTTopic, "MQTT topic")
		metrics        = flag.Bool("metrics", false, "Serve Prometheus metrics at /metrics")
		logLevelStr    = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		logFile        = flag.String("log-file", "", "Append logs to this file")
		_              = flag.Bool("version", false, "Print version and exit")
		_              = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sensor-source":
			ov.SensorSource = sensorSource
		case "sensor-path":
			ov.SensorPath = sensorPath
		case "poll-interval-ms":
			ov.PollIntervalMS = pollIntervalMS
		case "threshold":
			ov.Threshold = threshold
		case "display":
			ov.DisplayMode = displayMode
		case "fullscreen":
			ov.Fullscreen = fullscreen
		case "http-listen":
			ov.HTTPListen = httpListen
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocket
		case "mqtt-broker":
			ov.MQTTBroker = mqttBroker
			enabled := true
			ov.MQTTEnabled = &enabled
		case "mqtt-topic":
			ov.MQTTTopic = mqttTopic
		case "metrics":
			ov.MetricsEnabled = metrics
		case "log-level":
			ov.LogLevel = logLevelStr
		case "log-file":
			ov.LogFile = logFile
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logOut, closeLog, err := openLogOutput(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer closeLog()
	logger := setupLogger(logLevel, logOut)

	logger.Debug("starting hdapsview", "version", version)
	logger.Debug("configuration",
		"sensor_source", cfg.Sensor.Source,
		"sensor_path", cfg.Sensor.Path,
		"poll_interval_ms", cfg.Sensor.PollIntervalMS,
		"threshold", cfg.Sensor.Threshold,
		"display", cfg.Display.Mode,
		"fullscreen", cfg.Display.Fullscreen,
		"http_enabled", cfg.HTTP.Enabled,
		"http_listen", cfg.HTTP.Listen,
		"ipc_enabled", cfg.IPC.Enabled,
		"ipc_socket", cfg.IPC.SocketPath,
		"mqtt_enabled", cfg.MQTT.Enabled,
		"metrics_enabled", cfg.Metrics.Enabled)

	// ------------------------------------------------------------------------
	// Sensor + rest position
	// ------------------------------------------------------------------------
	var source SensorSource
	switch cfg.Sensor.Source {
	case SensorSourceSim:
		source = newSimSource()
	default:
		source = newSysfsSource(cfg.Sensor.Path, logger)
	}

	var lm *loopMetrics
	if cfg.Metrics.Enabled {
		lm = newLoopMetrics()
	}

	rest, err := captureBaseline(source)
	if err != nil {
		lm.observeSensorError(err)
		logger.Error("startup failed", "error", err)
		fmt.Fprintln(os.Stderr, "error:", sensorDiagnostic(err))
		return 1
	}
	logger.Info("rest position captured", "x", rest.X, "y", rest.Y)

	// ------------------------------------------------------------------------
	// Renderer + sinks
	// ------------------------------------------------------------------------
	var (
		primary Renderer
		term    *termRenderer
	)
	switch cfg.Display.Mode {
	case DisplayModeTerminal:
		term, err = newTermRenderer(cfg.Display.Fullscreen, cfg.Display.WindowWidth, cfg.Display.WindowHeight, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		defer term.Close()
		primary = term
	default:
		primary = logRenderer{logger: logger}
	}

	var sinks []Sink
	if lm != nil {
		sinks = append(sinks, lm)
	}
	if cfg.MQTT.Enabled {
		client, err := connectMQTT(cfg.MQTT, logger)
		if err != nil {
			// The view works without a broker.
			logger.Warn("mqtt disabled", "error", err)
		} else {
			defer client.Disconnect(250)
			sinks = append(sinks, newMQTTSink(client, cfg.MQTT, logger))
		}
	}

	// ------------------------------------------------------------------------
	// Sampling loop
	// ------------------------------------------------------------------------
	broadcasts := make(chan StateBroadcast, 64)

	loop := NewLoop(LoopConfig{
		Source:     source,
		Renderer:   newFanoutRenderer(primary, sinks, logger),
		State:      NewLoopState(rest, cfg.Display.Fullscreen),
		Reducer:    cfg.ToReducerConfig(),
		Interval:   cfg.PollInterval(),
		Broadcasts: broadcasts,
		Metrics:    lm,
		Logger:     logger,
	})

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// Services outlive the loop briefly so the shutdown broadcast can go out.
	svcCtx, cancelServices := context.WithCancel(context.Background())
	defer cancelServices()

	g, gctx := errgroup.WithContext(svcCtx)

	// A failing service stops the loop as well.
	serviceFailed := func(name string, err error) error {
		if err != nil {
			logger.Error("service failed", "service", name, "error", err)
			loop.RequestQuit(name + "_error")
		}
		return err
	}

	var ws *Server
	if cfg.HTTP.Enabled {
		ws = NewServer(logger, loop.Events(), HubConfig{})

		mux := http.NewServeMux()
		mux.Handle("/ws", ws)
		mux.Handle("/api/rotation", rotationHandler(loop.Events(), logger))
		mux.Handle("/frame.png", &frameHandler{
			events: loop.Events(),
			width:  cfg.Display.FrameWidth,
			height: cfg.Display.FrameHeight,
			logger: logger,
		})
		if lm != nil {
			mux.Handle("/metrics", lm.Handler())
		}

		g.Go(func() error {
			ws.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			return serviceFailed("http", runHTTPServer(gctx, cfg.HTTP.Listen, mux, logger))
		})
	}

	broadcasterDone := make(chan struct{})
	go func() {
		defer close(broadcasterDone)
		if ws == nil {
			// Nobody listens; keep the loop's non-blocking sends cheap.
			for range broadcasts {
			}
			return
		}
		RunBroadcaster(svcCtx, ws.Hub(), broadcasts, logger)
	}()

	if cfg.IPC.Enabled {
		g.Go(func() error {
			err := runIPCServer(gctx, ExpandPath(cfg.IPC.SocketPath), loop.Events(), logger)
			if errors.Is(err, errSocketInUse) {
				// Another viewer owns the socket; keep running without IPC.
				logger.Warn("IPC disabled", "error", err)
				return nil
			}
			return serviceFailed("ipc", err)
		})
	}

	if term != nil {
		g.Go(func() error {
			term.pollInput(gctx, loop.Events())
			return nil
		})
	}

	// ------------------------------------------------------------------------
	// Run until quit, signal or failure
	// ------------------------------------------------------------------------
	loopErr := loop.Run(ctx)

	close(broadcasts)
	<-broadcasterDone
	cancelServices()
	if term != nil {
		// Unblocks pollInput and restores the terminal before any output.
		term.Close()
	}
	if err := g.Wait(); err != nil && loopErr == nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	if loopErr != nil {
		logger.Error("sampling loop failed", "error", loopErr)
		var se *SensorError
		if errors.As(loopErr, &se) {
			fmt.Fprintln(os.Stderr, "error:", sensorDiagnostic(loopErr))
		} else {
			fmt.Fprintln(os.Stderr, "error:", loopErr)
		}
		return 1
	}

	logger.Info("shutting down")
	return 0
}

// openLogOutput picks the log destination. In terminal mode stdout belongs
// to the screen, so logs go to logging.file or nowhere.
func openLogOutput(cfg Config) (io.Writer, func(), error) {
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(ExpandPath(cfg.Logging.File), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
	if cfg.Display.Mode == DisplayModeTerminal {
		return io.Discard, func() {}, nil
	}
	return os.Stdout, func() {}, nil
}
