package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"i4.energy/across/lorae5/modem"
	"i4.energy/across/lorae5/service"
)

func main() {
	flag.String("config", "", "Path to a YAML configuration file (also CONFIG_FILE)")
	flag.String("serial-port", "", "Serial port of the module; found by USB id when empty")
	flag.String("usb-vid", "10C4", "USB vendor id of the module's UART bridge (hex)")
	flag.String("usb-pid", "EA60", "USB product id of the module's UART bridge (hex)")
	flag.Int("buffer-size", modem.DefaultBufferSize, "Receive buffer size in bytes")
	flag.Int("queue-size", service.DefaultQueueSize, "Number of requests that may wait for the device")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Duration("at-timeout", modem.DefaultATTimeout, "Timeout for single line AT commands")
	flag.Duration("join-timeout", modem.DefaultJoinTimeout, "Timeout for joins")
	flag.Duration("send-timeout", modem.DefaultSendTimeout, "Timeout for uplinks")
	flag.Usage = usage
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(configFile()), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(config.LogLevel)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		flag.Usage()
		os.Exit(2)
	}
	act, err := cmd.parse(flag.Args()[1:], config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nusage: %s [flags] %s %s\n", err, os.Args[0], name, cmd.args)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, config.Dialer(), logger, act, os.Stdout); err != nil {
		logger.Error("Command failed", "command", name, "error", err)
		stop()
		os.Exit(1)
	}
}

// run opens the module through dialer, starts the dispatch loop and runs act
// against it. The loop is shut down before run returns.
func run(ctx context.Context, config *Config, dialer modem.Dialer, logger *slog.Logger, act action, out io.Writer) error {
	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(dialer).
		WithLogger(logger.With("component", "modem")).
		WithBufferSize(config.BufferSize).
		WithATTimeout(config.ATTimeout).
		WithJoinTimeout(config.JoinTimeout).
		WithSendTimeout(config.SendTimeout).
		Build()
	if err != nil {
		return fmt.Errorf("modem config: %w", err)
	}

	dev, err := modem.Open(ctx, modemConfig)
	if err != nil {
		return fmt.Errorf("open modem: %w", err)
	}

	svc := service.New(dev,
		service.WithQueueSize(config.QueueSize),
		service.WithLogger(logger.With("component", "service")),
	)
	client := svc.Client()

	loopErr := make(chan error, 1)
	go func() { loopErr <- svc.Run(context.Background()) }()

	// the action stops early if the loop terminates underneath it
	actionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-svc.Done():
			cancel()
		case <-actionCtx.Done():
		}
	}()

	err = act(actionCtx, client, out)

	if shutdownErr := client.Shutdown(context.Background()); shutdownErr != nil && !errors.Is(shutdownErr, service.ErrClosed) {
		logger.Warn("Failed to shut down dispatch loop", "error", shutdownErr)
	}
	if runErr := <-loopErr; runErr != nil {
		logger.Warn("Dispatch loop stopped with error", "error", runErr)
	}
	return err
}

func configFile() string {
	if f := flag.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return os.Getenv("CONFIG_FILE")
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [args]\n\nCommands:\n", os.Args[0])
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		c := commands[name]
		fmt.Fprintf(out, "  %s %s\n    \t%s\n", name, c.args, c.summary)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}
