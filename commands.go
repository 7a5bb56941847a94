package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"i4.energy/across/lorae5/modem"
)

// errUsage marks command line mistakes. They are reported with the usage text
// and exit status 2.
var errUsage = errors.New("usage")

// action runs a parsed command against the device and prints its result.
type action func(ctx context.Context, device Device, out io.Writer) error

type command struct {
	args    string
	summary string
	parse   func(args []string, config *Config, logger *slog.Logger) (action, error)
}

var commands = map[string]command{
	"at": {
		args:    "<command> [timeout-ms=250]",
		summary: "send a raw AT command and print the first line of the answer",
		parse:   parseAT,
	},
	"join": {
		args:    "[-force]",
		summary: "join the network, keeping an active session unless -force is given",
		parse:   parseJoin,
	},
	"configure": {
		args:    "[<dev-eui> <app-eui> <app-key>]",
		summary: "configure OTAA on US915 sub-band 2 with the given or configured credentials",
		parse:   parseConfigure,
	},
	"dev-eui": {
		summary: "print the DevEui",
		parse:   noArgs(func(ctx context.Context, d Device, out io.Writer) error {
			eui, err := d.DevEUI(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, eui)
			return err
		}),
	},
	"app-eui": {
		summary: "print the AppEui",
		parse:   noArgs(func(ctx context.Context, d Device, out io.Writer) error {
			eui, err := d.AppEUI(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, eui)
			return err
		}),
	},
	"datarate": {
		args:    "<0-4>",
		summary: "set the uplink data rate",
		parse:   parseDataRate,
	},
	"send": {
		args:    "[-confirmed] <hex> [port=1]",
		summary: "send hex encoded data as an uplink",
		parse:   parseSend,
	},
	"send-text": {
		args:    "[-confirmed] <text> [port=1]",
		summary: "send text as an uplink",
		parse:   parseSendText,
	},
	"version": {
		summary: "print the firmware version",
		parse:   noArgs(func(ctx context.Context, d Device, out io.Writer) error {
			version, err := d.Version(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, version)
			return err
		}),
	},
	"ping": {
		summary: "check that the module answers AT",
		parse:   noArgs(func(ctx context.Context, d Device, out io.Writer) error {
			ok, err := d.Ping(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("module did not answer AT")
			}
			_, err = fmt.Fprintln(out, "OK")
			return err
		}),
	},
	"serve": {
		summary: "serve the device over HTTP on the bind address",
		parse:   parseServe,
	},
}

func noArgs(a action) func([]string, *Config, *slog.Logger) (action, error) {
	return func(args []string, _ *Config, _ *slog.Logger) (action, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: unexpected arguments %q", errUsage, args)
		}
		return a, nil
	}
}

func parseAT(args []string, _ *Config, _ *slog.Logger) (action, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("%w: at takes a command and an optional timeout", errUsage)
	}
	cmd := args[0]
	timeout := DefaultATCommandTimeout
	if len(args) == 2 {
		ms, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: timeout: %w", errUsage, err)
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	return func(ctx context.Context, d Device, out io.Writer) error {
		response, err := d.At(ctx, cmd, timeout)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, response)
		return err
	}, nil
}

func parseJoin(args []string, _ *Config, _ *slog.Logger) (action, error) {
	fSet := flag.NewFlagSet("join", flag.ContinueOnError)
	fSet.SetOutput(io.Discard)
	force := fSet.Bool("force", false, "discard an active session")
	if err := fSet.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fSet.NArg() != 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %q", errUsage, fSet.Args())
	}

	return func(ctx context.Context, d Device, out io.Writer) error {
		result, err := d.Join(ctx, *force)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, result)
		return err
	}, nil
}

func parseConfigure(args []string, config *Config, _ *slog.Logger) (action, error) {
	var credentials modem.Credentials
	switch len(args) {
	case 0:
		if config.Credentials == nil {
			return nil, fmt.Errorf("%w: no credentials given and none configured", errUsage)
		}
		credentials = *config.Credentials
	case 3:
		var err error
		if credentials.DevEUI, err = modem.ParseDevEUI(args[0]); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		if credentials.AppEUI, err = modem.ParseAppEUI(args[1]); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		if credentials.AppKey, err = modem.ParseAppKey(args[2]); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
	default:
		return nil, fmt.Errorf("%w: configure takes a DevEui, an AppEui and an AppKey", errUsage)
	}

	return func(ctx context.Context, d Device, out io.Writer) error {
		if err := d.Configure(ctx, credentials); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "Credentials configured")
		return err
	}, nil
}

func parseDataRate(args []string, _ *Config, _ *slog.Logger) (action, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: datarate takes a single data rate", errUsage)
	}
	dr, err := modem.ParseDataRate(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	return func(ctx context.Context, d Device, out io.Writer) error {
		if err := d.SetDataRate(ctx, dr); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "%s set\n", dr.Echo())
		return err
	}, nil
}

// parseUplinkArgs handles the arguments shared by send and send-text.
func parseUplinkArgs(name string, args []string) (payload string, port uint8, confirmed bool, err error) {
	fSet := flag.NewFlagSet(name, flag.ContinueOnError)
	fSet.SetOutput(io.Discard)
	fSet.BoolVar(&confirmed, "confirmed", false, "require an ACK from the network")
	if err := fSet.Parse(args); err != nil {
		return "", 0, false, fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := fSet.Args()
	if len(rest) < 1 || len(rest) > 2 {
		return "", 0, false, fmt.Errorf("%w: %s takes a payload and an optional port", errUsage, name)
	}
	port = 1
	if len(rest) == 2 {
		p, err := strconv.ParseUint(rest[1], 10, 8)
		if err != nil || p == 0 {
			return "", 0, false, fmt.Errorf("%w: invalid port %q", errUsage, rest[1])
		}
		port = uint8(p)
	}
	return rest[0], port, confirmed, nil
}

func parseSend(args []string, _ *Config, _ *slog.Logger) (action, error) {
	payload, port, confirmed, err := parseUplinkArgs("send", args)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", errUsage, modem.ErrInvalidHex, err)
	}

	return func(ctx context.Context, d Device, out io.Writer) error {
		downlink, err := d.Send(ctx, data, port, confirmed)
		if err != nil {
			return err
		}
		return printDownlink(out, downlink)
	}, nil
}

func parseSendText(args []string, _ *Config, _ *slog.Logger) (action, error) {
	text, port, confirmed, err := parseUplinkArgs("send-text", args)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, d Device, out io.Writer) error {
		downlink, err := d.SendText(ctx, text, port, confirmed)
		if err != nil {
			return err
		}
		return printDownlink(out, downlink)
	}, nil
}

func printDownlink(out io.Writer, downlink *modem.Downlink) error {
	if downlink == nil {
		_, err := fmt.Fprintln(out, "Sent, no downlink")
		return err
	}
	_, err := fmt.Fprintf(out, "Sent, downlink RSSI %d dBm, SNR %.1f dB\n", downlink.RSSI, downlink.SNR)
	return err
}

// parseServe returns an action serving the device over HTTP until ctx is
// cancelled.
func parseServe(args []string, config *Config, logger *slog.Logger) (action, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %q", errUsage, args)
	}

	return func(ctx context.Context, d Device, _ io.Writer) error {
		httpServer := &http.Server{
			Addr:    config.BindAddress,
			Handler: NewServer(logger.With("component", "server"), d),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Starting HTTP server", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Closing HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
		return g.Wait()
	}, nil
}
