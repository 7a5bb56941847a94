package modem

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"i4.energy/across/lorae5/at"
)

// Device represents an open LoRa-E5 module and is the session every AT
// operation runs against. It owns the transport and a fixed size receive
// buffer that is reused by every operation and never grows.
//
// A Device is not safe for concurrent use. Exactly one goroutine may run
// operations on it at a time; the service package provides that guarantee to
// concurrent callers.
type Device struct {
	// transport provides the physical connection to the module
	transport Transport
	// config contains timeouts and the buffer size
	config Config
	// buf is the receive scratch space, allocated once in Open
	buf []byte
	// closed indicates if the device has been shut down
	closed bool
	logger *slog.Logger
}

// Open dials the module described by config and prepares the receive buffer.
//
// Returns an error if the configuration has no Dialer or the transport
// cannot be established.
func Open(ctx context.Context, config Config) (*Device, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	return &Device{
		transport: transport,
		config:    config,
		buf:       make([]byte, config.BufferSize),
		logger:    config.Logger,
	}, nil
}

// Close releases the transport. After calling Close the Device cannot be
// reused.
func (d *Device) Close() error {
	if d.closed {
		return ErrAlreadyClosed
	}
	d.closed = true

	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}

func (d *Device) ready() error {
	if d.closed {
		return ErrAlreadyClosed
	}
	if d.transport == nil {
		return ErrNotInitialized
	}
	return nil
}

// writeCommand sends cmd followed by a newline as two separate writes. A
// write that does not take every byte fails the operation.
func (d *Device) writeCommand(cmd string) error {
	if err := d.ready(); err != nil {
		return err
	}

	if r, ok := d.transport.(interface{ ResetInputBuffer() error }); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return fmt.Errorf("%w: reset input: %w", ErrTransport, err)
		}
	}

	d.logger.Debug("write command", "cmd", cmd)
	if err := d.write([]byte(cmd)); err != nil {
		return err
	}
	return d.write([]byte(at.LF))
}

func (d *Device) write(p []byte) error {
	n, err := d.transport.Write(p)
	if err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrTransport, p, err)
	}
	if n != len(p) {
		return &ShortWriteError{Written: n, Expected: len(p)}
	}
	return nil
}

// readUntilPattern accumulates bytes into the receive buffer until its
// content ends with one of patterns and returns the number of bytes read.
//
// The whole read is bounded by timeout. When it expires the accumulated text
// is returned inside a ResponseError of kind ErrPartialResponse.
func (d *Device) readUntilPattern(patterns []string, timeout time.Duration) (int, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}

	cursor := 0
	deadline := time.Now().Add(timeout)
	for {
		if cursor == len(d.buf) {
			return cursor, responseError(ErrBufferFull, string(d.buf[:cursor]))
		}

		n, err := d.transport.Read(d.buf[cursor:])
		if err != nil {
			return cursor, fmt.Errorf("%w: read: %w", ErrTransport, err)
		}
		cursor += n

		if n > 0 && endsWithAny(d.buf[:cursor], patterns) {
			return cursor, nil
		}

		if !time.Now().Before(deadline) {
			partial, err := d.text(cursor)
			if err != nil {
				return cursor, err
			}
			return cursor, responseError(ErrPartialResponse, partial)
		}
	}
}

func (d *Device) readUntilBreak(timeout time.Duration) (int, error) {
	return d.readUntilPattern([]string{at.LF}, timeout)
}

func endsWithAny(b []byte, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && bytes.HasSuffix(b, []byte(p)) {
			return true
		}
	}
	return false
}

// text returns the first n bytes of the receive buffer as a string.
func (d *Device) text(n int) (string, error) {
	b := d.buf[:n]
	if !utf8.Valid(b) {
		return "", responseError(ErrEncoding, strings.ToValidUTF8(string(b), "�"))
	}
	return string(b), nil
}

// exchange writes cmd and returns the response once it ends with one of
// patterns.
func (d *Device) exchange(cmd string, patterns []string, timeout time.Duration) (string, error) {
	if err := d.writeCommand(cmd); err != nil {
		return "", err
	}
	n, err := d.readUntilPattern(patterns, timeout)
	if err != nil {
		return "", err
	}
	response, err := d.text(n)
	if err != nil {
		return "", err
	}
	d.logger.Debug("response", "cmd", cmd, "response", response)
	return response, nil
}

func (d *Device) exchangeLine(cmd string) (string, error) {
	return d.exchange(cmd, []string{at.LF}, d.config.ATTimeout)
}
