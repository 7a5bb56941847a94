package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// BaudRate is the fixed line speed of the LoRa-E5 UART.
	BaudRate = 9600

	// ReadTimeout bounds each individual read on the serial port. Operation
	// timeouts are enforced on top of it by the Device.
	ReadTimeout = 10 * time.Millisecond

	// SiliconLabsVID and CP210xPID identify the CP210x USB-UART bridge found on
	// LoRa-E5 development boards.
	SiliconLabsVID uint16 = 0x10C4
	CP210xPID      uint16 = 0xEA60
)

// allow tests to override the serial package
var (
	openPort  = func(name string, mode *serial.Mode) (serial.Port, error) { return serial.Open(name, mode) }
	listPorts = enumerator.GetDetailedPortsList
)

// Transport represents an established, bidirectional byte stream to a LoRa-E5
// module.
//
// A Transport is assumed to be already connected and ready for use. Reads are
// expected to return after a short timeout, with zero bytes and a nil error if
// nothing arrived, the way go.bug.st/serial ports behave once a read timeout
// is set. Typical implementations include serial ports or in-memory fakes used
// for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a LoRa-E5 module.
//
// Dialer abstracts how the connection is created (for example, via a serial
// port path or by USB identifiers) and is used during Open only.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It
	// should respect cancellation provided by the context. Dial returns an
	// error if the transport cannot be established.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a module over a serial port path.
type SerialDialer struct {
	PortName string
	// Mode overrides the default 9600 8N1 line settings.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("lorae5: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("lorae5: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: BaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := openPort(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", d.PortName, err)
	}
	return port, nil
}

// USBDialer opens the first serial port whose USB vendor and product
// identifiers match.
type USBDialer struct {
	VendorID  uint16
	ProductID uint16
	Mode      *serial.Mode
}

// Find returns the name of the matching port.
func (d USBDialer) Find() (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	vid := fmt.Sprintf("%04X", d.VendorID)
	pid := fmt.Sprintf("%04X", d.ProductID)
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: vid=%s pid=%s", ErrPortNotFound, vid, pid)
}

func (d USBDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("lorae5: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := d.Find()
	if err != nil {
		return nil, err
	}
	return SerialDialer{PortName: name, Mode: d.Mode}.Dial(ctx)
}
