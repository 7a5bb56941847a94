package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Device is opened without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Device
	// that has no transport.
	//
	// This can occur if the Dialer returned neither a transport nor an error,
	// or if the Device was not created via Open.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when an operation or Close is attempted on a
	// Device that has already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrPortNotFound is returned by USBDialer when no enumerated serial port
	// carries the requested USB vendor and product identifiers.
	ErrPortNotFound = errors.New("serial port not found")

	// ErrTransport wraps read and write failures of the underlying transport.
	ErrTransport = errors.New("transport error")

	// ErrShortWrite is the kind of a ShortWriteError.
	ErrShortWrite = errors.New("short write")

	// ErrEncoding is returned when the module's output is not valid UTF-8.
	ErrEncoding = errors.New("response is not valid utf-8")

	// ErrPartialResponse is returned when no terminator was seen before the
	// read timeout expired. The accompanying ResponseError carries whatever
	// was accumulated so far.
	ErrPartialResponse = errors.New("partial response after timeout")

	// ErrUnexpectedResponse is returned when a response does not match the
	// expected frame or echo. The raw text is always preserved in the
	// accompanying ResponseError.
	ErrUnexpectedResponse = errors.New("unexpected at response")

	// ErrBufferFull is returned when a response does not fit the receive
	// buffer before a terminator was seen.
	//
	// This typically indicates a buffer configured too small for the command
	// (join and confirmed uplinks print several lines) or a framing error.
	ErrBufferFull = errors.New("response exceeds receive buffer")

	// ErrNack is returned when a confirmed uplink completed without the
	// network acknowledging it in either receive window.
	ErrNack = errors.New("ack was not received")

	// ErrSignalFormat is returned when RSSI and SNR cannot be extracted from
	// a receive window line.
	ErrSignalFormat = errors.New("failed to parse rssi/snr")

	// ErrInvalidHex is returned when an identifier or payload is not valid hex.
	ErrInvalidHex = errors.New("invalid hex")

	// ErrLength is the kind of a LengthError.
	ErrLength = errors.New("unexpected length")

	// ErrInvalidDataRate is returned when a data rate literal is not one of
	// "0" through "4".
	ErrInvalidDataRate = errors.New("invalid data rate")

	// ErrInvalidMode is returned when a mode name is unknown.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidRegion is returned when a region name is unknown.
	ErrInvalidRegion = errors.New("invalid region")
)

// ResponseError carries the verbatim module output that caused an error so
// an operator can diagnose protocol or firmware mismatches.
type ResponseError struct {
	Kind     error
	Response string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Response)
}

func (e *ResponseError) Unwrap() error {
	return e.Kind
}

// ShortWriteError is returned when the transport accepted fewer bytes than
// were handed to it.
type ShortWriteError struct {
	Written  int
	Expected int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("wrote incorrect amount of bytes: %d instead of %d", e.Written, e.Expected)
}

func (e *ShortWriteError) Unwrap() error {
	return ErrShortWrite
}

// LengthError is returned when a decoded identifier does not have the size of
// its type.
type LengthError struct {
	Got  int
	Want int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("decoded %d bytes, expected %d", e.Got, e.Want)
}

func (e *LengthError) Unwrap() error {
	return ErrLength
}

func responseError(kind error, response string) error {
	return &ResponseError{Kind: kind, Response: response}
}
