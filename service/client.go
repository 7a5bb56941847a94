package service

import (
	"context"
	"errors"
	"time"

	"i4.energy/across/lorae5/modem"
)

// Client submits operations to a Service. Each method blocks until the
// operation has run, ctx is done, or the dispatch loop terminated.
//
// Once an operation has been dequeued it runs to completion on the device
// even if ctx is cancelled; only the reply is discarded.
type Client struct {
	s *Service
}

// roundTrip enqueues req and waits for the reply on rep.
func roundTrip[T any](ctx context.Context, s *Service, req request, rep *reply[T]) (T, error) {
	var zero T
	if err := s.enqueue(ctx, req); err != nil {
		return zero, err
	}

	select {
	case res := <-rep.ch:
		return res.val, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		return zero, ErrNoReply
	}
}

// At sends a raw AT command and returns the first line of the answer
// verbatim.
func (c *Client) At(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	req := &atRequest{reply: newReply[string](ctx), cmd: cmd, timeout: timeout}
	return roundTrip(ctx, c.s, req, &req.reply)
}

// Join performs an OTAA join. With force set an existing session is
// discarded.
func (c *Client) Join(ctx context.Context, force bool) (modem.JoinResponse, error) {
	req := &joinRequest{reply: newReply[modem.JoinResponse](ctx), force: force}
	return roundTrip(ctx, c.s, req, &req.reply)
}

// Configure selects OTAA mode and the US915 plan, writes the credentials and
// restricts the module to sub-band 2.
func (c *Client) Configure(ctx context.Context, credentials modem.Credentials) error {
	req := &configureRequest{reply: newReply[struct{}](ctx), credentials: credentials}
	_, err := roundTrip(ctx, c.s, req, &req.reply)
	return err
}

func (c *Client) DevEUI(ctx context.Context) (modem.DevEUI, error) {
	req := &devEUIRequest{reply: newReply[modem.DevEUI](ctx)}
	return roundTrip(ctx, c.s, req, &req.reply)
}

func (c *Client) AppEUI(ctx context.Context) (modem.AppEUI, error) {
	req := &appEUIRequest{reply: newReply[modem.AppEUI](ctx)}
	return roundTrip(ctx, c.s, req, &req.reply)
}

func (c *Client) SetDataRate(ctx context.Context, dr modem.DataRate) error {
	req := &dataRateRequest{reply: newReply[struct{}](ctx), dr: dr}
	_, err := roundTrip(ctx, c.s, req, &req.reply)
	return err
}

// Send transmits data as an uplink on port. See modem.Device.Send.
func (c *Client) Send(ctx context.Context, data []byte, port uint8, confirmed bool) (*modem.Downlink, error) {
	req := &sendRequest{reply: newReply[*modem.Downlink](ctx), data: data, port: port, confirmed: confirmed}
	return roundTrip(ctx, c.s, req, &req.reply)
}

// SendText transmits text as an uplink on port. See modem.Device.SendText.
func (c *Client) SendText(ctx context.Context, text string, port uint8, confirmed bool) (*modem.Downlink, error) {
	req := &sendTextRequest{reply: newReply[*modem.Downlink](ctx), text: text, port: port, confirmed: confirmed}
	return roundTrip(ctx, c.s, req, &req.reply)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	req := &versionRequest{reply: newReply[string](ctx)}
	return roundTrip(ctx, c.s, req, &req.reply)
}

// Ping reports whether the module answers a bare AT.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	req := &pingRequest{reply: newReply[bool](ctx)}
	return roundTrip(ctx, c.s, req, &req.reply)
}

// Shutdown asks the dispatch loop to stop and waits until it has. Requests
// enqueued behind it are never served, and any request submitted after
// Shutdown returns fails with ErrClosed.
func (c *Client) Shutdown(ctx context.Context) error {
	req := &shutdownRequest{reply: newReply[struct{}](ctx)}
	_, err := roundTrip(ctx, c.s, req, &req.reply)
	if errors.Is(err, ErrNoReply) {
		return nil
	}
	if err != nil {
		return err
	}

	// the reply is handed over just before the loop marks itself terminated
	select {
	case <-c.s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
