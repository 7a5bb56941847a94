package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/lorae5/modem"
)

// request is one unit of work travelling over the intake channel.
type request interface {
	// op names the operation for logging
	op() string
	context() context.Context
	// execute runs the operation and records its result on the request
	execute(e Engine)
	// fail records err as the result without touching the device
	fail(err error)
	// deliver hands the recorded result to the waiting caller
	deliver(logger *slog.Logger)
}

type result[T any] struct {
	val T
	err error
}

// reply is the private channel back to the caller of one request.
type reply[T any] struct {
	ctx context.Context
	ch  chan result[T]
	res result[T]
}

func newReply[T any](ctx context.Context) reply[T] {
	return reply[T]{ctx: ctx, ch: make(chan result[T])}
}

func (r *reply[T]) context() context.Context {
	return r.ctx
}

func (r *reply[T]) fail(err error) {
	r.res = result[T]{err: err}
}

func (r *reply[T]) deliver(logger *slog.Logger) {
	select {
	case r.ch <- r.res:
	case <-r.ctx.Done():
		logger.Warn("Reply not delivered", "error", ErrReplyDropped, "cause", r.ctx.Err())
	}
}

type atRequest struct {
	reply[string]
	cmd     string
	timeout time.Duration
}

func (r *atRequest) op() string { return "at" }

func (r *atRequest) execute(e Engine) {
	r.res.val, r.res.err = e.Command(r.cmd, r.timeout)
}

type joinRequest struct {
	reply[modem.JoinResponse]
	force bool
}

func (r *joinRequest) op() string { return "join" }

func (r *joinRequest) execute(e Engine) {
	var err error
	if r.force {
		r.res.val, err = e.ForceJoin()
	} else {
		r.res.val, err = e.Join()
	}
	if err != nil {
		r.res.err = fmt.Errorf("join: %w", err)
	}
}

type configureRequest struct {
	reply[struct{}]
	credentials modem.Credentials
}

func (r *configureRequest) op() string { return "configure" }

// execute prepares the module for an OTAA join on US915 sub-band 2.
func (r *configureRequest) execute(e Engine) {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"set mode", func() error { return e.SetMode(modem.ModeOTAA) }},
		{"set region", func() error { return e.SetRegion(modem.RegionUS915) }},
		{"set credentials", func() error { return e.SetCredentials(r.credentials) }},
		{"restrict channels", e.RestrictSubband2},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			r.res.err = fmt.Errorf("configure: %s: %w", step.name, err)
			return
		}
	}
}

type devEUIRequest struct {
	reply[modem.DevEUI]
}

func (r *devEUIRequest) op() string { return "dev-eui" }

func (r *devEUIRequest) execute(e Engine) {
	r.res.val, r.res.err = e.DevEUI()
}

type appEUIRequest struct {
	reply[modem.AppEUI]
}

func (r *appEUIRequest) op() string { return "app-eui" }

func (r *appEUIRequest) execute(e Engine) {
	r.res.val, r.res.err = e.AppEUI()
}

type dataRateRequest struct {
	reply[struct{}]
	dr modem.DataRate
}

func (r *dataRateRequest) op() string { return "datarate" }

func (r *dataRateRequest) execute(e Engine) {
	r.res.err = e.SetDataRate(r.dr)
}

type sendRequest struct {
	reply[*modem.Downlink]
	data      []byte
	port      uint8
	confirmed bool
}

func (r *sendRequest) op() string { return "send" }

func (r *sendRequest) execute(e Engine) {
	r.res.val, r.res.err = e.Send(r.data, r.port, r.confirmed)
}

type sendTextRequest struct {
	reply[*modem.Downlink]
	text      string
	port      uint8
	confirmed bool
}

func (r *sendTextRequest) op() string { return "send-text" }

func (r *sendTextRequest) execute(e Engine) {
	r.res.val, r.res.err = e.SendText(r.text, r.port, r.confirmed)
}

type versionRequest struct {
	reply[string]
}

func (r *versionRequest) op() string { return "version" }

func (r *versionRequest) execute(e Engine) {
	r.res.val, r.res.err = e.Version()
}

type pingRequest struct {
	reply[bool]
}

func (r *pingRequest) op() string { return "ping" }

func (r *pingRequest) execute(e Engine) {
	r.res.val, r.res.err = e.IsOK()
}

// shutdownRequest is never executed; the dispatch loop stops when it is
// dequeued.
type shutdownRequest struct {
	reply[struct{}]
}

func (r *shutdownRequest) op() string { return "shutdown" }

func (r *shutdownRequest) execute(Engine) {}
