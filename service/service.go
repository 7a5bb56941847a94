// Package service serializes access to a single LoRa-E5 module. Any number of
// goroutines may issue operations through a Client; a single dispatch loop
// owns the device and runs those operations one at a time, in arrival order.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/lorae5/modem"
)

// DefaultQueueSize is the capacity of the intake channel. Callers block once
// that many requests are waiting.
const DefaultQueueSize = 32

// Engine is the set of device operations the dispatch loop runs. It is
// satisfied by *modem.Device.
type Engine interface {
	IsOK() (bool, error)
	Version() (string, error)
	Command(cmd string, timeout time.Duration) (string, error)
	Join() (modem.JoinResponse, error)
	ForceJoin() (modem.JoinResponse, error)
	SetMode(mode modem.Mode) error
	SetRegion(region modem.Region) error
	SetCredentials(c modem.Credentials) error
	RestrictSubband2() error
	DevEUI() (modem.DevEUI, error)
	AppEUI() (modem.AppEUI, error)
	SetDataRate(dr modem.DataRate) error
	Send(data []byte, port uint8, confirmed bool) (*modem.Downlink, error)
	SendText(text string, port uint8, confirmed bool) (*modem.Downlink, error)
	Close() error
}

var _ Engine = (*modem.Device)(nil)

// Option configures a Service.
type Option func(*Service)

// WithQueueSize sets the capacity of the intake channel.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithLogger sets the logger used by the dispatch loop.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service owns an Engine and runs the operations submitted through its
// Clients. Run must be called exactly once for any request to be served.
type Service struct {
	// mu is held by whichever goroutine currently talks to the engine
	mu     sync.Mutex
	engine Engine

	requests  chan request
	queueSize int
	done      chan struct{}
	running   atomic.Bool
	logger    *slog.Logger
}

// New creates a Service for engine. The engine is closed when the dispatch
// loop terminates.
func New(engine Engine, opts ...Option) *Service {
	s := &Service{
		engine:    engine,
		queueSize: DefaultQueueSize,
		done:      make(chan struct{}),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.requests = make(chan request, s.queueSize)
	return s
}

// Client returns a handle for submitting operations. Clients are cheap and
// may be shared by any number of goroutines.
func (s *Service) Client() *Client {
	return &Client{s: s}
}

// Done is closed once the dispatch loop has terminated.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Run is the dispatch loop. It serves requests in the order they were
// enqueued and waits for each operation to finish before taking the next.
//
// Run returns nil after a shutdown request and ctx.Err() when ctx is
// cancelled. In both cases requests still queued are abandoned and their
// callers receive ErrNoReply.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}

	var inflight chan struct{}
	defer func() {
		close(s.done)
		s.release(inflight)
	}()

	s.logger.Info("Dispatch loop started", "queue_size", s.queueSize)
	for {
		var req request
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch loop cancelled", "error", ctx.Err())
			return ctx.Err()
		case req = <-s.requests:
		}

		if _, ok := req.(*shutdownRequest); ok {
			s.logger.Info("Shutdown requested", "abandoned", len(s.requests))
			req.deliver(s.logger)
			return nil
		}

		if err := req.context().Err(); err != nil {
			s.logger.Debug("Request cancelled before dispatch", "op", req.op(), "error", err)
			req.fail(err)
			req.deliver(s.logger)
			continue
		}

		finished := make(chan struct{})
		inflight = finished
		start := time.Now()
		go func() {
			defer close(finished)
			s.mu.Lock()
			defer s.mu.Unlock()
			req.execute(s.engine)
		}()

		select {
		case <-finished:
			inflight = nil
		case <-ctx.Done():
			s.logger.Info("Dispatch loop cancelled during operation", "op", req.op(), "error", ctx.Err())
			return ctx.Err()
		}

		s.logger.Debug("Operation finished", "op", req.op(), "duration", time.Since(start))
		req.deliver(s.logger)
	}
}

// release closes the engine once no operation is using it anymore.
func (s *Service) release(inflight chan struct{}) {
	closeEngine := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.engine.Close(); err != nil {
			s.logger.Error("Failed to close device", "error", err)
		}
	}

	if inflight == nil {
		closeEngine()
		return
	}
	go func() {
		<-inflight
		closeEngine()
	}()
}

func (s *Service) enqueue(ctx context.Context, req request) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.requests <- req:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
