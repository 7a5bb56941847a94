package service

import "errors"

var (
	// ErrClosed is returned by every Client method once the dispatch loop has
	// terminated. The request was not enqueued.
	ErrClosed = errors.New("service: dispatch loop terminated")

	// ErrNoReply is returned when the dispatch loop terminated after the
	// request was enqueued but before a reply was delivered.
	//
	// This happens to requests queued behind a shutdown and to the operation
	// in flight when the loop's context is cancelled.
	ErrNoReply = errors.New("service: no reply received")

	// ErrReplyDropped is logged by the dispatch loop when the caller stopped
	// waiting before its reply could be delivered.
	ErrReplyDropped = errors.New("service: reply dropped, caller gone")

	// ErrLoopRunning is returned by Run when the dispatch loop was already
	// started.
	ErrLoopRunning = errors.New("service: dispatch loop already running")
)
