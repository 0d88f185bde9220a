// Package errs holds the sentinel errors of the bridge's error taxonomy,
// checked with errors.Is/errors.As at the boundaries that care about the
// distinction (fatal vs. recoverable, construction vs. runtime).
package errs

import "errors"

var (
	// ErrInvalidParameters is startup-time: no configuration files supplied.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrBrokerInit is a failure to construct or subscribe the broker
	// client at subscriber creation. Manager.Subscribe also wraps a failure
	// to construct a subscriber's listener with it.
	ErrBrokerInit = errors.New("broker init failed")

	// ErrPollFailed is a failure during batch accumulation.
	ErrPollFailed = errors.New("poll failed")

	// ErrDispatchFailed is a transport-level failure to invoke the remote
	// function.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrHandlerError means the remote function itself reported a
	// handler-level error; by design this is not wrapped into an outcome
	// that triggers rollback (see Listener).
	ErrHandlerError = errors.New("handler error")

	// ErrBadRecord is a non-UTF-8 key or value encountered while building
	// a record.
	ErrBadRecord = errors.New("bad record")

	// ErrCommitFailed and ErrRollbackFailed break offset durability and are
	// fatal: the process terminates rather than risk silent data loss or
	// duplication.
	ErrCommitFailed   = errors.New("commit failed")
	ErrRollbackFailed = errors.New("rollback failed")
)
