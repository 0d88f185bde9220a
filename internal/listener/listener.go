// Package listener implements Listener (C3): consuming a batch by
// invoking a remote function and reporting succeeded/failed.
package listener

import (
	"context"

	"github.com/miere/malka/internal/record"
)

// Outcome is the result of one Consume call: either Succeeded, or Failed
// carrying a human-readable reason. There is no third state at this
// level — an empty batch is never passed to Consume (§4.4).
type Outcome struct {
	failed bool
	reason string
}

// Succeeded reports a successful dispatch (including one where the remote
// function itself reported a handler error — see §4.3 rationale).
func Succeeded() Outcome { return Outcome{} }

// Failed reports a transport-level dispatch failure.
func Failed(reason string) Outcome { return Outcome{failed: true, reason: reason} }

// Failed reports whether the outcome was a failure, and if so, why.
func (o Outcome) Failed() (string, bool) { return o.reason, o.failed }

// Listener is the capability the Subscriber depends on: dispatch one
// non-empty batch. Implemented by LambdaListener; test doubles implement
// it directly for subscriber unit tests (spec §9).
type Listener interface {
	Consume(ctx context.Context, batch []record.Record) Outcome
}
