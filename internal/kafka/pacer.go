package kafka

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer throttles how often a ConsumerBatcher is allowed to issue a broker
// poll. It is optional (a zero-limit Pacer never blocks) and sits entirely
// inside the batcher's existing poll suspension point (§5): it does not
// introduce a fourth one.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a Pacer allowing ratePerSec polls per second with a
// burst of twice that rate, absorbing short traffic spikes. A ratePerSec
// of 0 disables pacing.
func NewPacer(ratePerSec int) *Pacer {
	if ratePerSec <= 0 {
		return &Pacer{}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2)}
}

// Wait blocks until the next poll is permitted, or ctx is cancelled. With
// no configured limit it returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
