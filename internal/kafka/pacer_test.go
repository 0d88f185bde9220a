package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacerDisabledNeverBlocks(t *testing.T) {
	p := NewPacer(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	assert.NoError(t, err)
}

func TestPacerRespectsContextCancellation(t *testing.T) {
	p := NewPacer(1)
	// Exhaust the burst, then a cancelled context must return promptly.
	_ = p.Wait(context.Background())
	_ = p.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Wait(ctx)
	assert.Error(t, err)
}
