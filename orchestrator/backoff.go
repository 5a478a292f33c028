package orchestrator

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes retry and pre-navigation delays.
type Backoff struct {
	Base     time.Duration
	Cap      time.Duration
	DelayMin time.Duration
	DelayMax time.Duration

	// jitter returns a value in [0, 1).
	jitter func() float64
}

// Retry returns the delay before retry number attempt (1-based):
// min(Base*2^attempt, Cap) plus jitter in [0, Base).
func (b Backoff) Retry(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Cap
	if attempt < 32 {
		if exp := b.Base << uint(attempt); exp > 0 && (b.Cap <= 0 || exp < b.Cap) {
			d = exp
		}
	}
	return d + time.Duration(b.rand()*float64(b.Base))
}

// PreDelay returns the randomized first-attempt delay in [DelayMin, DelayMax].
func (b Backoff) PreDelay() time.Duration {
	if b.DelayMax <= b.DelayMin {
		return b.DelayMin
	}
	span := b.DelayMax - b.DelayMin
	return b.DelayMin + time.Duration(b.rand()*float64(span))
}

func (b Backoff) rand() float64 {
	if b.jitter != nil {
		return b.jitter()
	}
	return rand.Float64()
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
