package ratelimit

import (
	"context"
	"time"
)

// Sleeper pauses between requests to the same shop.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Courtesy waits a fixed duration, returning early with ctx.Err() when the
// context ends first.
type Courtesy struct{}

func (Courtesy) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recorder is a Sleeper that only records the requested delays.
type Recorder struct {
	Delays []time.Duration
}

func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.Delays = append(r.Delays, d)
	return ctx.Err()
}

func (r *Recorder) Total() time.Duration {
	var total time.Duration
	for _, d := range r.Delays {
		total += d
	}
	return total
}
