package bot

import (
	"context"
	"time"
)

// Pacer suspends the opponent between attempts.
type Pacer interface {
	Pause(ctx context.Context, d time.Duration) error
}

// TimerPacer waits on a timer and gives up when ctx is done.
type TimerPacer struct{}

// Pause blocks for d or until ctx is done.
func (TimerPacer) Pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
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

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context, d time.Duration) error

// Pause calls f.
func (f PacerFunc) Pause(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}
