//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"time"
)

// errTickLimit stops the clock after a configured number of ticks.
var errTickLimit = errors.New("tick limit reached")

// RunClock drives h's timer device: it raises IRQ 0 once per PIT period
// until ctx is done. It returns ErrNotImplemented for a HAL without an
// emulated timer.
func RunClock(ctx context.Context, h HAL) error {
	hh, ok := h.(*hostHAL)
	if !ok {
		return ErrNotImplemented
	}
	err := hh.runClock(ctx, 0)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runClock raises IRQ 0 at the PIT rate. With limit > 0 it returns
// errTickLimit after that many ticks. The period is re-read whenever the
// kernel reprograms counter 0.
func (h *hostHAL) runClock(ctx context.Context, limit uint64) error {
	t := time.NewTicker(h.pit.Period())
	defer t.Stop()

	var ticks uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.pit.Changed():
			t.Reset(h.pit.Period())
		case <-t.C:
			h.pic.Raise(0)
			ticks++
			if limit > 0 && ticks >= limit {
				return errTickLimit
			}
		}
	}
}
