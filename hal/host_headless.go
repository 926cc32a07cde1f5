//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool

	// Ticks stops the machine after N timer interrupts (0 = run until the
	// kernel powers off).
	Ticks uint64

	// Output receives the logger's lines (nil = stdout).
	Output io.Writer
}

// errPoweredOff ends the run group once the kernel has switched the machine off.
var errPoweredOff = errors.New("powered off")

// RunHeadless boots the kernel without opening a window.
//
// boot runs on its own goroutine and becomes the kernel's initial thread;
// returning from it powers the machine off. The clock device runs alongside
// it. RunHeadless returns the error passed to Power().PowerOff, boot's
// error, or ctx's error.
func RunHeadless(ctx context.Context, boot func(HAL) error, cfg HeadlessConfig) error {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	h := NewWithWriter(out).(*hostHAL)
	return h.run(ctx, boot, cfg.Ticks)
}

func (h *hostHAL) run(ctx context.Context, boot func(HAL) error, limit uint64) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.runClock(ctx, limit)
	})

	// The kernel never observes ctx; when the group stops first, its
	// goroutines are simply abandoned with the machine.
	go func() {
		h.power.PowerOff(boot(h))
	}()

	g.Go(func() error {
		select {
		case <-h.power.off:
			if h.power.err != nil {
				return h.power.err
			}
			return errPoweredOff
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	err := g.Wait()
	if errors.Is(err, errPoweredOff) || errors.Is(err, errTickLimit) {
		return nil
	}
	return err
}
