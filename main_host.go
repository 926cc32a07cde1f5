//go:build !tinygo

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"ember/app"
	"ember/hal"
	"ember/kernel/timer"
)

func main() {
	var hcfg hal.HeadlessConfig
	cfg := app.DefaultConfig()
	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window.")
	flag.Uint64Var(&hcfg.Ticks, "ticks", 0, "Stop after N timer interrupts (0 = run until the kernel powers off).")
	flag.IntVar(&cfg.TimerFreq, "timer-hz", cfg.TimerFreq, "Timer interrupts per second.")
	flag.IntVar(&cfg.MaxThreads, "threads", cfg.MaxThreads, "Maximum number of kernel threads.")
	flag.StringVar(&cfg.Cmdline, "cmdline", "", "Kernel command line, e.g. '-q run alarm-multiple'.")
	flag.Parse()

	if cfg.TimerFreq < timer.MinFreq || cfg.TimerFreq > timer.MaxFreq {
		fmt.Fprintf(os.Stderr, "-timer-hz %d: must be between %d and %d\n", cfg.TimerFreq, timer.MinFreq, timer.MaxFreq)
		os.Exit(2)
	}
	if cfg.MaxThreads < 1 {
		fmt.Fprintf(os.Stderr, "-threads %d: must be at least 1\n", cfg.MaxThreads)
		os.Exit(2)
	}

	if hcfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, app.New(cfg), hcfg); err != nil {
			if err == context.Canceled {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(app.New(cfg)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
