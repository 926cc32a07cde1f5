package app

import (
	"errors"
	"fmt"
	"strings"

	"ember/hal"
	"ember/internal/buildinfo"
	"ember/kernel/console"
	"ember/kernel/intr"
	"ember/kernel/threads"
	"ember/kernel/timer"

	"github.com/google/shlex"
)

// Config selects the machine the kernel boots on.
type Config struct {
	// TimerFreq is the number of timer interrupts per second.
	TimerFreq int
	// MaxThreads bounds the number of live threads besides the initial one.
	MaxThreads int
	// Cmdline is the kernel command line: options, then actions.
	Cmdline string
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		TimerFreq:  timer.DefaultFreq,
		MaxThreads: 64,
	}
}

// Kernel is a booted kernel.
type Kernel struct {
	h   hal.HAL
	cfg Config

	ic      *intr.Controller
	Threads *threads.Scheduler
	Timer   *timer.Timer
	Console *console.Console

	opts options
}

type options struct {
	quiet   bool // power off after running the actions
	help    bool
	actions [][]string
}

var errUsage = errors.New("usage")

// New returns the boot function the host runners expect.
func New(cfg Config) func(hal.HAL) error {
	return func(h hal.HAL) error { return Main(h, cfg) }
}

// Main boots the kernel on h, runs the actions on its command line and
// prints statistics. With -q it returns, which powers the machine off;
// otherwise the initial thread exits and the kernel idles until stopped.
func Main(h hal.HAL, cfg Config) error {
	k, err := Boot(h, cfg)
	if err != nil {
		if errors.Is(err, errUsage) {
			return nil
		}
		return err
	}

	err = k.RunActions()
	if err != nil || k.opts.quiet {
		k.Shutdown()
		return err
	}

	k.Threads.Exit()
	return nil
}

// Boot parses the command line and brings up the kernel: interrupts, the
// thread system, the console, the timer, then preemptive scheduling. The
// calling goroutine becomes the initial thread.
func Boot(h hal.HAL, cfg Config) (*Kernel, error) {
	def := DefaultConfig()
	if cfg.TimerFreq == 0 {
		cfg.TimerFreq = def.TimerFreq
	}
	if cfg.MaxThreads == 0 {
		cfg.MaxThreads = def.MaxThreads
	}

	k := &Kernel{h: h, cfg: cfg}
	k.Console = console.New(h)
	installPanicHandler(h, k.Console)

	opts, err := parseCmdline(cfg.Cmdline)
	if err != nil {
		k.Console.Printf("%v\n", err)
		return nil, err
	}
	if opts.help {
		usage(k.Console)
		return nil, errUsage
	}
	k.opts = opts

	k.ic = intr.New(h)
	k.ic.Init()

	k.Threads = threads.New(k.ic, cfg.MaxThreads)
	k.Threads.Init()
	k.Console.Init(k.ic, k.Threads)

	k.Console.Printf("Ember booting (%s), %d thread slots, timer at %d Hz\n",
		buildinfo.Long(), cfg.MaxThreads, cfg.TimerFreq)
	if cfg.Cmdline != "" {
		k.Console.Printf("Kernel command line: %s\n", cfg.Cmdline)
	}

	k.Timer = timer.New(h, k.ic, k.Threads, cfg.TimerFreq)
	k.Timer.Init()

	k.Threads.Start()
	k.Console.Printf("Boot complete.\n")
	return k, nil
}

// RunActions runs the actions from the command line in order. It stops at
// the first failing one.
func (k *Kernel) RunActions() error {
	for _, action := range k.opts.actions {
		switch action[0] {
		case "run":
			if err := k.runTask(action[1]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown action %q", action[0])
		}
	}
	return nil
}

// Shutdown prints the statistics of every subsystem.
func (k *Kernel) Shutdown() {
	k.Timer.PrintStats(k.Console)
	k.Threads.PrintStats(k.Console)
	k.Console.PrintStats(k.Console)
	k.Console.Printf("Powering off...\n")
	k.Console.Flush()
}

func (k *Kernel) runTask(name string) error {
	k.Console.Printf("Executing '%s':\n", name)
	err := runTest(k, name)
	k.Console.Printf("Execution of '%s' complete.\n", name)
	return err
}

// parseCmdline splits the command line the way a shell would. Options come
// first; the rest is a list of actions with their arguments.
func parseCmdline(cmdline string) (options, error) {
	var opts options

	argv, err := shlex.Split(cmdline)
	if err != nil {
		return opts, fmt.Errorf("kernel command line: %w", err)
	}

	for len(argv) > 0 && strings.HasPrefix(argv[0], "-") {
		switch opt := argv[0]; opt {
		case "-h":
			opts.help = true
		case "-q":
			opts.quiet = true
		case "-mlfqs":
			return opts, fmt.Errorf("option %s: multi-level feedback queue scheduler not supported", opt)
		default:
			return opts, fmt.Errorf("unknown option %q (use -h for help)", opt)
		}
		argv = argv[1:]
	}

	for len(argv) > 0 {
		switch argv[0] {
		case "run":
			if len(argv) < 2 {
				return opts, fmt.Errorf("action %q requires 1 argument", argv[0])
			}
			opts.actions = append(opts.actions, argv[:2])
			argv = argv[2:]
		default:
			return opts, fmt.Errorf("unknown action %q (use -h for help)", argv[0])
		}
	}
	return opts, nil
}

func usage(c *console.Console) {
	c.Puts("\nCommand line syntax: [OPTION...] [ACTION...]\n" +
		"Options must precede actions.\n" +
		"Actions are executed in the order specified.\n" +
		"\nAvailable actions:\n" +
		"  run TEST           Run TEST.\n" +
		"\nOptions:\n" +
		"  -h                 Print this help message and power off.\n" +
		"  -q                 Power off VM after actions or on panic.\n" +
		"\nTests:\n")
	for _, t := range testNames() {
		c.Printf("  %s\n", t)
	}
}
