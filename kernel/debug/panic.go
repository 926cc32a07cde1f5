// Package debug is the kernel's fail-fast path.
//
// Every invariant violation in the core ends here: the panic captures where it
// happened, runs the installed handler (console flush, panic screen) and then
// halts the machine by raising a Go panic carrying *PanicInfo.
package debug

import (
	"fmt"
	"path"
	"runtime"
	"strings"
	"sync/atomic"
)

// PanicInfo describes a kernel panic.
type PanicInfo struct {
	File     string
	Line     int
	Function string
	Message  string

	// Dump is the register/frame dump for interrupt-related faults.
	Dump string
	// Stack is the goroutine stack of the panicking thread.
	Stack []byte
}

// Error formats the panic the way the console prints it.
func (p *PanicInfo) Error() string {
	return fmt.Sprintf("Kernel PANIC at %s:%d in %s(): %s", p.File, p.Line, p.Function, p.Message)
}

var (
	depth atomic.Int32

	panicHandler atomic.Value // func(*PanicInfo)
)

// InPanicMode reports whether a panic is being handled right now.
func InPanicMode() bool {
	return depth.Load() > 0
}

// SetPanicHandler installs a process-wide panic handler.
//
// The handler runs before the machine halts. It must not panic; a panic raised
// while the handler runs halts immediately.
func SetPanicHandler(fn func(*PanicInfo)) {
	panicHandler.Store(fn)
}

// Panicf halts the kernel with a formatted message.
func Panicf(format string, args ...any) {
	raise(2, "", format, args...)
}

// PanicDump halts the kernel with a formatted message and a frame dump.
func PanicDump(dump string, format string, args ...any) {
	raise(2, dump, format, args...)
}

// Assert halts the kernel if cond is false.
func Assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	raise(2, "", "assertion `"+format+"' failed.", args...)
}

// NotReached halts the kernel; it marks code that must never execute.
func NotReached() {
	raise(2, "", "executed an unreachable statement")
}

func raise(skip int, dump string, format string, args ...any) {
	info := &PanicInfo{
		Message: fmt.Sprintf(format, args...),
		Dump:    dump,
	}
	if pc, file, line, ok := runtime.Caller(skip); ok {
		info.File = trimPath(file)
		info.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			info.Function = shortFuncName(fn.Name())
		}
	}

	defer depth.Add(-1)
	if depth.Add(1) > 1 {
		panic(fmt.Errorf("Kernel PANIC recursion at %s:%d in %s()", info.File, info.Line, info.Function))
	}

	info.Stack = captureStack()
	if v := panicHandler.Load(); v != nil {
		if fn, ok := v.(func(*PanicInfo)); ok && fn != nil {
			fn(info)
		}
	}
	panic(info)
}

func trimPath(file string) string {
	dir, base := path.Split(file)
	return path.Join(path.Base(dir), base)
}

func shortFuncName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
