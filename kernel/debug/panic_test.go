package debug

import (
	"errors"
	"strings"
	"testing"
)

func catchPanic(fn func()) (v any) {
	defer func() { v = recover() }()
	fn()
	return nil
}

func TestAssertPasses(t *testing.T) {
	if v := catchPanic(func() { Assert(true, "never") }); v != nil {
		t.Fatalf("Assert(true) panicked with %v", v)
	}
}

func TestAssertCapturesCaller(t *testing.T) {
	v := catchPanic(func() { Assert(1 > 2, "1 > 2") })
	info, ok := v.(*PanicInfo)
	if !ok {
		t.Fatalf("recovered %T, want *PanicInfo", v)
	}
	if info.File != "debug/panic_test.go" {
		t.Fatalf("File = %q, want debug/panic_test.go", info.File)
	}
	if info.Line == 0 {
		t.Fatal("Line = 0, want caller line")
	}
	if !strings.Contains(info.Function, "TestAssertCapturesCaller") {
		t.Fatalf("Function = %q, want the test function", info.Function)
	}
	if info.Message != "assertion `1 > 2' failed." {
		t.Fatalf("Message = %q", info.Message)
	}
	if len(info.Stack) == 0 {
		t.Fatal("Stack is empty")
	}

	var err error = info
	var target *PanicInfo
	if !errors.As(err, &target) {
		t.Fatal("PanicInfo does not unwrap as error")
	}
}

func TestPanicDumpRunsHandler(t *testing.T) {
	var got *PanicInfo
	var inPanic bool
	SetPanicHandler(func(info *PanicInfo) {
		got = info
		inPanic = InPanicMode()
	})
	defer SetPanicHandler(nil)

	catchPanic(func() { PanicDump("rax 0", "unexpected %s", "interrupt") })
	if got == nil {
		t.Fatal("handler was not called")
	}
	if got.Message != "unexpected interrupt" || got.Dump != "rax 0" {
		t.Fatalf("handler got %+v", got)
	}
	if !inPanic {
		t.Fatal("InPanicMode() = false inside handler")
	}
	if InPanicMode() {
		t.Fatal("InPanicMode() = true after the panic unwound")
	}
}

func TestPanicRecursion(t *testing.T) {
	SetPanicHandler(func(*PanicInfo) { Panicf("again") })
	defer SetPanicHandler(nil)

	v := catchPanic(func() { Panicf("first") })
	err, ok := v.(error)
	if !ok {
		t.Fatalf("recovered %T, want error", v)
	}
	if !strings.HasPrefix(err.Error(), "Kernel PANIC recursion") {
		t.Fatalf("recovered %q, want recursion panic", err)
	}
}
