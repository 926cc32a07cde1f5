// Package intr is the interrupt dispatch layer: a 256-entry vector table,
// interrupt level control, and the programming of the 8259A controllers
// that route device requests to vectors 0x20-0x2f.
//
// The interrupt level is the processor's interrupt-enable flag. Only the
// running kernel thread touches it. Devices never call into this package;
// they raise request lines on the controller, and the running thread takes
// deliverable requests whenever interrupts become enabled, while halted,
// and at Poll.
package intr

import "fmt"

// Level is the interrupt-enable state.
type Level uint8

const (
	Off Level = iota // interrupts disabled
	On               // interrupts enabled
)

func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case On:
		return "on"
	default:
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
}

// Vector ranges.
const (
	NumVectors = 256

	// External (device) interrupts are remapped to ExtBase..ExtBase+15.
	ExtBase = 0x20
	ExtEnd  = ExtBase + 16

	// Spurious interrupts of the master and slave controllers.
	SpuriousMaster = ExtBase + 7
	SpuriousSlave  = ExtBase + 15

	// VecGP is the general protection fault.
	VecGP = 13
)

// IsExternal reports whether vec belongs to a device interrupt line.
func IsExternal(vec uint8) bool { return vec >= ExtBase && vec < ExtEnd }

// Handler services one interrupt.
type Handler func(f *Frame)

// Gate describes how a vector is entered. It is either External or Internal.
type Gate interface {
	gate()
}

// External is the gate of a device interrupt. It always enters with
// interrupts off and may only be raised by the kernel.
type External struct{}

// Internal is the gate of a CPU exception, trap or software interrupt.
type Internal struct {
	// DPL is the least privileged ring (0 kernel, 3 user) allowed to raise
	// the vector with SoftInt.
	DPL uint8

	// Level is the interrupt level the handler runs at: Off for an
	// interrupt gate, On for a trap gate that keeps the caller's level.
	Level Level
}

func (External) gate() {}
func (Internal) gate() {}

// Frame is the state pushed on interrupt entry.
type Frame struct {
	Vec       uint8
	ErrorCode uint64
	CR2       uint64 // faulting linear address of the last page fault

	RIP    uint64 // interrupted instruction
	RSP    uint64
	RFLAGS uint64
	CS, SS uint16
	DS, ES uint16

	R Registers
}

// Registers are the general-purpose registers saved by the entry stub.
type Registers struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RSI, RDI, RBP, RDX, RCX, RBX, RAX    uint64
}

// Segment selectors.
const (
	selKCode uint16 = 0x08
	selKData uint16 = 0x10
	selUData uint16 = 0x1b
	selUCode uint16 = 0x23
)

const flagIF = 1 << 9

// DumpFrame formats f for the console.
func (c *Controller) DumpFrame(f *Frame) string {
	return fmt.Sprintf("Interrupt %#04x (%s) at rip=%x\n", f.Vec, c.Name(f.Vec), f.RIP) +
		fmt.Sprintf(" cr2=%016x error=%16x\n", f.CR2, f.ErrorCode) +
		fmt.Sprintf("rax %016x rbx %016x rcx %016x rdx %016x\n", f.R.RAX, f.R.RBX, f.R.RCX, f.R.RDX) +
		fmt.Sprintf("rsp %016x rbp %016x rsi %016x rdi %016x\n", f.RSP, f.R.RBP, f.R.RSI, f.R.RDI) +
		fmt.Sprintf("rip %016x r8 %016x  r9 %016x r10 %016x\n", f.RIP, f.R.R8, f.R.R9, f.R.R10) +
		fmt.Sprintf("r11 %016x r12 %016x r13 %016x r14 %016x\n", f.R.R11, f.R.R12, f.R.R13, f.R.R14) +
		fmt.Sprintf("r15 %016x rflags %08x\n", f.R.R15, f.RFLAGS) +
		fmt.Sprintf("es: %04x ds: %04x cs: %04x ss: %04x", f.ES, f.DS, f.CS, f.SS)
}
