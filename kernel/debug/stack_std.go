//go:build !tinygo

package debug

import "runtime/debug"

func captureStack() []byte {
	return debug.Stack()
}
