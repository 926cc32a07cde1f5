//go:build tinygo

package debug

func captureStack() []byte {
	return nil
}
