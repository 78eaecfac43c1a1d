//go:build !tinygo

package mux

import "runtime/debug"

func captureStack() []byte {
	return debug.Stack()
}
