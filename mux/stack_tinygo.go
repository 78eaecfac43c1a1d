//go:build tinygo

package mux

// TinyGo has no runtime/debug.Stack.
func captureStack() []byte { return nil }
