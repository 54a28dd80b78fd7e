//go:build !linux
// +build !linux

package guda

// getSystemMemory falls back to a fixed size on non-Linux platforms
func getSystemMemory() uint64 {
	return defaultSystemMemory
}
