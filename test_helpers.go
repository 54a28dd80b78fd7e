package guda

import (
	"testing"
)

// MallocOrFail allocates device memory and fails the test if unsuccessful
func MallocOrFail(t testing.TB, size int) DevicePtr {
	t.Helper()
	ptr, err := Malloc(size)
	if err != nil {
		t.Fatalf("Failed to allocate %d bytes: %v", size, err)
	}
	return ptr
}

// MemcpyOrFail copies data and fails the test if unsuccessful
func MemcpyOrFail(t testing.TB, dst, src interface{}, size int, direction MemcpyKind) {
	t.Helper()
	err := Memcpy(dst, src, size, direction)
	if err != nil {
		t.Fatalf("Memcpy failed: %v", err)
	}
}

// LaunchOrFail launches a kernel and fails the test if unsuccessful
func LaunchOrFail(t testing.TB, kernel KernelFunc, grid, block Dim3, args ...interface{}) {
	t.Helper()
	err := Launch(kernel, grid, block, args...)
	if err != nil {
		t.Fatalf("Kernel launch failed: %v", err)
	}
}

// SynchronizeOrFail synchronizes and fails the test if unsuccessful
func SynchronizeOrFail(t testing.TB) {
	t.Helper()
	err := Synchronize()
	if err != nil {
		t.Fatalf("Synchronize failed: %v", err)
	}
}

// StreamOrFail creates a stream on ctx and destroys it when the test ends
func StreamOrFail(t testing.TB, ctx *Context, flags StreamFlags) *Stream {
	t.Helper()
	s, err := ctx.CreateStreamWithFlags(flags)
	if err != nil {
		t.Fatalf("CreateStream failed: %v", err)
	}
	t.Cleanup(func() {
		if err := ctx.StreamDestroy(s); err != nil && !IsAlreadyDestroyed(err) {
			t.Errorf("StreamDestroy failed: %v", err)
		}
	})
	return s
}

// EventOrFail creates an event on ctx
func EventOrFail(t testing.TB, ctx *Context) *Event {
	t.Helper()
	e, err := ctx.CreateEvent()
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	return e
}
