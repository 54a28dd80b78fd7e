// Package guda provides a CUDA-compatible API for CPU execution.
// It emulates the grid/block/thread execution model, intra-block barriers,
// streams and events on goroutines, so code written against a GPU compute
// API runs and can be debugged on CPU-only machines.
//
// Example usage:
//
//	d_a, _ := guda.Malloc(n * 4) // n float32s
//	defer guda.Free(d_a)
//
//	guda.Memcpy(d_a, h_a, n*4, guda.MemcpyHostToDevice)
//
//	grid := guda.Dim3{X: (n + 255) / 256}
//	block := guda.Dim3{X: 256}
//	guda.LaunchKernel(myKernel, grid, block, 0, nil, d_a, n)
//	guda.Synchronize()
package guda

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/LynnColeArt/guda-runtime/internal/taskqueue"
)

// Context represents an execution context for GUDA operations.
// It owns the memory pool, the default stream and every stream created
// from it. All contexts share the process-wide kernel lock, so kernels of
// different contexts never overlap either.
//
// A Context also keeps the last-error slot: every call made through it
// stores its result there. Callers that need the slot isolated from other
// goroutines use their own Context.
type Context struct {
	device *Device
	cfg    Config
	memory *MemoryPool
	stats  statsCollector

	mu            sync.Mutex
	streams       map[int]*Stream
	defaultStream *Stream
	destroyed     atomic.Bool

	// submitMu serializes submissions that take part in the legacy
	// default stream ordering.
	submitMu sync.Mutex

	errMu   sync.Mutex
	lastErr error
}

var streamID atomic.Int32

// Global runtime state
var (
	defaultContext *Context
	initOnce       sync.Once
)

// Initialize GUDA runtime
func init() {
	initOnce.Do(func() {
		defaultContext = NewContext()
	})
}

// NewContext creates a context with its own default stream.
func NewContext(opts ...Option) *Context {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := &Context{
		device:  defaultDevice,
		cfg:     cfg,
		memory:  NewMemoryPool(int64(defaultDevice.TotalMem)),
		streams: make(map[int]*Stream),
	}
	ctx.defaultStream = ctx.newStream(StreamDefault, true)

	return ctx
}

// Default returns the process default context used by the package-level
// functions.
func Default() *Context {
	return defaultContext
}

func (ctx *Context) logger() *zap.Logger {
	if ctx.cfg.Logger != nil {
		return ctx.cfg.Logger
	}
	return Logger()
}

// Config returns the configuration of the context.
func (ctx *Context) Config() Config {
	return ctx.cfg
}

// Device returns the device the context runs on.
func (ctx *Context) Device() *Device {
	return ctx.device
}

// Stats returns a snapshot of the context counters.
func (ctx *Context) Stats() Stats {
	return ctx.stats.snapshot()
}

// MemoryStats returns bytes currently allocated and the peak.
func (ctx *Context) MemoryStats() (allocated, peak int64) {
	return ctx.memory.GetStats()
}

// DefaultStream returns the default stream of the context. Passing a nil
// *Stream to any API selects the same stream.
func (ctx *Context) DefaultStream() *Stream {
	return ctx.defaultStream
}

// Streams returns the user streams of the context. A stream being destroyed
// stays listed until it drained.
func (ctx *Context) Streams() []*Stream {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	out := make([]*Stream, 0, len(ctx.streams))
	for _, s := range ctx.streams {
		out = append(out, s)
	}
	return out
}

// resolveStream maps the nil sentinel to the default stream and rejects
// foreign or destroyed streams.
func (ctx *Context) resolveStream(op string, s *Stream) (*Stream, error) {
	if ctx.destroyed.Load() {
		return nil, NewDestroyedError(op, "context destroyed")
	}
	if s == nil {
		return ctx.defaultStream, nil
	}
	if s.ctx != ctx {
		return nil, NewInvalidValueError(op, fmt.Sprintf("stream %d belongs to another context", s.id))
	}
	if s.destroyed.Load() {
		return nil, NewDestroyedError(op, fmt.Sprintf("stream %d destroyed", s.id))
	}
	return s, nil
}

// setLastError stores err in the last-error slot and returns it. A nil err
// clears the slot.
func (ctx *Context) setLastError(err error) error {
	ctx.errMu.Lock()
	ctx.lastErr = err
	ctx.errMu.Unlock()
	return err
}

// GetLastError returns the result of the last call made through the
// context and resets the slot. The slot is shared by every goroutine using
// the context, so a call on one goroutine overwrites the error left by
// another. Goroutines that need their own slot should use their own Context.
func (ctx *Context) GetLastError() error {
	ctx.errMu.Lock()
	defer ctx.errMu.Unlock()

	err := ctx.lastErr
	ctx.lastErr = nil
	return err
}

// PeekAtLastError returns the last error without resetting it.
func (ctx *Context) PeekAtLastError() error {
	ctx.errMu.Lock()
	defer ctx.errMu.Unlock()
	return ctx.lastErr
}

// Synchronize waits for all streams of the context and returns the first
// asynchronous failure any of them captured.
func (ctx *Context) Synchronize() error {
	if ctx.destroyed.Load() {
		return ctx.setLastError(NewDestroyedError("Synchronize", "context destroyed"))
	}

	var first error
	for _, s := range append(ctx.Streams(), ctx.defaultStream) {
		if err := s.synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return ctx.setLastError(first)
}

// Destroy drains and destroys every stream of the context. The default
// context cannot be destroyed.
func (ctx *Context) Destroy() error {
	if ctx == defaultContext {
		return NewInvalidValueError("Destroy", "the default context cannot be destroyed")
	}
	if !ctx.destroyed.CompareAndSwap(false, true) {
		return NewDestroyedError("Destroy", "context destroyed")
	}

	for _, s := range ctx.Streams() {
		s.close()
	}
	ctx.defaultStream.close()
	return nil
}

func (ctx *Context) newStream(flags StreamFlags, isDefault bool) *Stream {
	s := &Stream{
		id:        int(streamID.Add(1)),
		flags:     flags,
		ctx:       ctx,
		isDefault: isDefault,
	}
	name := fmt.Sprintf("stream-%d", s.id)
	s.queue = taskqueue.New(name, func(v any) {
		ctx.logger().Error("stream worker recovered a panic",
			zap.Int("stream", s.id),
			zap.Any("panic", v))
	})

	if !isDefault {
		ctx.mu.Lock()
		ctx.streams[s.id] = s
		ctx.mu.Unlock()
	}

	ctx.logger().Debug("stream created",
		zap.Int("stream", s.id),
		zap.Bool("default", isDefault),
		zap.Bool("non_blocking", flags&StreamNonBlocking != 0))

	return s
}

// Package-level API on the default context

// Malloc allocates device memory of the specified size in bytes.
// The returned DevicePtr can be used with all GUDA operations.
//
// Example:
//
//	d_data, err := guda.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer guda.Free(d_data)
func Malloc(size int) (DevicePtr, error) {
	return defaultContext.Malloc(size)
}

// MallocManaged allocates memory usable directly from host and device.
func MallocManaged(size int) (DevicePtr, error) {
	return defaultContext.MallocManaged(size)
}

// Free releases device memory allocated by Malloc.
// It is safe to call Free with a zero-value DevicePtr.
func Free(ptr DevicePtr) error {
	return defaultContext.Free(ptr)
}

// Memcpy copies memory between host and device.
// In GUDA's unified memory model, every kind is a byte copy.
//
// Example:
//
//	hostData := make([]float32, 1024)
//	d_data, _ := guda.Malloc(1024 * 4)
//	err := guda.Memcpy(d_data, hostData, 1024*4, guda.MemcpyHostToDevice)
func Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	return defaultContext.Memcpy(dst, src, size, kind)
}

// MemcpyAsync enqueues a copy on stream.
func MemcpyAsync(dst, src interface{}, size int, kind MemcpyKind, stream *Stream) error {
	return defaultContext.MemcpyAsync(dst, src, size, kind, stream)
}

// Memset sets size bytes of dst to value.
func Memset(dst interface{}, value byte, size int) error {
	return defaultContext.Memset(dst, value, size)
}

// MemsetAsync enqueues a memset on stream.
func MemsetAsync(dst interface{}, value byte, size int, stream *Stream) error {
	return defaultContext.MemsetAsync(dst, value, size, stream)
}

// LaunchKernel enqueues a kernel launch on stream (nil for the default
// stream) with sharedMem bytes of dynamic shared memory.
func LaunchKernel(fn KernelFunc, grid, block Dim3, sharedMem int, stream *Stream, args ...interface{}) error {
	return defaultContext.LaunchKernel(fn, grid, block, sharedMem, stream, args...)
}

// Launch executes a kernel on the default stream.
//
// Example:
//
//	kernel := MyKernel{}
//	err := guda.Launch(kernel, guda.Dim3{X: 256}, guda.Dim3{X: 64})
func Launch(kernel Kernel, grid, block Dim3, args ...interface{}) error {
	return defaultContext.Launch(kernel, grid, block, args...)
}

// LaunchFunc executes a kernel function on the default stream.
func LaunchFunc(fn KernelFunc, grid, block Dim3, args ...interface{}) error {
	return defaultContext.LaunchFunc(fn, grid, block, args...)
}

// LaunchTask enqueues a plain task that runs fn exactly once on stream.
func LaunchTask(fn TaskFunc, stream *Stream, args ...interface{}) error {
	return defaultContext.LaunchTask(fn, stream, args...)
}

// CreateStream creates a blocking stream on the default context.
func CreateStream() (*Stream, error) {
	return defaultContext.CreateStreamWithFlags(StreamDefault)
}

// CreateStreamWithFlags creates a stream on the default context.
func CreateStreamWithFlags(flags StreamFlags) (*Stream, error) {
	return defaultContext.CreateStreamWithFlags(flags)
}

// StreamDestroy drains and destroys s.
func StreamDestroy(s *Stream) error {
	return defaultContext.StreamDestroy(s)
}

// StreamSynchronize waits for s (nil for the default stream).
func StreamSynchronize(s *Stream) error {
	return defaultContext.StreamSynchronize(s)
}

// StreamQuery reports whether s finished all its work.
func StreamQuery(s *Stream) error {
	return defaultContext.StreamQuery(s)
}

// StreamWaitEvent makes s wait for the current recording of e.
func StreamWaitEvent(s *Stream, e *Event) error {
	return defaultContext.StreamWaitEvent(s, e)
}

// CreateEvent creates an event on the default context.
func CreateEvent() (*Event, error) {
	return defaultContext.CreateEventWithFlags(EventDefault)
}

// EventRecord records e on s (nil for the default stream).
func EventRecord(e *Event, s *Stream) error {
	return defaultContext.EventRecord(e, s)
}

// EventSynchronize blocks until the latest recording of e completed.
func EventSynchronize(e *Event) error {
	return defaultContext.EventSynchronize(e)
}

// EventQuery reports whether e completed.
func EventQuery(e *Event) error {
	return defaultContext.EventQuery(e)
}

// EventDestroy destroys e.
func EventDestroy(e *Event) error {
	return defaultContext.EventDestroy(e)
}

// Synchronize waits for all operations on all streams to complete.
//
// Example:
//
//	guda.Launch(kernel, grid, block)
//	err := guda.Synchronize() // Wait for kernel to complete
func Synchronize() error {
	return defaultContext.Synchronize()
}

// GetLastError returns and resets the last error of the default context.
// Every goroutine of the process shares this slot.
func GetLastError() error {
	return defaultContext.GetLastError()
}

// PeekAtLastError returns the last error of the default context.
func PeekAtLastError() error {
	return defaultContext.PeekAtLastError()
}
