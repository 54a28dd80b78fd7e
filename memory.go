package guda

import (
	"fmt"
	"sync"
	"unsafe"
)

// MemcpyKind specifies the direction of memory transfer.
// In GUDA's unified memory model, these are provided for CUDA compatibility
// and are all treated as a plain byte copy since all memory is CPU-accessible.
type MemcpyKind int

const (
	MemcpyHostToHost     MemcpyKind = iota // Host to host transfer
	MemcpyHostToDevice                     // Host to device transfer
	MemcpyDeviceToHost                     // Device to host transfer
	MemcpyDeviceToDevice                   // Device to device transfer
	MemcpyDefault                          // Default transfer (infer direction)
)

func (k MemcpyKind) String() string {
	switch k {
	case MemcpyHostToHost:
		return "HostToHost"
	case MemcpyHostToDevice:
		return "HostToDevice"
	case MemcpyDeviceToHost:
		return "DeviceToHost"
	case MemcpyDeviceToDevice:
		return "DeviceToDevice"
	case MemcpyDefault:
		return "Default"
	default:
		return fmt.Sprintf("MemcpyKind(%d)", int(k))
	}
}

const defaultSystemMemory = 16 * 1024 * 1024 * 1024

// MemoryPool manages device memory allocation with efficient reuse.
// It maintains a free list of previously allocated blocks to reduce
// allocation overhead.
type MemoryPool struct {
	mu         sync.Mutex
	limit      int64
	allocated  map[uintptr]*allocation
	freeList   []*allocation
	totalAlloc int64
	peakAlloc  int64
}

type allocation struct {
	buf     []byte
	used    bool
	managed bool
}

// NewMemoryPool creates a memory pool that refuses to hand out more than
// limit bytes at once. A limit <= 0 means no limit.
func NewMemoryPool(limit int64) *MemoryPool {
	return &MemoryPool{
		limit:     limit,
		allocated: make(map[uintptr]*allocation),
	}
}

// Allocate allocates memory from the pool. A zero size yields a zero
// DevicePtr.
func (mp *MemoryPool) Allocate(size int, managed bool) (DevicePtr, error) {
	if size < 0 {
		return DevicePtr{}, ErrInvalidSize
	}
	if size == 0 {
		return DevicePtr{}, nil
	}

	// Round up to alignment
	alignedSize := (size + MemoryAlignment - 1) &^ (MemoryAlignment - 1)

	mp.mu.Lock()
	defer mp.mu.Unlock()

	// Try to reuse from free list
	for i, alloc := range mp.freeList {
		if len(alloc.buf) >= alignedSize {
			mp.freeList = append(mp.freeList[:i], mp.freeList[i+1:]...)
			alloc.used = true
			alloc.managed = managed
			clear(alloc.buf)
			mp.track(int64(len(alloc.buf)))
			return DevicePtr{ptr: unsafe.Pointer(&alloc.buf[0]), size: size}, nil
		}
	}

	if mp.limit > 0 && mp.totalAlloc+int64(alignedSize) > mp.limit {
		return DevicePtr{}, NewMemoryError("Malloc",
			fmt.Sprintf("cannot allocate %d bytes (%d in use, limit %d)", size, mp.totalAlloc, mp.limit), nil)
	}

	buf := make([]byte, alignedSize)
	alloc := &allocation{
		buf:     buf,
		used:    true,
		managed: managed,
	}
	ptr := unsafe.Pointer(&buf[0])
	mp.allocated[uintptr(ptr)] = alloc
	mp.track(int64(alignedSize))

	return DevicePtr{ptr: ptr, size: size}, nil
}

func (mp *MemoryPool) track(n int64) {
	mp.totalAlloc += n
	if mp.totalAlloc > mp.peakAlloc {
		mp.peakAlloc = mp.totalAlloc
	}
}

// Free returns memory to the pool. Freeing a zero DevicePtr is a no-op.
func (mp *MemoryPool) Free(ptr DevicePtr) error {
	if ptr.ptr == nil {
		return nil
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[uintptr(ptr.ptr)]
	if !ok {
		return NewInvalidValueError("Free", "pointer not found in allocation pool")
	}
	if !alloc.used {
		return ErrDoubleFree
	}

	alloc.used = false
	mp.freeList = append(mp.freeList, alloc)
	mp.totalAlloc -= int64(len(alloc.buf))

	return nil
}

// IsManaged reports whether ptr came from MallocManaged.
func (mp *MemoryPool) IsManaged(ptr DevicePtr) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	alloc, ok := mp.allocated[uintptr(ptr.ptr)]
	return ok && alloc.used && alloc.managed
}

// GetStats returns memory pool statistics
func (mp *MemoryPool) GetStats() (allocated, peak int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.totalAlloc, mp.peakAlloc
}

// Context memory API

// Malloc allocates device memory of the specified size in bytes.
//
// Example:
//
//	ptr, err := ctx.Malloc(1024 * 4) // Allocate 1024 float32s
//	if err != nil {
//		return err
//	}
//	defer ctx.Free(ptr)
func (ctx *Context) Malloc(size int) (DevicePtr, error) {
	ptr, err := ctx.memory.Allocate(size, false)
	return ptr, ctx.setLastError(err)
}

// MallocManaged allocates memory usable from both host and device code.
// Host and device share one address space, so this is Malloc with the
// allocation tagged as managed.
func (ctx *Context) MallocManaged(size int) (DevicePtr, error) {
	ptr, err := ctx.memory.Allocate(size, true)
	return ptr, ctx.setLastError(err)
}

// Free releases device memory allocated by Malloc or MallocManaged.
// It is safe to call Free with a zero DevicePtr.
func (ctx *Context) Free(ptr DevicePtr) error {
	return ctx.setLastError(ctx.memory.Free(ptr))
}

// Memcpy copies size bytes from src to dst, ordered after all work
// previously submitted to the default stream, and returns once the copy
// completed. dst and src may be a DevicePtr, an unsafe.Pointer or a slice
// of byte, int32, int64, uint32, float32 or float64.
func (ctx *Context) Memcpy(dst, src interface{}, size int, kind MemcpyKind) error {
	t, err := newMemcpyTask(dst, src, size, kind)
	if err != nil {
		return ctx.setLastError(err)
	}
	return ctx.setLastError(ctx.defaultStream.submitAndWait(t))
}

// MemcpyAsync enqueues a copy on stream.
func (ctx *Context) MemcpyAsync(dst, src interface{}, size int, kind MemcpyKind, stream *Stream) error {
	s, err := ctx.resolveStream("MemcpyAsync", stream)
	if err != nil {
		return ctx.setLastError(err)
	}
	t, err := newMemcpyTask(dst, src, size, kind)
	if err != nil {
		return ctx.setLastError(err)
	}
	return ctx.setLastError(s.submit(t))
}

// Memset sets size bytes of dst to value, ordered on the default stream.
func (ctx *Context) Memset(dst interface{}, value byte, size int) error {
	t, err := newMemsetTask(dst, value, size)
	if err != nil {
		return ctx.setLastError(err)
	}
	return ctx.setLastError(ctx.defaultStream.submitAndWait(t))
}

// MemsetAsync enqueues a memset on stream.
func (ctx *Context) MemsetAsync(dst interface{}, value byte, size int, stream *Stream) error {
	s, err := ctx.resolveStream("MemsetAsync", stream)
	if err != nil {
		return ctx.setLastError(err)
	}
	t, err := newMemsetTask(dst, value, size)
	if err != nil {
		return ctx.setLastError(err)
	}
	return ctx.setLastError(s.submit(t))
}

func newMemcpyTask(dst, src interface{}, size int, kind MemcpyKind) (*task, error) {
	if kind < MemcpyHostToHost || kind > MemcpyDefault {
		return nil, NewInvalidValueError("Memcpy", fmt.Sprintf("invalid copy kind %d", int(kind)))
	}
	if size < 0 {
		return nil, NewInvalidValueError("Memcpy", "size must not be negative")
	}
	d, err := byteView("Memcpy", dst, size)
	if err != nil {
		return nil, err
	}
	s, err := byteView("Memcpy", src, size)
	if err != nil {
		return nil, err
	}

	return &task{
		kind: TaskMemCopy,
		name: "memcpy " + kind.String(),
		run: func() error {
			copy(d, s)
			return nil
		},
	}, nil
}

func newMemsetTask(dst interface{}, value byte, size int) (*task, error) {
	if size < 0 {
		return nil, NewInvalidValueError("Memset", "size must not be negative")
	}
	d, err := byteView("Memset", dst, size)
	if err != nil {
		return nil, err
	}

	return &task{
		kind: TaskMemSet,
		name: "memset",
		run: func() error {
			for i := range d {
				d[i] = value
			}
			return nil
		},
	}, nil
}

// byteView returns the first size bytes of v as a byte slice.
func byteView(op string, v interface{}, size int) ([]byte, error) {
	var (
		base   unsafe.Pointer
		length = -1 // unknown
	)

	switch p := v.(type) {
	case DevicePtr:
		base, length = p.ptr, p.size
	case unsafe.Pointer:
		base = p
	case []byte:
		base, length = sliceBase(p), len(p)
	case []int32:
		base, length = sliceBase(p), len(p)*4
	case []uint32:
		base, length = sliceBase(p), len(p)*4
	case []int64:
		base, length = sliceBase(p), len(p)*8
	case []float32:
		base, length = sliceBase(p), len(p)*4
	case []float64:
		base, length = sliceBase(p), len(p)*8
	case nil:
	default:
		return nil, NewInvalidValueError(op, fmt.Sprintf("unsupported pointer type: %T", v))
	}

	if size == 0 {
		return nil, nil
	}
	if base == nil {
		return nil, ErrNullPointer
	}
	if length >= 0 && size > length {
		return nil, NewInvalidValueError(op, fmt.Sprintf("%d bytes exceed the %d byte buffer", size, length))
	}
	return unsafe.Slice((*byte)(base), size), nil
}

func sliceBase[T any](s []T) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(&s[0])
}

// DevicePtr represents a pointer to device memory. It provides typed views
// of the memory and supports pointer arithmetic through Offset.
type DevicePtr struct {
	ptr    unsafe.Pointer
	size   int
	offset int
}

// Float32 returns a float32 slice view of the device memory.
//
// Example:
//
//	d_data, _ := guda.Malloc(1024 * 4) // Allocate for 1024 float32s
//	data := d_data.Float32()
//	data[0] = 3.14 // Direct access
func (d DevicePtr) Float32() []float32 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*float32)(d.ptr), d.size/4)
}

// Float64 returns a float64 slice view of the device memory.
func (d DevicePtr) Float64() []float64 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*float64)(d.ptr), d.size/8)
}

// Int32 returns an int32 slice view of the device memory.
func (d DevicePtr) Int32() []int32 {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*int32)(d.ptr), d.size/4)
}

// Byte returns a byte slice view of the device memory.
func (d DevicePtr) Byte() []byte {
	if d.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(d.ptr), d.size)
}

// Offset returns a new DevicePtr offset by the given number of bytes.
// The returned DevicePtr shares the same underlying memory.
func (d DevicePtr) Offset(bytes int) DevicePtr {
	if d.ptr == nil || bytes < 0 || bytes > d.size {
		return DevicePtr{}
	}
	return DevicePtr{
		ptr:    unsafe.Add(d.ptr, bytes),
		size:   d.size - bytes,
		offset: d.offset + bytes,
	}
}

// Size returns the size in bytes of the memory region
func (d DevicePtr) Size() int {
	return d.size
}

// IsNil reports whether d points nowhere.
func (d DevicePtr) IsNil() bool {
	return d.ptr == nil
}

func devicePtrOf(buf []byte) DevicePtr {
	if len(buf) == 0 {
		return DevicePtr{}
	}
	return DevicePtr{ptr: unsafe.Pointer(&buf[0]), size: len(buf)}
}
