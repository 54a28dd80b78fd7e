package guda

import (
	"errors"
	"math/rand"
	"testing"
)

// Test basic memory allocation and deallocation
func TestMemoryAllocation(t *testing.T) {
	sizes := []int{100, 1000, 10000, 1000000}

	for _, size := range sizes {
		ptr := MallocOrFail(t, size*4)

		// Verify we can access the memory
		slice := ptr.Float32()
		if len(slice) != size {
			t.Errorf("Expected slice length %d, got %d", size, len(slice))
		}

		// Write and read test
		for i := 0; i < min(100, size); i++ {
			slice[i] = float32(i)
		}
		for i := 0; i < min(100, size); i++ {
			if slice[i] != float32(i) {
				t.Errorf("Memory corruption at index %d", i)
			}
		}

		if err := Free(ptr); err != nil {
			t.Fatalf("Failed to free memory: %v", err)
		}
	}
}

func TestMallocEdgeCases(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	ptr, err := ctx.Malloc(0)
	if err != nil {
		t.Fatalf("Malloc(0) failed: %v", err)
	}
	if !ptr.IsNil() {
		t.Errorf("Malloc(0) returned a non-nil pointer")
	}
	if err := ctx.Free(ptr); err != nil {
		t.Errorf("Free of a zero pointer failed: %v", err)
	}

	if _, err := ctx.Malloc(-1); !IsInvalidValue(err) {
		t.Errorf("Malloc(-1): expected InvalidValue, got %v", err)
	}

	ptr, err = ctx.Malloc(128)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	if err := ctx.Free(ptr); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := ctx.Free(ptr); !errors.Is(err, ErrDoubleFree) {
		t.Errorf("second Free: expected double free, got %v", err)
	}

	foreign := devicePtrOf(make([]byte, 16))
	if err := ctx.Free(foreign); !IsInvalidValue(err) {
		t.Errorf("Free of a foreign pointer: expected InvalidValue, got %v", err)
	}
}

func TestMemoryPoolLimit(t *testing.T) {
	mp := NewMemoryPool(1024)

	a, err := mp.Allocate(512, false)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if _, err := mp.Allocate(1024, false); !IsMemoryError(err) {
		t.Errorf("expected OutOfMemory over the limit, got %v", err)
	}

	// Freed blocks are reused and come back zeroed.
	a.Byte()[0] = 0xff
	if err := mp.Free(a); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	b, err := mp.Allocate(256, true)
	if err != nil {
		t.Fatalf("Allocate after Free failed: %v", err)
	}
	if b.Byte()[0] != 0 {
		t.Errorf("reused block not zeroed")
	}
	if !mp.IsManaged(b) {
		t.Errorf("reused block lost its managed tag")
	}
}

// Test memory copy operations
func TestMemcpy(t *testing.T) {
	const N = 1000

	h_src := make([]float32, N)
	h_dst := make([]float32, N)
	for i := 0; i < N; i++ {
		h_src[i] = rand.Float32()
	}

	d_src := MallocOrFail(t, N*4)
	d_dst := MallocOrFail(t, N*4)
	defer Free(d_src)
	defer Free(d_dst)

	MemcpyOrFail(t, d_src, h_src, N*4, MemcpyHostToDevice)
	MemcpyOrFail(t, d_dst, d_src, N*4, MemcpyDeviceToDevice)
	MemcpyOrFail(t, h_dst, d_dst, N*4, MemcpyDeviceToHost)

	for i := 0; i < N; i++ {
		if h_src[i] != h_dst[i] {
			t.Errorf("Data mismatch at index %d: expected %f, got %f", i, h_src[i], h_dst[i])
		}
	}
}

func TestMemcpyKinds(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	kinds := []MemcpyKind{
		MemcpyHostToHost,
		MemcpyHostToDevice,
		MemcpyDeviceToHost,
		MemcpyDeviceToDevice,
		MemcpyDefault,
	}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			src := []int32{1, -2, 3, -4, 5, -6, 7, -8}
			dst := make([]int32, len(src))

			d, err := ctx.Malloc(len(src) * 4)
			if err != nil {
				t.Fatal(err)
			}
			defer ctx.Free(d)

			if err := ctx.Memcpy(d, src, len(src)*4, kind); err != nil {
				t.Fatalf("copy in: %v", err)
			}
			if err := ctx.Memcpy(dst, d, len(src)*4, kind); err != nil {
				t.Fatalf("copy out: %v", err)
			}
			for i := range src {
				if dst[i] != src[i] {
					t.Errorf("index %d: want %d, got %d", i, src[i], dst[i])
				}
			}
		})
	}
}

func TestMemcpyValidation(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	small := make([]byte, 4)
	large := make([]byte, 64)

	tests := []struct {
		name string
		dst  interface{}
		src  interface{}
		size int
		kind MemcpyKind
	}{
		{"overflowing destination", small, large, 16, MemcpyHostToHost},
		{"overflowing source", large, small, 16, MemcpyHostToHost},
		{"negative size", large, large, -1, MemcpyHostToHost},
		{"nil destination", nil, large, 8, MemcpyHostToHost},
		{"unsupported type", "str", large, 8, MemcpyHostToHost},
		{"bad kind", large, large, 8, MemcpyKind(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctx.Memcpy(tt.dst, tt.src, tt.size, tt.kind)
			if !IsInvalidValue(err) {
				t.Errorf("expected InvalidValue, got %v", err)
			}
		})
	}

	if err := ctx.Memcpy(nil, nil, 0, MemcpyDefault); err != nil {
		t.Errorf("zero-byte copy failed: %v", err)
	}
}

func TestMemset(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	d, err := ctx.Malloc(100)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Free(d)

	if err := ctx.Memset(d, 0xab, 60); err != nil {
		t.Fatalf("Memset failed: %v", err)
	}
	for i, b := range d.Byte() {
		want := byte(0)
		if i < 60 {
			want = 0xab
		}
		if b != want {
			t.Fatalf("byte %d: want %#x, got %#x", i, want, b)
		}
	}

	s := StreamOrFail(t, ctx, StreamNonBlocking)
	if err := ctx.MemsetAsync(d, 0x01, 100, s); err != nil {
		t.Fatalf("MemsetAsync failed: %v", err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatal(err)
	}
	for i, b := range d.Byte() {
		if b != 0x01 {
			t.Fatalf("byte %d not set: %#x", i, b)
		}
	}
}

func TestDevicePtrOffset(t *testing.T) {
	d := MallocOrFail(t, 64)
	defer Free(d)

	for i := range d.Int32() {
		d.Int32()[i] = int32(i)
	}
	off := d.Offset(8)
	if off.Size() != 56 {
		t.Errorf("offset size: want 56, got %d", off.Size())
	}
	if got := off.Int32()[0]; got != 2 {
		t.Errorf("offset view: want 2, got %d", got)
	}
	if !d.Offset(65).IsNil() || !d.Offset(-1).IsNil() {
		t.Errorf("out of range offsets must yield a nil pointer")
	}
}

// Test kernel launch
func TestKernelLaunch(t *testing.T) {
	const N = 1024

	d_data := MallocOrFail(t, N*4)
	defer Free(d_data)

	data := d_data.Float32()
	for i := range data {
		data[i] = float32(i)
	}

	kernel := KernelFunc(func(th *Thread, args ...interface{}) {
		idx := th.Global()
		if idx < N {
			data[idx] *= 2
		}
	})

	grid := Dim3{X: (N + DefaultBlockSize - 1) / DefaultBlockSize, Y: 1, Z: 1}
	block := Dim3{X: DefaultBlockSize, Y: 1, Z: 1}

	LaunchOrFail(t, kernel, grid, block)
	SynchronizeOrFail(t)

	for i := 0; i < N; i++ {
		expected := float32(i * 2)
		if data[i] != expected {
			t.Errorf("Kernel result mismatch at %d: expected %f, got %f", i, expected, data[i])
		}
	}
}

func TestMemoryPoolStats(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	before, _ := ctx.MemoryStats()
	p1, _ := ctx.Malloc(1000)
	p2, _ := ctx.Malloc(2000)

	allocated, peak := ctx.MemoryStats()
	if allocated <= before {
		t.Errorf("allocated bytes did not grow: %d", allocated)
	}
	if peak < allocated {
		t.Errorf("peak %d below allocated %d", peak, allocated)
	}

	ctx.Free(p1)
	ctx.Free(p2)

	after, peakAfter := ctx.MemoryStats()
	if after != before {
		t.Errorf("allocated bytes after Free: want %d, got %d", before, after)
	}
	if peakAfter != peak {
		t.Errorf("peak changed after Free: %d -> %d", peak, peakAfter)
	}
}

func TestLastError(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	if err := ctx.GetLastError(); err != nil {
		t.Fatalf("fresh context has a last error: %v", err)
	}

	_, err := ctx.Malloc(-1)
	if err == nil {
		t.Fatal("Malloc(-1) succeeded")
	}
	if got := ctx.PeekAtLastError(); got != err {
		t.Errorf("PeekAtLastError: want %v, got %v", err, got)
	}
	if got := ctx.PeekAtLastError(); got != err {
		t.Errorf("PeekAtLastError must not reset the slot, got %v", got)
	}
	if got := ctx.GetLastError(); got != err {
		t.Errorf("GetLastError: want %v, got %v", err, got)
	}
	if got := ctx.GetLastError(); got != nil {
		t.Errorf("GetLastError must reset the slot, got %v", got)
	}

	// A successful call clears a previous failure.
	ctx.Malloc(-1)
	p, err := ctx.Malloc(16)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Free(p)
	if got := ctx.PeekAtLastError(); got != nil {
		t.Errorf("successful call did not clear the slot: %v", got)
	}
}

func TestLastErrorPerContext(t *testing.T) {
	a := NewContext()
	defer a.Destroy()
	b := NewContext()
	defer b.Destroy()

	_, err := a.Malloc(-1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if p, err := b.Malloc(16); err == nil {
			b.Free(p)
		}
	}()
	<-done

	if got := a.GetLastError(); got != err || !IsInvalidValue(got) {
		t.Errorf("another context's call touched the slot: want %v, got %v", err, got)
	}

	// Goroutines sharing a context share its slot.
	a.Malloc(-1)
	done = make(chan struct{})
	go func() {
		defer close(done)
		if p, err := a.Malloc(16); err == nil {
			a.Free(p)
		}
	}()
	<-done
	if got := a.GetLastError(); got != nil {
		t.Errorf("shared slot: want the other goroutine's success, got %v", got)
	}
}

func TestContextDestroy(t *testing.T) {
	ctx := NewContext()
	s, err := ctx.CreateStream()
	if err != nil {
		t.Fatal(err)
	}

	ran := false
	if err := ctx.LaunchTask(func(...interface{}) { ran = true }, s); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !ran {
		t.Errorf("Destroy dropped an enqueued task")
	}

	if err := ctx.Destroy(); !IsAlreadyDestroyed(err) {
		t.Errorf("second Destroy: expected AlreadyDestroyed, got %v", err)
	}
	if err := ctx.Synchronize(); !IsAlreadyDestroyed(err) {
		t.Errorf("Synchronize after Destroy: expected AlreadyDestroyed, got %v", err)
	}
	if err := ctx.LaunchFunc(func(*Thread, ...interface{}) {}, Dim3{X: 1}, Dim3{X: 1}); !IsAlreadyDestroyed(err) {
		t.Errorf("launch after Destroy: expected AlreadyDestroyed, got %v", err)
	}

	if err := Default().Destroy(); !IsInvalidValue(err) {
		t.Errorf("destroying the default context: expected InvalidValue, got %v", err)
	}
}

func TestUnsupported(t *testing.T) {
	calls := map[string]func() error{
		"CreateTextureObject": func() error { _, err := CreateTextureObject(); return err },
		"CreateSurfaceObject": func() error { _, err := CreateSurfaceObject(); return err },
		"ModuleLoad":          func() error { return ModuleLoad("kernels.ptx") },
		"CtxCreate":           CtxCreate,
	}
	for name, call := range calls {
		err := call()
		if !IsUnsupported(err) {
			t.Errorf("%s: expected Unsupported, got %v", name, err)
		}
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: errors.Is(ErrUnsupported) failed", name)
		}
	}
}
