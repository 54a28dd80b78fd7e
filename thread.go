package guda

import (
	"fmt"
	"math"
)

// Dim3 represents 3D dimensions for grid and block configurations.
// This matches CUDA's dim3 structure: a zero component is treated as 1.
type Dim3 struct {
	X, Y, Z int
}

// Size returns the total number of elements. Unset components count as 1.
func (d Dim3) Size() int {
	return unit(d.X) * unit(d.Y) * unit(d.Z)
}

func (d Dim3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", unit(d.X), unit(d.Y), unit(d.Z))
}

// Normalized returns d with every unset component replaced by 1.
func (d Dim3) Normalized() Dim3 {
	return Dim3{X: unit(d.X), Y: unit(d.Y), Z: unit(d.Z)}
}

func unit(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

// normalize replaces unset components with 1 and rejects negative ones.
func (d Dim3) normalize() (Dim3, bool) {
	if d.X < 0 || d.Y < 0 || d.Z < 0 {
		return d, false
	}
	return d.Normalized(), true
}

// checkedSize is Size with overflow detection.
func (d Dim3) checkedSize() (int, bool) {
	n := 1
	for _, c := range [3]int{unit(d.X), unit(d.Y), unit(d.Z)} {
		if c <= 0 || n > math.MaxInt/c {
			return 0, false
		}
		n *= c
	}
	return n, true
}

// ThreadID identifies a thread's position within the execution hierarchy.
// It provides the same indexing semantics as CUDA's built-in variables:
// blockIdx, threadIdx, blockDim, and gridDim.
type ThreadID struct {
	BlockIdx  Dim3 // Block index within the grid
	ThreadIdx Dim3 // Thread index within the block
	BlockDim  Dim3 // Dimensions of the block
	GridDim   Dim3 // Dimensions of the grid
}

// Global returns the linear index of the thread in the whole grid.
func (tid ThreadID) Global() int {
	return linearOf(tid.BlockIdx, tid.GridDim)*tid.BlockDim.Size() + linearOf(tid.ThreadIdx, tid.BlockDim)
}

// GlobalX returns the global X index
func (tid ThreadID) GlobalX() int {
	return tid.BlockIdx.X*tid.BlockDim.X + tid.ThreadIdx.X
}

// GlobalY returns the global Y index
func (tid ThreadID) GlobalY() int {
	return tid.BlockIdx.Y*tid.BlockDim.Y + tid.ThreadIdx.Y
}

// GlobalZ returns the global Z index
func (tid ThreadID) GlobalZ() int {
	return tid.BlockIdx.Z*tid.BlockDim.Z + tid.ThreadIdx.Z
}

// Thread is the handle a kernel body receives. It is bound to one worker
// lane of the running launch; its accessors resolve the lane against the
// block currently being executed. A Thread is only valid inside the kernel
// body it was passed to.
type Thread struct {
	lane int
	ec   *executionContext
}

// ThreadIdx returns the index of the thread within its block.
func (t *Thread) ThreadIdx() Dim3 {
	return t.ec.lanes[t.lane]
}

// BlockIdx returns the index of the current block within the grid.
func (t *Thread) BlockIdx() Dim3 {
	return t.ec.blockIdx
}

// BlockDim returns the dimensions of every block of the launch.
func (t *Thread) BlockDim() Dim3 {
	return t.ec.blockDim
}

// GridDim returns the dimensions of the grid.
func (t *Thread) GridDim() Dim3 {
	return t.ec.gridDim
}

// SharedMemory returns the dynamic shared memory of the launch. It is
// visible to every thread of the current block and starts zeroed in each
// block. The pointer is nil when the launch requested none.
func (t *Thread) SharedMemory() DevicePtr {
	return devicePtrOf(t.ec.shared)
}

// SyncThreads blocks until every thread of the block reached this call.
// If the block cannot complete the rendezvous, because another thread
// faulted or returned without reaching it, the calling kernel body is
// unwound and the launch fails.
func (t *Thread) SyncThreads() {
	if err := t.ec.barrier.Wait(); err != nil {
		panic(barrierFault{err: err})
	}
}

// Lane returns the linear index of the thread within its block.
func (t *Thread) Lane() int {
	return t.lane
}

// ID returns a snapshot of the thread's position.
func (t *Thread) ID() ThreadID {
	return ThreadID{
		BlockIdx:  t.ec.blockIdx,
		ThreadIdx: t.ec.lanes[t.lane],
		BlockDim:  t.ec.blockDim,
		GridDim:   t.ec.gridDim,
	}
}

// Global returns the linear index of the thread in the whole grid.
func (t *Thread) Global() int {
	return t.ID().Global()
}

// GlobalX returns blockIdx.x*blockDim.x + threadIdx.x.
func (t *Thread) GlobalX() int {
	return t.ec.blockIdx.X*t.ec.blockDim.X + t.ec.lanes[t.lane].X
}
