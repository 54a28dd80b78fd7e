package guda

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LynnColeArt/guda-runtime/internal/barrier"
)

// Kernel represents a compute kernel that can be executed in parallel.
// Execute is called concurrently, once per emulated thread.
type Kernel interface {
	Execute(t *Thread, args ...interface{})
}

// KernelFunc is a function that can be launched as a kernel.
type KernelFunc func(t *Thread, args ...interface{})

// Execute implements Kernel.
func (fn KernelFunc) Execute(t *Thread, args ...interface{}) {
	fn(t, args...)
}

// TaskFunc is the callable of an unparallelized task.
type TaskFunc func(args ...interface{})

// executionContext describes the kernel currently running. There is one per
// process; every field below kernelLock is written only by the goroutine
// holding kernelLock and read by the kernel goroutines of that launch.
type executionContext struct {
	kernelLock sync.Mutex

	active   bool
	gridDim  Dim3
	blockDim Dim3
	blockIdx Dim3
	lanes    []Dim3 // thread index bound by each worker lane
	threads  []Thread
	shared   []byte
	barrier  *barrier.Barrier
}

var execCtx = &executionContext{barrier: barrier.New(1)}

// bind activates the context for a launch. Shared memory is allocated
// fresh for every launch and released by clear.
func (ec *executionContext) bind(grid, block Dim3, sharedMem int) {
	n := block.Size()

	ec.active = true
	ec.gridDim = grid
	ec.blockDim = block
	ec.blockIdx = Dim3{}
	ec.lanes = make([]Dim3, n)
	ec.threads = make([]Thread, n)
	for i := range ec.threads {
		ec.threads[i] = Thread{lane: i, ec: ec}
	}
	if sharedMem > 0 {
		ec.shared = make([]byte, sharedMem)
	}
}

// enterBlock points the context at the next block. Shared memory starts
// zeroed in every block.
func (ec *executionContext) enterBlock(idx Dim3) {
	ec.blockIdx = idx
	clear(ec.shared)
	ec.barrier.Reset(ec.blockDim.Size())
}

func (ec *executionContext) clear() {
	ec.active = false
	ec.gridDim = Dim3{}
	ec.blockDim = Dim3{}
	ec.blockIdx = Dim3{}
	ec.lanes = nil
	ec.threads = nil
	ec.shared = nil
}

// runBlock executes one block: one goroutine per thread, joined before
// returning.
func (ec *executionContext) runBlock(kernel Kernel, args []interface{}) error {
	var g errgroup.Group
	for i := range ec.threads {
		t := &ec.threads[i]
		g.Go(func() error {
			return ec.runThread(kernel, t, args)
		})
	}
	err := g.Wait()

	// A thread that faulted broke the barrier with its fault; report that
	// rather than whichever released waiter returned first.
	if cause := ec.barrier.Err(); cause != nil {
		return cause
	}
	return err
}

func (ec *executionContext) runThread(kernel Kernel, t *Thread, args []interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(barrierFault); ok {
				err = f.err
			} else {
				err = panicError(r)
			}
			ec.barrier.Break(err)
			return
		}
		ec.barrier.Leave()
	}()

	ec.lanes[t.lane] = linearTo3D(t.lane, ec.blockDim)
	kernel.Execute(t, args...)
	return nil
}

// barrierFault unwinds a kernel body whose barrier was broken.
type barrierFault struct {
	err error
}

// launch runs a whole grid under the kernel lock. Blocks run one after the
// other; the threads of a block run in parallel.
func (ctx *Context) launch(kernel Kernel, grid, block Dim3, sharedMem int, args []interface{}) (err error) {
	ec := execCtx
	ec.kernelLock.Lock()

	start := time.Now()
	var blocks, threads uint64
	defer func() {
		ec.clear()
		ec.kernelLock.Unlock()
		ctx.stats.kernelDone(time.Since(start), blocks, threads, err)
	}()

	ec.bind(grid, block, sharedMem)

	gridSize := grid.Size()
	blockSize := uint64(block.Size())
	for b := 0; b < gridSize; b++ {
		idx := linearTo3D(b, grid)
		ec.enterBlock(idx)
		if blockErr := ec.runBlock(kernel, args); blockErr != nil {
			ctx.logger().Warn("kernel faulted",
				zap.Stringer("block", idx),
				zap.Stringer("grid", grid),
				zap.Stringer("block_dim", block),
				zap.Error(blockErr))
			return NewLaunchError("LaunchKernel", fmt.Sprintf("block %v faulted", idx), blockErr)
		}
		blocks++
		threads += blockSize
	}

	return nil
}

// LaunchKernel validates the configuration and enqueues a kernel launch on
// stream. Invalid configurations are reported synchronously and nothing is
// enqueued; faults of the kernel body surface at the next synchronization
// of the stream.
func (ctx *Context) LaunchKernel(fn KernelFunc, grid, block Dim3, sharedMem int, stream *Stream, args ...interface{}) error {
	if fn == nil {
		return ctx.setLastError(NewInvalidValueError("LaunchKernel", "nil kernel"))
	}
	return ctx.launchInternal(fn, grid, block, sharedMem, stream, args)
}

// Launch executes a kernel on the default stream
func (ctx *Context) Launch(kernel Kernel, grid, block Dim3, args ...interface{}) error {
	return ctx.LaunchStream(kernel, grid, block, nil, args...)
}

// LaunchFunc executes a kernel function on the default stream
func (ctx *Context) LaunchFunc(fn KernelFunc, grid, block Dim3, args ...interface{}) error {
	return ctx.LaunchKernel(fn, grid, block, 0, nil, args...)
}

// LaunchStream executes a kernel on a specific stream
func (ctx *Context) LaunchStream(kernel Kernel, grid, block Dim3, stream *Stream, args ...interface{}) error {
	if kernel == nil {
		return ctx.setLastError(NewInvalidValueError("LaunchKernel", "nil kernel"))
	}
	return ctx.launchInternal(kernel, grid, block, 0, stream, args)
}

func (ctx *Context) launchInternal(kernel Kernel, grid, block Dim3, sharedMem int, stream *Stream, args []interface{}) error {
	s, err := ctx.resolveStream("LaunchKernel", stream)
	if err != nil {
		return ctx.setLastError(err)
	}

	grid, block, err = ctx.validateLaunch(grid, block, sharedMem)
	if err != nil {
		return ctx.setLastError(err)
	}

	ctx.logger().Debug("kernel enqueued",
		zap.Int("stream", s.id),
		zap.Stringer("grid", grid),
		zap.Stringer("block", block),
		zap.Int("shared_mem", sharedMem))

	return ctx.setLastError(s.submit(&task{
		kind: TaskKernelLaunch,
		name: "kernel",
		run: func() error {
			return ctx.launch(kernel, grid, block, sharedMem, args)
		},
	}))
}

func (ctx *Context) validateLaunch(grid, block Dim3, sharedMem int) (Dim3, Dim3, error) {
	g, ok := grid.normalize()
	if !ok || g.X > MaxGridDimX || g.Y > MaxGridDimYZ || g.Z > MaxGridDimYZ {
		return grid, block, NewInvalidValueError("LaunchKernel", fmt.Sprintf("invalid grid dimensions %v", grid))
	}
	if _, ok := g.checkedSize(); !ok {
		return grid, block, NewInvalidValueError("LaunchKernel", fmt.Sprintf("grid %v holds too many blocks", grid))
	}
	b, ok := block.normalize()
	if !ok {
		return grid, block, NewInvalidValueError("LaunchKernel", fmt.Sprintf("invalid block dimensions %v", block))
	}
	limit := ctx.cfg.MaxThreadsPerBlock
	if n, ok := b.checkedSize(); !ok || n > limit {
		return grid, block, NewInvalidValueError("LaunchKernel",
			fmt.Sprintf("block %v exceeds the limit of %d threads", block, limit))
	}
	if sharedMem < 0 || sharedMem > ctx.cfg.MaxSharedMemoryPerBlock {
		return grid, block, NewInvalidValueError("LaunchKernel",
			fmt.Sprintf("%d bytes of shared memory outside [0, %d]", sharedMem, ctx.cfg.MaxSharedMemoryPerBlock))
	}
	return g, b, nil
}

// LaunchTask enqueues fn to run exactly once on stream. The task does not
// take part in the grid emulation: it never touches the execution context
// and, unless the context was created WithSerializedTasks, it does not take
// the kernel lock, so it may overlap kernels running on other streams.
func (ctx *Context) LaunchTask(fn TaskFunc, stream *Stream, args ...interface{}) error {
	if fn == nil {
		return ctx.setLastError(NewInvalidValueError("LaunchTask", "nil task"))
	}
	s, err := ctx.resolveStream("LaunchTask", stream)
	if err != nil {
		return ctx.setLastError(err)
	}

	serialize := ctx.cfg.SerializeTasks
	return ctx.setLastError(s.submit(&task{
		kind: TaskUnparallelized,
		name: "task",
		run: func() error {
			if serialize {
				execCtx.kernelLock.Lock()
				defer execCtx.kernelLock.Unlock()
			}
			fn(args...)
			return nil
		},
	}))
}

// linearTo3D converts a linear index to 3D coordinates
func linearTo3D(linear int, dim Dim3) Dim3 {
	z := linear / (dim.X * dim.Y)
	y := (linear % (dim.X * dim.Y)) / dim.X
	x := linear % dim.X
	return Dim3{X: x, Y: y, Z: z}
}

// linearOf converts 3D coordinates within dim to a linear index
func linearOf(idx, dim Dim3) int {
	return (idx.Z*dim.Y+idx.Y)*dim.X + idx.X
}
