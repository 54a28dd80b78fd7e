package guda

import (
	"fmt"
	"math"
)

// Reduction primitives built on the launcher. Each reduction runs as two
// kernels on the same stream: a grid-wide pass that folds the input into one
// partial per block through shared memory, and a single-block pass that
// folds the partials into the result.

// ReduceOp selects the combining operation of a reduction.
type ReduceOp int

const (
	ReduceOpSum ReduceOp = iota
	ReduceOpMax
	ReduceOpMin
)

func (op ReduceOp) String() string {
	switch op {
	case ReduceOpSum:
		return "Sum"
	case ReduceOpMax:
		return "Max"
	case ReduceOpMin:
		return "Min"
	default:
		return fmt.Sprintf("ReduceOp(%d)", int(op))
	}
}

// identity is the result of reducing zero elements.
func (op ReduceOp) identity() float32 {
	switch op {
	case ReduceOpMax:
		return float32(math.Inf(-1))
	case ReduceOpMin:
		return float32(math.Inf(1))
	default:
		return 0
	}
}

func (op ReduceOp) combine(a, b float32) float32 {
	switch op {
	case ReduceOpMax:
		return max(a, b)
	case ReduceOpMin:
		return min(a, b)
	default:
		return a + b
	}
}

// reduceBlock is the block size of both passes. It must be a power of two.
const reduceBlock = DefaultBlockSize

// reduceKernel folds src into dst[blockIdx.x]. Every thread first folds a
// grid-strided slice of src, then the block combines the per-thread values
// in a shared memory tree.
func reduceKernel(op ReduceOp) KernelFunc {
	return func(t *Thread, args ...interface{}) {
		src := args[0].([]float32)
		dst := args[1].([]float32)

		scratch := t.SharedMemory().Float32()
		lid := t.ThreadIdx().X
		stride := t.GridDim().X * t.BlockDim().X

		acc := op.identity()
		for i := t.GlobalX(); i < len(src); i += stride {
			acc = op.combine(acc, src[i])
		}
		scratch[lid] = acc

		for s := t.BlockDim().X / 2; s > 0; s >>= 1 {
			t.SyncThreads()
			if lid < s {
				scratch[lid] = op.combine(scratch[lid], scratch[lid+s])
			}
		}
		if lid == 0 {
			dst[t.BlockIdx().X] = scratch[0]
		}
	}
}

// ReduceAsync enqueues on stream a reduction of the first n float32 values
// of x into the first element of out.
func (ctx *Context) ReduceAsync(op ReduceOp, x DevicePtr, n int, out DevicePtr, stream *Stream) error {
	if op < ReduceOpSum || op > ReduceOpMin {
		return ctx.setLastError(NewInvalidValueError("Reduce", fmt.Sprintf("invalid operation %v", op)))
	}
	if n < 0 || n*4 > x.Size() {
		return ctx.setLastError(NewInvalidValueError("Reduce", fmt.Sprintf("%d elements do not fit the %d byte input", n, x.Size())))
	}
	if out.Size() < 4 {
		return ctx.setLastError(NewInvalidValueError("Reduce", "output holds no float32"))
	}

	blocks := min(max((n+reduceBlock-1)/reduceBlock, 1), reduceBlock)
	partial := make([]float32, blocks)
	src := x.Float32()[:n]
	kernel := reduceKernel(op)

	if err := ctx.LaunchKernel(kernel, Dim3{X: blocks}, Dim3{X: reduceBlock}, reduceBlock*4, stream, src, partial); err != nil {
		return err
	}
	return ctx.LaunchKernel(kernel, Dim3{X: 1}, Dim3{X: reduceBlock}, reduceBlock*4, stream, partial, out.Float32()[:1])
}

// Reduce reduces the first n float32 values of x on the default stream and
// waits for the result.
func (ctx *Context) Reduce(op ReduceOp, x DevicePtr, n int) (float32, error) {
	out := devicePtrOf(make([]byte, 4))
	if err := ctx.ReduceAsync(op, x, n, out, nil); err != nil {
		return 0, err
	}
	if err := ctx.StreamSynchronize(nil); err != nil {
		return 0, err
	}
	return out.Float32()[0], nil
}

// ReduceAsync enqueues a reduction on the default context.
func ReduceAsync(op ReduceOp, x DevicePtr, n int, out DevicePtr, stream *Stream) error {
	return defaultContext.ReduceAsync(op, x, n, out, stream)
}

// Reduce reduces x on the default context and waits for the result.
func Reduce(op ReduceOp, x DevicePtr, n int) (float32, error) {
	return defaultContext.Reduce(op, x, n)
}

// Sum returns the sum of the first n float32 values of d.
func (d DevicePtr) Sum(n int) (float32, error) {
	return Reduce(ReduceOpSum, d, n)
}

// Max returns the maximum of the first n float32 values of d, -Inf for n == 0.
func (d DevicePtr) Max(n int) (float32, error) {
	return Reduce(ReduceOpMax, d, n)
}

// Min returns the minimum of the first n float32 values of d, +Inf for n == 0.
func (d DevicePtr) Min(n int) (float32, error) {
	return Reduce(ReduceOpMin, d, n)
}
