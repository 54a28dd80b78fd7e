package main

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	guda "github.com/LynnColeArt/guda-runtime"
)

type options struct {
	n       int
	streams int
}

type result struct {
	summary string
	elapsed time.Duration
}

type workload struct {
	name string
	run  func(ctx *guda.Context, opts options) (result, error)
}

var allWorkloads = []workload{
	{"vector", runVectorAdd},
	{"reduce", runReduce},
	{"streams", runStreams},
}

func runVectorAdd(ctx *guda.Context, opts options) (result, error) {
	n := opts.n
	a := make([]float32, n)
	b := make([]float32, n)
	c := make([]float32, n)
	for i := range a {
		a[i] = rand.Float32()
		b[i] = rand.Float32()
	}

	d_A, err := ctx.Malloc(n * 4)
	if err != nil {
		return result{}, err
	}
	defer ctx.Free(d_A)
	d_B, err := ctx.Malloc(n * 4)
	if err != nil {
		return result{}, err
	}
	defer ctx.Free(d_B)
	d_C, err := ctx.Malloc(n * 4)
	if err != nil {
		return result{}, err
	}
	defer ctx.Free(d_C)

	if err := ctx.Memcpy(d_A, a, n*4, guda.MemcpyHostToDevice); err != nil {
		return result{}, err
	}
	if err := ctx.Memcpy(d_B, b, n*4, guda.MemcpyHostToDevice); err != nil {
		return result{}, err
	}

	start := time.Now()
	block := guda.Dim3{X: guda.DefaultBlockSize}
	grid := guda.Dim3{X: (n + block.X - 1) / block.X}
	err = ctx.LaunchKernel(func(t *guda.Thread, args ...interface{}) {
		i := t.GlobalX()
		if i < n {
			args[2].(guda.DevicePtr).Float32()[i] = args[0].(guda.DevicePtr).Float32()[i] + args[1].(guda.DevicePtr).Float32()[i]
		}
	}, grid, block, 0, nil, d_A, d_B, d_C)
	if err != nil {
		return result{}, err
	}
	if err := ctx.Memcpy(c, d_C, n*4, guda.MemcpyDeviceToHost); err != nil {
		return result{}, err
	}
	elapsed := time.Since(start)

	for i := range c {
		if c[i] != a[i]+b[i] {
			return result{}, fmt.Errorf("mismatch at %d: %f != %f", i, c[i], a[i]+b[i])
		}
	}
	return result{
		summary: fmt.Sprintf("%d elements, %d blocks of %d", n, grid.X, block.X),
		elapsed: elapsed,
	}, ctx.Synchronize()
}

// reduceKernel sums each block of in into out[blockIdx.x].
func reduceKernel(t *guda.Thread, args ...interface{}) {
	in := args[0].([]float64)
	out := args[1].([]float64)

	scratch := t.SharedMemory().Float64()
	lid := t.ThreadIdx().X
	if i := t.GlobalX(); i < len(in) {
		scratch[lid] = in[i]
	}

	for s := t.BlockDim().X / 2; s > 0; s /= 2 {
		t.SyncThreads()
		if lid < s {
			scratch[lid] += scratch[lid+s]
		}
	}
	if lid == 0 {
		out[t.BlockIdx().X] = scratch[0]
	}
}

func runReduce(ctx *guda.Context, opts options) (result, error) {
	const blockSize = 256

	in := make([]float64, opts.n)
	var want float64
	for i := range in {
		in[i] = float64(i % 100)
		want += in[i]
	}

	blocks := (opts.n + blockSize - 1) / blockSize
	partial := make([]float64, blocks)

	start := time.Now()
	err := ctx.LaunchKernel(reduceKernel, guda.Dim3{X: blocks}, guda.Dim3{X: blockSize}, blockSize*8, nil, in, partial)
	if err != nil {
		return result{}, err
	}
	if err := ctx.Synchronize(); err != nil {
		return result{}, err
	}
	var got float64
	for _, p := range partial {
		got += p
	}
	elapsed := time.Since(start)

	if math.Abs(got-want) > 1e-6*math.Max(1, want) {
		return result{}, fmt.Errorf("sum %f, want %f", got, want)
	}
	return result{
		summary: fmt.Sprintf("sum of %d elements = %.0f over %d blocks", opts.n, got, blocks),
		elapsed: elapsed,
	}, nil
}

// runStreams splits a scale-and-copy pipeline over several non-blocking
// streams and joins them on the default stream through events.
func runStreams(ctx *guda.Context, opts options) (result, error) {
	k := max(opts.streams, 1)
	chunk := (opts.n + k - 1) / k

	host := make([]float32, chunk*k)
	for i := range host {
		host[i] = float32(i % 1000)
	}
	out := make([]float32, len(host))

	d, err := ctx.Malloc(len(host) * 4)
	if err != nil {
		return result{}, err
	}
	defer ctx.Free(d)

	start := time.Now()
	events := make([]*guda.Event, k)
	for i := 0; i < k; i++ {
		s, err := ctx.CreateStreamWithFlags(guda.StreamNonBlocking)
		if err != nil {
			return result{}, err
		}
		defer ctx.StreamDestroy(s)

		part := d.Offset(i * chunk * 4)
		lo, hi := i*chunk, (i+1)*chunk
		if err := ctx.MemcpyAsync(part, host[lo:hi], chunk*4, guda.MemcpyHostToDevice, s); err != nil {
			return result{}, err
		}
		block := guda.Dim3{X: guda.DefaultBlockSize}
		grid := guda.Dim3{X: (chunk + block.X - 1) / block.X}
		err = ctx.LaunchKernel(func(t *guda.Thread, args ...interface{}) {
			v := args[0].(guda.DevicePtr).Float32()
			if j := t.GlobalX(); j < chunk {
				v[j] *= 2
			}
		}, grid, block, 0, s, part)
		if err != nil {
			return result{}, err
		}
		if err := ctx.MemcpyAsync(out[lo:hi], part, chunk*4, guda.MemcpyDeviceToHost, s); err != nil {
			return result{}, err
		}

		if events[i], err = ctx.CreateEvent(); err != nil {
			return result{}, err
		}
		if err := ctx.EventRecord(events[i], s); err != nil {
			return result{}, err
		}
		if err := ctx.StreamWaitEvent(nil, events[i]); err != nil {
			return result{}, err
		}
	}

	if err := ctx.StreamSynchronize(nil); err != nil {
		return result{}, err
	}
	elapsed := time.Since(start)

	for i := range out {
		if out[i] != 2*host[i] {
			return result{}, fmt.Errorf("mismatch at %d: %f != %f", i, out[i], 2*host[i])
		}
	}
	for _, e := range events {
		ctx.EventDestroy(e)
	}
	return result{
		summary: fmt.Sprintf("%d elements over %d streams", len(host), k),
		elapsed: elapsed,
	}, ctx.Synchronize()
}
