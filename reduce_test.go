package guda

import (
	"fmt"
	"math"
	"testing"
)

func TestReduce(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	for _, n := range []int{0, 1, 255, 256, 257, 10000, reduceBlock*reduceBlock + 3} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			x, err := ctx.Malloc(max(n, 1) * 4)
			if err != nil {
				t.Fatal(err)
			}
			defer ctx.Free(x)

			data := x.Float32()
			wantSum, wantMax, wantMin := float32(0), float32(math.Inf(-1)), float32(math.Inf(1))
			for i := 0; i < n; i++ {
				data[i] = float32(i%17 - 8)
				wantSum += data[i]
				wantMax = max(wantMax, data[i])
				wantMin = min(wantMin, data[i])
			}

			for op, want := range map[ReduceOp]float32{
				ReduceOpSum: wantSum,
				ReduceOpMax: wantMax,
				ReduceOpMin: wantMin,
			} {
				got, err := ctx.Reduce(op, x, n)
				if err != nil {
					t.Fatalf("%v: %v", op, err)
				}
				if got != want {
					t.Errorf("%v: want %v, got %v", op, want, got)
				}
			}
		})
	}
}

func TestReduceAsyncOnStream(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	const n = 4096
	x, err := ctx.Malloc(n * 4)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Free(x)
	out, err := ctx.Malloc(4)
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Free(out)

	s := StreamOrFail(t, ctx, StreamNonBlocking)
	if err := ctx.MemsetAsync(x, 0, n*4, s); err != nil {
		t.Fatal(err)
	}
	ctx.LaunchKernel(func(th *Thread, args ...interface{}) {
		args[0].(DevicePtr).Float32()[th.GlobalX()] = 1
	}, Dim3{X: n / 256}, Dim3{X: 256}, 0, s, x)
	if err := ctx.ReduceAsync(ReduceOpSum, x, n, out, s); err != nil {
		t.Fatal(err)
	}
	if err := s.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if got := out.Float32()[0]; got != n {
		t.Errorf("want %d, got %v", n, got)
	}
}

func TestReduceValidation(t *testing.T) {
	ctx := NewContext()
	defer ctx.Destroy()

	x, _ := ctx.Malloc(16)
	defer ctx.Free(x)
	out, _ := ctx.Malloc(4)
	defer ctx.Free(out)

	tests := []struct {
		name string
		op   ReduceOp
		n    int
		out  DevicePtr
	}{
		{"bad op", ReduceOp(7), 4, out},
		{"negative count", ReduceOpSum, -1, out},
		{"count exceeds input", ReduceOpSum, 5, out},
		{"no output", ReduceOpSum, 4, DevicePtr{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ctx.ReduceAsync(tt.op, x, tt.n, tt.out, nil); !IsInvalidValue(err) {
				t.Errorf("expected InvalidValue, got %v", err)
			}
		})
	}
}

func TestDevicePtrReductions(t *testing.T) {
	d := MallocOrFail(t, 8*4)
	defer Free(d)
	copy(d.Float32(), []float32{3, -1, 4, 1, -5, 9, 2, 6})

	sum, err := d.Sum(8)
	if err != nil || sum != 19 {
		t.Errorf("Sum = %v, %v", sum, err)
	}
	mx, err := d.Max(8)
	if err != nil || mx != 9 {
		t.Errorf("Max = %v, %v", mx, err)
	}
	mn, err := d.Min(8)
	if err != nil || mn != -5 {
		t.Errorf("Min = %v, %v", mn, err)
	}
}
