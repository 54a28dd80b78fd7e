// Command gudarun runs sample workloads on the GUDA CPU runtime and reports
// what the runtime did: kernels, blocks, stream tasks and failures.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	guda "github.com/LynnColeArt/guda-runtime"
)

func main() {
	var (
		example     = flag.String("example", "all", "Workload to run: vector, reduce, streams or all")
		size        = flag.Int("n", 1<<20, "Number of elements")
		streams     = flag.Int("streams", 4, "Number of streams used by the streams workload")
		verbose     = flag.Bool("v", false, "Log runtime activity")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	workloads, err := selectWorkloads(*example)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: gudarun [-example vector|reduce|streams|all] [-n elements] [-streams k] [-v] [-i]")
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose && !*interactive {
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	ctx := guda.NewContext(guda.WithLogger(logger))
	defer ctx.Destroy()

	opts := options{n: *size, streams: *streams}

	if *interactive && term.IsTerminal(int(os.Stdout.Fd())) {
		if err := runInteractive(ctx, workloads, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, workloads, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func selectWorkloads(name string) ([]workload, error) {
	if name == "all" {
		return allWorkloads, nil
	}
	var names []string
	for _, w := range allWorkloads {
		if w.name == name {
			return []workload{w}, nil
		}
		names = append(names, w.name)
	}
	return nil, fmt.Errorf("unknown example %q (want one of %s or all)", name, strings.Join(names, ", "))
}

func run(ctx *guda.Context, workloads []workload, opts options) error {
	dev := ctx.Device()
	fmt.Printf("Device: %s, %d cores, features: %s\n", dev.Name, dev.NumCores, dev.Features)

	for _, w := range workloads {
		res, err := w.run(ctx, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", w.name, err)
		}
		fmt.Printf("%-8s %s (%v)\n", w.name, res.summary, res.elapsed)
	}

	st := ctx.Stats()
	fmt.Printf("\nKernels: %d (%d failed), blocks: %d, threads: %d, tasks: %d (%d failed), kernel time: %v\n",
		st.KernelsLaunched, st.KernelsFailed, st.BlocksExecuted, st.ThreadsExecuted,
		st.TasksExecuted, st.TasksFailed, st.KernelTime)
	return nil
}
