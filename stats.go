package guda

import (
	"sync/atomic"
	"time"
)

// Stats holds counters collected by a Context.
type Stats struct {
	KernelsLaunched uint64
	KernelsFailed   uint64
	BlocksExecuted  uint64
	ThreadsExecuted uint64
	TasksExecuted   uint64
	TasksFailed     uint64

	// Time spent inside kernel execution windows
	KernelTime time.Duration
}

type statsCollector struct {
	kernelsLaunched atomic.Uint64
	kernelsFailed   atomic.Uint64
	blocksExecuted  atomic.Uint64
	threadsExecuted atomic.Uint64
	tasksExecuted   atomic.Uint64
	tasksFailed     atomic.Uint64
	kernelNanos     atomic.Int64
}

func (c *statsCollector) snapshot() Stats {
	return Stats{
		KernelsLaunched: c.kernelsLaunched.Load(),
		KernelsFailed:   c.kernelsFailed.Load(),
		BlocksExecuted:  c.blocksExecuted.Load(),
		ThreadsExecuted: c.threadsExecuted.Load(),
		TasksExecuted:   c.tasksExecuted.Load(),
		TasksFailed:     c.tasksFailed.Load(),
		KernelTime:      time.Duration(c.kernelNanos.Load()),
	}
}

func (c *statsCollector) kernelDone(d time.Duration, blocks, threads uint64, err error) {
	c.kernelsLaunched.Add(1)
	c.blocksExecuted.Add(blocks)
	c.threadsExecuted.Add(threads)
	c.kernelNanos.Add(int64(d))
	if err != nil {
		c.kernelsFailed.Add(1)
	}
}

func (c *statsCollector) taskDone(err error) {
	c.tasksExecuted.Add(1)
	if err != nil {
		c.tasksFailed.Add(1)
	}
}
