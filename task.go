package guda

import (
	"fmt"
)

// TaskKind tags the work items a stream executes.
type TaskKind int

const (
	TaskKernelLaunch TaskKind = iota
	TaskMemCopy
	TaskMemSet
	TaskEventRecord
	TaskEventWait
	TaskHostCallback
	TaskUnparallelized
)

func (k TaskKind) String() string {
	switch k {
	case TaskKernelLaunch:
		return "KernelLaunch"
	case TaskMemCopy:
		return "MemCopy"
	case TaskMemSet:
		return "MemSet"
	case TaskEventRecord:
		return "EventRecord"
	case TaskEventWait:
		return "EventWait"
	case TaskHostCallback:
		return "HostCallback"
	case TaskUnparallelized:
		return "Unparallelized"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// task is one entry of a stream queue. It carries everything it needs to
// run independently of the goroutine that enqueued it.
type task struct {
	kind TaskKind
	name string
	run  func() error

	// marker tasks are internal bookkeeping and do not count in stats
	marker bool

	// sync tasks report their error to a waiting caller instead of the
	// stream's failure slot
	sync bool
}

// after returns a copy of t that first waits for every dependency.
func (t *task) after(deps []<-chan struct{}) *task {
	run := t.run
	out := *t
	out.run = func() error {
		for _, d := range deps {
			<-d
		}
		return run()
	}
	return &out
}

// exec runs the task, converting a panic into a launch failure.
func (t *task) exec() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewLaunchError(t.kind.String(), fmt.Sprintf("%s panicked", t.name), panicError(r))
		}
	}()
	return t.run()
}

// panicError converts a recovered value into an error.
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
