// Package taskqueue provides the FIFO task queue and its dedicated worker
// goroutine used by every stream.
//
// Tasks run strictly in push order, one at a time, on a single goroutine.
// The queue is unbounded so that a running task may push onto its own queue.
package taskqueue

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("taskqueue: queue closed")

// Task is a unit of work executed by the worker.
type Task func()

// Queue is a FIFO of tasks drained by exactly one worker goroutine.
type Queue struct {
	name    string
	onPanic func(v any)

	mu       sync.Mutex
	notEmpty *sync.Cond
	idle     *sync.Cond
	tasks    []Task
	running  bool
	closed   bool
	executed uint64

	done chan struct{}
}

// New creates a queue and starts its worker. onPanic, when non-nil, receives
// the value of a panicking task and the worker continues with the next task.
// With a nil onPanic the panic propagates.
func New(name string, onPanic func(v any)) *Queue {
	q := &Queue{
		name:    name,
		onPanic: onPanic,
		done:    make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)

	go q.worker()

	return q
}

// Name returns the name the queue was created with.
func (q *Queue) Name() string {
	return q.name
}

// worker pops and runs tasks until the queue is closed and drained.
func (q *Queue) worker() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.notEmpty.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.running = true
		q.mu.Unlock()

		q.run(task)

		q.mu.Lock()
		q.running = false
		q.executed++
		if len(q.tasks) == 0 {
			q.idle.Broadcast()
		}
		q.mu.Unlock()
	}
}

func (q *Queue) run(task Task) {
	if q.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				q.onPanic(r)
			}
		}()
	}
	task()
}

// Push appends a task to the queue.
func (q *Queue) Push(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.tasks = append(q.tasks, task)
	q.notEmpty.Signal()
	return nil
}

// Wait blocks until the queue is empty and no task is running.
// Calling Wait from a task of the same queue deadlocks.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) > 0 || q.running {
		q.idle.Wait()
	}
}

// Idle reports whether the queue is empty and no task is running.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) == 0 && !q.running
}

// Pending returns the number of queued tasks, including the running one.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tasks)
	if q.running {
		n++
	}
	return n
}

// Executed returns the number of tasks that have finished.
func (q *Queue) Executed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.executed
}

// Done is closed once the worker has drained a closed queue and exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Close stops accepting tasks, lets the worker drain everything already
// queued, and returns once the worker has exited. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.notEmpty.Broadcast()
	}
	q.mu.Unlock()

	<-q.done
}
