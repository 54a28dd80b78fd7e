package guda

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/LynnColeArt/guda-runtime/internal/taskqueue"
)

// StreamFlags select the synchronization behavior of a stream.
type StreamFlags int

const (
	// StreamDefault creates a blocking stream: it is implicitly ordered
	// against the default stream.
	StreamDefault StreamFlags = 0

	// StreamNonBlocking creates a stream that never synchronizes
	// implicitly with the default stream.
	StreamNonBlocking StreamFlags = 1
)

// Stream represents an ordered sequence of operations that execute
// asynchronously. Operations within a stream execute in order on the
// stream's own worker, but operations in different streams may execute
// concurrently.
//
// The nil *Stream designates the default stream of a context.
type Stream struct {
	id        int
	flags     StreamFlags
	ctx       *Context
	queue     *taskqueue.Queue
	isDefault bool
	destroyed atomic.Bool
	executed  atomic.Uint64 // finished tasks, legacy markers excluded

	mu  sync.Mutex
	err error // first asynchronous failure since the last synchronization
}

// ID returns the stream identifier.
func (s *Stream) ID() int {
	return s.id
}

// Flags returns the flags the stream was created with.
func (s *Stream) Flags() StreamFlags {
	return s.flags
}

// IsDefault reports whether s is the default stream of its context.
func (s *Stream) IsDefault() bool {
	return s.isDefault
}

// Pending returns the number of queued tasks, including the running one.
func (s *Stream) Pending() int {
	return s.queue.Pending()
}

// Executed returns the number of tasks the stream has finished.
func (s *Stream) Executed() uint64 {
	return s.executed.Load()
}

func (s *Stream) blocking() bool {
	return s.flags&StreamNonBlocking == 0
}

// submit enqueues t, adding the implicit dependencies of the legacy
// default stream when they apply.
func (s *Stream) submit(t *task) error {
	if s.destroyed.Load() {
		return NewDestroyedError(t.kind.String(), fmt.Sprintf("stream %d destroyed", s.id))
	}

	ctx := s.ctx
	if ctx.cfg.LegacyStreamSync && s.blocking() {
		// Serialized so that two submissions can never insert markers
		// behind each other's tasks and wait on one another.
		ctx.submitMu.Lock()
		defer ctx.submitMu.Unlock()

		if deps := ctx.legacyDependencies(s); len(deps) > 0 {
			t = t.after(deps)
		}
	}

	return s.push(t)
}

// submitAndWait enqueues t and blocks until it ran, returning its own
// error. The error is not kept as the stream's asynchronous failure.
func (s *Stream) submitAndWait(t *task) error {
	done := make(chan error, 1)
	run := t.run
	t.sync = true
	t.run = func() error {
		err := run()
		done <- err
		return err
	}

	if err := s.submit(t); err != nil {
		return err
	}
	return <-done
}

func (s *Stream) push(t *task) error {
	err := s.queue.Push(func() { s.runTask(t) })
	if errors.Is(err, taskqueue.ErrClosed) {
		return NewDestroyedError(t.kind.String(), fmt.Sprintf("stream %d destroyed", s.id))
	}
	return err
}

func (s *Stream) runTask(t *task) {
	err := t.exec()
	if t.marker {
		return
	}
	s.executed.Add(1)

	s.ctx.stats.taskDone(err)
	if err == nil {
		return
	}

	s.ctx.logger().Warn("stream task failed",
		zap.Int("stream", s.id),
		zap.Stringer("kind", t.kind),
		zap.Error(err))

	if t.sync {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// takeErr returns and clears the captured asynchronous failure.
func (s *Stream) takeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.err
	s.err = nil
	return err
}

// peekErr returns the captured asynchronous failure.
func (s *Stream) peekErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) synchronize() error {
	s.queue.Wait()
	return s.takeErr()
}

// close drains the queue and stops the worker.
func (s *Stream) close() {
	s.destroyed.Store(true)
	s.queue.Close()

	if err := s.takeErr(); err != nil {
		s.ctx.logger().Warn("stream destroyed with an unreported failure",
			zap.Int("stream", s.id),
			zap.Error(err))
	}
	s.ctx.logger().Debug("stream destroyed", zap.Int("stream", s.id))
}

// legacyDependencies records a marker behind the outstanding work every
// stream s must implicitly wait for: all busy blocking streams when s is
// the default stream, the default stream otherwise. Streams being destroyed
// are still listed until they drained.
func (ctx *Context) legacyDependencies(s *Stream) []<-chan struct{} {
	var others []*Stream
	if s.isDefault {
		for _, o := range ctx.Streams() {
			if o.blocking() {
				others = append(others, o)
			}
		}
	} else {
		others = []*Stream{ctx.defaultStream}
	}

	var deps []<-chan struct{}
	for _, o := range others {
		if o.queue.Idle() {
			continue
		}
		done := make(chan struct{})
		marker := &task{
			kind:   TaskEventRecord,
			name:   "legacy marker",
			marker: true,
			run: func() error {
				close(done)
				return nil
			},
		}
		if err := o.push(marker); err == nil {
			deps = append(deps, done)
		} else {
			// Closed while draining: wait for the worker to finish.
			deps = append(deps, o.queue.Done())
		}
	}
	return deps
}

// Synchronize waits for all tasks in the stream to complete and returns the
// first failure of an asynchronous task since the previous synchronization.
func (s *Stream) Synchronize() error {
	return s.ctx.StreamSynchronize(s)
}

// Query returns nil if all work on the stream finished, a NotReady error
// otherwise. Like Synchronize it reports and clears a captured failure.
func (s *Stream) Query() error {
	return s.ctx.StreamQuery(s)
}

// Destroy drains the stream and stops its worker.
func (s *Stream) Destroy() error {
	return s.ctx.StreamDestroy(s)
}

// WaitEvent makes all future work on s wait for the current recording of e.
func (s *Stream) WaitEvent(e *Event) error {
	return s.ctx.StreamWaitEvent(s, e)
}

// RecordEvent records e on s.
func (s *Stream) RecordEvent(e *Event) error {
	return s.ctx.EventRecord(e, s)
}

// AddCallback enqueues a host function. It receives the stream and the
// asynchronous failure captured so far, if any. The callback must not
// synchronize the stream it runs on.
func (s *Stream) AddCallback(fn func(s *Stream, status error)) error {
	return s.ctx.StreamAddCallback(s, fn)
}

// Context stream API

// CreateStream creates a new blocking stream.
func (ctx *Context) CreateStream() (*Stream, error) {
	return ctx.CreateStreamWithFlags(StreamDefault)
}

// CreateStreamWithFlags creates a new stream with its own worker.
func (ctx *Context) CreateStreamWithFlags(flags StreamFlags) (*Stream, error) {
	if ctx.destroyed.Load() {
		return nil, ctx.setLastError(NewDestroyedError("CreateStream", "context destroyed"))
	}
	if flags&^StreamNonBlocking != 0 {
		return nil, ctx.setLastError(NewInvalidValueError("CreateStream", fmt.Sprintf("unknown flags %#x", int(flags))))
	}
	ctx.setLastError(nil)
	return ctx.newStream(flags, false), nil
}

// StreamDestroy waits for every task already enqueued on s, then releases
// its worker. No task is dropped.
func (ctx *Context) StreamDestroy(s *Stream) error {
	if s == nil || s.isDefault {
		return ctx.setLastError(NewInvalidValueError("StreamDestroy", "the default stream cannot be destroyed"))
	}
	if s.ctx != ctx {
		return ctx.setLastError(NewInvalidValueError("StreamDestroy", "stream belongs to another context"))
	}
	if !s.destroyed.CompareAndSwap(false, true) {
		return ctx.setLastError(NewDestroyedError("StreamDestroy", fmt.Sprintf("stream %d destroyed", s.id)))
	}

	s.close()

	ctx.mu.Lock()
	delete(ctx.streams, s.id)
	ctx.mu.Unlock()
	return ctx.setLastError(nil)
}

// StreamSynchronize blocks until s is drained.
func (ctx *Context) StreamSynchronize(stream *Stream) error {
	s, err := ctx.resolveStream("StreamSynchronize", stream)
	if err != nil {
		return ctx.setLastError(err)
	}
	return ctx.setLastError(s.synchronize())
}

// StreamQuery reports without blocking whether s is drained.
func (ctx *Context) StreamQuery(stream *Stream) error {
	s, err := ctx.resolveStream("StreamQuery", stream)
	if err != nil {
		return ctx.setLastError(err)
	}
	if !s.queue.Idle() {
		return ctx.setLastError(NewNotReadyError("StreamQuery", fmt.Sprintf("stream %d has %d pending tasks", s.id, s.queue.Pending())))
	}
	return ctx.setLastError(s.takeErr())
}

// StreamAddCallback enqueues fn on stream.
func (ctx *Context) StreamAddCallback(stream *Stream, fn func(s *Stream, status error)) error {
	if fn == nil {
		return ctx.setLastError(NewInvalidValueError("StreamAddCallback", "nil callback"))
	}
	s, err := ctx.resolveStream("StreamAddCallback", stream)
	if err != nil {
		return ctx.setLastError(err)
	}
	return ctx.setLastError(s.submit(&task{
		kind: TaskHostCallback,
		name: "callback",
		run: func() error {
			fn(s, s.peekErr())
			return nil
		},
	}))
}
