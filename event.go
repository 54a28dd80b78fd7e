package guda

import (
	"fmt"
	"sync"
	"time"
)

// EventFlags configure an event.
type EventFlags int

const (
	EventDefault       EventFlags = 0
	EventDisableTiming EventFlags = 2
)

// Event is a completion token recorded on a stream. Each call to
// EventRecord starts a new recording that completes when its stream reaches
// it; the event reports the state of its latest recording. An event that
// was never recorded is complete.
type Event struct {
	ctx   *Context
	flags EventFlags

	mu        sync.Mutex
	gen       uint64
	latest    *recording // nil until the first EventRecord
	lastDone  *recording // most recent recording that completed
	destroyed chan struct{}
	dead      bool
}

// recording is one EventRecord. Its fields are written by the stream worker
// before done is closed.
type recording struct {
	gen    uint64
	done   chan struct{}
	seq    uint64
	stream int
	at     time.Time
}

func (r *recording) completed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Synchronize blocks until the latest recording of e completed.
func (e *Event) Synchronize() error {
	return e.ctx.EventSynchronize(e)
}

// Query returns nil if e completed, a NotReady error otherwise.
func (e *Event) Query() error {
	return e.ctx.EventQuery(e)
}

// Destroy releases e. Goroutines and streams still waiting on e are
// released with an AlreadyDestroyed error.
func (e *Event) Destroy() error {
	return e.ctx.EventDestroy(e)
}

// Sequence returns the position in its stream, counted in finished tasks,
// at which the most recent completed recording of e was reached, and the
// stream's ID. Both are zero if no recording completed yet.
func (e *Event) Sequence() (seq uint64, stream int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastDone == nil {
		return 0, 0
	}
	return e.lastDone.seq, e.lastDone.stream
}

// current returns the latest recording, nil if never recorded.
func (e *Event) current(op string) (*recording, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead {
		return nil, NewDestroyedError(op, "event destroyed")
	}
	return e.latest, nil
}

// complete is run by the stream worker when it reaches rec.
func (e *Event) complete(rec *recording, s *Stream) {
	rec.seq = s.executed.Load()
	rec.stream = s.id
	rec.at = time.Now()
	close(rec.done)

	e.mu.Lock()
	if e.lastDone == nil || rec.gen > e.lastDone.gen {
		e.lastDone = rec
	}
	e.mu.Unlock()
}

// wait blocks until rec completed or e is destroyed.
func (e *Event) wait(op string, rec *recording) error {
	select {
	case <-rec.done:
		return nil
	case <-e.destroyed:
		if rec.completed() {
			return nil
		}
		return NewDestroyedError(op, "event destroyed while waiting")
	}
}

// Context event API

// CreateEvent creates an event with default flags.
func (ctx *Context) CreateEvent() (*Event, error) {
	return ctx.CreateEventWithFlags(EventDefault)
}

// CreateEventWithFlags creates an event.
func (ctx *Context) CreateEventWithFlags(flags EventFlags) (*Event, error) {
	if ctx.destroyed.Load() {
		return nil, ctx.setLastError(NewDestroyedError("CreateEvent", "context destroyed"))
	}
	if flags&^EventDisableTiming != 0 {
		return nil, ctx.setLastError(NewInvalidValueError("CreateEvent", fmt.Sprintf("unknown flags %#x", int(flags))))
	}

	ctx.setLastError(nil)
	return &Event{
		ctx:       ctx,
		flags:     flags,
		destroyed: make(chan struct{}),
	}, nil
}

func (ctx *Context) checkEvent(op string, e *Event) error {
	if e == nil {
		return NewInvalidValueError(op, "nil event")
	}
	if e.ctx != ctx {
		return NewInvalidValueError(op, "event belongs to another context")
	}
	return nil
}

// EventRecord enqueues a marker on stream. When the stream reaches it, the
// recording completes. Recording again replaces the recording the event
// reports on; waits issued for an earlier recording still wait for that
// one.
func (ctx *Context) EventRecord(e *Event, stream *Stream) error {
	if err := ctx.checkEvent("EventRecord", e); err != nil {
		return ctx.setLastError(err)
	}
	s, err := ctx.resolveStream("EventRecord", stream)
	if err != nil {
		return ctx.setLastError(err)
	}

	e.mu.Lock()
	if e.dead {
		e.mu.Unlock()
		return ctx.setLastError(NewDestroyedError("EventRecord", "event destroyed"))
	}
	e.gen++
	rec := &recording{gen: e.gen, done: make(chan struct{})}
	prev := e.latest
	e.latest = rec
	e.mu.Unlock()

	err = s.submit(&task{
		kind: TaskEventRecord,
		name: "event record",
		run: func() error {
			e.complete(rec, s)
			return nil
		},
	})
	if err != nil {
		e.mu.Lock()
		if e.latest == rec {
			e.latest = prev
		}
		e.mu.Unlock()
	}
	return ctx.setLastError(err)
}

// EventSynchronize blocks the caller until the latest recording of e
// completed.
func (ctx *Context) EventSynchronize(e *Event) error {
	if err := ctx.checkEvent("EventSynchronize", e); err != nil {
		return ctx.setLastError(err)
	}
	rec, err := e.current("EventSynchronize")
	if err != nil || rec == nil {
		return ctx.setLastError(err)
	}
	return ctx.setLastError(e.wait("EventSynchronize", rec))
}

// EventQuery returns nil if e completed, a NotReady error otherwise.
func (ctx *Context) EventQuery(e *Event) error {
	if err := ctx.checkEvent("EventQuery", e); err != nil {
		return ctx.setLastError(err)
	}
	rec, err := e.current("EventQuery")
	if err != nil || rec == nil {
		return ctx.setLastError(err)
	}
	if !rec.completed() {
		return ctx.setLastError(NewNotReadyError("EventQuery", "event not completed"))
	}
	return ctx.setLastError(nil)
}

// EventDestroy destroys e.
func (ctx *Context) EventDestroy(e *Event) error {
	if err := ctx.checkEvent("EventDestroy", e); err != nil {
		return ctx.setLastError(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead {
		return ctx.setLastError(NewDestroyedError("EventDestroy", "event destroyed"))
	}
	e.dead = true
	close(e.destroyed)
	return ctx.setLastError(nil)
}

// StreamWaitEvent enqueues a wait on stream for the recording of e that is
// current at the time of the call. Work enqueued on stream afterwards runs
// only once that recording completed. Waiting for an event that was never
// recorded is a no-op.
func (ctx *Context) StreamWaitEvent(stream *Stream, e *Event) error {
	if err := ctx.checkEvent("StreamWaitEvent", e); err != nil {
		return ctx.setLastError(err)
	}
	s, err := ctx.resolveStream("StreamWaitEvent", stream)
	if err != nil {
		return ctx.setLastError(err)
	}
	rec, err := e.current("StreamWaitEvent")
	if err != nil || rec == nil {
		return ctx.setLastError(err)
	}

	return ctx.setLastError(s.submit(&task{
		kind: TaskEventWait,
		name: "event wait",
		run: func() error {
			return e.wait("StreamWaitEvent", rec)
		},
	}))
}

// EventElapsedTime returns the time between the completion of start and
// the completion of end.
func (ctx *Context) EventElapsedTime(start, end *Event) (time.Duration, error) {
	var at [2]time.Time
	for i, e := range []*Event{start, end} {
		if err := ctx.checkEvent("EventElapsedTime", e); err != nil {
			return 0, ctx.setLastError(err)
		}
		if e.flags&EventDisableTiming != 0 {
			return 0, ctx.setLastError(NewInvalidValueError("EventElapsedTime", "timing disabled on event"))
		}
		rec, err := e.current("EventElapsedTime")
		switch {
		case err != nil:
			return 0, ctx.setLastError(err)
		case rec == nil:
			return 0, ctx.setLastError(NewInvalidValueError("EventElapsedTime", "event never recorded"))
		case !rec.completed():
			return 0, ctx.setLastError(NewNotReadyError("EventElapsedTime", "event not completed"))
		}
		at[i] = rec.at
	}
	return at[1].Sub(at[0]), ctx.setLastError(nil)
}

// EventElapsedTime returns the time between two completed events.
func EventElapsedTime(start, end *Event) (time.Duration, error) {
	return defaultContext.EventElapsedTime(start, end)
}
