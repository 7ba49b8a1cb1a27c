package sync

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// DeadlockDetection is the maximum time a coroutine may run between two yield
// points before execution is aborted.
const DeadlockDetection = 30 * time.Second

var ErrCoroutineAlreadyFinished = errors.New("coroutine already finished")

// Coroutine is a cooperatively scheduled unit of workflow execution. A
// coroutine runs on its own goroutine but at most one coroutine of a given
// scheduler executes at a time; it hands control back via Yield and is
// resumed via Execute.
type Coroutine interface {
	// Execute continues execution of a blocked coroutine and waits until it
	// is finished or blocked again
	Execute()

	// Yield yields execution and stops coroutine execution
	Yield()

	// Exit prevents a blocked coroutine from continuing
	Exit()

	Blocked() bool
	Finished() bool
	Progress() bool

	Error() error
}

type key int

var coroutineCtxKey key

type coState struct {
	blocking chan bool // coroutine is going to be blocked
	unblock  chan bool // channel to unblock a blocked coroutine

	blocked    atomic.Bool // coroutine is currently blocked
	finished   atomic.Bool // coroutine finished executing
	shouldExit atomic.Bool // coroutine should exit on next yield
	progress   atomic.Bool // did the coroutine make progress since the last yield?

	err error

	deadlockDetection time.Duration
}

func NewCoroutine(ctx Context, fn func(ctx Context) error) Coroutine {
	s := newCoState()
	ctx = withCoState(ctx, s)

	go func() {
		defer s.finish() // Always mark the coroutine as finished
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok && errors.Is(err, ErrCoroutineAlreadyFinished) {
					return
				}

				s.err = fmt.Errorf("panic: %v", r)
			}
		}()

		// yield before the first execution
		s.yield(false)

		s.err = fn(ctx)
	}()

	return s
}

func newCoState() *coState {
	c := &coState{
		blocking:          make(chan bool, 1),
		unblock:           make(chan bool),
		deadlockDetection: DeadlockDetection,
	}

	// Start out as blocked
	c.blocked.Store(true)

	return c
}

func (s *coState) finish() {
	s.finished.Store(true)
	s.blocking <- true
}

func (s *coState) Finished() bool {
	return s.finished.Load()
}

func (s *coState) Blocked() bool {
	return s.blocked.Load()
}

func (s *coState) MadeProgress() {
	s.progress.Store(true)
}

func (s *coState) Progress() bool {
	return s.progress.Load()
}

func (s *coState) Yield() {
	s.yield(true)
}

func (s *coState) yield(markBlocking bool) {
	if markBlocking {
		if s.shouldExit.Load() {
			panic(ErrCoroutineAlreadyFinished)
		}

		s.blocked.Store(true)
		s.blocking <- true
	}

	// Wait for the next Execute() call
	<-s.unblock

	if s.shouldExit.Load() {
		// Goexit runs all deferred functions, which includes calling finish()
		// in the main execution function.
		runtime.Goexit()
	}

	s.blocked.Store(false)
}

func (s *coState) Execute() {
	s.progress.Store(false)

	if s.Finished() {
		return
	}

	t := time.NewTimer(s.deadlockDetection)
	defer t.Stop()

	s.unblock <- true

	runtime.Gosched()

	// Run until blocked, which is also the case when finished
	select {
	case <-s.blocking:
	case <-t.C:
		panic("coroutine timed out")
	}
}

func (s *coState) Exit() {
	if s.Finished() {
		return
	}

	s.shouldExit.Store(true)
	s.Execute()
}

func (s *coState) Error() error {
	return s.err
}

func withCoState(ctx Context, s *coState) Context {
	return WithValue(ctx, coroutineCtxKey, s)
}

func getCoState(ctx Context) *coState {
	s, ok := ctx.Value(coroutineCtxKey).(*coState)
	if !ok {
		panic("could not find coroutine state in context")
	}

	return s
}
