package nexttick

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopClosed is returned when submitting to a loop that is not running.
var ErrLoopClosed = errors.New("nexttick: loop closed")

// Loop runs submitted tasks one at a time on the goroutine that called Run.
// After every task the deferred callbacks queued with NextTick are drained,
// so a task plus everything it scheduled completes before the next task
// starts.
type Loop struct {
	tasks chan func()
	queue *Queue

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewLoop creates a loop whose task channel holds up to buffer tasks.
func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks: make(chan func(), buffer),
		queue: NewQueue(),
		done:  make(chan struct{}),
	}
}

// NextTick defers fn until the current task finishes. It must be called from
// the loop goroutine.
func (l *Loop) NextTick(fn func()) {
	l.queue.NextTick(fn)
}

// OnPanic sets the handler for panicking tasks and callbacks.
func (l *Loop) OnPanic(fn func(err error)) {
	l.queue.OnPanic(fn)
}

// Submit enqueues fn to run on the loop goroutine.
func (l *Loop) Submit(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Do runs fn on the loop and waits until it and its deferred callbacks have
// finished.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	err := l.Submit(func() {
		defer close(finished)
		fn()
		l.queue.Flush()
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	}
}

// Run processes tasks until ctx is cancelled. A loop can only be run once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("nexttick: loop already started")
	}
	l.started = true
	l.mu.Unlock()

	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-l.tasks:
			l.tick(task)
		}
	}
}

func (l *Loop) tick(task func()) {
	l.queue.mu.Lock()
	onPanic := l.queue.onPanic
	l.queue.mu.Unlock()

	run(task, onPanic)
	l.queue.Flush()
}
