// Package nexttick provides deferred execution primitives: callbacks that run
// once the current burst of synchronous work has finished.
package nexttick

import (
	"fmt"
	"slices"
	"sync"
)

// Queue collects deferred callbacks until Flush is called. It is the manual
// equivalent of a microtask queue: whoever owns the burst of work calls
// Flush when the burst ends.
type Queue struct {
	mu        sync.Mutex
	callbacks []func()
	onPanic   func(err error)
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// OnPanic sets a handler for panics raised by callbacks. Without one, a
// panicking callback propagates out of Flush after the queue state is
// restored.
func (q *Queue) OnPanic(fn func(err error)) {
	q.mu.Lock()
	q.onPanic = fn
	q.mu.Unlock()
}

// NextTick schedules fn.
func (q *Queue) NextTick(fn func()) {
	q.mu.Lock()
	q.callbacks = append(q.callbacks, fn)
	q.mu.Unlock()
}

// Pending returns the number of callbacks waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.callbacks)
}

// Flush runs callbacks until none are left, including ones scheduled by
// the callbacks themselves, and returns how many ran.
func (q *Queue) Flush() int {
	ran := 0
	for {
		q.mu.Lock()
		batch := q.callbacks
		q.callbacks = nil
		onPanic := q.onPanic
		q.mu.Unlock()

		if len(batch) == 0 {
			return ran
		}
		ran += q.runBatch(batch, onPanic)
	}
}

// runBatch runs batch in order. If a callback panics without a handler the
// callbacks after it are put back at the front of the queue.
func (q *Queue) runBatch(batch []func(), onPanic func(error)) int {
	i := 0
	defer func() {
		if i < len(batch) {
			q.mu.Lock()
			q.callbacks = append(slices.Clone(batch[i+1:]), q.callbacks...)
			q.mu.Unlock()
		}
	}()
	for ; i < len(batch); i++ {
		run(batch[i], onPanic)
	}
	return len(batch)
}

func run(fn func(), onPanic func(error)) {
	if onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				onPanic(fmt.Errorf("nexttick: callback panicked: %v", r))
			}
		}()
	}
	fn()
}
