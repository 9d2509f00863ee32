package observer_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/delaneyj/watchparty/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// several writes in one burst produce one run with the final value
func TestSchedulerCoalesces(t *testing.T) {
	sys, q := newQueuedSystem(t)
	a := observer.NewRef(sys, 0)

	got := [][2]any{}
	w := watch(t, sys, func() (any, error) { return a.Get(), nil }, func(v, old any) error {
		got = append(got, [2]any{v, old})
		return nil
	}, user())

	a.Set(1)
	a.Set(2)
	a.Set(3)
	assert.Empty(t, got)
	assert.Equal(t, 1, sys.Pending())
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, observer.StateQueued, w.State())

	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, [][2]any{{3, 0}}, got)
	assert.Equal(t, 0, sys.Pending())
	assert.False(t, sys.Flushing())
	assert.Equal(t, observer.StateIdle, w.State())
}

// queued watchers run in creation order regardless of notification order
func TestSchedulerRunsInIDOrder(t *testing.T) {
	sys, q := newQueuedSystem(t)
	refs := []*observer.Ref[int]{
		observer.NewRef(sys, 0),
		observer.NewRef(sys, 0),
		observer.NewRef(sys, 0),
	}

	order := []string{}
	for i, r := range refs {
		name := fmt.Sprintf("w%d", i+1)
		watch(t, sys, func() (any, error) { return r.Get(), nil }, func(_, _ any) error {
			order = append(order, name)
			return nil
		}, user())
	}

	refs[2].Set(1)
	refs[1].Set(1)
	refs[0].Set(1)
	q.Flush()
	assert.Equal(t, []string{"w1", "w2", "w3"}, order)
}

// a watcher triggered during a flush runs in the same flush, even when its
// id is lower than the one currently running
//
//	w1 reads b
//	w2 reads a, writes b
func TestSchedulerInsertsDuringFlush(t *testing.T) {
	sys, q := newQueuedSystem(t)
	a := observer.NewRef(sys, 0)
	b := observer.NewRef(sys, 0)

	order := []string{}
	watch(t, sys, func() (any, error) { return b.Get(), nil }, func(_, _ any) error {
		order = append(order, "w1")
		return nil
	}, user())
	watch(t, sys, func() (any, error) { return a.Get(), nil }, func(v, _ any) error {
		order = append(order, "w2")
		b.Set(v.(int) * 10)
		return nil
	}, user())

	a.Set(1)
	assert.Equal(t, 1, q.Flush())
	assert.Equal(t, []string{"w2", "w1"}, order)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 10, b.Peek())
}

// a watcher that keeps re-triggering itself is stopped and reported, and
// the rest of the queue still runs
func TestSchedulerDetectsUpdateLoop(t *testing.T) {
	log := &errorLog{}
	sys, q := newQueuedSystem(t,
		observer.WithMaxUpdateCount(10),
		observer.WithErrorHandler(log.handle),
	)
	counter := observer.NewRef(sys, 0)
	other := observer.NewRef(sys, 0)

	runs, otherRuns := 0, 0
	w := watch(t, sys, func() (any, error) { return counter.Get(), nil }, func(v, _ any) error {
		runs++
		counter.Set(v.(int) + 1)
		return nil
	}, observer.Options{Kind: observer.KindUser, Expression: "counter"})
	watch(t, sys, func() (any, error) { return other.Get(), nil }, func(_, _ any) error {
		otherRuns++
		return nil
	}, user())

	counter.Set(1)
	other.Set(1)
	q.Flush()

	assert.Equal(t, 10, runs)
	assert.Equal(t, 11, counter.Peek())
	assert.Equal(t, 1, otherRuns)

	require.Len(t, log.entries, 1)
	assert.Equal(t, "scheduler", log.entries[0].info)
	assert.ErrorIs(t, log.entries[0].err, observer.ErrInfiniteUpdateLoop)
	var loop *observer.UpdateLoopError
	require.ErrorAs(t, log.entries[0].err, &loop)
	assert.Equal(t, w.ID(), loop.WatcherID)
	assert.Equal(t, "counter", loop.Expression)
	assert.Equal(t, 10, loop.Runs)
	assert.Contains(t, loop.Error(), `expression "counter"`)

	// the counters reset with the next flush
	counter.Set(100)
	q.Flush()
	assert.Equal(t, 20, runs)
}

// before hooks run before each watcher, after hooks once per watcher after
// the whole queue in reverse order
func TestSchedulerHooks(t *testing.T) {
	sys, q := newQueuedSystem(t)
	a := observer.NewRef(sys, 0)

	events := []string{}
	for _, name := range []string{"w1", "w2"} {
		watch(t, sys, func() (any, error) { return a.Get(), nil }, func(_, _ any) error {
			events = append(events, "run "+name)
			return nil
		}, observer.Options{
			Kind:   observer.KindUser,
			Before: func() { events = append(events, "before "+name) },
			After:  func() { events = append(events, "after "+name) },
		})
	}

	a.Set(1)
	q.Flush()
	assert.Equal(t, []string{
		"before w1", "run w1",
		"before w2", "run w2",
		"after w2", "after w1",
	}, events)
}

// errors from render watchers are joined and reported after the flush
func TestSchedulerReportsRenderErrors(t *testing.T) {
	log := &errorLog{}
	sys, q := newQueuedSystem(t, observer.WithErrorHandler(log.handle))
	a := observer.NewRef(sys, 0)
	boom := errors.New("render failed")

	ran := false
	_, err := observer.NewWatcher(sys, nil, func() (any, error) {
		if a.Get() > 0 {
			return nil, boom
		}
		return nil, nil
	}, nil, observer.Options{Kind: observer.KindRender})
	require.NoError(t, err)
	watch(t, sys, func() (any, error) { return a.Get(), nil }, func(_, _ any) error {
		ran = true
		return nil
	}, user())

	a.Set(1)
	q.Flush()
	assert.True(t, ran)
	require.Len(t, log.entries, 1)
	assert.Equal(t, "scheduler flush", log.entries[0].info)
	assert.ErrorIs(t, log.entries[0].err, boom)
}

// switching to synchronous mode flushes on every notification
func TestSetAsync(t *testing.T) {
	sys, q := newQueuedSystem(t)
	a := observer.NewRef(sys, 0)

	runs := 0
	watch(t, sys, func() (any, error) { return a.Get(), nil }, func(_, _ any) error {
		runs++
		return nil
	}, user())

	assert.True(t, sys.Async())
	sys.SetAsync(false)
	a.Set(1)
	a.Set(2)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 0, q.Pending())

	sys.SetAsync(true)
	a.Set(3)
	a.Set(4)
	assert.Equal(t, 2, runs)
	q.Flush()
	assert.Equal(t, 3, runs)
}

type recorder struct {
	started  []int
	ran      []uint64
	loops    int
	finished []int
}

func (r *recorder) FlushStarted(queued int) { r.started = append(r.started, queued) }
func (r *recorder) WatcherRan(w *observer.Watcher, _ time.Duration, _ error) {
	r.ran = append(r.ran, w.ID())
}
func (r *recorder) UpdateLoopDetected(*observer.Watcher)   { r.loops++ }
func (r *recorder) FlushFinished(ran int, _ time.Duration) { r.finished = append(r.finished, ran) }

// instrumentation sees every flush and run
func TestSchedulerInstrumentation(t *testing.T) {
	r1, r2 := &recorder{}, &recorder{}
	sys, q := newQueuedSystem(t, observer.WithInstrumentation(observer.Instruments(r1, r2)))
	a := observer.NewRef(sys, 0)
	b := observer.NewRef(sys, 0)

	w1 := watch(t, sys, func() (any, error) { return a.Get(), nil }, nil, user())
	w2 := watch(t, sys, func() (any, error) { return b.Get(), nil }, nil, user())

	b.Set(1)
	a.Set(1)
	q.Flush()

	for _, r := range []*recorder{r1, r2} {
		assert.Equal(t, []int{2}, r.started)
		assert.Equal(t, []uint64{w1.ID(), w2.ID()}, r.ran)
		assert.Equal(t, []int{2}, r.finished)
		assert.Equal(t, 0, r.loops)
	}
}

// a watcher torn down while queued does not run
func TestSchedulerSkipsTornDown(t *testing.T) {
	sys, q := newQueuedSystem(t)
	a := observer.NewRef(sys, 0)

	runs := 0
	w := watch(t, sys, func() (any, error) { return a.Get(), nil }, func(_, _ any) error {
		runs++
		return nil
	}, user())

	a.Set(1)
	w.Teardown()
	q.Flush()
	assert.Equal(t, 0, runs)
}
