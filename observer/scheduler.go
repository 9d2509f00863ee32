package observer

import (
	"errors"
	"slices"
	"time"
)

// scheduler coalesces watcher updates from one synchronous burst into a single
// deferred flush that runs them in ascending id order. Creation order assigns
// ids, so enclosing computations run before the ones created inside them.
type scheduler struct {
	sys *System

	queue      []*Watcher
	has        map[uint64]bool
	circular   map[uint64]int
	suppressed map[uint64]bool

	waiting  bool
	flushing bool
	index    int
}

func newScheduler(s *System) *scheduler {
	return &scheduler{
		sys:        s,
		has:        map[uint64]bool{},
		circular:   map[uint64]int{},
		suppressed: map[uint64]bool{},
	}
}

// enqueue adds w to the pending queue unless it is already pending.
func (q *scheduler) enqueue(w *Watcher) {
	id := w.id
	if q.has[id] || q.suppressed[id] {
		return
	}
	q.has[id] = true

	if !q.flushing {
		q.queue = append(q.queue, w)
	} else {
		// keep the not yet visited part of the queue sorted; an id lower than
		// the current one lands right after it and runs next
		i := len(q.queue) - 1
		for i > q.index && q.queue[i].id > id {
			i--
		}
		q.queue = slices.Insert(q.queue, i+1, w)
	}

	if q.waiting {
		return
	}
	q.waiting = true
	if !q.sys.cfg.Async {
		q.flushAndReport()
		return
	}
	q.sys.NextTick(q.flushAndReport)
}

func (q *scheduler) flushAndReport() {
	if err := q.flush(); err != nil {
		q.sys.HandleError(err, "scheduler flush")
	}
}

// flush runs every queued watcher. Errors from non user watchers are
// collected and returned after the whole queue has been processed.
func (q *scheduler) flush() error {
	s := q.sys
	ins := s.cfg.Instrumentation
	start := time.Now()

	q.flushing = true
	defer func() {
		// a panicking render watcher must not leave the queue stuck
		if q.flushing {
			q.reset()
		}
	}()
	slices.SortFunc(q.queue, byWatcherID)
	ins.FlushStarted(len(q.queue))
	s.logger.Debug("flush started", "queued", len(q.queue))

	var (
		errs []error
		ran  int
	)
	for q.index = 0; q.index < len(q.queue); q.index++ {
		w := q.queue[q.index]
		id := w.id
		if q.suppressed[id] {
			continue
		}

		q.circular[id]++
		if runs := q.circular[id]; runs > s.cfg.MaxUpdateCount {
			q.suppressed[id] = true
			delete(q.has, id)
			ins.UpdateLoopDetected(w)
			s.HandleError(&UpdateLoopError{
				WatcherID:  id,
				Expression: w.expression,
				Runs:       runs - 1,
			}, "scheduler")
			continue
		}

		if w.before != nil {
			w.before()
		}
		delete(q.has, id)

		runStart := time.Now()
		err := w.Run()
		ins.WatcherRan(w, time.Since(runStart), err)
		ran++
		if err != nil {
			errs = append(errs, err)
		}
	}

	flushed := slices.Clone(q.queue)
	suppressed := q.suppressed
	q.reset()

	q.callAfterHooks(flushed, suppressed)

	took := time.Since(start)
	ins.FlushFinished(ran, took)
	s.logger.Debug("flush finished", "ran", ran, "took", took)

	return errors.Join(errs...)
}

// callAfterHooks fires each distinct watcher's After hook once, last queued
// first, so nested computations report before their parents.
func (q *scheduler) callAfterHooks(queue []*Watcher, suppressed map[uint64]bool) {
	seen := make(map[uint64]bool, len(queue))
	for i := len(queue) - 1; i >= 0; i-- {
		w := queue[i]
		if seen[w.id] || suppressed[w.id] {
			continue
		}
		seen[w.id] = true
		if w.after != nil && w.active {
			w.after()
		}
	}
}

func (q *scheduler) reset() {
	clear(q.queue)
	q.queue = q.queue[:0]
	q.index = 0
	q.has = map[uint64]bool{}
	q.circular = map[uint64]int{}
	q.suppressed = map[uint64]bool{}
	q.waiting = false
	q.flushing = false
}
