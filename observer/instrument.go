package observer

import "time"

// Instrumentation observes the scheduler. Implementations run on the
// flushing goroutine and must not block.
type Instrumentation interface {
	FlushStarted(queued int)
	WatcherRan(w *Watcher, took time.Duration, err error)
	UpdateLoopDetected(w *Watcher)
	FlushFinished(ran int, took time.Duration)
}

// NopInstrumentation discards everything.
type NopInstrumentation struct{}

func (NopInstrumentation) FlushStarted(int)                          {}
func (NopInstrumentation) WatcherRan(*Watcher, time.Duration, error) {}
func (NopInstrumentation) UpdateLoopDetected(*Watcher)               {}
func (NopInstrumentation) FlushFinished(int, time.Duration)          {}

type instruments []Instrumentation

// Instruments fans every call out to each of ins in order.
func Instruments(ins ...Instrumentation) Instrumentation {
	return instruments(ins)
}

func (is instruments) FlushStarted(queued int) {
	for _, i := range is {
		i.FlushStarted(queued)
	}
}

func (is instruments) WatcherRan(w *Watcher, took time.Duration, err error) {
	for _, i := range is {
		i.WatcherRan(w, took, err)
	}
}

func (is instruments) UpdateLoopDetected(w *Watcher) {
	for _, i := range is {
		i.UpdateLoopDetected(w)
	}
}

func (is instruments) FlushFinished(ran int, took time.Duration) {
	for _, i := range is {
		i.FlushFinished(ran, took)
	}
}
