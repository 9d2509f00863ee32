// Package observer tracks which computations read which reactive values and
// re-runs them when those values change.
//
// A System owns the graph. Reactive state lives in cells (Cell, Ref, and the
// per-key cells of an Object) and containers (Object, Array); each has a Dep.
// A Watcher evaluates its getter with itself on the system's target stack, so
// every dep read during the evaluation is recorded, and deps no longer read
// are dropped afterwards.
//
//	sys := observer.NewSystem(observer.WithAsync(false))
//	state := sys.Reactive(map[string]any{"a": 1})
//	observer.NewWatcher(sys, nil,
//	    func() (any, error) { return state.Get("a").(int) * 2, nil },
//	    func(v, old any) error { fmt.Println(v, old); return nil },
//	    observer.Options{Kind: observer.KindUser, Sync: true},
//	)
//	state.Set("a", 5) // prints 10 2
//
// # Scheduling
//
// Non-sync watchers are queued when notified. The queue is flushed once per
// burst through the configured Ticker, in ascending watcher id order, with
// each watcher running at most once unless it is re-triggered during the
// flush. Lazy (computed) watchers are only marked dirty.
//
// A System is single-threaded. Use a nexttick.Loop to drive it from a
// dedicated goroutine.
package observer
