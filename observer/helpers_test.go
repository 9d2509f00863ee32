package observer_test

import (
	"testing"

	"github.com/delaneyj/watchparty/nexttick"
	"github.com/delaneyj/watchparty/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reported struct {
	err  error
	info string
}

type errorLog struct {
	entries []reported
}

func (l *errorLog) handle(err error, info string) {
	l.entries = append(l.entries, reported{err: err, info: info})
}

// newSyncSystem flushes on every notification and fails the test on any
// reported error.
func newSyncSystem(t *testing.T) *observer.System {
	t.Helper()
	return observer.NewSystem(
		observer.WithAsync(false),
		observer.WithErrorHandler(func(err error, info string) {
			assert.FailNow(t, info+": "+err.Error())
		}),
	)
}

// newQueuedSystem batches notifications into q.
func newQueuedSystem(t *testing.T, opts ...observer.Option) (*observer.System, *nexttick.Queue) {
	t.Helper()
	q := nexttick.NewQueue()
	opts = append([]observer.Option{observer.WithNextTick(q)}, opts...)
	return observer.NewSystem(opts...), q
}

func watch(t *testing.T, sys *observer.System, getter observer.Getter, cb observer.Callback, opts observer.Options) *observer.Watcher {
	t.Helper()
	w, err := observer.NewWatcher(sys, nil, getter, cb, opts)
	require.NoError(t, err)
	return w
}

func user() observer.Options {
	return observer.Options{Kind: observer.KindUser}
}
