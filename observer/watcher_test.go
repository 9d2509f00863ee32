package observer_test

import (
	"errors"
	"testing"

	"github.com/delaneyj/watchparty/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a watcher subscribes once to every dep it reads
func TestWatcherCollectsDeps(t *testing.T) {
	sys := newSyncSystem(t)
	a := observer.NewRef(sys, 1)
	b := observer.NewRef(sys, 2)

	w := watch(t, sys, func() (any, error) {
		return a.Get() + b.Get() + a.Get(), nil
	}, nil, user())

	assert.Equal(t, 4, w.Value())
	assert.Equal(t, []*observer.Dep{a.Dep(), b.Dep()}, w.Deps())
	assert.Len(t, a.Dep().Subscribers(), 1)
	assert.Len(t, b.Dep().Subscribers(), 1)
}

// deps that are no longer read are dropped
//
//	flag ? a : b
func TestWatcherPrunesDeps(t *testing.T) {
	sys := newSyncSystem(t)
	flag := observer.NewRef(sys, true)
	a := observer.NewRef(sys, "a")
	b := observer.NewRef(sys, "b")

	w := watch(t, sys, func() (any, error) {
		if flag.Get() {
			return a.Get(), nil
		}
		return b.Get(), nil
	}, nil, user())
	assert.True(t, a.Dep().HasSub(w))
	assert.False(t, b.Dep().HasSub(w))

	flag.Set(false)
	assert.Equal(t, "b", w.Value())
	assert.False(t, a.Dep().HasSub(w))
	assert.True(t, b.Dep().HasSub(w))

	runs := 0
	watch(t, sys, func() (any, error) { return w.Value(), nil }, func(_, _ any) error {
		runs++
		return nil
	}, user())
	a.Set("changed")
	assert.Equal(t, 0, runs)
	assert.Equal(t, "b", w.Value())
}

// a watcher created inside another watcher's getter does not steal its reads
func TestNestedEvaluationRestoresTarget(t *testing.T) {
	sys := newSyncSystem(t)
	a := observer.NewRef(sys, 1)
	b := observer.NewRef(sys, 2)

	var inner *observer.Watcher
	outer := watch(t, sys, func() (any, error) {
		if inner == nil {
			inner = watch(t, sys, func() (any, error) { return b.Get(), nil }, nil, user())
		}
		return a.Get(), nil
	}, nil, user())

	assert.Nil(t, sys.Target())
	assert.Equal(t, []*observer.Dep{a.Dep()}, outer.Deps())
	assert.Equal(t, []*observer.Dep{b.Dep()}, inner.Deps())
}

// computed watchers are lazy and cache until a dep changes
func TestComputedIsLazy(t *testing.T) {
	sys := newSyncSystem(t)
	a := observer.NewRef(sys, 1)

	runs := 0
	c := watch(t, sys, func() (any, error) {
		runs++
		return a.Get() * 2, nil
	}, nil, observer.Options{Kind: observer.KindComputed})

	assert.Equal(t, 0, runs)
	assert.True(t, c.Dirty())
	assert.Equal(t, observer.StateLazyDirty, c.State())

	require.NoError(t, c.Evaluate())
	assert.Equal(t, 2, c.Value())
	assert.Equal(t, 1, runs)
	assert.Equal(t, observer.StateLazyClean, c.State())

	a.Set(5)
	assert.True(t, c.Dirty())
	assert.Equal(t, 1, runs)

	require.NoError(t, c.Evaluate())
	assert.Equal(t, 10, c.Value())
	assert.Equal(t, 2, runs)
}

// reading a computed value inside a watcher subscribes the watcher to the
// computed value's deps
//
//	a -> c (computed) -> u (user)
func TestComputedDependPropagates(t *testing.T) {
	sys := newSyncSystem(t)
	a := observer.NewRef(sys, 1)
	c := watch(t, sys, func() (any, error) { return a.Get() * 2, nil }, nil, observer.Options{Kind: observer.KindComputed})

	read := func() any {
		if c.Dirty() {
			require.NoError(t, c.Evaluate())
		}
		if sys.Target() != nil {
			c.Depend()
		}
		return c.Value()
	}

	got := []any{}
	u := watch(t, sys, func() (any, error) { return read(), nil }, func(v, _ any) error {
		got = append(got, v)
		return nil
	}, user())
	assert.Equal(t, 2, u.Value())
	assert.True(t, a.Dep().HasSub(u))

	a.Set(3)
	assert.Equal(t, []any{6}, got)
}

// a failing evaluation leaves the computed value dirty
func TestComputedEvaluateError(t *testing.T) {
	sys := newSyncSystem(t)
	boom := errors.New("boom")
	fail := observer.NewRef(sys, true)
	c := watch(t, sys, func() (any, error) {
		if fail.Get() {
			return nil, boom
		}
		return "ok", nil
	}, nil, observer.Options{Kind: observer.KindComputed})

	err := c.Evaluate()
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.Dirty())

	fail.Set(false)
	require.NoError(t, c.Evaluate())
	assert.Equal(t, "ok", c.Value())
}

// sync watchers run on notification, skipping the queue
func TestSyncWatcherRunsImmediately(t *testing.T) {
	sys, q := newQueuedSystem(t)
	a := observer.NewRef(sys, 1)

	got := [][2]any{}
	w := watch(t, sys, func() (any, error) { return a.Get(), nil }, func(v, old any) error {
		got = append(got, [2]any{v, old})
		return nil
	}, observer.Options{Kind: observer.KindUser, Sync: true})
	assert.True(t, w.Sync())

	a.Set(2)
	a.Set(3)
	assert.Equal(t, [][2]any{{2, 1}, {3, 2}}, got)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 0, sys.Pending())
}

// an unchanged primitive result does not fire the callback
func TestUnchangedValueSkipsCallback(t *testing.T) {
	sys := newSyncSystem(t)
	a := observer.NewRef(sys, 1)

	runs := 0
	watch(t, sys, func() (any, error) { return a.Get() % 2, nil }, func(_, _ any) error {
		runs++
		return nil
	}, user())

	a.Set(3)
	assert.Equal(t, 0, runs)
	a.Set(4)
	assert.Equal(t, 1, runs)
}

// a container result fires even when it is the same reference
func TestContainerAlwaysFires(t *testing.T) {
	sys := newSyncSystem(t)
	state := sys.Reactive(map[string]any{"list": []any{1, 2}})

	var got, old any
	watch(t, sys, func() (any, error) { return state.Get("list"), nil }, func(v, o any) error {
		got, old = v, o
		return nil
	}, user())

	list := state.Get("list").(*observer.Array)
	list.Push(3)
	assert.Same(t, list, got)
	assert.Same(t, list, old)
	assert.Equal(t, 3, list.Len())
}

// deep watchers fire on mutation anywhere below the result
func TestDeepWatcher(t *testing.T) {
	sys := newSyncSystem(t)
	state := sys.Reactive(map[string]any{
		"user": map[string]any{
			"name": "ann",
			"tags": []any{map[string]any{"id": 1}},
		},
	})

	shallowRuns, deepRuns := 0, 0
	getter := func() (any, error) { return state.Get("user"), nil }
	watch(t, sys, getter, func(_, _ any) error {
		shallowRuns++
		return nil
	}, user())
	w := watch(t, sys, getter, func(_, _ any) error {
		deepRuns++
		return nil
	}, observer.Options{Kind: observer.KindUser, Deep: true})
	assert.True(t, w.Deep())

	u := state.Get("user").(*observer.Object)
	u.Set("name", "bob")
	assert.Equal(t, 0, shallowRuns)
	assert.Equal(t, 1, deepRuns)

	tag := u.Get("tags").(*observer.Array).Get(0).(*observer.Object)
	tag.Set("id", 2)
	assert.Equal(t, 0, shallowRuns)
	assert.Equal(t, 2, deepRuns)
}

// user getter errors are reported and the previous value is kept
func TestUserGetterErrorIsReported(t *testing.T) {
	log := &errorLog{}
	sys := observer.NewSystem(observer.WithAsync(false), observer.WithErrorHandler(log.handle))
	a := observer.NewRef(sys, 1)
	boom := errors.New("too big")

	runs := 0
	w := watch(t, sys, func() (any, error) {
		if v := a.Get(); v > 1 {
			return nil, boom
		}
		return a.Get(), nil
	}, func(_, _ any) error {
		runs++
		return nil
	}, observer.Options{Kind: observer.KindUser, Expression: "a"})

	a.Set(2)
	require.Len(t, log.entries, 1)
	assert.ErrorIs(t, log.entries[0].err, boom)
	assert.Equal(t, `getter for watcher "a"`, log.entries[0].info)

	var werr *observer.WatcherError
	require.ErrorAs(t, log.entries[0].err, &werr)
	assert.Equal(t, 1, w.Value())
	assert.Equal(t, 0, runs)

	// still subscribed, so it recovers
	a.Set(1)
	assert.Equal(t, 1, w.Value())
	assert.True(t, a.Dep().HasSub(w))
}

// panics in user getters and callbacks are recovered and reported
func TestUserPanicsAreRecovered(t *testing.T) {
	log := &errorLog{}
	sys := observer.NewSystem(observer.WithAsync(false), observer.WithErrorHandler(log.handle))
	a := observer.NewRef(sys, 0)

	watch(t, sys, func() (any, error) { return a.Get(), nil }, func(_, _ any) error {
		panic("boom")
	}, observer.Options{Kind: observer.KindUser, Expression: "cb"})
	watch(t, sys, func() (any, error) {
		if a.Get() > 0 {
			panic(errors.New("getter boom"))
		}
		return 0, nil
	}, nil, observer.Options{Kind: observer.KindUser, Expression: "getter"})

	assert.NotPanics(t, func() { a.Set(1) })
	require.Len(t, log.entries, 2)
	assert.Equal(t, `callback for watcher "cb"`, log.entries[0].info)
	assert.ErrorContains(t, log.entries[0].err, "panic: boom")
	assert.Equal(t, `getter for watcher "getter"`, log.entries[1].info)
	assert.ErrorContains(t, log.entries[1].err, "getter boom")
	assert.Nil(t, sys.Target())
}

// render watchers return their first failure to the caller
func TestRenderCreationError(t *testing.T) {
	sys := newSyncSystem(t)
	a := observer.NewRef(sys, 1)
	boom := errors.New("render failed")

	w, err := observer.NewWatcher(sys, nil, func() (any, error) {
		a.Get()
		return nil, boom
	}, nil, observer.Options{Kind: observer.KindRender})
	assert.Nil(t, w)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, a.Dep().Subscribers())
}

// a user watcher whose first evaluation fails starts with nil
func TestUserCreationErrorIsReported(t *testing.T) {
	log := &errorLog{}
	sys := observer.NewSystem(observer.WithAsync(false), observer.WithErrorHandler(log.handle))
	boom := errors.New("nope")

	w, err := observer.NewWatcher(sys, nil, func() (any, error) { return 1, boom }, nil, user())
	require.NoError(t, err)
	assert.Nil(t, w.Value())
	require.Len(t, log.entries, 1)
	assert.ErrorIs(t, log.entries[0].err, boom)
}

type owner struct {
	watchers   []*observer.Watcher
	removed    []*observer.Watcher
	render     *observer.Watcher
	destroying bool
}

func (o *owner) AddWatcher(w *observer.Watcher)       { o.watchers = append(o.watchers, w) }
func (o *owner) RemoveWatcher(w *observer.Watcher)    { o.removed = append(o.removed, w) }
func (o *owner) SetRenderWatcher(w *observer.Watcher) { o.render = w }
func (o *owner) IsBeingDestroyed() bool               { return o.destroying }

// teardown unsubscribes everywhere and tells the owner
func TestTeardown(t *testing.T) {
	sys := newSyncSystem(t)
	a := observer.NewRef(sys, 1)
	own := &owner{}

	runs := 0
	w, err := observer.NewWatcher(sys, own, func() (any, error) { return a.Get(), nil }, func(_, _ any) error {
		runs++
		return nil
	}, user())
	require.NoError(t, err)
	assert.Equal(t, []*observer.Watcher{w}, own.watchers)
	assert.Nil(t, own.render)
	assert.Equal(t, observer.StateIdle, w.State())

	w.Teardown()
	w.Teardown()
	assert.False(t, w.Active())
	assert.Equal(t, observer.StateTornDown, w.State())
	assert.Equal(t, []*observer.Watcher{w}, own.removed)
	assert.False(t, a.Dep().HasSub(w))

	a.Set(2)
	assert.Equal(t, 0, runs)
	require.NoError(t, w.Run())
	assert.Equal(t, 0, runs)
}

// a torn down computed watcher never evaluates again and passes no deps on
func TestTeardownComputed(t *testing.T) {
	sys := newSyncSystem(t)
	state := sys.Reactive(map[string]any{"a": 1})

	runs := 0
	c, err := observer.NewWatcher(sys, nil, func() (any, error) {
		runs++
		return state.Get("a").(int) * 2, nil
	}, nil, observer.Options{Kind: observer.KindComputed})
	require.NoError(t, err)
	require.NoError(t, c.Evaluate())
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, c.Value())

	c.Teardown()
	assert.Empty(t, c.Deps())

	state.Set("a", 2)
	assert.False(t, c.Dirty())
	require.NoError(t, c.Evaluate())
	assert.Equal(t, 1, runs)
	assert.Equal(t, 2, c.Value())
	assert.Empty(t, c.Deps())
	assert.Equal(t, observer.StateTornDown, c.State())

	outer, err := observer.NewWatcher(sys, nil, func() (any, error) {
		c.Depend()
		return nil, nil
	}, nil, user())
	require.NoError(t, err)
	assert.Empty(t, outer.Deps())
}

// render watchers register themselves as the owner's render watcher
func TestRenderWatcherOwner(t *testing.T) {
	sys := newSyncSystem(t)
	own := &owner{destroying: true}

	w, err := observer.NewWatcher(sys, own, func() (any, error) { return nil, nil }, nil, observer.Options{Kind: observer.KindRender})
	require.NoError(t, err)
	assert.Same(t, w, own.render)

	w.Teardown()
	assert.Empty(t, own.removed)
}

func TestKindAndStateStrings(t *testing.T) {
	assert.Equal(t, "render", observer.KindRender.String())
	assert.Equal(t, "computed", observer.KindComputed.String())
	assert.Equal(t, "user", observer.KindUser.String())
	assert.Equal(t, "Kind(9)", observer.Kind(9).String())
	assert.Equal(t, "active-queued", observer.StateQueued.String())
	assert.Equal(t, "torn-down", observer.StateTornDown.String())
}
