package observer

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Kind distinguishes the three roles a watcher can play.
type Kind uint8

const (
	// KindRender is the primary render computation of an owner.
	KindRender Kind = iota
	// KindComputed is a lazy, cached derived value.
	KindComputed
	// KindUser is a user registered watch. Its errors are reported, not returned.
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindRender:
		return "render"
	case KindComputed:
		return "computed"
	case KindUser:
		return "user"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// State is the position of a watcher in its lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateQueued
	StateLazyDirty
	StateLazyClean
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "active-idle"
	case StateQueued:
		return "active-queued"
	case StateLazyDirty:
		return "lazy-dirty"
	case StateLazyClean:
		return "lazy-clean"
	case StateTornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Getter is the computation a watcher re-executes.
type Getter func() (any, error)

// Callback receives the new and previous value when a watcher's result changes.
type Callback func(newValue, oldValue any) error

// Options configure a watcher.
type Options struct {
	Kind Kind

	// Deep forces registration on every nested value of the result.
	Deep bool

	// Sync runs the watcher immediately on notification instead of queueing it.
	Sync bool

	// Before is called by the scheduler right before the watcher runs.
	Before func()

	// After is called once per flush after all queued watchers have run.
	After func()

	// Expression labels the watcher in error messages.
	Expression string
}

// Owner is the component a watcher belongs to.
type Owner interface {
	AddWatcher(w *Watcher)
	RemoveWatcher(w *Watcher)
	SetRenderWatcher(w *Watcher)
	IsBeingDestroyed() bool
}

// Watcher re-runs a computation whenever a dep it read during its last
// evaluation notifies, and fires its callback when the result changed.
type Watcher struct {
	sys   *System
	owner Owner

	id         uint64
	kind       Kind
	expression string
	getter     Getter
	cb         Callback
	deep       bool
	sync       bool
	before     func()
	after      func()

	active bool
	dirty  bool
	value  any

	deps      []*Dep
	newDeps   []*Dep
	depIDs    mapset.Set[uint64]
	newDepIDs mapset.Set[uint64]
}

// NewWatcher creates a watcher and, unless it is computed, evaluates it
// once to collect its initial dependencies and value.
//
// A failing first evaluation of a render or computed watcher is returned.
// User watchers report it and start with a nil value.
func NewWatcher(s *System, owner Owner, getter Getter, cb Callback, opts Options) (*Watcher, error) {
	if getter == nil {
		getter = func() (any, error) { return nil, nil }
	}
	w := &Watcher{
		sys:        s,
		owner:      owner,
		id:         s.nextWatcherID(),
		kind:       opts.Kind,
		expression: opts.Expression,
		getter:     getter,
		cb:         cb,
		deep:       opts.Deep,
		sync:       opts.Sync,
		before:     opts.Before,
		after:      opts.After,
		active:     true,
		dirty:      opts.Kind == KindComputed,
		depIDs:     mapset.NewThreadUnsafeSet[uint64](),
		newDepIDs:  mapset.NewThreadUnsafeSet[uint64](),
	}
	if owner != nil {
		if w.kind == KindRender {
			owner.SetRenderWatcher(w)
		}
		owner.AddWatcher(w)
	}

	if w.kind == KindComputed {
		return w, nil
	}

	value, err := w.get()
	if err != nil {
		if w.kind != KindUser {
			w.Teardown()
			return nil, fmt.Errorf("creating %s watcher: %w", w.kind, err)
		}
		w.reportUserError(err, "getter")
		value = nil
	}
	w.value = value
	return w, nil
}

// get evaluates the getter with w as the active target and re-collects
// dependencies. Cleanup runs deferred so a failing or panicking getter still
// restores the target stack and prunes deps.
func (w *Watcher) get() (value any, err error) {
	s := w.sys
	s.targets.push(w)
	defer func() {
		if w.deep {
			Traverse(value, nil)
		}
		s.targets.pop()
		w.cleanupDeps()
	}()
	if w.kind == KindUser {
		defer func() {
			if r := recover(); r != nil {
				value, err = nil, recovered(r)
			}
		}()
	}
	return w.getter()
}

// AddDep records d as read during the in-progress evaluation and subscribes
// to it if it was not a dependency last time.
func (w *Watcher) AddDep(d *Dep) {
	if !w.active {
		return
	}
	id := d.id
	if w.newDepIDs.Contains(id) {
		return
	}
	w.newDepIDs.Add(id)
	w.newDeps = append(w.newDeps, d)
	if !w.depIDs.Contains(id) {
		d.AddSub(w)
	}
}

// cleanupDeps unsubscribes from deps not read in the latest evaluation and
// promotes the new dep set.
func (w *Watcher) cleanupDeps() {
	for i := len(w.deps) - 1; i >= 0; i-- {
		d := w.deps[i]
		if !w.newDepIDs.Contains(d.id) {
			d.RemoveSub(w)
		}
	}

	w.depIDs, w.newDepIDs = w.newDepIDs, w.depIDs
	w.newDepIDs.Clear()

	old := w.deps
	w.deps = w.newDeps
	clear(old)
	w.newDeps = old[:0]
}

// Update is called by a dep when it changes.
func (w *Watcher) Update() {
	switch {
	case !w.active:
	case w.kind == KindComputed:
		w.dirty = true
	case w.sync:
		if err := w.Run(); err != nil {
			w.sys.HandleError(err, fmt.Sprintf("sync watcher %d", w.id))
		}
	default:
		w.sys.scheduler.enqueue(w)
	}
}

// Run re-evaluates the watcher and fires the callback if the value changed.
// Containers and deep watchers always fire since they may have been mutated
// in place. A torn down watcher does nothing.
func (w *Watcher) Run() error {
	if !w.active {
		return nil
	}

	value, err := w.get()
	if err != nil {
		if w.kind == KindUser {
			w.reportUserError(err, "getter")
			return nil
		}
		return fmt.Errorf("running %s watcher %d: %w", w.kind, w.id, err)
	}

	if sameValue(value, w.value) && !isContainer(value) && !w.deep {
		return nil
	}

	oldValue := w.value
	w.value = value
	if w.cb == nil {
		return nil
	}
	if w.kind != KindUser {
		return w.cb(value, oldValue)
	}
	if err := w.callback(value, oldValue); err != nil {
		w.reportUserError(err, "callback")
	}
	return nil
}

func (w *Watcher) callback(value, oldValue any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return w.cb(value, oldValue)
}

func (w *Watcher) reportUserError(err error, what string) {
	info := fmt.Sprintf("%s for watcher %q", what, w.expression)
	w.sys.HandleError(&WatcherError{Info: info, Err: err}, info)
}

// Evaluate computes the value of a lazy watcher and clears its dirty flag.
// On error the watcher stays dirty. A torn down watcher keeps its last value.
func (w *Watcher) Evaluate() error {
	if !w.active {
		return nil
	}
	value, err := w.get()
	if err != nil {
		return fmt.Errorf("evaluating %s watcher %d: %w", w.kind, w.id, err)
	}
	w.value = value
	w.dirty = false
	return nil
}

// Depend registers every dep of w with the active watcher. This lets a
// computed value read inside another computation pass its dependencies on.
func (w *Watcher) Depend() {
	for i := len(w.deps) - 1; i >= 0; i-- {
		w.deps[i].Depend()
	}
}

// Teardown unsubscribes w from all deps. A torn down watcher never runs again.
func (w *Watcher) Teardown() {
	if !w.active {
		return
	}
	if w.owner != nil && !w.owner.IsBeingDestroyed() {
		w.owner.RemoveWatcher(w)
	}
	for i := len(w.deps) - 1; i >= 0; i-- {
		w.deps[i].RemoveSub(w)
	}
	w.deps = nil
	w.depIDs.Clear()
	w.active = false
}

func (w *Watcher) ID() uint64         { return w.id }
func (w *Watcher) Kind() Kind         { return w.kind }
func (w *Watcher) Expression() string { return w.expression }
func (w *Watcher) Value() any         { return w.value }
func (w *Watcher) Dirty() bool        { return w.dirty }
func (w *Watcher) Active() bool       { return w.active }
func (w *Watcher) Deep() bool         { return w.deep }
func (w *Watcher) Sync() bool         { return w.sync }

// Deps returns the deps collected by the latest evaluation.
func (w *Watcher) Deps() []*Dep {
	return slices.Clone(w.deps)
}

// State reports where w is in its lifecycle.
func (w *Watcher) State() State {
	switch {
	case !w.active:
		return StateTornDown
	case w.kind == KindComputed && w.dirty:
		return StateLazyDirty
	case w.kind == KindComputed:
		return StateLazyClean
	case w.sys.scheduler.has[w.id]:
		return StateQueued
	default:
		return StateIdle
	}
}
