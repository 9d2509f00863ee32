// Package instance assembles observer primitives into a component: reactive
// data, cached computed values, user watches, a render watcher and lifecycle
// hooks.
package instance

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/delaneyj/watchparty/events"
	"github.com/delaneyj/watchparty/observer"
)

var (
	ErrNoRender           = errors.New("instance: no render function")
	ErrAlreadyMounted     = errors.New("instance: already mounted")
	ErrReadOnlyComputed   = errors.New("instance: computed values are read only")
	ErrInvalidWatchSource = errors.New("instance: invalid watch source")
	ErrKeyConflict        = errors.New("instance: computed key already defined in data")
)

type (
	// ComputedFunc derives a value from the instance.
	ComputedFunc func(vm *Instance) (any, error)
	// RenderFunc produces the instance output, usually a tree of nodes.
	RenderFunc func(vm *Instance) (any, error)
	// PatchFunc applies a rendered output. It receives nil on destroy.
	PatchFunc func(vm *Instance, out any) error
	// Hook is a lifecycle callback.
	Hook func(vm *Instance) error
	// WatchCallback receives the new and previous value of a watch.
	WatchCallback func(newValue, oldValue any) error
)

// WatchOptions configure Instance.Watch.
type WatchOptions struct {
	Deep      bool
	Sync      bool
	Immediate bool
}

// WatchSpec declares a watch in Options.
type WatchSpec struct {
	Handler WatchCallback
	WatchOptions
}

// Options describe an instance.
type Options struct {
	Name     string
	Data     map[string]any
	Computed map[string]ComputedFunc
	Watch    map[string]WatchSpec
	Render   RenderFunc
	Patch    PatchFunc

	Created       Hook
	BeforeMount   Hook
	Mounted       Hook
	BeforeUpdate  Hook
	Updated       Hook
	BeforeDestroy Hook
	Destroyed     Hook
}

// Instance is a reactive component bound to one observer.System.
type Instance struct {
	sys    *observer.System
	opts   Options
	events *events.Bus

	data     *observer.Object
	computed map[string]*observer.Watcher

	render   *observer.Watcher
	watchers []*observer.Watcher
	out      any

	mounted        bool
	beingDestroyed bool
	destroyed      bool
}

var _ observer.Owner = (*Instance)(nil)

// New creates an instance, initialising data, computed values and watches,
// then calls the created hook.
func New(sys *observer.System, opts Options) (*Instance, error) {
	vm := &Instance{
		sys:      sys,
		opts:     opts,
		computed: map[string]*observer.Watcher{},
		events: events.New(
			events.WithLogger(sys.Logger()),
			events.WithErrorHandler(sys.HandleError),
		),
	}

	sys.Untracked(func() {
		if opts.Data == nil {
			vm.data = sys.NewObject()
			return
		}
		vm.data = sys.Reactive(opts.Data)
	})

	for _, name := range sortedKeys(opts.Computed) {
		if opts.Data != nil {
			if _, ok := opts.Data[name]; ok {
				return nil, fmt.Errorf("%w: %q", ErrKeyConflict, name)
			}
		}
		fn := opts.Computed[name]
		w, err := observer.NewWatcher(sys, vm,
			func() (any, error) { return fn(vm) },
			nil,
			observer.Options{Kind: observer.KindComputed, Expression: name},
		)
		if err != nil {
			return nil, err
		}
		vm.computed[name] = w
	}

	for _, exp := range sortedKeys(opts.Watch) {
		spec := opts.Watch[exp]
		if _, err := vm.Watch(exp, spec.Handler, spec.WatchOptions); err != nil {
			return nil, fmt.Errorf("watch %q: %w", exp, err)
		}
	}

	vm.callHook("created", opts.Created)
	return vm, nil
}

// Get returns a data value or a computed value. Reading a computed value
// inside another computation registers the computed value's dependencies.
func (vm *Instance) Get(key string) any {
	if _, ok := vm.computed[key]; ok {
		v, err := vm.Computed(key)
		if err != nil {
			vm.sys.HandleError(err, fmt.Sprintf("computed %q", key))
		}
		return v
	}
	return vm.data.Get(key)
}

// Computed evaluates the named computed value if it is dirty and returns it.
// A failed evaluation returns the previous value with the error.
func (vm *Instance) Computed(name string) (any, error) {
	w, ok := vm.computed[name]
	if !ok {
		return nil, fmt.Errorf("instance: unknown computed %q", name)
	}
	var err error
	if w.Dirty() {
		err = w.Evaluate()
	}
	if vm.sys.Target() != nil {
		w.Depend()
	}
	return w.Value(), err
}

// Set writes a data value, adding the key if it is new.
func (vm *Instance) Set(key string, v any) error {
	if _, ok := vm.computed[key]; ok {
		return fmt.Errorf("%w: %q", ErrReadOnlyComputed, key)
	}
	vm.data.Set(key, v)
	return nil
}

// Delete removes a data key.
func (vm *Instance) Delete(key string) {
	vm.data.Delete(key)
}

// Watch observes expOrFn and calls cb when its value changes. expOrFn is a
// dot path rooted at the instance ("user.name"), a func(*Instance) (any, error)
// or an observer.Getter. The returned func stops the watch.
func (vm *Instance) Watch(expOrFn any, cb WatchCallback, opts WatchOptions) (func(), error) {
	getter, expression, err := vm.watchGetter(expOrFn)
	if err != nil {
		return nil, err
	}
	var callback observer.Callback
	if cb != nil {
		callback = observer.Callback(cb)
	}
	w, err := observer.NewWatcher(vm.sys, vm, getter, callback, observer.Options{
		Kind:       observer.KindUser,
		Deep:       opts.Deep,
		Sync:       opts.Sync,
		Expression: expression,
	})
	if err != nil {
		return nil, err
	}
	if opts.Immediate && cb != nil {
		vm.sys.Untracked(func() {
			if err := safeCall(func() error { return cb(w.Value(), nil) }); err != nil {
				vm.sys.HandleError(err, fmt.Sprintf("callback for immediate watcher %q", expression))
			}
		})
	}
	return w.Teardown, nil
}

func (vm *Instance) watchGetter(expOrFn any) (observer.Getter, string, error) {
	switch src := expOrFn.(type) {
	case string:
		return vm.pathGetter(src)
	case func(*Instance) (any, error):
		return func() (any, error) { return src(vm) }, "", nil
	case ComputedFunc:
		return func() (any, error) { return src(vm) }, "", nil
	case func() (any, error):
		return src, "", nil
	case observer.Getter:
		return src, "", nil
	default:
		return nil, "", fmt.Errorf("%w: %T", ErrInvalidWatchSource, expOrFn)
	}
}

// pathGetter resolves the first segment through the instance, so computed
// names work as roots, and the rest through the compiled path.
func (vm *Instance) pathGetter(exp string) (observer.Getter, string, error) {
	if _, err := vm.sys.ParsePath(exp); err != nil {
		return nil, exp, err
	}
	head, tail, nested := strings.Cut(exp, ".")
	var rest observer.PathGetter
	if nested {
		var err error
		if rest, err = vm.sys.ParsePath(tail); err != nil {
			return nil, exp, err
		}
	}
	return func() (any, error) {
		v := vm.Get(head)
		if rest != nil {
			v = rest(v)
		}
		return v, nil
	}, exp, nil
}

// Mount creates the render watcher. Every later change to what the render
// function read re-renders through the scheduler, surrounded by the
// beforeUpdate and updated hooks.
func (vm *Instance) Mount() error {
	if vm.opts.Render == nil {
		return ErrNoRender
	}
	if vm.mounted || vm.render != nil {
		return ErrAlreadyMounted
	}
	vm.callHook("beforeMount", vm.opts.BeforeMount)

	_, err := observer.NewWatcher(vm.sys, vm, vm.update, nil, observer.Options{
		Kind:       observer.KindRender,
		Expression: vm.name(),
		Before: func() {
			if vm.mounted && !vm.destroyed {
				vm.callHook("beforeUpdate", vm.opts.BeforeUpdate)
			}
		},
		After: func() {
			if vm.mounted && !vm.destroyed {
				vm.callHook("updated", vm.opts.Updated)
			}
		},
	})
	if err != nil {
		vm.render = nil
		return fmt.Errorf("mounting %s: %w", vm.name(), err)
	}

	vm.mounted = true
	vm.callHook("mounted", vm.opts.Mounted)
	return nil
}

func (vm *Instance) update() (any, error) {
	out, err := vm.opts.Render(vm)
	if err != nil {
		return nil, err
	}
	if vm.opts.Patch != nil {
		if err := vm.opts.Patch(vm, out); err != nil {
			return nil, err
		}
	}
	vm.out = out
	return nil, nil
}

// ForceUpdate schedules a re-render without any data change.
func (vm *Instance) ForceUpdate() {
	if vm.render != nil {
		vm.render.Update()
	}
}

// NextTick defers fn until after the next flush.
func (vm *Instance) NextTick(fn func()) {
	vm.sys.NextTick(fn)
}

// Destroy tears down every watcher of the instance and removes its event
// listeners. Destroying twice does nothing.
func (vm *Instance) Destroy() {
	if vm.beingDestroyed {
		return
	}
	vm.callHook("beforeDestroy", vm.opts.BeforeDestroy)
	vm.beingDestroyed = true

	if vm.render != nil {
		vm.render.Teardown()
	}
	for _, w := range slices.Clone(vm.watchers) {
		w.Teardown()
	}
	vm.destroyed = true

	if vm.opts.Patch != nil && vm.mounted {
		if err := vm.opts.Patch(vm, nil); err != nil {
			vm.sys.HandleError(err, "patch on destroy")
		}
	}
	vm.out = nil
	vm.callHook("destroyed", vm.opts.Destroyed)
	vm.events.Off()
}

// callHook runs a lifecycle hook with dependency collection disabled, then
// emits it as a hook: event.
func (vm *Instance) callHook(name string, hook Hook) {
	vm.sys.Untracked(func() {
		if hook != nil {
			if err := safeCall(func() error { return hook(vm) }); err != nil {
				vm.sys.HandleError(err, name+" hook")
			}
		}
		if vm.events.HasHookEvent() {
			vm.events.Emit(events.HookPrefix + name)
		}
	})
}

func (vm *Instance) name() string {
	if vm.opts.Name == "" {
		return "anonymous instance"
	}
	return vm.opts.Name
}

func (vm *Instance) AddWatcher(w *observer.Watcher)       { vm.watchers = append(vm.watchers, w) }
func (vm *Instance) SetRenderWatcher(w *observer.Watcher) { vm.render = w }
func (vm *Instance) IsBeingDestroyed() bool               { return vm.beingDestroyed }

func (vm *Instance) RemoveWatcher(w *observer.Watcher) {
	if i := slices.Index(vm.watchers, w); i >= 0 {
		vm.watchers = slices.Delete(vm.watchers, i, i+1)
	}
}

func (vm *Instance) System() *observer.System { return vm.sys }
func (vm *Instance) Data() *observer.Object   { return vm.data }
func (vm *Instance) Events() *events.Bus      { return vm.events }
func (vm *Instance) Output() any              { return vm.out }
func (vm *Instance) IsMounted() bool          { return vm.mounted }
func (vm *Instance) IsDestroyed() bool        { return vm.destroyed }

// Watchers returns every watcher owned by the instance: user, computed and,
// once mounted, the render watcher.
func (vm *Instance) Watchers() []*observer.Watcher {
	return slices.Clone(vm.watchers)
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
