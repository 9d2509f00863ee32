package observer

import (
	"reflect"
	"slices"
	"sort"
)

// Object is a reactive string keyed container. Every key is backed by its
// own Cell; the object's dep tracks its shape (keys added or deleted).
type Object struct {
	sys   *System
	dep   *Dep
	keys  []string
	cells map[string]*Cell

	// source keeps the converted map alive so its address can't be reused
	// while it sits in the observed cache.
	source map[string]any
}

// NewObject creates an empty reactive object.
func (s *System) NewObject() *Object {
	return &Object{sys: s, dep: s.NewDep(), cells: map[string]*Cell{}}
}

// Reactive converts m into a reactive object. Converting the same map twice
// returns the same object. Keys are defined in sorted order.
func (s *System) Reactive(m map[string]any) *Object {
	if m == nil {
		return s.NewObject()
	}
	ptr := reflect.ValueOf(m).Pointer()
	if o, ok := s.observed[ptr]; ok {
		return o
	}

	o := s.NewObject()
	o.source = m
	s.observed[ptr] = o

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.DefineReactive(k, m[k])
	}
	return o
}

// Observe returns the reactive form of v. Maps become Objects, slices become
// Arrays, recursively. Reactive values and scalars are returned unchanged.
func (s *System) Observe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return s.Reactive(t)
	case []any:
		return s.reactiveSlice(t)
	default:
		return v
	}
}

// DefineReactive installs a reactive cell for key holding v and returns it.
// Defining is not a mutation, nobody is notified.
func (o *Object) DefineReactive(key string, v any) *Cell {
	if _, ok := o.cells[key]; !ok {
		o.keys = append(o.keys, key)
	}
	c := o.sys.NewCell(v)
	o.cells[key] = c
	return c
}

// Get returns the value under key. A missing key reads the object's shape so
// that adding it later re-runs the reader.
func (o *Object) Get(key string) any {
	v, _ := o.Lookup(key)
	return v
}

// Lookup is Get that also reports whether key exists.
func (o *Object) Lookup(key string) (any, bool) {
	c, ok := o.cells[key]
	if !ok {
		o.dep.Depend()
		return nil, false
	}
	return c.Get(), true
}

// Set assigns v to key. Adding a new key notifies observers of the shape.
func (o *Object) Set(key string, v any) {
	if c, ok := o.cells[key]; ok {
		c.Set(v)
		return
	}
	o.DefineReactive(key, v)
	o.dep.Notify()
}

// Delete removes key and notifies observers of the shape and readers of the
// removed key.
func (o *Object) Delete(key string) {
	c, ok := o.cells[key]
	if !ok {
		return
	}
	delete(o.cells, key)
	if i := slices.Index(o.keys, key); i >= 0 {
		o.keys = slices.Delete(o.keys, i, i+1)
	}
	o.dep.Notify()
	c.dep.Notify()
}

func (o *Object) Has(key string) bool {
	o.dep.Depend()
	_, ok := o.cells[key]
	return ok
}

// Keys returns the keys in definition order.
func (o *Object) Keys() []string {
	o.dep.Depend()
	return slices.Clone(o.keys)
}

func (o *Object) Len() int {
	o.dep.Depend()
	return len(o.keys)
}

// Cell returns the cell backing key, or nil.
func (o *Object) Cell(key string) *Cell {
	return o.cells[key]
}

// Dep returns the structural dep.
func (o *Object) Dep() *Dep {
	return o.dep
}

// ToMap returns an untracked deep copy with containers converted back to
// maps and slices.
func (o *Object) ToMap() map[string]any {
	return toRaw(o, map[uint64]any{}).(map[string]any)
}

func toRaw(v any, seen map[uint64]any) any {
	switch t := v.(type) {
	case *Object:
		if r, ok := seen[t.dep.id]; ok {
			return r
		}
		m := make(map[string]any, len(t.keys))
		seen[t.dep.id] = m
		for _, k := range t.keys {
			m[k] = toRaw(t.cells[k].value, seen)
		}
		return m
	case *Array:
		if r, ok := seen[t.dep.id]; ok {
			return r
		}
		out := make([]any, len(t.items))
		seen[t.dep.id] = out
		for i, item := range t.items {
			out[i] = toRaw(item, seen)
		}
		return out
	default:
		return v
	}
}
