package observer

import (
	"reflect"
	"slices"
	"sort"
)

// Array is a reactive list. Elements are not individually reactive: every
// read depends on the array's dep and every mutation notifies it.
type Array struct {
	sys   *System
	dep   *Dep
	items []any

	// source pins the converted slice while it sits in the observed cache.
	source []any
}

// sliceKey identifies a slice by its backing array and length.
type sliceKey struct {
	ptr uintptr
	n   int
}

// NewArray creates a reactive array, converting items to reactive form.
func (s *System) NewArray(items ...any) *Array {
	a := &Array{sys: s, dep: s.NewDep(), items: make([]any, len(items))}
	for i, item := range items {
		a.items[i] = s.Observe(item)
	}
	return a
}

// reactiveSlice converts items once: observing the same slice again, or a
// slice that contains itself, returns the same Array.
func (s *System) reactiveSlice(items []any) *Array {
	if len(items) == 0 {
		return s.NewArray()
	}
	key := sliceKey{ptr: reflect.ValueOf(items).Pointer(), n: len(items)}
	if a, ok := s.observedArrays[key]; ok {
		return a
	}

	a := &Array{sys: s, dep: s.NewDep(), items: make([]any, len(items)), source: items}
	s.observedArrays[key] = a
	for i, item := range items {
		a.items[i] = s.Observe(item)
	}
	return a
}

func (a *Array) observeAll(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = a.sys.Observe(item)
	}
	return out
}

func (a *Array) Len() int {
	a.dep.Depend()
	return len(a.items)
}

// Get returns the element at i, or nil when out of range.
func (a *Array) Get(i int) any {
	a.dep.Depend()
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i]
}

// Values returns a copy of the elements.
func (a *Array) Values() []any {
	a.dep.Depend()
	return slices.Clone(a.items)
}

// Set replaces the element at i, growing the array with nils if needed.
func (a *Array) Set(i int, v any) {
	if i < 0 {
		return
	}
	if i >= len(a.items) {
		a.items = append(a.items, make([]any, i-len(a.items)+1)...)
	}
	a.items[i] = a.sys.Observe(v)
	a.dep.Notify()
}

// Push appends items and returns the new length.
func (a *Array) Push(items ...any) int {
	a.items = append(a.items, a.observeAll(items)...)
	a.dep.Notify()
	return len(a.items)
}

// Pop removes and returns the last element.
func (a *Array) Pop() any {
	var v any
	if n := len(a.items); n > 0 {
		v = a.items[n-1]
		a.items[n-1] = nil
		a.items = a.items[:n-1]
	}
	a.dep.Notify()
	return v
}

// Shift removes and returns the first element.
func (a *Array) Shift() any {
	var v any
	if len(a.items) > 0 {
		v = a.items[0]
		a.items = slices.Delete(a.items, 0, 1)
	}
	a.dep.Notify()
	return v
}

// Unshift prepends items and returns the new length.
func (a *Array) Unshift(items ...any) int {
	a.items = slices.Insert(a.items, 0, a.observeAll(items)...)
	a.dep.Notify()
	return len(a.items)
}

// Splice removes deleteCount elements at start, inserts items in their place
// and returns the removed elements.
func (a *Array) Splice(start, deleteCount int, items ...any) []any {
	n := len(a.items)
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	deleteCount = min(max(deleteCount, 0), n-start)

	removed := slices.Clone(a.items[start : start+deleteCount])
	a.items = slices.Replace(a.items, start, start+deleteCount, a.observeAll(items)...)
	a.dep.Notify()
	return removed
}

// Sort sorts the elements in place with cmp, stable.
func (a *Array) Sort(cmp func(x, y any) int) {
	sort.SliceStable(a.items, func(i, j int) bool {
		return cmp(a.items[i], a.items[j]) < 0
	})
	a.dep.Notify()
}

func (a *Array) Reverse() {
	slices.Reverse(a.items)
	a.dep.Notify()
}

// Dep returns the structural dep.
func (a *Array) Dep() *Dep {
	return a.dep
}
