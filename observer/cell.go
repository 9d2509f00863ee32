package observer

// Cell is the hidden storage behind one reactive property. Reads register
// the active watcher with the cell's dep, writes notify it.
type Cell struct {
	sys     *System
	dep     *Dep
	value   any
	shallow bool
}

// NewCell creates a cell holding v. Maps and slices are converted to
// reactive containers so that nested mutation is tracked too.
func (s *System) NewCell(v any) *Cell {
	return &Cell{sys: s, dep: s.NewDep(), value: s.Observe(v)}
}

// NewShallowCell creates a cell that stores values as given, without
// converting nested maps or slices.
func (s *System) NewShallowCell(v any) *Cell {
	return &Cell{sys: s, dep: s.NewDep(), value: v, shallow: true}
}

// Get returns the stored value and records the read.
func (c *Cell) Get() any {
	if c.sys.targets.top() != nil {
		c.dep.Depend()
		if !c.shallow {
			dependChild(c.value)
		}
	}
	return c.value
}

// Peek returns the stored value without recording the read.
func (c *Cell) Peek() any {
	return c.value
}

// Set stores v and notifies dependents, unless v equals the stored value.
func (c *Cell) Set(v any) {
	if !c.shallow {
		v = c.sys.Observe(v)
	}
	if sameValue(v, c.value) {
		return
	}
	c.value = v
	c.dep.Notify()
}

// Dep returns the dep owned by the cell.
func (c *Cell) Dep() *Dep {
	return c.dep
}

// dependChild registers the structural deps of a container value so that
// in-place mutation of it notifies whoever read the cell.
func dependChild(v any) {
	switch t := v.(type) {
	case *Object:
		t.dep.Depend()
	case *Array:
		t.dep.Depend()
		dependArray(t)
	}
}

func dependArray(a *Array) {
	for _, item := range a.items {
		switch t := item.(type) {
		case *Object:
			t.dep.Depend()
		case *Array:
			t.dep.Depend()
			dependArray(t)
		}
	}
}

// Ref is a typed reactive value.
type Ref[T any] struct {
	cell *Cell
}

// NewRef creates a ref holding v.
func NewRef[T any](s *System, v T) *Ref[T] {
	return &Ref[T]{cell: s.NewShallowCell(v)}
}

func (r *Ref[T]) Get() T {
	return as[T](r.cell.Get())
}

func (r *Ref[T]) Peek() T {
	return as[T](r.cell.Peek())
}

func (r *Ref[T]) Set(v T) {
	r.cell.Set(v)
}

// Update sets the value to fn applied to the current value, untracked.
func (r *Ref[T]) Update(fn func(T) T) {
	r.Set(fn(r.Peek()))
}

func (r *Ref[T]) Dep() *Dep {
	return r.cell.dep
}

func as[T any](v any) T {
	t, _ := v.(T)
	return t
}
