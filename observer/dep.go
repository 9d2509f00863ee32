package observer

import (
	"cmp"
	"slices"
)

// Dep is the subject behind one reactive cell or one container's shape. It
// knows which watchers read it during their latest evaluation.
type Dep struct {
	sys  *System
	id   uint64
	subs []*Watcher
}

// NewDep creates a Dep with the next id of the system.
func (s *System) NewDep() *Dep {
	return &Dep{sys: s, id: s.nextDepID()}
}

// ID returns the creation-ordered id of the dep.
func (d *Dep) ID() uint64 {
	return d.id
}

// AddSub appends w. Duplicates are prevented by the watcher's own
// bookkeeping.
func (d *Dep) AddSub(w *Watcher) {
	d.subs = append(d.subs, w)
}

// RemoveSub removes w, if present.
func (d *Dep) RemoveSub(w *Watcher) {
	if i := slices.Index(d.subs, w); i >= 0 {
		d.subs = slices.Delete(d.subs, i, i+1)
	}
}

// Depend registers this dep with the active watcher, if any.
func (d *Dep) Depend() {
	if t := d.sys.targets.top(); t != nil {
		t.AddDep(d)
	}
}

// Notify calls Update on every subscriber. Subscribers are snapshotted first
// so updates that change subscriptions don't affect this notification.
func (d *Dep) Notify() {
	subs := slices.Clone(d.subs)
	if !d.sys.cfg.Async {
		// the scheduler won't sort when flushing synchronously
		slices.SortFunc(subs, byWatcherID)
	}
	for _, w := range subs {
		w.Update()
	}
}

// Subscribers returns a copy of the current subscriber list.
func (d *Dep) Subscribers() []*Watcher {
	return slices.Clone(d.subs)
}

// HasSub reports whether w is subscribed.
func (d *Dep) HasSub(w *Watcher) bool {
	return slices.Contains(d.subs, w)
}

func byWatcherID(a, b *Watcher) int {
	return cmp.Compare(a.id, b.id)
}
