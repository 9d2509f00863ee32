package observer

import mapset "github.com/deckarep/golang-set/v2"

// Traverse reads every nested value of v so the active watcher depends on
// all of them. seen holds the structural dep ids of containers already
// visited, which keeps self-referencing values from recursing forever; nil
// starts a fresh set.
func Traverse(v any, seen mapset.Set[uint64]) {
	if seen == nil {
		seen = mapset.NewThreadUnsafeSet[uint64]()
	}
	traverse(v, seen)
}

func traverse(v any, seen mapset.Set[uint64]) {
	switch t := v.(type) {
	case *Object:
		if !seen.Add(t.dep.id) {
			return
		}
		for _, k := range t.Keys() {
			traverse(t.Get(k), seen)
		}
	case *Array:
		if !seen.Add(t.dep.id) {
			return
		}
		for _, item := range t.Values() {
			traverse(item, seen)
		}
	}
}
