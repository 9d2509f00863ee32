package observer

import (
	"math"
	"reflect"
)

// sameValue reports whether a and b are the same value. NaN equals NaN and
// values that cannot be compared are never the same.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if !va.Comparable() || !vb.Comparable() {
		return false
	}
	switch x := a.(type) {
	case float64:
		if math.IsNaN(x) {
			return math.IsNaN(b.(float64))
		}
	case float32:
		if x != x {
			y := b.(float32)
			return y != y
		}
	}
	return a == b
}

// isContainer reports whether v may be mutated in place, in which case an
// unchanged reference is not proof of an unchanged value.
func isContainer(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case *Object, *Array:
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return true
	default:
		return false
	}
}
