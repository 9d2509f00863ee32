package observer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetStack(t *testing.T) {
	var s targetStack
	assert.Nil(t, s.top())
	s.pop()

	w1, w2 := &Watcher{id: 1}, &Watcher{id: 2}
	s.push(w1)
	s.push(w2)
	assert.Same(t, w2, s.top())
	s.pop()
	assert.Same(t, w1, s.top())
	s.push(nil)
	assert.Nil(t, s.top())
	s.pop()
	assert.Same(t, w1, s.top())
	s.pop()
	assert.Nil(t, s.top())
}

// the target is restored even when the untracked function panics
func TestUntrackedRestoresOnPanic(t *testing.T) {
	sys := NewSystem()
	w := &Watcher{sys: sys, id: 1}
	sys.PushTarget(w)
	defer sys.PopTarget()

	assert.Panics(t, func() {
		sys.Untracked(func() {
			assert.Nil(t, sys.Target())
			panic("boom")
		})
	})
	assert.Same(t, w, sys.Target())
}

func TestSameValue(t *testing.T) {
	type pair struct{ a, b int }
	nan := math.NaN()

	assert.True(t, sameValue(nil, nil))
	assert.False(t, sameValue(nil, 0))
	assert.True(t, sameValue(1, 1))
	assert.False(t, sameValue(1, int64(1)))
	assert.True(t, sameValue(nan, nan))
	assert.True(t, sameValue(pair{1, 2}, pair{1, 2}))
	assert.False(t, sameValue([]int{1}, []int{1}))
	assert.False(t, sameValue(map[string]int{}, map[string]int{}))
}

func TestIsContainer(t *testing.T) {
	sys := NewSystem()
	assert.True(t, isContainer(sys.NewObject()))
	assert.True(t, isContainer(sys.NewArray()))
	assert.True(t, isContainer([]int{}))
	assert.True(t, isContainer(map[string]int{}))
	assert.False(t, isContainer(nil))
	assert.False(t, isContainer("s"))
	assert.False(t, isContainer(struct{}{}))
}
