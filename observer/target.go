package observer

// targetStack records which watcher is currently evaluating. Only the top
// entry is attributed reads; nested evaluation pushes and restores.
type targetStack struct {
	stack []*Watcher
}

func (t *targetStack) push(w *Watcher) {
	t.stack = append(t.stack, w)
}

func (t *targetStack) pop() {
	n := len(t.stack)
	if n == 0 {
		return
	}
	t.stack[n-1] = nil
	t.stack = t.stack[:n-1]
}

func (t *targetStack) top() *Watcher {
	if n := len(t.stack); n > 0 {
		return t.stack[n-1]
	}
	return nil
}

// Target returns the watcher currently collecting dependencies, or nil.
func (s *System) Target() *Watcher {
	return s.targets.top()
}

// PushTarget makes w the active watcher until the matching PopTarget.
// Pushing nil suspends tracking.
func (s *System) PushTarget(w *Watcher) {
	s.targets.push(w)
}

// PopTarget restores the previously active watcher.
func (s *System) PopTarget() {
	s.targets.pop()
}

// Untracked runs fn without attributing any reads to the active watcher.
func (s *System) Untracked(fn func()) {
	s.targets.push(nil)
	defer s.targets.pop()
	fn()
}
