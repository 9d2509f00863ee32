package observer

import (
	"errors"
	"fmt"
)

var (
	// ErrInfiniteUpdateLoop matches errors reported when a watcher keeps
	// re-triggering itself within one flush.
	ErrInfiniteUpdateLoop = errors.New("watchparty: possible infinite update loop")

	// ErrInvalidPath is returned by ParsePath for expressions that are not
	// simple dot-delimited paths.
	ErrInvalidPath = errors.New("watchparty: invalid watch path")
)

// UpdateLoopError is reported when a watcher exceeds MaxUpdateCount runs in
// a single flush.
type UpdateLoopError struct {
	WatcherID  uint64
	Expression string
	Runs       int
}

func (e *UpdateLoopError) Error() string {
	if e.Expression != "" {
		return fmt.Sprintf("%s in watcher with expression %q (%d runs)", ErrInfiniteUpdateLoop, e.Expression, e.Runs)
	}
	return fmt.Sprintf("%s in watcher %d (%d runs)", ErrInfiniteUpdateLoop, e.WatcherID, e.Runs)
}

func (e *UpdateLoopError) Is(target error) bool {
	return target == ErrInfiniteUpdateLoop
}

// WatcherError wraps a failure raised by a user watcher's getter or callback.
type WatcherError struct {
	Info string
	Err  error
}

func (e *WatcherError) Error() string {
	return e.Info + ": " + e.Err.Error()
}

func (e *WatcherError) Unwrap() error {
	return e.Err
}

// recovered converts a recovered panic value into an error.
func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
