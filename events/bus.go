// Package events is a small named-event bus with once-listeners and hook
// events, used by instances for their lifecycle.
package events

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// HookPrefix marks events that mirror lifecycle hooks.
const HookPrefix = "hook:"

// Handler handles an emitted event.
type Handler func(args ...any) error

type listener struct {
	id   uint64
	fn   Handler
	once bool
}

// Bus dispatches events to registered handlers. A Bus is not safe for
// concurrent use.
type Bus struct {
	logger  *slog.Logger
	onError func(err error, info string)

	nextID    uint64
	listeners map[string][]*listener
	hasHook   bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for debug tips and unhandled errors.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// WithErrorHandler sets where handler errors are reported.
func WithErrorHandler(fn func(err error, info string)) Option {
	return func(b *Bus) {
		b.onError = fn
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{listeners: map[string][]*listener{}}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Subscription removes a single registration.
type Subscription struct {
	bus   *Bus
	event string
	id    uint64
}

// Off removes the registration. Calling it more than once is harmless.
func (s Subscription) Off() {
	if s.bus == nil {
		return
	}
	s.bus.remove(s.event, s.id)
}

// On registers fn for event.
func (b *Bus) On(event string, fn Handler) Subscription {
	return b.add(event, fn, false)
}

// Once registers fn for the next emission of event only.
func (b *Bus) Once(event string, fn Handler) Subscription {
	return b.add(event, fn, true)
}

func (b *Bus) add(event string, fn Handler, once bool) Subscription {
	b.nextID++
	l := &listener{id: b.nextID, fn: fn, once: once}
	b.listeners[event] = append(b.listeners[event], l)
	if strings.HasPrefix(event, HookPrefix) {
		b.hasHook = true
	}
	return Subscription{bus: b, event: event, id: l.id}
}

func (b *Bus) remove(event string, id uint64) {
	ls := b.listeners[event]
	i := slices.IndexFunc(ls, func(l *listener) bool { return l.id == id })
	if i < 0 {
		return
	}
	ls = slices.Delete(ls, i, i+1)
	if len(ls) == 0 {
		delete(b.listeners, event)
		return
	}
	b.listeners[event] = ls
}

// Off removes every listener of the named events. With no names, all
// listeners are removed.
func (b *Bus) Off(events ...string) {
	if len(events) == 0 {
		clear(b.listeners)
		return
	}
	for _, e := range events {
		delete(b.listeners, e)
	}
}

// Emit calls the listeners of event in registration order. Listeners added
// or removed by a handler take effect on the next emission. Handler errors
// and panics are reported, and the remaining handlers still run.
func (b *Bus) Emit(event string, args ...any) {
	ls := b.listeners[event]
	if len(ls) == 0 {
		b.caseTip(event)
		return
	}
	ls = slices.Clone(ls)
	for _, l := range ls {
		if l.once {
			b.remove(event, l.id)
		}
	}
	info := fmt.Sprintf("event handler for %q", event)
	for _, l := range ls {
		if err := invoke(l.fn, args); err != nil {
			b.report(err, info)
		}
	}
}

// Listeners returns how many handlers are registered for event.
func (b *Bus) Listeners(event string) int {
	return len(b.listeners[event])
}

// HasHookEvent reports whether a hook: event was ever registered.
func (b *Bus) HasHookEvent() bool {
	return b.hasHook
}

func (b *Bus) caseTip(event string) {
	lower := strings.ToLower(event)
	if lower == event {
		return
	}
	if len(b.listeners[lower]) > 0 {
		b.logger.Debug("event emitted with different casing than its listeners",
			"event", event,
			"registered", lower,
		)
	}
}

func (b *Bus) report(err error, info string) {
	if b.onError != nil {
		b.onError(err, info)
		return
	}
	b.logger.Error(fmt.Sprintf("error in %s", info), "err", err)
}

func invoke(fn Handler, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("events: handler panicked: %v", r)
		}
	}()
	return fn(args...)
}
