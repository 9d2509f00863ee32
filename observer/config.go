package observer

import (
	"log/slog"

	"github.com/delaneyj/watchparty/nexttick"
)

// DefaultMaxUpdateCount is the number of times a single watcher may run
// within one flush before it is reported as an infinite update loop.
const DefaultMaxUpdateCount = 100

// Ticker schedules fn to run once the current synchronous burst of work has
// completed.
type Ticker interface {
	NextTick(fn func())
}

// ErrorHandler receives errors that cannot be returned to a caller, together
// with a short label describing where they happened.
type ErrorHandler func(err error, info string)

// Config holds the settings of a System.
type Config struct {
	// Async selects batched flushing through the Ticker. When false,
	// notifications are sorted by watcher id and flushed immediately, which
	// makes execution deterministic for tests.
	Async bool

	// MaxUpdateCount bounds how often a watcher may run in one flush.
	MaxUpdateCount int

	// NextTick is the deferred execution primitive used to schedule flushes.
	// If nil, a nexttick.Queue is created and the caller drains it.
	NextTick Ticker

	// ErrorHandler receives reported errors. If nil, they are logged.
	ErrorHandler ErrorHandler

	// Logger is used for debug and error output. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Instrumentation observes flushes and watcher runs.
	Instrumentation Instrumentation
}

// Option configures a System.
type Option func(*Config)

// WithAsync sets batched (true) or synchronous (false) mode.
func WithAsync(async bool) Option {
	return func(c *Config) {
		c.Async = async
	}
}

// WithMaxUpdateCount sets the per-flush runaway update bound.
func WithMaxUpdateCount(n int) Option {
	return func(c *Config) {
		c.MaxUpdateCount = n
	}
}

// WithNextTick sets the deferred execution primitive.
func WithNextTick(t Ticker) Option {
	return func(c *Config) {
		c.NextTick = t
	}
}

// WithErrorHandler sets the error sink.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithInstrumentation sets the flush observer.
func WithInstrumentation(ins Instrumentation) Option {
	return func(c *Config) {
		c.Instrumentation = ins
	}
}

func defaultConfig() Config {
	return Config{
		Async:          true,
		MaxUpdateCount: DefaultMaxUpdateCount,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxUpdateCount <= 0 {
		c.MaxUpdateCount = DefaultMaxUpdateCount
	}
	if c.NextTick == nil {
		c.NextTick = nexttick.NewQueue()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Instrumentation == nil {
		c.Instrumentation = NopInstrumentation{}
	}
}
