package observer

import (
	"fmt"
	"log/slog"
)

// System owns everything that is shared between the cells and watchers of
// one reactive graph: id counters, the target stack, the scheduler queue and
// configuration. Cells and watchers created from different systems never
// interact.
//
// A System is not safe for concurrent use. All reads, writes and flushes
// must happen on one goroutine, for example inside a nexttick.Loop.
type System struct {
	cfg    Config
	logger *slog.Logger

	depUID     uint64
	watcherUID uint64

	targets   targetStack
	scheduler *scheduler

	observed       map[uintptr]*Object
	observedArrays map[sliceKey]*Array
	paths          map[uint64]compiledPath
}

// NewSystem creates a System. The default is batched async mode with a
// nexttick.Queue as the deferred execution primitive.
func NewSystem(opts ...Option) *System {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()

	s := &System{
		cfg:      cfg,
		logger:   cfg.Logger,
		observed:       map[uintptr]*Object{},
		observedArrays: map[sliceKey]*Array{},
		paths:          map[uint64]compiledPath{},
	}
	s.scheduler = newScheduler(s)
	return s
}

// Config returns a copy of the active configuration.
func (s *System) Config() Config {
	return s.cfg
}

// Async reports whether notifications are batched through the Ticker.
func (s *System) Async() bool {
	return s.cfg.Async
}

// SetAsync switches between batched and synchronous-sorted mode.
func (s *System) SetAsync(async bool) {
	s.cfg.Async = async
}

// Logger returns the system logger.
func (s *System) Logger() *slog.Logger {
	return s.logger
}

// Ticker returns the deferred execution primitive.
func (s *System) Ticker() Ticker {
	return s.cfg.NextTick
}

// NextTick defers fn until the current burst of synchronous work completes.
func (s *System) NextTick(fn func()) {
	s.cfg.NextTick.NextTick(fn)
}

// HandleError reports err to the configured error handler. Without one the
// error is logged.
func (s *System) HandleError(err error, info string) {
	if err == nil {
		return
	}
	if h := s.cfg.ErrorHandler; h != nil {
		h(err, info)
		return
	}
	s.logger.Error(fmt.Sprintf("error in %s", info), "err", err)
}

// Pending returns the number of watchers waiting for the next flush.
func (s *System) Pending() int {
	return len(s.scheduler.queue) - s.scheduler.index
}

// Flushing reports whether a flush is in progress.
func (s *System) Flushing() bool {
	return s.scheduler.flushing
}

func (s *System) nextDepID() uint64 {
	s.depUID++
	return s.depUID
}

func (s *System) nextWatcherID() uint64 {
	s.watcherUID++
	return s.watcherUID
}
