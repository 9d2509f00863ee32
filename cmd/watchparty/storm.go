package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/delaneyj/watchparty/nexttick"
	"github.com/delaneyj/watchparty/observer"
	"github.com/delaneyj/watchparty/pkg/metrics"
	"github.com/delaneyj/watchparty/pkg/tracing"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	watchersKey = "watchers"
	traceKey    = "trace"
)

type stormScenario func(*observer.System, *nexttick.Queue, StormConfig) (int, error)

func stormCommand() *cli.Command {
	return &cli.Command{
		Name:  "storm",
		Usage: "Report how bursts of writes coalesce into scheduler flushes",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  watchersKey,
				Usage: "Number of watchers, overrides storm.watchers",
			},
			&cli.BoolFlag{
				Name:  traceKey,
				Usage: "Print one OpenTelemetry span per flush to stderr",
			},
		},
		Action: storm,
	}
}

type stormResult struct {
	name     string
	writes   int
	snapshot metrics.Snapshot
	reported int
	duration time.Duration
}

func storm(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if n := cmd.Uint(watchersKey); n > 0 {
		cfg.Storm.Watchers = int(n)
	}
	logger.Info("Starting storm report, please wait...")
	defer logger.Info("Finished storm report")

	var ins observer.Instrumentation = observer.NopInstrumentation{}
	if cmd.Bool(traceKey) {
		tracer, shutdown, err := newFlushTracer(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("shutting down tracer", "err", err)
			}
		}()
		ins = tracer
	}

	scenarios := []struct {
		name string
		run  stormScenario
	}{
		{"coalesced writes", stormCoalesced},
		{"self triggering", stormSelfTriggering},
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"scenario", "watchers", "bursts", "writes", "flushes",
		"runs", "queued", "loops", "errors", "time", "runs/ms",
	})
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := runStorm(logger, cfg.Storm, sc.name, sc.run, ins)
		if err != nil {
			return fmt.Errorf("storm %q: %w", sc.name, err)
		}
		rate := float64(res.snapshot.WatcherRuns) / (float64(res.duration) / float64(time.Millisecond))
		table.Append([]string{
			res.name,
			humanize.Comma(int64(cfg.Storm.Watchers)),
			humanize.Comma(int64(cfg.Storm.Bursts)),
			humanize.Comma(int64(res.writes)),
			humanize.Comma(int64(res.snapshot.Flushes)),
			humanize.Comma(int64(res.snapshot.WatcherRuns)),
			humanize.Comma(int64(res.snapshot.QueuedTotal)),
			humanize.Comma(int64(res.snapshot.UpdateLoops)),
			humanize.Comma(int64(res.reported)),
			fmt.Sprint(res.duration),
			humanize.Comma(int64(rate)),
		})
	}
	table.Render()
	return nil
}

// newFlushTracer exports flush spans as JSON to w.
func newFlushTracer(ctx context.Context, w io.Writer) (*tracing.Tracer, func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("creating span exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := tracing.New(
		tracing.WithTracerProvider(tp),
		tracing.WithContext(ctx),
	)
	return tracer, tp.Shutdown, nil
}

func runStorm(logger *slog.Logger, cfg StormConfig, name string, run stormScenario, ins observer.Instrumentation) (stormResult, error) {
	collector := metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))
	queue := nexttick.NewQueue()
	reported := 0
	sys := observer.NewSystem(
		observer.WithNextTick(queue),
		observer.WithLogger(logger),
		observer.WithInstrumentation(observer.Instruments(collector, ins)),
		observer.WithMaxUpdateCount(cfg.MaxUpdateCount),
		observer.WithErrorHandler(func(err error, info string) {
			reported++
			var loop *observer.UpdateLoopError
			if errors.As(err, &loop) {
				logger.Debug("update loop", "watcher", loop.WatcherID, "runs", loop.Runs)
				return
			}
			logger.Warn("error in "+info, "err", err)
		}),
	)

	start := time.Now()
	writes, err := run(sys, queue, cfg)
	if err != nil {
		return stormResult{}, err
	}
	return stormResult{
		name:     name,
		writes:   writes,
		snapshot: collector.Snapshot(),
		reported: reported,
		duration: time.Since(start),
	}, nil
}

// stormCoalesced writes a shared source many times per burst. Every watcher
// should run once per burst no matter how many writes it saw.
func stormCoalesced(sys *observer.System, queue *nexttick.Queue, cfg StormConfig) (int, error) {
	src := observer.NewRef(sys, 0)
	for i := 0; i < cfg.Watchers; i++ {
		offset := i
		_, err := observer.NewWatcher(sys, nil,
			func() (any, error) { return src.Get() + offset, nil },
			func(_, _ any) error { return nil },
			observer.Options{Kind: observer.KindUser, Expression: fmt.Sprintf("storm[%d]", i)},
		)
		if err != nil {
			return 0, err
		}
	}

	writes := 0
	for b := 0; b < cfg.Bursts; b++ {
		for w := 0; w < cfg.Writes; w++ {
			src.Set(src.Peek() + 1)
			writes++
		}
		queue.Flush()
	}
	return writes, nil
}

// stormSelfTriggering has one watcher per burst that writes the value it
// reads, so the scheduler has to stop it.
func stormSelfTriggering(sys *observer.System, queue *nexttick.Queue, cfg StormConfig) (int, error) {
	counter := observer.NewRef(sys, 0)
	_, err := observer.NewWatcher(sys, nil,
		func() (any, error) { return counter.Get(), nil },
		func(v, _ any) error {
			counter.Set(v.(int) + 1)
			return nil
		},
		observer.Options{Kind: observer.KindUser, Expression: "counter"},
	)
	if err != nil {
		return 0, err
	}

	writes := 0
	for b := 0; b < cfg.Bursts; b++ {
		counter.Set(counter.Peek() + 1)
		writes++
		queue.Flush()
	}
	return writes, nil
}
