package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/delaneyj/watchparty/observer"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

const iterationsKey = "iterations"

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Time propagation through width x height chains of computed watchers",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  iterationsKey,
				Usage: "Writes per graph, overrides bench.iterations",
			},
		},
		Action: bench,
	}
}

func bench(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	iters := cfg.Bench.Iterations
	if n := cmd.Uint(iterationsKey); n > 0 {
		iters = int(n)
	}

	start := time.Now()
	logger.Info("bench started", "iterations", iters)
	defer func() {
		logger.Info("bench finished", "took", time.Since(start))
	}()

	tbl := table.NewWriter()
	tbl.SetTitle("Watcher propagation")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max", "runs"})

	for _, w := range cfg.Bench.Widths {
		for _, h := range cfg.Bench.Heights {
			if err := ctx.Err(); err != nil {
				return err
			}
			calc, runs, err := propagate(logger, w, h, iters)
			if err != nil {
				return fmt.Errorf("propagate %dx%d: %w", w, h, err)
			}
			tbl.AppendRow(table.Row{
				fmt.Sprintf("propagate: %d * %d", w, h),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
				runs,
			})
		}
	}
	tbl.Render()
	return nil
}

// propagate builds width chains of height computed watchers over one source,
// each chain ending in a sync user watcher, and times iters writes.
func propagate(logger *slog.Logger, width, height, iters int) (*tachymeter.Metrics, int, error) {
	var failed error
	sys := observer.NewSystem(
		observer.WithAsync(false),
		observer.WithLogger(logger),
		observer.WithErrorHandler(func(err error, info string) {
			if failed == nil {
				failed = fmt.Errorf("%s: %w", info, err)
			}
		}),
	)
	src := observer.NewRef(sys, 1)

	read := func(c *observer.Watcher) (int, error) {
		if c.Dirty() {
			if err := c.Evaluate(); err != nil {
				return 0, err
			}
		}
		if sys.Target() != nil {
			c.Depend()
		}
		return c.Value().(int), nil
	}

	runs := 0
	for i := 0; i < width; i++ {
		var last *observer.Watcher
		for j := 0; j < height; j++ {
			prev := last
			getter := func() (any, error) {
				if prev == nil {
					return src.Get() + 1, nil
				}
				v, err := read(prev)
				return v + 1, err
			}
			c, err := observer.NewWatcher(sys, nil, getter, nil, observer.Options{Kind: observer.KindComputed})
			if err != nil {
				return nil, 0, err
			}
			last = c
		}

		leaf := last
		_, err := observer.NewWatcher(sys, nil,
			func() (any, error) {
				if leaf == nil {
					return src.Get(), nil
				}
				return read(leaf)
			},
			func(_, _ any) error {
				runs++
				return nil
			},
			observer.Options{Kind: observer.KindUser, Sync: true},
		)
		if err != nil {
			return nil, 0, err
		}
	}

	tach := tachymeter.New(&tachymeter.Config{Size: iters})
	for i := 0; i < iters; i++ {
		start := time.Now()
		src.Set(src.Peek() + 1)
		tach.AddTime(time.Since(start))
	}
	return tach.Calc(), runs, failed
}
