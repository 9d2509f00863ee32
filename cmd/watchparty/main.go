package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

const (
	configKey  = "config"
	verboseKey = "verbose"
)

func main() {
	cmd := &cli.Command{
		Name:  "watchparty",
		Usage: "Benchmarks and code generation for watchparty observers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configKey,
				Usage: "TOML file with bench and storm settings",
			},
			&cli.BoolFlag{
				Name:  verboseKey,
				Usage: "Log scheduler activity at debug level",
			},
		},
		Commands: []*cli.Command{
			benchCommand(),
			stormCommand(),
			genCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the config file, if any, and builds the logger.
func setup(cmd *cli.Command) (*Config, *slog.Logger, error) {
	cfg, err := LoadConfig(cmd.String(configKey))
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelInfo
	if cmd.Bool(verboseKey) || cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}
