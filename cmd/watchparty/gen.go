package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/delaneyj/watchparty/cmd/watchparty/templates"
	"github.com/urfave/cli/v3"
)

const (
	schemaKey = "schema"
	outKey    = "out"
)

func genCommand() *cli.Command {
	return &cli.Command{
		Name:  "gen",
		Usage: "Generate typed reactive structs from a TOML schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     schemaKey,
				Usage:    "Schema file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  outKey,
				Usage: "Output file, defaults to <package>/<package>_reactive.go",
			},
		},
		Action: generate,
	}
}

func generate(ctx context.Context, cmd *cli.Command) error {
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	start := time.Now()

	schema, err := loadSchema(cmd.String(schemaKey))
	if err != nil {
		return err
	}
	contents, err := templates.Gen(schema)
	if err != nil {
		return fmt.Errorf("generating %s: %w", schema.Package, err)
	}

	out := cmd.String(outKey)
	if out == "" {
		out = filepath.Join(schema.Package, schema.Package+"_reactive.go")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(out, contents, 0o644); err != nil {
		return err
	}
	logger.Info("codegen finished", "out", out, "structs", len(schema.Structs), "took", time.Since(start))
	return nil
}

func loadSchema(path string) (*templates.Schema, error) {
	var schema templates.Schema
	if _, err := toml.DecodeFile(path, &schema); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &schema, nil
}
