package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/delaneyj/watchparty/observer"
)

// Config is the optional watchparty.toml file.
type Config struct {
	Verbose bool        `toml:"verbose"`
	Bench   BenchConfig `toml:"bench"`
	Storm   StormConfig `toml:"storm"`
}

// BenchConfig sizes the propagation benchmark.
type BenchConfig struct {
	Widths     []int `toml:"widths"`
	Heights    []int `toml:"heights"`
	Iterations int   `toml:"iterations"`
}

// StormConfig sizes the coalescing report.
type StormConfig struct {
	Watchers       int `toml:"watchers"`
	Writes         int `toml:"writes"`
	Bursts         int `toml:"bursts"`
	MaxUpdateCount int `toml:"max-update-count"`
}

func defaultConfig() *Config {
	return &Config{
		Bench: BenchConfig{
			Widths:     []int{1, 10, 100, 1_000},
			Heights:    []int{1, 10, 100, 1_000},
			Iterations: 100,
		},
		Storm: StormConfig{
			Watchers:       1_000,
			Writes:         100,
			Bursts:         50,
			MaxUpdateCount: observer.DefaultMaxUpdateCount,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Bench.Iterations <= 0 {
		errs = append(errs, errors.New("bench.iterations must be positive"))
	}
	for _, n := range slices.Concat(c.Bench.Widths, c.Bench.Heights) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("bench sizes must be positive, got %d", n))
			break
		}
	}
	if c.Storm.Watchers <= 0 || c.Storm.Writes <= 0 || c.Storm.Bursts <= 0 {
		errs = append(errs, errors.New("storm.watchers, storm.writes and storm.bursts must be positive"))
	}
	if c.Storm.MaxUpdateCount <= 0 {
		errs = append(errs, errors.New("storm.max-update-count must be positive"))
	}
	return errors.Join(errs...)
}
