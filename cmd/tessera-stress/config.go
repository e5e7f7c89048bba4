package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config describes one stress scenario. Every field has a usable default so
// the tool runs without a scenario file at all.
type Config struct {
	Scenario ScenarioConfig `toml:"scenario"`
	Sweep    SweepConfig    `toml:"sweep"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ScenarioConfig struct {
	Duration time.Duration `toml:"duration"`
	Entities int           `toml:"entities"`

	// Readers is the number of goroutines iterating read-only queries
	// concurrently with the mutator loop's read phases.
	Readers int `toml:"readers"`

	// ChurnPerTick entities are destroyed and respawned through a stage
	// each tick, keeping the table graph and the entity index busy.
	ChurnPerTick int `toml:"churn_per_tick"`

	// ParentFanout children attach below each spawned parent, exercising
	// the ChildOf traversal path.
	ParentFanout int `toml:"parent_fanout"`
}

type SweepConfig struct {
	Interval    int           `toml:"interval_ticks"`
	Generations uint64        `toml:"generations"`
	TimeBudget  time.Duration `toml:"time_budget"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func defaultConfig() Config {
	return Config{
		Scenario: ScenarioConfig{
			Duration:     10 * time.Second,
			Entities:     10000,
			Readers:      4,
			ChurnPerTick: 256,
			ParentFanout: 4,
		},
		Sweep: SweepConfig{
			Interval:    64,
			Generations: 2,
			TimeBudget:  time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scenario: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse scenario: %w", err)
	}

	return cfg, nil
}
