package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/profile"
	"github.com/tessera-ecs/tessera"
	"github.com/tessera-ecs/tessera/mosaic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	HP int32
}

type Churnable struct{}

func main() {
	scenarioPath := flag.String("scenario", "", "Path to a TOML scenario file. Defaults apply without one.")
	profileMode := flag.String("profile", "off", "Profiling mode: cpu, mem or off.")
	flag.Parse()

	cfg, err := loadConfig(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile).Stop()
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("stress run failed", zap.Error(err))
	}
}

func run(cfg Config, log *zap.Logger) error {
	world := tessera.NewWorldWith(tessera.WorldConfig{Logger: log})
	world.SetThreaded(true)

	position := tessera.RegisterComponent[Position](world)
	velocity := tessera.RegisterComponent[Velocity](world)
	health := tessera.RegisterComponent[Health](world)
	churnable := tessera.RegisterComponent[Churnable](world)

	log.Info("populating world",
		zap.Int("entities", cfg.Scenario.Entities),
		zap.Int("fanout", cfg.Scenario.ParentFanout))

	populate(world, cfg.Scenario, position, velocity, health, churnable)

	moveQuery := world.Query().
		With(position.Id()).InOut().
		With(velocity.Id()).In().
		Cached().
		MustBuild()

	// Read-only on purpose: the reader goroutines run it concurrently and
	// shared read locks must never conflict.
	healthQuery := world.Query().
		With(health.Id()).In().
		With(churnable.Id()).Filter().
		Cached().
		MustBuild()

	report := &Report{
		Duration: cfg.Scenario.Duration,
		Entities: cfg.Scenario.Entities,
		Readers:  cfg.Scenario.Readers,
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	log.Info("running scenario", zap.Duration("duration", cfg.Scenario.Duration))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scenario.Duration)
	defer cancel()

	startTime := time.Now()
	var readBatches atomic.Int64

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			tickStart := time.Now()

			tickMove(moveQuery, position, velocity)

			// Concurrent phase: every reader iterates shared-read queries
			// while collecting structural changes into its own stage. The
			// stages merge only after all readers are done.
			stages := make([]*tessera.Stage, cfg.Scenario.Readers)
			g, _ := errgroup.WithContext(ctx)
			for i := range stages {
				stage := world.NewStage()
				stages[i] = stage
				churn := cfg.Scenario.ChurnPerTick / max(cfg.Scenario.Readers, 1)

				g.Go(func() error {
					batches := tickRead(healthQuery, stage, health, churnable, churn)
					readBatches.Add(int64(batches))
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			world.Merge(stages...)

			report.TotalTicks++
			if cfg.Sweep.Interval > 0 && report.TotalTicks%int64(cfg.Sweep.Interval) == 0 {
				report.TablesSwept += world.RunSweep(mosaic.SweepBudget{
					TimeBudget:  cfg.Sweep.TimeBudget,
					Generations: cfg.Sweep.Generations,
				})
			}

			report.TickTime.Samples = append(report.TickTime.Samples, time.Since(tickStart))
		}
	}

	report.TotalTime = time.Since(startTime)
	report.ReadBatches = readBatches.Load()
	report.TickTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)

	log.Info("scenario finished",
		zap.Int64("ticks", report.TotalTicks),
		zap.Int("entities", world.EntityCount()))

	return report.Generate(os.Stdout)
}

// populate spawns the initial entity population: movers, a parent layer and
// churnable children below it.
func populate(world *tessera.World, sc ScenarioConfig,
	position tessera.Component[Position],
	velocity tessera.Component[Velocity],
	health tessera.Component[Health],
	churnable tessera.Component[Churnable],
) {
	fanout := max(sc.ParentFanout, 1)
	parents := max(sc.Entities/(fanout+1), 1)

	for i := 0; i < parents; i++ {
		parent := world.Create()
		tessera.Set(parent, position, randomPosition())
		tessera.Set(parent, velocity, randomVelocity())

		for j := 0; j < fanout; j++ {
			child := world.Create().ChildOf(parent.Id())
			tessera.Set(child, position, randomPosition())
			tessera.Set(child, velocity, randomVelocity())
			tessera.Set(child, health, Health{HP: int32(rand.IntN(100)) + 1})
			tessera.Add(child, churnable)
		}
	}
}

// tickMove advances every mover by its velocity.
func tickMove(q *tessera.Query, position tessera.Component[Position], velocity tessera.Component[Velocity]) {
	tessera.Each2(q, position, velocity, func(_ tessera.Entity, pos *Position, vel *Velocity) {
		pos.X += vel.X
		pos.Y += vel.Y
	})
}

// tickRead walks the health query read-only, queueing a churn of destroys
// and respawns into the stage. Returns the number of batches visited.
func tickRead(q *tessera.Query, stage *tessera.Stage,
	health tessera.Component[Health],
	churnable tessera.Component[Churnable],
	churn int,
) int {
	batches := 0
	queued := 0

	it := q.Iter()
	for it.Next() {
		batches++
		for row := range it.Count() {
			hp := tessera.FieldAt[Health](it, 0, row)
			if hp == nil {
				continue
			}

			if queued < churn && hp.HP < 20 {
				stage.Destruct(it.Entities()[row])
				spawnReplacement(stage, health, churnable)
				queued++
			}
		}
	}

	for queued < churn {
		spawnReplacement(stage, health, churnable)
		queued++
	}

	return batches
}

func spawnReplacement(stage *tessera.Stage, health tessera.Component[Health], churnable tessera.Component[Churnable]) {
	e := stage.Create().Id()
	tessera.StageSet(stage, e, health, Health{HP: int32(rand.IntN(100)) + 1})
	stage.Add(e, churnable.Id())
}

func randomPosition() Position {
	return Position{X: rand.Float64() * 1000, Y: rand.Float64() * 1000}
}

func randomVelocity() Velocity {
	return Velocity{X: rand.Float64()*2 - 1, Y: rand.Float64()*2 - 1}
}

func newLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
