package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/config"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/device"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/gate"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/motivation"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/scheduler"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/state"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/tracing"
)

// #region command
func newRunCmd() *cobra.Command {
	var maxTicks int
	var seed uint64
	var watch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent's world model on its schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			watchPath := ""
			if watch {
				watchPath = configPath
			}
			return runAgent(ctx, cfg, watchPath, maxTicks, seed)
		},
	}
	cmd.Flags().IntVar(&maxTicks, "ticks", 0, "stop after N scheduled ticks (0 runs until interrupted)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed for synthetic perception noise")
	cmd.Flags().BoolVar(&watch, "watch", true, "apply inference.enabled edits to the config file without restarting")
	return cmd
}
// #endregion command

// #region session
type session struct {
	cfg     config.Config
	store   *state.Store
	journal *state.Journal
	mot     *motivation.State
	agent   *simAgent
	world   *pipeline.WorldModel
	resumed uint64 // tick of the checkpoint this session started from
}

// newSession opens storage and wires the world model. With inference
// disabled no models are loaded and only the motivation state evolves.
func newSession(cfg config.Config, seed uint64) (*session, error) {
	store, err := state.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt := &session{
		cfg:     cfg,
		store:   store,
		journal: state.NewJournal(store, cfg.AgentID, cfg.World.CheckpointEvery).
			WithChecks(gate.NewGate(cfg.Gate), eval.NewEvalHarness(cfg.Eval)),
		mot:     motivation.NewState(cfg.Motivation, cfg.Agent.Personality),
	}
	rt.agent = newSimAgent(rt.mot, cfg.Agent.PerceptionDim, cfg.Agent.ConsciousnessDim, cfg.World.DayLength, seed)

	var pipe *pipeline.Pipeline
	if cfg.Inference.Enabled {
		pipe, err = openPipeline(cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		cp, ok, err := rt.journal.Restore(pipe)
		switch {
		case err != nil:
			log.Printf("[STORE] restore failed, starting from zero hidden state: %v", err)
		case ok:
			rt.resumed = cp.Tick
		}
	}

	rt.world, err = pipeline.NewWorldModel(cfg.WorldSettings(), pipe, pipeline.Collaborators{
		Perception:    rt.agent,
		Motivation:    rt.agent,
		Consciousness: rt.agent,
		Sink:          rt.agent,
		Journal:       rt.journal,
	})
	if err != nil {
		if pipe != nil {
			pipe.Close()
		}
		store.Close()
		return nil, err
	}
	return rt, nil
}

func openPipeline(cfg config.Config) (*pipeline.Pipeline, error) {
	models, err := buildModels(cfg)
	if err != nil {
		return nil, err
	}
	pipe, err := pipeline.New(cfg.PipelineSettings(), device.NewHost(cfg.Inference.MaxLive), models)
	if err != nil {
		// executors already built were disposed; close the rest
		for _, m := range []any{models.Encoder, models.Transition, models.Controller} {
			if c, ok := m.(io.Closer); ok {
				c.Close()
			}
		}
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return pipe, nil
}

// tick advances the motivation state by the wall time since the previous
// tick, then runs one world model update.
func (rt *session) tick(ctx context.Context, dt time.Duration) error {
	rt.mot.Decay(dt)
	err := rt.world.Update(ctx)
	if errors.Is(err, pipeline.ErrRepeatedFailures) {
		log.Printf("[WORLD] %v", err)
	}
	return err
}

// reload applies the kill switch from an edited config file. Other fields
// take effect on the next restart.
func (rt *session) reload(cfg config.Config) {
	if err := rt.world.SetEnabled(cfg.Inference.Enabled); err != nil {
		log.Printf("[CONFIG] %v (restart with inference enabled to load models)", err)
	}
}

// close writes a final checkpoint if this session ticked, then releases
// everything.
func (rt *session) close() error {
	var errs []error
	if p := rt.world.Pipeline(); p != nil && p.Ticks() > rt.resumed {
		if _, err := rt.journal.Checkpoint(p.Ticks(), p.Hidden()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.world.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := rt.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
// #endregion session

// #region run
func runAgent(ctx context.Context, cfg config.Config, watchPath string, maxTicks int, seed uint64) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, cfg.AgentID)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("[TRACE] flush: %v", err)
		}
	}()

	rt, err := newSession(cfg, seed)
	if err != nil {
		return err
	}
	if watchPath != "" {
		w, err := config.Watch(watchPath, rt.reload)
		if err != nil {
			log.Printf("[CONFIG] live reload unavailable: %v", err)
		} else {
			defer w.Close()
		}
	}

	fmt.Println("World model agent ready.")
	fmt.Printf("  Agent: %s | DB: %s | Backend: %s | Inference: %v\n",
		cfg.AgentID, cfg.DBPath, cfg.Inference.Backend, cfg.Inference.Enabled)
	fmt.Printf("  Schedule: %s | Day: %s | Checkpoint every %d ticks\n",
		cfg.World.Schedule, cfg.World.DayLength, cfg.World.CheckpointEvery)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ticks atomic.Int64
	last := time.Now()
	sched := scheduler.New()
	err = sched.Add("tick", cfg.World.Schedule, func(jobCtx context.Context) error {
		now := time.Now()
		dt := now.Sub(last)
		last = now
		err := rt.tick(jobCtx, dt)
		if n := ticks.Add(1); maxTicks > 0 && n >= int64(maxTicks) {
			cancel()
		}
		return err
	})
	if err != nil {
		rt.close()
		return err
	}

	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()

	printRunSummary(rt, ticks.Load(), sched)
	return rt.close()
}

func printRunSummary(rt *session, ticks int64, sched *scheduler.Scheduler) {
	st, _ := sched.Stats("tick")
	fmt.Printf("\nStopped after %d ticks (%d failed).\n", ticks, st.Failures)
	counts, ignored := rt.agent.counts()
	for _, n := range motivation.AllNeeds() {
		if counts[n] > 0 {
			fmt.Printf("  %-12s %d\n", n, counts[n])
		}
	}
	if ignored > 0 {
		fmt.Printf("  %-12s %d\n", "unmapped", ignored)
	}
	e, n, _ := rt.mot.Snapshot()
	fmt.Printf("  Mood: happiness=%.2f stress=%.2f | Needs: hunger=%.2f fatigue=%.2f social=%.2f\n",
		e.Happiness, e.Stress, n.Hunger, n.Fatigue, n.Social)
}
// #endregion run
