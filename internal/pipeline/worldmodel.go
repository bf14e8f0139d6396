package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/compose"
	"github.com/danielpatrickdp/adaptive-state/worldmodel/internal/executor"
)

const tracerName = "github.com/danielpatrickdp/adaptive-state/worldmodel/internal/pipeline"

// #region world-model-struct

// WorldModel is the per-interval entry point for one agent: it queries the
// collaborators, composes the tick vectors, runs the pipeline and hands the
// action to the sink. The scheduler calls Update; concurrent calls are
// serialized.
type WorldModel struct {
	cfg    WorldConfig
	pipe   *Pipeline
	collab Collaborators

	mu       sync.Mutex
	start    time.Time
	last     time.Time
	failures int
}

// #endregion world-model-struct

// #region constructor

// NewWorldModel wires a pipeline to its collaborators. When cfg.Enabled is
// false the pipeline and collaborators may be nil and Update is a no-op.
func NewWorldModel(cfg WorldConfig, p *Pipeline, c Collaborators) (*WorldModel, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.DayLength <= 0 {
		cfg.DayLength = DefaultWorldConfig().DayLength
	}
	if cfg.Enabled {
		if err := c.check(p); err != nil {
			return nil, fmt.Errorf("new world model: %w", err)
		}
	}
	return &WorldModel{cfg: cfg, pipe: p, collab: c}, nil
}

func (c Collaborators) check(p *Pipeline) error {
	switch {
	case p == nil:
		return errors.New("nil pipeline")
	case c.Perception == nil, c.Motivation == nil, c.Consciousness == nil:
		return errors.New("missing state source")
	case c.Sink == nil:
		return errors.New("nil action sink")
	}
	return nil
}

// #endregion constructor

// #region update

// Update runs one decision tick. A failed tick leaves the pipeline's hidden
// state and history untouched, so calling Update again next interval is safe.
// Once MaxConsecutiveFailures ticks in a row have failed, the returned error
// also matches ErrRepeatedFailures.
func (w *WorldModel) Update(ctx context.Context) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.cfg.Enabled {
		return nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "worldmodel.update")
	defer func() {
		span.SetAttributes(
			attribute.Int64("tick", int64(w.pipe.Ticks())),
			attribute.Int("failure_streak", w.failures),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	now := w.cfg.Clock()
	if w.start.IsZero() {
		w.start, w.last = now, now
	}
	rec := TickRecord{
		Tick:         w.pipe.Ticks() + 1,
		ClockPhase:   clockPhase(now.Sub(w.start), w.cfg.DayLength),
		TickDuration: now.Sub(w.last).Seconds(),
		CreatedAt:    now.UTC(),
	}
	w.last = now

	perception := w.collab.Perception.ObservationData()
	motivation := w.collab.Motivation.MotivationalContext()
	if len(motivation) != compose.MotivationDim {
		err := fmt.Errorf("motivational context has %d elements, want %d: %w", len(motivation), compose.MotivationDim, ErrDimensionMismatch)
		return w.fail(ctx, rec, err)
	}
	if bad := compose.MotivationOutOfRange(motivation); len(bad) > 0 {
		log.Printf("[WORLD] tick %d: motivational context out of range at %v: %v", rec.Tick, bad, motivation)
		span.SetAttributes(attribute.IntSlice("motivation_out_of_range", bad))
	}
	consciousness := w.collab.Consciousness.ConsciousnessState()

	observation := compose.Observation(perception, motivation, consciousness)
	contextVec := compose.Context(rec.ClockPhase, rec.TickDuration, motivation, consciousness)

	action, err := w.pipe.Tick(ctx, observation, contextVec)
	if err != nil {
		return w.fail(ctx, rec, err)
	}

	if w.failures > 0 {
		log.Printf("[WORLD] recovered after %d failed ticks", w.failures)
	}
	w.failures = 0
	w.collab.Sink.RequestAction(action)

	rec.Outcome = OutcomeOK
	rec.Action = action
	rec.Hidden = w.pipe.Hidden()
	w.journal(ctx, rec)
	return nil
}

func (w *WorldModel) fail(ctx context.Context, rec TickRecord, err error) error {
	w.failures++
	rec.Outcome = OutcomeConfigError
	var stageErr *executor.StageError
	if errors.As(err, &stageErr) {
		rec.Outcome = OutcomeStageFailure
		rec.Stage = stageErr.Stage
	}
	rec.Reason = err.Error()
	rec.Hidden = w.pipe.Hidden()
	w.journal(ctx, rec)

	log.Printf("[WORLD] tick %d aborted (%s, streak=%d): %v", rec.Tick, rec.Outcome, w.failures, err)
	if w.cfg.MaxConsecutiveFailures > 0 && w.failures >= w.cfg.MaxConsecutiveFailures {
		log.Printf("[WORLD] WARNING: %d consecutive failed ticks, inference needs attention", w.failures)
		return fmt.Errorf("%w (%d in a row): %w", ErrRepeatedFailures, w.failures, err)
	}
	return err
}

func (w *WorldModel) journal(ctx context.Context, rec TickRecord) {
	if w.collab.Journal == nil {
		return
	}
	if err := w.collab.Journal.RecordTick(ctx, rec); err != nil {
		log.Printf("[WORLD] journal tick %d: %v", rec.Tick, err)
	}
}

// clockPhase returns the fraction of the day cycle elapsed, in [0, 1).
func clockPhase(elapsed, day time.Duration) float64 {
	if day <= 0 {
		return 0
	}
	return math.Mod(elapsed.Seconds(), day.Seconds()) / day.Seconds()
}

// #endregion update

// #region accessors

// Enabled reports whether inference runs on Update.
func (w *WorldModel) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Enabled
}

// SetEnabled flips the kill switch at runtime. Enabling needs a pipeline and
// every collaborator; the next tick's duration is measured from now.
func (w *WorldModel) SetEnabled(on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on == w.cfg.Enabled {
		return nil
	}
	if on {
		if err := w.collab.check(w.pipe); err != nil {
			return fmt.Errorf("enable world model: %w", err)
		}
		if !w.start.IsZero() {
			w.last = w.cfg.Clock()
		}
		w.failures = 0
	}
	w.cfg.Enabled = on
	log.Printf("[WORLD] inference enabled=%v", on)
	return nil
}

// Failures returns the current streak of failed ticks.
func (w *WorldModel) Failures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures
}

// Pipeline returns the underlying pipeline, nil when disabled without one.
func (w *WorldModel) Pipeline() *Pipeline {
	return w.pipe
}

// Close releases the pipeline's executors.
func (w *WorldModel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pipe == nil {
		return nil
	}
	return w.pipe.Close()
}

// #endregion accessors
