package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/metrics"
)

// Leader gates ticks when several orchestrator instances share one store.
// *leader.RedisLease implements it.
type Leader interface {
	TryLead(ctx context.Context) (bool, error)
}

type OrchestratorConfig struct {
	TickInterval      time.Duration
	WarmupDelay       time.Duration
	IsolateFailures   bool
	MaxLoggedFailures int
}

type TickResult string

const (
	TickOK      TickResult = "ok"
	TickFailed  TickResult = "failed"
	TickSkipped TickResult = "skipped"
)

// Orchestrator runs its steps in order once per tick. Runs never overlap: the
// scheduler is in singleton mode and manual ticks share the same mutex.
type Orchestrator struct {
	cfg     OrchestratorConfig
	steps   []Step
	leader  Leader
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics metrics.Recorder

	mu                  sync.Mutex
	consecutiveFailures int

	schedMu   sync.Mutex
	scheduler gocron.Scheduler
}

func NewOrchestrator(cfg OrchestratorConfig, steps []Step, leader Leader, clock clockwork.Clock, logger *slog.Logger, recorder metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		steps:   steps,
		leader:  leader,
		clock:   clock,
		logger:  logger,
		metrics: recorderOrNoop(recorder),
	}
}

// Start schedules Tick after the warm-up delay and then every TickInterval.
// ctx is handed to every tick; cancelling it does not stop the schedule.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.schedMu.Lock()
	defer o.schedMu.Unlock()
	if o.scheduler != nil {
		return errors.New("orchestrator already started")
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(o.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	startAt := gocron.WithStartImmediately()
	if o.cfg.WarmupDelay > 0 {
		startAt = gocron.WithStartDateTime(o.clock.Now().Add(o.cfg.WarmupDelay))
	}

	_, err = sched.NewJob(
		gocron.DurationJob(o.cfg.TickInterval),
		gocron.NewTask(func() {
			_ = o.Tick(ctx)
		}),
		gocron.WithName("tournament-orchestrator-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(startAt),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule orchestrator tick: %w", err)
	}

	sched.Start()
	o.scheduler = sched
	o.logger.Info("orchestrator started",
		slog.Duration("interval", o.cfg.TickInterval),
		slog.Duration("warmup", o.cfg.WarmupDelay),
		slog.Bool("isolate_failures", o.cfg.IsolateFailures))
	return nil
}

// Stop cancels future ticks. It waits for a running tick to return but does not interrupt it.
func (o *Orchestrator) Stop() error {
	o.schedMu.Lock()
	defer o.schedMu.Unlock()
	if o.scheduler == nil {
		return nil
	}
	err := o.scheduler.Shutdown()
	o.scheduler = nil
	o.logger.Info("orchestrator stopped")
	return err
}

// Tick runs every step once. A failing or panicking step never escapes as a
// panic; with IsolateFailures the remaining steps still run.
func (o *Orchestrator) Tick(ctx context.Context) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := o.clock.Now()

	if o.leader != nil {
		led, leadErr := o.leader.TryLead(ctx)
		if leadErr != nil {
			err = fmt.Errorf("leader lease: %w", leadErr)
			o.finishTick(ctx, start, err)
			return err
		}
		if !led {
			o.metrics.TickFinished(string(TickSkipped), o.clock.Since(start))
			o.logger.DebugContext(ctx, "orchestrator tick skipped, not the leader")
			return nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTickPanicked, r)
		}
		o.finishTick(ctx, start, err)
	}()

	var errs []error
	for _, step := range o.steps {
		stepErr := o.runStep(ctx, step)
		if stepErr == nil {
			continue
		}
		o.metrics.StepFailed(step.Name())
		errs = append(errs, fmt.Errorf("%s: %w", step.Name(), stepErr))
		if !o.cfg.IsolateFailures {
			break
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) runStep(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTickPanicked, r)
		}
	}()
	return step.Run(ctx)
}

// finishTick logs failures until MaxLoggedFailures consecutive ticks have
// failed, then stays quiet until a tick succeeds.
func (o *Orchestrator) finishTick(ctx context.Context, start time.Time, err error) {
	elapsed := o.clock.Since(start)

	if err == nil {
		o.metrics.TickFinished(string(TickOK), elapsed)
		if o.consecutiveFailures > 0 {
			o.logger.InfoContext(ctx, "orchestrator recovered", slog.Int("failed_ticks", o.consecutiveFailures))
		}
		o.consecutiveFailures = 0
		return
	}

	o.metrics.TickFinished(string(TickFailed), elapsed)
	o.consecutiveFailures++
	switch {
	case o.cfg.MaxLoggedFailures <= 0 || o.consecutiveFailures < o.cfg.MaxLoggedFailures:
		o.logger.ErrorContext(ctx, "orchestrator tick failed",
			slog.Any("error", err), slog.Int("consecutive_failures", o.consecutiveFailures))
	case o.consecutiveFailures == o.cfg.MaxLoggedFailures:
		o.logger.ErrorContext(ctx, "orchestrator tick failed, suppressing further failure logs until recovery",
			slog.Any("error", err), slog.Int("consecutive_failures", o.consecutiveFailures))
	}
}

func (o *Orchestrator) ConsecutiveFailures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consecutiveFailures
}
