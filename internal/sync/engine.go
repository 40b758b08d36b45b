package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// TaskName names the recurring calendar sync task.
const TaskName = "CALENDAR_SYNC"

const (
	otelScope              = "calnotes/sync"
	spanRun                = "sync.run"
	metricAdded            = "calnotes.sync.events.added"
	metricUpdated          = "calnotes.sync.events.updated"
	metricDeleted          = "calnotes.sync.events.deleted"
	metricRescheduled      = "calnotes.sync.events.rescheduled"
	metricParticipantsAdd  = "calnotes.sync.participants.added"
	metricParticipantsDrop = "calnotes.sync.participants.removed"
	metricHumansCreated    = "calnotes.sync.humans.created"
	metricProviderErrors   = "calnotes.sync.provider_errors"
)

// Runner performs one sync run. Implemented by [Syncer].
type Runner interface {
	Run(ctx context.Context) (Stats, error)
}

// Status is a point-in-time view of the engine for status displays.
type Status struct {
	Task      string
	Running   bool
	LastRun   time.Time
	LastStats Stats
	LastErr   error
	NextRun   time.Time
}

// ParseSchedule returns the run schedule: the cron expression when expr is
// set, otherwise a fixed interval.
func ParseSchedule(interval time.Duration, expr string) (cron.Schedule, error) {
	if expr != "" {
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
		}
		return sched, nil
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sync interval %v must be positive", interval)
	}
	return cron.Every(interval), nil
}

// Engine runs the sync task on a schedule and on demand. Create one with
// [NewEngine] and start it with [Engine.Run].
type Engine struct {
	runner   Runner
	schedule cron.Schedule
	debounce time.Duration
	log      *slog.Logger
	now      func() time.Time

	trigger chan struct{}

	mu     gosync.Mutex
	status Status

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer              trace.Tracer
	cntAdded            metric.Int64Counter
	cntUpdated          metric.Int64Counter
	cntDeleted          metric.Int64Counter
	cntRescheduled      metric.Int64Counter
	cntParticipantsAdd  metric.Int64Counter
	cntParticipantsDrop metric.Int64Counter
	cntHumansCreated    metric.Int64Counter
	cntProviderErrors   metric.Int64Counter
}

// NewEngine creates an Engine. Triggers arriving within debounce of each other
// collapse into one run.
func NewEngine(runner Runner, schedule cron.Schedule, debounce time.Duration, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		runner:   runner,
		schedule: schedule,
		debounce: debounce,
		log:      logger,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		status:   Status{Task: TaskName},

		tracer:              tracer,
		cntAdded:            mustCounter(metricAdded, "Number of events added during sync"),
		cntUpdated:          mustCounter(metricUpdated, "Number of events updated during sync"),
		cntDeleted:          mustCounter(metricDeleted, "Number of events deleted during sync"),
		cntRescheduled:      mustCounter(metricRescheduled, "Number of rescheduled events during sync"),
		cntParticipantsAdd:  mustCounter(metricParticipantsAdd, "Number of participant links added during sync"),
		cntParticipantsDrop: mustCounter(metricParticipantsDrop, "Number of participant links removed during sync"),
		cntHumansCreated:    mustCounter(metricHumansCreated, "Number of contacts created during sync"),
		cntProviderErrors:   mustCounter(metricProviderErrors, "Number of calendars whose provider call failed"),
	}
}

// run performs one sync run, recording a trace span, metrics and status.
func (e *Engine) run(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	e.status.Running = true
	e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, spanRun)
	defer span.End()

	stats, err := e.runner.Run(ctx)

	add := func(c metric.Int64Counter, n int) {
		if n > 0 {
			c.Add(ctx, int64(n))
		}
	}
	add(e.cntAdded, stats.Added)
	add(e.cntUpdated, stats.Updated)
	add(e.cntDeleted, stats.Deleted)
	add(e.cntRescheduled, stats.Rescheduled)
	add(e.cntParticipantsAdd, stats.ParticipantsAdded)
	add(e.cntParticipantsDrop, stats.ParticipantsRemoved)
	add(e.cntHumansCreated, stats.HumansCreated)
	add(e.cntProviderErrors, stats.ProviderErrors)

	span.SetAttributes(
		attribute.Bool("sync.noop", stats.NoOp),
		attribute.Int("sync.added", stats.Added),
		attribute.Int("sync.updated", stats.Updated),
		attribute.Int("sync.deleted", stats.Deleted),
		attribute.Int("sync.rescheduled", stats.Rescheduled),
		attribute.Int("sync.provider_errors", stats.ProviderErrors),
	)
	if err != nil {
		span.RecordError(err)
	}

	e.mu.Lock()
	e.status.Running = false
	e.status.LastRun = e.now()
	e.status.LastStats = stats
	e.status.LastErr = err
	e.mu.Unlock()
	return stats, err
}

// RunOnce performs a single sync run and returns.
func (e *Engine) RunOnce(ctx context.Context) (Stats, error) {
	return e.run(ctx)
}

// Trigger requests an on-demand run. It never blocks; triggers that arrive
// while one is pending are merged.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// TimeUntilNextRun returns the delay until the next scheduled run, or zero if
// the engine is not running.
func (e *Engine) TimeUntilNextRun() time.Duration {
	e.mu.Lock()
	next := e.status.NextRun
	e.mu.Unlock()
	if next.IsZero() {
		return 0
	}
	return max(next.Sub(e.now()), 0)
}

func (e *Engine) setNextRun(t time.Time) {
	e.mu.Lock()
	e.status.NextRun = t
	e.mu.Unlock()
}

// Run performs an immediate first run, then runs on schedule and on trigger
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("sync engine starting", "task", TaskName)

	if _, err := e.run(ctx); err != nil {
		e.log.Error("initial sync failed", "error", err)
	}

	next := e.schedule.Next(e.now())
	e.setNextRun(next)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	// debounceC is nil while no trigger is pending.
	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.setNextRun(time.Time{})
			e.log.Info("sync engine shutting down")
			return ctx.Err()

		case <-e.trigger:
			if debounce == nil {
				debounce = time.NewTimer(e.debounce)
			} else {
				debounce.Reset(e.debounce)
			}
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			e.log.Debug("triggered sync")
			if _, err := e.run(ctx); err != nil {
				e.log.Error("triggered sync failed", "error", err)
			}

		case <-timer.C:
			if _, err := e.run(ctx); err != nil {
				e.log.Error("scheduled sync failed", "error", err)
			}
			next = e.schedule.Next(e.now())
			e.setNextRun(next)
			timer.Reset(time.Until(next))
		}
	}
}
