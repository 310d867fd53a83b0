package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"LinkPilot/internal/ports"
)

// jobTimeout bounds one pipeline run. Discovery against slow upstreams is
// the longest job and still finishes well inside this window.
const jobTimeout = 30 * time.Minute

// Cron runs named pipeline jobs on cron schedules. Each job is wrapped in
// SkipIfStillRunning, so a slow run never overlaps with the next tick of
// the same job.
type Cron struct {
	cron *cron.Cron
	log  *slog.Logger
}

var _ ports.Scheduler = (*Cron)(nil)

// New builds a scheduler evaluating specs in the given location.
func New(loc *time.Location, log *slog.Logger) *Cron {
	adapter := &cronLogger{log: log}
	return &Cron{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(adapter)),
		),
		log: log,
	}
}

// Add registers a named job under a cron spec.
func (c *Cron) Add(name, spec string, job func(context.Context)) error {
	_, err := c.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		started := time.Now()
		c.log.Info("job started", "job", name)
		job(ctx)
		c.log.Info("job finished", "job", name, "elapsed", time.Since(started))
	})
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	return nil
}

// Start launches the scheduler loop.
func (c *Cron) Start() {
	c.cron.Start()
}

// Stop halts scheduling and waits for running jobs, bounded by ctx.
func (c *Cron) Stop(ctx context.Context) error {
	done := c.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
