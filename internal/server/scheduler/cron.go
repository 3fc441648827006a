package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/robfig/cron/v3"
)

// Job is a named periodic task.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	log logging.Logger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Info(context.Background(), msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error(context.Background(), msg, append(kv, "error", err)...)
}

// Cron runs periodic jobs. A job still running when its next tick arrives
// is skipped; panics are recovered and logged.
type Cron struct {
	c   *cron.Cron
	log logging.Logger
}

func NewCron(loc *time.Location, log logging.Logger) *Cron {
	l := cronLogger{log: log.With("module", "cron")}
	return &Cron{
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		log: l.log,
	}
}

func badSchedule(j Job, err error) error {
	return fmt.Errorf("job %s: bad schedule %q: %w", j.Name, j.Spec, err)
}

// ValidateJobs parses every schedule without registering anything.
func ValidateJobs(jobs ...Job) error {
	for _, j := range jobs {
		if _, err := cron.ParseStandard(j.Spec); err != nil {
			return badSchedule(j, err)
		}
	}
	return nil
}

// Add registers jobs; ctx is passed to every run.
func (c *Cron) Add(ctx context.Context, jobs ...Job) error {
	for _, j := range jobs {
		j := j
		if _, err := c.c.AddFunc(j.Spec, func() {
			start := time.Now()
			if err := j.Run(ctx); err != nil {
				c.log.Error(ctx, "job failed", "job", j.Name, "error", err)
				return
			}
			c.log.Info(ctx, "job finished", "job", j.Name, "took", time.Since(start).String())
		}); err != nil {
			return badSchedule(j, err)
		}
	}
	return nil
}

func (c *Cron) Start() {
	c.c.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (c *Cron) Stop() {
	<-c.c.Stop().Done()
}

func (c *Cron) Len() int {
	return len(c.c.Entries())
}
