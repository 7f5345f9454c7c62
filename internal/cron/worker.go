package cron

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/bher20/tarifmanager/internal/alerting"
	"github.com/bher20/tarifmanager/internal/metrics"
)

// JobStore is the part of storage the runner needs.
type JobStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
}

// FailureAlerter is told about failed job runs.
type FailureAlerter interface {
	SendJobFailure(ctx context.Context, alert alerting.JobFailureAlert) error
}

// Job is a periodic task run under an advisory lock so that in a
// multi-instance deployment only one instance executes it at a time.
type Job struct {
	Name string
	// LockKey zero runs the job on every instance without a lock.
	LockKey int64
	// Interval is integer seconds or a standard cron expression.
	Interval string
	// SettingKey names a settings row that overrides Interval at runtime.
	SettingKey string
	Run        func(ctx context.Context) error
}

// Runner drives jobs from a single control loop.
type Runner struct {
	store  JobStore
	alerts FailureAlerter
	log    zerolog.Logger
	tick   time.Duration
	now    func() time.Time
}

// NewRunner returns a Runner. alerts may be nil.
func NewRunner(store JobStore, alerts FailureAlerter, logger zerolog.Logger) *Runner {
	return &Runner{
		store:  store,
		alerts: alerts,
		log:    logger.With().Str("component", "cron").Logger(),
		tick:   5 * time.Second,
		now:    time.Now,
	}
}

// NextRun computes the run after last for an interval setting. Unparseable
// settings fall back to five minutes.
func NextRun(setting string, last time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return last.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(last)
	}
	return last.Add(5 * time.Minute)
}

// ValidInterval reports whether setting is positive integer seconds or a
// standard cron expression.
func ValidInterval(setting string) error {
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return fmt.Errorf("interval must be positive: %d", v)
		}
		return nil
	}
	if _, err := cron.ParseStandard(setting); err != nil {
		return fmt.Errorf("invalid interval %q: %w", setting, err)
	}
	return nil
}

type jobState struct {
	job      Job
	interval string
	next     time.Time
}

// Run executes every job once, then on its interval, until ctx is done.
func (r *Runner) Run(ctx context.Context, jobs ...Job) error {
	states := make([]*jobState, len(jobs))
	for i, j := range jobs {
		states[i] = &jobState{job: j, interval: j.Interval, next: r.now()}
		r.log.Info().Str("job", j.Name).Str("interval", j.Interval).Msg("job registered")
	}

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		for _, st := range states {
			r.refreshInterval(ctx, st)
			if r.now().Before(st.next) {
				continue
			}
			r.RunOnce(ctx, st.job)
			st.next = NextRun(st.interval, r.now())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) refreshInterval(ctx context.Context, st *jobState) {
	if st.job.SettingKey == "" {
		return
	}
	val, err := r.store.GetSetting(ctx, st.job.SettingKey)
	if err != nil || val == "" || val == st.interval {
		return
	}
	r.log.Info().Str("job", st.job.Name).Str("from", st.interval).Str("to", val).Msg("interval updated")
	st.interval = val
	st.next = NextRun(val, r.now())
}

// RunOnce runs job if its lock is free. ran is false when another instance
// holds the lock or the lock could not be taken.
func (r *Runner) RunOnce(ctx context.Context, job Job) (ran bool, err error) {
	started := r.now()

	if job.LockKey != 0 {
		ok, err := r.store.AcquireAdvisoryLock(ctx, job.LockKey)
		if err != nil {
			r.log.Error().Err(err).Str("job", job.Name).Msg("acquire advisory lock failed")
			metrics.UpdateJobMetrics(job.Name, started, err)
			return false, err
		}
		if !ok {
			r.log.Debug().Str("job", job.Name).Msg("advisory lock held by another worker, skipping run")
			return false, nil
		}
	}

	var runErr error
	func() {
		if job.LockKey != 0 {
			defer func() {
				if _, err := r.store.ReleaseAdvisoryLock(ctx, job.LockKey); err != nil {
					r.log.Error().Err(err).Str("job", job.Name).Msg("release advisory lock failed")
				}
			}()
		}
		runErr = job.Run(ctx)
	}()

	metrics.UpdateJobMetrics(job.Name, started, runErr)
	dur := r.now().Sub(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := r.store.UpdateScheduledJob(ctx, job.Name, started, dur, runErr == nil, errMsg); err != nil {
		r.log.Error().Err(err).Str("job", job.Name).Msg("update scheduled_jobs failed")
	}

	if runErr != nil {
		r.log.Error().Err(runErr).Str("job", job.Name).Dur("duration", dur).Msg("job completed with error")
		if r.alerts != nil {
			alert := alerting.JobFailureAlert{JobName: job.Name, Error: errMsg, Duration: dur, Timestamp: started}
			if err := r.alerts.SendJobFailure(ctx, alert); err != nil {
				r.log.Warn().Err(err).Str("job", job.Name).Msg("job failure alert failed")
			}
		}
		return true, runErr
	}
	r.log.Debug().Str("job", job.Name).Dur("duration", dur).Msg("job completed")
	return true, nil
}
