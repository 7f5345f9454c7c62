package cron

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/tarifmanager/internal/alerting"
	"github.com/bher20/tarifmanager/internal/metrics"
	"github.com/bher20/tarifmanager/internal/notification"
	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/schedule"
	"github.com/bher20/tarifmanager/internal/storage"
	"github.com/bher20/tarifmanager/internal/tariff"
)

func TestNextRun(t *testing.T) {
	last := time.Date(2025, 1, 6, 10, 0, 30, 0, time.UTC)
	assert.Equal(t, last.Add(30*time.Second), NextRun("30", last))
	assert.Equal(t, time.Date(2025, 1, 6, 10, 15, 0, 0, time.UTC), NextRun("*/15 * * * *", last))
	assert.Equal(t, time.Date(2025, 1, 7, 3, 0, 0, 0, time.UTC), NextRun("0 3 * * *", last))
	assert.Equal(t, last.Add(5*time.Minute), NextRun("whenever", last))
	assert.Equal(t, last.Add(5*time.Minute), NextRun("-4", last))
}

type lockedStore struct {
	*storage.MemoryStorage
	held bool
	err  error
}

func (l *lockedStore) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return !l.held, l.err
}

type recordingAlerter struct {
	mu          sync.Mutex
	failures    []alerting.JobFailureAlert
	transitions []alerting.TransitionAlert
}

func (r *recordingAlerter) SendJobFailure(ctx context.Context, a alerting.JobFailureAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, a)
	return nil
}

func (r *recordingAlerter) SendTransition(ctx context.Context, a alerting.TransitionAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, a)
	return nil
}

func TestRunOnce_RecordsJob(t *testing.T) {
	st := storage.NewMemory()
	alerts := &recordingAlerter{}
	r := NewRunner(st, alerts, zerolog.Nop())
	ctx := context.Background()

	ran, err := r.RunOnce(ctx, Job{Name: "ok", Run: func(context.Context) error { return nil }})
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = r.RunOnce(ctx, Job{Name: "bad", Run: func(context.Context) error { return errors.New("boom") }})
	assert.True(t, ran)
	assert.EqualError(t, err, "boom")

	jobs, err := st.ListScheduledJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.Equal(t, 0, jobs[0].LastSuccess)
	assert.Equal(t, "boom", jobs[0].LastError)
	assert.Equal(t, 1, jobs[1].LastSuccess)

	require.Len(t, alerts.failures, 1)
	assert.Equal(t, "bad", alerts.failures[0].JobName)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	st := &lockedStore{MemoryStorage: storage.NewMemory(), held: true}
	r := NewRunner(st, nil, zerolog.Nop())
	called := false
	ran, err := r.RunOnce(context.Background(), Job{Name: "x", LockKey: 1, Run: func(context.Context) error {
		called = true
		return nil
	}})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, called)

	st.held, st.err = false, errors.New("db gone")
	ran, err = r.RunOnce(context.Background(), Job{Name: "x", LockKey: 1, Run: func(context.Context) error { return nil }})
	assert.False(t, ran)
	assert.Error(t, err)
}

func TestRunOnce_UnlockedJobIgnoresLock(t *testing.T) {
	st := &lockedStore{MemoryStorage: storage.NewMemory(), held: true}
	r := NewRunner(st, nil, zerolog.Nop())
	ran, err := r.RunOnce(context.Background(), Job{Name: "local", Run: func(context.Context) error { return nil }})
	require.NoError(t, err)
	assert.True(t, ran)
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

type poolSource struct{ err error }

func (p poolSource) Driver() string { return "sqlite" }

func (p poolSource) Stats() (sql.DBStats, error) {
	return sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2, WaitCount: 7}, p.err
}

func TestPoolStatsJob(t *testing.T) {
	job := PoolStatsJob(poolSource{})
	assert.Equal(t, PoolStatsJobName, job.Name)
	assert.Zero(t, job.LockKey)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3.0, gaugeValue(t, metrics.DBOpenConns.WithLabelValues("sqlite")))
	assert.Equal(t, 7.0, gaugeValue(t, metrics.DBWaitCount.WithLabelValues("sqlite")))

	assert.Error(t, PoolStatsJob(poolSource{err: errors.New("closed")}).Run(context.Background()))
}

func TestRun_RunsImmediatelyAndStops(t *testing.T) {
	st := storage.NewMemory()
	r := NewRunner(st, nil, zerolog.Nop())
	r.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	runs := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, Job{Name: "fast", Interval: "3600", Run: func(context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		}})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()
}

func TestRun_SettingOverride(t *testing.T) {
	st := storage.NewMemory()
	require.NoError(t, st.SetSetting(context.Background(), "fast_interval", "1"))
	r := NewRunner(st, nil, zerolog.Nop())
	r.tick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	runs := 0
	go r.Run(ctx, Job{Name: "fast", Interval: "3600", SettingKey: "fast_interval", Run: func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []*rates.Snapshot
}

func (p *recordingPublisher) PublishState(s *rates.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
	return nil
}

type recordingNotifier struct{ sent []notification.Transition }

func (n *recordingNotifier) NotifyTransition(ctx context.Context, t notification.Transition) error {
	n.sent = append(n.sent, t)
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func nightSchedule() string {
	c := schedule.New()
	for s := range c.Lines {
		for d := range c.Lines[s] {
			c.Lines[s][d].OffPeak[0] = schedule.Window{Start: 22 * 60, Duration: 8 * 60}
		}
	}
	return schedule.Encode(c)
}

func TestEvaluator_DetectsTransitions(t *testing.T) {
	st := storage.NewMemoryWithSchedules([]storage.Schedule{{Key: "default", Encoded: nightSchedule()}})
	clk := &clock{t: time.Date(2025, 1, 6, 21, 59, 0, 0, time.UTC)}
	svc := rates.NewServiceWithStorage(rates.Config{Location: time.UTC, Logger: zerolog.Nop(), Now: clk.Now}, st, nil)

	pub := &recordingPublisher{}
	alerts := &recordingAlerter{}
	notify := &recordingNotifier{}
	ev := NewEvaluator(svc, st, zerolog.Nop(), WithPublisher(pub), WithAlerter(alerts), WithNotifier(notify))
	ctx := context.Background()

	// First pass only sets the baseline.
	require.NoError(t, ev.Evaluate(ctx))
	list, err := st.ListTransitions(ctx, "default", 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Same status, nothing recorded.
	clk.Set(time.Date(2025, 1, 6, 21, 59, 30, 0, time.UTC))
	require.NoError(t, ev.Evaluate(ctx))

	clk.Set(time.Date(2025, 1, 6, 22, 0, 0, 0, time.UTC))
	require.NoError(t, ev.Evaluate(ctx))

	list, err = st.ListTransitions(ctx, "default", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "HP", list[0].From)
	assert.Equal(t, "HC", list[0].To)
	assert.False(t, list[0].Live)

	require.Len(t, alerts.transitions, 1)
	assert.Equal(t, "06:00", alerts.transitions[0].NextClock)
	assert.Equal(t, "8h", alerts.transitions[0].NextIn)
	require.Len(t, notify.sent, 1)
	assert.Equal(t, "Heures creuses", notify.sent[0].Label)
	assert.Len(t, pub.snaps, 3)

	// A live reading flips the displayed status without a schedule change.
	svc.Live().Set("", "HP..")
	clk.Set(time.Date(2025, 1, 6, 22, 1, 0, 0, time.UTC))
	require.NoError(t, ev.Evaluate(ctx))

	list, err = st.ListTransitions(ctx, "default", 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "HP", list[0].To)
	assert.True(t, list[0].Live)
}

func TestEvaluator_Job(t *testing.T) {
	svc := rates.NewService(rates.Config{Logger: zerolog.Nop()})
	job := NewEvaluator(svc, storage.NewMemory(), zerolog.Nop()).Job("30")
	assert.Equal(t, EvaluateJobName, job.Name)
	assert.Equal(t, EvaluateSettingKey, job.SettingKey)
	assert.NoError(t, job.Run(context.Background()))
}

func TestRetentionJob(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	require.NoError(t, st.RecordTransition(ctx, storage.Transition{ScheduleKey: "default", To: "HC", At: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, st.RecordTransition(ctx, storage.Transition{ScheduleKey: "default", To: "HP", At: now.Add(-time.Hour)}))

	job := RetentionJob(st, 0, func() time.Time { return now }, zerolog.Nop())
	require.NoError(t, job.Run(ctx))

	list, err := st.ListTransitions(ctx, "default", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tariff.Peak.String(), list[0].To)
}

func TestValidInterval(t *testing.T) {
	assert.NoError(t, ValidInterval("30"))
	assert.NoError(t, ValidInterval("*/5 * * * *"))
	assert.Error(t, ValidInterval("0"))
	assert.Error(t, ValidInterval("every so often"))
}
