package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bher20/tarifmanager/internal/alerting"
	"github.com/bher20/tarifmanager/internal/metrics"
	"github.com/bher20/tarifmanager/internal/notification"
	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/storage"
	"github.com/bher20/tarifmanager/internal/tariff"
)

const (
	EvaluateJobName    = "evaluate"
	evaluateLockKey    = 4201
	EvaluateSettingKey = EvaluateJobName + "_interval"
)

var statusCodes = []string{tariff.Peak.String(), tariff.OffPeak.String(), tariff.SuperOffPeak.String()}

type StatePublisher interface {
	PublishState(snap *rates.Snapshot) error
}

type TransitionAlerter interface {
	SendTransition(ctx context.Context, alert alerting.TransitionAlert) error
}

type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, t notification.Transition) error
}

type TransitionRecorder interface {
	RecordTransition(ctx context.Context, t storage.Transition) error
}

// Evaluator computes every schedule's snapshot, exports it, and reports
// changes of the displayed tariff.
type Evaluator struct {
	svc       *rates.Service
	store     TransitionRecorder
	publisher StatePublisher
	alerts    TransitionAlerter
	notify    TransitionNotifier
	log       zerolog.Logger

	mu   sync.Mutex
	last map[string]tariff.Status
}

type EvaluatorOption func(*Evaluator)

func WithPublisher(p StatePublisher) EvaluatorOption { return func(e *Evaluator) { e.publisher = p } }

func WithAlerter(a TransitionAlerter) EvaluatorOption { return func(e *Evaluator) { e.alerts = a } }

func WithNotifier(n TransitionNotifier) EvaluatorOption { return func(e *Evaluator) { e.notify = n } }

func NewEvaluator(svc *rates.Service, store TransitionRecorder, logger zerolog.Logger, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		svc:   svc,
		store: store,
		log:   logger.With().Str("component", "evaluator").Logger(),
		last:  make(map[string]tariff.Status),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Job wraps Evaluate for the Runner.
func (e *Evaluator) Job(interval string) Job {
	return Job{
		Name:       EvaluateJobName,
		LockKey:    evaluateLockKey,
		Interval:   interval,
		SettingKey: EvaluateSettingKey,
		Run:        e.Evaluate,
	}
}

// Evaluate processes every schedule at the service's current time.
func (e *Evaluator) Evaluate(ctx context.Context) error {
	at := e.svc.Now()
	var errs []error
	for _, sc := range e.svc.Schedules() {
		if err := e.evaluate(ctx, sc.Key, at); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sc.Key, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Evaluator) evaluate(ctx context.Context, key string, at time.Time) error {
	snap, err := e.svc.Snapshot(ctx, key, at)
	if err != nil {
		return err
	}

	metrics.SetStatus(key, snap.Status.String(), statusCodes)
	if snap.Next != nil {
		metrics.MinutesUntilChange.WithLabelValues(key).Set(float64(snap.Next.MinutesUntil))
	}

	var errs []error
	if e.publisher != nil {
		if err := e.publisher.PublishState(snap); err != nil {
			errs = append(errs, fmt.Errorf("publish state: %w", err))
		}
	}

	e.mu.Lock()
	prev, seen := e.last[key]
	e.last[key] = snap.Status
	e.mu.Unlock()

	if seen && prev != snap.Status {
		if err := e.transition(ctx, snap, prev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Evaluator) transition(ctx context.Context, snap *rates.Snapshot, from tariff.Status) error {
	live := snap.Live != nil
	e.log.Info().
		Str("schedule", snap.Schedule).
		Str("from", from.String()).
		Str("to", snap.Status.String()).
		Bool("live", live).
		Msg("tariff changed")
	metrics.TransitionsTotal.WithLabelValues(snap.Schedule, snap.Status.String()).Inc()

	var errs []error
	t := storage.Transition{
		ScheduleKey: snap.Schedule,
		From:        from.String(),
		To:          snap.Status.String(),
		Live:        live,
		At:          snap.At,
	}
	if err := e.store.RecordTransition(ctx, t); err != nil {
		errs = append(errs, fmt.Errorf("record transition: %w", err))
	}

	var nextClock, nextIn string
	if snap.Next != nil {
		nextClock, nextIn = snap.Next.Clock, snap.Next.Countdown
	}
	if e.alerts != nil {
		alert := alerting.TransitionAlert{
			Schedule:  snap.Schedule,
			From:      from.String(),
			To:        snap.Status.String(),
			Label:     snap.Label,
			Live:      live,
			NextClock: nextClock,
			NextIn:    nextIn,
			Price:     snap.Price,
			Currency:  snap.Currency,
			Timestamp: snap.At,
		}
		if err := e.alerts.SendTransition(ctx, alert); err != nil {
			e.log.Warn().Err(err).Str("schedule", snap.Schedule).Msg("transition alert failed")
		}
	}
	if e.notify != nil {
		n := notification.Transition{
			Schedule: snap.Schedule,
			From:     from.String(),
			To:       snap.Status.String(),
			Label:    snap.Label,
			Live:     live,
			Next:     nextClock,
			At:       snap.At,
		}
		if err := e.notify.NotifyTransition(ctx, n); err != nil {
			e.log.Warn().Err(err).Str("schedule", snap.Schedule).Msg("transition email failed")
		}
	}
	return errors.Join(errs...)
}
