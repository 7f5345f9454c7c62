package main

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/bher20/tarifmanager/internal/alerting"
	"github.com/bher20/tarifmanager/internal/cron"
	"github.com/bher20/tarifmanager/internal/mqtt"
	"github.com/bher20/tarifmanager/internal/notification"
	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/schedule"
	"github.com/bher20/tarifmanager/internal/storage"
)

// app holds the services shared by serve and worker.
type app struct {
	store   storage.Storage
	rates   *rates.Service
	notify  *notification.Service
	alerter *alerting.Alerter
	bridge  *mqtt.Bridge // nil without a broker
}

func buildApp(ctx context.Context) (*app, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	store, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Schedules: seedSchedules()})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var infos []rates.ScheduleInfo
	for _, sc := range cfg.Schedules {
		infos = append(infos, rates.ScheduleInfo{Key: sc.Key, Name: sc.Name})
	}
	rcfg := rates.Config{
		Schedules: infos,
		Location:  loc,
		Prices: rates.Prices{
			Peak:         cfg.Prices.Peak,
			OffPeak:      cfg.Prices.OffPeak,
			SuperOffPeak: cfg.Prices.SuperOffPeak,
			Currency:     cfg.Prices.Currency,
		},
		Logger: logger,
	}

	var svc *rates.Service
	if ha := cfg.HomeAssistant; ha.URL != "" {
		logger.Info().Str("url", ha.URL).Msg("schedules persisted to Home Assistant, database as fallback")
		svc = rates.NewServiceWithStorage(rcfg, storage.NewHomeAssistantStore(ha.URL, ha.Token, ha.EntityBase), store)
	} else {
		svc = rates.NewServiceWithStorage(rcfg, store, nil)
	}

	a := &app{
		store:   store,
		rates:   svc,
		notify:  notification.NewService(store),
		alerter: alerting.NewAlerter(alerting.Config{WebhookURL: cfg.Alert.WebhookURL, WebhookType: cfg.Alert.WebhookType}, logger),
	}
	if m := cfg.MQTT; m.Broker != "" {
		a.bridge = mqtt.NewBridge(mqtt.Config{
			Broker:          m.Broker,
			Username:        m.Username,
			Password:        m.Password,
			ClientID:        m.ClientID,
			LiveTopic:       m.LiveTopic,
			DiscoveryPrefix: m.DiscoveryPrefix,
			Currency:        cfg.Prices.Currency,
			Schedules:       svc.Schedules(),
		}, svc.Live(), logger)
	}
	return a, nil
}

// seedSchedules returns the schedules configured with an initial encoded
// value. Malformed values are skipped.
func seedSchedules() []storage.Schedule {
	var out []storage.Schedule
	for _, sc := range cfg.Schedules {
		if sc.Encoded == "" {
			continue
		}
		if _, err := schedule.Decode(sc.Encoded); err != nil {
			logger.Warn().Err(err).Str("schedule", sc.Key).Msg("ignoring malformed seed schedule")
			continue
		}
		out = append(out, storage.Schedule{Key: sc.Key, Name: sc.Name, Encoded: sc.Encoded, UpdatedAt: time.Now()})
	}
	return out
}

// jobs returns the periodic jobs of the process.
func (a *app) jobs() []cron.Job {
	var opts []cron.EvaluatorOption
	if a.bridge != nil {
		opts = append(opts, cron.WithPublisher(a.bridge))
	}
	if a.alerter.Enabled() {
		opts = append(opts, cron.WithAlerter(a.alerter))
	}
	opts = append(opts, cron.WithNotifier(a.notify))

	jobs := []cron.Job{
		cron.NewEvaluator(a.rates, a.store, logger, opts...).Job(cfg.EvaluateInterval),
		cron.RetentionJob(a.store, time.Duration(cfg.RetentionDays)*24*time.Hour, nil, logger),
	}
	if src, ok := a.store.(cron.PoolStatsSource); ok {
		jobs = append(jobs, cron.PoolStatsJob(src))
	}
	return jobs
}

func (a *app) runner() *cron.Runner {
	if a.alerter.Enabled() {
		return cron.NewRunner(a.store, a.alerter, logger)
	}
	return cron.NewRunner(a.store, nil, logger)
}

// runBackground starts the job runner and the MQTT bridge. The returned
// channel is closed once both have stopped.
func (a *app) runBackground(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bridgeDone := make(chan struct{})
		go func() {
			defer close(bridgeDone)
			if a.bridge == nil {
				return
			}
			if err := a.bridge.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("mqtt bridge stopped")
			}
		}()
		if err := a.runner().Run(ctx, a.jobs()...); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("job runner stopped")
		}
		<-bridgeDone
	}()
	return done
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Error().Err(err).Msg("close storage")
	}
}
