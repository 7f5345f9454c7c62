package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifmanager_requests_total",
			Help: "Total number of API requests per route",
		},
		[]string{"route"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tarifmanager_request_duration_seconds",
			Help:    "Request duration in seconds per route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifmanager_request_errors_total",
			Help: "Total number of error responses per route and code",
		},
		[]string{"route", "code"},
	)
)

// Tariff state, one series per schedule.
var (
	TariffStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_tariff_status",
			Help: "1 for the tariff tier currently displayed, 0 otherwise",
		},
		[]string{"schedule", "status"},
	)

	MinutesUntilChange = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_minutes_until_change",
			Help: "Minutes until the next scheduled tariff change",
		},
		[]string{"schedule"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifmanager_transitions_total",
			Help: "Tariff status changes observed, by destination tier",
		},
		[]string{"schedule", "to"},
	)

	LiveReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifmanager_live_readings_total",
			Help: "Meter readings received, by outcome",
		},
		[]string{"source", "result"},
	)
)

// SetStatus marks status as the active tier of schedule among statuses.
func SetStatus(schedule, status string, statuses []string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		TariffStatus.WithLabelValues(schedule, s).Set(v)
	}
}

var (
	DBOpenConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_db_open_conns",
			Help: "Open connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_db_idle_conns",
			Help: "Idle connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBInUseConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_db_in_use_conns",
			Help: "Connections currently in use per driver",
		},
		[]string{"driver"},
	)

	DBWaitCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_db_wait_count",
			Help: "Total number of connections waited for per driver",
		},
		[]string{"driver"},
	)
)

func UpdateDBPoolMetrics(driver string, open, idle, inUse int, waits int64) {
	DBOpenConns.WithLabelValues(driver).Set(float64(open))
	DBIdleConns.WithLabelValues(driver).Set(float64(idle))
	DBInUseConns.WithLabelValues(driver).Set(float64(inUse))
	DBWaitCount.WithLabelValues(driver).Set(float64(waits))
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tarifmanager_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tarifmanager_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
