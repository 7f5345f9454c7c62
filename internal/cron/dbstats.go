package cron

import (
	"context"
	"database/sql"

	"github.com/bher20/tarifmanager/internal/metrics"
)

const PoolStatsJobName = "db_pool_stats"

// PoolStatsSource is a SQL-backed store that exposes its pool statistics.
type PoolStatsSource interface {
	Driver() string
	Stats() (sql.DBStats, error)
}

// PoolStatsJob exports the connection pool gauges of src every 15 seconds.
// It runs on every instance since each has its own pool.
func PoolStatsJob(src PoolStatsSource) Job {
	return Job{
		Name:     PoolStatsJobName,
		Interval: "15",
		Run: func(ctx context.Context) error {
			st, err := src.Stats()
			if err != nil {
				return err
			}
			metrics.UpdateDBPoolMetrics(src.Driver(), st.OpenConnections, st.Idle, st.InUse, st.WaitCount)
			return nil
		},
	}
}
