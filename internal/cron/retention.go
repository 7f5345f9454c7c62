package cron

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	RetentionJobName    = "prune_transitions"
	RetentionSettingKey = RetentionJobName + "_interval"
	retentionLockKey    = 4202
	// DefaultRetention is how long transition history is kept.
	DefaultRetention    = 90 * 24 * time.Hour
)

type TransitionPruner interface {
	PruneTransitions(ctx context.Context, before time.Time) (int64, error)
}

// RetentionJob deletes transitions older than keep, nightly at 03:00.
func RetentionJob(store TransitionPruner, keep time.Duration, now func() time.Time, logger zerolog.Logger) Job {
	if keep <= 0 {
		keep = DefaultRetention
	}
	if now == nil {
		now = time.Now
	}
	log := logger.With().Str("job", RetentionJobName).Logger()
	return Job{
		Name:       RetentionJobName,
		LockKey:    retentionLockKey,
		Interval:   "0 3 * * *",
		SettingKey: RetentionSettingKey,
		Run: func(ctx context.Context) error {
			cutoff := now().Add(-keep)
			n, err := store.PruneTransitions(ctx, cutoff)
			if err != nil {
				return err
			}
			log.Info().Int64("deleted", n).Time("before", cutoff).Msg("pruned transitions")
			return nil
		},
	}
}
