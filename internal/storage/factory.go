package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bher20/tarifmanager/internal/migrate"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver    string
	DSN       string
	Schedules []Schedule
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		log.Info().Msg("storage: using in-memory backend")
		return NewMemoryWithSchedules(cfg.Schedules), nil

	case "sqlite", "postgres":
		log.Info().Str("driver", drv).Msg("storage: using gorm backend")
		if err := migrate.Up(ctx, drv, cfg.DSN); err != nil {
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
		st, err := NewGormStorage(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		for _, s := range cfg.Schedules {
			existing, err := st.GetSchedule(ctx, s.Key)
			if err != nil {
				st.Close()
				return nil, fmt.Errorf("seed schedule %s: %w", s.Key, err)
			}
			if existing == nil {
				if err := st.SaveSchedule(ctx, s); err != nil {
					st.Close()
					return nil, fmt.Errorf("seed schedule %s: %w", s.Key, err)
				}
			}
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
