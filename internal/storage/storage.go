package storage

import (
	"context"
	"time"
)

// ScheduleStore persists encoded schedules by key. Lookups of unknown keys
// return (nil, nil).
type ScheduleStore interface {
	GetSchedule(ctx context.Context, key string) (*Schedule, error)
	SaveSchedule(ctx context.Context, s Schedule) error
}

// Storage abstracts persistence for schedules, transitions, settings and
// the auth tables.
type Storage interface {
	ScheduleStore
	ListSchedules(ctx context.Context) ([]Schedule, error)

	// Transitions, newest first.
	RecordTransition(ctx context.Context, t Transition) error
	ListTransitions(ctx context.Context, scheduleKey string, limit int) ([]Transition, error)
	// PruneTransitions deletes transitions older than before.
	PruneTransitions(ctx context.Context, before time.Time) (int64, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Users & tokens
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateToken(ctx context.Context, t Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	ListTokens(ctx context.Context, userID string) ([]Token, error)
	DeleteToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string) error

	// Casbin policies
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, rule CasbinRule) error
	RemoveCasbinRule(ctx context.Context, rule CasbinRule) error

	// Email
	GetEmailConfig(ctx context.Context) (*EmailConfig, error)
	SaveEmailConfig(ctx context.Context, cfg EmailConfig) error

	// Scheduled jobs & locking
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	ListScheduledJobs(ctx context.Context) ([]ScheduledJob, error)

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}
