package rates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bher20/tarifmanager/internal/schedule"
	"github.com/bher20/tarifmanager/internal/storage"
)

// ErrUnknownSchedule is returned for keys the service does not manage.
var ErrUnknownSchedule = errors.New("rates: unknown schedule")

// ScheduleInfo names a managed schedule.
type ScheduleInfo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Config controls how the rates service behaves.
type Config struct {
	Schedules []ScheduleInfo
	Location  *time.Location
	Prices    Prices
	Logger    zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service loads, edits, persists and evaluates tariff schedules.
type Service struct {
	cfg      Config
	store    storage.ScheduleStore
	fallback storage.ScheduleStore // may be nil
	live     *LiveFeed
	log      zerolog.Logger

	mu     sync.Mutex
	drafts map[string]schedule.Config
}

// NewService returns a Service backed by an in-memory store.
func NewService(cfg Config) *Service {
	return NewServiceWithStorage(cfg, storage.NewMemory(), nil)
}

// NewServiceWithStorage returns a Service that reads and writes schedules
// through store, falling back to fallback when store fails or has nothing.
func NewServiceWithStorage(cfg Config, store, fallback storage.ScheduleStore) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Schedules) == 0 {
		cfg.Schedules = []ScheduleInfo{{Key: "default", Name: "Tarification"}}
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		fallback: fallback,
		live:     NewLiveFeed(),
		log:      cfg.Logger.With().Str("component", "rates").Logger(),
		drafts:   make(map[string]schedule.Config),
	}
}

// Schedules lists the managed schedules.
func (s *Service) Schedules() []ScheduleInfo {
	return append([]ScheduleInfo(nil), s.cfg.Schedules...)
}

// Live returns the meter feed shared by every schedule of the service.
func (s *Service) Live() *LiveFeed { return s.live }

// Location is the time zone schedules are evaluated in.
func (s *Service) Location() *time.Location { return s.cfg.Location }

// Now returns the current time in the service location.
func (s *Service) Now() time.Time { return s.cfg.Now().In(s.cfg.Location) }

// Lookup returns the managed schedule named by key.
func (s *Service) Lookup(key string) (ScheduleInfo, bool) {
	for _, sc := range s.cfg.Schedules {
		if sc.Key == key {
			return sc, true
		}
	}
	return ScheduleInfo{}, false
}

func (s *Service) check(key string) error {
	if _, ok := s.Lookup(key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSchedule, key)
	}
	return nil
}

// Load returns the persisted schedule for key from the first store holding a
// decodable record. Storage failures and undecodable data are logged and
// the next store is tried; with none left the schedule is empty. The only
// errors returned are an unknown key or a cancelled context.
func (s *Service) Load(ctx context.Context, key string) (schedule.Config, error) {
	if err := s.check(key); err != nil {
		return schedule.New(), err
	}
	for i, st := range []storage.ScheduleStore{s.store, s.fallback} {
		if st == nil {
			continue
		}
		rec, err := st.GetSchedule(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return schedule.New(), ctx.Err()
			}
			s.log.Warn().Err(err).Str("schedule", key).Int("store", i).Msg("load failed, trying next store")
			continue
		}
		if rec == nil || rec.Encoded == "" {
			continue
		}
		cfg, err := schedule.Decode(rec.Encoded)
		if err != nil {
			s.log.Warn().Err(err).Str("schedule", key).Int("store", i).Msg("stored schedule is malformed, trying next store")
			continue
		}
		return cfg, nil
	}
	return schedule.New(), nil
}

// Save commits cfg and writes it to every store. It fails only when no
// store accepted the write.
func (s *Service) Save(ctx context.Context, key string, cfg schedule.Config) (schedule.Config, error) {
	if err := s.check(key); err != nil {
		return cfg, err
	}
	cfg.Commit()
	rec := storage.Schedule{Key: key, Name: s.name(key), Encoded: schedule.Encode(cfg), UpdatedAt: s.cfg.Now()}

	var errs []error
	saved := 0
	for _, st := range []storage.ScheduleStore{s.store, s.fallback} {
		if st == nil {
			continue
		}
		if err := st.SaveSchedule(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("schedule", key).Msg("save failed")
			errs = append(errs, err)
			continue
		}
		saved++
	}
	if saved == 0 {
		return cfg, fmt.Errorf("save schedule %s: %w", key, errors.Join(errs...))
	}
	s.log.Info().Str("schedule", key).Msg("schedule saved")
	return cfg, nil
}

func (s *Service) name(key string) string {
	if sc, ok := s.Lookup(key); ok {
		return sc.Name
	}
	return key
}

// Draft returns the pending edit of key, starting one from the stored
// schedule when none is open.
func (s *Service) Draft(ctx context.Context, key string) (schedule.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftLocked(ctx, key)
}

func (s *Service) draftLocked(ctx context.Context, key string) (schedule.Config, error) {
	if d, ok := s.drafts[key]; ok {
		return d, nil
	}
	return s.Load(ctx, key)
}

// Edit applies ops to the draft of key. Nothing is persisted until Commit.
// On error the draft is left unchanged.
func (s *Service) Edit(ctx context.Context, key string, ops ...schedule.Op) (schedule.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.draftLocked(ctx, key)
	if err != nil {
		return cfg, err
	}
	for _, op := range ops {
		if cfg, err = schedule.Apply(cfg, op); err != nil {
			return s.drafts[key], err
		}
	}
	s.drafts[key] = cfg
	return cfg, nil
}

// Commit persists the draft of key and closes it.
func (s *Service) Commit(ctx context.Context, key string) (schedule.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.draftLocked(ctx, key)
	if err != nil {
		return cfg, err
	}
	cfg, err = s.Save(ctx, key, cfg)
	if err != nil {
		return cfg, err
	}
	delete(s.drafts, key)
	return cfg, nil
}

// Discard drops the draft of key.
func (s *Service) Discard(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key)
}

// Snapshot evaluates the stored schedule of key at at.
func (s *Service) Snapshot(ctx context.Context, key string, at time.Time) (*Snapshot, error) {
	cfg, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	live, _ := s.live.Get(key)
	snap := Compute(key, cfg, at.In(s.cfg.Location), live, s.cfg.Prices)
	return &snap, nil
}
