package rates

import (
	"sync"

	"github.com/bher20/tarifmanager/internal/tariff"
)

// LiveFeed holds the latest meter tariff reading per schedule. The empty
// key applies to every schedule without a reading of its own.
type LiveFeed struct {
	mu       sync.RWMutex
	readings map[string]tariff.LiveStatus
}

func NewLiveFeed() *LiveFeed {
	return &LiveFeed{readings: make(map[string]tariff.LiveStatus)}
}

// Set records a raw meter value for key. Values that do not parse clear the
// reading so the computed status shows again; ok reports which happened.
func (f *LiveFeed) Set(key, raw string) (tariff.LiveStatus, bool) {
	ls, ok := tariff.ParseLiveStatus(raw)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !ok {
		delete(f.readings, key)
		return ls, false
	}
	f.readings[key] = ls
	return ls, true
}

// Get returns the reading for key, falling back to the shared one.
func (f *LiveFeed) Get(key string) (*tariff.LiveStatus, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ls, ok := f.readings[key]
	if !ok {
		ls, ok = f.readings[""]
	}
	if !ok {
		return nil, false
	}
	return &ls, true
}
