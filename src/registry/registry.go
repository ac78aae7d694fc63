// Package registry holds per-instrument trigger state in memory. The
// trigger coordinator records triggers, the volatility pollers record tick
// prices and startup restores persisted baselines; every read returns a
// snapshot copy.
package registry

import (
	"sync"
	"time"

	"aitrader/src/utils"
)

type Source string

const (
	SourceManual     Source = "manual"
	SourceSchedule   Source = "schedule"
	SourceVolatility Source = "volatility"
	SourceStartup    Source = "startup"
	SourceNone       Source = "none"
)

// SymbolState is the per-instrument trigger baseline.
type SymbolState struct {
	InstID           string
	LastTriggerPrice *float64
	LastTickPrice    *float64
	NextScheduledAt  time.Time
	LastSource       Source
	LastTriggerAt    *time.Time
}

// Registry is a process-wide map of instrument id to SymbolState, guarded
// by a single mutex. Reads take a copy so callers never observe a
// partially-updated state.
type Registry struct {
	mu     sync.Mutex
	states map[string]*SymbolState
}

func New(instIDs []string, scheduleInterval time.Duration) *Registry {
	r := &Registry{states: make(map[string]*SymbolState, len(instIDs))}
	// Truncate to the minute so the first scheduled wake for every
	// instrument lands on a clean boundary instead of the process's
	// arbitrary startup instant.
	now := utils.ResetTime(time.Now(), "minute")
	for _, id := range instIDs {
		r.states[id] = &SymbolState{
			InstID:          id,
			NextScheduledAt: now.Add(scheduleInterval),
			LastSource:      SourceNone,
		}
	}
	return r
}

// SeedState is the persisted baseline used to restore a SymbolState at
// startup, before any live ticks or triggers have been observed in the
// current process.
type SeedState struct {
	LastTriggerPrice *float64
	LastTriggerAt    *time.Time
}

// Restore seeds one instrument's baseline from persisted state. A seed with
// a LastTriggerAt but no LastTriggerPrice only anchors NextScheduledAt,
// leaving LastTriggerPrice unset until the first live tick arrives. A seed
// with no LastTriggerAt changes nothing, so the instrument keeps New's
// fresh-process default (start time truncated to the minute, plus
// scheduleInterval).
func (r *Registry) Restore(instID string, seed SeedState, scheduleInterval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[instID]
	if !ok || seed.LastTriggerAt == nil {
		return
	}
	s.LastTriggerPrice = seed.LastTriggerPrice
	s.LastTriggerAt = seed.LastTriggerAt
	s.LastSource = SourceStartup
	s.NextScheduledAt = seed.LastTriggerAt.Add(scheduleInterval)
}

// Snapshot returns a read-only copy of one instrument's state.
func (r *Registry) Snapshot(instID string) (SymbolState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[instID]
	if !ok {
		return SymbolState{}, false
	}
	return *s, true
}

// All returns a read-only copy of every tracked instrument's state.
func (r *Registry) All() []SymbolState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SymbolState, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, *s)
	}
	return out
}

// SetTickPrice records the most recent observed market price, seeding the
// trigger baseline the first time a price is seen.
func (r *Registry) SetTickPrice(instID string, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[instID]
	if !ok {
		return
	}
	s.LastTickPrice = &price
	if s.LastTriggerPrice == nil {
		s.LastTriggerPrice = &price
	}
}

// RecordTrigger applies the post-trigger invariant: the schedule always
// advances, and the baseline is refreshed to tickPrice when it is known.
func (r *Registry) RecordTrigger(instID string, source Source, tickPrice *float64, scheduleInterval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[instID]
	if !ok {
		return
	}
	now := time.Now()
	if tickPrice != nil {
		s.LastTriggerPrice = tickPrice
	}
	s.LastTriggerAt = &now
	s.NextScheduledAt = now.Add(scheduleInterval)
	s.LastSource = source
}

// EarliestScheduledAt returns the soonest NextScheduledAt across all
// tracked instruments, used by the coordinator to size its timer wait.
func (r *Registry) EarliestScheduledAt() (string, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		bestID string
		best   time.Time
		found  bool
	)
	for id, s := range r.states {
		if !found || s.NextScheduledAt.Before(best) {
			bestID, best, found = id, s.NextScheduledAt, true
		}
	}
	return bestID, best, found
}
