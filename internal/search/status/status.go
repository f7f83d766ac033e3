// Package status tracks per-source health for the search cascade.
package status

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SourceStatus is the health record for one search source.
type SourceStatus struct {
	SourceName        string     `json:"sourceName"`
	InitialFailure    *time.Time `json:"initialFailure,omitempty"`
	MostRecentFailure *time.Time `json:"mostRecentFailure,omitempty"`
	EscalationLevel   int        `json:"escalationLevel"`
	DisabledTill      *time.Time `json:"disabledTill,omitempty"`
	LastSearch        *time.Time `json:"lastSearch,omitempty"`
	IsDisabled        bool       `json:"isDisabled"`
}

// BackoffConfig defines the backoff strategy for failing sources.
type BackoffConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	MaxEscalation  int
}

// DefaultBackoffConfig returns the default backoff configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialBackoff: 5 * time.Minute,
		MaxBackoff:     3 * time.Hour,
		Multiplier:     2.0,
		MaxEscalation:  5,
	}
}

// Tracker keeps source health in memory. Source outages are transient by
// nature, so the state does not need to survive restarts.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*SourceStatus
	config  BackoffConfig
	logger  zerolog.Logger
}

// NewTracker creates a tracker with the default backoff configuration.
func NewTracker(logger zerolog.Logger) *Tracker {
	return NewTrackerWithConfig(DefaultBackoffConfig(), logger)
}

// NewTrackerWithConfig creates a tracker with a custom backoff configuration.
func NewTrackerWithConfig(config BackoffConfig, logger zerolog.Logger) *Tracker {
	return &Tracker{
		records: make(map[string]*SourceStatus),
		config:  config,
		logger:  logger.With().Str("component", "source-status").Logger(),
	}
}

// RecordSuccess clears any failure state for a source.
func (t *Tracker) RecordSuccess(sourceName string) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[sourceName] = &SourceStatus{
		SourceName: sourceName,
		LastSearch: &now,
	}
}

// RecordFailure records a failed search with escalating backoff.
func (t *Tracker) RecordFailure(sourceName string, opError error) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[sourceName]
	if !ok {
		rec = &SourceStatus{SourceName: sourceName}
		t.records[sourceName] = rec
	}

	rec.EscalationLevel++
	if rec.EscalationLevel > t.config.MaxEscalation {
		rec.EscalationLevel = t.config.MaxEscalation
	}
	if rec.InitialFailure == nil {
		rec.InitialFailure = &now
	}
	rec.MostRecentFailure = &now

	backoff := t.backoffFor(rec.EscalationLevel)
	disabledTill := now.Add(backoff)
	rec.DisabledTill = &disabledTill

	t.logger.Warn().
		Str("source", sourceName).
		Int("escalationLevel", rec.EscalationLevel).
		Dur("backoff", backoff).
		Err(opError).
		Msg("Recorded source failure, applying backoff")
}

// IsDisabled reports whether a source is inside its backoff window.
func (t *Tracker) IsDisabled(sourceName string) (bool, *time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[sourceName]
	if !ok || rec.DisabledTill == nil {
		return false, nil
	}
	if time.Now().After(*rec.DisabledTill) {
		return false, nil
	}
	return true, rec.DisabledTill
}

// GetStatus returns a copy of the health record for a source. Sources with
// no recorded activity get a zeroed healthy record.
func (t *Tracker) GetStatus(sourceName string) SourceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[sourceName]
	if !ok {
		return SourceStatus{SourceName: sourceName}
	}
	out := *rec
	out.IsDisabled = rec.DisabledTill != nil && time.Now().Before(*rec.DisabledTill)
	return out
}

// GetAllStatuses returns health records for every tracked source.
func (t *Tracker) GetAllStatuses() []SourceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	out := make([]SourceStatus, 0, len(t.records))
	for _, rec := range t.records {
		copied := *rec
		copied.IsDisabled = rec.DisabledTill != nil && now.Before(*rec.DisabledTill)
		out = append(out, copied)
	}
	return out
}

func (t *Tracker) backoffFor(level int) time.Duration {
	if level <= 0 {
		return 0
	}
	backoff := t.config.InitialBackoff
	for i := 1; i < level; i++ {
		backoff = time.Duration(float64(backoff) * t.config.Multiplier)
		if backoff > t.config.MaxBackoff {
			return t.config.MaxBackoff
		}
	}
	return backoff
}
