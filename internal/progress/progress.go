// Package progress provides a standardized way to broadcast progress events
// to the connected desktop shell. It is reused by every feature that reports
// long-running work (searching, downloading, extracting, installing).
package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/websocket"
)

// ActivityType identifies the type of activity being tracked.
type ActivityType string

const (
	ActivityTypeSearch      ActivityType = "search"
	ActivityTypeDownload    ActivityType = "download"
	ActivityTypeExtract     ActivityType = "extract"
	ActivityTypeInstall     ActivityType = "install"
	ActivityTypeLibraryScan ActivityType = "library-scan"
)

// Status represents the current state of an activity.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Activity represents a trackable activity with progress.
type Activity struct {
	ID          string                 `json:"id"`
	Type        ActivityType           `json:"type"`
	Title       string                 `json:"title"`
	Subtitle    string                 `json:"subtitle"`
	Progress    int                    `json:"progress"` // 0-100, -1 for indeterminate
	Status      Status                 `json:"status"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt *time.Time             `json:"completedAt"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// EventType identifies the type of progress event.
type EventType string

const (
	EventTypeStarted   EventType = "progress:started"
	EventTypeUpdate    EventType = "progress:update"
	EventTypeCompleted EventType = "progress:completed"
	EventTypeError     EventType = "progress:error"
	EventTypeCancelled EventType = "progress:cancelled"
)

// Manager tracks and broadcasts progress for all activities.
type Manager struct {
	hub        *websocket.Hub
	activities map[string]*Activity
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewManager creates a new progress manager.
func NewManager(hub *websocket.Hub, logger zerolog.Logger) *Manager {
	return &Manager{
		hub:        hub,
		activities: make(map[string]*Activity),
		logger:     logger.With().Str("component", "progress").Logger(),
	}
}

// StartActivity creates and starts tracking a new activity.
func (m *Manager) StartActivity(id string, activityType ActivityType, title string) *Activity {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity := &Activity{
		ID:        id,
		Type:      activityType,
		Title:     title,
		Subtitle:  "Starting...",
		Progress:  0,
		Status:    StatusInProgress,
		StartedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}

	m.activities[id] = activity
	m.broadcast(EventTypeStarted, activity)

	m.logger.Debug().
		Str("id", id).
		Str("type", string(activityType)).
		Str("title", title).
		Msg("Activity started")

	return activity
}

// UpdateActivity updates an existing activity's progress.
func (m *Manager) UpdateActivity(id string, subtitle string, progress int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	activity.Subtitle = subtitle
	activity.Progress = progress

	m.broadcast(EventTypeUpdate, activity)
}

// CompleteActivity marks an activity as completed.
func (m *Manager) CompleteActivity(id string, subtitle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusCompleted
	activity.Progress = 100
	activity.Subtitle = subtitle
	activity.CompletedAt = &now

	m.broadcast(EventTypeCompleted, activity)

	// The shell handles display timeout; drop tracking shortly after.
	go func() {
		time.Sleep(5 * time.Second)
		m.mu.Lock()
		delete(m.activities, id)
		m.mu.Unlock()
	}()

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Msg("Activity completed")
}

// FailActivity marks an activity as failed.
func (m *Manager) FailActivity(id string, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusFailed
	activity.Subtitle = errorMsg
	activity.CompletedAt = &now
	activity.Metadata["error"] = errorMsg

	m.broadcast(EventTypeError, activity)

	go func() {
		time.Sleep(10 * time.Second)
		m.mu.Lock()
		delete(m.activities, id)
		m.mu.Unlock()
	}()

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Str("error", errorMsg).
		Msg("Activity failed")
}

// CancelActivity marks an activity as cancelled.
func (m *Manager) CancelActivity(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusCancelled
	activity.Subtitle = "Cancelled"
	activity.CompletedAt = &now

	m.broadcast(EventTypeCancelled, activity)

	delete(m.activities, id)

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Msg("Activity cancelled")
}

// GetActivity returns an activity by ID.
func (m *Manager) GetActivity(id string) *Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activities[id]
}

// GetAllActivities returns all active activities.
func (m *Manager) GetAllActivities() []*Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Activity, 0, len(m.activities))
	for _, activity := range m.activities {
		result = append(result, activity)
	}
	return result
}

// broadcast sends an activity update to all connected clients.
func (m *Manager) broadcast(eventType EventType, activity *Activity) {
	if m.hub == nil {
		return
	}

	m.hub.Broadcast(string(eventType), activity)
}
