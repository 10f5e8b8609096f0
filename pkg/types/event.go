package types

import "time"

type EventType string

const (
	EventRefreshCompleted EventType = "RefreshCompleted"
	EventSnapshotStored   EventType = "SnapshotStored"
	EventSnapshotFailed   EventType = "SnapshotFailed"
	EventCycleSkipped     EventType = "CycleSkipped"
	EventLifetimeElapsed  EventType = "LifetimeElapsed"
	EventStopped          EventType = "Stopped"
)

type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	Task      string         `json:"task,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
