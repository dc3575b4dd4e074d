// Package events defines the notification payloads broadcast to dashboard
// clients when the orchestrated view changes.
package events

import "time"

// Event types.
const (
	TypeStateChanged  = "state_changed"
	TypeDatasetLoaded = "dataset_loaded"
	TypeFilterApplied = "filter_applied"
	TypeRefreshFailed = "refresh_failed"
)

// Event is one notification. Payload content depends on Type; clients that
// want the full view fetch it over the state endpoint.
type Event struct {
	Type      string    `json:"type"`
	State     string    `json:"state"`
	Sequence  uint64    `json:"sequence"`
	DatasetID string    `json:"dataset_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
