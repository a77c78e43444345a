package domain

import "time"

// CheckResult is the outcome of a single probe. ResponseTime is in
// milliseconds and nil when nothing was measured; Err is set for
// DOWN/UNKNOWN results. Immutable once produced.
type CheckResult struct {
	Status       Status    `json:"status"`
	ResponseTime *float64  `json:"response_time"`
	Err          string    `json:"error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// HistoryRecord is a CheckResult persisted with a store-assigned id.
// Ordering is by timestamp; ties break by id, which increases in
// insertion order.
type HistoryRecord struct {
	ID           int64     `json:"id"`
	TargetID     int64     `json:"target_id"`
	CheckedAt    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
	ResponseTime *float64  `json:"response_time"`
	Error        string    `json:"error_message,omitempty"`
}

// StatusCounts aggregates record statuses over a time window.
type StatusCounts struct {
	Up      int `json:"up"`
	Down    int `json:"down"`
	Unknown int `json:"unknown"`
}

func (c StatusCounts) Total() int { return c.Up + c.Down + c.Unknown }
