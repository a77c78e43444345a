package domain

import (
	"fmt"
	"time"
)

// Status is the normalized outcome of one liveness probe.
type Status string

const (
	StatusUp      Status = "up"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown"
)

// Kind selects which probe a target is checked with. Address semantics
// depend on it: a URL for http, a host for ping/tcp/database.
type Kind string

const (
	KindHTTP     Kind = "http"
	KindPing     Kind = "ping"
	KindTCP      Kind = "tcp"
	KindDatabase Kind = "database"
)

func (k Kind) Valid() bool {
	switch k {
	case KindHTTP, KindPing, KindTCP, KindDatabase:
		return true
	}
	return false
}

const (
	DefaultTimeoutSeconds  = 10
	DefaultIntervalSeconds = 60
)

// Target is a monitored endpoint. The Last* fields cache the most recent
// check so list views don't have to touch history; they are written only
// through the status-update path, and checks for one target are never
// concurrent.
type Target struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Address   string    `json:"address"`
	Port      int       `json:"port,omitempty"`
	Timeout   int       `json:"timeout"`        // seconds
	Interval  int       `json:"check_interval"` // seconds
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LastCheck        *time.Time `json:"last_check"`
	LastStatus       Status     `json:"last_status,omitempty"`
	LastResponseTime *float64   `json:"last_response_time"`
	LastError        string     `json:"last_error,omitempty"`
}

// TimeoutDuration returns the probe deadline, falling back to the default
// when the stored value is missing or invalid.
func (t *Target) TimeoutDuration() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(t.Timeout) * time.Second
}

// Validate checks the invariants an externally supplied target must hold.
func (t *Target) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target name is required")
	}
	if t.Address == "" {
		return fmt.Errorf("target address is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown connection type: %s", t.Kind)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", t.Timeout)
	}
	return nil
}
