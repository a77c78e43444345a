package repo

import (
	"context"
	"errors"
	"sort"
	"time"

	"uplite/internal/domain"
)

// ErrNotFound is returned when a target id does not exist.
var ErrNotFound = errors.New("target not found")

// DefaultRetention bounds how much history is kept per target.
const DefaultRetention = 7 * 24 * time.Hour

// TargetStore manages monitored targets. UpdateStatus is the write path
// the monitor loop uses after every check: it refreshes the target's
// cached last_* fields.
type TargetStore interface {
	Create(ctx context.Context, t *domain.Target) error
	Update(ctx context.Context, t *domain.Target) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Target, error)
	List(ctx context.Context) ([]domain.Target, error)
	ListActive(ctx context.Context) ([]domain.Target, error)
	UpdateStatus(ctx context.Context, id int64, r domain.CheckResult) error
}

// HistoryStore is the retention-bounded time series of check results.
type HistoryStore interface {
	// Append persists the result and evicts records for the same target
	// older than the retention cutoff. The record just inserted survives
	// eviction regardless of clock skew.
	Append(ctx context.Context, targetID int64, r domain.CheckResult) (domain.HistoryRecord, error)
	// RecentWindow returns up to limit records, most recent first.
	RecentWindow(ctx context.Context, targetID int64, limit int) ([]domain.HistoryRecord, error)
	// Median returns the median latency over the most recent periods
	// UP records that carry a latency, or nil when none qualify.
	Median(ctx context.Context, targetID int64, periods int) (*float64, error)
	// Range returns all records with timestamp >= since, ascending.
	Range(ctx context.Context, targetID int64, since time.Time) ([]domain.HistoryRecord, error)
	StatusCounts(ctx context.Context, targetID int64, since time.Time) (domain.StatusCounts, error)
	// DeleteOlderThan drops records older than cutoff across all targets.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MedianOf computes the statistics-textbook median: the middle value, or
// the mean of the two central values for an even count. The input is not
// modified.
func MedianOf(values []float64) float64 {
	vs := make([]float64, len(values))
	copy(vs, values)
	sort.Float64s(vs)
	n := len(vs)
	if n%2 == 1 {
		return vs[n/2]
	}
	return (vs[n/2-1] + vs[n/2]) / 2
}
