package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"uplite/internal/domain"
	"uplite/internal/repo"
)

// Store keeps targets and history in process memory. It backs tests and
// the no-persistence mode; one mutex gives read-after-write consistency
// per target.
type Store struct {
	mu        sync.RWMutex
	retention time.Duration

	nextTargetID int64
	nextRecordID int64
	targets      map[int64]*domain.Target
	history      map[int64][]domain.HistoryRecord
}

func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = repo.DefaultRetention
	}
	return &Store{
		retention: retention,
		targets:   make(map[int64]*domain.Target),
		history:   make(map[int64][]domain.HistoryRecord),
	}
}

// ---- TargetStore ----

func (s *Store) Create(ctx context.Context, t *domain.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTargetID++
	t.ID = s.nextTargetID
	if t.Timeout <= 0 {
		t.Timeout = domain.DefaultTimeoutSeconds
	}
	if t.Interval <= 0 {
		t.Interval = domain.DefaultIntervalSeconds
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := *t
	s.targets[t.ID] = &cp
	return nil
}

func (s *Store) Update(ctx context.Context, t *domain.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.targets[t.ID]
	if !ok {
		return repo.ErrNotFound
	}
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	s.targets[t.ID] = &cp
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.targets, id)
	delete(s.history, id)
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListActive(ctx context.Context) ([]domain.Target, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, r domain.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return repo.ErrNotFound
	}
	checked := r.CheckedAt
	t.LastCheck = &checked
	t.LastStatus = r.Status
	t.LastResponseTime = r.ResponseTime
	t.LastError = r.Err
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// ---- HistoryStore ----

func (s *Store) Append(ctx context.Context, targetID int64, r domain.CheckResult) (domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checked := r.CheckedAt
	if checked.IsZero() {
		checked = time.Now().UTC()
	}
	s.nextRecordID++
	rec := domain.HistoryRecord{
		ID:           s.nextRecordID,
		TargetID:     targetID,
		CheckedAt:    checked,
		Status:       r.Status,
		ResponseTime: r.ResponseTime,
		Error:        r.Err,
	}

	cutoff := time.Now().UTC().Add(-s.retention)
	kept := s.history[targetID][:0]
	for _, old := range s.history[targetID] {
		if !old.CheckedAt.Before(cutoff) {
			kept = append(kept, old)
		}
	}
	// The new record is exempt from eviction even if its timestamp is
	// skewed behind the cutoff.
	s.history[targetID] = append(kept, rec)
	return rec, nil
}

func (s *Store) RecentWindow(ctx context.Context, targetID int64, limit int) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.sorted(targetID)
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	out := make([]domain.HistoryRecord, 0, limit)
	for i := len(recs) - 1; i >= len(recs)-limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (s *Store) Median(ctx context.Context, targetID int64, periods int) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.sorted(targetID)
	var lats []float64
	for i := len(recs) - 1; i >= 0 && len(lats) < periods; i-- {
		if recs[i].Status == domain.StatusUp && recs[i].ResponseTime != nil {
			lats = append(lats, *recs[i].ResponseTime)
		}
	}
	if len(lats) == 0 {
		return nil, nil
	}
	m := repo.MedianOf(lats)
	return &m, nil
}

func (s *Store) Range(ctx context.Context, targetID int64, since time.Time) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.HistoryRecord
	for _, r := range s.sorted(targetID) {
		if !r.CheckedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) StatusCounts(ctx context.Context, targetID int64, since time.Time) (domain.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c domain.StatusCounts
	for _, r := range s.history[targetID] {
		if r.CheckedAt.Before(since) {
			continue
		}
		switch r.Status {
		case domain.StatusUp:
			c.Up++
		case domain.StatusDown:
			c.Down++
		default:
			c.Unknown++
		}
	}
	return c, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, recs := range s.history {
		kept := recs[:0]
		for _, r := range recs {
			if r.CheckedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		s.history[id] = kept
	}
	return deleted, nil
}

// sorted returns the target's records ascending by (timestamp, id).
// Appends already arrive in time order; sorting covers skewed clocks.
func (s *Store) sorted(targetID int64) []domain.HistoryRecord {
	recs := make([]domain.HistoryRecord, len(s.history[targetID]))
	copy(recs, s.history[targetID])
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CheckedAt.Equal(recs[j].CheckedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CheckedAt.Before(recs[j].CheckedAt)
	})
	return recs
}

var (
	_ repo.TargetStore  = (*Store)(nil)
	_ repo.HistoryStore = (*Store)(nil)
)
