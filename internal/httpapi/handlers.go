package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"uplite/internal/domain"
)

const (
	defaultMedianPeriods = 10
	defaultHistoryLimit  = 20
	defaultStatsDays     = 7
	defaultCountsHours   = 24

	maxMedianPeriods = 1000
	maxHistoryLimit  = 1000
	maxStatsDays     = 90
	maxCountsHours   = 24 * 90
)

// targetView is the list/detail payload: the target plus the derived
// fields the dashboard renders alongside it.
type targetView struct {
	domain.Target
	MedianResponseTime *float64               `json:"median_response_time"`
	RecentHistory      []domain.HistoryRecord `json:"recent_history"`
}

func (s *Server) enrich(r *http.Request, t domain.Target) targetView {
	ctx := r.Context()
	v := targetView{Target: t, RecentHistory: []domain.HistoryRecord{}}

	med, err := s.History.Median(ctx, t.ID, defaultMedianPeriods)
	if err != nil {
		s.Logger.Warn("api_median_error", zap.Int64("target_id", t.ID), zap.Error(err))
	} else {
		v.MedianResponseTime = med
	}

	recent, err := s.History.RecentWindow(ctx, t.ID, defaultHistoryLimit)
	if err != nil {
		s.Logger.Warn("api_history_error", zap.Int64("target_id", t.ID), zap.Error(err))
		return v
	}
	// RecentWindow is newest-first; the sparkline wants chronological.
	for i := len(recent) - 1; i >= 0; i-- {
		v.RecentHistory = append(v.RecentHistory, recent[i])
	}
	return v
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.Targets.List(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	views := make([]targetView, 0, len(targets))
	for _, t := range targets {
		views = append(views, s.enrich(r, t))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var t domain.Target
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if t.Timeout <= 0 {
		t.Timeout = domain.DefaultTimeoutSeconds
	}
	if t.Interval <= 0 {
		t.Interval = domain.DefaultIntervalSeconds
	}
	if err := t.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t.ID = 0
	t.Active = true
	if err := s.Targets.Create(r.Context(), &t); err != nil {
		s.storeError(w, err)
		return
	}

	// One immediate check so the new target shows a status right away
	// instead of waiting for the next monitor cycle.
	res := s.runCheck(r.Context(), t)
	fresh, err := s.Targets.Get(r.Context(), t.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.Logger.Info("target_created",
		zap.Int64("target_id", t.ID),
		zap.String("name", t.Name),
		zap.String("status", string(res.Status)),
	)
	s.writeJSON(w, http.StatusCreated, s.enrich(r, *fresh))
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	t, err := s.Targets.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.enrich(r, *t))
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	existing, err := s.Targets.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}

	// Decode over a copy of the stored target so omitted fields keep
	// their current values.
	updated := *existing
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated.ID = id
	if err := updated.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Targets.Update(r.Context(), &updated); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.enrich(r, updated))
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	if err := s.Targets.Delete(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	s.Logger.Info("target_deleted", zap.Int64("target_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	t, err := s.Targets.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	res := s.runCheck(r.Context(), *t)
	s.writeJSON(w, http.StatusOK, res)
}

// runCheck performs one on-demand probe and records it through the same
// write path the monitor loop uses.
func (s *Server) runCheck(ctx context.Context, t domain.Target) domain.CheckResult {
	cctx, cancel := context.WithTimeout(ctx, t.TimeoutDuration()+2*time.Second)
	defer cancel()

	res := s.Checker.Check(cctx, t)
	if res.CheckedAt.IsZero() {
		res.CheckedAt = time.Now().UTC()
	}
	if err := s.Targets.UpdateStatus(ctx, t.ID, res); err != nil {
		s.Logger.Warn("api_status_update_error", zap.Int64("target_id", t.ID), zap.Error(err))
	}
	if _, err := s.History.Append(ctx, t.ID, res); err != nil {
		s.Logger.Warn("api_append_error", zap.Int64("target_id", t.ID), zap.Error(err))
	}
	return res
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	if _, err := s.Targets.Get(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	days := queryInt(r, "days", defaultStatsDays, maxStatsDays)
	rep, err := s.Stats.Compute(r.Context(), id, days)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleMedian(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	if _, err := s.Targets.Get(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	periods := queryInt(r, "periods", defaultMedianPeriods, maxMedianPeriods)
	med, err := s.History.Median(r.Context(), id, periods)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"target_id":            id,
		"periods":              periods,
		"median_response_time": med,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	if _, err := s.Targets.Get(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	limit := queryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	recent, err := s.History.RecentWindow(r.Context(), id, limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	// Chronological for charting.
	recs := make([]domain.HistoryRecord, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		recs = append(recs, recent[i])
	}
	s.writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	if _, err := s.Targets.Get(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	hours := queryInt(r, "hours", defaultCountsHours, maxCountsHours)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.History.StatusCounts(r.Context(), id, since)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"target_id": id,
		"hours":     hours,
		"up":        counts.Up,
		"down":      counts.Down,
		"unknown":   counts.Unknown,
		"total":     counts.Total(),
	})
}
