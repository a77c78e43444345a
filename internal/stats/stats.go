// Package stats derives uptime, latency and incident statistics from a
// target's history series.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"uplite/internal/domain"
	"uplite/internal/repo"
)

// Report is the JSON-serializable answer to a statistics query.
type Report struct {
	TargetID         int64       `json:"target_id"`
	TotalChecks      int         `json:"total_checks"`
	UptimePercentage float64     `json:"uptime_percentage"`
	AvgResponseTime  *float64    `json:"avg_response_time"`
	MinResponseTime  *float64    `json:"min_response_time"`
	MaxResponseTime  *float64    `json:"max_response_time"`
	Incidents        []Incident  `json:"incidents"`
	DailyStats       []DailyStat `json:"daily_stats"`
	PeriodStart      time.Time   `json:"period_start"`
	PeriodEnd        time.Time   `json:"period_end"`
}

// Incident is a derived interval of non-UP records. An incident still open
// at the window end carries Ongoing=true and EndedAt=now.
type Incident struct {
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	Ongoing         bool      `json:"ongoing"`
	DurationMinutes float64   `json:"duration_minutes"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
}

// DailyStat is one calendar day's rollup.
type DailyStat struct {
	Date             string   `json:"date"`
	TotalChecks      int      `json:"total_checks"`
	UptimePercentage float64  `json:"uptime_percentage"`
	AvgResponseTime  *float64 `json:"avg_response_time"`
	Incidents        int      `json:"incidents"`
}

// Engine answers reporting queries from a history store. Now is
// injectable for tests and defaults to time.Now.
type Engine struct {
	History repo.HistoryStore
	Now     func() time.Time
}

func NewEngine(h repo.HistoryStore) *Engine {
	return &Engine{History: h, Now: time.Now}
}

// Compute builds the report for the last `days` calendar days (UTC),
// ending now. An empty window yields a zeroed report, not an error.
func (e *Engine) Compute(ctx context.Context, targetID int64, days int) (*Report, error) {
	if days <= 0 {
		days = 7
	}
	now := e.Now().UTC()
	// Calendar-aligned window: exactly `days` daily rollup entries, the
	// newest being today.
	start := startOfDay(now).AddDate(0, 0, -(days - 1))

	recs, err := e.History.Range(ctx, targetID, start)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}

	rep := &Report{
		TargetID:    targetID,
		Incidents:   []Incident{},
		DailyStats:  []DailyStat{},
		PeriodStart: start,
		PeriodEnd:   now,
	}
	if len(recs) == 0 {
		return rep, nil
	}

	rep.TotalChecks = len(recs)
	upCount := 0
	var lats []float64
	for _, r := range recs {
		if r.Status == domain.StatusUp {
			upCount++
			if r.ResponseTime != nil {
				lats = append(lats, *r.ResponseTime)
			}
		}
	}
	rep.UptimePercentage = round2(100 * float64(upCount) / float64(len(recs)))
	if len(lats) > 0 {
		sum, min, max := lats[0], lats[0], lats[0]
		for _, v := range lats[1:] {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		avg := round2(sum / float64(len(lats)))
		min, max = round2(min), round2(max)
		rep.AvgResponseTime = &avg
		rep.MinResponseTime = &min
		rep.MaxResponseTime = &max
	}

	rep.Incidents = deriveIncidents(recs, now)
	rep.DailyStats = dailyRollup(recs, rep.Incidents, start, days, now)
	return rep, nil
}

// deriveIncidents walks the ascending sequence once. DOWN and UNKNOWN are
// both incident states and merge into a single incident; only an UP record
// closes one. Re-running on the same sequence yields identical boundaries.
func deriveIncidents(recs []domain.HistoryRecord, now time.Time) []Incident {
	incidents := []Incident{}
	var (
		open     bool
		start    time.Time
		firstErr string
		sawDown  bool
		sawUnk   bool
	)

	flush := func(end time.Time, ongoing bool) {
		incidents = append(incidents, Incident{
			StartedAt:       start,
			EndedAt:         end,
			Ongoing:         ongoing,
			DurationMinutes: round1(end.Sub(start).Minutes()),
			Status:          incidentLabel(sawDown, sawUnk),
			Error:           firstErr,
		})
		open, firstErr, sawDown, sawUnk = false, "", false, false
	}

	for _, r := range recs {
		if r.Status == domain.StatusUp {
			if open {
				flush(r.CheckedAt, false)
			}
			continue
		}
		if !open {
			open = true
			start = r.CheckedAt
		}
		if r.Status == domain.StatusDown {
			sawDown = true
		} else {
			sawUnk = true
		}
		if firstErr == "" && r.Error != "" {
			firstErr = r.Error
		}
	}
	if open {
		flush(now, true)
	}
	return incidents
}

func incidentLabel(sawDown, sawUnknown bool) string {
	switch {
	case sawDown && sawUnknown:
		return "Mixed (Down, Unknown)"
	case sawUnknown:
		return "Unknown"
	default:
		return "Down"
	}
}

// dailyRollup emits exactly `days` entries, oldest first, zero-filled for
// days without data.
func dailyRollup(recs []domain.HistoryRecord, incidents []Incident, start time.Time, days int, now time.Time) []DailyStat {
	out := make([]DailyStat, 0, days)
	for i := 0; i < days; i++ {
		dayStart := start.AddDate(0, 0, i)
		dayEnd := dayStart.AddDate(0, 0, 1)

		var (
			total, up int
			latSum    float64
			latN      int
		)
		for _, r := range recs {
			if r.CheckedAt.Before(dayStart) || !r.CheckedAt.Before(dayEnd) {
				continue
			}
			total++
			if r.Status == domain.StatusUp {
				up++
				if r.ResponseTime != nil {
					latSum += *r.ResponseTime
					latN++
				}
			}
		}

		d := DailyStat{Date: dayStart.Format("2006-01-02"), TotalChecks: total}
		if total > 0 {
			d.UptimePercentage = round2(100 * float64(up) / float64(total))
		}
		if latN > 0 {
			avg := round2(latSum / float64(latN))
			d.AvgResponseTime = &avg
		}
		for _, inc := range incidents {
			if inc.StartedAt.Before(dayEnd) && !inc.EndedAt.Before(dayStart) {
				d.Incidents++
			}
		}
		out = append(out, d)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
