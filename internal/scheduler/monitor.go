package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"uplite/internal/domain"
	"uplite/internal/probe"
	"uplite/internal/repo"
)

// Grace period on top of a target's timeout for transport/subprocess
// teardown.
const checkGrace = 2 * time.Second

// Monitor drives periodic checks of all active targets. Checks for
// different targets run concurrently up to Concurrency; a target whose
// previous check is still in flight is skipped for the cycle.
type Monitor struct {
	Logger      *zap.Logger
	Targets     repo.TargetStore
	History     repo.HistoryStore
	Checker     probe.Checker
	Interval    time.Duration
	RetryDelay  time.Duration
	Concurrency int

	mu       sync.Mutex
	inflight map[int64]struct{}
	now      func() time.Time
}

func NewMonitor(
	logger *zap.Logger,
	targets repo.TargetStore,
	history repo.HistoryStore,
	checker probe.Checker,
	interval, retryDelay time.Duration,
	concurrency int,
) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if retryDelay <= 0 {
		retryDelay = 10 * time.Second
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Monitor{
		Logger:      logger,
		Targets:     targets,
		History:     history,
		Checker:     checker,
		Interval:    interval,
		RetryDelay:  retryDelay,
		Concurrency: concurrency,
		inflight:    make(map[int64]struct{}),
		now:         time.Now,
	}
}

// Run does an immediate pass, then one per tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.Interval)
	defer t.Stop()

	m.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			m.Logger.Info("monitor_stopped")
			return
		case <-t.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	targets, err := m.Targets.ListActive(ctx)
	if err != nil {
		m.Logger.Warn("monitor_list_error", zap.Error(err))
		// One short-delay retry before giving the store a full tick.
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.RetryDelay):
		}
		if targets, err = m.Targets.ListActive(ctx); err != nil {
			m.Logger.Warn("monitor_list_retry_error", zap.Error(err))
			return
		}
	}
	if len(targets) == 0 {
		return
	}

	sem := make(chan struct{}, m.Concurrency)
	var wg sync.WaitGroup

	for _, tgt := range targets {
		t := tgt
		if !m.due(t) {
			continue
		}
		if !m.acquire(t.ID) {
			m.Logger.Info("monitor_skip_inflight",
				zap.Int64("target_id", t.ID),
				zap.String("name", t.Name),
			)
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer m.release(t.ID)
			m.checkOne(ctx, t)
		}()
	}

	wg.Wait()
}

// due reports whether the target's own check interval has elapsed since
// its last recorded check.
func (m *Monitor) due(t domain.Target) bool {
	if t.LastCheck == nil {
		return true
	}
	iv := time.Duration(t.Interval) * time.Second
	if iv <= 0 {
		iv = m.Interval
	}
	return m.now().UTC().Sub(*t.LastCheck) >= iv
}

func (m *Monitor) checkOne(ctx context.Context, t domain.Target) {
	cctx, cancel := context.WithTimeout(ctx, t.TimeoutDuration()+checkGrace)
	defer cancel()

	res := m.safeCheck(cctx, t)
	if res.CheckedAt.IsZero() {
		res.CheckedAt = m.now().UTC()
	}

	if err := m.Targets.UpdateStatus(ctx, t.ID, res); err != nil {
		m.Logger.Warn("monitor_status_update_error",
			zap.Int64("target_id", t.ID),
			zap.String("name", t.Name),
			zap.Error(err),
		)
	}
	if _, err := m.History.Append(ctx, t.ID, res); err != nil {
		m.Logger.Warn("monitor_append_error",
			zap.Int64("target_id", t.ID),
			zap.String("name", t.Name),
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{
		zap.Int64("target_id", t.ID),
		zap.String("name", t.Name),
		zap.String("kind", string(t.Kind)),
		zap.String("status", string(res.Status)),
	}
	if res.ResponseTime != nil {
		fields = append(fields, zap.Float64("latency_ms", *res.ResponseTime))
	}
	if res.Err != "" {
		fields = append(fields, zap.String("reason", res.Err))
	}
	m.Logger.Debug("monitor_checked", fields...)
}

// safeCheck folds a panicking probe into an UNKNOWN result so one bad
// target cannot abort the cycle for the others.
func (m *Monitor) safeCheck(ctx context.Context, t domain.Target) (res domain.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			m.Logger.Error("monitor_check_panic",
				zap.Int64("target_id", t.ID),
				zap.String("name", t.Name),
				zap.Any("panic", r),
			)
			res = domain.CheckResult{
				Status:    domain.StatusUnknown,
				Err:       fmt.Sprintf("check failed: %v", r),
				CheckedAt: m.now().UTC(),
			}
		}
	}()
	return m.Checker.Check(ctx, t)
}

func (m *Monitor) acquire(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return false
	}
	m.inflight[id] = struct{}{}
	return true
}

func (m *Monitor) release(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
}
