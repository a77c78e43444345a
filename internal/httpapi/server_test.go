package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"uplite/internal/domain"
	"uplite/internal/repo/memory"
	"uplite/internal/stats"
)

type stubChecker struct {
	out domain.CheckResult
}

func (c *stubChecker) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	out := c.out
	out.CheckedAt = time.Now().UTC()
	return out
}

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New(0)
	ms := 25.0
	chk := &stubChecker{out: domain.CheckResult{Status: domain.StatusUp, ResponseTime: &ms}}
	srv := NewServer(zap.NewNop(), store, store, stats.NewEngine(store), chk)
	return srv, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestCreateTarget_RunsImmediateCheck(t *testing.T) {
	srv, store := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/targets", map[string]any{
		"name":    "web",
		"kind":    "http",
		"address": "https://example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}

	var got targetView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID == 0 || !got.Active {
		t.Fatalf("unexpected target: %+v", got.Target)
	}
	if got.Timeout != domain.DefaultTimeoutSeconds || got.Interval != domain.DefaultIntervalSeconds {
		t.Fatalf("defaults not applied: timeout=%d interval=%d", got.Timeout, got.Interval)
	}
	if got.LastStatus != domain.StatusUp {
		t.Fatalf("immediate check not cached: %+v", got.Target)
	}
	if len(got.RecentHistory) != 1 {
		t.Fatalf("immediate check not recorded: %+v", got.RecentHistory)
	}

	// The history record exists in the store too, not just the view.
	recs, err := store.RecentWindow(context.Background(), got.ID, 10)
	if err != nil || len(recs) != 1 {
		t.Fatalf("want one stored record, got %d (%v)", len(recs), err)
	}
}

func TestCreateTarget_Validation(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := []map[string]any{
		{"kind": "http", "address": "https://example.com"}, // no name
		{"name": "x", "kind": "http"},                      // no address
		{"name": "x", "kind": "ftp", "address": "h"},       // bad kind
	}
	for i, body := range cases {
		rec := doJSON(t, srv.Router(), http.MethodPost, "/api/targets", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: code = %d, want 400", i, rec.Code)
		}
		var e map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil || e["error"] == "" {
			t.Fatalf("case %d: error payload missing: %s", i, rec.Body.String())
		}
	}
}

func TestGetTarget_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/targets/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", rec.Code)
	}
	rec = doJSON(t, srv.Router(), http.MethodGet, "/api/targets/bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400 for non-numeric id", rec.Code)
	}
}

func TestUpdateTarget_KeepsOmittedFields(t *testing.T) {
	srv, store := newTestServer(t)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Timeout: 5, Interval: 30, Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := doJSON(t, srv.Router(), http.MethodPut, fmt.Sprintf("/api/targets/%d", tgt.ID), map[string]any{
		"name": "renamed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}
	got, err := store.Get(context.Background(), tgt.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("name not updated: %q", got.Name)
	}
	if got.Address != "https://example.com" || got.Timeout != 5 || got.Interval != 30 {
		t.Fatalf("omitted fields lost: %+v", got)
	}
}

func TestDeleteTarget(t *testing.T) {
	srv, store := newTestServer(t)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := doJSON(t, srv.Router(), http.MethodDelete, fmt.Sprintf("/api/targets/%d", tgt.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if _, err := store.Get(context.Background(), tgt.ID); err == nil {
		t.Fatalf("target still present after delete")
	}
	rec = doJSON(t, srv.Router(), http.MethodDelete, fmt.Sprintf("/api/targets/%d", tgt.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", rec.Code)
	}
}

func TestCheckNow(t *testing.T) {
	srv, store := newTestServer(t)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := doJSON(t, srv.Router(), http.MethodPost, fmt.Sprintf("/api/targets/%d/check", tgt.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check = %d: %s", rec.Code, rec.Body.String())
	}
	var res domain.CheckResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != domain.StatusUp || res.ResponseTime == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	got, _ := store.Get(context.Background(), tgt.ID)
	if got.LastStatus != domain.StatusUp {
		t.Fatalf("status not cached: %+v", got)
	}
}

func TestListTargets_EnrichedView(t *testing.T) {
	srv, store := newTestServer(t)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	base := time.Now().UTC().Add(-time.Hour)
	for i, ms := range []float64{10, 20, 30} {
		v := ms
		_, err := store.Append(context.Background(), tgt.ID, domain.CheckResult{
			Status: domain.StatusUp, ResponseTime: &v, CheckedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/targets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var views []targetView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("want 1 view, got %d", len(views))
	}
	v := views[0]
	if v.MedianResponseTime == nil || *v.MedianResponseTime != 20 {
		t.Fatalf("median = %v, want 20", v.MedianResponseTime)
	}
	if len(v.RecentHistory) != 3 {
		t.Fatalf("want 3 history records, got %d", len(v.RecentHistory))
	}
	// Chronological, oldest first.
	if !v.RecentHistory[0].CheckedAt.Before(v.RecentHistory[2].CheckedAt) {
		t.Fatalf("recent history not chronological: %+v", v.RecentHistory)
	}
}

func TestHistoryEndpoint_Limit(t *testing.T) {
	srv, store := newTestServer(t)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := store.Append(context.Background(), tgt.ID, domain.CheckResult{
			Status: domain.StatusUp, CheckedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rec := doJSON(t, srv.Router(), http.MethodGet, fmt.Sprintf("/api/targets/%d/history?limit=2", tgt.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d", rec.Code)
	}
	var recs []domain.HistoryRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 records, got %d", len(recs))
	}
	// The two newest records, in chronological order.
	if !recs[0].CheckedAt.Before(recs[1].CheckedAt) {
		t.Fatalf("history not chronological: %+v", recs)
	}
	if !recs[1].CheckedAt.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("limit did not keep the newest records: %+v", recs)
	}
}

func TestStatusCountsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	now := time.Now().UTC()
	for _, st := range []domain.Status{domain.StatusUp, domain.StatusUp, domain.StatusDown} {
		_, err := store.Append(context.Background(), tgt.ID, domain.CheckResult{Status: st, CheckedAt: now})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Outside the 24h window.
	_, err := store.Append(context.Background(), tgt.ID, domain.CheckResult{
		Status: domain.StatusDown, CheckedAt: now.Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec := doJSON(t, srv.Router(), http.MethodGet, fmt.Sprintf("/api/targets/%d/status-counts", tgt.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status-counts = %d", rec.Code)
	}
	var payload struct {
		Up    int64 `json:"up"`
		Down  int64 `json:"down"`
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Up != 2 || payload.Down != 1 || payload.Total != 3 {
		t.Fatalf("counts wrong: %+v", payload)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ms := 15.0
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		st := domain.StatusUp
		if i == 2 {
			st = domain.StatusDown
		}
		r := domain.CheckResult{Status: st, CheckedAt: now.Add(-time.Duration(4-i) * time.Hour)}
		if st == domain.StatusUp {
			r.ResponseTime = &ms
		}
		if _, err := store.Append(context.Background(), tgt.ID, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// days=2 keeps the seeded records inside the calendar-aligned window
	// even when the test runs just after midnight UTC.
	rec := doJSON(t, srv.Router(), http.MethodGet, fmt.Sprintf("/api/targets/%d/statistics?days=2", tgt.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics = %d: %s", rec.Code, rec.Body.String())
	}
	var rep stats.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.TotalChecks != 4 {
		t.Fatalf("total checks = %d, want 4", rep.TotalChecks)
	}
	if rep.UptimePercentage != 75.00 {
		t.Fatalf("uptime = %v, want 75.00", rep.UptimePercentage)
	}

	rec = doJSON(t, srv.Router(), http.MethodGet, "/api/targets/404/statistics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("statistics for missing target = %d, want 404", rec.Code)
	}
}
