package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTarget_Validate(t *testing.T) {
	base := Target{Name: "web", Kind: KindHTTP, Address: "https://example.com", Timeout: 10}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid target rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Target)
	}{
		{"missing name", func(tg *Target) { tg.Name = "" }},
		{"missing address", func(tg *Target) { tg.Address = "" }},
		{"bad kind", func(tg *Target) { tg.Kind = "gopher" }},
		{"zero timeout", func(tg *Target) { tg.Timeout = 0 }},
		{"negative timeout", func(tg *Target) { tg.Timeout = -3 }},
	}
	for _, c := range cases {
		tg := base
		c.mutate(&tg)
		if err := tg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestTarget_TimeoutDuration(t *testing.T) {
	tg := Target{Timeout: 3}
	if got := tg.TimeoutDuration(); got != 3*time.Second {
		t.Fatalf("want 3s, got %v", got)
	}
	tg.Timeout = 0
	if got := tg.TimeoutDuration(); got != DefaultTimeoutSeconds*time.Second {
		t.Fatalf("want default, got %v", got)
	}
}

func TestHistoryRecord_JSONRoundTrip(t *testing.T) {
	rt := 42.5
	want := HistoryRecord{
		ID:           7,
		TargetID:     3,
		CheckedAt:    time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC),
		Status:       StatusUp,
		ResponseTime: &rt,
	}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got HistoryRecord
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != want.ID || got.TargetID != want.TargetID || got.Status != want.Status ||
		!got.CheckedAt.Equal(want.CheckedAt) {
		t.Fatalf("mismatch after round-trip:\nwant=%+v\ngot =%+v", want, got)
	}
	if got.ResponseTime == nil || *got.ResponseTime != rt {
		t.Fatalf("response time lost: %+v", got.ResponseTime)
	}
}

func TestCheckResult_NullableLatency(t *testing.T) {
	b, err := json.Marshal(CheckResult{Status: StatusDown, Err: "Connection timeout", CheckedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := m["response_time"]; !ok || v != nil {
		t.Fatalf("expected explicit null response_time, got %v", m)
	}
}
