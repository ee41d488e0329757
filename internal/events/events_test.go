package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aiops/fleet-intel/internal/models"
)

func TestSyslogSeverityCategoryMapping(t *testing.T) {
	cases := map[int]models.Severity{
		0: models.SeverityEmergency,
		1: models.SeverityEmergency,
		2: models.SeverityCritical,
		3: models.SeverityWarning,
		4: models.SeverityWarning,
		5: models.SeverityInfo,
		7: models.SeverityInfo,
	}
	for numeric, want := range cases {
		if got := syslogSeverityCategory(numeric); got != want {
			t.Errorf("syslogSeverityCategory(%d) = %v, want %v", numeric, got, want)
		}
	}
}

func TestNormalizeSyslogUsesFirstNonEmptyTopic(t *testing.T) {
	e := NormalizeSyslog(SyslogInput{
		Topics:   []string{"", "interface", "link"},
		Severity: 3,
		Message:  "ether1 link down",
	}, models.FromTime(time.Now()))

	if e.Category != "interface" {
		t.Errorf("Category = %q, want interface", e.Category)
	}
	if e.Severity != models.SeverityWarning {
		t.Errorf("Severity = %v, want warning", e.Severity)
	}
	if e.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestNormalizeMetricCategory(t *testing.T) {
	e := NormalizeMetric(models.AlertEvent{
		RuleID: "r1", RuleName: "High CPU", Metric: models.MetricCPU, Severity: models.SeverityCritical,
	}, "dev1")
	if e.Category != "system" {
		t.Errorf("Category = %q, want system", e.Category)
	}
	if e.AlertRuleInfo == nil || e.AlertRuleInfo.RuleID != "r1" {
		t.Errorf("unexpected AlertRuleInfo: %+v", e.AlertRuleInfo)
	}
}

func TestAggregatorEmitsCompositeOnBurst(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	a := NewAggregator(func() time.Time { return now })

	var composite models.CompositeEvent
	var emitted bool
	for i := 0; i < 3; i++ {
		composite, emitted = a.Offer(models.UnifiedEvent{
			ID: "e", Timestamp: models.FromTime(now), Message: "connection reset by peer",
		})
	}
	if !emitted {
		t.Fatal("expected composite to be emitted after 3 connection-issue events")
	}
	if composite.Aggregation.Pattern != "connection-issue-burst" {
		t.Errorf("Pattern = %q", composite.Aggregation.Pattern)
	}
	if composite.Aggregation.Count != len(composite.ChildEventIDs) {
		t.Error("composite invariant violated: count != len(childEventIDs)")
	}
}

func TestAggregatorWindowExpiry(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	clock := now
	a := NewAggregator(func() time.Time { return clock })

	// Four events inside the window: one more would reach the burst's
	// MinCount of 5 if the earlier four were still counted.
	for i := 0; i < 4; i++ {
		a.Offer(models.UnifiedEvent{ID: "1", Timestamp: models.FromTime(clock), Message: "authentication failed"})
	}
	clock = clock.Add(2 * time.Minute)
	_, emitted := a.Offer(models.UnifiedEvent{ID: "2", Timestamp: models.FromTime(clock), Message: "authentication failed"})
	if emitted {
		t.Fatal("expected earlier event to fall outside window, not contribute to burst")
	}
}

func TestFlapDetectorEmitsAfterTwoChanges(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	fd := NewFlapDetector(func() time.Time { return now })

	fd.Observe("ether1", models.InterfaceUp, nil)
	_, emitted := fd.Observe("ether1", models.InterfaceDown, nil)
	if emitted {
		t.Fatal("first transition should not emit")
	}
	composite, emitted := fd.Observe("ether1", models.InterfaceUp, nil)
	if !emitted {
		t.Fatal("expected composite after second transition within window")
	}
	if composite.Aggregation.Pattern != "interface-flapping" {
		t.Errorf("Pattern = %q", composite.Aggregation.Pattern)
	}
}

func TestFlapDetectorIgnoresRepeatedSameStatus(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	fd := NewFlapDetector(func() time.Time { return now })

	fd.Observe("ether1", models.InterfaceUp, nil)
	_, emitted := fd.Observe("ether1", models.InterfaceUp, nil)
	if emitted {
		t.Fatal("no state change should never emit")
	}
}

func TestEnricherCachesAndFallsBackOnError(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	clock := now
	calls := 0
	en := NewEnricher(func(ctx context.Context, deviceID string) (models.DeviceInfo, error) {
		calls++
		if calls == 1 {
			return models.DeviceInfo{ID: deviceID, Hostname: "router1"}, nil
		}
		return models.DeviceInfo{}, errors.New("device unreachable")
	}, func() time.Time { return clock })

	e := models.UnifiedEvent{}
	en.Enrich(context.Background(), &e, "dev1")
	if e.DeviceInfo == nil || e.DeviceInfo.Hostname != "router1" {
		t.Fatalf("expected enrichment from lookup, got %+v", e.DeviceInfo)
	}

	e2 := models.UnifiedEvent{}
	en.Enrich(context.Background(), &e2, "dev1")
	if calls != 1 {
		t.Fatalf("expected cache hit to avoid second lookup, calls = %d", calls)
	}

	clock = clock.Add(DeviceInfoTTL + time.Second)
	e3 := models.UnifiedEvent{}
	en.Enrich(context.Background(), &e3, "dev1")
	if e3.DeviceInfo == nil || e3.DeviceInfo.Hostname != "router1" {
		t.Fatalf("expected stale cache fallback on lookup error, got %+v", e3.DeviceInfo)
	}
}
