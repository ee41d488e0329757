package alertrules

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/rs/zerolog"
)

type fakeDispatcher struct {
	sent []collab.Notification
}

func (f *fakeDispatcher) Send(ctx context.Context, channels []string, n collab.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

func newTestManager(t *testing.T, now time.Time) (*Manager, *fakeDispatcher) {
	t.Helper()
	dir := t.TempDir()
	auditLog := audit.New(filepath.Join(dir, "audit"), 90, func() time.Time { return now }, zerolog.Nop())
	disp := &fakeDispatcher{}
	mgr, err := New(Config{
		DeviceID: "dev1",
		DataDir:  filepath.Join(dir, "alertrules"),
		Clock:    func() time.Time { return now },
	}, auditLog, disp, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return mgr, disp
}

func TestEvaluateTriggersAfterDurationSamples(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	mgr, disp := newTestManager(t, now)

	rule, err := mgr.CreateRule(models.AlertRule{
		Name: "High CPU", Enabled: true, Metric: models.MetricCPU, Operator: models.OpGTE,
		Threshold: 90, DurationSamples: 2, Severity: models.SeverityWarning, Channels: []string{"ops"},
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	sample := Sample{System: models.SystemSample{CPUPct: 95}}
	ctx := context.Background()

	mgr.Evaluate(ctx, sample)
	if len(mgr.GetActiveAlerts()) != 0 {
		t.Fatal("should not trigger on first sample")
	}

	mgr.Evaluate(ctx, sample)
	active := mgr.GetActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}
	if active[0].RuleID != rule.ID {
		t.Fatalf("unexpected rule id %q", active[0].RuleID)
	}
	if len(disp.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(disp.sent))
	}
}

func TestEvaluateRecoversActiveAlert(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)

	_, err := mgr.CreateRule(models.AlertRule{
		Name: "High CPU", Enabled: true, Metric: models.MetricCPU, Operator: models.OpGTE,
		Threshold: 90, DurationSamples: 1, Severity: models.SeverityWarning,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	ctx := context.Background()
	mgr.Evaluate(ctx, Sample{System: models.SystemSample{CPUPct: 95}})
	if len(mgr.GetActiveAlerts()) != 1 {
		t.Fatal("expected alert to trigger")
	}

	mgr.Evaluate(ctx, Sample{System: models.SystemSample{CPUPct: 10}})
	if len(mgr.GetActiveAlerts()) != 0 {
		t.Fatal("expected alert to recover once condition clears")
	}
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)

	_, err := mgr.CreateRule(models.AlertRule{
		Name: "High CPU", Enabled: true, Metric: models.MetricCPU, Operator: models.OpGTE,
		Threshold: 90, DurationSamples: 1, CooldownMs: int64(time.Hour / time.Millisecond), Severity: models.SeverityWarning,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	ctx := context.Background()
	mgr.Evaluate(ctx, Sample{System: models.SystemSample{CPUPct: 95}})
	mgr.Evaluate(ctx, Sample{System: models.SystemSample{CPUPct: 10}})
	if len(mgr.GetActiveAlerts()) != 0 {
		t.Fatal("expected resolve")
	}

	mgr.Evaluate(ctx, Sample{System: models.SystemSample{CPUPct: 95}})
	if len(mgr.GetActiveAlerts()) != 0 {
		t.Fatal("expected cooldown to suppress re-trigger")
	}
}

func TestEvaluateSkipsMissingInterface(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)

	_, err := mgr.CreateRule(models.AlertRule{
		Name: "Link down", Enabled: true, Metric: models.MetricInterfaceStatus, MetricLabel: "ether1",
		TargetStatus: string(models.InterfaceDown), DurationSamples: 1, Severity: models.SeverityCritical,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	mgr.Evaluate(context.Background(), Sample{System: models.SystemSample{}, Interfaces: map[string]models.InterfaceSample{}})
	if len(mgr.GetActiveAlerts()) != 0 {
		t.Fatal("expected no alert when interface is absent from sample")
	}
}

func TestResolveAlertManual(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)

	_, err := mgr.CreateRule(models.AlertRule{
		Name: "High CPU", Enabled: true, Metric: models.MetricCPU, Operator: models.OpGTE,
		Threshold: 90, DurationSamples: 1, Severity: models.SeverityWarning,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	mgr.Evaluate(context.Background(), Sample{System: models.SystemSample{CPUPct: 95}})
	active := mgr.GetActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected alert to trigger, got %d", len(active))
	}

	if err := mgr.ResolveAlert(active[0].ID); err != nil {
		t.Fatalf("ResolveAlert() error = %v", err)
	}
	if len(mgr.GetActiveAlerts()) != 0 {
		t.Fatal("expected alert to be removed from active set")
	}

	history, err := mgr.GetAlertHistory(0, 0)
	if err != nil {
		t.Fatalf("GetAlertHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].Status != models.AlertResolved {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestInterfaceTrafficFallsBackToExtendedWindow(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	auditLog := audit.New(filepath.Join(dir, "audit"), 90, func() time.Time { return now }, zerolog.Nop())
	calls := 0
	mgr, err := New(Config{
		DeviceID: "dev1",
		DataDir:  filepath.Join(dir, "alertrules"),
		Clock:    func() time.Time { return now },
		RateLookup: func(name string, window time.Duration) (float64, bool) {
			calls++
			if window == shortHistoryWindow {
				return 0, false
			}
			return 200 * 1024, true // 200 KB/s
		},
	}, auditLog, &fakeDispatcher{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = mgr.CreateRule(models.AlertRule{
		Name: "High traffic", Enabled: true, Metric: models.MetricInterfaceTraffic, MetricLabel: "ether1",
		Operator: models.OpGT, Threshold: 100, DurationSamples: 1, Severity: models.SeverityWarning,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	mgr.Evaluate(context.Background(), Sample{})
	if calls != 2 {
		t.Fatalf("expected both windows to be tried, got %d calls", calls)
	}
	if len(mgr.GetActiveAlerts()) != 1 {
		t.Fatal("expected alert to trigger using extended window rate")
	}
}
