package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiops/fleet-intel/internal/models"
	"github.com/rs/zerolog"
)

func TestParseUptime(t *testing.T) {
	cases := map[string]int64{
		"1w2d3h4m5s": 7*24*3600 + 2*24*3600 + 3*3600 + 4*60 + 5,
		"3h4m5s":     3*3600 + 4*60 + 5,
		"45s":        45,
	}
	for in, want := range cases {
		got, err := ParseUptime(in)
		if err != nil {
			t.Fatalf("ParseUptime(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("ParseUptime(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseUptimeRejectsGarbage(t *testing.T) {
	if _, err := ParseUptime("not-an-uptime"); err == nil {
		t.Fatal("expected error for unrecognized uptime format")
	}
}

type fakeDevice struct {
	connected bool
	system    []map[string]string
	ifaces    []map[string]string
	err       error
}

func (f *fakeDevice) IsConnected(ctx context.Context) bool { return f.connected }
func (f *fakeDevice) Print(ctx context.Context, path string) ([]map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if path == "/system/resource" {
		return f.system, nil
	}
	return f.ifaces, nil
}
func (f *fakeDevice) ExecuteRaw(ctx context.Context, path string, params map[string]string) (any, error) {
	return nil, nil
}

func TestCollectNowPersistsSample(t *testing.T) {
	dev := &fakeDevice{
		connected: true,
		system: []map[string]string{{
			"cpu-load": "42", "total-memory": "1000", "free-memory": "400",
			"total-hdd-space": "2000", "free-hdd-space": "1000", "uptime": "1d2h3m4s",
		}},
		ifaces: []map[string]string{{"name": "ether1", "running": "true", "rx-byte": "100", "tx-byte": "200"}},
	}
	store := NewStore(filepath.Join(t.TempDir(), "metrics"))
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	c := New(dev, store, Config{DeviceID: "dev1", Clock: func() time.Time { return now }}, zerolog.Nop())

	sys, ifaces, err := c.CollectNow(context.Background())
	if err != nil {
		t.Fatalf("CollectNow() error = %v", err)
	}
	if sys.CPUPct != 42 {
		t.Errorf("CPUPct = %v, want 42", sys.CPUPct)
	}
	if sys.MemUsed != 600 {
		t.Errorf("MemUsed = %v, want 600", sys.MemUsed)
	}
	if len(ifaces) != 1 || ifaces[0].Status != models.InterfaceUp {
		t.Errorf("unexpected interfaces: %+v", ifaces)
	}

	history, err := store.GetHistory("dev1", "cpu", models.FromTime(now.Add(-time.Hour)), models.FromTime(now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].Value != 42 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestCollectorRecordsConsecutiveFailures(t *testing.T) {
	dev := &fakeDevice{connected: false}
	store := NewStore(filepath.Join(t.TempDir(), "metrics"))
	c := New(dev, store, Config{DeviceID: "dev1"}, zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.tick(ctx)
	}
	c.mu.RLock()
	n := c.consecutiveFailures
	c.mu.RUnlock()
	if n != 3 {
		t.Fatalf("consecutiveFailures = %d, want 3", n)
	}
}

func TestInterfaceHistoryByLabel(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "metrics"))
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	err := store.Append("dev1", now, models.SystemSample{Timestamp: models.FromTime(now)}, []models.InterfaceSample{
		{Timestamp: models.FromTime(now), Name: "ether1", RxBytes: 10, TxBytes: 20},
		{Timestamp: models.FromTime(now), Name: "ether2", RxBytes: 1, TxBytes: 1},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	points, err := store.GetHistory("dev1", "interface:ether1", models.FromTime(now.Add(-time.Minute)), models.FromTime(now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(points) != 1 || points[0].Value != 30 {
		t.Fatalf("unexpected points: %+v", points)
	}
}
