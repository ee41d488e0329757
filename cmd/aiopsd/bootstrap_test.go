package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/metrics"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/aiops/fleet-intel/internal/snapshot"
)

func TestToInterfaceMapIndexesByName(t *testing.T) {
	ifaces := []models.InterfaceSample{{Name: "ether1"}, {Name: "ether2"}}
	m := toInterfaceMap(ifaces)
	if len(m) != 2 {
		t.Fatalf("len = %d, want 2", len(m))
	}
	if _, ok := m["ether1"]; !ok {
		t.Fatal("missing ether1")
	}
}

func TestBuildRateLookupComputesBytesPerSecond(t *testing.T) {
	dir := t.TempDir()
	store := metrics.NewStore(dir)

	now := time.Now()
	if err := store.Append("dev1", now.Add(-time.Minute), models.SystemSample{}, []models.InterfaceSample{
		{Name: "ether1", RxBytes: 1000, TxBytes: 1000},
	}); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if err := store.Append("dev1", now, models.SystemSample{}, []models.InterfaceSample{
		{Name: "ether1", RxBytes: 7000, TxBytes: 7000},
	}); err != nil {
		t.Fatalf("Append 2: %v", err)
	}

	lookup := buildRateLookup(store, "dev1")
	rate, ok := lookup("ether1", 2*time.Minute)
	if !ok {
		t.Fatal("expected ok = true")
	}
	if rate <= 0 {
		t.Fatalf("rate = %v, want > 0", rate)
	}
}

func TestBuildRateLookupReturnsFalseForUnknownInterface(t *testing.T) {
	dir := t.TempDir()
	store := metrics.NewStore(dir)
	lookup := buildRateLookup(store, "dev1")
	if _, ok := lookup("ether9", time.Minute); ok {
		t.Fatal("expected ok = false for interface with no history")
	}
}

type fakeDeviceClient struct{}

func (fakeDeviceClient) IsConnected(ctx context.Context) bool { return true }
func (fakeDeviceClient) Print(ctx context.Context, path string) ([]map[string]string, error) {
	return nil, nil
}
func (fakeDeviceClient) ExecuteRaw(ctx context.Context, path string, params map[string]string) (any, error) {
	return "export output", nil
}

var _ collab.DeviceClient = fakeDeviceClient{}

func TestSnapshotRouterDispatchesToRegisteredDevice(t *testing.T) {
	dir := t.TempDir()
	auditLog := audit.New(filepath.Join(dir, "audit"), 90, time.Now, zerolog.Nop())
	mgr := snapshot.New(snapshot.Config{DeviceID: "dev1", DataDir: dir, Clock: time.Now}, auditLog, zerolog.Nop())

	router := newSnapshotRouter()
	router.register("dev1", mgr)

	snap, err := router.CreateSnapshot(context.Background(), "dev1", fakeDeviceClient{}, models.TriggerManual)
	if err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if snap.ID == "" {
		t.Fatal("expected a non-empty snapshot ID")
	}
}

func TestSnapshotRouterErrorsForUnregisteredDevice(t *testing.T) {
	router := newSnapshotRouter()
	if _, err := router.CreateSnapshot(context.Background(), "unknown", fakeDeviceClient{}, models.TriggerManual); err == nil {
		t.Fatal("expected error for unregistered device")
	}
}

// TestRunDaemonStartsAndStopsCleanly drives the full wiring with a
// minimal, device-less config and checks it shuts down on SIGINT
// without blocking forever, mirroring the teacher's signal-driven
// server lifecycle tests.
func TestRunDaemonStartsAndStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")

	cfgBody := map[string]any{
		"dataDir":              filepath.Join(dir, "data"),
		"logFormat":            "console",
		"logLevel":             "error",
		"metrics":              map[string]any{"intervalMs": 60000, "retentionDays": 7, "enabled": true},
		"snapshotRetentionMax": 10,
		"syslogListenAddr":     "",
		"devices":              []any{},
	}
	body, err := json.Marshal(cfgBody)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(cfgPath, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- runDaemon(cfgPath)
	}()

	time.Sleep(200 * time.Millisecond)
	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("signaling process: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runDaemon() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runDaemon did not stop after SIGINT")
	}
}
