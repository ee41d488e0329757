// Package snapshot implements the configuration snapshot store (§4.9):
// capture, diff, dangerous-change detection, and retention.
package snapshot

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
)

// fetchTimeout bounds the device export call (§5: "default 10s for device").
const fetchTimeout = 10 * time.Second

// fullExportPath is the RouterOS-style command used to fetch the
// entire config as one export; sectionPaths is the per-section
// enumeration fallback (§4.9 "fallback to per-section enumeration").
const fullExportPath = "/export"

var sectionPaths = []string{
	"/interface", "/ip address", "/ip firewall filter", "/ip firewall nat",
	"/ip route", "/ip dns", "/ip service", "/system", "/user",
}

// Config configures a Manager.
type Config struct {
	DeviceID string
	DataDir  string
	Clock    func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Manager owns capture, diff, and retention of one device's
// configuration snapshots.
type Manager struct {
	deviceID string
	store    *store
	audit    *audit.Log
	clock    func() time.Time
	log      zerolog.Logger
}

func New(cfg Config, auditLog *audit.Log, log zerolog.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		deviceID: cfg.DeviceID,
		store:    newStore(filepath.Join(cfg.DataDir, "snapshots", cfg.DeviceID)),
		audit:    auditLog,
		clock:    cfg.Clock,
		log:      log,
	}
}

// CreateSnapshot fetches the device's full config, persists it,
// enforces retention, and — except for pre-remediation triggers —
// diffs against the previous snapshot and audits a dangerous-change
// entry if any pattern matches (§4.9).
func (m *Manager) CreateSnapshot(ctx context.Context, device collab.DeviceClient, trigger models.SnapshotTrigger) (models.ConfigSnapshot, error) {
	body, err := m.fetchConfig(ctx, device)
	if err != nil {
		return models.ConfigSnapshot{}, err
	}

	entry := models.ConfigSnapshot{
		ID:        uuid.NewString(),
		Timestamp: models.FromTime(m.clock()),
		Trigger:   trigger,
		Size:      len(body),
		Checksum:  checksum(body),
	}

	previous, hadPrevious, err := m.store.mostRecent()
	if err != nil {
		m.log.Warn().Err(err).Msg("snapshot: reading previous snapshot failed")
		hadPrevious = false
	}

	if err := m.store.save(entry, body); err != nil {
		return models.ConfigSnapshot{}, err
	}

	m.audit.Log("snapshot_created", m.deviceID, entry.ID, map[string]string{"trigger": string(trigger)})

	if trigger == models.TriggerPreRemediation || !hadPrevious {
		return entry, nil
	}

	previousBody, err := m.store.loadBody(previous.ID)
	if err != nil {
		m.log.Warn().Err(err).Msg("snapshot: loading previous body for diff failed")
		return entry, nil
	}

	diff := diffConfigs(previousBody, body)
	report := scanDangerousChanges(diff)
	if report.Detected {
		names := make([]string, 0, len(report.Patterns))
		for _, p := range report.Patterns {
			names = append(names, p.Name)
		}
		m.audit.Log("dangerous_change_detected", m.deviceID, entry.ID, map[string]string{
			"risk":     string(report.OverallRiskLevel),
			"patterns": strings.Join(names, ","),
		})
	}

	return entry, nil
}

// fetchConfig fetches the full config export, falling back to
// per-section enumeration if the device rejects the bulk export.
func (m *Manager) fetchConfig(ctx context.Context, device collab.DeviceClient) (string, error) {
	if device == nil {
		return "", apperr.New(apperr.Dependency, "snapshot.fetchConfig", "device client not available")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	if !device.IsConnected(fetchCtx) {
		return "", apperr.New(apperr.Dependency, "snapshot.fetchConfig", "device not connected")
	}

	if out, err := device.ExecuteRaw(fetchCtx, fullExportPath, nil); err == nil {
		if s, ok := out.(string); ok && s != "" {
			return s, nil
		}
	}

	var b strings.Builder
	for _, path := range sectionPaths {
		records, err := device.Print(fetchCtx, path)
		if err != nil {
			continue
		}
		b.WriteString(path)
		b.WriteString("\n")
		for _, rec := range records {
			for k, v := range rec {
				b.WriteString(k)
				b.WriteString("=")
				b.WriteString(v)
				b.WriteString(" ")
			}
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "", apperr.New(apperr.Dependency, "snapshot.fetchConfig", "device returned no configuration via export or per-section fallback")
	}
	return b.String(), nil
}

// Diff computes the keyed diff between two persisted snapshots.
func (m *Manager) Diff(fromID, toID string) (models.ConfigDiff, error) {
	from, err := m.store.loadBody(fromID)
	if err != nil {
		return models.ConfigDiff{}, err
	}
	to, err := m.store.loadBody(toID)
	if err != nil {
		return models.ConfigDiff{}, err
	}
	return diffConfigs(from, to), nil
}

// List returns the retained snapshot index, newest first.
func (m *Manager) List() ([]models.ConfigSnapshot, error) {
	snaps, err := m.store.loadIndex()
	if err != nil {
		return nil, err
	}
	return snaps, nil
}
