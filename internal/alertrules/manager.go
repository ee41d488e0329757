// Package alertrules owns alert rule lifecycle and evaluates rules
// against each incoming device sample (§4.4): CRUD, enable/disable,
// evaluate, active-alert and history queries, and manual resolution.
package alertrules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// shortHistoryWindow and extendedHistoryWindow bound the interface
// traffic rate lookup (§4.4 step 2): try 30s, then fall back to 120s.
const (
	shortHistoryWindow    = 30 * time.Second
	extendedHistoryWindow = 120 * time.Second
)

// Sample is one tick's worth of device readings passed to Evaluate.
type Sample struct {
	System     models.SystemSample
	Interfaces map[string]models.InterfaceSample
}

// RateLookup resolves the average rx+tx rate, in bytes/sec, for the
// named interface over the trailing window. ok is false when there is
// no history in that window (§4.4 step 2's 30s→120s fallback is driven
// by calling this twice with different windows).
type RateLookup func(ifaceName string, window time.Duration) (ratePerSec float64, ok bool)

// Manager owns rule CRUD, per-rule trigger state, and evaluation for a
// single device. One Manager exists per monitored device, mirroring
// the teacher's per-resource threshold bookkeeping but scoped here to
// rule-level consecutive-count/cooldown tracking (§3's RuleTriggerState).
type Manager struct {
	mu sync.RWMutex

	deviceID   string
	store      *store
	audit      *audit.Log
	dispatcher collab.NotificationDispatcher
	rateLookup RateLookup
	clock      func() time.Time
	log        zerolog.Logger

	rules   map[string]*models.AlertRule
	trigger map[string]*models.RuleTriggerState
	active  map[string]*models.AlertEvent // keyed by ruleID
}

// Config configures a Manager.
type Config struct {
	DeviceID   string
	DataDir    string
	RateLookup RateLookup
	Clock      func() time.Time
}

// New constructs a Manager, loading any previously persisted rules.
func New(cfg Config, auditLog *audit.Log, dispatcher collab.NotificationDispatcher, log zerolog.Logger) (*Manager, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	m := &Manager{
		deviceID:   cfg.DeviceID,
		store:      newStore(cfg.DataDir),
		audit:      auditLog,
		dispatcher: dispatcher,
		rateLookup: cfg.RateLookup,
		clock:      clock,
		log:        log.With().Str("component", "alertrules").Str("device", cfg.DeviceID).Logger(),
		rules:      make(map[string]*models.AlertRule),
		trigger:    make(map[string]*models.RuleTriggerState),
		active:     make(map[string]*models.AlertEvent),
	}

	rules, err := m.store.loadRules()
	if err != nil {
		return nil, err
	}
	for i := range rules {
		r := rules[i]
		m.rules[r.ID] = &r
	}
	return m, nil
}

// Reload re-reads rules.json from disk and replaces the in-memory rule
// set, preserving trigger state and active alerts for rules that still
// exist. Intended for external-edit hot-reload (fsnotify watching
// alerts/<deviceID>/rules.json).
func (m *Manager) Reload() error {
	rules, err := m.store.loadRules()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = make(map[string]*models.AlertRule, len(rules))
	for i := range rules {
		r := rules[i]
		m.rules[r.ID] = &r
	}
	return nil
}

// CreateRule assigns an id and persists a new rule.
func (m *Manager) CreateRule(r models.AlertRule) (models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := models.FromTime(m.clock())
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.rules[r.ID] = &r

	if err := m.persistRulesLocked(); err != nil {
		return models.AlertRule{}, err
	}
	return r, nil
}

// UpdateRule replaces an existing rule's mutable fields by id.
func (m *Manager) UpdateRule(r models.AlertRule) (models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[r.ID]
	if !ok {
		return models.AlertRule{}, apperr.New(apperr.NotFound, "alertrules.UpdateRule", "rule not found: "+r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.LastTriggeredAt = existing.LastTriggeredAt
	r.UpdatedAt = models.FromTime(m.clock())
	m.rules[r.ID] = &r

	if err := m.persistRulesLocked(); err != nil {
		return models.AlertRule{}, err
	}
	return r, nil
}

// DeleteRule removes a rule. Any active alert for it is auto-resolved
// without notification on the next evaluation (§4.4 step 1).
func (m *Manager) DeleteRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return apperr.New(apperr.NotFound, "alertrules.DeleteRule", "rule not found: "+id)
	}
	delete(m.rules, id)
	delete(m.trigger, id)
	return m.persistRulesLocked()
}

// SetEnabled toggles a rule's Enabled flag.
func (m *Manager) SetEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return apperr.New(apperr.NotFound, "alertrules.SetEnabled", "rule not found: "+id)
	}
	r.Enabled = enabled
	r.UpdatedAt = models.FromTime(m.clock())
	return m.persistRulesLocked()
}

func (m *Manager) persistRulesLocked() error {
	rules := make([]models.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, *r)
	}
	return m.store.saveRules(rules)
}

// GetRule returns a copy of a single rule by id, for callers (e.g. the
// bootstrap bridge from GetActiveAlerts to the pipeline) that need a
// triggered alert's Channels/AutoResponse.
func (m *Manager) GetRule(id string) (models.AlertRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return models.AlertRule{}, false
	}
	return *r, true
}

// GetActiveAlerts returns a snapshot of currently active alert events.
func (m *Manager) GetActiveAlerts() []models.AlertEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.AlertEvent, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, *a)
	}
	return out
}

// GetAlertHistory returns persisted alert events in [from,to].
func (m *Manager) GetAlertHistory(from, to models.UnixMilli) ([]models.AlertEvent, error) {
	return m.store.queryHistory(m.deviceID, from, to)
}

// ResolveAlert manually resolves an active alert by id.
func (m *Manager) ResolveAlert(id string) error {
	m.mu.Lock()
	var target *models.AlertEvent
	for _, a := range m.active {
		if a.ID == id {
			target = a
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return apperr.New(apperr.NotFound, "alertrules.ResolveAlert", "active alert not found: "+id)
	}
	m.resolveLocked(target, "manual")
	ruleID := target.RuleID
	m.mu.Unlock()

	m.audit.Log("alert_resolve", m.deviceID, ruleID, map[string]string{"alertId": id, "reason": "manual"})
	return nil
}

func (m *Manager) resolveLocked(a *models.AlertEvent, reason string) {
	now := models.FromTime(m.clock())
	a.Status = models.AlertResolved
	a.ResolvedAt = &now
	a.ResolveReason = reason
	delete(m.active, a.RuleID)

	if err := m.store.appendHistory(m.deviceID, now.DayPartition(), *a); err != nil {
		m.log.Error().Err(err).Str("alertID", a.ID).Msg("failed to persist resolved alert")
	}
}

// Evaluate runs one tick of the algorithm in §4.4: recovery check over
// active alerts, then per-rule threshold evaluation.
func (m *Manager) Evaluate(ctx context.Context, sample Sample) {
	m.mu.Lock()
	now := m.clock()

	m.runRecoveryChecksLocked(sample, now)

	rules := make([]*models.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	m.mu.Unlock()

	for _, r := range rules {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					m.log.Error().Interface("panic", rec).Str("ruleID", r.ID).Msg("rule evaluation panicked, skipping")
				}
			}()
			m.evaluateRule(ctx, r, sample, now)
		}()
	}
}

func (m *Manager) runRecoveryChecksLocked(sample Sample, now time.Time) {
	for ruleID, a := range m.active {
		r, ruleExists := m.rules[ruleID]
		if !ruleExists {
			m.resolveLocked(a, "rule_deleted")
			continue
		}

		holds, _, ok := m.currentlyMet(r, sample)
		if !ok {
			continue
		}
		if holds {
			continue
		}

		m.resolveLocked(a, "condition_cleared")
		if !r.Enabled {
			continue
		}
		m.audit.Log("alert_resolve", m.deviceID, ruleID, map[string]string{"alertId": a.ID})
		if m.dispatcher != nil {
			_ = m.dispatcher.Send(context.Background(), r.Channels, collab.Notification{
				Type:  "alert_resolved",
				Title: fmt.Sprintf("Resolved: %s", r.Name),
				Body:  a.Message,
				Data:  map[string]any{"alertId": a.ID, "ruleId": ruleID},
			})
		}
	}
}

// evaluateRule implements §4.4 steps 2-5 for a single rule.
func (m *Manager) evaluateRule(ctx context.Context, r *models.AlertRule, sample Sample, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !r.Enabled {
		return
	}
	if r.LastTriggeredAt != nil && now.Sub(r.LastTriggeredAt.Time()) < time.Duration(r.CooldownMs)*time.Millisecond {
		return
	}
	if _, active := m.active[r.ID]; active {
		return
	}

	met, value, ok := m.currentlyMet(r, sample)
	if !ok {
		return
	}

	state, exists := m.trigger[r.ID]
	if !exists {
		state = &models.RuleTriggerState{RuleID: r.ID}
		m.trigger[r.ID] = state
	}

	if met {
		state.ConsecutiveCount++
	} else {
		state.ConsecutiveCount = 0
	}
	state.LastEvaluatedAt = models.FromTime(now)

	if state.ConsecutiveCount < r.DurationSamples {
		return
	}

	event := &models.AlertEvent{
		ID:           uuid.NewString(),
		RuleID:       r.ID,
		RuleName:     r.Name,
		Severity:     r.Severity,
		Metric:       r.Metric,
		CurrentValue: value,
		Threshold:    r.Threshold,
		Message:      fmt.Sprintf("%s: %s %s %.2f (current %.2f)", r.Name, r.Metric, r.Operator, r.Threshold, value),
		Status:       models.AlertActive,
		TriggeredAt:  models.FromTime(now),
	}
	m.active[r.ID] = event
	state.ConsecutiveCount = 0
	triggeredAt := models.FromTime(now)
	r.LastTriggeredAt = &triggeredAt

	if err := m.persistRulesLocked(); err != nil {
		m.log.Error().Err(err).Str("ruleID", r.ID).Msg("failed to persist rule after trigger")
	}
	if err := m.store.appendHistory(m.deviceID, event.TriggeredAt.DayPartition(), *event); err != nil {
		m.log.Error().Err(err).Str("alertID", event.ID).Msg("failed to persist triggered alert")
	}
	m.audit.Log("alert_trigger", m.deviceID, r.ID, map[string]string{"alertId": event.ID, "severity": string(r.Severity)})

	if m.dispatcher != nil {
		_ = m.dispatcher.Send(ctx, r.Channels, collab.Notification{
			Type:     "alert_triggered",
			Title:    r.Name,
			Body:     event.Message,
			Data:     map[string]any{"alertId": event.ID, "ruleId": r.ID},
			Priority: priorityFor(r.Severity),
		})
	}
}

func priorityFor(s models.Severity) string {
	if s.Rank() >= models.SeverityCritical.Rank() {
		return "high"
	}
	return "normal"
}

// currentlyMet evaluates a rule's condition against sample. ok is false
// when the metric's current value could not be determined (missing
// interface, empty history window), meaning the rule must be skipped
// entirely this tick rather than treated as unmet (§4.4 step 2).
func (m *Manager) currentlyMet(r *models.AlertRule, sample Sample) (met bool, value float64, ok bool) {
	switch r.Metric {
	case models.MetricCPU:
		return evalOperator(r.Operator, sample.System.CPUPct, r.Threshold), sample.System.CPUPct, true
	case models.MetricMemory:
		used := 100 - sample.System.MemFreePct
		return evalOperator(r.Operator, used, r.Threshold), used, true
	case models.MetricDisk:
		used := 100 - sample.System.DiskFreePct
		return evalOperator(r.Operator, used, r.Threshold), used, true
	case models.MetricInterfaceStatus:
		iface, found := sample.Interfaces[r.MetricLabel]
		if !found {
			m.log.Warn().Str("interface", r.MetricLabel).Str("ruleID", r.ID).Msg("interface not present in sample, skipping rule")
			return false, 0, false
		}
		target := r.EffectiveTargetStatus()
		statusValue := 0.0
		if iface.Status == models.InterfaceUp {
			statusValue = 1
		}
		return iface.Status == target, statusValue, true
	case models.MetricInterfaceTraffic:
		if m.rateLookup == nil {
			return false, 0, false
		}
		rate, found := m.rateLookup(r.MetricLabel, shortHistoryWindow)
		if !found {
			rate, found = m.rateLookup(r.MetricLabel, extendedHistoryWindow)
		}
		if !found {
			return false, 0, false
		}
		kbps := rate / 1024
		return evalOperator(r.Operator, kbps, r.Threshold), kbps, true
	default:
		return false, 0, false
	}
}

func evalOperator(op models.Operator, value, threshold float64) bool {
	switch op {
	case models.OpGT:
		return value > threshold
	case models.OpLT:
		return value < threshold
	case models.OpGTE:
		return value >= threshold
	case models.OpLTE:
		return value <= threshold
	case models.OpEQ:
		return value == threshold
	case models.OpNE:
		return value != threshold
	default:
		return false
	}
}
