// Package decision implements the decision engine (§4.8): factor
// scoring, rule matching, and action execution (auto_execute,
// notify_and_wait, escalate, silence).
package decision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
)

// RemediationExecutor is the subset of internal/remediation's Manager
// the decision engine's auto_execute action depends on.
type RemediationExecutor interface {
	CreatePlan(deviceID, alertID, title string, risk models.RiskLevel, steps []models.RemediationStep) (models.RemediationPlan, error)
	Execute(ctx context.Context, planID string, device collab.DeviceClient) (models.RemediationExecution, error)
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

// Manager evaluates decision rules against a scored event and executes
// the chosen action.
type Manager struct {
	mu sync.RWMutex

	deviceID    string
	store       *store
	audit       *audit.Log
	dispatcher  collab.NotificationDispatcher
	remediation RemediationExecutor
	clock       func() time.Time
	log         zerolog.Logger

	rules []models.DecisionRule
}

func New(cfg Config, auditLog *audit.Log, dispatcher collab.NotificationDispatcher, remediation RemediationExecutor, log zerolog.Logger) (*Manager, error) {
	cfg = cfg.withDefaults()
	s := newStore(cfg.DataDir)
	rules, err := s.loadRules()
	if err != nil {
		return nil, err
	}

	return &Manager{
		deviceID:    cfg.DeviceID,
		store:       s,
		audit:       auditLog,
		dispatcher:  dispatcher,
		remediation: remediation,
		clock:       cfg.Clock,
		log:         log,
		rules:       rules,
	}, nil
}

// Reload re-reads decisions/rules.json from disk and replaces the
// in-memory rule set. Intended for external-edit hot-reload (fsnotify
// watching decisions/rules.json).
func (m *Manager) Reload() error {
	rules, err := m.store.loadRules()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = rules
	return nil
}

// CreateRule adds a decision rule and persists the rule set.
func (m *Manager) CreateRule(r models.DecisionRule) (models.DecisionRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
	if err := m.store.saveRules(m.rules); err != nil {
		return models.DecisionRule{}, err
	}
	return r, nil
}

// DeleteRule removes a rule by ID.
func (m *Manager) DeleteRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return m.store.saveRules(m.rules)
		}
	}
	return apperr.New(apperr.NotFound, "decision.DeleteRule", "rule not found: "+id)
}

// GetHistory returns decisions in [from,to], newest first.
func (m *Manager) GetHistory(from, to models.UnixMilli) ([]models.Decision, error) {
	return m.store.queryHistory(m.deviceID, from, to)
}

// Evaluate scores an alert event, matches it against the rule set, and
// executes the chosen action. autoSteps is the remediation plan body
// to use if the matched action is auto_execute (derived by the caller
// from the triggering rule's AutoResponse field).
func (m *Manager) Evaluate(ctx context.Context, alertID string, severity models.Severity, scope models.ImpactScope, channels []string, eventMessage string, autoSteps []models.RemediationStep, device collab.DeviceClient) (models.Decision, error) {
	now := m.clock()

	history, err := m.store.queryHistory(m.deviceID, 0, 0)
	if err != nil {
		m.log.Warn().Err(err).Msg("decision: history lookup failed, using default success rate")
		history = nil
	}
	successRate := historicalSuccessRate(history)

	factors := scoreFactors(severity, now, scope, successRate)
	factorValues := factorMap(factors)

	m.mu.RLock()
	rules := append([]models.DecisionRule{}, m.rules...)
	m.mu.RUnlock()

	matched, ok := matchRule(rules, factorValues)
	action := models.ActionNotifyAndWait
	matchedRuleID := ""
	if ok {
		action = matched.Action
		matchedRuleID = matched.ID
	}

	d := models.Decision{
		ID:            uuid.NewString(),
		AlertID:       alertID,
		Timestamp:     models.FromTime(now),
		Action:        action,
		Reasoning:     buildReasoning(factors, matchedRuleID, ok),
		Factors:       factors,
		MatchedRuleID: matchedRuleID,
	}

	m.execute(ctx, &d, severity, channels, eventMessage, autoSteps, device)

	if err := m.store.appendHistory(m.deviceID, now.UTC().Format("2006-01-02"), d); err != nil {
		return d, err
	}
	return d, nil
}

func buildReasoning(factors []models.Factor, ruleID string, matched bool) string {
	var b strings.Builder
	b.WriteString("factors: ")
	for i, f := range factors {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%.2f(w=%.2f)", f.Name, f.Score, f.Weight)
	}
	if matched {
		fmt.Fprintf(&b, "; matched rule %s", ruleID)
	} else {
		b.WriteString("; no rule matched, defaulted to notify_and_wait")
	}
	return b.String()
}

func priorityFor(severity models.Severity) string {
	if severity == models.SeverityCritical || severity == models.SeverityEmergency {
		return "high"
	}
	return "normal"
}

// execute dispatches d.Action, mutating d's Executed/ExecutionResult
// fields and auditing the outcome (§4.8 "Execution").
func (m *Manager) execute(ctx context.Context, d *models.Decision, severity models.Severity, channels []string, message string, autoSteps []models.RemediationStep, device collab.DeviceClient) {
	switch d.Action {
	case models.ActionAutoExecute:
		m.executeAuto(ctx, d, autoSteps, device)
	case models.ActionNotifyAndWait:
		m.notify(ctx, d, channels, message, priorityFor(severity))
	case models.ActionEscalate:
		m.notify(ctx, d, channels, message, "high")
	case models.ActionSilence:
		// audit only, no channel send
	}

	m.audit.Log("decision_made", m.deviceID, d.AlertID, map[string]string{
		"decisionId": d.ID,
		"action":     string(d.Action),
	})
}

func (m *Manager) executeAuto(ctx context.Context, d *models.Decision, steps []models.RemediationStep, device collab.DeviceClient) {
	if m.remediation == nil || len(steps) == 0 {
		d.ExecutionResult = "no remediation executor or steps configured"
		return
	}

	plan, err := m.remediation.CreatePlan(m.deviceID, d.AlertID, "auto-remediation for "+d.AlertID, models.RiskLow, steps)
	if err != nil {
		d.Executed = false
		d.ExecutionResult = err.Error()
		return
	}

	exec, err := m.remediation.Execute(ctx, plan.ID, device)
	d.Executed = true
	if err != nil {
		succeeded := false
		d.Succeeded = &succeeded
		d.ExecutionResult = err.Error()
		return
	}

	succeeded := exec.Status == models.RemediationCompleted
	d.Succeeded = &succeeded
	d.ExecutionResult = string(exec.Status)
}

func (m *Manager) notify(ctx context.Context, d *models.Decision, channels []string, message, priority string) {
	if m.dispatcher == nil || len(channels) == 0 {
		return
	}
	_ = m.dispatcher.Send(ctx, channels, collab.Notification{
		Type:     "decision_" + string(d.Action),
		Title:    "Decision: " + string(d.Action),
		Body:     message,
		Data:     map[string]any{"decisionId": d.ID, "alertId": d.AlertID},
		Priority: priority,
	})
}
