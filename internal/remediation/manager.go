// Package remediation implements the delegated-execution state machine
// the decision engine's auto_execute action hands plans to
// ((ADDED) remediation planner hooks, named in the §2 share table).
package remediation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
)

// stepTimeout bounds a single remediation step's device call (§5).
const stepTimeout = 10 * time.Second

// Config configures a Manager.
type Config struct {
	DataDir string
	Clock   func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// SnapshotTaker is the subset of internal/snapshot's Manager a
// remediation Manager depends on: a best-effort pre-remediation
// configuration capture (§4.9: "A pre-restore snapshot is always
// taken first", generalized here to "a pre-execution snapshot").
// deviceID lets one fleet-wide Manager route the capture to the
// right per-device snapshot store (internal/snapshot.Manager is
// itself bound to a single device).
type SnapshotTaker interface {
	CreateSnapshot(ctx context.Context, deviceID string, device collab.DeviceClient, trigger models.SnapshotTrigger) (models.ConfigSnapshot, error)
}

// Manager owns remediation plan/execution bookkeeping and the
// approval-rule set that lets certain plan categories bypass manual
// approval (§4.8 auto_execute, (ADDED) remediation planner hooks).
type Manager struct {
	mu sync.RWMutex

	cfg      Config
	audit    *audit.Log
	dir      string
	log      zerolog.Logger
	snapshot SnapshotTaker

	plans      map[string]models.RemediationPlan
	executions map[string]models.RemediationExecution
	approvals  []models.ApprovalRule
}

func New(cfg Config, auditLog *audit.Log, log zerolog.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:        cfg,
		audit:      auditLog,
		dir:        filepath.Join(cfg.DataDir, "remediation"),
		log:        log,
		plans:      make(map[string]models.RemediationPlan),
		executions: make(map[string]models.RemediationExecution),
	}
}

// SetSnapshotTaker wires a pre-remediation snapshot source. Optional:
// a nil taker (the default) skips the pre-execution capture.
func (m *Manager) SetSnapshotTaker(taker SnapshotTaker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = taker
}

// SetApprovalRules replaces the pre-authorized autonomous-execution
// rule set.
func (m *Manager) SetApprovalRules(rules []models.ApprovalRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals = append([]models.ApprovalRule{}, rules...)
}

// CreatePlan stores a new plan awaiting approval and returns it.
func (m *Manager) CreatePlan(deviceID, alertID, title string, risk models.RiskLevel, steps []models.RemediationStep) (models.RemediationPlan, error) {
	if len(steps) == 0 {
		return models.RemediationPlan{}, apperr.New(apperr.Validation, "remediation.CreatePlan", "plan must have at least one step")
	}

	plan := models.RemediationPlan{
		ID:        uuid.NewString(),
		AlertID:   alertID,
		DeviceID:  deviceID,
		Title:     title,
		RiskLevel: risk,
		Steps:     steps,
		CreatedAt: models.FromTime(m.cfg.Clock()),
	}

	m.mu.Lock()
	m.plans[plan.ID] = plan
	m.mu.Unlock()

	m.audit.Log("remediation_plan_created", deviceID, plan.ID, map[string]string{"alertId": alertID, "risk": string(risk)})
	return plan, nil
}

// autoApproved reports whether plan's risk level is covered by an
// enabled approval rule, letting it skip the manual approval step.
func (m *Manager) autoApproved(plan models.RemediationPlan) bool {
	for _, r := range m.approvals {
		if !r.Enabled {
			continue
		}
		if plan.RiskLevel.Rank() <= r.MaxRiskLevel.Rank() {
			return true
		}
	}
	return false
}

// Execute runs plan's steps in order via device, stopping at the first
// failure and rolling back completed steps that define a Rollback
// command. Approval is checked up front against the approval rules; the
// execution record starts as running and ends as completed, or as
// rolled_back after a failed step, and is persisted after every step.
func (m *Manager) Execute(ctx context.Context, planID string, device collab.DeviceClient) (models.RemediationExecution, error) {
	m.mu.Lock()
	plan, ok := m.plans[planID]
	if !ok {
		m.mu.Unlock()
		return models.RemediationExecution{}, apperr.New(apperr.NotFound, "remediation.Execute", "plan not found: "+planID)
	}
	approved := m.autoApproved(plan)
	m.mu.Unlock()

	if !approved {
		return models.RemediationExecution{}, apperr.New(apperr.State, "remediation.Execute", "plan requires approval before execution")
	}

	m.mu.RLock()
	taker := m.snapshot
	m.mu.RUnlock()
	if taker != nil {
		if _, err := taker.CreateSnapshot(ctx, plan.DeviceID, device, models.TriggerPreRemediation); err != nil {
			m.log.Warn().Err(err).Str("planId", planID).Msg("remediation: pre-remediation snapshot failed, proceeding anyway")
		}
	}

	now := models.FromTime(m.cfg.Clock())
	exec := models.RemediationExecution{
		ID:        uuid.NewString(),
		PlanID:    planID,
		Status:    models.RemediationRunning,
		StartedAt: &now,
	}
	m.saveExecution(exec)
	m.audit.Log("remediation_execute_start", plan.DeviceID, plan.ID, map[string]string{"executionId": exec.ID})

	var failedAt int = -1
	for i, step := range plan.Steps {
		result := m.runStep(ctx, device, step)
		exec.StepResults = append(exec.StepResults, result)
		exec.CurrentStep = i + 1
		m.saveExecution(exec)
		if !result.Success {
			failedAt = i
			break
		}
	}

	completed := models.FromTime(m.cfg.Clock())
	exec.CompletedAt = &completed

	if failedAt >= 0 {
		exec.Status = models.RemediationFailed
		exec.Error = exec.StepResults[len(exec.StepResults)-1].Error
		m.rollback(ctx, device, plan, failedAt)
		exec.Status = models.RemediationRolledBack
	} else {
		exec.Status = models.RemediationCompleted
	}

	m.saveExecution(exec)
	m.audit.Log("remediation_execute_finish", plan.DeviceID, plan.ID, map[string]string{
		"executionId": exec.ID,
		"status":      string(exec.Status),
	})
	return exec, nil
}

func (m *Manager) runStep(ctx context.Context, device collab.DeviceClient, step models.RemediationStep) models.StepResult {
	start := m.cfg.Clock()
	stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	res := models.StepResult{Step: step.Order, RanAt: models.FromTime(start)}

	if device == nil || !device.IsConnected(stepCtx) {
		res.Error = "device unavailable"
		res.Duration = m.cfg.Clock().Sub(start).Milliseconds()
		return res
	}

	out, err := device.ExecuteRaw(stepCtx, step.Command, map[string]string{"target": step.Target})
	res.Duration = m.cfg.Clock().Sub(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Output = fmt.Sprintf("%v", out)
	return res
}

// rollback runs Rollback commands for every step that succeeded up to
// and including failedAt's predecessors, most recent first.
func (m *Manager) rollback(ctx context.Context, device collab.DeviceClient, plan models.RemediationPlan, failedAt int) {
	for i := failedAt - 1; i >= 0; i-- {
		step := plan.Steps[i]
		if step.Rollback == "" {
			continue
		}
		rollbackCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		if device != nil && device.IsConnected(rollbackCtx) {
			if _, err := device.ExecuteRaw(rollbackCtx, step.Rollback, nil); err != nil {
				m.log.Warn().Err(err).Int("step", step.Order).Msg("remediation: rollback step failed")
			}
		}
		cancel()
	}
}

func (m *Manager) saveExecution(exec models.RemediationExecution) {
	m.mu.Lock()
	m.executions[exec.ID] = exec
	m.mu.Unlock()

	if err := m.persist(exec); err != nil {
		m.log.Warn().Err(err).Str("executionId", exec.ID).Msg("remediation: persisting execution failed")
	}
}

func (m *Manager) persist(exec models.RemediationExecution) error {
	day := m.cfg.Clock().UTC().Format("2006-01-02")
	path := filepath.Join(m.dir, "executions", day+".json")

	m.mu.Lock()
	defer m.mu.Unlock()

	var execs []models.RemediationExecution
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &execs); err != nil {
			return apperr.Wrap(apperr.IO, "remediation.persist", "corrupt execution file", err)
		}
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.IO, "remediation.persist", "reading execution file", err)
	}

	replaced := false
	for i := range execs {
		if execs[i].ID == exec.ID {
			execs[i] = exec
			replaced = true
			break
		}
	}
	if !replaced {
		execs = append(execs, exec)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "remediation.persist", "creating executions dir", err)
	}
	data, err := json.Marshal(execs)
	if err != nil {
		return apperr.Wrap(apperr.IO, "remediation.persist", "marshaling executions", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "remediation.persist", "writing executions file", err)
	}
	return nil
}

// GetExecution returns a previously recorded execution.
func (m *Manager) GetExecution(id string) (models.RemediationExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executions[id]
	return e, ok
}
