package decision

import (
	"time"

	"github.com/aiops/fleet-intel/internal/models"
)

// Factor weights (§4.8): four built-in factors summing to 1.0.
const (
	weightSeverity   = 0.35
	weightTimeOfDay  = 0.15
	weightSuccess    = 0.25
	weightScope      = 0.25
	defaultSuccess   = 0.5
	businessHourFrom = 9
	businessHourTo   = 18
	nightHourFrom    = 0
	nightHourTo      = 6
)

func severityScore(s models.Severity) float64 {
	switch s {
	case models.SeverityInfo:
		return 0.1
	case models.SeverityWarning:
		return 0.4
	case models.SeverityCritical:
		return 0.8
	case models.SeverityEmergency:
		return 1.0
	default:
		return 0.4
	}
}

func timeOfDayScore(now time.Time) float64 {
	h := now.Hour()
	switch {
	case h >= businessHourFrom && h < businessHourTo:
		return 0.3
	case h >= nightHourFrom && h < nightHourTo:
		return 0.9
	default:
		return 0.6
	}
}

func scopeScore(scope models.ImpactScope) float64 {
	switch scope {
	case models.ScopeLocal:
		return 0.8
	case models.ScopePartial:
		return 0.5
	case models.ScopeWidespread:
		return 0.2
	default:
		return 0.8
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// scoreFactors computes the four §4.8 factors for one event, clamped
// to [0,1], given the historical success rate to date.
func scoreFactors(severity models.Severity, now time.Time, scope models.ImpactScope, historicalSuccessRate float64) []models.Factor {
	return []models.Factor{
		{Name: "severity", Score: clampUnit(severityScore(severity)), Weight: weightSeverity},
		{Name: "time_of_day", Score: clampUnit(timeOfDayScore(now)), Weight: weightTimeOfDay},
		{Name: "historical_success_rate", Score: clampUnit(historicalSuccessRate), Weight: weightSuccess},
		{Name: "affected_scope", Score: clampUnit(scopeScore(scope)), Weight: weightScope},
	}
}

// factorMap indexes factors by name for rule-condition lookups.
func factorMap(factors []models.Factor) map[string]float64 {
	out := make(map[string]float64, len(factors))
	for _, f := range factors {
		out[f.Name] = f.Score
	}
	return out
}

// historicalSuccessRate is the ratio of executed decisions in history
// that succeeded, defaulting to 0.5 on empty history (§4.8).
func historicalSuccessRate(history []models.Decision) float64 {
	executed := 0
	succeeded := 0
	for _, d := range history {
		if !d.Executed {
			continue
		}
		executed++
		if d.Succeeded != nil && *d.Succeeded {
			succeeded++
		}
	}
	if executed == 0 {
		return defaultSuccess
	}
	return float64(succeeded) / float64(executed)
}
