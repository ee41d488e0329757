package decision

import (
	"math"
	"sort"

	"github.com/aiops/fleet-intel/internal/models"
)

const eqEpsilon = 0.001

func evalCondition(c models.DecisionRuleCondition, factors map[string]float64) bool {
	value, ok := factors[c.Factor]
	if !ok {
		return false
	}
	switch c.Operator {
	case models.OpGT:
		return value > c.Value
	case models.OpLT:
		return value < c.Value
	case models.OpGTE:
		return value >= c.Value
	case models.OpLTE:
		return value <= c.Value
	case models.OpEQ:
		return math.Abs(value-c.Value) < eqEpsilon
	case models.OpNE:
		return math.Abs(value-c.Value) >= eqEpsilon
	default:
		return false
	}
}

// matchRule finds the lowest-priority rule whose conditions all match
// factors (an empty condition list always matches — the fallback
// rule), returning it and ok=true, or ok=false on no match at all.
func matchRule(rules []models.DecisionRule, factors map[string]float64) (models.DecisionRule, bool) {
	sorted := append([]models.DecisionRule{}, rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	for _, r := range sorted {
		allMatch := true
		for _, c := range r.Conditions {
			if !evalCondition(c, factors) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return r, true
		}
	}
	return models.DecisionRule{}, false
}
