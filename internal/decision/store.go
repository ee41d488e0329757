package decision

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/models"
)

const rulesFileName = "rules.json"

// store owns decision-rule and decision-history persistence under
// <dataDir>/{rules.json,history/<deviceID>-YYYY-MM-DD.json}, following
// the same layout internal/alertrules uses.
type store struct {
	mu  sync.Mutex
	dir string
}

func newStore(dir string) *store {
	return &store{dir: dir}
}

func (s *store) rulesPath() string {
	return filepath.Join(s.dir, rulesFileName)
}

func (s *store) historyPath(deviceID, day string) string {
	return filepath.Join(s.dir, "history", deviceID+"-"+day+".json")
}

func (s *store) loadRules() ([]models.DecisionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.rulesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "decision.loadRules", "reading rules file", err)
	}
	var rules []models.DecisionRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, apperr.Wrap(apperr.IO, "decision.loadRules", "corrupt rules file", err)
	}
	return rules, nil
}

func (s *store) saveRules(rules []models.DecisionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "decision.saveRules", "creating decision dir", err)
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return apperr.Wrap(apperr.IO, "decision.saveRules", "marshaling rules", err)
	}
	if err := os.WriteFile(s.rulesPath(), data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "decision.saveRules", "writing rules file", err)
	}
	return nil
}

func (s *store) appendHistory(deviceID, day string, d models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.historyPath(deviceID, day)
	var decisions []models.Decision
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &decisions); err != nil {
			return apperr.Wrap(apperr.IO, "decision.appendHistory", "corrupt history file", err)
		}
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.IO, "decision.appendHistory", "reading history file", err)
	}

	replaced := false
	for i := range decisions {
		if decisions[i].ID == d.ID {
			decisions[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		decisions = append(decisions, d)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "decision.appendHistory", "creating history dir", err)
	}
	data, err := json.Marshal(decisions)
	if err != nil {
		return apperr.Wrap(apperr.IO, "decision.appendHistory", "marshaling history", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "decision.appendHistory", "writing history file", err)
	}
	return nil
}

// queryHistory reads every day file for deviceID within [from,to],
// newest first. from/to of 0 are unbounded.
func (s *store) queryHistory(deviceID string, from, to models.UnixMilli) ([]models.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, "history")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "decision.queryHistory", "listing history dir", err)
	}

	prefix := deviceID + "-"
	var out []models.Decision
	for _, entry := range entries {
		name := entry.Name()
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, apperr.Wrap(apperr.IO, "decision.queryHistory", "reading history file", err)
		}
		var decisions []models.Decision
		if err := json.Unmarshal(data, &decisions); err != nil {
			return nil, apperr.Wrap(apperr.IO, "decision.queryHistory", "corrupt history file", err)
		}
		for _, d := range decisions {
			if from != 0 && d.Timestamp < from {
				continue
			}
			if to != 0 && d.Timestamp > to {
				continue
			}
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}
