package alertrules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/models"
)

// rulesFileName is the single snapshot file holding all rule
// definitions, mirroring the teacher's single-file config persistence
// for alert configuration.
const rulesFileName = "rules.json"

// store owns rule-definition and alert-history persistence under
// <dir>/{rules.json,history/<deviceID>-YYYY-MM-DD.json}, where dir is
// Config.DataDir as given to New.
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

func (s *store) loadRules() ([]models.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.rulesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "alertrules.loadRules", "reading rules file", err)
	}
	var rules []models.AlertRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, apperr.Wrap(apperr.IO, "alertrules.loadRules", "corrupt rules file", err)
	}
	return rules, nil
}

func (s *store) saveRules(rules []models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "alertrules.saveRules", "creating rules dir", err)
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return apperr.Wrap(apperr.IO, "alertrules.saveRules", "marshaling rules", err)
	}
	if err := os.WriteFile(s.rulesPath(), data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "alertrules.saveRules", "writing rules file", err)
	}
	return nil
}

func (s *store) appendHistory(deviceID, day string, e models.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.historyPath(deviceID, day)
	var events []models.AlertEvent
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &events); err != nil {
			return apperr.Wrap(apperr.IO, "alertrules.appendHistory", "corrupt history file", err)
		}
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.IO, "alertrules.appendHistory", "reading history file", err)
	}

	replaced := false
	for i := range events {
		if events[i].ID == e.ID {
			events[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		events = append(events, e)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "alertrules.appendHistory", "creating history dir", err)
	}
	data, err := json.Marshal(events)
	if err != nil {
		return apperr.Wrap(apperr.IO, "alertrules.appendHistory", "marshaling history", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "alertrules.appendHistory", "writing history file", err)
	}
	return nil
}

// queryHistory reads every day file in [from,to] for deviceID and
// returns events sorted by TriggeredAt descending.
func (s *store) queryHistory(deviceID string, from, to models.UnixMilli) ([]models.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, "history")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "alertrules.queryHistory", "listing history dir", err)
	}

	prefix := deviceID + "-"
	var out []models.AlertEvent
	for _, entry := range entries {
		name := entry.Name()
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, apperr.Wrap(apperr.IO, "alertrules.queryHistory", "reading history file", err)
		}
		var events []models.AlertEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, apperr.Wrap(apperr.IO, "alertrules.queryHistory", "corrupt history file", err)
		}
		for _, e := range events {
			if from != 0 && e.TriggeredAt < from {
				continue
			}
			if to != 0 && e.TriggeredAt > to {
				continue
			}
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt > out[j].TriggeredAt })
	return out, nil
}
