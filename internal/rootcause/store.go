package rootcause

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/models"
)

// similarIncidentLookback bounds the "scan recent history" window used
// to find similar past incidents (§4.7: "last 30 days").
const similarIncidentLookback = 30 * 24 * time.Hour

// store owns day-partitioned analysis persistence under
// <dataDir>/rootcause/<deviceID>-YYYY-MM-DD.json, following the same
// per-device day-file convention as internal/alertrules and
// internal/metrics.
type store struct {
	mu  sync.Mutex
	dir string
}

func newStore(dir string) *store {
	return &store{dir: dir}
}

func (s *store) path(deviceID, day string) string {
	return filepath.Join(s.dir, deviceID+"-"+day+".json")
}

func (s *store) save(deviceID, day string, a models.RootCauseAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(deviceID, day)
	var analyses []models.RootCauseAnalysis
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &analyses); err != nil {
			return apperr.Wrap(apperr.IO, "rootcause.save", "corrupt analysis file", err)
		}
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.IO, "rootcause.save", "reading analysis file", err)
	}

	replaced := false
	for i := range analyses {
		if analyses[i].ID == a.ID {
			analyses[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		analyses = append(analyses, a)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "rootcause.save", "creating rootcause dir", err)
	}
	data, err := json.Marshal(analyses)
	if err != nil {
		return apperr.Wrap(apperr.IO, "rootcause.save", "marshaling analyses", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "rootcause.save", "writing analysis file", err)
	}
	return nil
}

// recent returns every persisted analysis for deviceID within
// similarIncidentLookback of now, newest first.
func (s *store) recent(deviceID string, now time.Time) ([]models.RootCauseAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "rootcause.recent", "listing rootcause dir", err)
	}

	cutoff := models.UnixMilli(now.Add(-similarIncidentLookback).UnixMilli())
	prefix := deviceID + "-"
	var out []models.RootCauseAnalysis
	for _, entry := range entries {
		name := entry.Name()
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, apperr.Wrap(apperr.IO, "rootcause.recent", "reading analysis file", err)
		}
		var analyses []models.RootCauseAnalysis
		if err := json.Unmarshal(data, &analyses); err != nil {
			return nil, apperr.Wrap(apperr.IO, "rootcause.recent", "corrupt analysis file", err)
		}
		for _, a := range analyses {
			if a.Timestamp >= cutoff {
				out = append(out, a)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}
