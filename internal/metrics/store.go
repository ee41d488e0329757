package metrics

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

// Store owns metrics persistence under
// <dataDir>/metrics/{system,interfaces}/YYYY-MM-DD.json, one file per
// device per day (device id folded into the filename so multiple
// devices share the directory layout described in §6).
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore roots a Store at dir (the "<dataDir>/metrics" path).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) systemPath(deviceID, day string) string {
	return filepath.Join(s.dir, "system", deviceID+"-"+day+".json")
}

func (s *Store) interfacePath(deviceID, day string) string {
	return filepath.Join(s.dir, "interfaces", deviceID+"-"+day+".json")
}

// Append persists one tick's samples to the current UTC day file.
func (s *Store) Append(deviceID string, at time.Time, sys models.SystemSample, ifaces []models.InterfaceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := models.Day(at)

	if err := appendJSON(s.systemPath(deviceID, day), sys); err != nil {
		return err
	}
	for _, ifc := range ifaces {
		if err := appendJSON(s.interfacePath(deviceID, day), ifc); err != nil {
			return err
		}
	}
	return nil
}

func appendJSON[T any](path string, item T) error {
	var items []T
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &items); err != nil {
			return apperr.Wrap(apperr.IO, "metrics.appendJSON", "corrupt metrics file", err)
		}
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.IO, "metrics.appendJSON", "reading metrics file", err)
	}

	items = append(items, item)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "metrics.appendJSON", "creating metrics dir", err)
	}
	data, err := json.Marshal(items)
	if err != nil {
		return apperr.Wrap(apperr.IO, "metrics.appendJSON", "marshaling metrics", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "metrics.appendJSON", "writing metrics file", err)
	}
	return nil
}

// HistoryPoint is one {time, value} observation returned by GetHistory,
// with optional labels (interface name for interface metrics).
type HistoryPoint struct {
	Timestamp models.UnixMilli  `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// GetHistory returns samples for metric within [from,to], sorted
// ascending by time (§4.3). System metrics select cpu/mem/disk percent;
// interface metrics use the key "interface:<name>" and return rx+tx
// bytes.
func (s *Store) GetHistory(deviceID, metric string, from, to models.UnixMilli) ([]HistoryPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	days := dayRange(from.Time(), to.Time())

	var points []HistoryPoint
	if name, ok := interfaceMetricName(metric); ok {
		for _, day := range days {
			samples, err := readInterfaceDay(s.interfacePath(deviceID, day))
			if err != nil {
				return nil, err
			}
			for _, sample := range samples {
				if sample.Name != name {
					continue
				}
				if sample.Timestamp < from || sample.Timestamp > to {
					continue
				}
				points = append(points, HistoryPoint{
					Timestamp: sample.Timestamp,
					Value:     float64(sample.RxBytes + sample.TxBytes),
					Labels:    map[string]string{"interface": name},
				})
			}
		}
	} else {
		for _, day := range days {
			samples, err := readSystemDay(s.systemPath(deviceID, day))
			if err != nil {
				return nil, err
			}
			for _, sample := range samples {
				if sample.Timestamp < from || sample.Timestamp > to {
					continue
				}
				v, ok := systemMetricValue(metric, sample)
				if !ok {
					continue
				}
				points = append(points, HistoryPoint{Timestamp: sample.Timestamp, Value: v})
			}
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points, nil
}

func interfaceMetricName(metric string) (string, bool) {
	const prefix = "interface:"
	if len(metric) > len(prefix) && metric[:len(prefix)] == prefix {
		return metric[len(prefix):], true
	}
	return "", false
}

func systemMetricValue(metric string, s models.SystemSample) (float64, bool) {
	switch metric {
	case "cpu":
		return s.CPUPct, true
	case "memory":
		return 100 - s.MemFreePct, true
	case "disk":
		return 100 - s.DiskFreePct, true
	default:
		return 0, false
	}
}

func readSystemDay(path string) ([]models.SystemSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "metrics.readSystemDay", "reading system metrics file", err)
	}
	var samples []models.SystemSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, apperr.Wrap(apperr.IO, "metrics.readSystemDay", "corrupt system metrics file", err)
	}
	return samples, nil
}

func readInterfaceDay(path string) ([]models.InterfaceSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "metrics.readInterfaceDay", "reading interface metrics file", err)
	}
	var samples []models.InterfaceSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, apperr.Wrap(apperr.IO, "metrics.readInterfaceDay", "corrupt interface metrics file", err)
	}
	return samples, nil
}

func dayRange(from, to time.Time) []string {
	if to.Before(from) {
		from, to = to, from
	}
	var days []string
	for d := from.UTC().Truncate(24 * time.Hour); !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, models.Day(d))
	}
	if len(days) == 0 {
		days = []string{models.Day(from)}
	}
	return days
}

// Sweep removes any day file older than retentionDays for deviceID.
func (s *Store) Sweep(deviceID string, retentionDays int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.AddDate(0, 0, -retentionDays)
	for _, sub := range []string{"system", "interfaces"} {
		dir := filepath.Join(s.dir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return apperr.Wrap(apperr.IO, "metrics.Sweep", "listing metrics dir", err)
		}
		for _, e := range entries {
			day, ok := extractDay(e.Name(), deviceID)
			if !ok {
				continue
			}
			t, err := time.Parse("2006-01-02", day)
			if err != nil {
				continue
			}
			if t.Before(cutoff) {
				_ = os.Remove(filepath.Join(dir, e.Name()))
			}
		}
	}
	return nil
}

func extractDay(filename, deviceID string) (string, bool) {
	prefix := deviceID + "-"
	const suffix = ".json"
	if len(filename) <= len(prefix)+len(suffix) {
		return "", false
	}
	if filename[:len(prefix)] != prefix {
		return "", false
	}
	return filename[len(prefix) : len(filename)-len(suffix)], true
}
