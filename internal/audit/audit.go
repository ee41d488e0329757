// Package audit implements the append-only, replayable, filterable
// record of every state-changing action in the pipeline (§4.1). Entries
// are persisted one JSON array per UTC calendar day under
// <dataDir>/audit/YYYY-MM-DD.json.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one audit record.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp models.UnixMilli  `json:"timestamp"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	Target    string            `json:"target,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Filter selects a subset of entries for Query.
type Filter struct {
	From   models.UnixMilli
	To     models.UnixMilli
	Action string
	Actor  string
	Limit  int
}

// Log is the append-only audit log. All mutable state (the write lock
// guaranteeing single-writer-at-a-time per day file) is held here.
type Log struct {
	mu            sync.Mutex
	dir           string
	clock         func() time.Time
	log           zerolog.Logger
	retentionDays int
}

// New creates an audit log rooted at dir (the "<dataDir>/audit" path).
func New(dir string, retentionDays int, clock func() time.Time, log zerolog.Logger) *Log {
	if clock == nil {
		clock = time.Now
	}
	return &Log{dir: dir, clock: clock, log: log, retentionDays: retentionDays}
}

func (l *Log) dayPath(day string) string {
	return filepath.Join(l.dir, day+".json")
}

// Write actions must assign id and timestamp here, never fabricate them
// upstream — log is the single source of truth for both.
func (l *Log) append(day string, e Entry) error {
	path := l.dayPath(day)

	var entries []Entry
	if data, err := os.ReadFile(path); err == nil {
		if jerr := json.Unmarshal(data, &entries); jerr != nil {
			return apperr.Wrap(apperr.IO, "audit.append", "corrupt audit day file", jerr)
		}
	} else if !os.IsNotExist(err) {
		return apperr.Wrap(apperr.IO, "audit.append", "reading audit day file", err)
	}

	entries = append(entries, e)

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return apperr.Wrap(apperr.IO, "audit.append", "creating audit dir", err)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return apperr.Wrap(apperr.IO, "audit.append", "marshaling audit entries", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperr.Wrap(apperr.IO, "audit.append", "writing audit day file", err)
	}
	return nil
}

// Log appends an entry, assigning ID and Timestamp. Persistence failures
// are logged and swallowed (best-effort) per §4.1/§7 — a write action
// must never stall the caller's state transition on a disk hiccup.
func (l *Log) Log(action, actor, target string, details map[string]string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: models.FromTime(now),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Details:   details,
	}

	if err := l.append(models.Day(now), e); err != nil {
		l.log.Error().Err(err).Str("action", action).Msg("audit write failed")
	}
	return e
}

// Query returns entries matching the filter, timestamp-descending, up
// to Limit. Unlike Log, an I/O error here is returned to the caller —
// reads must surface failures since there is no "best effort" substitute
// for a query result (§4.1).
func (l *Log) Query(f Filter) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	days, err := l.candidateDays(f)
	if err != nil {
		return nil, err
	}

	var matched []Entry
	for _, day := range days {
		path := l.dayPath(day)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, apperr.Wrap(apperr.IO, "audit.Query", "reading audit day file", err)
		}
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, apperr.Wrap(apperr.IO, "audit.Query", "corrupt audit day file", err)
		}
		for _, e := range entries {
			if matches(e, f) {
				matched = append(matched, e)
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp > matched[j].Timestamp })

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func matches(e Entry, f Filter) bool {
	if f.From != 0 && e.Timestamp < f.From {
		return false
	}
	if f.To != 0 && e.Timestamp > f.To {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return true
}

// candidateDays enumerates the UTC day partitions a filter's [From,To]
// range could touch; if unset, every day file in dir is a candidate.
func (l *Log) candidateDays(f Filter) ([]string, error) {
	if f.From == 0 && f.To == 0 {
		entries, err := os.ReadDir(l.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, apperr.Wrap(apperr.IO, "audit.candidateDays", "listing audit dir", err)
		}
		var days []string
		for _, e := range entries {
			name := e.Name()
			if filepath.Ext(name) == ".json" {
				days = append(days, name[:len(name)-len(".json")])
			}
		}
		return days, nil
	}

	from := f.From.Time().UTC().Truncate(24 * time.Hour)
	to := l.clock()
	if f.To != 0 {
		to = f.To.Time()
	}
	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, models.Day(d))
	}
	return days, nil
}

// Sweep deletes all day files older than retentionDays and reports the
// number of records removed.
func (l *Log) Sweep() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, apperr.Wrap(apperr.IO, "audit.Sweep", "listing audit dir", err)
	}

	cutoff := l.clock().AddDate(0, 0, -l.retentionDays)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		day, err := time.Parse("2006-01-02", name[:len(name)-len(".json")])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			path := filepath.Join(l.dir, name)
			data, _ := os.ReadFile(path)
			var dayEntries []Entry
			_ = json.Unmarshal(data, &dayEntries)
			removed += len(dayEntries)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				l.log.Error().Err(err).Str("file", path).Msg("failed to remove expired audit file")
			}
		}
	}
	return removed, nil
}
