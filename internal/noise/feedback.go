package noise

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/models"
)

// FeedbackStore persists filter feedback append-only, one JSON array
// per UTC day, under <dataDir>/noise/feedback/<deviceID>-YYYY-MM-DD.json.
type FeedbackStore struct {
	mu    sync.Mutex
	dir   string
	clock func() time.Time
}

// NewFeedbackStore constructs a FeedbackStore rooted at dir.
func NewFeedbackStore(dir string, clock func() time.Time) *FeedbackStore {
	if clock == nil {
		clock = time.Now
	}
	return &FeedbackStore{dir: dir, clock: clock}
}

func (s *FeedbackStore) path(deviceID, day string) string {
	return filepath.Join(s.dir, deviceID+"-"+day+".json")
}

// RecordFeedback appends a feedback record, stamping RecordedAt.
func (s *FeedbackStore) RecordFeedback(deviceID string, alertID string, result models.FilterResult, verdict models.UserFeedback) (models.FilterFeedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	fb := models.FilterFeedback{
		AlertID:      alertID,
		FilterResult: result,
		UserFeedback: verdict,
		RecordedAt:   models.FromTime(now),
	}

	path := s.path(deviceID, models.Day(now))
	var records []models.FilterFeedback
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &records); err != nil {
			return models.FilterFeedback{}, apperr.Wrap(apperr.IO, "noise.RecordFeedback", "corrupt feedback file", err)
		}
	} else if !os.IsNotExist(err) {
		return models.FilterFeedback{}, apperr.Wrap(apperr.IO, "noise.RecordFeedback", "reading feedback file", err)
	}

	records = append(records, fb)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return models.FilterFeedback{}, apperr.Wrap(apperr.IO, "noise.RecordFeedback", "creating feedback dir", err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return models.FilterFeedback{}, apperr.Wrap(apperr.IO, "noise.RecordFeedback", "marshaling feedback", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.FilterFeedback{}, apperr.Wrap(apperr.IO, "noise.RecordFeedback", "writing feedback file", err)
	}
	return fb, nil
}
