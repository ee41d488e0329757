package rootcause

import (
	"regexp"
	"sort"

	"github.com/aiops/fleet-intel/internal/models"
)

// causeIndicator/effectIndicator implement the message regex heuristics
// for classifying non-trigger timeline entries (§4.7).
var (
	causeIndicatorRe  = regexp.MustCompile(`(?i)(caused by|due to|root cause|originat)`)
	effectIndicatorRe = regexp.MustCompile(`(?i)(result(ed|s)? in|consequently|therefore|led to)`)
)

// buildTimeline sorts events by timestamp and classifies each as
// trigger (first), cause, effect, or symptom (default).
func buildTimeline(events []models.UnifiedEvent) []models.TimelineEntry {
	sorted := append([]models.UnifiedEvent{}, events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	entries := make([]models.TimelineEntry, 0, len(sorted))
	for i, e := range sorted {
		kind := models.TimelineSymptom
		switch {
		case i == 0:
			kind = models.TimelineTrigger
		case causeIndicatorRe.MatchString(e.Message):
			kind = models.TimelineCause
		case effectIndicatorRe.MatchString(e.Message):
			kind = models.TimelineEffect
		}
		entries = append(entries, models.TimelineEntry{
			EventID:   e.ID,
			Timestamp: e.Timestamp,
			Kind:      kind,
			Message:   e.Message,
		})
	}
	return entries
}
