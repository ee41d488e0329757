package noise

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/robfig/cron/v3"
)

// NextOccurrences computes the next n start times of a recurring
// maintenance window after `after`, for surfacing an "upcoming windows"
// listing. Filter.checkMaintenance itself does a direct point-in-time
// membership check (cheaper, and correct for windows with no
// Recurring); this is for callers that need to know when a window will
// next open.
func NextOccurrences(w models.MaintenanceWindow, after time.Time, n int) ([]time.Time, error) {
	if w.Recurring == nil {
		if w.StartTime.Time().After(after) {
			return []time.Time{w.StartTime.Time()}, nil
		}
		return nil, nil
	}

	spec, err := cronSpec(*w.Recurring, w.StartTime.Time())
	if err != nil {
		return nil, err
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "noise.NextOccurrences", "invalid recurrence schedule", err)
	}

	out := make([]time.Time, 0, n)
	t := after
	for i := 0; i < n; i++ {
		t = schedule.Next(t)
		out = append(out, t)
	}
	return out, nil
}

func cronSpec(r models.Recurrence, start time.Time) (string, error) {
	minute, hour := start.Minute(), start.Hour()
	switch r.Type {
	case models.RecurDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case models.RecurWeekly:
		if len(r.DayOfWeek) == 0 {
			return "", apperr.New(apperr.Validation, "noise.cronSpec", "weekly recurrence requires dayOfWeek")
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, intListCSV(r.DayOfWeek)), nil
	case models.RecurMonthly:
		if len(r.DayOfMonth) == 0 {
			return "", apperr.New(apperr.Validation, "noise.cronSpec", "monthly recurrence requires dayOfMonth")
		}
		return fmt.Sprintf("%d %d %s * *", minute, hour, intListCSV(r.DayOfMonth)), nil
	default:
		return "", apperr.New(apperr.Validation, "noise.cronSpec", "unknown recurrence type: "+string(r.Type))
	}
}

func intListCSV(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
