// Package models holds the shared data model for the AI-Ops pipeline:
// samples, rules, events, analyses, decisions and snapshots, as specified
// in the system's data model section. Every timestamp in the model is an
// integer count of milliseconds since the Unix epoch, UTC, so that JSON
// persistence round-trips exactly without timezone ambiguity.
package models

import "time"

// UnixMilli is milliseconds since the Unix epoch, UTC.
type UnixMilli int64

// Now returns the current time as UnixMilli.
func Now() UnixMilli {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to UnixMilli.
func FromTime(t time.Time) UnixMilli {
	return UnixMilli(t.UnixMilli())
}

// Time converts a UnixMilli back to a time.Time in UTC.
func (m UnixMilli) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

// DayPartition returns the UTC calendar day this timestamp belongs to,
// formatted as "YYYY-MM-DD", matching the persisted file layout.
func (m UnixMilli) DayPartition() string {
	return m.Time().Format("2006-01-02")
}

// Day returns the "YYYY-MM-DD" partition key for "now".
func Day(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
