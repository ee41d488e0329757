// Package noise implements the noise filter (§4.6): decide, in
// priority order, whether an event should be suppressed as
// maintenance-window activity, a known issue, a transient flap, or
// (for info-severity events only) AI-judged noise.
package noise

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/rs/zerolog"
)

// transientFlapWindow and transientFlapMinChanges implement step 3:
// "for category interface, maintain a 30s list of state changes per
// interface; >= 3 changes marks as transient." This threshold is
// intentionally independent from events.FlapDetector's 2-change
// composite-emission threshold (see the project's open-question notes
// on the two flap thresholds).
const (
	transientFlapWindow     = 30 * time.Second
	transientFlapMinChanges = 3
)

// noiseKeywords are the terms an AI summary must contain, alongside a
// "low" risk verdict, for step 4 to classify an info-severity event as
// noise.
var noiseKeywords = []string{"noise", "benign", "non-issue", "noncritical", "expected", "routine", "transient"}

// Filter holds the mutable state the noise pipeline evaluates against:
// maintenance windows, known issues, and per-interface flap history.
type Filter struct {
	mu sync.RWMutex

	windows []models.MaintenanceWindow
	issues  []models.KnownIssue
	flaps   map[string][]time.Time

	llm   collab.LLMAnalyzer
	clock func() time.Time
	log   zerolog.Logger
}

// New constructs an empty Filter.
func New(llm collab.LLMAnalyzer, clock func() time.Time, log zerolog.Logger) *Filter {
	if clock == nil {
		clock = time.Now
	}
	return &Filter{
		flaps: make(map[string][]time.Time),
		llm:   llm,
		clock: clock,
		log:   log.With().Str("component", "noise").Logger(),
	}
}

// AddWindow registers a maintenance window.
func (f *Filter) AddWindow(w models.MaintenanceWindow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
}

// RemoveWindow deletes a maintenance window by id.
func (f *Filter) RemoveWindow(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = removeByID(f.windows, id, func(w models.MaintenanceWindow) string { return w.ID })
}

// AddKnownIssue registers a known issue.
func (f *Filter) AddKnownIssue(k models.KnownIssue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, k)
}

// RemoveKnownIssue deletes a known issue by id.
func (f *Filter) RemoveKnownIssue(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = removeByID(f.issues, id, func(k models.KnownIssue) string { return k.ID })
}

// SetWindows replaces the entire maintenance-window set in one call,
// for external-edit hot-reload (fsnotify watching filters/maintenance
// .json) rather than incremental AddWindow/RemoveWindow bookkeeping.
func (f *Filter) SetWindows(windows []models.MaintenanceWindow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = windows
}

// SetKnownIssues replaces the entire known-issue set in one call, for
// external-edit hot-reload (fsnotify watching filters/known-issues
// .json).
func (f *Filter) SetKnownIssues(issues []models.KnownIssue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = issues
}

func removeByID[T any](items []T, id string, idOf func(T) string) []T {
	out := items[:0]
	for _, item := range items {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

// EventContext carries the fields Filter needs beyond models.UnifiedEvent
// proper: the resource identifiers this event touches, and (for
// interface-category events) the interface name for flap tracking.
type EventContext struct {
	Event     models.UnifiedEvent
	Resources []string // category, interface name, hostname, IP, metric — caller-derived
	Interface string   // set when Event.Category == "interface"
}

// Filter runs the four-stage evaluation in §4.6 and returns the result.
func (f *Filter) Filter(ctx context.Context, ec EventContext) models.FilterResult {
	now := f.clock()

	if r, ok := f.checkMaintenance(ec, now); ok {
		return r
	}
	if r, ok := f.checkKnownIssue(ec, now); ok {
		return r
	}
	if r, ok := f.checkTransientFlap(ec, now); ok {
		return r
	}
	if r, ok := f.checkAI(ctx, ec); ok {
		return r
	}
	return models.FilterResult{Filtered: false}
}

func (f *Filter) checkMaintenance(ec EventContext, now time.Time) (models.FilterResult, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, w := range f.windows {
		if !windowActive(w, now) {
			continue
		}
		if !resourcesMatch(w.Resources, ec.Resources) {
			continue
		}
		return models.FilterResult{
			Filtered: true,
			Reason:   models.FilterMaintenance,
			Details:  "matched maintenance window " + w.Name,
		}, true
	}
	return models.FilterResult{}, false
}

func (f *Filter) checkKnownIssue(ec EventContext, now time.Time) (models.FilterResult, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nowMs := models.FromTime(now)
	for _, issue := range f.issues {
		if issue.Expired(nowMs) {
			continue
		}
		if patternMatches(issue.Pattern, ec.Event.Message) || patternMatches(issue.Pattern, ec.Event.Category) {
			return models.FilterResult{
				Filtered: true,
				Reason:   models.FilterKnownIssue,
				Details:  issue.Description,
			}, true
		}
	}
	return models.FilterResult{}, false
}

func (f *Filter) checkTransientFlap(ec EventContext, now time.Time) (models.FilterResult, bool) {
	if ec.Event.Category != "interface" || ec.Interface == "" {
		return models.FilterResult{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := now.Add(-transientFlapWindow)
	buf := f.flaps[ec.Interface]
	filtered := buf[:0]
	for _, t := range buf {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	filtered = append(filtered, now)
	f.flaps[ec.Interface] = filtered

	if len(filtered) < transientFlapMinChanges {
		return models.FilterResult{}, false
	}
	return models.FilterResult{
		Filtered: true,
		Reason:   models.FilterTransient,
		Details:  "interface flapping within 30s window",
	}, true
}

func (f *Filter) checkAI(ctx context.Context, ec EventContext) (models.FilterResult, bool) {
	if ec.Event.Severity != models.SeverityInfo || f.llm == nil {
		return models.FilterResult{}, false
	}

	result, err := f.llm.Analyze(ctx, collab.AnalyzeRequest{
		Type: "noise_filter",
		Context: map[string]any{
			"message":  ec.Event.Message,
			"category": ec.Event.Category,
		},
	})
	if err != nil {
		// Error policy (§4.6 step 4): default to not filtering.
		return models.FilterResult{}, false
	}

	if !strings.EqualFold(result.RiskLevel, "low") || !containsNoiseKeyword(result.Summary) {
		return models.FilterResult{}, false
	}

	confidence := result.Confidence
	return models.FilterResult{
		Filtered:   true,
		Reason:     models.FilterAI,
		Details:    result.Summary,
		Confidence: &confidence,
	}, true
}

func containsNoiseKeyword(summary string) bool {
	lower := strings.ToLower(summary)
	for _, kw := range noiseKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// patternMatches tries pattern as a regex first; if it fails to
// compile, falls back to a case-insensitive substring match (§3's
// "regex, falling back to substring").
func patternMatches(pattern, text string) bool {
	if pattern == "" {
		return false
	}
	if re, err := regexp.Compile(pattern); err == nil {
		return re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(pattern))
}

// windowActive reports whether now falls inside w's active schedule
// (§4.6 step 1).
func windowActive(w models.MaintenanceWindow, now time.Time) bool {
	if w.Recurring == nil {
		return !now.Before(w.StartTime.Time()) && !now.After(w.EndTime.Time())
	}

	if !recurrenceDayMatches(*w.Recurring, now) {
		return false
	}
	return timeOfDayWithin(now, w.StartTime.Time(), w.EndTime.Time())
}

func recurrenceDayMatches(r models.Recurrence, now time.Time) bool {
	switch r.Type {
	case models.RecurDaily:
		return true
	case models.RecurWeekly:
		return intSliceContains(r.DayOfWeek, int(now.Weekday()))
	case models.RecurMonthly:
		return intSliceContains(r.DayOfMonth, now.Day())
	default:
		return false
	}
}

func intSliceContains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// timeOfDayWithin compares now's time-of-day against [start,end]'s
// time-of-day, ignoring their calendar date (recurring windows reuse
// StartTime/EndTime purely for their HH:MM component).
func timeOfDayWithin(now, start, end time.Time) bool {
	nowMin := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return nowMin >= startMin && nowMin <= endMin
}

// resourcesMatch reports whether any window resource pattern matches
// any of the event's derived resources. An empty window resource list
// matches every event (§4.6 step 1).
func resourcesMatch(windowResources, eventResources []string) bool {
	if len(windowResources) == 0 {
		return true
	}
	for _, pattern := range windowResources {
		for _, resource := range eventResources {
			if wildcardMatch(pattern, resource) {
				return true
			}
		}
	}
	return false
}

// wildcardMatch supports a single `*` suffix/infix wildcard, matching
// the scope noted in DESIGN.md for why a full glob library isn't used
// here.
func wildcardMatch(pattern, value string) bool {
	if pattern == value {
		return true
	}
	idx := strings.IndexByte(pattern, '*')
	if idx == -1 {
		return false
	}
	prefix, suffix := pattern[:idx], pattern[idx+1:]
	return strings.HasPrefix(value, prefix) && strings.HasSuffix(value, suffix)
}
