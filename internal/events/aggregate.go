package events

import (
	"regexp"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/models"
	"github.com/google/uuid"
)

// aggregationRule is one built-in burst-detection rule (§4.5): events
// whose message or category matches Pattern are windowed, and once
// MinCount accumulate within WindowMs a CompositeEvent is emitted.
type aggregationRule struct {
	Name     string
	Pattern  *regexp.Regexp
	WindowMs int64
	MinCount int
	Category string
}

// builtinAggregationRules are the three rules named in §4.5: interface
// flap, auth-failure burst, connection-issue burst. Interface flapping
// itself is handled by FlapDetector (dedicated 30s/2-change logic); this
// table covers only the other two message-pattern-driven bursts.
var builtinAggregationRules = []aggregationRule{
	{
		Name:     "auth-failure-burst",
		Pattern:  regexp.MustCompile(`(?i)(authentication|login|auth)\s+fail`),
		WindowMs: 60_000,
		MinCount: 5,
		Category: "security",
	},
	{
		Name:     "connection-issue-burst",
		Pattern:  regexp.MustCompile(`(?i)(connection\s+(lost|reset|refused|timed?\s*out)|link\s+down)`),
		WindowMs: 60_000,
		MinCount: 3,
		Category: "connectivity",
	},
}

// Aggregator buffers events per rule and emits a CompositeEvent once a
// rule's window fills to its minimum count (§4.5).
type Aggregator struct {
	mu    sync.Mutex
	rules []aggregationRule
	// buffers holds, per rule name, the events currently inside its window.
	buffers map[string][]models.UnifiedEvent
	clock   func() time.Time
}

// NewAggregator constructs an Aggregator with the built-in rule set.
func NewAggregator(clock func() time.Time) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{
		rules:   builtinAggregationRules,
		buffers: make(map[string][]models.UnifiedEvent),
		clock:   clock,
	}
}

// Offer feeds one event through every aggregation rule. It returns a
// composite event and true if some rule's window just filled.
func (a *Aggregator) Offer(e models.UnifiedEvent) (models.CompositeEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock()
	for _, rule := range a.rules {
		if !rule.Pattern.MatchString(e.Message) && !rule.Pattern.MatchString(e.Category) {
			continue
		}

		cutoff := models.FromTime(now.Add(-time.Duration(rule.WindowMs) * time.Millisecond))
		buf := a.buffers[rule.Name]
		filtered := buf[:0]
		for _, existing := range buf {
			if existing.Timestamp >= cutoff {
				filtered = append(filtered, existing)
			}
		}
		filtered = append(filtered, e)
		a.buffers[rule.Name] = filtered

		if len(filtered) < rule.MinCount {
			continue
		}

		composite := buildComposite(filtered, rule.Name, rule.Category, e.Severity.EscalateOne())
		a.buffers[rule.Name] = nil
		return composite, true
	}
	return models.CompositeEvent{}, false
}

func buildComposite(members []models.UnifiedEvent, pattern, category string, severity models.Severity) models.CompositeEvent {
	ids := make([]string, 0, len(members))
	first, last := members[0].Timestamp, members[0].Timestamp
	for _, m := range members {
		ids = append(ids, m.ID)
		if m.Timestamp < first {
			first = m.Timestamp
		}
		if m.Timestamp > last {
			last = m.Timestamp
		}
	}
	latest := members[len(members)-1]
	return models.CompositeEvent{
		UnifiedEvent: models.UnifiedEvent{
			ID:        uuid.NewString(),
			Source:    latest.Source,
			Timestamp: last,
			Severity:  severity,
			Category:  category,
			Message:   latest.Message,
			DeviceInfo: latest.DeviceInfo,
		},
		IsComposite:   true,
		ChildEventIDs: ids,
		Aggregation: models.Aggregation{
			Count:     len(members),
			FirstSeen: first,
			LastSeen:  last,
			Pattern:   pattern,
		},
	}
}
