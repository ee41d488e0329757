// Package events implements the event preprocessor (§4.5): map any
// input source to a UnifiedEvent, optionally aggregate bursts into a
// CompositeEvent, detect interface flapping, and enrich with cached
// device identity.
package events

import (
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/google/uuid"
)

// syslogSeverityCategory maps an RFC5424 numeric severity (0-7) to this
// system's four-level Severity (§4.5).
func syslogSeverityCategory(numeric int) models.Severity {
	switch {
	case numeric <= 1:
		return models.SeverityEmergency
	case numeric <= 2:
		return models.SeverityCritical
	case numeric <= 4:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// SyslogInput is the decoded shape handed to the preprocessor by the
// syslog receiver (§4.5's "syslog-origin events").
type SyslogInput struct {
	Topics   []string // facility/topic tokens; first non-severity token becomes Category
	Severity int      // RFC5424 numeric severity
	Message  string
	DeviceID string
	Raw      []byte
}

// NormalizeSyslog maps a decoded syslog message into a UnifiedEvent.
func NormalizeSyslog(in SyslogInput, now models.UnixMilli) models.UnifiedEvent {
	category := "syslog"
	for _, t := range in.Topics {
		switch t {
		case "", "debug", "info", "warning", "error", "critical":
			continue
		}
		category = t
		break
	}
	return models.UnifiedEvent{
		ID:        uuid.NewString(),
		Source:    models.SourceSyslog,
		Timestamp: now,
		Severity:  syslogSeverityCategory(in.Severity),
		Category:  category,
		Message:   in.Message,
		RawData:   in.Raw,
		Metadata:  map[string]string{"deviceId": in.DeviceID},
	}
}

// metricCategory maps a rule's metric kind to the preprocessor's
// category vocabulary (§4.5).
func metricCategory(m models.Metric) string {
	switch m {
	case models.MetricCPU, models.MetricMemory, models.MetricDisk:
		return "system"
	case models.MetricInterfaceStatus, models.MetricInterfaceTraffic:
		return "interface"
	default:
		return "metric"
	}
}

// NormalizeMetric maps a triggered alert event into a UnifiedEvent,
// attaching an AlertRuleInfo back-reference.
func NormalizeMetric(a models.AlertEvent, deviceID string) models.UnifiedEvent {
	return models.UnifiedEvent{
		ID:        uuid.NewString(),
		Source:    models.SourceMetrics,
		Timestamp: a.TriggeredAt,
		Severity:  a.Severity,
		Category:  metricCategory(a.Metric),
		Message:   a.Message,
		Metadata:  map[string]string{"deviceId": deviceID, "alertId": a.ID},
		AlertRuleInfo: &models.AlertRuleInfo{
			RuleID:   a.RuleID,
			RuleName: a.RuleName,
		},
	}
}

// CreateManualEvent builds a UnifiedEvent for a user-entered event. It
// is a stateless constructor (§4.5) and does not touch preprocessor
// state (no aggregation, no flap tracking).
func CreateManualEvent(severity models.Severity, category, message string, now models.UnixMilli) models.UnifiedEvent {
	return models.UnifiedEvent{
		ID:        uuid.NewString(),
		Source:    models.SourceManual,
		Timestamp: now,
		Severity:  severity,
		Category:  category,
		Message:   message,
	}
}

// CreateAPIEvent builds a UnifiedEvent for an externally-submitted API
// event. Like CreateManualEvent, it is stateless.
func CreateAPIEvent(severity models.Severity, category, message string, metadata map[string]string, now models.UnixMilli) models.UnifiedEvent {
	return models.UnifiedEvent{
		ID:        uuid.NewString(),
		Source:    models.SourceAPI,
		Timestamp: now,
		Severity:  severity,
		Category:  category,
		Message:   message,
		Metadata:  metadata,
	}
}
