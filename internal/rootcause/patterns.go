package rootcause

import (
	"regexp"

	"github.com/aiops/fleet-intel/internal/models"
)

// unknownConfidence is the confidence assigned when no catalog pattern
// matches (§4.7).
const unknownConfidence = 40

// severityBoost/severityPenalty implement "adjust confidence +-10 by
// severity" (§4.7): emergency/critical raise confidence, info/warning
// lower it.
const (
	severityBoost   = 10
	severityPenalty = 10
)

// catalogEntry is one built-in root-cause pattern (§4.7: "~9 patterns").
type catalogEntry struct {
	ID             string
	Pattern        *regexp.Regexp
	Category       string
	BaseConfidence int
	Description    string
}

var catalog = []catalogEntry{
	{"link-down", regexp.MustCompile(`(?i)(interface|link)\s+(down|flapping)`), "connectivity", 70, "network interface link failure"},
	{"high-cpu", regexp.MustCompile(`(?i)cpu\s+(usage|load)`), "resource", 65, "sustained high CPU utilization"},
	{"memory-exhaustion", regexp.MustCompile(`(?i)(memory|ram)\s+(usage|exhaustion|pressure)`), "resource", 65, "memory exhaustion"},
	{"disk-full", regexp.MustCompile(`(?i)disk\s+(space|usage|full)`), "storage", 70, "disk space exhaustion"},
	{"dhcp-failure", regexp.MustCompile(`(?i)dhcp\s+(lease|server|exhausted|failure)`), "dhcp", 60, "DHCP service failure"},
	{"dns-failure", regexp.MustCompile(`(?i)dns\s+(resolution|server|timeout|failure)`), "dns", 60, "DNS resolution failure"},
	{"vpn-tunnel-down", regexp.MustCompile(`(?i)vpn\s*(tunnel)?\s*(down|disconnected|failed)`), "vpn", 65, "VPN tunnel disruption"},
	{"firewall-block", regexp.MustCompile(`(?i)firewall\s+(rule|block|denied|drop)`), "firewall", 55, "firewall rule blocking traffic"},
	{"auth-failure-burst", regexp.MustCompile(`(?i)(authentication|login)\s+fail`), "security", 60, "authentication failure burst"},
}

// matchPattern runs the catalog against one event, returning the
// highest-base-confidence match, or the generic unknown cause if none
// match.
func matchPattern(message, category string, severity models.Severity) models.RootCause {
	var best *catalogEntry
	for i := range catalog {
		entry := &catalog[i]
		if entry.Pattern.MatchString(message) || entry.Pattern.MatchString(category) {
			if best == nil || entry.BaseConfidence > best.BaseConfidence {
				best = entry
			}
		}
	}

	if best == nil {
		return models.RootCause{
			ID:          "unknown",
			Description: "undetermined cause",
			Category:    "unknown",
			Confidence:  unknownConfidence,
			Source:      "pattern",
		}
	}

	return models.RootCause{
		ID:          best.ID,
		Description: best.Description,
		Category:    best.Category,
		Confidence:  adjustBySeverity(best.BaseConfidence, severity),
		Source:      "pattern",
	}
}

func adjustBySeverity(base int, severity models.Severity) int {
	switch severity {
	case models.SeverityEmergency, models.SeverityCritical:
		base += severityBoost
	case models.SeverityInfo, models.SeverityWarning:
		base -= severityPenalty
	}
	return clamp(base, 0, 100)
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
