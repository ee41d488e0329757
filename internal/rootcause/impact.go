package rootcause

import (
	"regexp"
	"strings"

	"github.com/aiops/fleet-intel/internal/models"
)

// scopeBase gives the base affected-user estimate per scope (§4.7).
var scopeBase = map[models.ImpactScope]int{
	models.ScopeLocal:      5,
	models.ScopePartial:    25,
	models.ScopeWidespread: 100,
}

const (
	wanMultiplier    = 2.0
	systemMultiplier = 1.5
)

var segmentCIDRRe = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}/\d{1,2}\b`)
var segmentVLANRe = regexp.MustCompile(`(?i)VLAN\s*(\d+)`)

var serviceKeywords = map[string]string{
	"dhcp":     "DHCP",
	"dns":      "DNS",
	"vpn":      "VPN",
	"firewall": "Firewall",
}

// computeImpact derives scope, services, network segments, and an
// affected-user estimate from the events feeding an analysis (§4.7).
func computeImpact(events []models.UnifiedEvent) models.Impact {
	scope := deriveScope(events)
	services := deriveServices(events)
	segments := deriveSegments(events)

	base := float64(scopeBase[scope])
	multiplier := 1.0
	if hasWANSegment(events) {
		multiplier *= wanMultiplier
	}
	if hasSystemCategory(events) {
		multiplier *= systemMultiplier
	}

	return models.Impact{
		Scope:            scope,
		Services:         services,
		NetworkSegments:  segments,
		AffectedUsersEst: int(base * multiplier),
	}
}

func deriveScope(events []models.UnifiedEvent) models.ImpactScope {
	maxSeverity := models.SeverityInfo
	for _, e := range events {
		maxSeverity = models.Max(maxSeverity, e.Severity)
	}
	related := len(events)

	switch {
	case maxSeverity == models.SeverityEmergency || related >= 5:
		return models.ScopeWidespread
	case maxSeverity == models.SeverityCritical || related > 2:
		return models.ScopePartial
	default:
		return models.ScopeLocal
	}
}

func deriveServices(events []models.UnifiedEvent) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range events {
		haystack := strings.ToLower(e.Category + " " + e.Message)
		for kw, label := range serviceKeywords {
			if strings.Contains(haystack, kw) {
				if _, ok := seen[label]; !ok {
					seen[label] = struct{}{}
					out = append(out, label)
				}
			}
		}
	}
	return out
}

func deriveSegments(events []models.UnifiedEvent) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range events {
		for _, m := range segmentCIDRRe.FindAllString(e.Message, -1) {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
		for _, m := range segmentVLANRe.FindAllStringSubmatch(e.Message, -1) {
			label := "VLAN " + m[1]
			if _, ok := seen[label]; !ok {
				seen[label] = struct{}{}
				out = append(out, label)
			}
		}
	}
	return out
}

func hasWANSegment(events []models.UnifiedEvent) bool {
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Message+" "+e.Category), "wan") {
			return true
		}
	}
	return false
}

func hasSystemCategory(events []models.UnifiedEvent) bool {
	for _, e := range events {
		if e.Category == "system" {
			return true
		}
	}
	return false
}
