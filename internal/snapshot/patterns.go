package snapshot

import (
	"regexp"

	"github.com/aiops/fleet-intel/internal/models"
)

// dangerousPattern is one entry from the catalog in §6.
type dangerousPattern struct {
	Name    string
	Risk    models.RiskLevel
	Pattern *regexp.Regexp
}

var dangerousCatalog = []dangerousPattern{
	{"firewall_rule_deletion", models.RiskHigh, regexp.MustCompile(`(?m)^-\s*/ip(v6)?\s+firewall\s+(filter|nat|mangle)`)},
	{"password_change", models.RiskHigh, regexp.MustCompile(`password=|/user\s+.*password`)},
	{"admin_user_change", models.RiskHigh, regexp.MustCompile(`/user\s+(add|remove|set)|group=full`)},
	{"interface_disable", models.RiskMedium, regexp.MustCompile(`/interface\s+.*disable|disabled=yes`)},
	{"routing_change", models.RiskMedium, regexp.MustCompile(`/ip\s+route\s+(add|remove|set)|/routing`)},
	{"dns_change", models.RiskLow, regexp.MustCompile(`/ip\s+dns\s+set|/ip\s+dns\s+static`)},
	{"service_disable", models.RiskMedium, regexp.MustCompile(`/ip\s+service\s+.*disable|disabled=yes`)},
	{"system_reset", models.RiskHigh, regexp.MustCompile(`/system\s+reset|/system\s+reboot`)},
}

// scanDangerousChanges applies the catalog to every changed line,
// returning the overall (max) risk level matched (§4.9, §6). Deletions
// are presented to the catalog with the conventional unified-diff "-"
// prefix the firewall_rule_deletion pattern expects; additions and
// modifications are presented as-is.
func scanDangerousChanges(diff models.ConfigDiff) models.DangerousChangeReport {
	report := models.DangerousChangeReport{OverallRiskLevel: models.RiskNone}

	lines := make([]string, 0, len(diff.Additions)+len(diff.Modifications)+len(diff.Deletions))
	for _, l := range diff.Additions {
		lines = append(lines, l)
	}
	for _, l := range diff.Modifications {
		lines = append(lines, l)
	}
	for _, l := range diff.Deletions {
		lines = append(lines, "-"+l)
	}

	for _, line := range lines {
		for _, p := range dangerousCatalog {
			if p.Pattern.MatchString(line) {
				report.Detected = true
				report.Patterns = append(report.Patterns, models.DangerousPatternMatch{
					Name: p.Name,
					Risk: p.Risk,
					Line: line,
				})
				report.OverallRiskLevel = models.MaxRisk(report.OverallRiskLevel, p.Risk)
			}
		}
	}
	return report
}
