package rootcause

import (
	"sort"
	"strings"

	"github.com/aiops/fleet-intel/internal/models"
)

// mergeCauses deduplicates by lowercased description, keeping the
// highest-confidence instance and unioning evidence/related alerts, then
// sorts by confidence descending (§4.7 "Merge").
func mergeCauses(causes []models.RootCause) []models.RootCause {
	byKey := make(map[string]*models.RootCause)
	order := make([]string, 0, len(causes))

	for _, c := range causes {
		key := strings.ToLower(strings.TrimSpace(c.Description))
		existing, ok := byKey[key]
		if !ok {
			cp := c
			byKey[key] = &cp
			order = append(order, key)
			continue
		}

		if c.Confidence > existing.Confidence {
			existing.Confidence = c.Confidence
			existing.ID = c.ID
			existing.Category = c.Category
			existing.Source = c.Source
		}
		existing.Evidence = unionStrings(existing.Evidence, c.Evidence)
		existing.RelatedAlerts = unionStrings(existing.RelatedAlerts, c.RelatedAlerts)
	}

	merged := make([]models.RootCause, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byKey[key])
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Confidence > merged[j].Confidence })
	return merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
