package rootcause

import (
	"strings"

	"github.com/aiops/fleet-intel/internal/models"
)

// Similarity weights (§4.7, also recorded in the project's open-question
// notes): category match 0.3, Jaccard message-word overlap 0.4 (applied
// only when J > 0.1), severity alignment 0.2, confidence alignment 0.1,
// scope match 0.1.
const (
	weightCategory   = 0.3
	weightJaccard    = 0.4
	weightSeverity   = 0.2
	weightConfidence = 0.1
	weightScope      = 0.1

	jaccardFloor       = 0.1
	similarityMinScore = 0.3
	defaultTopN        = 5
)

// candidate is a past analysis plus the representative message/severity
// used for similarity scoring.
type candidate struct {
	Analysis models.RootCauseAnalysis
	Message  string
}

// scopeSeverity maps an impact scope to a representative severity for
// the "severity alignment" term, since RootCauseAnalysis does not carry
// a severity field of its own.
func scopeSeverity(s models.ImpactScope) models.Severity {
	switch s {
	case models.ScopeWidespread:
		return models.SeverityEmergency
	case models.ScopePartial:
		return models.SeverityCritical
	default:
		return models.SeverityWarning
	}
}

func topCause(rcs []models.RootCause) models.RootCause {
	if len(rcs) == 0 {
		return models.RootCause{}
	}
	return rcs[0]
}

func similarity(current candidate, past candidate) float64 {
	score := 0.0

	currentTop := topCause(current.Analysis.RootCauses)
	pastTop := topCause(past.Analysis.RootCauses)

	if currentTop.Category != "" && currentTop.Category == pastTop.Category {
		score += weightCategory
	}

	j := jaccard(current.Message, past.Message)
	if j > jaccardFloor {
		score += weightJaccard * j
	}

	sevCurrent := scopeSeverity(current.Analysis.Impact.Scope)
	sevPast := scopeSeverity(past.Analysis.Impact.Scope)
	severityAlignment := 1.0 - float64(abs(sevCurrent.Rank()-sevPast.Rank()))/float64(models.SeverityEmergency.Rank())
	score += weightSeverity * severityAlignment

	confidenceAlignment := 1.0 - float64(abs(currentTop.Confidence-pastTop.Confidence))/100.0
	score += weightConfidence * confidenceAlignment

	if current.Analysis.Impact.Scope == past.Analysis.Impact.Scope {
		score += weightScope
	}

	return score
}

func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// findSimilarIncidents scores candidates against current and returns
// the top-N with similarity >= similarityMinScore, descending.
func findSimilarIncidents(current candidate, past []candidate, topN int) []models.SimilarIncident {
	if topN <= 0 {
		topN = defaultTopN
	}

	type scored struct {
		incident models.SimilarIncident
		score    float64
	}
	var all []scored
	for _, p := range past {
		s := similarity(current, p)
		if s < similarityMinScore {
			continue
		}
		all = append(all, scored{
			incident: models.SimilarIncident{
				AnalysisID: p.Analysis.ID,
				AlertID:    p.Analysis.AlertID,
				Similarity: s,
				Timestamp:  p.Analysis.Timestamp,
			},
			score: s,
		})
	}

	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].score > all[i].score {
				all[i], all[j] = all[j], all[i]
			}
		}
	}

	if len(all) > topN {
		all = all[:topN]
	}
	out := make([]models.SimilarIncident, 0, len(all))
	for _, s := range all {
		out = append(out, s.incident)
	}
	return out
}
