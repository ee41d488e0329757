// Package rootcause implements the root-cause analyzer (§4.7): pattern
// matching against a built-in catalog, best-effort AI enrichment,
// merge/timeline/impact derivation, and similar-incident lookup.
package rootcause

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aiops/fleet-intel/internal/analysiscache"
	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
)

// defaultCorrelationWindow is "windowMs (default 5 min)" from §4.7.
const defaultCorrelationWindow = 5 * time.Minute

// aiTimeout bounds the best-effort LLM call (§5: "default 30s for LLM").
const aiTimeout = 30 * time.Second

// Config configures an Analyzer. Zero values fall back to defaults.
type Config struct {
	DataDir           string
	CorrelationWindow time.Duration
	TopNSimilar       int
	Clock             func() time.Time
}

func (c Config) withDefaults() Config {
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = defaultCorrelationWindow
	}
	if c.TopNSimilar <= 0 {
		c.TopNSimilar = defaultTopN
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Analyzer produces RootCauseAnalysis values from a triggering event
// plus its correlated neighbors, with best-effort AI enrichment, a
// reuse cache keyed by alert fingerprint, and a similar-incident
// lookup over persisted history.
type Analyzer struct {
	cfg     Config
	store   *store
	cache   *analysiscache.Cache
	llm     collab.LLMAnalyzer
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New builds an Analyzer. llm and cache may be nil: a nil llm skips the
// AI phase entirely; a nil cache disables fingerprint reuse.
func New(cfg Config, llm collab.LLMAnalyzer, cache *analysiscache.Cache, log zerolog.Logger) *Analyzer {
	cfg = cfg.withDefaults()
	return &Analyzer{
		cfg:   cfg,
		store: newStore(filepath.Join(cfg.DataDir, "rootcause")),
		cache: cache,
		llm:   llm,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "rootcause-llm",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		log: log,
	}
}

// Analyze runs the full §4.7 pipeline for one alert's triggering event
// plus the pool of candidate correlated events. It reuses a cached
// analysis when fingerprint is non-empty and a cache hit exists.
func (a *Analyzer) Analyze(ctx context.Context, deviceID, alertID, fingerprint string, trigger models.UnifiedEvent, pool []models.UnifiedEvent) (models.RootCauseAnalysis, error) {
	if fingerprint != "" && a.cache != nil {
		if cached, ok := a.cache.Get(fingerprint); ok {
			return cached, nil
		}
	}

	correlated := correlate(trigger, pool, a.cfg.CorrelationWindow)

	var causes []models.RootCause
	highest := trigger
	for _, e := range correlated {
		causes = append(causes, matchPattern(e.Message, e.Category, e.Severity))
		if e.Severity.Rank() > highest.Severity.Rank() {
			highest = e
		}
	}

	if aiCause, ok := a.aiPhase(ctx, highest, correlated); ok {
		causes = append(causes, aiCause)
	}

	merged := mergeCauses(causes)
	timeline := buildTimeline(correlated)
	impact := computeImpact(correlated)

	analysis := models.RootCauseAnalysis{
		ID:         uuid.NewString(),
		AlertID:    alertID,
		Timestamp:  models.FromTime(a.cfg.Clock()),
		RootCauses: merged,
		Timeline:   timeline,
		Impact:     impact,
	}

	similar, err := a.similarIncidents(deviceID, analysis, trigger.Message)
	if err != nil {
		a.log.Warn().Err(err).Msg("rootcause: similar-incident lookup failed")
	} else {
		analysis.SimilarIncidents = similar
	}

	day := a.cfg.Clock().UTC().Format("2006-01-02")
	if err := a.store.save(deviceID, day, analysis); err != nil {
		return analysis, apperr.Wrap(apperr.IO, "rootcause.Analyze", "persisting analysis", err)
	}

	if fingerprint != "" && a.cache != nil {
		a.cache.Put(fingerprint, analysis)
	}

	return analysis, nil
}

// correlate restricts pool (plus trigger) to events within window of
// the earliest event in the set (§4.7 "Correlation").
func correlate(trigger models.UnifiedEvent, pool []models.UnifiedEvent, window time.Duration) []models.UnifiedEvent {
	all := append([]models.UnifiedEvent{trigger}, pool...)
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })

	earliest := all[0].Timestamp
	cutoff := earliest + models.UnixMilli(window.Milliseconds())

	out := make([]models.UnifiedEvent, 0, len(all))
	for _, e := range all {
		if e.Timestamp <= cutoff {
			out = append(out, e)
		}
	}
	return out
}

// aiPhase requests one richer cause seeded with the highest-severity
// event, guarded by a timeout and a circuit breaker. Any failure is
// swallowed: the AI phase is best-effort (§4.7, §7).
func (a *Analyzer) aiPhase(ctx context.Context, seed models.UnifiedEvent, correlated []models.UnifiedEvent) (models.RootCause, bool) {
	if a.llm == nil {
		return models.RootCause{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, aiTimeout)
	defer cancel()

	result, err := a.breaker.Execute(func() (interface{}, error) {
		messages := make([]string, 0, len(correlated))
		for _, e := range correlated {
			messages = append(messages, e.Message)
		}
		return a.llm.Analyze(ctx, collab.AnalyzeRequest{
			Type: "root_cause",
			Context: map[string]any{
				"seedMessage":  seed.Message,
				"seedSeverity": string(seed.Severity),
				"events":       messages,
			},
		})
	})
	if err != nil {
		a.log.Debug().Err(err).Msg("rootcause: AI phase skipped")
		return models.RootCause{}, false
	}

	analyzeResult, ok := result.(collab.AnalyzeResult)
	if !ok || analyzeResult.Summary == "" {
		return models.RootCause{}, false
	}

	return models.RootCause{
		ID:          "ai-" + uuid.NewString(),
		Description: analyzeResult.Summary,
		Category:    seed.Category,
		Confidence:  int(clampFloat(analyzeResult.Confidence*100, 0, 100)),
		Evidence:    analyzeResult.Recommendations,
		Source:      "ai",
	}, true
}

// representativeMessage returns the triggering event's message from a
// past analysis's timeline, for Jaccard comparison against a new
// trigger's message.
func representativeMessage(a models.RootCauseAnalysis) string {
	for _, entry := range a.Timeline {
		if entry.Kind == models.TimelineTrigger {
			return entry.Message
		}
	}
	if len(a.Timeline) > 0 {
		return a.Timeline[0].Message
	}
	return ""
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// similarIncidents loads the last 30 days of persisted analyses for
// deviceID and scores them against the one just produced.
func (a *Analyzer) similarIncidents(deviceID string, current models.RootCauseAnalysis, message string) ([]models.SimilarIncident, error) {
	past, err := a.store.recent(deviceID, a.cfg.Clock())
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(past))
	for _, p := range past {
		if p.ID == current.ID {
			continue
		}
		candidates = append(candidates, candidate{Analysis: p, Message: representativeMessage(p)})
	}

	return findSimilarIncidents(candidate{Analysis: current, Message: message}, candidates, a.cfg.TopNSimilar), nil
}
