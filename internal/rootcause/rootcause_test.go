package rootcause

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiops/fleet-intel/internal/analysiscache"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
)

type fakeLLM struct {
	result collab.AnalyzeResult
	err    error
	calls  int
}

func (f *fakeLLM) Analyze(ctx context.Context, req collab.AnalyzeRequest) (collab.AnalyzeResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestAnalyzer(t *testing.T, now time.Time, llm collab.LLMAnalyzer) *Analyzer {
	t.Helper()
	dir := t.TempDir()
	cache := analysiscache.New(0, 0)
	return New(Config{
		DataDir: dir,
		Clock:   func() time.Time { return now },
	}, llm, cache, zerolog.Nop())
}

func TestMatchPatternKnownCategory(t *testing.T) {
	rc := matchPattern("interface ether1 link down", "connectivity", models.SeverityCritical)
	if rc.ID != "link-down" {
		t.Fatalf("ID = %q, want link-down", rc.ID)
	}
	if rc.Confidence != 80 {
		t.Fatalf("Confidence = %d, want 80 (70 base + 10 severity boost)", rc.Confidence)
	}
}

func TestMatchPatternUnknownFallsBackToDefault(t *testing.T) {
	rc := matchPattern("something entirely unrelated happened", "misc", models.SeverityInfo)
	if rc.ID != "unknown" || rc.Confidence != unknownConfidence {
		t.Fatalf("got %+v, want unknown/%d", rc, unknownConfidence)
	}
}

func TestMergeCausesDeduplicatesAndSortsByConfidence(t *testing.T) {
	in := []models.RootCause{
		{ID: "a", Description: "Link Down", Confidence: 60, Evidence: []string{"e1"}},
		{ID: "b", Description: "link down", Confidence: 80, Evidence: []string{"e2"}},
		{ID: "c", Description: "other", Confidence: 50},
	}
	out := mergeCauses(in)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Confidence != 80 || out[0].ID != "b" {
		t.Fatalf("top cause = %+v, want merged b@80", out[0])
	}
	if len(out[0].Evidence) != 2 {
		t.Fatalf("Evidence = %v, want union of e1/e2", out[0].Evidence)
	}
}

func TestBuildTimelineClassifiesEntries(t *testing.T) {
	events := []models.UnifiedEvent{
		{ID: "2", Timestamp: 200, Message: "this resulted in an outage"},
		{ID: "1", Timestamp: 100, Message: "link flapping detected"},
		{ID: "3", Timestamp: 300, Message: "caused by upstream failure"},
	}
	tl := buildTimeline(events)
	if len(tl) != 3 {
		t.Fatalf("len = %d, want 3", len(tl))
	}
	if tl[0].EventID != "1" || tl[0].Kind != models.TimelineTrigger {
		t.Fatalf("first entry = %+v, want trigger for event 1", tl[0])
	}
	if tl[1].Kind != models.TimelineEffect {
		t.Fatalf("second entry kind = %v, want effect", tl[1].Kind)
	}
	if tl[2].Kind != models.TimelineCause {
		t.Fatalf("third entry kind = %v, want cause", tl[2].Kind)
	}
}

func TestComputeImpactWidespreadOnEmergency(t *testing.T) {
	events := []models.UnifiedEvent{
		{Severity: models.SeverityEmergency, Category: "system", Message: "wan link down 10.0.0.0/24"},
	}
	impact := computeImpact(events)
	if impact.Scope != models.ScopeWidespread {
		t.Fatalf("Scope = %v, want widespread", impact.Scope)
	}
	if impact.AffectedUsersEst != int(100*wanMultiplier*systemMultiplier) {
		t.Fatalf("AffectedUsersEst = %d, want %d", impact.AffectedUsersEst, int(100*wanMultiplier*systemMultiplier))
	}
	if len(impact.NetworkSegments) != 1 || impact.NetworkSegments[0] != "10.0.0.0/24" {
		t.Fatalf("NetworkSegments = %v", impact.NetworkSegments)
	}
}

func TestComputeImpactLocalByDefault(t *testing.T) {
	events := []models.UnifiedEvent{
		{Severity: models.SeverityWarning, Category: "misc", Message: "minor hiccup"},
	}
	impact := computeImpact(events)
	if impact.Scope != models.ScopeLocal {
		t.Fatalf("Scope = %v, want local", impact.Scope)
	}
}

func TestJaccardOverlap(t *testing.T) {
	j := jaccard("interface ether1 link down", "interface ether2 link down")
	if j <= 0 || j >= 1 {
		t.Fatalf("jaccard = %v, want in (0,1)", j)
	}
	if jaccard("abc", "") != 0 {
		t.Fatalf("jaccard with empty string should be 0")
	}
}

func TestFindSimilarIncidentsFiltersBelowThreshold(t *testing.T) {
	current := candidate{
		Analysis: models.RootCauseAnalysis{
			ID:         "cur",
			RootCauses: []models.RootCause{{Category: "connectivity", Confidence: 80}},
			Impact:     models.Impact{Scope: models.ScopeLocal},
		},
		Message: "interface ether1 link down",
	}
	similarPast := candidate{
		Analysis: models.RootCauseAnalysis{
			ID:         "past1",
			AlertID:    "alert1",
			Timestamp:  1000,
			RootCauses: []models.RootCause{{Category: "connectivity", Confidence: 75}},
			Impact:     models.Impact{Scope: models.ScopeLocal},
		},
		Message: "interface ether1 link down again",
	}
	dissimilarPast := candidate{
		Analysis: models.RootCauseAnalysis{
			ID:         "past2",
			AlertID:    "alert2",
			RootCauses: []models.RootCause{{Category: "dns", Confidence: 40}},
			Impact:     models.Impact{Scope: models.ScopeWidespread},
		},
		Message: "dns resolution timeout",
	}

	out := findSimilarIncidents(current, []candidate{similarPast, dissimilarPast}, 5)
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1 (only similarPast clears threshold); got %+v", len(out), out)
	}
	if out[0].AnalysisID != "past1" {
		t.Fatalf("AnalysisID = %q, want past1", out[0].AnalysisID)
	}
}

func TestAnalyzePersistsAndReusesCache(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	a := newTestAnalyzer(t, now, nil)

	trigger := models.UnifiedEvent{
		ID:        "e1",
		Timestamp: models.FromTime(now),
		Severity:  models.SeverityCritical,
		Category:  "connectivity",
		Message:   "interface ether1 link down",
	}

	result, err := a.Analyze(context.Background(), "dev1", "alert1", "fp-1", trigger, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(result.RootCauses) == 0 || result.RootCauses[0].ID != "link-down" {
		t.Fatalf("RootCauses = %+v, want link-down first", result.RootCauses)
	}

	cached, ok := a.cache.Get("fp-1")
	if !ok || cached.ID != result.ID {
		t.Fatalf("expected cache hit for fp-1 with matching analysis id")
	}

	recent, err := a.store.recent("dev1", now)
	if err != nil {
		t.Fatalf("recent() error = %v", err)
	}
	if len(recent) != 1 || recent[0].ID != result.ID {
		t.Fatalf("recent = %+v, want single persisted analysis", recent)
	}
}

func TestAnalyzeIncludesAIPhaseOnSuccess(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	llm := &fakeLLM{result: collab.AnalyzeResult{Summary: "upstream provider outage", Confidence: 0.9}}
	a := newTestAnalyzer(t, now, llm)

	trigger := models.UnifiedEvent{
		ID:        "e1",
		Timestamp: models.FromTime(now),
		Severity:  models.SeverityCritical,
		Category:  "connectivity",
		Message:   "interface ether1 link down",
	}

	result, err := a.Analyze(context.Background(), "dev1", "alert1", "", trigger, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("llm.calls = %d, want 1", llm.calls)
	}

	found := false
	for _, rc := range result.RootCauses {
		if rc.Source == "ai" && rc.Description == "upstream provider outage" {
			found = true
		}
	}
	if !found {
		t.Fatalf("RootCauses = %+v, want an ai-sourced cause", result.RootCauses)
	}
}

func TestAnalyzeSkipsAIPhaseOnError(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	llm := &fakeLLM{err: context.DeadlineExceeded}
	a := newTestAnalyzer(t, now, llm)

	trigger := models.UnifiedEvent{
		ID:        "e1",
		Timestamp: models.FromTime(now),
		Severity:  models.SeverityWarning,
		Category:  "misc",
		Message:   "something odd happened",
	}

	result, err := a.Analyze(context.Background(), "dev1", "alert1", "", trigger, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	for _, rc := range result.RootCauses {
		if rc.Source == "ai" {
			t.Fatalf("expected no ai-sourced cause on LLM error, got %+v", rc)
		}
	}
}

func TestCorrelateRestrictsToWindow(t *testing.T) {
	trigger := models.UnifiedEvent{ID: "t", Timestamp: 0, Message: "trigger"}
	pool := []models.UnifiedEvent{
		{ID: "in-window", Timestamp: models.UnixMilli(defaultCorrelationWindow.Milliseconds() - 1000)},
		{ID: "out-of-window", Timestamp: models.UnixMilli(defaultCorrelationWindow.Milliseconds() + 60000)},
	}
	out := correlate(trigger, pool, defaultCorrelationWindow)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (trigger + in-window)", len(out))
	}
	for _, e := range out {
		if e.ID == "out-of-window" {
			t.Fatalf("out-of-window event should have been excluded")
		}
	}
}

func TestStoreRecentFiltersByDeviceAndAge(t *testing.T) {
	dir := t.TempDir()
	s := newStore(filepath.Join(dir, "rootcause"))
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	recentAnalysis := models.RootCauseAnalysis{ID: "a1", Timestamp: models.FromTime(now.Add(-24 * time.Hour))}
	staleAnalysis := models.RootCauseAnalysis{ID: "a2", Timestamp: models.FromTime(now.Add(-40 * 24 * time.Hour))}

	if err := s.save("dev1", now.Format("2006-01-02"), recentAnalysis); err != nil {
		t.Fatalf("save() error = %v", err)
	}
	if err := s.save("dev1", now.Add(-40*24*time.Hour).Format("2006-01-02"), staleAnalysis); err != nil {
		t.Fatalf("save() error = %v", err)
	}
	if err := s.save("dev2", now.Format("2006-01-02"), models.RootCauseAnalysis{ID: "a3", Timestamp: models.FromTime(now)}); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	out, err := s.recent("dev1", now)
	if err != nil {
		t.Fatalf("recent() error = %v", err)
	}
	if len(out) != 1 || out[0].ID != "a1" {
		t.Fatalf("recent = %+v, want only a1", out)
	}
}
