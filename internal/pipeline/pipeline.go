// Package pipeline implements the end-to-end orchestrator (§4.10):
// normalize → deduplicate → filter → analyze → decide, run in strict
// order for each input event. Concurrent inputs may interleave across
// stages, but a single input's result is always self-consistent.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/decision"
	"github.com/aiops/fleet-intel/internal/fingerprint"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/aiops/fleet-intel/internal/noise"
	"github.com/aiops/fleet-intel/internal/rootcause"
)

// Enricher is the subset of internal/events' Enricher the normalize
// stage depends on (device-info attachment, §4.5).
type Enricher interface {
	Enrich(ctx context.Context, e *models.UnifiedEvent, deviceID string)
}

// Stage names a pipeline step, used in Result and in short-circuit
// reporting.
type Stage string

const (
	StageNormalize   Stage = "normalize"
	StageDeduplicate Stage = "deduplicate"
	StageFilter      Stage = "filter"
	StageAnalyze     Stage = "analyze"
	StageDecide      Stage = "decide"
)

// defaultCorrelationPoolWindow bounds how long an event stays in the
// in-memory correlation pool handed to the root-cause analyzer.
const defaultCorrelationPoolWindow = 15 * time.Minute

// defaultWorkers is Run's concurrency absent configuration.
const defaultWorkers = 4

// Input is one unit of work offered to the pipeline. Event is the
// already-source-normalized shape (produced by internal/events'
// NormalizeSyslog/NormalizeMetric/CreateManualEvent/CreateAPIEvent);
// the remaining fields carry the context the later stages need that
// doesn't belong on models.UnifiedEvent itself.
type Input struct {
	Event     models.UnifiedEvent
	Composite bool     // true for events.Aggregator/FlapDetector output, skips dedup
	Resources []string // noise.EventContext resource identifiers
	Interface string   // set for category=="interface" events

	AlertID   string // if empty, a new one is generated for this run
	Channels  []string
	AutoSteps []models.RemediationStep
}

// Result is the outcome of running one Input through the pipeline,
// possibly short-circuited at an earlier stage (§4.10).
type Result struct {
	Event        models.UnifiedEvent
	Stage        Stage
	Filtered     bool
	FilterResult *models.FilterResult
	Analysis     *models.RootCauseAnalysis
	Decision     *models.Decision
	Err          error
}

// Stats summarizes pipeline activity since start (§4.10).
type Stats struct {
	Processed    int
	Filtered     int
	Deduplicated int
	Analyzed     int
	Decided      int
	Errors       int
}

// Config configures a Pipeline.
type Config struct {
	DeviceID          string
	CorrelationWindow time.Duration // event pool lookback handed to the analyzer
	Workers           int           // Run's consumer concurrency
	Clock             func() time.Time
}

func (c Config) withDefaults() Config {
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = defaultCorrelationPoolWindow
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Pipeline wires the fingerprint cache, noise filter, root-cause
// analyzer, and decision engine into the ordered stage dispatch (§4.10).
type Pipeline struct {
	cfg Config

	fingerprints *fingerprint.Cache
	enricher     Enricher
	filter       *noise.Filter
	analyzer     *rootcause.Analyzer
	decisions    *decision.Manager
	audit        *audit.Log
	device       collab.DeviceClient
	log          zerolog.Logger

	sf singleflight.Group

	poolMu sync.Mutex
	pool   []models.UnifiedEvent

	statsMu sync.Mutex
	stats   Stats
}

// New builds a Pipeline. enricher and device may be nil (device info
// enrichment and decision auto-execution are then skipped).
func New(cfg Config, fingerprints *fingerprint.Cache, enricher Enricher, filter *noise.Filter, analyzer *rootcause.Analyzer, decisions *decision.Manager, auditLog *audit.Log, device collab.DeviceClient, log zerolog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:          cfg,
		fingerprints: fingerprints,
		enricher:     enricher,
		filter:       filter,
		analyzer:     analyzer,
		decisions:    decisions,
		audit:        auditLog,
		device:       device,
		log:          log,
	}
}

// Stats returns a snapshot of cumulative pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pipeline) incr(f func(*Stats)) {
	p.statsMu.Lock()
	f(&p.stats)
	p.statsMu.Unlock()
}

// Process runs one Input through normalize → deduplicate → filter →
// analyze → decide. It never panics out to the caller: any recovered
// exception is recorded as an audit pipeline_error and returned as a
// failed Result at stage "normalize" (§4.10, §7).
func (p *Pipeline) Process(ctx context.Context, in Input) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.incr(func(s *Stats) { s.Errors++ })
			if p.audit != nil {
				p.audit.Log("pipeline_error", p.cfg.DeviceID, in.Event.ID, map[string]string{
					"panic": fmt.Sprint(r),
				})
			}
			result = Result{
				Event: in.Event,
				Stage: StageNormalize,
				Err:   apperr.New(apperr.State, "pipeline.Process", fmt.Sprintf("recovered panic: %v", r)),
			}
		}
	}()

	p.incr(func(s *Stats) { s.Processed++ })

	// Stage 1: normalize. The event arrives already shaped as a
	// UnifiedEvent; this stage's remaining job is device-info
	// enrichment (§4.5).
	event := in.Event
	if p.enricher != nil {
		p.enricher.Enrich(ctx, &event, p.cfg.DeviceID)
	}

	// Stage 2: deduplicate. Composite events and metric-origin events
	// are already deduplicated upstream (by the aggregator/flap
	// detector and the rule engine, respectively) and skip this stage.
	if !in.Composite && event.Source != models.SourceMetrics && p.fingerprints != nil {
		fp := fingerprint.Compute(ruleIDOf(event), models.Metric(event.Category), event.Severity, event.Message)
		if p.fingerprints.Exists(fp) {
			p.fingerprints.Set(fp, 0)
			p.incr(func(s *Stats) { s.Deduplicated++ })
			return Result{Event: event, Stage: StageDeduplicate, Filtered: true}
		}
		p.fingerprints.Set(fp, 0)
	}

	// Stage 3: filter.
	if p.filter != nil {
		fr := p.filter.Filter(ctx, noise.EventContext{Event: event, Resources: in.Resources, Interface: in.Interface})
		if fr.Filtered {
			p.incr(func(s *Stats) { s.Filtered++ })
			return Result{Event: event, Stage: StageFilter, Filtered: true, FilterResult: &fr}
		}
	}

	alertID := in.AlertID
	if alertID == "" {
		alertID = uuid.NewString()
	}

	// Stage 4: analyze. Concurrent inputs sharing a fingerprint are
	// collapsed into a single analyzer call (cache-stampede guard
	// layered in front of the analyzer's own TTL cache).
	var analysis *models.RootCauseAnalysis
	if p.analyzer != nil {
		pool := p.correlationPool(event)
		fp := fingerprint.Compute(ruleIDOf(event), models.Metric(event.Category), event.Severity, event.Message)
		sfKey := p.cfg.DeviceID + "|" + fp
		v, err, _ := p.sf.Do(sfKey, func() (any, error) {
			return p.analyzer.Analyze(ctx, p.cfg.DeviceID, alertID, fp, event, pool)
		})
		if err != nil {
			p.incr(func(s *Stats) { s.Errors++ })
			p.log.Warn().Err(err).Str("deviceId", p.cfg.DeviceID).Msg("pipeline: root-cause analysis failed, proceeding without it")
		} else {
			a := v.(models.RootCauseAnalysis)
			analysis = &a
			p.incr(func(s *Stats) { s.Analyzed++ })
		}
	}

	// Stage 5: decide.
	var decisionResult *models.Decision
	if p.decisions != nil {
		scope := models.ScopeLocal
		if analysis != nil {
			scope = analysis.Impact.Scope
		}
		d, err := p.decisions.Evaluate(ctx, alertID, event.Severity, scope, in.Channels, event.Message, in.AutoSteps, p.device)
		if err != nil {
			p.incr(func(s *Stats) { s.Errors++ })
			return Result{Event: event, Stage: StageDecide, Analysis: analysis, Err: err}
		}
		decisionResult = &d
		p.incr(func(s *Stats) { s.Decided++ })
	}

	return Result{Event: event, Stage: StageDecide, Analysis: analysis, Decision: decisionResult}
}

// Run consumes inputs until the channel closes or ctx is cancelled,
// dispatching each through Process with bounded concurrency. onResult
// is invoked for every completed Result (including short-circuited and
// failed ones); it must not block.
func (p *Pipeline) Run(ctx context.Context, inputs <-chan Input, onResult func(Result)) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.cfg.Workers)

	for {
		select {
		case <-gctx.Done():
			return g.Wait()
		case in, ok := <-inputs:
			if !ok {
				return g.Wait()
			}
			sem <- struct{}{}
			g.Go(func() error {
				defer func() { <-sem }()
				result := p.Process(gctx, in)
				if onResult != nil {
					onResult(result)
				}
				return nil
			})
		}
	}
}

// correlationPool returns recent events within the configured window,
// including event, and prunes older entries.
func (p *Pipeline) correlationPool(event models.UnifiedEvent) []models.UnifiedEvent {
	p.poolMu.Lock()
	defer p.poolMu.Unlock()

	cutoff := models.FromTime(p.cfg.Clock().Add(-p.cfg.CorrelationWindow))
	kept := p.pool[:0]
	for _, e := range p.pool {
		if e.Timestamp >= cutoff {
			kept = append(kept, e)
		}
	}
	kept = append(kept, event)
	p.pool = kept

	out := make([]models.UnifiedEvent, len(kept))
	copy(out, kept)
	return out
}

func ruleIDOf(e models.UnifiedEvent) string {
	if e.AlertRuleInfo != nil {
		return e.AlertRuleInfo.RuleID
	}
	return ""
}
