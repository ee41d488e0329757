package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiops/fleet-intel/internal/alertrules"
	"github.com/aiops/fleet-intel/internal/analysiscache"
	"github.com/aiops/fleet-intel/internal/audit"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/config"
	"github.com/aiops/fleet-intel/internal/decision"
	"github.com/aiops/fleet-intel/internal/events"
	"github.com/aiops/fleet-intel/internal/fingerprint"
	"github.com/aiops/fleet-intel/internal/hotreload"
	"github.com/aiops/fleet-intel/internal/llmclient"
	"github.com/aiops/fleet-intel/internal/logging"
	"github.com/aiops/fleet-intel/internal/metrics"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/aiops/fleet-intel/internal/noise"
	"github.com/aiops/fleet-intel/internal/pipeline"
	"github.com/aiops/fleet-intel/internal/remediation"
	"github.com/aiops/fleet-intel/internal/rootcause"
	"github.com/aiops/fleet-intel/internal/routerosclient"
	"github.com/aiops/fleet-intel/internal/snapshot"
	"github.com/aiops/fleet-intel/internal/syslogrecv"
	"github.com/aiops/fleet-intel/internal/webhookdispatch"
)

const (
	analysisCacheSize = 1024
	analysisCacheTTL  = 15 * time.Minute

	maintenanceFile   = "filters/maintenance.json"
	knownIssuesFile   = "filters/known-issues.json"
	decisionRulesFile = "decisions/rules.json"
)

// snapshotRouter implements remediation.SnapshotTaker by dispatching to
// the per-device snapshot.Manager named by deviceID: remediation runs
// as one fleet-wide Manager, while internal/snapshot.Manager is bound
// to a single device at construction.
type snapshotRouter struct {
	mu       sync.RWMutex
	managers map[string]*snapshot.Manager
}

func newSnapshotRouter() *snapshotRouter {
	return &snapshotRouter{managers: make(map[string]*snapshot.Manager)}
}

func (r *snapshotRouter) register(deviceID string, m *snapshot.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[deviceID] = m
}

func (r *snapshotRouter) CreateSnapshot(ctx context.Context, deviceID string, device collab.DeviceClient, trigger models.SnapshotTrigger) (models.ConfigSnapshot, error) {
	r.mu.RLock()
	m, ok := r.managers[deviceID]
	r.mu.RUnlock()
	if !ok {
		return models.ConfigSnapshot{}, fmt.Errorf("aiopsd: no snapshot manager registered for device %q", deviceID)
	}
	return m.CreateSnapshot(ctx, device, trigger)
}

// deviceRuntime bundles every component bound to a single managed
// device (§1's fleet scope: one stack per device, sharing the
// fleet-wide collaborators built in runDaemon).
type deviceRuntime struct {
	id        string
	client    *routerosclient.Client
	collector *metrics.Collector
	rules     *alertrules.Manager
	decisions *decision.Manager
	snapshots *snapshot.Manager
	flap      *events.FlapDetector
	enricher  *events.Enricher
	pipeline  *pipeline.Pipeline

	mu         sync.Mutex
	seenAlerts map[string]struct{}
}

func runDaemon(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel})
	log := logging.Component("aiopsd")
	log.Info().Str("dataDir", cfg.DataDir).Int("devices", len(cfg.Devices)).Msg("starting aiopsd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
		cancel()
	}()

	auditLog := audit.New(cfg.Path("audit"), cfg.AuditRetentionDays, time.Now, logging.Component("audit"))

	llm := llmclient.New(llmclient.Config{Timeout: cfg.LLMTimeout})
	filter := noise.New(llm, time.Now, logging.Component("noise"))
	reloadNoiseConfig(cfg, filter, log)

	cache := analysiscache.New(analysisCacheSize, analysisCacheTTL)
	analyzer := rootcause.New(rootcause.Config{DataDir: cfg.DataDir, Clock: time.Now}, llm, cache, logging.Component("rootcause"))

	dispatcher := webhookdispatch.New(webhookdispatch.Config{Channels: cfg.NotificationChannels})

	snapRouter := newSnapshotRouter()
	remediationMgr := remediation.New(remediation.Config{DataDir: cfg.DataDir, Clock: time.Now}, auditLog, logging.Component("remediation"))
	remediationMgr.SetSnapshotTaker(snapRouter)

	metricsStore := metrics.NewStore(cfg.Path("metrics"))

	watcher, err := hotreload.New(logging.Component("hotreload"))
	if err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}

	devices := make(map[string]*deviceRuntime, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		rt, err := buildDeviceRuntime(cfg, dc, auditLog, dispatcher, remediationMgr, filter, analyzer, metricsStore, log)
		if err != nil {
			return fmt.Errorf("building device runtime for %s: %w", dc.ID, err)
		}
		devices[dc.ID] = rt
		snapRouter.register(dc.ID, rt.snapshots)

		rulesPath := cfg.Path("alerts", dc.ID, "rules.json")
		_ = os.MkdirAll(cfg.Path("alerts", dc.ID), 0o755)
		if err := watcher.Watch(rulesPath, reloadLogged(rt.rules.Reload, rulesPath, log)); err != nil {
			log.Warn().Err(err).Str("path", rulesPath).Msg("could not watch alert rules file")
		}
	}

	// decisions/rules.json is shared by every device's decision.Manager
	// (each holds its own in-memory copy plus its own per-device history),
	// so one file watch reloads all of them.
	decisionRulesPath := cfg.Path(decisionRulesFile)
	_ = os.MkdirAll(cfg.Path("decisions"), 0o755)
	if err := watcher.Watch(decisionRulesPath, func() {
		for id, rt := range devices {
			if err := rt.decisions.Reload(); err != nil {
				log.Warn().Err(err).Str("device", id).Msg("decision rules hot-reload failed")
			}
		}
		log.Info().Str("path", decisionRulesPath).Msg("hot-reloaded decision rules")
	}); err != nil {
		log.Warn().Err(err).Str("path", decisionRulesPath).Msg("could not watch decision rules file")
	}

	_ = os.MkdirAll(cfg.Path("filters"), 0o755)
	maintenancePath := cfg.Path(maintenanceFile)
	if err := watcher.Watch(maintenancePath, func() { reloadNoiseConfig(cfg, filter, log) }); err != nil {
		log.Warn().Err(err).Str("path", maintenancePath).Msg("could not watch maintenance windows file")
	}
	knownIssuesPath := cfg.Path(knownIssuesFile)
	if err := watcher.Watch(knownIssuesPath, func() { reloadNoiseConfig(cfg, filter, log) }); err != nil {
		log.Warn().Err(err).Str("path", knownIssuesPath).Msg("could not watch known issues file")
	}

	watcher.Run(ctx)

	var wg sync.WaitGroup
	for _, rt := range devices {
		wg.Add(1)
		go func(rt *deviceRuntime) {
			defer wg.Done()
			runDeviceLoop(ctx, cfg, rt, log)
		}(rt)
	}

	if cfg.SyslogListenAddr != "" {
		listener, err := syslogrecv.New(syslogrecv.Config{Addr: cfg.SyslogListenAddr}, logging.Component("syslogrecv"))
		if err != nil {
			return fmt.Errorf("starting syslog listener: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("syslog listener stopped unexpectedly")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			bridgeSyslogFrames(ctx, listener, cfg, devices, log)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("aiopsd stopped")
	return nil
}

// reloadLogged wraps a no-arg reload func so a hot-reload failure is
// logged rather than silently swallowed by hotreload.Watcher's callback
// signature (which has no return value).
func reloadLogged(reload func() error, path string, log zerolog.Logger) func() {
	return func() {
		if err := reload(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("hot-reload failed")
		} else {
			log.Info().Str("path", path).Msg("hot-reloaded config file")
		}
	}
}

// reloadNoiseConfig reads the maintenance-window and known-issue JSON
// files and replaces filter's in-memory sets. noise.Filter has no
// store of its own (unlike alertrules/decision's self-contained
// Reload), so the watcher owns the read+unmarshal step.
func reloadNoiseConfig(cfg config.Config, filter *noise.Filter, log zerolog.Logger) {
	var windows []models.MaintenanceWindow
	if data, err := os.ReadFile(cfg.Path(maintenanceFile)); err == nil {
		if err := json.Unmarshal(data, &windows); err != nil {
			log.Warn().Err(err).Msg("malformed maintenance windows file")
		} else {
			filter.SetWindows(windows)
		}
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("reading maintenance windows file")
	}

	var issues []models.KnownIssue
	if data, err := os.ReadFile(cfg.Path(knownIssuesFile)); err == nil {
		if err := json.Unmarshal(data, &issues); err != nil {
			log.Warn().Err(err).Msg("malformed known issues file")
		} else {
			filter.SetKnownIssues(issues)
		}
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("reading known issues file")
	}
}

// buildDeviceRuntime constructs every per-device component for dc,
// wiring it to the fleet-wide collaborators built by runDaemon.
func buildDeviceRuntime(
	cfg config.Config,
	dc config.DeviceConfig,
	auditLog *audit.Log,
	dispatcher collab.NotificationDispatcher,
	remediationMgr *remediation.Manager,
	filter *noise.Filter,
	analyzer *rootcause.Analyzer,
	metricsStore *metrics.Store,
	log zerolog.Logger,
) (*deviceRuntime, error) {
	client := routerosclient.New(routerosclient.Config{
		BaseURL:  dc.BaseURL,
		Username: dc.Username,
		Password: dc.Password,
		Timeout:  cfg.DeviceTimeout,
	})

	collector := metrics.New(client, metricsStore, metrics.Config{
		DeviceID:      dc.ID,
		Interval:      time.Duration(cfg.Metrics.IntervalMs) * time.Millisecond,
		RetentionDays: cfg.Metrics.RetentionDays,
		Clock:         time.Now,
	}, logging.Component("metrics").With().Str("device", dc.ID).Logger())

	rateLookup := buildRateLookup(metricsStore, dc.ID)

	rulesMgr, err := alertrules.New(alertrules.Config{
		DeviceID:   dc.ID,
		DataDir:    cfg.Path("alerts", dc.ID),
		RateLookup: rateLookup,
		Clock:      time.Now,
	}, auditLog, dispatcher, logging.Component("alertrules").With().Str("device", dc.ID).Logger())
	if err != nil {
		return nil, fmt.Errorf("alertrules: %w", err)
	}

	snapMgr := snapshot.New(snapshot.Config{
		DeviceID: dc.ID,
		DataDir:  cfg.DataDir,
		Clock:    time.Now,
	}, auditLog, logging.Component("snapshot").With().Str("device", dc.ID).Logger())

	// decisions/rules.json lives under a shared directory: every
	// device's Manager reads and writes the same rule set, but tracks
	// its own history under its own deviceID.
	decisionMgr, err := decision.New(decision.Config{
		DeviceID: dc.ID,
		DataDir:  cfg.Path("decisions"),
		Clock:    time.Now,
	}, auditLog, dispatcher, remediationMgr, logging.Component("decision").With().Str("device", dc.ID).Logger())
	if err != nil {
		return nil, fmt.Errorf("decision: %w", err)
	}

	fingerprints := fingerprint.New(time.Now)
	enricher := events.NewEnricher(func(ctx context.Context, deviceID string) (models.DeviceInfo, error) {
		return models.DeviceInfo{ID: deviceID, Hostname: deviceID}, nil
	}, time.Now)

	pl := pipeline.New(pipeline.Config{
		DeviceID: dc.ID,
		Clock:    time.Now,
	}, fingerprints, enricher, filter, analyzer, decisionMgr, auditLog, client, logging.Component("pipeline").With().Str("device", dc.ID).Logger())

	return &deviceRuntime{
		id:         dc.ID,
		client:     client,
		collector:  collector,
		rules:      rulesMgr,
		decisions:  decisionMgr,
		snapshots:  snapMgr,
		flap:       events.NewFlapDetector(time.Now),
		enricher:   enricher,
		pipeline:   pl,
		seenAlerts: make(map[string]struct{}),
	}, nil
}

// buildRateLookup adapts metrics.Store's cumulative byte counters into
// alertrules.RateLookup's bytes/sec contract (§4.4 step 2): the store
// records running RxBytes+TxBytes totals per sample, so the rate over a
// window is the delta between its first and last point divided by the
// elapsed time.
func buildRateLookup(store *metrics.Store, deviceID string) alertrules.RateLookup {
	return func(ifaceName string, window time.Duration) (float64, bool) {
		now := models.FromTime(time.Now())
		from := models.FromTime(time.Now().Add(-window))
		points, err := store.GetHistory(deviceID, "interface:"+ifaceName, from, now)
		if err != nil || len(points) < 2 {
			return 0, false
		}
		first, last := points[0], points[len(points)-1]
		elapsed := time.Duration(last.Timestamp-first.Timestamp) * time.Millisecond
		if elapsed <= 0 || last.Value < first.Value {
			return 0, false
		}
		return (last.Value - first.Value) / elapsed.Seconds(), true
	}
}

// runDeviceLoop drives rt's metrics tick: sample the device, evaluate
// alert rules, detect interface flaps, and feed newly-triggered alerts
// into the pipeline. It owns CollectNow directly rather than
// metrics.Collector.Start so it can inspect each sample for alert
// evaluation and flap detection as it arrives.
func runDeviceLoop(ctx context.Context, cfg config.Config, rt *deviceRuntime, log zerolog.Logger) {
	interval := time.Duration(cfg.Metrics.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = metrics.DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sys, ifaces, err := rt.collector.CollectNow(ctx)
			if err != nil {
				log.Debug().Err(err).Str("device", rt.id).Msg("metrics collection failed")
				continue
			}

			rt.rules.Evaluate(ctx, alertrules.Sample{System: sys, Interfaces: toInterfaceMap(ifaces)})
			bridgeActiveAlerts(ctx, rt, log)

			for _, ifc := range ifaces {
				if composite, ok := rt.flap.Observe(ifc.Name, ifc.Status, &models.DeviceInfo{ID: rt.id, Hostname: rt.id}); ok {
					feedPipeline(ctx, rt, pipeline.Input{Event: composite.UnifiedEvent, Composite: true, Interface: ifc.Name}, log)
				}
			}
		}
	}
}

func toInterfaceMap(ifaces []models.InterfaceSample) map[string]models.InterfaceSample {
	out := make(map[string]models.InterfaceSample, len(ifaces))
	for _, ifc := range ifaces {
		out[ifc.Name] = ifc
	}
	return out
}

// bridgeActiveAlerts diffs alertrules.Manager's current active alert
// set against what this device runtime has already forwarded, feeding
// newly-triggered alerts into the pipeline as metric-origin events.
func bridgeActiveAlerts(ctx context.Context, rt *deviceRuntime, log zerolog.Logger) {
	active := rt.rules.GetActiveAlerts()

	rt.mu.Lock()
	seen := make(map[string]struct{}, len(active))
	var fresh []models.AlertEvent
	for _, a := range active {
		seen[a.ID] = struct{}{}
		if _, already := rt.seenAlerts[a.ID]; !already {
			fresh = append(fresh, a)
		}
	}
	rt.seenAlerts = seen
	rt.mu.Unlock()

	for _, alert := range fresh {
		event := events.NormalizeMetric(alert, rt.id)
		rule, _ := rt.rules.GetRule(alert.RuleID)

		var autoSteps []models.RemediationStep
		if rule.AutoResponse != "" {
			autoSteps = []models.RemediationStep{{Order: 1, Command: rule.AutoResponse}}
		}

		feedPipeline(ctx, rt, pipeline.Input{
			Event:     event,
			AlertID:   alert.ID,
			Channels:  rule.Channels,
			AutoSteps: autoSteps,
		}, log)
	}
}

func feedPipeline(ctx context.Context, rt *deviceRuntime, in pipeline.Input, log zerolog.Logger) {
	if res := rt.pipeline.Process(ctx, in); res.Err != nil {
		log.Warn().Err(res.Err).Str("device", rt.id).Msg("pipeline processing failed")
	}
}

// bridgeSyslogFrames maps each decoded syslog frame to a managed
// device by hostname and feeds it into that device's pipeline. A frame
// whose Host doesn't match any configured device falls back to the
// first device in cfg.Devices, since RFC 3164 frames frequently carry
// no parseable hostname at all.
func bridgeSyslogFrames(ctx context.Context, listener *syslogrecv.Listener, cfg config.Config, devices map[string]*deviceRuntime, log zerolog.Logger) {
	var fallback string
	if len(cfg.Devices) > 0 {
		fallback = cfg.Devices[0].ID
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-listener.Frames():
			if !ok {
				return
			}

			deviceID := frame.Host
			if _, known := devices[deviceID]; !known {
				deviceID = fallback
			}
			rt, ok := devices[deviceID]
			if !ok {
				log.Debug().Str("host", frame.Host).Msg("syslog frame from unrecognized device, dropping")
				continue
			}

			event := events.NormalizeSyslog(events.SyslogInput{
				Topics:   strings.Split(frame.Topic, ","),
				Severity: frame.Severity,
				Message:  frame.Body,
				DeviceID: deviceID,
				Raw:      []byte(frame.Body),
			}, models.FromTime(frame.Timestamp))

			feedPipeline(ctx, rt, pipeline.Input{Event: event}, log)
		}
	}
}
