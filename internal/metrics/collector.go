// Package metrics implements the periodic metrics collector (§4.3):
// pull device resources at a configured interval, persist time-bucketed
// samples with retention, and expose history/current-value queries.
package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
	"github.com/aiops/fleet-intel/internal/collab"
	"github.com/aiops/fleet-intel/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultInterval is the collection tick period absent configuration.
const DefaultInterval = 60 * time.Second

// failuresBeforeWarning is the consecutive-failure count after which a
// warning is logged (§4.3): "after three consecutive failures, emit a
// warning log; otherwise continue."
const failuresBeforeWarning = 3

// Collector periodically samples a single device's system and
// interface resources. One Collector exists per monitored device.
type Collector struct {
	mu sync.RWMutex

	deviceID      string
	client        collab.DeviceClient
	store         *Store
	interval      time.Duration
	retentionDays int
	clock         func() time.Time
	log           zerolog.Logger

	latestSystem        *models.SystemSample
	latestInterfaces    map[string]models.InterfaceSample
	consecutiveFailures int
}

// Config configures a Collector.
type Config struct {
	DeviceID      string
	Interval      time.Duration
	RetentionDays int
	Clock         func() time.Time
}

// New creates a Collector for one device, persisting through store.
func New(client collab.DeviceClient, store *Store, cfg Config, log zerolog.Logger) *Collector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = 7
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Collector{
		deviceID:         cfg.DeviceID,
		client:           client,
		store:            store,
		interval:         interval,
		retentionDays:    retention,
		clock:            clock,
		log:              log.With().Str("component", "metrics").Str("device", cfg.DeviceID).Logger(),
		latestInterfaces: make(map[string]models.InterfaceSample),
	}
}

// Start runs the collector's tick loop until ctx is cancelled. It sweeps
// retention once at startup, per §4.3.
func (c *Collector) Start(ctx context.Context) {
	if err := c.store.Sweep(c.deviceID, c.retentionDays, c.clock()); err != nil {
		c.log.Error().Err(err).Msg("retention sweep failed at startup")
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Collector) tick(ctx context.Context) {
	if !c.client.IsConnected(ctx) {
		c.recordFailure("device not connected")
		return
	}

	sys, ifaces, err := c.fetch(ctx)
	if err != nil {
		c.recordFailure(err.Error())
		return
	}

	c.mu.Lock()
	c.consecutiveFailures = 0
	c.latestSystem = &sys
	for _, ifc := range ifaces {
		c.latestInterfaces[ifc.Name] = ifc
	}
	c.mu.Unlock()

	if err := c.store.Append(c.deviceID, c.clock(), sys, ifaces); err != nil {
		c.log.Error().Err(err).Msg("failed to persist sample")
	}
}

func (c *Collector) recordFailure(reason string) {
	c.mu.Lock()
	c.consecutiveFailures++
	n := c.consecutiveFailures
	c.mu.Unlock()

	if n >= failuresBeforeWarning {
		c.log.Warn().Int("consecutiveFailures", n).Str("reason", reason).Msg("metrics collection repeatedly failing")
	} else {
		c.log.Debug().Str("reason", reason).Msg("metrics collection failed")
	}
}

// fetch pulls /system/resource and /interface concurrently and parses
// them into samples.
func (c *Collector) fetch(ctx context.Context) (models.SystemSample, []models.InterfaceSample, error) {
	var sys models.SystemSample
	var ifaces []models.InterfaceSample

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := c.client.Print(gctx, "/system/resource")
		if err != nil {
			return apperr.Wrap(apperr.Dependency, "metrics.fetch", "fetching /system/resource", err)
		}
		s, err := parseSystemSample(rows, c.clock())
		if err != nil {
			return err
		}
		sys = s
		return nil
	})
	g.Go(func() error {
		rows, err := c.client.Print(gctx, "/interface")
		if err != nil {
			return apperr.Wrap(apperr.Dependency, "metrics.fetch", "fetching /interface", err)
		}
		ifaces = parseInterfaceSamples(rows, c.clock())
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.SystemSample{}, nil, err
	}
	return sys, ifaces, nil
}

// CollectNow bypasses the timer and returns a fresh snapshot, also
// persisting it (§4.3).
func (c *Collector) CollectNow(ctx context.Context) (models.SystemSample, []models.InterfaceSample, error) {
	sys, ifaces, err := c.fetch(ctx)
	if err != nil {
		return models.SystemSample{}, nil, err
	}

	c.mu.Lock()
	c.latestSystem = &sys
	for _, ifc := range ifaces {
		c.latestInterfaces[ifc.Name] = ifc
	}
	c.mu.Unlock()

	if err := c.store.Append(c.deviceID, c.clock(), sys, ifaces); err != nil {
		c.log.Error().Err(err).Msg("failed to persist collectNow sample")
	}
	return sys, ifaces, nil
}

// Latest returns the most recent system sample and interface samples.
func (c *Collector) Latest() (*models.SystemSample, map[string]models.InterfaceSample) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ifaces := make(map[string]models.InterfaceSample, len(c.latestInterfaces))
	for k, v := range c.latestInterfaces {
		ifaces[k] = v
	}
	return c.latestSystem, ifaces
}

func parseSystemSample(rows []map[string]string, now time.Time) (models.SystemSample, error) {
	if len(rows) == 0 {
		return models.SystemSample{}, apperr.New(apperr.Dependency, "metrics.parseSystemSample", "empty /system/resource response")
	}
	row := rows[0]

	cpuPct := parseFloat(row["cpu-load"])
	memTotal := parseInt(row["total-memory"])
	memFree := parseInt(row["free-memory"])
	memUsed := memTotal - memFree
	diskTotal := parseInt(row["total-hdd-space"])
	diskFree := parseInt(row["free-hdd-space"])
	diskUsed := diskTotal - diskFree

	uptimeSec, err := ParseUptime(row["uptime"])
	if err != nil {
		uptimeSec = 0
	}

	s := models.SystemSample{
		Timestamp:   models.FromTime(now),
		CPUPct:      cpuPct,
		MemTotal:    memTotal,
		MemUsed:     memUsed,
		MemFreePct:  pct(memFree, memTotal),
		DiskTotal:   diskTotal,
		DiskUsed:    diskUsed,
		DiskFreePct: pct(diskFree, diskTotal),
		UptimeSec:   uptimeSec,
	}
	return s, nil
}

func parseInterfaceSamples(rows []map[string]string, now time.Time) []models.InterfaceSample {
	out := make([]models.InterfaceSample, 0, len(rows))
	ts := models.FromTime(now)
	for _, row := range rows {
		status := models.InterfaceDown
		if row["running"] == "true" || row["status"] == "up" {
			status = models.InterfaceUp
		}
		out = append(out, models.InterfaceSample{
			Timestamp: ts,
			Name:      row["name"],
			Status:    status,
			RxBytes:   parseInt(row["rx-byte"]),
			TxBytes:   parseInt(row["tx-byte"]),
			RxPackets: parseInt(row["rx-packet"]),
			TxPackets: parseInt(row["tx-packet"]),
			RxErrors:  parseInt(row["rx-error"]),
			TxErrors:  parseInt(row["tx-error"]),
		})
	}
	return out
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func pct(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
