// Package collab defines the external collaborator interfaces the core
// pipeline depends on but does not implement (§6): the device protocol
// client, the LLM analysis service, the notification dispatcher, and the
// cron scheduler. Concrete adapters for these live outside the core, per
// spec.md §1's scope boundary.
package collab

import "context"

// DeviceClient is the device protocol client used to fetch metrics and
// run scripts against a single managed device.
type DeviceClient interface {
	IsConnected(ctx context.Context) bool
	Print(ctx context.Context, path string) ([]map[string]string, error)
	ExecuteRaw(ctx context.Context, path string, params map[string]string) (any, error)
}

// AnalyzeRequest is the input to one best-effort LLM analysis call.
type AnalyzeRequest struct {
	Type    string         // e.g. "root_cause", "noise_filter", "decision"
	Context map[string]any
}

// AnalyzeResult is the LLM analyzer's best-effort output.
type AnalyzeResult struct {
	Summary         string
	Recommendations []string
	RiskLevel       string
	Confidence      float64
}

// LLMAnalyzer enriches root-cause text and decisions. Calls are
// best-effort: callers must bound them with a timeout and degrade
// gracefully on error (§5, §7).
type LLMAnalyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error)
}

// Notification is a single message handed to the dispatcher.
type Notification struct {
	Type     string
	Title    string
	Body     string
	Data     map[string]any
	Priority string // "normal" or "high"
}

// NotificationDispatcher sends notifications to named channels.
type NotificationDispatcher interface {
	Send(ctx context.Context, channels []string, n Notification) error
}

// Scheduler registers a handler to be invoked by an external cron-like
// scheduler for a given job type. The core's own periodic work (ticks,
// cleanups, retention sweeps) is driven by per-component tickers, not
// this interface; this exists for jobs that must be externally
// orchestrated (e.g. recurring maintenance-window recomputation shared
// across processes).
type Scheduler interface {
	RegisterHandler(jobType string, fn func(ctx context.Context))
}
