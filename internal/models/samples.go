package models

// SystemSample is a single point-in-time reading of a device's system
// resources (§3 "Sample (system)").
type SystemSample struct {
	Timestamp   UnixMilli `json:"timestamp"`
	CPUPct      float64   `json:"cpuPct"`
	MemTotal    int64     `json:"memTotal"`
	MemUsed     int64     `json:"memUsed"`
	MemFreePct  float64   `json:"memFreePct"`
	DiskTotal   int64     `json:"diskTotal"`
	DiskUsed    int64     `json:"diskUsed"`
	DiskFreePct float64   `json:"diskFreePct"`
	UptimeSec   int64     `json:"uptimeSec"`
}

// InterfaceStatus is the link state of a network interface.
type InterfaceStatus string

const (
	InterfaceUp   InterfaceStatus = "up"
	InterfaceDown InterfaceStatus = "down"
)

// InterfaceSample is a single point-in-time reading of a network
// interface's counters (§3 "Sample (interface)"). Counters are
// monotonically non-decreasing across samples from a stable device; a
// decrease signals a counter reset and invalidates derived rates for
// that interval — callers computing rates must check for this.
type InterfaceSample struct {
	Timestamp UnixMilli       `json:"timestamp"`
	Name      string          `json:"name"`
	Status    InterfaceStatus `json:"status"`
	RxBytes   int64           `json:"rxBytes"`
	TxBytes   int64           `json:"txBytes"`
	RxPackets int64           `json:"rxPackets"`
	TxPackets int64           `json:"txPackets"`
	RxErrors  int64           `json:"rxErrors"`
	TxErrors  int64           `json:"txErrors"`
}

// CounterReset reports whether sample b's counters regressed relative to
// a, meaning any rate derived across the [a,b] interval is invalid.
func CounterReset(a, b InterfaceSample) bool {
	return b.RxBytes < a.RxBytes || b.TxBytes < a.TxBytes ||
		b.RxPackets < a.RxPackets || b.TxPackets < a.TxPackets
}
