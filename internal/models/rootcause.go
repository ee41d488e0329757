package models

// RootCause is a single ranked hypothesis within an analysis (§3).
type RootCause struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Confidence    int      `json:"confidence"` // 0..100
	Evidence      []string `json:"evidence,omitempty"`
	RelatedAlerts []string `json:"relatedAlerts,omitempty"`
	Source        string   `json:"source,omitempty"` // "pattern" or "ai"
}

// TimelineEntryKind classifies a timeline entry relative to the incident.
type TimelineEntryKind string

const (
	TimelineTrigger TimelineEntryKind = "trigger"
	TimelineCause   TimelineEntryKind = "cause"
	TimelineEffect  TimelineEntryKind = "effect"
	TimelineSymptom TimelineEntryKind = "symptom"
)

// TimelineEntry is one event placed on the incident timeline.
type TimelineEntry struct {
	EventID   string            `json:"eventId"`
	Timestamp UnixMilli         `json:"timestamp"`
	Kind      TimelineEntryKind `json:"kind"`
	Message   string            `json:"message"`
}

// ImpactScope classifies the blast radius of an incident.
type ImpactScope string

const (
	ScopeLocal      ImpactScope = "local"
	ScopePartial    ImpactScope = "partial"
	ScopeWidespread ImpactScope = "widespread"
)

// Impact describes the estimated blast radius of an incident (§4.7).
type Impact struct {
	Scope            ImpactScope `json:"scope"`
	Services         []string    `json:"services,omitempty"`
	NetworkSegments  []string    `json:"networkSegments,omitempty"`
	AffectedUsersEst int         `json:"affectedUsersEst"`
}

// SimilarIncident links a past analysis judged similar to the current one.
type SimilarIncident struct {
	AnalysisID string    `json:"analysisId"`
	AlertID    string    `json:"alertId"`
	Similarity float64   `json:"similarity"`
	Timestamp  UnixMilli `json:"timestamp"`
}

// RootCauseAnalysis is the full output of the root-cause analyzer (§3).
type RootCauseAnalysis struct {
	ID               string            `json:"id"`
	AlertID          string            `json:"alertId"`
	Timestamp        UnixMilli         `json:"timestamp"`
	RootCauses       []RootCause       `json:"rootCauses"`
	Timeline         []TimelineEntry   `json:"timeline"`
	Impact           Impact            `json:"impact"`
	SimilarIncidents []SimilarIncident `json:"similarIncidents,omitempty"`
}
