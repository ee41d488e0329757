package models

// Action is one of the four outcomes the decision engine can choose (§3).
type Action string

const (
	ActionAutoExecute   Action = "auto_execute"
	ActionNotifyAndWait Action = "notify_and_wait"
	ActionEscalate      Action = "escalate"
	ActionSilence       Action = "silence"
)

// Factor is one scored input to the decision engine (§4.8).
type Factor struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`  // clamped to [0,1]
	Weight float64 `json:"weight"`
}

// Decision is the recorded outcome of the decision engine for one event (§3).
type Decision struct {
	ID              string    `json:"id"`
	AlertID         string    `json:"alertId"`
	Timestamp       UnixMilli `json:"timestamp"`
	Action          Action    `json:"action"`
	Reasoning       string    `json:"reasoning"`
	Factors         []Factor  `json:"factors"`
	MatchedRuleID   string    `json:"matchedRuleId,omitempty"`
	Executed        bool      `json:"executed"`
	ExecutionResult string    `json:"executionResult,omitempty"`
	Succeeded       *bool     `json:"succeeded,omitempty"`
}

// DecisionRuleCondition is one clause of a decision rule's condition list.
type DecisionRuleCondition struct {
	Factor   string   `json:"factor"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
}

// DecisionRule maps scored factors to an action (§4.8).
type DecisionRule struct {
	ID         string                  `json:"id"`
	Priority   int                     `json:"priority"` // lower evaluated first
	Conditions []DecisionRuleCondition `json:"conditions"`
	Action     Action                  `json:"action"`
}
