package approval

import "time"

// Policy determines when a level's approvers collectively approve or reject.
type Policy string

const (
	// PolicyAll approves when every approver approved; any rejection rejects.
	PolicyAll Policy = "all"
	// PolicyAny approves on the first approval; rejects only when every
	// approver rejected.
	PolicyAny Policy = "any"
	// PolicyMajority approves/rejects once more than half of the approvers
	// agree.
	PolicyMajority Policy = "majority"
	// PolicyThreshold approves once the configured number of approvals is
	// reached; rejects once enough rejections make that impossible.
	PolicyThreshold Policy = "threshold"
)

// Operator names a comparison applied by a level condition.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

// Condition gates whether a level participates in a given approval. Field
// selects a key from the evaluation context; an empty Field compares the
// whole context value.
type Condition struct {
	Field    string      `json:"field,omitempty"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Level is one step of an approval chain. Levels are immutable once
// registered; lower Priority is evaluated first.
type Level struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Priority  int         `json:"priority"`
	Approvers []string    `json:"approvers"`
	Policy    Policy      `json:"policy"`
	// Threshold is the number of approvals required by PolicyThreshold;
	// values below 1 are treated as 1.
	Threshold  int         `json:"threshold,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`

	Timeout              time.Duration `json:"timeout,omitempty"`
	AutoApproveOnTimeout bool          `json:"autoApproveOnTimeout,omitempty"`
}
