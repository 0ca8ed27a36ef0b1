package approval

import (
	"math"

	"github.com/viant/toolbox"
)

// ExecutionState is a snapshot of the workflow state an approval decision is
// made against. Keys are workflow-defined; the engine only interprets a small
// well-known subset.
type ExecutionState map[string]interface{}

// Well-known execution state keys.
const (
	StateKeyConfidence = "confidence"
	StateKeyMetadata   = "metadata"
	StateKeyUserRole   = "userRole"
)

// Confidence returns the raw confidence carried by the state, or def when the
// key is absent or not coercible to a finite number.
func (s ExecutionState) Confidence(def float64) float64 {
	raw, ok := s[StateKeyConfidence]
	if !ok || raw == nil {
		return def
	}
	value := toolbox.AsFloat(raw)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}
	return value
}

// Metadata returns the state metadata map, or nil when absent.
func (s ExecutionState) Metadata() map[string]interface{} {
	if meta, ok := s[StateKeyMetadata].(map[string]interface{}); ok {
		return meta
	}
	return nil
}

// UserRole returns the caller role recorded in the state, empty when absent.
func (s ExecutionState) UserRole() string {
	if role, ok := s[StateKeyUserRole].(string); ok {
		return role
	}
	return ""
}

// HumanFeedback is the feedback portion of a partial state update.
type HumanFeedback struct {
	Approved *bool  `json:"approved,omitempty"`
	Status   string `json:"status,omitempty"`
	Comments string `json:"comments,omitempty"`
}

// StateUpdate is the partial workflow-state delta returned to the caller
// after a gate decision. Only set fields apply.
type StateUpdate struct {
	ApprovalReceived   *bool                  `json:"approvalReceived,omitempty"`
	WaitingForApproval bool                   `json:"waitingForApproval,omitempty"`
	RejectionReason    string                 `json:"rejectionReason,omitempty"`
	Confidence         *float64               `json:"confidence,omitempty"`
	HumanFeedback      *HumanFeedback         `json:"humanFeedback,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Bool is a convenience helper for optional boolean fields.
func Bool(v bool) *bool { return &v }

// Float is a convenience helper for optional float fields.
func Float(v float64) *float64 { return &v }
