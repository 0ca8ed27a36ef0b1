package event

import "time"

// Name enumerates the finite set of events published by the approval core.
type Name string

const (
	ApprovalRequested   Name = "approval.requested"
	ApprovalCompleted   Name = "approval.completed"
	ApprovalTimeout     Name = "approval.timeout"
	ApprovalEscalated   Name = "approval.escalated"
	ConfidenceEvaluated Name = "confidence.evaluated"
	RiskAssessed        Name = "risk.assessed"
	FeedbackSubmitted   Name = "feedback.submitted"
	FeedbackProcessed   Name = "feedback.processed"
)

// Event is the envelope delivered to subscribers. Data carries the domain
// payload (request, assessment, feedback entry ...).
type Event struct {
	Name        Name                   `json:"name"`
	ExecutionID string                 `json:"executionId,omitempty"`
	RequestID   string                 `json:"requestId,omitempty"`
	NodeID      string                 `json:"nodeId,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Data        interface{}            `json:"data,omitempty"`
}

// New creates an event envelope for the given name.
func New(name Name, data interface{}) *Event {
	return &Event{Name: name, Data: data}
}
