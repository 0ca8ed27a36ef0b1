package approval

import (
	"time"
)

// State represents the lifecycle state of an approval request.
type State string

const (
	StateInProgress State = "inProgress"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateEscalated  State = "escalated"
	StateTimeout    State = "timeout"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether no further transition may be applied.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateRejected, StateTimeout, StateCancelled, StateEscalated:
		return true
	}
	return false
}

// Decision represents a single approver verdict recorded in request history.
type Decision string

const (
	DecisionApproved  Decision = "approved"
	DecisionRejected  Decision = "rejected"
	DecisionEscalated Decision = "escalated"
	DecisionRetry     Decision = "retry"
	DecisionModify    Decision = "modify"
)

// TimeoutStrategy selects what happens when a request expires without a
// human response.
type TimeoutStrategy string

const (
	TimeoutApprove  TimeoutStrategy = "approve"
	TimeoutReject   TimeoutStrategy = "reject"
	TimeoutEscalate TimeoutStrategy = "escalate"
	TimeoutRetry    TimeoutStrategy = "retry"
)

// SystemApprover identifies decisions synthesized by the engine itself, e.g.
// auto-approval on timeout or a chain with no applicable levels.
const SystemApprover = "system"

// Confidence carries the score computed for a request together with the gate
// threshold and the per-factor breakdown that produced it.
type Confidence struct {
	Current   float64            `json:"current"`
	Threshold float64            `json:"threshold"`
	Factors   map[string]float64 `json:"factors,omitempty"`
}

// Timeout holds the request-level expiry configuration.
type Timeout struct {
	Duration time.Duration   `json:"duration"`
	Strategy TimeoutStrategy `json:"strategy"`
}

// Retry tracks how many times the gate was re-armed by a retry response.
type Retry struct {
	Count       int `json:"count"`
	MaxAttempts int `json:"maxAttempts"`
}

// HistoryEntry is one immutable record of an approver action. History is
// append-only; entries are never edited or removed.
type HistoryEntry struct {
	LevelID  string    `json:"levelId,omitempty"`
	Approver string    `json:"approver"`
	Decision Decision  `json:"decision"`
	Comments string    `json:"comments,omitempty"`
	At       time.Time `json:"at"`
}

// Request represents a request for human approval of a workflow step.
type Request struct {
	ID          string `json:"id"`
	ExecutionID string `json:"executionId"`
	NodeID      string `json:"nodeId"`
	Message     string `json:"message,omitempty"`

	Confidence Confidence      `json:"confidence"`
	Risk       *RiskAssessment `json:"risk,omitempty"`
	Timeout    Timeout         `json:"timeout"`
	Retry      Retry           `json:"retry"`

	State     State          `json:"state"`
	Approvers []string       `json:"approvers,omitempty"`
	History   []HistoryEntry `json:"history,omitempty"`

	// Chain holds the required levels when the request is chain-scoped;
	// CurrentLevel indexes into it.
	ChainID      string   `json:"chainId,omitempty"`
	Chain        []*Level `json:"chain,omitempty"`
	CurrentLevel int      `json:"currentLevel,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

// AppendHistory records an approver action on the request.
func (r *Request) AppendHistory(levelID, approver string, decision Decision, comments string, at time.Time) {
	r.History = append(r.History, HistoryEntry{
		LevelID:  levelID,
		Approver: approver,
		Decision: decision,
		Comments: comments,
		At:       at,
	})
}

// LevelHistory returns the history entries recorded for the given level.
func (r *Request) LevelHistory(levelID string) []HistoryEntry {
	var out []HistoryEntry
	for _, entry := range r.History {
		if entry.LevelID == levelID {
			out = append(out, entry)
		}
	}
	return out
}

// ActiveLevel returns the level the request is currently positioned at, or
// nil when the request is not chain-scoped.
func (r *Request) ActiveLevel() *Level {
	if r.CurrentLevel < 0 || r.CurrentLevel >= len(r.Chain) {
		return nil
	}
	return r.Chain[r.CurrentLevel]
}

// Clone returns a copy safe to hand to concurrent readers: slices, the
// factor map and the response timestamp are copied. Levels and the risk
// assessment are immutable once attached and stay shared.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Approvers = append([]string(nil), r.Approvers...)
	clone.History = append([]HistoryEntry(nil), r.History...)
	clone.Chain = append([]*Level(nil), r.Chain...)
	if r.RespondedAt != nil {
		at := *r.RespondedAt
		clone.RespondedAt = &at
	}
	if r.Confidence.Factors != nil {
		factors := make(map[string]float64, len(r.Confidence.Factors))
		for name, value := range r.Confidence.Factors {
			factors[name] = value
		}
		clone.Confidence.Factors = factors
	}
	return &clone
}

// Response is a human (or system) answer to a pending approval request.
type Response struct {
	Decision      Decision               `json:"decision"`
	Approver      string                 `json:"approver,omitempty"`
	Message       string                 `json:"message,omitempty"`
	Modifications map[string]interface{} `json:"modifications,omitempty"`
}
