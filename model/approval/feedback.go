package approval

import "time"

// FeedbackType classifies qualitative feedback tied to an execution.
type FeedbackType string

const (
	FeedbackApproval     FeedbackType = "approval"
	FeedbackRejection    FeedbackType = "rejection"
	FeedbackRating       FeedbackType = "rating"
	FeedbackModification FeedbackType = "modification"
)

// FeedbackEntry is one submitted piece of feedback. Entries form an
// append-only log per execution and are mutated exactly once, by processing.
type FeedbackEntry struct {
	ID          string       `json:"id"`
	ExecutionID string       `json:"executionId"`
	Type        FeedbackType `json:"type"`
	Content     string       `json:"content,omitempty"`
	Submitter   string       `json:"submitter,omitempty"`
	Processed   bool         `json:"processed"`
	// Diff holds a unified diff of the execution metadata recorded when a
	// modification entry is applied.
	Diff      string    `json:"diff,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
