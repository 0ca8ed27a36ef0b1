package feedback

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/viant/toolbox"

	"github.com/viant/hitl/internal/clock"
	"github.com/viant/hitl/internal/idgen"
	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
	"github.com/viant/hitl/service/event"
)

// confidenceAdjustment bounds the boost/penalty applied by approval and
// rejection feedback.
const confidenceAdjustment = 0.1

// Stats summarizes the feedback recorded for one execution.
type Stats struct {
	Total         int                          `json:"total"`
	ByType        map[approval.FeedbackType]int `json:"byType"`
	AverageRating float64                      `json:"averageRating"`
}

// Service records and interprets qualitative feedback tied to an execution.
type Service struct {
	publisher event.Publisher

	mu          sync.RWMutex
	entries     map[string]*approval.FeedbackEntry
	byExecution map[string][]string
	ratings     map[string][]float64
}

// New creates a feedback processor publishing to the supplied publisher.
func New(publisher event.Publisher) *Service {
	if publisher == nil {
		publisher = event.Nop{}
	}
	return &Service{
		publisher:   publisher,
		entries:     map[string]*approval.FeedbackEntry{},
		byExecution: map[string][]string{},
		ratings:     map[string][]float64{},
	}
}

// Submit appends a feedback entry for an execution and publishes a
// feedback.submitted event. Entries are created unprocessed.
func (s *Service) Submit(ctx context.Context, executionID string, feedbackType approval.FeedbackType, content, submitter string) (*approval.FeedbackEntry, error) {
	if executionID == "" {
		return nil, types.NewValidationError("empty execution id")
	}
	switch feedbackType {
	case approval.FeedbackApproval, approval.FeedbackRejection, approval.FeedbackRating, approval.FeedbackModification:
	default:
		return nil, types.NewValidationError("unknown feedback type " + string(feedbackType))
	}
	entry := &approval.FeedbackEntry{
		ID:          idgen.New(),
		ExecutionID: executionID,
		Type:        feedbackType,
		Content:     content,
		Submitter:   submitter,
		CreatedAt:   clock.Now(),
	}
	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.byExecution[executionID] = append(s.byExecution[executionID], entry.ID)
	s.mu.Unlock()

	s.publisher.Publish(ctx, &event.Event{
		Name:        event.FeedbackSubmitted,
		ExecutionID: executionID,
		Data:        entry,
	})
	return entry, nil
}

// Process interprets a submitted entry against the execution state and
// returns the partial state update it implies. Entries are processed exactly
// once.
func (s *Service) Process(ctx context.Context, feedbackID string, state approval.ExecutionState) (*approval.StateUpdate, error) {
	s.mu.Lock()
	entry, ok := s.entries[feedbackID]
	if !ok {
		s.mu.Unlock()
		return nil, types.NewRequestNotFoundError(feedbackID)
	}
	if entry.Processed {
		s.mu.Unlock()
		return nil, types.NewInvalidStateError(feedbackID, "processed")
	}

	update := &approval.StateUpdate{}
	switch entry.Type {
	case approval.FeedbackApproval:
		update.HumanFeedback = &approval.HumanFeedback{Approved: approval.Bool(true), Comments: entry.Content}
		update.Confidence = approval.Float(adjustConfidence(state, confidenceAdjustment))
	case approval.FeedbackRejection:
		update.HumanFeedback = &approval.HumanFeedback{Approved: approval.Bool(false), Comments: entry.Content}
		update.Confidence = approval.Float(adjustConfidence(state, -confidenceAdjustment))
	case approval.FeedbackRating:
		rating := toolbox.AsFloat(entry.Content)
		if math.IsNaN(rating) || math.IsInf(rating, 0) {
			s.mu.Unlock()
			return nil, types.NewValidationError("rating is not numeric")
		}
		s.ratings[entry.ExecutionID] = append(s.ratings[entry.ExecutionID], rating)
		update.Metadata = map[string]interface{}{
			"rating": average(s.ratings[entry.ExecutionID]),
		}
	case approval.FeedbackModification:
		modifications := map[string]interface{}{}
		if entry.Content != "" {
			if err := json.Unmarshal([]byte(entry.Content), &modifications); err != nil {
				s.mu.Unlock()
				return nil, types.NewValidationError("modification content is not a JSON object")
			}
		}
		merged := mergeMetadata(state.Metadata(), modifications)
		entry.Diff = metadataDiff(state.Metadata(), merged)
		update.HumanFeedback = &approval.HumanFeedback{Status: "needs_revision"}
		update.Metadata = merged
	}
	entry.Processed = true
	s.mu.Unlock()

	s.publisher.Publish(ctx, &event.Event{
		Name:        event.FeedbackProcessed,
		ExecutionID: entry.ExecutionID,
		Data:        entry,
	})
	return update, nil
}

// ForExecution returns the feedback log of an execution in submission order.
func (s *Service) ForExecution(executionID string) []*approval.FeedbackEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byExecution[executionID]
	out := make([]*approval.FeedbackEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.entries[id]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// ForExecutionStats summarizes the feedback recorded for an execution.
func (s *Service) ForExecutionStats(executionID string) *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &Stats{ByType: map[approval.FeedbackType]int{}}
	for _, id := range s.byExecution[executionID] {
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		stats.Total++
		stats.ByType[entry.Type]++
	}
	stats.AverageRating = average(s.ratings[executionID])
	return stats
}

func adjustConfidence(state approval.ExecutionState, delta float64) float64 {
	value := state.Confidence(0.5) + delta
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}

func mergeMetadata(current, modifications map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{}
	for key, value := range current {
		merged[key] = value
	}
	for key, value := range modifications {
		merged[key] = value
	}
	return merged
}

// metadataDiff renders a unified diff of the metadata before and after a
// modification, kept on the entry for audit.
func metadataDiff(before, after map[string]interface{}) string {
	beforeJSON, _ := json.MarshalIndent(before, "", "  ")
	afterJSON, _ := json.MarshalIndent(after, "", "  ")
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(beforeJSON)),
		B:        difflib.SplitLines(string(afterJSON)),
		FromFile: "metadata",
		ToFile:   "metadata(modified)",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}
