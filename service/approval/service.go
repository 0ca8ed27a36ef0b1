package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/viant/hitl/internal/clock"
	"github.com/viant/hitl/internal/idgen"
	"github.com/viant/hitl/internal/keyed"
	"github.com/viant/hitl/internal/metrics"
	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
	"github.com/viant/hitl/service/chain"
	"github.com/viant/hitl/service/confidence"
	"github.com/viant/hitl/service/dao"
	"github.com/viant/hitl/service/event"
	"github.com/viant/hitl/service/feedback"
	"github.com/viant/hitl/service/notify"
	"github.com/viant/hitl/service/scheduler"
	"github.com/viant/hitl/tracing"
)

// Service is the human-in-the-loop orchestrator: it creates approval
// requests, scores them, delegates chain participation, owns the per-request
// timeout timer and state machine, and feeds outcomes back to the evaluator.
//
// All mutating operations on the same request are serialized by a
// per-request mutex; only the first mutation that observes a pending request
// proceeds, every later one fails with ErrInvalidState.
type Service struct {
	config    Config
	requests  dao.Service[string, approval.Request]
	evaluator *confidence.Service
	chains    *chain.Service
	feedback  *feedback.Service
	publisher event.Publisher
	notifier  *notify.Registry
	timers    *scheduler.Scheduler
	locks     *keyed.Mutexes
}

// New creates the orchestrator. The request store, scheduler and lock
// registry are shared with the chain service so chain-scoped and
// orchestrator-scoped mutations serialize against each other.
func New(config Config,
	requests dao.Service[string, approval.Request],
	evaluator *confidence.Service,
	chains *chain.Service,
	feedbackService *feedback.Service,
	publisher event.Publisher,
	notifier *notify.Registry,
	timers *scheduler.Scheduler,
	locks *keyed.Mutexes) *Service {
	if publisher == nil {
		publisher = event.Nop{}
	}
	defaults := DefaultConfig()
	if config.ConfidenceThreshold <= 0 || config.ConfidenceThreshold > 1 {
		config.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.OnTimeout == "" {
		config.OnTimeout = defaults.OnTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	return &Service{
		config:    config,
		requests:  requests,
		evaluator: evaluator,
		chains:    chains,
		feedback:  feedbackService,
		publisher: publisher,
		notifier:  notifier,
		timers:    timers,
		locks:     locks,
	}
}

// Request gates a workflow step behind human approval. Confidence is always
// evaluated; risk only when enabled. Evaluation failures never block the
// gate: they resolve to neutral defaults inside the evaluator.
func (s *Service) Request(ctx context.Context, executionID, nodeID, message string, state approval.ExecutionState, opts *Options) (*approval.Request, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.request")
	defer span.End(nil)
	if opts == nil {
		opts = &Options{}
	}

	score := s.evaluator.Evaluate(ctx, executionID, nodeID, state, nil)
	threshold := s.config.ConfidenceThreshold
	if opts.ConfidenceThreshold != nil {
		threshold = *opts.ConfidenceThreshold
	}
	var risk *approval.RiskAssessment
	if opts.Risk != nil && opts.Risk.Enabled {
		risk = s.evaluator.AssessRisk(ctx, executionID, state, &confidence.RiskOptions{
			Factors:   opts.Risk.Factors,
			Weights:   opts.Risk.Weights,
			Evaluator: opts.Risk.Evaluator,
		})
	}

	highRisk := risk != nil && opts.RiskThreshold != "" &&
		risk.Level.Severity() >= opts.RiskThreshold.Severity()
	if !highRisk && s.shouldSkip(opts.Skip, score, state) {
		return s.autoApprove(ctx, executionID, nodeID, message, score, threshold, risk)
	}

	request, err := s.buildRequest(ctx, executionID, nodeID, message, state, opts, score, threshold, risk)
	if err != nil {
		return nil, err
	}
	// snapshot before the timer is armed so the caller never shares memory
	// with the timer goroutine
	snapshot := request.Clone()
	if request.State == approval.StateInProgress {
		s.armTimer(request)
	}
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalRequested, snapshot))
	s.notifier.Send(executionID, snapshot)
	return snapshot, nil
}

func (s *Service) buildRequest(ctx context.Context, executionID, nodeID, message string, state approval.ExecutionState, opts *Options, score, threshold float64, risk *approval.RiskAssessment) (*approval.Request, error) {
	now := clock.Now()
	timeout := approval.Timeout{Duration: s.config.Timeout, Strategy: s.config.OnTimeout}
	if opts.Timeout > 0 {
		timeout.Duration = opts.Timeout
	}
	if opts.OnTimeout != "" {
		timeout.Strategy = opts.OnTimeout
	}
	maxAttempts := s.config.MaxAttempts
	if opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	var request *approval.Request
	if opts.ChainID != "" {
		evalContext := map[string]interface{}{}
		for key, value := range state {
			evalContext[key] = value
		}
		evalContext[approval.StateKeyConfidence] = score
		chainRequest, err := s.chains.Initiate(ctx, executionID, opts.ChainID, evalContext)
		if err != nil {
			return nil, fmt.Errorf("failed to initiate chain %v: %w", opts.ChainID, err)
		}
		request = chainRequest
		request.Approvers = mergeApprovers(opts.Approvers, request.Approvers)
	} else {
		request = &approval.Request{
			ID:          idgen.New(),
			ExecutionID: executionID,
			State:       approval.StateInProgress,
			Approvers:   append([]string(nil), opts.Approvers...),
			CreatedAt:   now,
		}
	}
	// a chain-scoped request may already have a level timer armed, so the
	// enrichment below serializes against it
	s.locks.Lock(request.ID)
	defer s.locks.Unlock(request.ID)
	request.NodeID = nodeID
	request.Message = message
	request.Confidence = approval.Confidence{
		Current:   score,
		Threshold: threshold,
		Factors:   s.evaluator.Factors(executionID),
	}
	request.Risk = risk
	request.Timeout = timeout
	request.Retry = approval.Retry{MaxAttempts: maxAttempts}
	if err := s.requests.Save(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *Service) shouldSkip(skip *SkipConditions, score float64, state approval.ExecutionState) bool {
	if skip == nil {
		return false
	}
	if skip.HighConfidence > 0 && score >= skip.HighConfidence {
		return true
	}
	role := state.UserRole()
	for _, trusted := range skip.UserRoles {
		if role != "" && role == trusted {
			return true
		}
	}
	return false
}

// autoApprove records a system-approved request so skipped gates still leave
// an auditable trail and feed the learning loop.
func (s *Service) autoApprove(ctx context.Context, executionID, nodeID, message string, score, threshold float64, risk *approval.RiskAssessment) (*approval.Request, error) {
	now := clock.Now()
	request := &approval.Request{
		ID:          idgen.New(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     message,
		Confidence:  approval.Confidence{Current: score, Threshold: threshold, Factors: s.evaluator.Factors(executionID)},
		Risk:        risk,
		State:       approval.StateApproved,
		CreatedAt:   now,
		RespondedAt: &now,
	}
	request.AppendHistory("", approval.SystemApprover, approval.DecisionApproved, "skip conditions met", now)
	if err := s.requests.Save(ctx, request); err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalCompleted, request))
	s.notifier.Send(executionID, request)
	s.evaluator.Learn(nodeID, true, score, nil)
	metrics.ObserveOutcome(string(approval.StateApproved), 0)
	return request.Clone(), nil
}

// Respond applies a human decision to a pending request. The request is
// mutated only when it is still pending; a request already resolved returns
// a failed outcome with its history untouched.
func (s *Service) Respond(ctx context.Context, requestID string, response *approval.Response) *Outcome {
	if response == nil {
		return failure(types.NewValidationError("nil response"))
	}
	s.locks.Lock(requestID)
	request, err := s.requests.Load(ctx, requestID)
	if err != nil {
		s.locks.Unlock(requestID)
		return failure(err)
	}
	if request == nil {
		s.locks.Unlock(requestID)
		return failure(types.NewRequestNotFoundError(requestID))
	}
	if request.State != approval.StateInProgress {
		s.locks.Unlock(requestID)
		return failure(types.NewInvalidStateError(requestID, string(request.State)))
	}

	var outcome *Outcome
	delegateEscalation := false
	now := clock.Now()
	switch response.Decision {
	case approval.DecisionApproved:
		request.AppendHistory(activeLevelID(request), response.Approver, approval.DecisionApproved, response.Message, now)
		s.completeLocked(ctx, request, approval.StateApproved)
		outcome = &Outcome{
			Success: true,
			Request: request,
			NextState: &approval.StateUpdate{
				ApprovalReceived: approval.Bool(true),
				HumanFeedback:    &approval.HumanFeedback{Approved: approval.Bool(true), Comments: response.Message},
			},
		}
	case approval.DecisionRejected:
		outcome = s.rejectLocked(ctx, request, response.Approver, response.Message)
	case approval.DecisionEscalated:
		request.AppendHistory(activeLevelID(request), response.Approver, approval.DecisionEscalated, response.Message, now)
		_ = s.requests.Save(ctx, request)
		s.publisher.Publish(ctx, s.requestEvent(event.ApprovalEscalated, request))
		delegateEscalation = request.ChainID != ""
		outcome = &Outcome{
			Success:   true,
			Request:   request,
			NextState: &approval.StateUpdate{WaitingForApproval: true},
		}
	case approval.DecisionRetry:
		outcome = s.retryLocked(ctx, request, response.Approver, response.Message)
	case approval.DecisionModify:
		request.AppendHistory(activeLevelID(request), response.Approver, approval.DecisionModify, response.Message, now)
		_ = s.requests.Save(ctx, request)
		s.submitModification(ctx, request, response)
		outcome = &Outcome{
			Success: true,
			Request: request,
			NextState: &approval.StateUpdate{
				HumanFeedback: &approval.HumanFeedback{Status: "needs_revision"},
				Metadata:      map[string]interface{}{"humanModifications": response.Modifications},
			},
		}
	default:
		s.locks.Unlock(requestID)
		return failure(types.NewValidationError("unknown decision " + string(response.Decision)))
	}
	// readers and timers keep mutating the stored request; callers get a copy
	outcome.Request = outcome.Request.Clone()
	s.locks.Unlock(requestID)

	// Escalation on a chain-scoped request advances the chain to its next
	// level; the chain service takes the same per-request lock.
	if delegateEscalation {
		if advanced, err := s.chains.Escalate(ctx, requestID); err == nil {
			outcome.Request = advanced
		}
	}
	return outcome
}

// rejectLocked applies the terminal rejected transition. Caller holds the
// request lock.
func (s *Service) rejectLocked(ctx context.Context, request *approval.Request, approver, reason string) *Outcome {
	request.AppendHistory(activeLevelID(request), approver, approval.DecisionRejected, reason, clock.Now())
	s.completeLocked(ctx, request, approval.StateRejected)
	return &Outcome{
		Success: true,
		Request: request,
		NextState: &approval.StateUpdate{
			ApprovalReceived: approval.Bool(false),
			RejectionReason:  reason,
		},
	}
}

// retryLocked re-arms the gate until attempts are exhausted, then falls
// through to rejection. Caller holds the request lock.
func (s *Service) retryLocked(ctx context.Context, request *approval.Request, approver, message string) *Outcome {
	request.Retry.Count++
	if request.Retry.Count >= request.Retry.MaxAttempts {
		reason := message
		if reason == "" {
			reason = "retry attempts exhausted"
		}
		return s.rejectLocked(ctx, request, approver, reason)
	}
	request.AppendHistory(activeLevelID(request), approver, approval.DecisionRetry, message, clock.Now())
	_ = s.requests.Save(ctx, request)
	s.armTimer(request)
	return &Outcome{
		Success:   true,
		Request:   request,
		NextState: &approval.StateUpdate{WaitingForApproval: true},
	}
}

func (s *Service) submitModification(ctx context.Context, request *approval.Request, response *approval.Response) {
	if s.feedback == nil {
		return
	}
	content := ""
	if len(response.Modifications) > 0 {
		if data, err := json.Marshal(response.Modifications); err == nil {
			content = string(data)
		}
	}
	_, _ = s.feedback.Submit(ctx, request.ExecutionID, approval.FeedbackModification, content, response.Approver)
}

// handleTimeout is the timer callback. The pending re-check makes a timer
// that lost the race against a human response a guaranteed no-op.
func (s *Service) handleTimeout(requestID string) {
	ctx := context.Background()
	s.locks.Lock(requestID)
	request, err := s.requests.Load(ctx, requestID)
	if err != nil || request == nil || request.State != approval.StateInProgress {
		s.locks.Unlock(requestID)
		return
	}
	metrics.ObserveTimeout()
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalTimeout, request))

	now := clock.Now()
	delegateEscalation := false
	switch request.Timeout.Strategy {
	case approval.TimeoutApprove:
		request.AppendHistory(activeLevelID(request), approval.SystemApprover, approval.DecisionApproved, "auto-approved on timeout", now)
		s.completeLocked(ctx, request, approval.StateApproved)
	case approval.TimeoutEscalate:
		request.AppendHistory(activeLevelID(request), approval.SystemApprover, approval.DecisionEscalated, "escalated on timeout", now)
		s.publisher.Publish(ctx, s.requestEvent(event.ApprovalEscalated, request))
		if request.ChainID != "" {
			// stays pending, the chain advances a level and the timer re-arms
			_ = s.requests.Save(ctx, request)
			s.armTimer(request)
			delegateEscalation = true
		} else {
			s.completeLocked(ctx, request, approval.StateEscalated)
		}
	case approval.TimeoutRetry:
		request.Retry.Count++
		if request.Retry.Count < request.Retry.MaxAttempts {
			request.AppendHistory(activeLevelID(request), approval.SystemApprover, approval.DecisionRetry, "re-armed on timeout", now)
			_ = s.requests.Save(ctx, request)
			s.armTimer(request)
		} else {
			request.AppendHistory(activeLevelID(request), approval.SystemApprover, approval.DecisionRejected, "retry attempts exhausted", now)
			s.completeLocked(ctx, request, approval.StateRejected)
		}
	default: // approval.TimeoutReject
		request.AppendHistory(activeLevelID(request), approval.SystemApprover, approval.DecisionRejected, "timed out", now)
		s.completeLocked(ctx, request, approval.StateRejected)
	}
	s.locks.Unlock(requestID)

	if delegateEscalation {
		_, _ = s.chains.Escalate(ctx, requestID)
	}
}

// Cancel resolves a pending request as cancelled; it reports whether the
// cancellation took effect.
func (s *Service) Cancel(ctx context.Context, requestID string) bool {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)
	request, err := s.requests.Load(ctx, requestID)
	if err != nil || request == nil || request.State != approval.StateInProgress {
		return false
	}
	request.AppendHistory(activeLevelID(request), approval.SystemApprover, approval.DecisionRejected, "cancelled", clock.Now())
	s.completeLocked(ctx, request, approval.StateCancelled)
	return true
}

// completeLocked applies a terminal transition: it cancels outstanding
// timers, freezes the request, publishes completion, pushes an update and
// feeds the outcome to the evaluator. Caller holds the request lock.
func (s *Service) completeLocked(ctx context.Context, request *approval.Request, state approval.State) {
	s.timers.Cancel(requestTimerKey(request.ID))
	s.timers.Cancel("level:" + request.ID)
	now := clock.Now()
	request.State = state
	request.RespondedAt = &now
	_ = s.requests.Save(ctx, request)
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalCompleted, request))
	s.notifier.Send(request.ExecutionID, request)
	s.evaluator.Learn(request.NodeID, state == approval.StateApproved, request.Confidence.Current, nil)
	metrics.ObserveOutcome(string(state), now.Sub(request.CreatedAt))
}

func (s *Service) armTimer(request *approval.Request) {
	requestID := request.ID
	s.timers.Schedule(requestTimerKey(requestID), request.Timeout.Duration, func() {
		s.handleTimeout(requestID)
	})
}

// Get returns a copy of a request by id; unknown ids yield a typed
// not-found error. The copy is taken under the per-request lock so reads may
// run concurrently with responses and timers.
func (s *Service) Get(ctx context.Context, requestID string) (*approval.Request, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)
	request, err := s.requests.Load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, types.NewRequestNotFoundError(requestID)
	}
	return request.Clone(), nil
}

// Pending lists copies of all requests still awaiting a decision.
func (s *Service) Pending(ctx context.Context) ([]*approval.Request, error) {
	all, err := s.requests.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]*approval.Request, 0, len(all))
	for _, request := range all {
		s.locks.Lock(request.ID)
		if request.State == approval.StateInProgress {
			pending = append(pending, request.Clone())
		}
		s.locks.Unlock(request.ID)
	}
	return pending, nil
}

// ForExecution lists copies of the requests recorded for an execution.
func (s *Service) ForExecution(ctx context.Context, executionID string) ([]*approval.Request, error) {
	all, err := s.requests.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*approval.Request
	for _, request := range all {
		s.locks.Lock(request.ID)
		if request.ExecutionID == executionID {
			out = append(out, request.Clone())
		}
		s.locks.Unlock(request.ID)
	}
	return out, nil
}

// Stats aggregates all known requests by state, approval rate, response
// latency and timeout rate.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.requests.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByState: map[approval.State]int{}}
	var responded int
	var totalResponse time.Duration
	for _, request := range all {
		s.locks.Lock(request.ID)
		stats.Total++
		stats.ByState[request.State]++
		if request.RespondedAt != nil {
			responded++
			totalResponse += request.RespondedAt.Sub(request.CreatedAt)
		}
		s.locks.Unlock(request.ID)
	}
	approved := stats.ByState[approval.StateApproved]
	rejected := stats.ByState[approval.StateRejected]
	if approved+rejected > 0 {
		stats.ApprovalRate = float64(approved) / float64(approved+rejected)
	}
	if responded > 0 {
		stats.AverageResponseTime = totalResponse / time.Duration(responded)
	}
	if stats.Total > 0 {
		stats.TimeoutRate = float64(stats.ByState[approval.StateTimeout]) / float64(stats.Total)
	}
	return stats, nil
}

// Shutdown cancels every outstanding timer and clears the request store.
func (s *Service) Shutdown(ctx context.Context) {
	s.timers.Stop()
	all, err := s.requests.List(ctx)
	if err != nil {
		return
	}
	for _, request := range all {
		_ = s.requests.Delete(ctx, request.ID)
		s.locks.Remove(request.ID)
	}
}

func (s *Service) requestEvent(name event.Name, request *approval.Request) *event.Event {
	return &event.Event{
		Name:        name,
		ExecutionID: request.ExecutionID,
		RequestID:   request.ID,
		NodeID:      request.NodeID,
		Data:        request,
	}
}

func activeLevelID(request *approval.Request) string {
	if level := request.ActiveLevel(); level != nil {
		return level.ID
	}
	return ""
}

func mergeApprovers(base, extra []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, approver := range append(append([]string(nil), base...), extra...) {
		if approver == "" || seen[approver] {
			continue
		}
		seen[approver] = true
		out = append(out, approver)
	}
	return out
}

func requestTimerKey(requestID string) string {
	return "request:" + requestID
}
