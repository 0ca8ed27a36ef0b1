package chain

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/hitl/internal/clock"
	"github.com/viant/hitl/internal/idgen"
	"github.com/viant/hitl/internal/keyed"
	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
	"github.com/viant/hitl/service/dao"
	"github.com/viant/hitl/service/event"
	"github.com/viant/hitl/service/scheduler"
)

// Service holds named chains of ordered approval levels and drives
// chain-scoped requests through them: level-by-level decision evaluation,
// advancement, per-level timeouts.
type Service struct {
	mu     sync.RWMutex
	chains map[string][]*approval.Level

	requests  dao.Service[string, approval.Request]
	publisher event.Publisher
	timers    *scheduler.Scheduler
	locks     *keyed.Mutexes
}

// New creates a chain service sharing the request store, timer scheduler and
// per-request locks with the orchestrator.
func New(requests dao.Service[string, approval.Request], publisher event.Publisher, timers *scheduler.Scheduler, locks *keyed.Mutexes) *Service {
	if publisher == nil {
		publisher = event.Nop{}
	}
	return &Service{
		chains:    map[string][]*approval.Level{},
		requests:  requests,
		publisher: publisher,
		timers:    timers,
		locks:     locks,
	}
}

// Register stores a chain's levels sorted ascending by priority. Registering
// an existing chainID overwrites it.
func (s *Service) Register(chainID string, levels []*approval.Level) {
	sorted := make([]*approval.Level, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	s.mu.Lock()
	s.chains[chainID] = sorted
	s.mu.Unlock()
}

// Levels returns the registered levels of a chain, nil when unknown.
func (s *Service) Levels(chainID string) []*approval.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chains[chainID]
}

// Initiate starts a chain-scoped approval for an execution. Levels whose
// conditions do not all hold against evalContext are skipped; when no level
// is required the returned request is already approved with a single system
// history entry.
func (s *Service) Initiate(ctx context.Context, executionID, chainID string, evalContext map[string]interface{}) (*approval.Request, error) {
	s.mu.RLock()
	levels := s.chains[chainID]
	s.mu.RUnlock()
	if len(levels) == 0 {
		return nil, types.NewChainNotFoundError(chainID)
	}

	now := clock.Now()
	request := &approval.Request{
		ID:          idgen.New(),
		ExecutionID: executionID,
		ChainID:     chainID,
		State:       approval.StateInProgress,
		CreatedAt:   now,
	}

	required := requiredLevels(levels, evalContext)
	if len(required) == 0 {
		request.State = approval.StateApproved
		request.RespondedAt = &now
		request.AppendHistory("", approval.SystemApprover, approval.DecisionApproved, "no approval level applicable", now)
		if err := s.requests.Save(ctx, request); err != nil {
			return nil, err
		}
		s.publisher.Publish(ctx, s.requestEvent(event.ApprovalCompleted, request))
		return request.Clone(), nil
	}

	request.Chain = required
	request.CurrentLevel = 0
	request.Approvers = append([]string(nil), required[0].Approvers...)
	if err := s.requests.Save(ctx, request); err != nil {
		return nil, err
	}
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalRequested, request))
	// snapshot before the level timer is armed; the stored request stays
	// shared with the timer goroutine, the caller's copy does not
	snapshot := request.Clone()
	s.armLevelTimer(request)
	return snapshot, nil
}

// Process records an approver decision for the request's current level and
// evaluates level completion per the level policy. Approved levels advance
// the request or, at the last level, approve it overall; a rejected level
// rejects it overall.
func (s *Service) Process(ctx context.Context, requestID, approver string, approved bool, comments string) (*approval.Request, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	request, err := s.requests.Load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, types.NewRequestNotFoundError(requestID)
	}
	if request.State != approval.StateInProgress {
		return nil, types.NewInvalidStateError(requestID, string(request.State))
	}
	level := request.ActiveLevel()
	if level == nil {
		return nil, types.NewInvalidStateError(requestID, "no active level")
	}

	decision := approval.DecisionRejected
	if approved {
		decision = approval.DecisionApproved
	}
	request.AppendHistory(level.ID, approver, decision, comments, clock.Now())

	switch decideLevel(level, request.LevelHistory(level.ID)) {
	case levelApproved:
		if request.CurrentLevel+1 < len(request.Chain) {
			s.advanceLocked(ctx, request)
		} else {
			s.completeLocked(ctx, request, approval.StateApproved)
		}
	case levelRejected:
		s.completeLocked(ctx, request, approval.StateRejected)
	}

	if err := s.requests.Save(ctx, request); err != nil {
		return nil, err
	}
	return request.Clone(), nil
}

// Get returns a copy of a request, taken under the per-request lock so
// callers may poll while timers fire.
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

// Escalate advances a pending chain-scoped request to its next level, if one
// exists. At the last level escalation is a notification only.
func (s *Service) Escalate(ctx context.Context, requestID string) (*approval.Request, error) {
	s.locks.Lock(requestID)
	defer s.locks.Unlock(requestID)

	request, err := s.requests.Load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, types.NewRequestNotFoundError(requestID)
	}
	if request.State != approval.StateInProgress {
		return nil, types.NewInvalidStateError(requestID, string(request.State))
	}
	if request.CurrentLevel+1 < len(request.Chain) {
		request.AppendHistory(request.ActiveLevel().ID, approval.SystemApprover, approval.DecisionEscalated, "escalated to next level", clock.Now())
		s.advanceLocked(ctx, request)
		if err := s.requests.Save(ctx, request); err != nil {
			return nil, err
		}
	}
	return request.Clone(), nil
}

// advanceLocked moves the request to its next level and notifies that
// level's approvers. Caller holds the request lock.
func (s *Service) advanceLocked(ctx context.Context, request *approval.Request) {
	s.timers.Cancel(levelTimerKey(request.ID))
	request.CurrentLevel++
	next := request.ActiveLevel()
	request.Approvers = append([]string(nil), next.Approvers...)
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalRequested, request))
	s.armLevelTimer(request)
}

// completeLocked applies a terminal state, cancelling both the level timer
// and any request-level timer armed by the orchestrator. Caller holds the
// request lock.
func (s *Service) completeLocked(ctx context.Context, request *approval.Request, state approval.State) {
	s.timers.Cancel(levelTimerKey(request.ID))
	s.timers.Cancel(requestTimerKey(request.ID))
	now := clock.Now()
	request.State = state
	request.RespondedAt = &now
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalCompleted, request))
}

// armLevelTimer schedules the active level's expiry when configured. The
// callback re-checks the captured level id at fire time so a stale timer
// that lost the cancellation race is a guaranteed no-op.
func (s *Service) armLevelTimer(request *approval.Request) {
	level := request.ActiveLevel()
	if level == nil || level.Timeout <= 0 {
		return
	}
	requestID, levelID := request.ID, level.ID
	s.timers.Schedule(levelTimerKey(requestID), level.Timeout, func() {
		s.handleLevelTimeout(context.Background(), requestID, levelID)
	})
}

func (s *Service) handleLevelTimeout(ctx context.Context, requestID, levelID string) {
	s.locks.Lock(requestID)
	request, err := s.requests.Load(ctx, requestID)
	if err != nil || request == nil || request.State != approval.StateInProgress {
		s.locks.Unlock(requestID)
		return
	}
	level := request.ActiveLevel()
	if level == nil || level.ID != levelID {
		// request advanced or resolved before the timer fired
		s.locks.Unlock(requestID)
		return
	}
	if level.AutoApproveOnTimeout {
		s.locks.Unlock(requestID)
		_, _ = s.Process(ctx, requestID, approval.SystemApprover, true, "auto-approved on level timeout")
		return
	}
	s.timers.Cancel(requestTimerKey(requestID))
	now := clock.Now()
	request.State = approval.StateTimeout
	request.RespondedAt = &now
	_ = s.requests.Save(ctx, request)
	s.publisher.Publish(ctx, s.requestEvent(event.ApprovalTimeout, request))
	s.locks.Unlock(requestID)
}

func (s *Service) requestEvent(name event.Name, request *approval.Request) *event.Event {
	return &event.Event{
		Name:        name,
		ExecutionID: request.ExecutionID,
		RequestID:   request.ID,
		Data:        request,
	}
}

func levelTimerKey(requestID string) string {
	return "level:" + requestID
}

func requestTimerKey(requestID string) string {
	return "request:" + requestID
}
