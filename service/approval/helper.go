package approval

import (
	"context"
	"time"

	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
)

// DecisionFunc decides what to do with a pending request.
// Return (true,  "") to approve
//
//	(false, "…") to reject with reason.
type DecisionFunc func(r *approval.Request) (approved bool, reason string)

// AutoDecider starts a goroutine that polls Pending and applies fn to every
// request. It returns a stop function; call it (or cancel ctx) to exit.
func AutoDecider(ctx context.Context, svc *Service, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				requests, _ := svc.Pending(ctx)
				for _, request := range requests {
					approved, reason := fn(request)
					decision := approval.DecisionRejected
					if approved {
						decision = approval.DecisionApproved
					}
					_ = svc.Respond(ctx, request.ID, &approval.Response{
						Decision: decision,
						Approver: approval.SystemApprover,
						Message:  reason,
					})
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove automatically approves all pending requests.
func AutoApprove(ctx context.Context, svc *Service, interval time.Duration) func() {
	return AutoDecider(ctx, svc,
		func(*approval.Request) (bool, string) { return true, "" }, interval)
}

// AutoReject automatically rejects all pending requests with the given reason.
func AutoReject(ctx context.Context, svc *Service, reason string, interval time.Duration) func() {
	return AutoDecider(ctx, svc,
		func(*approval.Request) (bool, string) { return false, reason }, interval)
}

// WaitForResolution polls until the request leaves the pending state or the
// timeout elapses.
func WaitForResolution(ctx context.Context, svc *Service, requestID string, timeout time.Duration) (*approval.Request, error) {
	deadline := time.Now().Add(timeout)
	for {
		request, err := svc.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if request.State != approval.StateInProgress {
			return request, nil
		}
		if time.Now().After(deadline) {
			return nil, types.NewInvalidStateError(requestID, "still pending after wait timeout")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
