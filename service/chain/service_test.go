package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/hitl/internal/keyed"
	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
	"github.com/viant/hitl/service/dao/store"
	"github.com/viant/hitl/service/scheduler"
)

func newTestService() *Service {
	requests := store.NewMemoryStore[string, approval.Request](func(r *approval.Request) string { return r.ID })
	return New(requests, nil, scheduler.New(), keyed.New())
}

func twoLevelChain() []*approval.Level {
	return []*approval.Level{
		{ID: "l2", Name: "management", Priority: 2, Approvers: []string{"cto"}, Policy: approval.PolicyAny,
			Conditions: []approval.Condition{{Field: "confidence", Operator: approval.OpLt, Value: 0.6}}},
		{ID: "l1", Name: "team", Priority: 1, Approvers: []string{"lead"}, Policy: approval.PolicyAny},
	}
}

func TestService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown chain", func(t *testing.T) {
		srv := newTestService()
		_, err := srv.Initiate(ctx, "e1", "missing", nil)
		assert.True(t, errors.Is(err, types.ErrChainNotFound))
	})

	t.Run("levels sorted by priority", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", twoLevelChain())
		request, err := srv.Initiate(ctx, "e1", "deploy", map[string]interface{}{"confidence": 0.5})
		require.NoError(t, err)
		require.Len(t, request.Chain, 2)
		assert.Equal(t, "l1", request.Chain[0].ID)
		assert.Equal(t, "l2", request.Chain[1].ID)
		assert.Equal(t, []string{"lead"}, request.Approvers)
		assert.Equal(t, approval.StateInProgress, request.State)
	})

	t.Run("condition filters second level", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", twoLevelChain())
		request, err := srv.Initiate(ctx, "e1", "deploy", map[string]interface{}{"confidence": 0.9})
		require.NoError(t, err)
		require.Len(t, request.Chain, 1)
		assert.Equal(t, "l1", request.Chain[0].ID)
	})

	t.Run("no required level auto approves", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", []*approval.Level{
			{ID: "l1", Priority: 1, Approvers: []string{"lead"}, Policy: approval.PolicyAny,
				Conditions: []approval.Condition{{Field: "confidence", Operator: approval.OpLt, Value: 0.1}}},
		})
		request, err := srv.Initiate(ctx, "e1", "deploy", map[string]interface{}{"confidence": 0.9})
		require.NoError(t, err)
		assert.Equal(t, approval.StateApproved, request.State)
		require.Len(t, request.History, 1)
		assert.Equal(t, approval.SystemApprover, request.History[0].Approver)
	})
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("advances to next level then approves", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", twoLevelChain())
		request, err := srv.Initiate(ctx, "e1", "deploy", map[string]interface{}{"confidence": 0.5})
		require.NoError(t, err)

		request, err = srv.Process(ctx, request.ID, "lead", true, "lgtm")
		require.NoError(t, err)
		assert.Equal(t, approval.StateInProgress, request.State)
		assert.Equal(t, 1, request.CurrentLevel)
		assert.Equal(t, []string{"cto"}, request.Approvers)

		request, err = srv.Process(ctx, request.ID, "cto", true, "ship it")
		require.NoError(t, err)
		assert.Equal(t, approval.StateApproved, request.State)
		assert.NotNil(t, request.RespondedAt)
	})

	t.Run("level rejection rejects the request", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", twoLevelChain())
		request, err := srv.Initiate(ctx, "e1", "deploy", map[string]interface{}{"confidence": 0.5})
		require.NoError(t, err)

		request, err = srv.Process(ctx, request.ID, "lead", false, "too risky")
		require.NoError(t, err)
		assert.Equal(t, approval.StateRejected, request.State)
	})

	t.Run("unknown request", func(t *testing.T) {
		srv := newTestService()
		_, err := srv.Process(ctx, "missing", "lead", true, "")
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})

	t.Run("resolved request refuses further decisions", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", []*approval.Level{
			{ID: "l1", Priority: 1, Approvers: []string{"lead"}, Policy: approval.PolicyAny},
		})
		request, err := srv.Initiate(ctx, "e1", "deploy", nil)
		require.NoError(t, err)
		_, err = srv.Process(ctx, request.ID, "lead", true, "")
		require.NoError(t, err)

		_, err = srv.Process(ctx, request.ID, "lead", false, "changed my mind")
		assert.True(t, errors.Is(err, types.ErrInvalidState))
	})
}

func TestService_Escalate(t *testing.T) {
	ctx := context.Background()
	srv := newTestService()
	srv.Register("deploy", twoLevelChain())
	request, err := srv.Initiate(ctx, "e1", "deploy", map[string]interface{}{"confidence": 0.5})
	require.NoError(t, err)

	request, err = srv.Escalate(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, request.CurrentLevel)
	assert.Equal(t, []string{"cto"}, request.Approvers)

	// at the last level escalation is a notification only
	request, err = srv.Escalate(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, request.CurrentLevel)
}

func TestService_LevelTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("auto approve on timeout", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", []*approval.Level{
			{ID: "l1", Priority: 1, Approvers: []string{"lead"}, Policy: approval.PolicyAll,
				Timeout: 30 * time.Millisecond, AutoApproveOnTimeout: true},
		})
		request, err := srv.Initiate(ctx, "e1", "deploy", nil)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			current, err := srv.Get(ctx, request.ID)
			return err == nil && current.State == approval.StateApproved
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("timeout without auto approve", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", []*approval.Level{
			{ID: "l1", Priority: 1, Approvers: []string{"lead"}, Policy: approval.PolicyAll,
				Timeout: 30 * time.Millisecond},
		})
		request, err := srv.Initiate(ctx, "e1", "deploy", nil)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			current, err := srv.Get(ctx, request.ID)
			return err == nil && current.State == approval.StateTimeout
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("timer is a no-op after resolution", func(t *testing.T) {
		srv := newTestService()
		srv.Register("deploy", []*approval.Level{
			{ID: "l1", Priority: 1, Approvers: []string{"lead"}, Policy: approval.PolicyAny,
				Timeout: 30 * time.Millisecond},
		})
		request, err := srv.Initiate(ctx, "e1", "deploy", nil)
		require.NoError(t, err)
		_, err = srv.Process(ctx, request.ID, "lead", true, "")
		require.NoError(t, err)

		time.Sleep(60 * time.Millisecond)
		current, err := srv.Get(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, approval.StateApproved, current.State)
	})
}
