package fs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/service/dao"
)

func newTestStore(t *testing.T) *Service {
	t.Helper()
	srv, err := New(fmt.Sprintf("mem://localhost/hitl/%v", t.Name()))
	require.NoError(t, err)
	return srv
}

func TestService_SaveLoad(t *testing.T) {
	ctx := context.Background()
	srv := newTestStore(t)

	request := &approval.Request{
		ID:          "r1",
		ExecutionID: "e1",
		NodeID:      "deploy",
		State:       approval.StateInProgress,
		Approvers:   []string{"alice"},
		Confidence:  approval.Confidence{Current: 0.4, Threshold: 0.7},
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, srv.Save(ctx, request))

	loaded, err := srv.Load(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, request.ExecutionID, loaded.ExecutionID)
	assert.Equal(t, request.State, loaded.State)
	assert.Equal(t, request.Approvers, loaded.Approvers)
	assert.Equal(t, request.Confidence, loaded.Confidence)
}

func TestService_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	srv := newTestStore(t)

	request := &approval.Request{ID: "r1", State: approval.StateInProgress}
	require.NoError(t, srv.Save(ctx, request))
	request.State = approval.StateApproved
	require.NoError(t, srv.Save(ctx, request))

	loaded, err := srv.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, approval.StateApproved, loaded.State)
}

func TestService_LoadAbsent(t *testing.T) {
	ctx := context.Background()
	srv := newTestStore(t)

	loaded, err := srv.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	srv := newTestStore(t)

	assert.ErrorIs(t, srv.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, srv.Save(ctx, &approval.Request{}), dao.ErrInvalidID)
	_, err := srv.Load(ctx, "")
	assert.ErrorIs(t, err, dao.ErrInvalidID)
	assert.ErrorIs(t, srv.Delete(ctx, ""), dao.ErrInvalidID)

	_, err = New("")
	assert.Error(t, err)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	srv := newTestStore(t)

	require.NoError(t, srv.Save(ctx, &approval.Request{ID: "r1"}))
	require.NoError(t, srv.Delete(ctx, "r1"))
	loaded, err := srv.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// absent delete is a no-op
	require.NoError(t, srv.Delete(ctx, "r1"))
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	srv := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, srv.Save(ctx, &approval.Request{ID: fmt.Sprintf("r%d", i), State: approval.StateInProgress}))
	}
	requests, err := srv.List(ctx)
	require.NoError(t, err)
	assert.Len(t, requests, 3)
}
