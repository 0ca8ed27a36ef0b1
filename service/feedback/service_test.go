package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/model/types"
)

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	srv := New(nil)

	t.Run("valid entry", func(t *testing.T) {
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackApproval, "looks good", "alice")
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.False(t, entry.Processed)
		assert.False(t, entry.CreatedAt.IsZero())
	})

	t.Run("empty execution id", func(t *testing.T) {
		_, err := srv.Submit(ctx, "", approval.FeedbackApproval, "", "alice")
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := srv.Submit(ctx, "e1", approval.FeedbackType("praise"), "", "alice")
		assert.True(t, errors.Is(err, types.ErrValidation))
	})
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("approval boosts confidence", func(t *testing.T) {
		srv := New(nil)
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackApproval, "well done", "alice")
		require.NoError(t, err)

		update, err := srv.Process(ctx, entry.ID, approval.ExecutionState{"confidence": 0.6})
		require.NoError(t, err)
		require.NotNil(t, update.HumanFeedback)
		assert.True(t, *update.HumanFeedback.Approved)
		assert.Equal(t, "well done", update.HumanFeedback.Comments)
		require.NotNil(t, update.Confidence)
		assert.InDelta(t, 0.7, *update.Confidence, 1e-9)
	})

	t.Run("rejection lowers confidence", func(t *testing.T) {
		srv := New(nil)
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackRejection, "wrong target", "bob")
		require.NoError(t, err)

		update, err := srv.Process(ctx, entry.ID, approval.ExecutionState{"confidence": 0.6})
		require.NoError(t, err)
		assert.False(t, *update.HumanFeedback.Approved)
		assert.InDelta(t, 0.5, *update.Confidence, 1e-9)
	})

	t.Run("boost is clamped at one", func(t *testing.T) {
		srv := New(nil)
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackApproval, "", "alice")
		require.NoError(t, err)
		update, err := srv.Process(ctx, entry.ID, approval.ExecutionState{"confidence": 0.97})
		require.NoError(t, err)
		assert.Equal(t, 1.0, *update.Confidence)
	})

	t.Run("rating keeps a running average", func(t *testing.T) {
		srv := New(nil)
		first, err := srv.Submit(ctx, "e1", approval.FeedbackRating, "4", "alice")
		require.NoError(t, err)
		update, err := srv.Process(ctx, first.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 4.0, update.Metadata["rating"])

		second, err := srv.Submit(ctx, "e1", approval.FeedbackRating, "2", "bob")
		require.NoError(t, err)
		update, err = srv.Process(ctx, second.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 3.0, update.Metadata["rating"])
	})

	t.Run("non numeric rating", func(t *testing.T) {
		srv := New(nil)
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackRating, "excellent", "alice")
		require.NoError(t, err)
		_, err = srv.Process(ctx, entry.ID, nil)
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("modification merges metadata and records a diff", func(t *testing.T) {
		srv := New(nil)
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackModification, `{"replicas":3}`, "alice")
		require.NoError(t, err)

		state := approval.ExecutionState{"metadata": map[string]interface{}{"replicas": 1, "region": "us-east"}}
		update, err := srv.Process(ctx, entry.ID, state)
		require.NoError(t, err)
		assert.Equal(t, "needs_revision", update.HumanFeedback.Status)
		assert.Equal(t, 3.0, update.Metadata["replicas"])
		assert.Equal(t, "us-east", update.Metadata["region"])

		assert.Contains(t, entry.Diff, `-  "replicas": 1`)
		assert.Contains(t, entry.Diff, `+  "replicas": 3`)
	})

	t.Run("malformed modification content", func(t *testing.T) {
		srv := New(nil)
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackModification, "not-json", "alice")
		require.NoError(t, err)
		_, err = srv.Process(ctx, entry.ID, nil)
		assert.True(t, errors.Is(err, types.ErrValidation))
	})

	t.Run("processed exactly once", func(t *testing.T) {
		srv := New(nil)
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackApproval, "", "alice")
		require.NoError(t, err)
		_, err = srv.Process(ctx, entry.ID, nil)
		require.NoError(t, err)
		_, err = srv.Process(ctx, entry.ID, nil)
		assert.True(t, errors.Is(err, types.ErrInvalidState))
	})

	t.Run("unknown entry", func(t *testing.T) {
		srv := New(nil)
		_, err := srv.Process(ctx, "missing", nil)
		assert.True(t, errors.Is(err, types.ErrNotFound))
	})
}

func TestService_ForExecution(t *testing.T) {
	ctx := context.Background()
	srv := New(nil)

	for _, content := range []string{"5", "3"} {
		entry, err := srv.Submit(ctx, "e1", approval.FeedbackRating, content, "alice")
		require.NoError(t, err)
		_, err = srv.Process(ctx, entry.ID, nil)
		require.NoError(t, err)
	}
	_, err := srv.Submit(ctx, "e1", approval.FeedbackRejection, "redo", "bob")
	require.NoError(t, err)
	_, err = srv.Submit(ctx, "e2", approval.FeedbackApproval, "", "carol")
	require.NoError(t, err)

	entries := srv.ForExecution("e1")
	require.Len(t, entries, 3)
	assert.Equal(t, approval.FeedbackRating, entries[0].Type)
	assert.Equal(t, approval.FeedbackRejection, entries[2].Type)

	stats := srv.ForExecutionStats("e1")
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[approval.FeedbackRating])
	assert.Equal(t, 1, stats.ByType[approval.FeedbackRejection])
	assert.Equal(t, 4.0, stats.AverageRating)

	assert.Empty(t, srv.ForExecution("unknown"))
}
