package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/hitl/service/dao"
)

type entity struct {
	ID    string
	Value int
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	srv := NewMemoryStore[string, entity](func(e *entity) string { return e.ID })

	require.NoError(t, srv.Save(ctx, &entity{ID: "a", Value: 1}))
	require.NoError(t, srv.Save(ctx, &entity{ID: "b", Value: 2}))

	loaded, err := srv.Load(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.Value)

	// overwrite by key
	require.NoError(t, srv.Save(ctx, &entity{ID: "a", Value: 10}))
	loaded, err = srv.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Value)

	all, err := srv.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, srv.Delete(ctx, "a"))
	loaded, err = srv.Load(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// absent delete is a no-op
	require.NoError(t, srv.Delete(ctx, "a"))

	assert.ErrorIs(t, srv.Save(ctx, nil), dao.ErrNilEntity)
}
