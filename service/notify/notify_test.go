package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Send(t *testing.T) {
	registry := NewRegistry()

	var received [][]byte
	registry.Register("e1", func(payload []byte) {
		received = append(received, payload)
	})

	registry.Send("e1", map[string]string{"state": "approved"})
	require.Len(t, received, 1)
	assert.JSONEq(t, `{"state":"approved"}`, string(received[0]))

	// no sink, no delivery
	registry.Send("e2", "ignored")
	assert.Len(t, received, 1)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	registry := NewRegistry()

	var first, second int
	registry.Register("e1", func([]byte) { first++ })
	registry.Register("e1", func([]byte) { second++ })

	registry.Send("e1", "update")
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	var count int
	registry.Register("e1", func([]byte) { count++ })
	registry.Unregister("e1")
	registry.Send("e1", "update")
	assert.Equal(t, 0, count)

	// registering a nil sink removes as well
	registry.Register("e2", func([]byte) { count++ })
	registry.Register("e2", nil)
	registry.Send("e2", "update")
	assert.Equal(t, 0, count)
}

func TestRegistry_SendSwallowsFailures(t *testing.T) {
	registry := NewRegistry()
	registry.Register("e1", func([]byte) { panic("sink gone") })

	assert.NotPanics(t, func() {
		registry.Send("e1", "update")
	})
	// unmarshalable payload is dropped
	assert.NotPanics(t, func() {
		registry.Send("e1", func() {})
	})
}
