// Package notify delivers push updates about approval requests to
// per-execution sinks, typically websocket or SSE bridges owned by the
// embedding application. Delivery is strictly best effort.
package notify

import (
	"encoding/json"
	"log"
	"sync"
)

// Sink receives a JSON payload for one execution. Implementations may block
// briefly but must not rely on delivery guarantees.
type Sink func(payload []byte)

// Registry maps execution ids to push sinks.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewRegistry creates an empty sink registry.
func NewRegistry() *Registry {
	return &Registry{sinks: map[string]Sink{}}
}

// Register attaches a sink for executionID, replacing any previous one.
func (r *Registry) Register(executionID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sink == nil {
		delete(r.sinks, executionID)
		return
	}
	r.sinks[executionID] = sink
}

// Unregister removes the sink for executionID.
func (r *Registry) Unregister(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, executionID)
}

// Send marshals v and delivers it to the sink registered for executionID.
// Missing sinks, marshal failures and sink panics are swallowed; a push
// failure must never disturb the approval state machine.
func (r *Registry) Send(executionID string, v interface{}) {
	r.mu.RLock()
	sink := r.sinks[executionID]
	r.mu.RUnlock()
	if sink == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("notify: marshal failed for execution %v: %v", executionID, err)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("notify: sink panic for execution %v: %v", executionID, rec)
		}
	}()
	sink(payload)
}
