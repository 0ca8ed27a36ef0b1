package scheduler

import (
	"sync"
	"time"
)

// Handle references a scheduled callback. Cancel is idempotent and safe to
// race with the timer firing; callers that need exactly-once semantics must
// additionally re-check their own state at fire time (stale-timer guard).
type Handle struct {
	timer *time.Timer
	once  sync.Once
}

// Cancel stops the timer if it has not fired yet.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.timer.Stop()
	})
}

// Scheduler manages cancellable one-shot timers keyed by an opaque id, one
// active timer per key. Scheduling a key cancels its previous timer.
type Scheduler struct {
	mu      sync.Mutex
	handles map[string]*Handle
	stopped bool
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{handles: map[string]*Handle{}}
}

// Schedule arms fn to run after delay, replacing any timer already armed for
// key. The callback runs on the timer goroutine.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return &Handle{timer: time.NewTimer(0)}
	}
	if prev, ok := s.handles[key]; ok {
		prev.Cancel()
	}
	handle := &Handle{}
	handle.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.handles[key] == handle {
			delete(s.handles, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.handles[key] = handle
	return handle
}

// Cancel stops the timer for key; returns whether a timer was armed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	handle, ok := s.handles[key]
	delete(s.handles, key)
	s.mu.Unlock()
	if ok {
		handle.Cancel()
	}
	return ok
}

// Stop cancels every outstanding timer and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	handles := s.handles
	s.handles = map[string]*Handle{}
	s.stopped = true
	s.mu.Unlock()
	for _, handle := range handles {
		handle.Cancel()
	}
}
