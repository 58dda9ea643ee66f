package backoff

import (
	"sync"
	"time"
)

// Timer is the one-shot timer primitive the policy arms between
// reconnection attempts. It is an interface so tests can fire it
// deterministically.
type Timer interface {
	// Start arms the timer to call fire once after d. Starting an armed
	// timer replaces the previous schedule.
	Start(d time.Duration, fire func())

	// Stop disarms the timer if armed. A callback already in flight may
	// still run; callers guard against that with their own state.
	Stop()
}

// systemTimer implements Timer on top of time.AfterFunc.
type systemTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

// NewSystemTimer returns the production Timer implementation.
func NewSystemTimer() Timer {
	return &systemTimer{}
}

func (s *systemTimer) Start(d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t != nil {
		s.t.Stop()
	}
	s.t = time.AfterFunc(d, fire)
}

func (s *systemTimer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}
