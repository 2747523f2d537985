// Package emergency holds the global emergency-stop flag shared by the
// permission evaluator, the resource watchdog and the safety controller.
// The flag is sticky: once set it denies every new admission until an
// explicit Resume call clears it. Already-active operations are not
// aborted.
package emergency

import (
	"sync"
	"time"
)

// State is the mutex-guarded emergency-stop flag
type State struct {
	mu        sync.RWMutex
	active    bool
	reason    string
	since     time.Time
	stopCount uint64
}

// NewState creates a cleared emergency state
func NewState() *State {
	return &State{}
}

// Activate sets the flag and reports whether this call engaged it.
// Re-activating while already active updates the reason but keeps the
// original activation time.
func (s *State) Activate(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	engaged := !s.active
	if engaged {
		s.since = time.Now()
		s.stopCount++
	}
	s.active = true
	s.reason = reason
	return engaged
}

// Resume clears the flag
func (s *State) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.reason = ""
	s.since = time.Time{}
}

// Active reports whether the emergency stop is engaged
func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Reason returns the reason recorded at activation, empty when cleared
func (s *State) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Since returns when the current stop was engaged, zero when cleared
func (s *State) Since() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.since
}

// StopCount returns how many times the stop has been engaged since start
func (s *State) StopCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopCount
}
