package emergency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateLifecycle(t *testing.T) {
	s := NewState()

	assert.False(t, s.Active())
	assert.Empty(t, s.Reason())
	assert.True(t, s.Since().IsZero())

	assert.True(t, s.Activate("memory usage critical"))
	assert.True(t, s.Active())
	assert.Equal(t, "memory usage critical", s.Reason())
	assert.False(t, s.Since().IsZero())
	assert.Equal(t, uint64(1), s.StopCount())

	// sticky until resumed; re-activation keeps the original since time
	since := s.Since()
	assert.False(t, s.Activate("still critical"))
	assert.Equal(t, since, s.Since())
	assert.Equal(t, "still critical", s.Reason())
	assert.Equal(t, uint64(1), s.StopCount())

	s.Resume()
	assert.False(t, s.Active())
	assert.Empty(t, s.Reason())

	s.Activate("again")
	assert.Equal(t, uint64(2), s.StopCount())
}

func TestStateConcurrentAccess(t *testing.T) {
	s := NewState()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Activate("race")
		}()
		go func() {
			defer wg.Done()
			_ = s.Active()
			_ = s.Reason()
		}()
	}
	wg.Wait()

	assert.True(t, s.Active())
}
