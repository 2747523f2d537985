// Package audit implements the append-only audit trail: a capped
// in-memory ring buffer for queries plus an asynchronous pipeline that
// writes every entry to one or more durable sinks.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/safety-control-plane/models"
	"go.uber.org/zap"
)

// Sink receives every audit entry exactly once, in append order
type Sink interface {
	Write(ctx context.Context, entry models.AuditEntry) error
	Close() error
}

// Config holds configuration for the audit Service
type Config struct {
	// MemoryCap bounds the in-memory ring buffer; oldest entries are
	// dropped beyond it
	MemoryCap int
	// BufferSize is the size of the durable-write event channel
	BufferSize int
	// WorkerCount is the number of concurrent sink writers
	WorkerCount int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MemoryCap:   10000,
		BufferSize:  10000,
		WorkerCount: 2,
	}
}

// Filter selects audit entries from the in-memory buffer. Zero values
// match everything.
type Filter struct {
	UserID string
	Action string
	Start  time.Time
	End    time.Time
}

func (f Filter) matches(entry models.AuditEntry) bool {
	if f.UserID != "" && entry.UserID != f.UserID {
		return false
	}
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if !f.Start.IsZero() && entry.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && entry.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Service is the audit trail. Append never blocks the caller: the ring
// buffer is updated synchronously under a mutex and durable writes are
// handed to background workers, dropping (and counting) events when the
// channel is full.
type Service struct {
	mu      sync.Mutex
	ring    []models.AuditEntry
	cap     int
	dropped uint64
	started bool

	sinks     []Sink
	eventChan chan models.AuditEntry
	workers   int
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewService creates an audit Service writing to the given sinks
func NewService(cfg Config, logger *zap.Logger, sinks ...Sink) *Service {
	if cfg.MemoryCap <= 0 {
		cfg.MemoryCap = DefaultConfig().MemoryCap
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig().WorkerCount
	}
	return &Service{
		ring:      make([]models.AuditEntry, 0, cfg.MemoryCap),
		cap:       cfg.MemoryCap,
		sinks:     sinks,
		eventChan: make(chan models.AuditEntry, cfg.BufferSize),
		workers:   cfg.WorkerCount,
		logger:    logger,
	}
}

// Start launches the sink workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workers),
		zap.Int("memory_cap", s.cap),
		zap.Int("sinks", len(s.sinks)))
	return nil
}

// Stop drains pending durable writes, waiting up to timeout, then closes
// the sinks
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	// closed under the same lock that guards Append's send, so a
	// concurrent Append can never hit a closed channel
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-time.After(timeout):
		waitErr = fmt.Errorf("audit service stop timeout after %v", timeout)
	}

	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			s.logger.Error("failed to close audit sink", zap.Error(err))
		}
	}
	return waitErr
}

// Append records an entry. The in-memory buffer always receives it; the
// durable write is best effort and non-blocking.
func (s *Service) Append(entry models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ring) >= s.cap {
		// drop the oldest entry
		copy(s.ring, s.ring[1:])
		s.ring = s.ring[:len(s.ring)-1]
	}
	s.ring = append(s.ring, entry)

	if !s.started {
		return
	}

	// non-blocking send held under the same lock as Stop's close
	select {
	case s.eventChan <- entry:
	default:
		s.dropped++
		s.logger.Warn("audit event channel full, dropping durable write",
			zap.String("action", entry.Action),
			zap.String("operation_id", entry.OperationID))
	}
}

// Trail returns entries from the in-memory buffer matching the filter, in
// append order. The durable sinks are write-only from this API; restart
// history is not re-read (see DESIGN.md).
func (s *Service) Trail(filter Filter) []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuditEntry, 0, len(s.ring))
	for _, entry := range s.ring {
		if filter.matches(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of buffered entries
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ring)
}

// Stats represents audit service statistics
type Stats struct {
	Buffered      int    `json:"buffered"`
	PendingWrites int    `json:"pending_writes"`
	Dropped       uint64 `json:"dropped"`
	Workers       int    `json:"workers"`
	Started       bool   `json:"started"`
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Buffered:      len(s.ring),
		PendingWrites: len(s.eventChan),
		Dropped:       s.dropped,
		Workers:       s.workers,
		Started:       s.started,
	}
}

// worker writes queued entries to every sink
func (s *Service) worker(id int) {
	defer s.wg.Done()

	for entry := range s.eventChan {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for _, sink := range s.sinks {
			if err := sink.Write(ctx, entry); err != nil {
				s.logger.Error("failed to write audit entry",
					zap.Int("worker_id", id),
					zap.String("action", entry.Action),
					zap.String("operation_id", entry.OperationID),
					zap.Error(err))
			}
		}
		cancel()
	}
}
