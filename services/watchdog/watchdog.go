// Package watchdog polls host resource usage and pulls the emergency
// brake when memory pressure crosses the configured threshold.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/audit"
	"github.com/upb/safety-control-plane/services/emergency"
	"go.uber.org/zap"
)

const maxBackoffMultiplier = 6

// Config holds watchdog settings
type Config struct {
	// Interval between samples
	Interval time.Duration
	// MemoryThreshold is the used-memory percentage that triggers an
	// emergency stop
	MemoryThreshold float64
	// CPUThreshold is the CPU percentage above which a warning is logged
	CPUThreshold float64
}

// DefaultConfig returns the default watchdog settings
func DefaultConfig() Config {
	return Config{
		Interval:        5 * time.Second,
		MemoryThreshold: 90.0,
		CPUThreshold:    90.0,
	}
}

// Watchdog runs the sampling loop
type Watchdog struct {
	cfg     Config
	sampler Sampler
	state   *emergency.State
	audit   *audit.Service
	logger  *zap.Logger

	mu           sync.Mutex
	last         models.ResourceSample
	hasSample    bool
	failures     int
	totalSamples uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a Watchdog
func New(cfg Config, sampler Sampler, state *emergency.State, auditSvc *audit.Service, logger *zap.Logger) *Watchdog {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = def.MemoryThreshold
	}
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = def.CPUThreshold
	}
	return &Watchdog{
		cfg:     cfg,
		sampler: sampler,
		state:   state,
		audit:   auditSvc,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the sampling loop in a goroutine
func (w *Watchdog) Start(ctx context.Context) {
	go w.run(ctx)
	w.logger.Info("resource watchdog started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Float64("memory_threshold", w.cfg.MemoryThreshold),
		zap.Float64("cpu_threshold", w.cfg.CPUThreshold))
}

// Stop halts the loop and waits for it to exit
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}

func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-timer.C:
		}

		w.tick(ctx)
		timer.Reset(w.nextInterval())
	}
}

// nextInterval backs off linearly on consecutive sampler failures so a
// broken metrics source does not spin the loop
func (w *Watchdog) nextInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	multiplier := w.failures
	if multiplier > maxBackoffMultiplier {
		multiplier = maxBackoffMultiplier
	}
	return w.cfg.Interval * time.Duration(1+multiplier)
}

func (w *Watchdog) tick(ctx context.Context) {
	sample, err := w.sampler.Sample(ctx)
	if err != nil {
		w.mu.Lock()
		w.failures++
		failures := w.failures
		w.mu.Unlock()

		w.logger.Warn("resource sample failed",
			zap.Int("consecutive_failures", failures),
			zap.Error(err))
		return
	}

	w.mu.Lock()
	w.failures = 0
	w.last = sample
	w.hasSample = true
	w.totalSamples++
	w.mu.Unlock()

	w.evaluate(sample)
}

func (w *Watchdog) evaluate(sample models.ResourceSample) {
	if sample.MemoryPercent > w.cfg.MemoryThreshold {
		reason := fmt.Sprintf("Memory usage %.1f%% exceeded threshold %.1f%%",
			sample.MemoryPercent, w.cfg.MemoryThreshold)
		if w.state.Activate(reason) {
			w.audit.Append(models.NewAuditEntry("watchdog", models.AuditActionEmergencyStop, "system").
				WithRisk(models.RiskCritical).
				WithSuccess(true).
				WithDetails(reason))
			w.logger.Error("emergency stop triggered by memory pressure",
				zap.Float64("memory_percent", sample.MemoryPercent),
				zap.Float64("threshold", w.cfg.MemoryThreshold))
		}
		return
	}

	if sample.CPUPercent > w.cfg.CPUThreshold {
		w.logger.Warn("cpu usage above threshold",
			zap.Float64("cpu_percent", sample.CPUPercent),
			zap.Float64("threshold", w.cfg.CPUThreshold))
	}
}

// LastSample returns the most recent successful sample
func (w *Watchdog) LastSample() (models.ResourceSample, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.hasSample
}

// Stats reports loop health counters
func (w *Watchdog) Stats() (samples uint64, consecutiveFailures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalSamples, w.failures
}
