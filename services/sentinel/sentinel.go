// Package sentinel watches download directories for newly arrived files
// and quarantines anything that fails inspection.
package sentinel

import (
	"context"
	"sync"
	"time"

	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/audit"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"go.uber.org/zap"
)

const (
	maxBackoffMultiplier = 6
	verdictHistoryCap    = 256
)

// Config holds sentinel settings
type Config struct {
	// Directories to watch
	Directories []string
	// Interval between directory scans
	Interval time.Duration
	// MaxFileAge bounds how young a file must be to get inspected; older
	// new entries are presumed pre-existing and only recorded
	MaxFileAge time.Duration
	// MaxFileSize above which a new file is deleted outright
	MaxFileSize int64
}

// DefaultConfig returns the default sentinel settings
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		MaxFileAge:  30 * time.Second,
		MaxFileSize: 500 * 1024 * 1024,
	}
}

// Sentinel runs the directory scan loop
type Sentinel struct {
	cfg       Config
	fs        afs.Service
	inspector *inspector
	audit     *audit.Service
	logger    *zap.Logger

	mu       sync.Mutex
	known    map[string]map[string]struct{}
	verdicts []models.FileVerdict
	scans    uint64
	failures int

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New creates a Sentinel watching cfg.Directories
func New(cfg Config, fs afs.Service, auditSvc *audit.Service, logger *zap.Logger) *Sentinel {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxFileAge <= 0 {
		cfg.MaxFileAge = def.MaxFileAge
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	return &Sentinel{
		cfg:       cfg,
		fs:        fs,
		inspector: &inspector{fs: fs, maxFileSize: cfg.MaxFileSize},
		audit:     auditSvc,
		logger:    logger,
		known:     make(map[string]map[string]struct{}),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start records the baseline for every watched directory, then launches
// the scan loop in a goroutine. Files arriving after Start returns are
// treated as new.
func (s *Sentinel) Start(ctx context.Context) {
	s.scanOnce(ctx)
	go s.run(ctx)
	s.logger.Info("download sentinel started",
		zap.Strings("directories", s.cfg.Directories),
		zap.Duration("interval", s.cfg.Interval))
}

// Stop halts the loop and waits for it to exit
func (s *Sentinel) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *Sentinel) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-timer.C:
		}

		s.scanOnce(ctx)
		timer.Reset(s.nextInterval())
	}
}

func (s *Sentinel) nextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	multiplier := s.failures
	if multiplier > maxBackoffMultiplier {
		multiplier = maxBackoffMultiplier
	}
	return s.cfg.Interval * time.Duration(1+multiplier)
}

// scanOnce diffs every watched directory against its last-known file set
// and inspects files that were not seen before. The first scan of a
// directory only records the baseline.
func (s *Sentinel) scanOnce(ctx context.Context) {
	failed := false
	for _, dir := range s.cfg.Directories {
		if err := s.scanDir(ctx, dir); err != nil {
			failed = true
			s.logger.Warn("directory scan failed",
				zap.String("directory", dir),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	s.scans++
	if failed {
		s.failures++
	} else {
		s.failures = 0
	}
	s.mu.Unlock()
}

func (s *Sentinel) scanDir(ctx context.Context, dir string) error {
	objects, err := s.fs.List(ctx, dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	seen, baselined := s.known[dir]
	if !baselined {
		seen = make(map[string]struct{})
		s.known[dir] = seen
	}
	s.mu.Unlock()

	now := time.Now()
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		path := url.Join(dir, object.Name())

		s.mu.Lock()
		_, ok := seen[path]
		if !ok {
			seen[path] = struct{}{}
		}
		s.mu.Unlock()
		if ok || !baselined {
			continue
		}

		if now.Sub(object.ModTime()) > s.cfg.MaxFileAge {
			continue
		}
		s.inspectFile(ctx, dir, path, object.Size())
	}
	return nil
}

func (s *Sentinel) inspectFile(ctx context.Context, dir, path string, size int64) {
	remove, reason := s.inspector.inspect(ctx, path, size)

	// a lock-contended file is retried on the next scan, so it must not
	// stay in the known set
	if !remove && reason == reasonLocked {
		s.mu.Lock()
		if seen, ok := s.known[dir]; ok {
			delete(seen, path)
		}
		s.mu.Unlock()
		s.logger.Info("file locked, retrying next scan", zap.String("path", path))
		return
	}

	verdict := models.FileVerdict{Path: path, Kept: !remove, Reason: reason}
	if remove {
		if err := s.fs.Delete(ctx, path); err != nil {
			s.logger.Error("failed to delete quarantined file",
				zap.String("path", path),
				zap.Error(err))
		} else {
			s.audit.Append(models.NewAuditEntry("sentinel", models.AuditActionFileQuarantined, path).
				WithRisk(models.RiskHigh).
				WithSuccess(true).
				WithDetails(reason))
			s.logger.Warn("file quarantined",
				zap.String("path", path),
				zap.String("reason", reason))
		}
	} else {
		s.logger.Info("file inspected",
			zap.String("path", path),
			zap.String("reason", reason))
	}

	s.mu.Lock()
	s.verdicts = append(s.verdicts, verdict)
	if len(s.verdicts) > verdictHistoryCap {
		s.verdicts = s.verdicts[len(s.verdicts)-verdictHistoryCap:]
	}
	s.mu.Unlock()
}

// Verdicts returns a copy of the recent inspection verdicts
func (s *Sentinel) Verdicts() []models.FileVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FileVerdict(nil), s.verdicts...)
}

// Stats reports loop health counters
func (s *Sentinel) Stats() (scans uint64, consecutiveFailures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans, s.failures
}
