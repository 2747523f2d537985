package sentinel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/safety-control-plane/models"
	"github.com/upb/safety-control-plane/services/audit"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"go.uber.org/zap"
)

func newTestSentinel(t *testing.T, dir string, cfg Config) (*Sentinel, *audit.Service) {
	t.Helper()
	cfg.Directories = []string{dir}
	auditSvc := audit.NewService(audit.DefaultConfig(), zap.NewNop())
	return New(cfg, afs.New(), auditSvc, zap.NewNop()), auditSvc
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func findVerdict(verdicts []models.FileVerdict, path string) (models.FileVerdict, bool) {
	for _, v := range verdicts {
		if v.Path == path {
			return v, true
		}
	}
	return models.FileVerdict{}, false
}

func TestSentinelBaselineSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := writeFile(t, dir, "old.exe", []byte("MZ pre-existing"))

	s, _ := newTestSentinel(t, dir, Config{})
	s.scanOnce(context.Background())

	assert.FileExists(t, existing)
	assert.Empty(t, s.Verdicts())
}

func TestSentinelDeletesExecutable(t *testing.T) {
	dir := t.TempDir()
	s, auditSvc := newTestSentinel(t, dir, Config{})
	s.scanOnce(context.Background())

	path := writeFile(t, dir, "invoice.exe", []byte{'M', 'Z', 0x90, 0x00})
	s.scanOnce(context.Background())

	assert.NoFileExists(t, path)
	verdict, ok := findVerdict(s.Verdicts(), path)
	require.True(t, ok)
	assert.False(t, verdict.Kept)

	trail := auditSvc.Trail(audit.Filter{Action: models.AuditActionFileQuarantined})
	require.Len(t, trail, 1)
	assert.Equal(t, path, trail[0].Resource)
	assert.Equal(t, models.RiskHigh, trail[0].RiskLevel)
}

func TestSentinelKeepsPlainText(t *testing.T) {
	dir := t.TempDir()
	s, auditSvc := newTestSentinel(t, dir, Config{})
	s.scanOnce(context.Background())

	path := writeFile(t, dir, "notes.txt", []byte("meeting notes\njust text\n"))
	s.scanOnce(context.Background())

	assert.FileExists(t, path)
	verdict, ok := findVerdict(s.Verdicts(), path)
	require.True(t, ok)
	assert.True(t, verdict.Kept)
	assert.Equal(t, reasonClean, verdict.Reason)
	assert.Empty(t, auditSvc.Trail(audit.Filter{}))
}

func TestSentinelDeletesByMagicBytes(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSentinel(t, dir, Config{})
	s.scanOnce(context.Background())

	renamed := writeFile(t, dir, "report.pdf", []byte{0x7f, 'E', 'L', 'F', 0x02})
	shebang := writeFile(t, dir, "setup.txt", []byte("#!/bin/sh\nrm something\n"))
	s.scanOnce(context.Background())

	assert.NoFileExists(t, renamed)
	assert.NoFileExists(t, shebang)
}

func TestSentinelDeletesOversizedFile(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSentinel(t, dir, Config{MaxFileSize: 16})
	s.scanOnce(context.Background())

	path := writeFile(t, dir, "dump.dat", make([]byte, 64))
	s.scanOnce(context.Background())

	assert.NoFileExists(t, path)
	verdict, ok := findVerdict(s.Verdicts(), path)
	require.True(t, ok)
	assert.Contains(t, verdict.Reason, "size limit")
}

func TestSentinelDeletesByKeyword(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSentinel(t, dir, Config{})
	s.scanOnce(context.Background())

	path := writeFile(t, dir, "readme.txt", []byte("run powershell -enc SQBFAFgA to install"))
	s.scanOnce(context.Background())

	assert.NoFileExists(t, path)
}

func TestSentinelSkipsStaleNewEntries(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSentinel(t, dir, Config{MaxFileAge: 30 * time.Second})
	s.scanOnce(context.Background())

	path := writeFile(t, dir, "stale.exe", []byte("MZ old download"))
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))
	s.scanOnce(context.Background())

	// too old to be a fresh download, recorded but left alone
	assert.FileExists(t, path)
	assert.Empty(t, s.Verdicts())
}

func TestSentinelInspectsFileOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSentinel(t, dir, Config{})
	s.scanOnce(context.Background())

	writeFile(t, dir, "notes.txt", []byte("plain"))
	s.scanOnce(context.Background())
	s.scanOnce(context.Background())

	assert.Len(t, s.Verdicts(), 1)
}

func TestSentinelMissingDirectoryBacksOff(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "gone")
	s, _ := newTestSentinel(t, missing, Config{Interval: time.Second})

	s.scanOnce(context.Background())
	s.scanOnce(context.Background())

	_, failures := s.Stats()
	assert.GreaterOrEqual(t, failures, 1)
	assert.Greater(t, s.nextInterval(), s.cfg.Interval)
}

// lockOnceFS fails the first content read of each file with a lock error
type lockOnceFS struct {
	afs.Service
	mu    sync.Mutex
	tried map[string]bool
}

func (f *lockOnceFS) DownloadWithURL(ctx context.Context, URL string, options ...storage.Option) ([]byte, error) {
	f.mu.Lock()
	first := !f.tried[URL]
	f.tried[URL] = true
	f.mu.Unlock()
	if first {
		return nil, errors.New("file is locked")
	}
	return f.Service.DownloadWithURL(ctx, URL, options...)
}

func TestSentinelRetriesLockedFileNextScan(t *testing.T) {
	dir := t.TempDir()
	fs := &lockOnceFS{Service: afs.New(), tried: map[string]bool{}}
	auditSvc := audit.NewService(audit.DefaultConfig(), zap.NewNop())
	s := New(Config{Directories: []string{dir}}, fs, auditSvc, zap.NewNop())
	s.scanOnce(context.Background())

	path := writeFile(t, dir, "payload.txt", []byte("run powershell -enc SQBFAFgA"))

	// first pass hits the lock and leaves the file alone
	s.scanOnce(context.Background())
	assert.FileExists(t, path)
	assert.Empty(t, s.Verdicts())

	// next pass reads the content and quarantines it
	s.scanOnce(context.Background())
	assert.NoFileExists(t, path)
	verdict, ok := findVerdict(s.Verdicts(), path)
	require.True(t, ok)
	assert.False(t, verdict.Kept)
}

func TestSentinelStartStop(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSentinel(t, dir, Config{Interval: time.Millisecond})

	s.Start(context.Background())

	// the baseline scan runs before Start returns
	scans, _ := s.Stats()
	require.GreaterOrEqual(t, scans, uint64(1))

	path := writeFile(t, dir, "invoice.exe", []byte("MZ"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop()

	assert.NoFileExists(t, path)
}

func TestIsLockError(t *testing.T) {
	assert.True(t, isLockError(errors.New("resource temporarily unavailable")))
	assert.True(t, isLockError(errors.New("The process cannot access the file because it is being used by another process")))
	assert.True(t, isLockError(errors.New("file is locked")))
	assert.False(t, isLockError(errors.New("permission denied")))
	assert.False(t, isLockError(assert.AnError))
}
