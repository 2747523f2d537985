package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/safety-control-plane/models"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"go.uber.org/zap"
)

// configFile is the on-disk shape of the policy configuration
type configFile struct {
	ActivePolicy string                  `json:"active_policy"`
	Policies     []models.SecurityPolicy `json:"policies"`
}

// Store owns the named security policies and the single active policy.
// Every mutating call persists immediately, best effort: persistence
// failures are logged and never surfaced to the caller.
type Store struct {
	mu         sync.RWMutex
	policies   map[string]models.SecurityPolicy
	activeName string

	configPath string
	fs         afs.Service
	logger     *zap.Logger
}

// NewStore creates a Store backed by the JSON file at configPath
func NewStore(configPath string, logger *zap.Logger) *Store {
	return &Store{
		policies:   make(map[string]models.SecurityPolicy),
		configPath: configPath,
		fs:         afs.New(),
		logger:     logger,
	}
}

// Load reads the policy configuration. A missing or malformed file fails
// closed to the hard-coded default policy, which is then persisted.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.fs.Exists(ctx, s.configPath)
	if err == nil && exists {
		data, downloadErr := s.fs.DownloadWithURL(ctx, s.configPath)
		if downloadErr == nil {
			var cf configFile
			if unmarshalErr := json.Unmarshal(data, &cf); unmarshalErr == nil && len(cf.Policies) > 0 {
				s.installLocked(cf)
				s.logger.Info("loaded security policies",
					zap.String("path", s.configPath),
					zap.Int("count", len(s.policies)),
					zap.String("active", s.activeName))
				return nil
			} else if unmarshalErr != nil {
				s.logger.Warn("malformed policy config, falling back to default",
					zap.String("path", s.configPath),
					zap.Error(unmarshalErr))
			}
		} else {
			s.logger.Warn("failed to read policy config, falling back to default",
				zap.String("path", s.configPath),
				zap.Error(downloadErr))
		}
	}

	def := models.DefaultPolicy()
	s.policies = map[string]models.SecurityPolicy{def.Name: def}
	s.activeName = def.Name
	s.persistLocked(ctx)

	s.logger.Info("installed default security policy",
		zap.String("path", s.configPath))
	return nil
}

// installLocked replaces in-memory state from a parsed config file
func (s *Store) installLocked(cf configFile) {
	s.policies = make(map[string]models.SecurityPolicy, len(cf.Policies))
	for _, p := range cf.Policies {
		s.policies[p.Name] = p.Clone()
	}
	if _, ok := s.policies[cf.ActivePolicy]; ok {
		s.activeName = cf.ActivePolicy
	} else if _, ok := s.policies["default"]; ok {
		s.activeName = "default"
	} else {
		// deterministic fallback when the named active policy is gone
		names := make([]string, 0, len(s.policies))
		for name := range s.policies {
			names = append(names, name)
		}
		sort.Strings(names)
		s.activeName = names[0]
	}
}

// Save serializes all policies plus the active policy name
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	sort.Strings(names)

	cf := configFile{ActivePolicy: s.activeName}
	for _, name := range names {
		cf.Policies = append(cf.Policies, s.policies[name])
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal policy config: %w", err)
	}
	if err := s.fs.Upload(ctx, s.configPath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write policy config %s: %w", s.configPath, err)
	}
	return nil
}

// persistLocked saves best effort, logging failures
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.saveLocked(ctx); err != nil {
		s.logger.Error("failed to persist security policies", zap.Error(err))
	}
}

// SetActive switches the active policy. Returns false for an unknown name.
func (s *Store) SetActive(ctx context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[name]; !ok {
		return false
	}
	s.activeName = name
	s.persistLocked(ctx)
	return true
}

// Create registers a new policy. Returns false when the name is taken.
func (s *Store) Create(ctx context.Context, policy models.SecurityPolicy) bool {
	if policy.Name == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[policy.Name]; ok {
		return false
	}
	s.policies[policy.Name] = policy.Clone()
	s.persistLocked(ctx)
	return true
}

// Update applies an explicit field update to a named policy, replacing it
// wholesale. Returns false when the policy does not exist.
func (s *Store) Update(ctx context.Context, name string, update models.PolicyUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.policies[name]
	if !ok {
		return false
	}
	s.policies[name] = update.Apply(current)
	s.persistLocked(ctx)
	return true
}

// Get returns a copy of the named policy
func (s *Store) Get(name string) (models.SecurityPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[name]
	if !ok {
		return models.SecurityPolicy{}, false
	}
	return p.Clone(), true
}

// Active returns a copy of the active policy
func (s *Store) Active() (models.SecurityPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[s.activeName]
	if !ok {
		return models.SecurityPolicy{}, false
	}
	return p.Clone(), true
}

// ActiveName returns the name of the active policy
func (s *Store) ActiveName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeName
}

// List returns copies of all policies, sorted by name
func (s *Store) List() []models.SecurityPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.SecurityPolicy, 0, len(names))
	for _, name := range names {
		out = append(out, s.policies[name].Clone())
	}
	return out
}
