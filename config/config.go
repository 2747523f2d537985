package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	Policy        PolicyConfig
	Audit         AuditConfig
	Risk          RiskConfig
	Approval      ApprovalConfig
	Watchdog      WatchdogConfig
	Sentinel      SentinelConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds JWT authentication configuration
type AuthConfig struct {
	// Secret signs and verifies HMAC bearer tokens
	Secret string
	Issuer string
}

// PolicyConfig holds policy store configuration
type PolicyConfig struct {
	// ConfigPath is the JSON file holding named policies + the active policy
	ConfigPath string
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// LogPath is the durable append-only JSONL sink
	LogPath string
	// MemoryCap bounds the in-memory ring buffer
	MemoryCap   int
	BufferSize  int
	WorkerCount int
	// DatabaseURL, when set, mirrors audit entries into Postgres
	DatabaseURL string
}

// RiskConfig holds risk assessment configuration
type RiskConfig struct {
	// LargeFileThreshold marks the large_file risk factor (bytes)
	LargeFileThreshold int64
}

// ApprovalConfig holds approval workflow configuration
type ApprovalConfig struct {
	// MaxRiskOperations caps HIGH/CRITICAL admissions per rolling hour
	MaxRiskOperations int
	// MaxOverrideOperations caps full-access break-glass admissions per
	// rolling hour
	MaxOverrideOperations int
	// ConfirmTimeout bounds the out-of-band confirmation gate; an expired
	// gate counts as a decline
	ConfirmTimeout time.Duration
}

// WatchdogConfig holds resource watchdog configuration
type WatchdogConfig struct {
	Interval        time.Duration
	MemoryThreshold float64
	CPUThreshold    float64
	DiskPath        string
}

// SentinelConfig holds download sentinel configuration
type SentinelConfig struct {
	// Directories lists the watched download directories
	Directories []string
	Interval    time.Duration
	// MaxFileAge bounds how old a newly seen file may be and still get
	// inspected
	MaxFileAge time.Duration
	// MaxFileSize above which a new file is deleted outright (bytes)
	MaxFileSize int64
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8443),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "safety-control-plane"),
		},
		Policy: PolicyConfig{
			ConfigPath: getEnv("POLICY_CONFIG_PATH", "data/security_policies.json"),
		},
		Audit: AuditConfig{
			LogPath:     getEnv("AUDIT_LOG_PATH", "data/audit.log"),
			MemoryCap:   getEnvAsInt("AUDIT_MEMORY_CAP", 10000),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 10000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 2),
			DatabaseURL: getEnv("DATABASE_URL_AUDIT", ""),
		},
		Risk: RiskConfig{
			LargeFileThreshold: getEnvAsInt64("RISK_LARGE_FILE_THRESHOLD", 100*1024*1024),
		},
		Approval: ApprovalConfig{
			MaxRiskOperations:     getEnvAsInt("APPROVAL_MAX_RISK_OPERATIONS", 10),
			MaxOverrideOperations: getEnvAsInt("APPROVAL_MAX_OVERRIDE_OPERATIONS", 5),
			ConfirmTimeout:        getEnvAsDuration("APPROVAL_CONFIRM_TIMEOUT", 30*time.Second),
		},
		Watchdog: WatchdogConfig{
			Interval:        getEnvAsDuration("WATCHDOG_INTERVAL", 5*time.Second),
			MemoryThreshold: getEnvAsFloat("WATCHDOG_MEMORY_THRESHOLD", 90),
			CPUThreshold:    getEnvAsFloat("WATCHDOG_CPU_THRESHOLD", 90),
			DiskPath:        getEnv("WATCHDOG_DISK_PATH", "/"),
		},
		Sentinel: SentinelConfig{
			Directories: getEnvAsSlice("SENTINEL_DIRECTORIES", defaultDownloadDirs()),
			Interval:    getEnvAsDuration("SENTINEL_INTERVAL", 5*time.Second),
			MaxFileAge:  getEnvAsDuration("SENTINEL_MAX_FILE_AGE", 30*time.Second),
			MaxFileSize: getEnvAsInt64("SENTINEL_MAX_FILE_SIZE", 500*1024*1024),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Policy.ConfigPath == "" {
		return fmt.Errorf("policy config path is required")
	}
	if c.Audit.LogPath == "" {
		return fmt.Errorf("audit log path is required")
	}
	if c.Audit.MemoryCap <= 0 {
		return fmt.Errorf("audit memory cap must be positive")
	}
	if c.Watchdog.MemoryThreshold <= 0 || c.Watchdog.MemoryThreshold > 100 {
		return fmt.Errorf("watchdog memory threshold must be within (0, 100]")
	}
	if c.Watchdog.CPUThreshold <= 0 || c.Watchdog.CPUThreshold > 100 {
		return fmt.Errorf("watchdog cpu threshold must be within (0, 100]")
	}
	if c.Audit.DatabaseURL != "" {
		if _, err := url.Parse(c.Audit.DatabaseURL); err != nil {
			return fmt.Errorf("invalid audit database URL: %w", err)
		}
	}
	if c.IsProduction() && c.Auth.Secret == "" {
		return fmt.Errorf("JWT secret is required in production")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaultDownloadDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return []string{"downloads"}
	}
	return []string{home + "/Downloads"}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
