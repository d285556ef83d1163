package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Chrome     ChromeConfig     `yaml:"chrome"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Perception PerceptionConfig `yaml:"perception"`
	Flow       FlowConfig       `yaml:"flow"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Timeout     int      `yaml:"timeout"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ChromeConfig contains Chrome browser settings
type ChromeConfig struct {
	Headless  bool `yaml:"headless"`
	NoSandbox bool `yaml:"no_sandbox"`

	// Pool settings
	PoolSize          int           `yaml:"pool_size"`
	WarmupURL         string        `yaml:"warmup_url"`
	RestartAfterCount int           `yaml:"restart_after_count"`
	RestartAfterTime  time.Duration `yaml:"restart_after_time"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// APIConfig contains API key authentication settings for the flow control
// surface's optional bearer-token middleware.
type APIConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
}

// SchedulerConfig mirrors scheduler.SchedulerConfig's two tunables plus the
// policy gate's tunables, which live here rather than inside the scheduler
// package since they govern internal/policy.Gate, not job admission.
type SchedulerConfig struct {
	GlobalSlots          int           `yaml:"global_slots"`
	PerTaskLimit         int           `yaml:"per_task_limit"`
	BlockPrivateNetworks bool          `yaml:"block_private_networks"`
	RobotsCacheTTL       time.Duration `yaml:"robots_cache_ttl"`
}

// WaitTierBudgets is the per-tier timeout table. It is loaded and
// defaulted here, but no other package reads it: the primitives' wait
// tiers are bounded only by the ExecCtx deadline.
type WaitTierBudgets struct {
	DomReadyMs    int64 `yaml:"dom_ready_ms"`
	NetworkIdleMs int64 `yaml:"network_idle_ms"`
	FullMs        int64 `yaml:"full_ms"`
}

// PerceptionConfig tunes internal/perception's anchor/snapshot caches.
// HealthProbeIntervalMs is loaded and defaulted (0 becomes 5000), but
// nothing reads it: the registry runs no periodic probe and treats
// HealthProbeTick events as a no-op.
type PerceptionConfig struct {
	AnchorCacheTTL        time.Duration   `yaml:"anchor_cache_ttl"`
	SnapshotCacheTTL      time.Duration   `yaml:"snapshot_cache_ttl"`
	HealthProbeIntervalMs int64           `yaml:"health_probe_interval_ms"`
	WaitTierBudgets       WaitTierBudgets `yaml:"default_wait_tier_budgets"`
}

// FlowConfig holds flow-interpreter-wide defaults.
type FlowConfig struct {
	DefaultTimeoutMs int64 `yaml:"default_timeout_ms"`
}

// Default values
const (
	defaultHost      = "0.0.0.0"
	defaultPort      = 9301
	defaultTimeout   = 30
	defaultLogLevel  = logger.LevelInfo
	defaultLogFormat = logger.FormatJSON

	// Pool defaults
	defaultPoolSize          = 4
	defaultWarmupURL         = "https://example.com/"
	defaultRestartAfterCount = 50
	defaultRestartAfterTime  = 30 * time.Minute

	// Scheduler defaults (spec.md §6)
	defaultGlobalSlots    = 8
	defaultPerTaskLimit   = 4
	defaultRobotsCacheTTL = 60 * time.Second

	// Perception defaults
	defaultAnchorCacheTTL        = 60 * time.Second
	defaultSnapshotCacheTTL      = 30 * time.Second
	defaultHealthProbeIntervalMs = 5000
	defaultDomReadyBudgetMs      = 5000
	defaultNetworkIdleBudgetMs   = 10000
	defaultFullBudgetMs          = 15000

	// Flow defaults
	defaultFlowTimeoutMs = 300_000
)

// Validation constraints
const (
	minPort = 1
	maxPort = 65535

	// Pool validation
	minPoolSize = 1
	maxPoolSize = 16

	// Scheduler validation
	minGlobalSlots  = 1
	maxGlobalSlots  = 256
	minPerTaskLimit = 1
)

var validLogLevels = map[string]bool{
	logger.LevelDebug: true,
	logger.LevelInfo:  true,
	logger.LevelWarn:  true,
	logger.LevelError: true,
}

var validLogFormats = map[string]bool{
	logger.FormatJSON:    true,
	logger.FormatConsole: true,
}

// Load reads configuration from a YAML file and applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = defaultTimeout
	}

	// Pool defaults
	if c.Chrome.PoolSize == 0 {
		c.Chrome.PoolSize = defaultPoolSize
	}
	if c.Chrome.WarmupURL == "" {
		c.Chrome.WarmupURL = defaultWarmupURL
	}
	if c.Chrome.RestartAfterCount == 0 {
		c.Chrome.RestartAfterCount = defaultRestartAfterCount
	}
	if c.Chrome.RestartAfterTime == 0 {
		c.Chrome.RestartAfterTime = defaultRestartAfterTime
	}
	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}

	// Scheduler defaults
	if c.Scheduler.GlobalSlots == 0 {
		c.Scheduler.GlobalSlots = defaultGlobalSlots
	}
	if c.Scheduler.PerTaskLimit == 0 {
		c.Scheduler.PerTaskLimit = defaultPerTaskLimit
	}
	if c.Scheduler.RobotsCacheTTL == 0 {
		c.Scheduler.RobotsCacheTTL = defaultRobotsCacheTTL
	}

	// Perception defaults
	if c.Perception.AnchorCacheTTL == 0 {
		c.Perception.AnchorCacheTTL = defaultAnchorCacheTTL
	}
	if c.Perception.SnapshotCacheTTL == 0 {
		c.Perception.SnapshotCacheTTL = defaultSnapshotCacheTTL
	}
	if c.Perception.HealthProbeIntervalMs == 0 {
		c.Perception.HealthProbeIntervalMs = defaultHealthProbeIntervalMs
	}
	if c.Perception.WaitTierBudgets.DomReadyMs == 0 {
		c.Perception.WaitTierBudgets.DomReadyMs = defaultDomReadyBudgetMs
	}
	if c.Perception.WaitTierBudgets.NetworkIdleMs == 0 {
		c.Perception.WaitTierBudgets.NetworkIdleMs = defaultNetworkIdleBudgetMs
	}
	if c.Perception.WaitTierBudgets.FullMs == 0 {
		c.Perception.WaitTierBudgets.FullMs = defaultFullBudgetMs
	}

	// Flow defaults
	if c.Flow.DefaultTimeoutMs == 0 {
		c.Flow.DefaultTimeoutMs = defaultFlowTimeoutMs
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SOULBROWSER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if poolSize := os.Getenv("SOULBROWSER_POOL_SIZE"); poolSize != "" {
		if p, err := strconv.Atoi(poolSize); err == nil {
			c.Chrome.PoolSize = p
		}
	}

	if logLevel := os.Getenv("SOULBROWSER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if corsOrigins := os.Getenv("SOULBROWSER_CORS_ORIGINS"); corsOrigins != "" {
		c.Server.CORSOrigins = strings.Split(corsOrigins, ",")
	}

	if globalSlots := os.Getenv("SOULBROWSER_GLOBAL_SLOTS"); globalSlots != "" {
		if v, err := strconv.Atoi(globalSlots); err == nil {
			c.Scheduler.GlobalSlots = v
		}
	}
	if perTaskLimit := os.Getenv("SOULBROWSER_PER_TASK_LIMIT"); perTaskLimit != "" {
		if v, err := strconv.Atoi(perTaskLimit); err == nil {
			c.Scheduler.PerTaskLimit = v
		}
	}

	// API key overrides
	if apiKeys := os.Getenv("SOULBROWSER_API_KEYS"); apiKeys != "" {
		parts := strings.Split(apiKeys, ",")
		var filteredKeys []string
		for _, key := range parts {
			trimmed := strings.TrimSpace(key)
			if trimmed != "" {
				filteredKeys = append(filteredKeys, trimmed)
			}
		}
		if len(filteredKeys) > 0 {
			c.API.Keys = filteredKeys
			c.API.Enabled = true
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate port
	if c.Server.Port < minPort || c.Server.Port > maxPort {
		return fmt.Errorf("invalid port: %d (must be %d-%d)", c.Server.Port, minPort, maxPort)
	}

	// Validate pool settings
	if c.Chrome.PoolSize < minPoolSize || c.Chrome.PoolSize > maxPoolSize {
		return fmt.Errorf("invalid pool_size: %d (must be %d-%d)", c.Chrome.PoolSize, minPoolSize, maxPoolSize)
	}
	// Validate log level
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.Logging.Level)
	}

	// Validate log format
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be one of: json, console)", c.Logging.Format)
	}

	// Validate API config
	if c.API.Enabled && len(c.API.Keys) == 0 {
		return fmt.Errorf("API enabled but no keys configured")
	}
	for _, key := range c.API.Keys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("API keys must not be empty")
		}
	}

	// Validate scheduler config
	if c.Scheduler.GlobalSlots < minGlobalSlots || c.Scheduler.GlobalSlots > maxGlobalSlots {
		return fmt.Errorf("invalid scheduler.global_slots: %d (must be %d-%d)", c.Scheduler.GlobalSlots, minGlobalSlots, maxGlobalSlots)
	}
	if c.Scheduler.PerTaskLimit < minPerTaskLimit || c.Scheduler.PerTaskLimit > c.Scheduler.GlobalSlots {
		return fmt.Errorf("invalid scheduler.per_task_limit: %d (must be between %d and global_slots=%d)", c.Scheduler.PerTaskLimit, minPerTaskLimit, c.Scheduler.GlobalSlots)
	}

	// Validate flow config
	if c.Flow.DefaultTimeoutMs <= 0 {
		return fmt.Errorf("invalid flow.default_timeout_ms: %d (must be positive)", c.Flow.DefaultTimeoutMs)
	}

	return nil
}

// ChromeTimeout returns the Chrome render timeout derived from server timeout
func (c *Config) ChromeTimeout() int {
	return c.Server.Timeout - 5
}
