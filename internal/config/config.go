package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/timebox"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// Config holds configuration settings for the workflow engine service
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string
		Env      string

		// Stores
		CatalogStore   timebox.StoreConfig
		PartitionStore timebox.StoreConfig
		WorkflowStore  timebox.StoreConfig

		// Retry & Timeout
		Retry       api.RetryPolicy
		TaskTimeout time.Duration
		FailureMode api.FailureMode

		// Archive
		ArchiveBucketURL string
		ArchivePrefix    string

		// Definitions
		DefinitionsDir string

		ShutdownTimeout time.Duration
	}
)

const (
	DefaultTaskTimeout     = time.Hour
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0

	DefaultRedisEndpoint   = "localhost:6379"
	DefaultRedisPrefix     = "tessera"
	DefaultSnapshotWorkers = 4
	DefaultArchivePrefix   = "instances"
	DefaultEnv             = "dev"

	DefaultRetryMaxAttempts  = 3
	DefaultRetryInitBackoff  = time.Second
	DefaultRetryMaxBackoff   = 30 * time.Second
	DefaultRetryMultiplier   = 2.0
	DefaultFailureMode       = api.FailFast
	MaxRetryMaxAttempts      = 1000
	MaxTaskTimeoutMillis     = int64(365 * 24 * time.Hour / time.Millisecond)
	MaxRetryBackoffMillis    = int64(24 * time.Hour / time.Millisecond)
	MaxShutdownTimeoutMillis = int64(time.Hour / time.Millisecond)
)

var (
	ErrInvalidAPIPort          = errors.New("invalid API port")
	ErrInvalidTaskTimeout      = errors.New("task timeout must be positive")
	ErrInvalidRetryMaxAttempts = errors.New(
		"retry max attempts must be at least 1",
	)
	ErrInvalidRetryInitBackoff = errors.New(
		"retry initial backoff must be positive",
	)
	ErrInvalidRetryMaxBackoff = errors.New(
		"retry max backoff must be positive",
	)
	ErrRetryMaxBackoffTooSmall = errors.New(
		"retry max backoff must be >= retry initial backoff",
	)
	ErrInvalidRetryMultiplier = errors.New(
		"retry multiplier must be at least 1",
	)
	ErrInvalidFailureMode = errors.New("invalid failure mode")
	ErrInvalidEnvValue    = errors.New("invalid environment value")
)

// NewDefaultConfig creates a configuration with sensible defaults for all
// engine settings, stores, and retry behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:        DefaultAPIPort,
		APIHost:        DefaultAPIHost,
		LogLevel:       "info",
		Env:            DefaultEnv,
		CatalogStore:   defaultStoreConfig(),
		PartitionStore: defaultStoreConfig(),
		WorkflowStore:  defaultStoreConfig(),
		Retry: api.RetryPolicy{
			MaxAttempts:    DefaultRetryMaxAttempts,
			InitialBackoff: api.Duration(DefaultRetryInitBackoff),
			MaxBackoff:     api.Duration(DefaultRetryMaxBackoff),
			Multiplier:     DefaultRetryMultiplier,
		},
		TaskTimeout:     DefaultTaskTimeout,
		FailureMode:     DefaultFailureMode,
		ArchivePrefix:   DefaultArchivePrefix,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func defaultStoreConfig() timebox.StoreConfig {
	cfg := timebox.DefaultStoreConfig()
	cfg.Addr = DefaultRedisEndpoint
	cfg.Password = ""
	cfg.DB = DefaultRedisDB
	cfg.Prefix = DefaultRedisPrefix
	cfg.WorkerCount = DefaultSnapshotWorkers
	return cfg
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	LoadStoreConfigFromEnv(&c.CatalogStore, "CATALOG")
	LoadStoreConfigFromEnv(&c.PartitionStore, "PARTITION")
	LoadStoreConfigFromEnv(&c.WorkflowStore, "WORKFLOW")

	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("ENV", &c.Env)
	loadEnvString("ARCHIVE_BUCKET_URL", &c.ArchiveBucketURL)
	loadEnvString("ARCHIVE_PREFIX", &c.ArchivePrefix)
	loadEnvString("DEFINITIONS_DIR", &c.DefinitionsDir)
	if mode := os.Getenv("FAILURE_MODE"); mode != "" {
		c.FailureMode = api.FailureMode(mode)
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts, 0, MaxRetryMaxAttempts,
	); err != nil {
		return err
	}
	if err := loadEnvMillis(
		"RETRY_INITIAL_BACKOFF", (*time.Duration)(&c.Retry.InitialBackoff),
		MaxRetryBackoffMillis,
	); err != nil {
		return err
	}
	if err := loadEnvMillis(
		"RETRY_MAX_BACKOFF", (*time.Duration)(&c.Retry.MaxBackoff),
		MaxRetryBackoffMillis,
	); err != nil {
		return err
	}
	if err := loadEnvMillis(
		"TASK_TIMEOUT", &c.TaskTimeout, MaxTaskTimeoutMillis,
	); err != nil {
		return err
	}
	if err := loadEnvMillis(
		"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, MaxShutdownTimeoutMillis,
	); err != nil {
		return err
	}
	if s := os.Getenv("RETRY_MULTIPLIER"); s != "" {
		m, err := strconv.ParseFloat(s, 64)
		if err != nil || m < 1 {
			return fmt.Errorf("%w: RETRY_MULTIPLIER %q", ErrInvalidEnvValue, s)
		}
		c.Retry.Multiplier = m
	}
	return nil
}

// WithRetryDefaults returns a copy of the config with zero-valued retry
// fields filled in from defaults
func (c *Config) WithRetryDefaults() *Config {
	res := *c
	if res.Retry.MaxAttempts == 0 {
		res.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if res.Retry.InitialBackoff <= 0 {
		res.Retry.InitialBackoff = api.Duration(DefaultRetryInitBackoff)
	}
	if res.Retry.MaxBackoff <= 0 {
		res.Retry.MaxBackoff = api.Duration(DefaultRetryMaxBackoff)
	}
	if res.Retry.Multiplier == 0 {
		res.Retry.Multiplier = DefaultRetryMultiplier
	}
	if res.TaskTimeout <= 0 {
		res.TaskTimeout = DefaultTaskTimeout
	}
	if res.FailureMode == "" {
		res.FailureMode = DefaultFailureMode
	}
	return &res
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.TaskTimeout <= 0 {
		return ErrInvalidTaskTimeout
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidRetryMaxAttempts
	}

	if c.Retry.InitialBackoff <= 0 {
		return ErrInvalidRetryInitBackoff
	}

	if c.Retry.MaxBackoff <= 0 {
		return ErrInvalidRetryMaxBackoff
	}

	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return ErrRetryMaxBackoffTooSmall
	}

	if c.Retry.Multiplier < 1 {
		return ErrInvalidRetryMultiplier
	}

	switch c.FailureMode {
	case api.FailFast, api.BestEffort:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidFailureMode, c.FailureMode)
	}

	return nil
}

// LoadStoreConfigFromEnv loads Redis store configuration from environment
// variables with the given prefix (e.g., "CATALOG" or "WORKFLOW")
func LoadStoreConfigFromEnv(s *timebox.StoreConfig, prefix string) {
	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		s.Addr = addr
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		s.Password = password
	}
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil {
			s.DB = db
		}
	}
	if envPrefix := os.Getenv(prefix + "_REDIS_PREFIX"); envPrefix != "" {
		s.Prefix = envPrefix
	}
	if envCount := os.Getenv(prefix + "_SNAPSHOT_WORKERS"); envCount != "" {
		if wc, err := strconv.Atoi(envCount); err == nil && wc >= 0 {
			s.WorkerCount = wc
		}
	}
}

func loadEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidEnvValue, key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("%w: %s %d out of range [%d, %d]",
			ErrInvalidEnvValue, key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// loadEnvMillis reads a positive millisecond count into a duration
func loadEnvMillis(key string, dst *time.Duration, max int64) error {
	var ms int64
	if err := loadEnvInt(key, &ms, 0, max); err != nil {
		return err
	}
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}
