package config

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/agentsync/internal/logging"
	"github.com/Iron-Ham/agentsync/internal/sharedmem"
	"github.com/Iron-Ham/agentsync/internal/store"
	"github.com/Iron-Ham/agentsync/internal/workflow"
)

// EnvPrefix prefixes every environment override, e.g. AGENTSYNC_STORE_BACKEND.
const EnvPrefix = "AGENTSYNC"

// Config represents the complete agentsync configuration
type Config struct {
	Store         StoreConfig         `mapstructure:"store"`
	Wait          WaitConfig          `mapstructure:"wait"`
	Cleanup       CleanupConfig       `mapstructure:"cleanup"`
	Workflow      WorkflowConfig      `mapstructure:"workflow"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// StoreConfig selects the shared state backend
type StoreConfig struct {
	// Backend is "file" (default) or "redis"
	Backend string `mapstructure:"backend"`
	// Namespace is the first key segment of every record (default: "ai_collaboration")
	Namespace string `mapstructure:"namespace"`
	// TTL is the expiry requested for every write; 0 disables expiry (default: 1h)
	TTL time.Duration `mapstructure:"ttl"`

	File  FileStoreConfig `mapstructure:"file"`
	Redis RedisConfig     `mapstructure:"redis"`
}

// FileStoreConfig configures the file backend
type FileStoreConfig struct {
	// Dir is the base directory for record files.
	// If empty, defaults to ".agentsync/shared" relative to the working directory.
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir"`
}

// RedisConfig configures the Redis backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ChannelPrefix prefixes the change-notification channel (default: "agentsync:")
	ChannelPrefix string `mapstructure:"channel_prefix"`
	// ConnectTimeout bounds the initial connection retries (default: 10s)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// WaitConfig controls dependency waits
type WaitConfig struct {
	// PollInterval is how often a waiter re-reads the awaited record (default: 1s)
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// DefaultTimeout applies when a caller passes no timeout (default: 30s)
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// CleanupConfig controls record garbage collection
type CleanupConfig struct {
	// MaxAge applies to active records (default: 24h)
	MaxAge time.Duration `mapstructure:"max_age"`
	// FinishedMaxAge applies to completed and stopped records; 0 means MaxAge
	FinishedMaxAge time.Duration `mapstructure:"finished_max_age"`
}

// WorkflowConfig controls the stage graph
type WorkflowConfig struct {
	// File is a YAML stage graph; empty means the built-in graph
	File string `mapstructure:"file"`
	// ExemptDependencies are added to the graph's always-satisfied dependencies
	ExemptDependencies []string `mapstructure:"exempt_dependencies"`
	// MaxParallel bounds concurrent task assignments; 0 means unbounded
	MaxParallel int `mapstructure:"max_parallel"`
}

// OrchestrationConfig controls human oversight
type OrchestrationConfig struct {
	// StallThreshold is how long a stage may stay in progress before it is escalated (default: 30m)
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
	// AutoApprove approves every request without asking (default: false)
	AutoApprove bool `mapstructure:"auto_approve"`
	// ApprovalPollInterval is how often a shared approval is re-read (default: 1s)
	ApprovalPollInterval time.Duration `mapstructure:"approval_poll_interval"`
	// StopConcurrency bounds the parallel stops of an emergency stop (default: 8)
	StopConcurrency int `mapstructure:"stop_concurrency"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path; empty logs to stderr
	File string `mapstructure:"file"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address of the metrics endpoint; empty disables it
	Addr string `mapstructure:"addr"`
	// Namespace prefixes every metric name (default: "agentsync")
	Namespace string `mapstructure:"namespace"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   store.BackendFile,
			Namespace: sharedmem.DefaultNamespace,
			TTL:       sharedmem.DefaultTTL,
			File: FileStoreConfig{
				Dir: "", // Empty means use default: .agentsync/shared
			},
			Redis: RedisConfig{
				Addr:           "localhost:6379",
				DB:             0,
				ChannelPrefix:  store.DefaultChannelPrefix,
				ConnectTimeout: store.DefaultConnectTimeout,
			},
		},
		Wait: WaitConfig{
			PollInterval:   sharedmem.DefaultPollInterval,
			DefaultTimeout: sharedmem.DefaultWaitTimeout,
		},
		Cleanup: CleanupConfig{
			MaxAge:         sharedmem.DefaultMaxAge,
			FinishedMaxAge: 0, // Same as MaxAge
		},
		Workflow: WorkflowConfig{
			File:               "",
			ExemptDependencies: []string{},
			MaxParallel:        0,
		},
		Orchestration: OrchestrationConfig{
			StallThreshold:       30 * time.Minute,
			AutoApprove:          false,
			ApprovalPollInterval: time.Second,
			StopConcurrency:      8,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Addr:      "",
			Namespace: "agentsync",
		},
	}
}

// ResolveFileDir returns the resolved file backend directory.
// If Dir is empty, it returns the default path relative to baseDir.
// If Dir starts with ~, it expands to the user's home directory.
// If Dir is a relative path, it's resolved relative to baseDir.
func (s *StoreConfig) ResolveFileDir(baseDir string) string {
	if s.File.Dir == "" {
		return filepath.Join(baseDir, ".agentsync", "shared")
	}

	path := s.File.Dir

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// Options converts the store section into store.Open options. Relative file
// directories are resolved against baseDir.
func (s *StoreConfig) Options(baseDir string) store.Options {
	return store.Options{
		Backend: s.Backend,
		FileDir: s.ResolveFileDir(baseDir),
		Redis: store.RedisOptions{
			Addr:           s.Redis.Addr,
			Password:       s.Redis.Password,
			DB:             s.Redis.DB,
			ChannelPrefix:  s.Redis.ChannelPrefix,
			ConnectTimeout: s.Redis.ConnectTimeout,
		},
	}
}

// MemoryOptions returns the sharedmem options the store and wait sections
// describe.
func (c *Config) MemoryOptions() []sharedmem.Option {
	return []sharedmem.Option{
		sharedmem.WithNamespace(c.Store.Namespace),
		sharedmem.WithTTL(c.Store.TTL),
		sharedmem.WithPollInterval(c.Wait.PollInterval),
		sharedmem.WithDefaultTimeout(c.Wait.DefaultTimeout),
	}
}

// Retention returns the cleanup policy. A zero FinishedMaxAge falls back to
// MaxAge.
func (c *CleanupConfig) Retention() sharedmem.RetentionPolicy {
	finished := c.FinishedMaxAge
	if finished <= 0 {
		finished = c.MaxAge
	}
	return sharedmem.RetentionPolicy{ActiveMaxAge: c.MaxAge, FinishedMaxAge: finished}
}

// Rotation returns the log rotation settings.
func (l *LoggingConfig) Rotation() logging.RotationConfig {
	return logging.RotationConfig{MaxSizeMB: l.MaxSizeMB, MaxBackups: l.MaxBackups}
}

// Graph loads the configured stage graph, or the built-in one when no file
// is set, and adds the configured exempt dependencies.
func (w *WorkflowConfig) Graph() (*workflow.Graph, error) {
	g := workflow.DefaultGraph()
	if w.File != "" {
		loaded, err := workflow.LoadGraph(w.File)
		if err != nil {
			return nil, err
		}
		g = loaded
	}
	for _, dep := range w.ExemptDependencies {
		if !slices.Contains(g.Exempt, dep) {
			g.Exempt = append(g.Exempt, dep)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// SetDefaults registers default values with viper
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Store defaults
	v.SetDefault("store.backend", defaults.Store.Backend)
	v.SetDefault("store.namespace", defaults.Store.Namespace)
	v.SetDefault("store.ttl", defaults.Store.TTL)
	v.SetDefault("store.file.dir", defaults.Store.File.Dir)
	v.SetDefault("store.redis.addr", defaults.Store.Redis.Addr)
	v.SetDefault("store.redis.password", defaults.Store.Redis.Password)
	v.SetDefault("store.redis.db", defaults.Store.Redis.DB)
	v.SetDefault("store.redis.channel_prefix", defaults.Store.Redis.ChannelPrefix)
	v.SetDefault("store.redis.connect_timeout", defaults.Store.Redis.ConnectTimeout)

	// Wait defaults
	v.SetDefault("wait.poll_interval", defaults.Wait.PollInterval)
	v.SetDefault("wait.default_timeout", defaults.Wait.DefaultTimeout)

	// Cleanup defaults
	v.SetDefault("cleanup.max_age", defaults.Cleanup.MaxAge)
	v.SetDefault("cleanup.finished_max_age", defaults.Cleanup.FinishedMaxAge)

	// Workflow defaults
	v.SetDefault("workflow.file", defaults.Workflow.File)
	v.SetDefault("workflow.exempt_dependencies", defaults.Workflow.ExemptDependencies)
	v.SetDefault("workflow.max_parallel", defaults.Workflow.MaxParallel)

	// Orchestration defaults
	v.SetDefault("orchestration.stall_threshold", defaults.Orchestration.StallThreshold)
	v.SetDefault("orchestration.auto_approve", defaults.Orchestration.AutoApprove)
	v.SetDefault("orchestration.approval_poll_interval", defaults.Orchestration.ApprovalPollInterval)
	v.SetDefault("orchestration.stop_concurrency", defaults.Orchestration.StopConcurrency)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Metrics defaults
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
}

// BindEnv makes every key overridable through AGENTSYNC_<SECTION>_<KEY>.
func BindEnv() {
	bindEnv(viper.GetViper())
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

var durationType = reflect.TypeOf(time.Duration(0))

// castHook coerces loosely typed values (env strings, YAML scalars) into
// durations and string lists.
func castHook(from, to reflect.Type, data any) (any, error) {
	switch {
	case to == durationType:
		return cast.ToDurationE(data)
	case to.Kind() == reflect.Slice && to.Elem().Kind() == reflect.String && from.Kind() == reflect.String:
		return cast.ToStringSliceE(strings.ReplaceAll(data.(string), ",", " "))
	}
	return data, nil
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(castHook)); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentsync"
	}
	return filepath.Join(home, ".config", "agentsync")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
