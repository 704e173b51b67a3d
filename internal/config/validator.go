package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/agentsync/internal/errors"
	"github.com/Iron-Ham/agentsync/internal/store"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "store.ttl")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is makes configuration errors match errors.ErrInvalidInput.
func (e ValidationErrors) Is(target error) bool {
	return target == errors.ErrInvalidInput
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// metricNameRegex matches a valid Prometheus metric name prefix
var metricNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	// Smallest non-zero TTL; a bare "3600" decodes as nanoseconds
	minTTL = time.Second
	// Redis ships with 16 logical databases
	maxRedisDB = 15
	// Reasonable upper bound for log file size
	maxLogSizeMB = 1000
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateWait()...)
	errs = append(errs, c.validateCleanup()...)
	errs = append(errs, c.validateWorkflow()...)
	errs = append(errs, c.validateOrchestration()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)

	return errs
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errs []ValidationError
	s := c.Store

	if !slices.Contains(store.Backends(), s.Backend) {
		errs = append(errs, ValidationError{
			Field:   "store.backend",
			Value:   s.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(store.Backends(), ", ")),
		})
	}

	// The namespace is a single key segment
	if s.Namespace == "" || strings.Contains(s.Namespace, store.KeySeparator) {
		errs = append(errs, ValidationError{
			Field:   "store.namespace",
			Value:   s.Namespace,
			Message: fmt.Sprintf("must be non-empty and must not contain %q", store.KeySeparator),
		})
	} else if err := store.ValidateKey(s.Namespace); err != nil {
		errs = append(errs, ValidationError{
			Field:   "store.namespace",
			Value:   s.Namespace,
			Message: err.Error(),
		})
	}

	if s.TTL < 0 || (s.TTL > 0 && s.TTL < minTTL) {
		errs = append(errs, ValidationError{
			Field:   "store.ttl",
			Value:   s.TTL,
			Message: fmt.Sprintf("must be 0 or at least %s", minTTL),
		})
	}

	if strings.ContainsRune(s.File.Dir, '\x00') {
		errs = append(errs, ValidationError{
			Field:   "store.file.dir",
			Value:   s.File.Dir,
			Message: "path contains invalid null character",
		})
	}

	if s.Backend == store.BackendRedis {
		if s.Redis.Addr == "" {
			errs = append(errs, ValidationError{
				Field:   "store.redis.addr",
				Value:   s.Redis.Addr,
				Message: "is required for the redis backend",
			})
		}
		if s.Redis.DB < 0 || s.Redis.DB > maxRedisDB {
			errs = append(errs, ValidationError{
				Field:   "store.redis.db",
				Value:   s.Redis.DB,
				Message: fmt.Sprintf("must be between 0 and %d", maxRedisDB),
			})
		}
	}

	if s.Redis.ConnectTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "store.redis.connect_timeout",
			Value:   s.Redis.ConnectTimeout,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateWait validates the WaitConfig
func (c *Config) validateWait() []ValidationError {
	var errs []ValidationError

	if c.Wait.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "wait.poll_interval",
			Value:   c.Wait.PollInterval,
			Message: "must be positive",
		})
	}

	if c.Wait.DefaultTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "wait.default_timeout",
			Value:   c.Wait.DefaultTimeout,
			Message: "must be non-negative",
		})
	}

	// A wait shorter than one poll never sees the dependency change
	if c.Wait.DefaultTimeout > 0 && c.Wait.PollInterval > c.Wait.DefaultTimeout {
		errs = append(errs, ValidationError{
			Field:   "wait.poll_interval",
			Value:   c.Wait.PollInterval,
			Message: fmt.Sprintf("must not exceed wait.default_timeout (%s)", c.Wait.DefaultTimeout),
		})
	}

	return errs
}

// validateCleanup validates the CleanupConfig
func (c *Config) validateCleanup() []ValidationError {
	var errs []ValidationError

	if c.Cleanup.MaxAge < 0 {
		errs = append(errs, ValidationError{
			Field:   "cleanup.max_age",
			Value:   c.Cleanup.MaxAge,
			Message: "must be non-negative",
		})
	}

	if c.Cleanup.FinishedMaxAge < 0 {
		errs = append(errs, ValidationError{
			Field:   "cleanup.finished_max_age",
			Value:   c.Cleanup.FinishedMaxAge,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateWorkflow validates the WorkflowConfig
func (c *Config) validateWorkflow() []ValidationError {
	var errs []ValidationError

	if c.Workflow.File != "" {
		if _, err := os.Stat(c.Workflow.File); err != nil {
			errs = append(errs, ValidationError{
				Field:   "workflow.file",
				Value:   c.Workflow.File,
				Message: "file is not readable",
			})
		}
	}

	for i, dep := range c.Workflow.ExemptDependencies {
		if strings.TrimSpace(dep) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("workflow.exempt_dependencies[%d]", i),
				Value:   dep,
				Message: "must not be empty",
			})
		}
	}

	if c.Workflow.MaxParallel < 0 {
		errs = append(errs, ValidationError{
			Field:   "workflow.max_parallel",
			Value:   c.Workflow.MaxParallel,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateOrchestration validates the OrchestrationConfig
func (c *Config) validateOrchestration() []ValidationError {
	var errs []ValidationError
	o := c.Orchestration

	if o.StallThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestration.stall_threshold",
			Value:   o.StallThreshold,
			Message: "must be non-negative",
		})
	}

	if o.ApprovalPollInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestration.approval_poll_interval",
			Value:   o.ApprovalPollInterval,
			Message: "must be non-negative",
		})
	}

	if o.StopConcurrency < 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestration.stop_concurrency",
			Value:   o.StopConcurrency,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errs []ValidationError

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics.addr",
				Value:   c.Metrics.Addr,
				Message: "must be host:port",
			})
		}
	}

	if c.Metrics.Namespace != "" && !metricNameRegex.MatchString(c.Metrics.Namespace) {
		errs = append(errs, ValidationError{
			Field:   "metrics.namespace",
			Value:   c.Metrics.Namespace,
			Message: "must start with a letter or underscore and contain only letters, digits, and underscores",
		})
	}

	return errs
}
