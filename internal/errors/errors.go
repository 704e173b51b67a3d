// Package errors provides centralized error definitions and error handling utilities
// for agentsync. It defines the coordination error taxonomy, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of a coordination subsystem:
//   - StoreError: shared state backend I/O or connection failures (StoreUnavailable)
//   - CoordinatorError: stage gating and ownership failures (DependencyNotMet, UnauthorizedAgent)
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out (DependencyTimeout)
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewStoreError("get", errors.ErrStoreUnavailable).WithBackend("redis").WithKey(key)
//	err := errors.NewCoordinatorError("dependency not completed", errors.ErrDependencyNotMet).WithStage("backend_integration")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrDependencyNotMet) { ... }
//
//	var storeErr *errors.StoreError
//	if errors.As(err, &storeErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// Absence of a record is never an error in this codebase: lookups return a nil
// record and a nil error.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Store-related sentinel errors
var (
	// ErrStoreUnavailable indicates a backend I/O or connection failure.
	ErrStoreUnavailable = New("store unavailable")
	// ErrCorruptRecord indicates a stored value could not be decoded.
	ErrCorruptRecord = New("corrupt record")
)

// Coordination sentinel errors
var (
	// ErrDependencyNotMet indicates a stage was started before a prerequisite completed.
	ErrDependencyNotMet = New("dependency not met")
	// ErrUnauthorizedAgent indicates an agent other than the stage owner tried to complete it.
	ErrUnauthorizedAgent = New("unauthorized agent")
	// ErrDependencyTimeout indicates a dependency wait exceeded its budget.
	ErrDependencyTimeout = New("dependency timeout")
	// ErrUnknownStage indicates a stage name absent from the workflow graph.
	ErrUnknownStage = New("unknown workflow stage")
	// ErrUnknownAgent indicates an agent absent from the roster.
	ErrUnknownAgent = New("unknown agent")
	// ErrDependencyCycle indicates a circular dependency between stages.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrStageCompleted indicates a start was requested for a stage that already completed.
	ErrStageCompleted = New("stage already completed")
)

// Approval sentinel errors
var (
	// ErrApprovalRejected indicates a human rejected an approval request or checkpoint.
	ErrApprovalRejected = New("approval rejected")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNotFound indicates that a resource could not be found.
	ErrNotFound = New("not found")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// AgentsyncError is the base interface for all agentsync errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type AgentsyncError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StoreError represents a failure of the shared state backend.
// Store errors always match ErrStoreUnavailable unless another cause is given.
//
// Example:
//
//	err := errors.NewStoreError("set", ioErr).WithBackend("file").WithKey("ns:kilo:task-1")
//	fmt.Println(err) // "store error [backend=file, op=set, key=ns:kilo:task-1]: ..."
type StoreError struct {
	baseError
	Backend   string
	Operation string
	Key       string
}

// NewStoreError creates a new StoreError for the given operation.
func NewStoreError(operation string, cause error) *StoreError {
	return &StoreError{
		baseError: baseError{
			message:    operation + " failed",
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: false,
		},
		Operation: operation,
	}
}

// WithBackend adds the backend name to the error context.
func (e *StoreError) WithBackend(backend string) *StoreError {
	e.Backend = backend
	return e
}

// WithKey adds the key being accessed to the error context.
func (e *StoreError) WithKey(key string) *StoreError {
	e.Key = key
	return e
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}

	prefix := "store error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("store error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	if target == ErrStoreUnavailable {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinatorError represents errors related to stage gating and ownership.
//
// Example:
//
//	err := errors.NewCoordinatorError("dependency not completed", errors.ErrDependencyNotMet)
//	err = err.WithStage("backend_integration").WithAgent("roo")
type CoordinatorError struct {
	baseError
	AgentID   string
	StageName string
	ActionID  string
}

// NewCoordinatorError creates a new CoordinatorError.
func NewCoordinatorError(message string, cause error) *CoordinatorError {
	return &CoordinatorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithAgent adds an agent ID to the error context.
func (e *CoordinatorError) WithAgent(id string) *CoordinatorError {
	e.AgentID = id
	return e
}

// WithStage adds a stage name to the error context.
func (e *CoordinatorError) WithStage(name string) *CoordinatorError {
	e.StageName = name
	return e
}

// WithAction adds an action ID to the error context.
func (e *CoordinatorError) WithAction(id string) *CoordinatorError {
	e.ActionID = id
	return e
}

// WithSeverity sets the error severity.
func (e *CoordinatorError) WithSeverity(s Severity) *CoordinatorError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *CoordinatorError) WithRetryable(r bool) *CoordinatorError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *CoordinatorError) Error() string {
	var parts []string
	if e.AgentID != "" {
		parts = append(parts, fmt.Sprintf("agent=%s", e.AgentID))
	}
	if e.StageName != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.StageName))
	}
	if e.ActionID != "" {
		parts = append(parts, fmt.Sprintf("action=%s", e.ActionID))
	}

	prefix := "coordinator error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("coordinator error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *CoordinatorError) Is(target error) bool {
	if _, ok := target.(*CoordinatorError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("handoff", "task-42")
//	fmt.Println(err) // "handoff 'task-42' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("agent ID cannot be empty").WithField("agentId")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for kilo:stage_frontend_development", 30*time.Second).
//	    WithCause(errors.ErrDependencyTimeout)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing AgentsyncError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var asErr AgentsyncError
	if As(err, &asErr) {
		return asErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var asErr AgentsyncError
	if As(err, &asErr) {
		return asErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement AgentsyncError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var asErr AgentsyncError
	if As(err, &asErr) {
		return asErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the AgentsyncError interface.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
