// Package errors provides centralized error definitions and error handling utilities
// for montage. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - ProviderError: a generation provider rejected or failed a call, tagged
//     with a ProviderKind (retryable, policy, unavailable, terminal)
//   - ConfigurationError: the run is misconfigured (e.g. no provider chain is
//     registered for a capability). This is the only failure class the
//     execution layer surfaces to callers.
//
// Semantic errors represent common error conditions:
//   - ValidationError: malformed input; the only fatal class in the decision core
//   - NotFoundError: resource not found
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewProviderError(errors.KindRetryable, "rate limited", nil).
//		WithProvider("openai").WithCapability("image")
//
//	switch errors.ClassifyProvider(err) {
//	case errors.KindRetryable:
//	    // back off and retry
//	case errors.KindPolicy:
//	    // remediate the payload
//	}
package errors

import (
	"context"
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

// Intent and ledger sentinel errors
var (
	// ErrInvalidIntent indicates that an intent is missing mandatory fields.
	ErrInvalidIntent = New("invalid intent")
	// ErrInvalidDecision indicates that a decision violates ledger invariants.
	ErrInvalidDecision = New("invalid decision")
	// ErrDependencyCycle indicates a circular dependency between topics or requests.
	ErrDependencyCycle = New("dependency cycle detected")
)

// Provider sentinel errors
var (
	// ErrNoProvider indicates that no provider chain is registered for a capability.
	ErrNoProvider = New("no provider registered")
	// ErrUnsupportedCapability indicates that an adapter does not implement a capability.
	ErrUnsupportedCapability = New("capability not supported by provider")
	// ErrRemediationFailed indicates that a payload rewrite could not be produced.
	ErrRemediationFailed = New("payload remediation failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// MontageError is the base interface for all montage errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type MontageError interface {
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
// Provider Errors
// -----------------------------------------------------------------------------

// ProviderKind tags a provider failure with the recovery path it calls for.
type ProviderKind int

const (
	// KindUnknown is returned by ClassifyProvider for a nil error.
	KindUnknown ProviderKind = iota
	// KindRetryable marks transient failures such as rate limits, quota
	// signals and timeouts. Recovered with backoff.
	KindRetryable
	// KindPolicy marks content-policy rejections. Recovered by rewriting the payload.
	KindPolicy
	// KindUnavailable marks a provider that is down or cannot serve the
	// capability. Recovered by advancing the fallback chain.
	KindUnavailable
	// KindTerminal marks a provider that can never serve the request as
	// configured (bad credentials, unknown model).
	KindTerminal
)

// String returns the lower-case name of the kind.
func (k ProviderKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindPolicy:
		return "policy"
	case KindUnavailable:
		return "unavailable"
	case KindTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// ParseProviderKind converts a kind name back to a ProviderKind.
func ParseProviderKind(s string) ProviderKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "retryable":
		return KindRetryable
	case "policy":
		return KindPolicy
	case "unavailable":
		return KindUnavailable
	case "terminal":
		return KindTerminal
	default:
		return KindUnknown
	}
}

// ProviderError represents a failed call to a generation provider.
//
// Example:
//
//	err := errors.NewProviderError(errors.KindPolicy, "prompt rejected", nil)
//	err = err.WithProvider("stability").WithCapability("image")
//	fmt.Println(err) // "provider error [kind=policy, provider=stability, capability=image]: prompt rejected"
type ProviderError struct {
	baseError
	Kind       ProviderKind
	ProviderID string
	Capability string
}

// NewProviderError creates a new ProviderError of the given kind.
func NewProviderError(kind ProviderKind, message string, cause error) *ProviderError {
	sev := SeverityWarning
	if kind == KindTerminal {
		sev = SeverityError
	}
	return &ProviderError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   sev,
			retryable:  kind == KindRetryable,
			userFacing: false,
		},
		Kind: kind,
	}
}

// WithProvider adds the provider ID to the error context.
func (e *ProviderError) WithProvider(id string) *ProviderError {
	e.ProviderID = id
	return e
}

// WithCapability adds the capability kind to the error context.
func (e *ProviderError) WithCapability(capability string) *ProviderError {
	e.Capability = capability
	return e
}

// Error returns the formatted error message.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("kind=%s", e.Kind)}
	if e.ProviderID != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.ProviderID))
	}
	if e.Capability != "" {
		parts = append(parts, fmt.Sprintf("capability=%s", e.Capability))
	}

	prefix := fmt.Sprintf("provider error [%s]", strings.Join(parts, ", "))
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ProviderError) Is(target error) bool {
	if _, ok := target.(*ProviderError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConfigurationError represents a run that cannot proceed because of how it
// was configured. Unlike provider failures it is never recovered locally.
//
// Example:
//
//	err := errors.NewConfigurationError("no provider chain", errors.ErrNoProvider).WithCapability("video")
type ConfigurationError struct {
	baseError
	Capability string
	Key        string
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithCapability adds the capability kind to the error context.
func (e *ConfigurationError) WithCapability(capability string) *ConfigurationError {
	e.Capability = capability
	return e
}

// WithKey adds the offending configuration key to the error context.
func (e *ConfigurationError) WithKey(key string) *ConfigurationError {
	e.Key = key
	return e
}

// Error returns the formatted error message.
func (e *ConfigurationError) Error() string {
	var parts []string
	if e.Capability != "" {
		parts = append(parts, fmt.Sprintf("capability=%s", e.Capability))
	}
	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("key=%s", e.Key))
	}

	prefix := "configuration error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("configuration error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if _, ok := target.(*ConfigurationError); ok {
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
//	err := errors.NewNotFoundError("run", "abc123")
//	fmt.Println(err) // "run 'abc123' not found"
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
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("mission text cannot be empty")
//	err = err.WithField("mission").WithValue("")
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
//	err := errors.NewTimeoutError("persona message", 30*time.Second)
//	fmt.Println(err) // "timeout error: persona message (timeout: 30s)"
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
			retryable:  true,
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
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var montageErr MontageError
	if As(err, &montageErr) {
		return montageErr.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, context.DeadlineExceeded)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var montageErr MontageError
	if As(err, &montageErr) {
		return montageErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement MontageError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var montageErr MontageError
	if As(err, &montageErr) {
		return montageErr.Severity()
	}
	return SeverityError
}

// ClassifyProvider maps an error returned by a provider call onto the
// recovery path the execution layer should take. Deadlines and timeouts are
// retryable; unrecognised errors are treated as the provider being
// unavailable so that the fallback chain advances.
func ClassifyProvider(err error) ProviderKind {
	if err == nil {
		return KindUnknown
	}

	var provErr *ProviderError
	if As(err, &provErr) {
		return provErr.Kind
	}

	var timeoutErr *TimeoutError
	if As(err, &timeoutErr) || Is(err, context.DeadlineExceeded) {
		return KindRetryable
	}

	return KindUnavailable
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return As(err, &nf)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return As(err, &c)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to negotiate topic")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to execute request %s", requestID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
