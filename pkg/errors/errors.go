// Package errors provides the firmware's error-kind classification: a
// single ServiceError type carrying one of a fixed set of kinds so the
// orchestrator can decide retry/reconnect/halt policy without type-switching
// on wrapped causes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents one of the error kinds this firmware distinguishes.
type ErrorType string

const (
	// ErrorTypeWireCrcMismatch: a decoded wire frame's CRC did not match.
	ErrorTypeWireCrcMismatch ErrorType = "wire_crc_mismatch"
	// ErrorTypeWireShortFrame: a wire frame was truncated or malformed.
	ErrorTypeWireShortFrame ErrorType = "wire_short_frame"
	// ErrorTypeWireTimeout: a serial read did not complete within its soft
	// deadline. Retried implicitly; escalates to AsicNotResponding after
	// asic.TimeoutThreshold consecutive occurrences.
	ErrorTypeWireTimeout ErrorType = "wire_timeout"
	// ErrorTypeAsicNotResponding: the timeout threshold was crossed; the
	// chain may be wedged. Operator-visible.
	ErrorTypeAsicNotResponding ErrorType = "asic_not_responding"
	// ErrorTypeStratumParse: a single JSON-RPC line failed to parse. The
	// line is discarded; the session continues.
	ErrorTypeStratumParse ErrorType = "stratum_parse"
	// ErrorTypeStratumProtocol: a structurally valid message violated the
	// protocol (e.g. malformed mining.notify params). The session is torn
	// down and reconnected.
	ErrorTypeStratumProtocol ErrorType = "stratum_protocol"
	// ErrorTypeStratumAuthFailed: mining.authorize was rejected. Surfaced
	// to the operator; the mining loop halts rather than retries.
	ErrorTypeStratumAuthFailed ErrorType = "stratum_auth_failed"
	// ErrorTypePoolReject: the pool rejected a submitted share. Not fatal.
	// SubmitShare reports a rejection as accepted=false plus the pool's
	// reason string, not as an error of this kind; no reject counter is kept.
	ErrorTypePoolReject ErrorType = "pool_reject"
	// ErrorTypeConfigMissing: a requested settings key was absent. The
	// caller falls back to its documented default; this kind exists so the
	// fallback is still logged and attributable.
	ErrorTypeConfigMissing ErrorType = "config_missing"

	// ErrorTypeNetwork is a general transport failure not yet classified
	// into one of the Stratum/Wire kinds above (e.g. the initial dial).
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeValidation represents input validation errors.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTimeout represents a generic timeout outside the wire path.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal represents internal/unknown errors.
	ErrorTypeInternal ErrorType = "internal"
)

// ServiceError represents a structured error with context
type ServiceError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Timestamp time.Time
	Retryable bool
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s operation '%s' failed: %s (caused by: %v)", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s operation '%s' failed: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error unwrapping
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error should be retried
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// WithContext adds additional context to the error
func (e *ServiceError) WithContext(key string, value interface{}) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new ServiceError
func New(errorType ErrorType, operation, message string) *ServiceError {
	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: isRetryableByType(errorType),
	}
}

// Wrap wraps an existing error with context
func Wrap(err error, errorType ErrorType, operation, message string) *ServiceError {
	if err == nil {
		return nil
	}

	// If it's already a ServiceError, keep it as the cause and carry over its
	// retryability; errorType still replaces its type
	if se, ok := err.(*ServiceError); ok {
		return &ServiceError{
			Type:      errorType,
			Operation: operation,
			Message:   message,
			Cause:     se,
			Timestamp: time.Now(),
			Retryable: se.Retryable,
		}
	}

	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
		Retryable: isRetryableByDefault(err),
	}
}

// isRetryableByType determines if an error type is generally retryable
func isRetryableByType(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeWireTimeout, ErrorTypePoolReject:
		return true
	case ErrorTypeValidation, ErrorTypeWireCrcMismatch, ErrorTypeWireShortFrame,
		ErrorTypeStratumAuthFailed, ErrorTypeConfigMissing:
		return false
	default:
		return false
	}
}

// isRetryableByDefault checks if an error is retryable based on common patterns
func isRetryableByDefault(err error) bool {
	if err == nil {
		return false
	}

	// Check for context cancellation/timeout (not retryable)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	
	// Network-related errors are usually retryable
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"network unreachable",
		"timeout",
		"temporary failure",
		"too many connections",
	}

	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}

	return false
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type == errorType
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	return isRetryableByDefault(err)
}

// GetContext retrieves context from a ServiceError
func GetContext(err error) map[string]interface{} {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Context
	}
	return nil
}