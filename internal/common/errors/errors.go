// Package errors provides the bot's error taxonomy and the user-facing texts
// attached to each class.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode identifies an error class.
type ErrorCode string

const (
	// Recoverable input errors: re-prompt the same step.
	ErrCodeFormat ErrorCode = "FORMAT_ERROR"
	ErrCodeOrder  ErrorCode = "ORDER_ERROR"

	// Terminal for the interaction.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Isolated per notification attempt.
	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"

	// Logged and dropped.
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"

	ErrCodeStoreFailed ErrorCode = "STORE_FAILED"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// StandardError is a classified error. Message is safe to show to a chat
// user; Details and Cause are for logs only.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches any *StandardError carrying the same code, so the sentinels
// below work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrFormat           = &StandardError{Code: ErrCodeFormat}
	ErrOrder            = &StandardError{Code: ErrCodeOrder}
	ErrUnauthorized     = &StandardError{Code: ErrCodeUnauthorized}
	ErrConflict         = &StandardError{Code: ErrCodeConflict}
	ErrDeliveryFailed   = &StandardError{Code: ErrCodeDeliveryFailed}
	ErrMalformedPayload = &StandardError{Code: ErrCodeMalformedPayload}
	ErrStoreFailed      = &StandardError{Code: ErrCodeStoreFailed}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewFormatError carries the re-prompt text for malformed input.
func NewFormatError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeFormat,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewOrderError is raised when a date range starts after it ends.
func NewOrderError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeOrder,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnauthorizedError(handle string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "У вас нет прав для отклика на анкеты.",
		Details:   fmt.Sprintf("handle: %q", handle),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError is reserved for a strict single-engagement policy.
func NewConflictError(applicantID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "Помощь по этой анкете уже принята.",
		Details:   fmt.Sprintf("applicantId: %d", applicantID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryError wraps a transport failure for one destination. Delivery
// is never retried.
func NewDeliveryError(target string, err error) *StandardError {
	details := fmt.Sprintf("target: %s", target)
	if err != nil {
		details = fmt.Sprintf("target: %s, error: %s", target, err.Error())
	}
	return &StandardError{
		Code:      ErrCodeDeliveryFailed,
		Message:   "Произошла ошибка при отправке сообщения.",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func NewMalformedPayloadError(payload string, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedPayload,
		Message:   "Malformed action payload",
		Details:   fmt.Sprintf("payload: %q, reason: %s", payload, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewStoreError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreFailed,
		Message:   "Произошла ошибка. Пожалуйста, попробуйте позже.",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf returns the code of the first StandardError in err's chain, or
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// UserMessage returns text that is safe to send to a chat user.
func UserMessage(err error) string {
	var stdErr *StandardError
	if errors.As(err, &stdErr) && stdErr.Message != "" {
		return stdErr.Message
	}
	return "Произошла ошибка. Пожалуйста, попробуйте позже."
}

// IsRecoverable reports whether the user can fix the input and try again.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeFormat, ErrCodeOrder:
		return true
	default:
		return false
	}
}

// GetErrorCategory groups codes for logs and metrics.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeFormat, ErrCodeOrder:
		return "validation"
	case ErrCodeUnauthorized, ErrCodeConflict:
		return "authorization"
	case ErrCodeDeliveryFailed:
		return "delivery"
	case ErrCodeMalformedPayload:
		return "payload"
	case ErrCodeStoreFailed:
		return "storage"
	default:
		return "internal"
	}
}
