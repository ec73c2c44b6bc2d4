package errors

import (
	"time"
)

// Disposition tells the caller what to do with the inbound update after an
// error was handled.
type Disposition int

const (
	// DispositionHandled: the error was reported where it happened; the
	// update counts as processed.
	DispositionHandled Disposition = iota
	// DispositionDropped: the update is ignored (e.g. a malformed payload).
	DispositionDropped
	// DispositionFailed: the ingestion call should report failure.
	DispositionFailed
)

func (d Disposition) String() string {
	switch d {
	case DispositionHandled:
		return "handled"
	case DispositionDropped:
		return "dropped"
	default:
		return "failed"
	}
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler classifies and logs errors that escape an update handler.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleUpdateError logs err with the update's fields and decides how the
// ingestion layer should treat it.
func (h *ErrorHandler) HandleUpdateError(fields map[string]interface{}, err error) Disposition {
	if err == nil {
		return DispositionHandled
	}
	stdErr := h.normalizeError(err)

	logFields := map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
	}
	for k, v := range fields {
		logFields[k] = v
	}

	switch stdErr.Code {
	case ErrCodeFormat, ErrCodeOrder, ErrCodeUnauthorized, ErrCodeConflict, ErrCodeDeliveryFailed:
		h.logger.Warn("update handled with error", logFields)
		return DispositionHandled
	case ErrCodeMalformedPayload:
		h.logger.Warn("update dropped", logFields)
		return DispositionDropped
	default:
		h.logger.Error("update failed", logFields)
		return DispositionFailed
	}
}

func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	code := CodeOf(err)
	return &StandardError{
		Code:      code,
		Message:   UserMessage(err),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}
