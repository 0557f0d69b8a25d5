/**
 * Error taxonomy for the document processing pipeline.
 *
 * Structural errors abort a document; everything else degrades the result
 * through warnings and the overall status.
 */

package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a processing error class.
type ErrorCode string

const (
	// Structural errors - fatal for the document, result is Failed
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorEmptyImage        ErrorCode = "EMPTY_IMAGE"
	ErrorUnreadableImage   ErrorCode = "UNREADABLE_IMAGE"

	// Recoverable conditions - absorbed into warnings
	ErrorEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorLowConfidenceDrop ErrorCode = "LOW_CONFIDENCE_DROP"
	ErrorTimeoutExceeded   ErrorCode = "TIMEOUT_EXCEEDED"

	// Shell errors (queue/storage boundary)
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError is the structured error carried through the pipeline.
type ProcessingError struct {
	Code       ErrorCode
	Message    string
	DocumentID string
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Structural reports whether the error aborts the whole document.
func (e *ProcessingError) Structural() bool {
	switch e.Code {
	case ErrorUnsupportedFormat, ErrorEmptyImage, ErrorUnreadableImage:
		return true
	}
	return false
}

// IsStructural reports whether err carries a structural ProcessingError.
func IsStructural(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Structural()
	}
	return false
}

// CodeOf extracts the error code from err, or "" when err is not a
// ProcessingError.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries the given processing error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Factory functions for common errors

func NewUnsupportedFormatError(documentID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorUnsupportedFormat,
		Message:    "image could not be decoded",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewEmptyImageError(documentID string) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorEmptyImage,
		Message:    "image has zero dimensions",
		DocumentID: documentID,
		Timestamp:  time.Now(),
	}
}

func NewUnreadableImageError(documentID string) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorUnreadableImage,
		Message:    "image carries no tonal contrast, nothing to recognize",
		DocumentID: documentID,
		Timestamp:  time.Now(),
	}
}

func NewEngineUnavailableError(engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEngineUnavailable,
		Message:   fmt.Sprintf("OCR engine %q cannot be invoked", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewTimeoutExceededError(documentID string, timeout time.Duration) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorTimeoutExceeded,
		Message:    fmt.Sprintf("document processing timed out after %v", timeout),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"timeout": timeout.String(),
		},
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "failed to store processing results",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id": jobID,
		},
		Cause: cause,
	}
}

// ToMap converts the error to a map for persistence alongside job records.
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
