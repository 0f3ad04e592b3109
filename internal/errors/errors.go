package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
)

// DocsError is the structured error type for amandocs.
// It carries enough context for logging, retry decisions and user output.
type DocsError struct {
	// Code is the unique error code (e.g., "ERR_407_UNSUPPORTED_INPUT").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface. The cause is appended unless the
// message already is the cause's text, as with Wrap.
func (e *DocsError) Error() string {
	if e.Cause == nil || e.Cause.Error() == e.Message {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocsError) Unwrap() error {
	return e.Cause
}

// Is matches another DocsError by code, so errors.Is(err, ErrUnsupported) works
// against the sentinel values below.
func (e *DocsError) Is(target error) bool {
	if t, ok := target.(*DocsError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DocsError) WithDetail(key, value string) *DocsError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocsError) WithSuggestion(suggestion string) *DocsError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocsError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocsError {
	return &DocsError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocsError from an existing error.
func Wrap(code string, err error) *DocsError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnsupported      = &DocsError{Code: ErrCodeUnsupportedInput}
	ErrCapacityExceeded = &DocsError{Code: ErrCodeCapacityExceeded}
	ErrCorruptState     = &DocsError{Code: ErrCodeCorruptIndex}
	ErrFileNotFound     = &DocsError{Code: ErrCodeFileNotFound}
	ErrIngestionFailed  = &DocsError{Code: ErrCodeIngestionFailed}
	ErrSyncTransient    = &DocsError{Code: ErrCodeSyncTransient}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocsError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocsError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocsError {
	return New(ErrCodeInternal, message, cause)
}

// UnsupportedInput reports content that can never be indexed: an unknown
// extension or OCR output that fails the quality heuristics.
func UnsupportedInput(message string) *DocsError {
	return New(ErrCodeUnsupportedInput, message, nil)
}

// CapacityExceeded reports a full queue along with how many slots remain.
func CapacityExceeded(capacity, remaining int) *DocsError {
	return New(ErrCodeCapacityExceeded, fmt.Sprintf("upload queue is full (capacity %d)", capacity), nil).
		WithDetail("remaining_capacity", strconv.Itoa(remaining)).
		WithSuggestion("wait for queued uploads to finish and retry")
}

// CorruptState reports persisted artifacts that exist but cannot be trusted.
func CorruptState(message string, cause error) *DocsError {
	return New(ErrCodeCorruptIndex, message, cause).
		WithSuggestion("remove the collection directory and re-ingest, or restore a backup")
}

// IngestionFailure wraps a per-item embedding or indexing error.
func IngestionFailure(path string, cause error) *DocsError {
	return New(ErrCodeIngestionFailed, fmt.Sprintf("failed to ingest %s", path), cause).
		WithDetail("path", path)
}

// SyncTransient wraps a monitor upload error that should be retried later.
func SyncTransient(path string, cause error) *DocsError {
	return New(ErrCodeSyncTransient, fmt.Sprintf("sync of %s failed", path), cause).
		WithDetail("path", path)
}

// FileNotFound reports a missing input path.
func FileNotFound(path string) *DocsError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path), nil).
		WithDetail("path", path)
}

// IsRetryable checks if an error is retryable anywhere in its chain.
func IsRetryable(err error) bool {
	var de *DocsError
	if stderrors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var de *DocsError
	if stderrors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a DocsError.
// Returns empty string if not a DocsError.
func GetCode(err error) string {
	var de *DocsError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetDetail returns a detail value from the first DocsError in the chain.
func GetDetail(err error, key string) string {
	var de *DocsError
	if stderrors.As(err, &de) && de.Details != nil {
		return de.Details[key]
	}
	return ""
}
