package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorType is the machine-readable failure classification persisted to the
// document record. Values are part of the external contract with the UI.
type ErrorType string

// Provider call failures.
const (
	ErrRateLimited      ErrorType = "rate_limited"
	ErrTimeout          ErrorType = "timeout"
	ErrAPIError         ErrorType = "api_error"
	ErrConnection       ErrorType = "connection_error"
	ErrInvalidInput     ErrorType = "invalid_input"
	ErrModelUnavail     ErrorType = "model_unavailable"
	ErrAuthentication   ErrorType = "authentication_failed"
	ErrCircuitOpen      ErrorType = "circuit_open"
	ErrEmptyContent     ErrorType = "empty_content"
	ErrAllProvidersDown ErrorType = "all_providers_failed"
	ErrUnknown          ErrorType = "unknown"
)

// Extraction failures.
const (
	ErrEncrypted      ErrorType = "encrypted"
	ErrCorruptFile    ErrorType = "corrupt_file"
	ErrMemory         ErrorType = "memory_error"
	ErrDownloadFailed ErrorType = "download_failed"
	ErrParsing        ErrorType = "parsing_error"
	ErrEmpty          ErrorType = "empty"
)

// StageError tags a failure with its stage, taxonomy type, and whether the
// external job runtime should retry it. It wraps the underlying cause so
// errors.Is/As keep working through the classification layer.
type StageError struct {
	Stage     string
	Type      ErrorType
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Type)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Type, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError builds a classified stage error.
func NewStageError(stage string, errType ErrorType, retryable bool, err error) *StageError {
	return &StageError{Stage: stage, Type: errType, Retryable: retryable, Err: err}
}

// TypeOf returns the taxonomy type carried by err, or ErrUnknown when err was
// never classified.
func TypeOf(err error) ErrorType {
	var se *StageError
	if errors.As(err, &se) {
		return se.Type
	}
	return ErrUnknown
}

// Retryable reports whether the external job runtime should re-invoke the
// stage. Unclassified errors default to retryable so transient infrastructure
// faults are not silently made terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}

// ClassifyProviderError maps a raw provider failure onto the shared taxonomy.
// Status codes win over message heuristics; anything unrecognized stays
// unknown and retryable.
func ClassifyProviderError(stage string, err error) *StageError {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}

	if code, ok := statusCode(err); ok {
		switch {
		case code == 429:
			return NewStageError(stage, ErrRateLimited, true, err)
		case code == 401 || code == 403:
			return NewStageError(stage, ErrAuthentication, false, err)
		case code == 400:
			return NewStageError(stage, ErrInvalidInput, false, err)
		case code == 404:
			return NewStageError(stage, ErrModelUnavail, false, err)
		case code >= 500:
			return NewStageError(stage, ErrAPIError, true, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewStageError(stage, ErrTimeout, true, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewStageError(stage, ErrTimeout, true, err)
		}
		return NewStageError(stage, ErrConnection, true, err)
	}

	message := strings.ToLower(err.Error())
	switch {
	case containsAny(message, "429", "rate limit", "quota exceeded", "resource exhausted"):
		return NewStageError(stage, ErrRateLimited, true, err)
	case containsAny(message, "401", "403", "unauthorized", "permission denied", "invalid api key", "authentication"):
		return NewStageError(stage, ErrAuthentication, false, err)
	case containsAny(message, "timeout", "deadline exceeded", "awaiting headers"):
		return NewStageError(stage, ErrTimeout, true, err)
	case containsAny(message, "connection refused", "connection reset", "no such host", "broken pipe", "eof"):
		return NewStageError(stage, ErrConnection, true, err)
	case containsAny(message, "model is currently loading", "model_unavailable", "model not found"):
		return NewStageError(stage, ErrModelUnavail, true, err)
	case containsAny(message, "500", "502", "503", "504", "internal server error", "service unavailable", "overloaded"):
		return NewStageError(stage, ErrAPIError, true, err)
	}
	return NewStageError(stage, ErrUnknown, true, err)
}

// ClassifyExtractionError maps a PDF download/parse failure onto the
// extraction taxonomy using message heuristics.
func ClassifyExtractionError(err error) *StageError {
	const stage = "extraction"
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return se
	}

	message := strings.ToLower(err.Error())
	switch {
	case containsAny(message, "encrypted", "password", "aes", "decryption"):
		return NewStageError(stage, ErrEncrypted, false, err)
	case containsAny(message, "corrupt", "malformed", "invalid pdf", "xref", "not a pdf", "unexpected eof"):
		return NewStageError(stage, ErrCorruptFile, false, err)
	case errors.Is(err, context.DeadlineExceeded) || containsAny(message, "timeout", "deadline exceeded"):
		return NewStageError(stage, ErrTimeout, true, err)
	case containsAny(message, "out of memory", "cannot allocate", "memory"):
		return NewStageError(stage, ErrMemory, true, err)
	case containsAny(message, "download", "storage", "object doesn't exist", "bucket"):
		return NewStageError(stage, ErrDownloadFailed, true, err)
	case containsAny(message, "parse", "parsing", "extract"):
		return NewStageError(stage, ErrParsing, false, err)
	}
	return NewStageError(stage, ErrUnknown, true, err)
}

// RetryableExtraction reports whether a persisted extraction error type is
// transient. A redelivered upload event re-runs extraction for these; the
// rest wait for a manual retry.
func RetryableExtraction(t ErrorType) bool {
	switch t {
	case ErrTimeout, ErrMemory, ErrDownloadFailed, ErrUnknown:
		return true
	}
	return false
}

func statusCode(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	return 0, false
}

func containsAny(message string, tokens ...string) bool {
	for _, token := range tokens {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}
