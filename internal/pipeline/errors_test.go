package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestStageErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := NewStageError("summarization", ErrAPIError, true, cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should see through StageError")
	}
	if TypeOf(err) != ErrAPIError {
		t.Fatalf("TypeOf = %s, want api_error", TypeOf(err))
	}
	if !Retryable(err) {
		t.Fatal("want retryable")
	}
}

func TestTypeOfUnclassified(t *testing.T) {
	if got := TypeOf(errors.New("plain")); got != ErrUnknown {
		t.Fatalf("TypeOf = %s, want unknown", got)
	}
}

func TestRetryableDefaults(t *testing.T) {
	if Retryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
	if !Retryable(errors.New("plain")) {
		t.Fatal("unclassified errors default to retryable")
	}
	if Retryable(NewStageError("summarization", ErrInvalidInput, false, errors.New("bad"))) {
		t.Fatal("terminal classification must not be retryable")
	}
}

func TestClassifyProviderErrorStatusCodes(t *testing.T) {
	cases := []struct {
		code      int
		wantType  ErrorType
		wantRetry bool
	}{
		{429, ErrRateLimited, true},
		{401, ErrAuthentication, false},
		{403, ErrAuthentication, false},
		{400, ErrInvalidInput, false},
		{404, ErrModelUnavail, false},
		{500, ErrAPIError, true},
		{503, ErrAPIError, true},
	}
	for _, tc := range cases {
		err := fmt.Errorf("call failed: %w", &googleapi.Error{Code: tc.code})
		got := ClassifyProviderError("summarization", err)
		if got.Type != tc.wantType || got.Retryable != tc.wantRetry {
			t.Fatalf("code %d: got (%s, retryable=%v), want (%s, %v)",
				tc.code, got.Type, got.Retryable, tc.wantType, tc.wantRetry)
		}
	}
}

func TestClassifyProviderErrorMessages(t *testing.T) {
	cases := []struct {
		message   string
		wantType  ErrorType
		wantRetry bool
	}{
		{"quota exceeded for model", ErrRateLimited, true},
		{"invalid api key", ErrAuthentication, false},
		{"context deadline exceeded (Client.Timeout exceeded while awaiting headers)", ErrTimeout, true},
		{"dial tcp: connection refused", ErrConnection, true},
		{"model is currently loading, estimated_time 20s", ErrModelUnavail, true},
		{"internal server error", ErrAPIError, true},
		{"something inexplicable", ErrUnknown, true},
	}
	for _, tc := range cases {
		got := ClassifyProviderError("summarization", errors.New(tc.message))
		if got.Type != tc.wantType || got.Retryable != tc.wantRetry {
			t.Fatalf("%q: got (%s, retryable=%v), want (%s, %v)",
				tc.message, got.Type, got.Retryable, tc.wantType, tc.wantRetry)
		}
	}
}

func TestClassifyProviderErrorDeadline(t *testing.T) {
	err := fmt.Errorf("generate: %w", context.DeadlineExceeded)
	got := ClassifyProviderError("translation", err)
	if got.Type != ErrTimeout || !got.Retryable {
		t.Fatalf("got (%s, retryable=%v), want (timeout, true)", got.Type, got.Retryable)
	}
	if got.Stage != "translation" {
		t.Fatalf("Stage = %s, want translation", got.Stage)
	}
}

func TestClassifyProviderErrorPassesThroughStageError(t *testing.T) {
	original := NewStageError("summarization", ErrCircuitOpen, false, errors.New("open"))
	got := ClassifyProviderError("summarization", fmt.Errorf("wrapped: %w", original))
	if got != original {
		t.Fatalf("got %v, want the already-classified error unchanged", got)
	}
}

func TestRetryableExtraction(t *testing.T) {
	for _, et := range []ErrorType{ErrTimeout, ErrMemory, ErrDownloadFailed, ErrUnknown} {
		if !RetryableExtraction(et) {
			t.Fatalf("%s should be transient", et)
		}
	}
	for _, et := range []ErrorType{ErrEncrypted, ErrCorruptFile, ErrParsing, ErrEmpty, ""} {
		if RetryableExtraction(et) {
			t.Fatalf("%s should wait for a manual retry", et)
		}
	}
}

func TestClassifyExtractionError(t *testing.T) {
	cases := []struct {
		message   string
		wantType  ErrorType
		wantRetry bool
	}{
		{"pdfcpu: this file is encrypted", ErrEncrypted, false},
		{"malformed xref table", ErrCorruptFile, false},
		{"operation timeout while reading pages", ErrTimeout, true},
		{"runtime: out of memory", ErrMemory, true},
		{"storage: object doesn't exist", ErrDownloadFailed, true},
		{"failed to extract text from page 3", ErrParsing, false},
		{"weird failure", ErrUnknown, true},
	}
	for _, tc := range cases {
		got := ClassifyExtractionError(errors.New(tc.message))
		if got.Type != tc.wantType || got.Retryable != tc.wantRetry {
			t.Fatalf("%q: got (%s, retryable=%v), want (%s, %v)",
				tc.message, got.Type, got.Retryable, tc.wantType, tc.wantRetry)
		}
	}
}
