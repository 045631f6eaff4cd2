package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openfiscal/budgetflow/internal/breaker"
	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/ratelimit"
)

func fastHFRetry() HFOption {
	return WithHFRetry(3, time.Millisecond, 5*time.Millisecond)
}

func TestHuggingFaceSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("Authorization = %q", got)
		}
		var req hfRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Inputs == "" {
			t.Fatal("empty inputs in request")
		}
		if err := json.NewEncoder(w).Encode([]hfSummary{{SummaryText: "The budget grew."}}); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	h := NewHuggingFace("test-key", nil, nil, WithHFBaseURL(server.URL), fastHFRetry())
	result, err := h.Summarize(context.Background(), "Long budget text.", Options{TargetWords: 10})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if result.Summary != "The budget grew." {
		t.Fatalf("Summary = %q", result.Summary)
	}
	if result.Provider != NameHuggingFace || result.Confidence != ConfidenceHuggingFace {
		t.Fatalf("metadata = %+v", result)
	}
}

func TestHuggingFaceRetriesOnServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]hfSummary{{SummaryText: "Recovered."}})
	}))
	defer server.Close()

	h := NewHuggingFace("test-key", nil, nil, WithHFBaseURL(server.URL), fastHFRetry())
	result, err := h.Summarize(context.Background(), "text", Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if calls != 2 {
		t.Fatalf("server saw %d calls, want 2", calls)
	}
	if result.Summary != "Recovered." {
		t.Fatalf("Summary = %q", result.Summary)
	}
}

func TestHuggingFaceAuthFailureIsTerminal(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(hfError{Error: "invalid api key"})
	}))
	defer server.Close()

	h := NewHuggingFace("bad-key", nil, nil, WithHFBaseURL(server.URL), fastHFRetry())
	_, err := h.Summarize(context.Background(), "text", Options{})
	if err == nil {
		t.Fatal("want error")
	}
	if pipeline.TypeOf(err) != pipeline.ErrAuthentication {
		t.Fatalf("TypeOf = %s, want authentication_failed", pipeline.TypeOf(err))
	}
	if calls != 1 {
		t.Fatalf("server saw %d calls, want 1; terminal errors must not retry", calls)
	}
}

func TestHuggingFaceModelLoading(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(hfError{Error: "Model facebook/bart-large-cnn is currently loading"})
	}))
	defer server.Close()

	h := NewHuggingFace("test-key", nil, nil, WithHFBaseURL(server.URL), WithHFRetry(2, time.Millisecond, 5*time.Millisecond))
	_, err := h.Summarize(context.Background(), "text", Options{})
	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if pipeline.TypeOf(err) != pipeline.ErrModelUnavail {
		t.Fatalf("TypeOf = %s, want model_unavailable", pipeline.TypeOf(err))
	}
}

func TestHuggingFaceUnavailableWithoutKey(t *testing.T) {
	h := NewHuggingFace("", nil, nil)
	if h.IsAvailable() {
		t.Fatal("provider without an api key must report unavailable")
	}
}

func TestHuggingFaceCircuitOpenRejectsBeforeCall(t *testing.T) {
	brk := breaker.New(1, time.Hour)
	brk.RecordFailure()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	h := NewHuggingFace("test-key", nil, brk, WithHFBaseURL(server.URL), fastHFRetry())
	_, err := h.Summarize(context.Background(), "text", Options{})
	if pipeline.TypeOf(err) != pipeline.ErrCircuitOpen {
		t.Fatalf("TypeOf = %s, want circuit_open", pipeline.TypeOf(err))
	}
	if calls != 0 {
		t.Fatalf("server saw %d calls, want 0", calls)
	}
}

func TestHuggingFaceRateLimitedBeforeCall(t *testing.T) {
	limiter := ratelimit.New(map[string]int{NameHuggingFace: 0}, 0)

	h := NewHuggingFace("test-key", limiter, nil, fastHFRetry())
	_, err := h.Summarize(context.Background(), "text", Options{})
	if pipeline.TypeOf(err) != pipeline.ErrRateLimited {
		t.Fatalf("TypeOf = %s, want rate_limited", pipeline.TypeOf(err))
	}
	if !pipeline.Retryable(err) {
		t.Fatal("rate-limited preflight must stay retryable so the workflow can come back tomorrow")
	}
}
