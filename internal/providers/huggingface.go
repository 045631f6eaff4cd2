package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openfiscal/budgetflow/internal/breaker"
	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/ratelimit"
)

const (
	defaultHFBaseURL = "https://api-inference.huggingface.co/models"
	defaultHFModel   = "facebook/bart-large-cnn"
	defaultHFTimeout = 60 * time.Second
)

// HuggingFace is the secondary provider: a hosted open-source summarization
// model behind the Inference API. Simpler than the chat-based primary, with
// the same breaker and retry shape.
type HuggingFace struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	guard       guard
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// HFOption customizes the HuggingFace client.
type HFOption func(*HuggingFace)

// WithHFHTTPClient overrides the default HTTP client.
func WithHFHTTPClient(client *http.Client) HFOption {
	return func(h *HuggingFace) {
		if client != nil {
			h.httpClient = client
		}
	}
}

// WithHFBaseURL overrides the Inference API base (useful for tests/mocks).
func WithHFBaseURL(base string) HFOption {
	return func(h *HuggingFace) {
		base = strings.TrimSpace(base)
		if base != "" {
			h.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHFModel overrides the summarization model id.
func WithHFModel(model string) HFOption {
	return func(h *HuggingFace) {
		if strings.TrimSpace(model) != "" {
			h.model = model
		}
	}
}

// WithHFRetry overrides the retry budget and backoff delays.
func WithHFRetry(attempts int, baseDelay, maxDelay time.Duration) HFOption {
	return func(h *HuggingFace) {
		if attempts > 0 {
			h.maxAttempts = attempts
		}
		if baseDelay > 0 {
			h.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			h.maxDelay = maxDelay
		}
	}
}

// NewHuggingFace constructs the secondary provider. An empty API key leaves
// the provider unavailable so the chain filters it out.
func NewHuggingFace(apiKey string, limiter *ratelimit.Limiter, brk *breaker.Breaker, opts ...HFOption) *HuggingFace {
	h := &HuggingFace{
		apiKey:      strings.TrimSpace(apiKey),
		model:       defaultHFModel,
		baseURL:     defaultHFBaseURL,
		httpClient:  &http.Client{Timeout: defaultHFTimeout},
		guard:       guard{name: NameHuggingFace, limiter: limiter, breaker: brk},
		maxAttempts: 3,
		baseDelay:   3 * time.Second,
		maxDelay:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HuggingFace) Name() string { return NameHuggingFace }

func (h *HuggingFace) IsAvailable() bool { return h.apiKey != "" }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxLength int `json:"max_length,omitempty"`
	MinLength int `json:"min_length,omitempty"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfSummary struct {
	SummaryText string `json:"summary_text"`
}

type hfError struct {
	Error string `json:"error"`
}

// Summarize posts the text to the Inference API summarization endpoint.
func (h *HuggingFace) Summarize(ctx context.Context, text string, opts Options) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrInvalidInput, false,
			errors.New("huggingface: empty input text"))
	}
	if h.apiKey == "" {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrAuthentication, false,
			errors.New("huggingface: api key not configured"))
	}

	var lastErr error
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		if err := h.guard.preflight(); err != nil {
			return nil, err
		}

		summary, err := h.call(ctx, text, opts)
		if err != nil {
			h.guard.recordFailure()
			classified := pipeline.ClassifyProviderError("summarization", err)
			if !classified.Retryable || attempt == h.maxAttempts-1 {
				return nil, classified
			}
			lastErr = classified
			delay := pipeline.Backoff(h.baseDelay, attempt, h.maxDelay)
			slog.Warn("HuggingFace call failed, retrying.", "attempt", attempt+1, "backoff", delay.String(), "error", err)
			if err := pipeline.SleepWithContext(ctx, delay); err != nil {
				return nil, pipeline.NewStageError("summarization", pipeline.ErrTimeout, true, err)
			}
			continue
		}

		h.guard.recordSuccess()
		if summary == "" {
			return nil, pipeline.NewStageError("summarization", pipeline.ErrEmptyContent, false,
				errors.New("huggingface: empty summary in response"))
		}
		return &Result{
			Summary:      summary,
			Confidence:   ConfidenceHuggingFace,
			ModelVersion: h.model,
			Provider:     NameHuggingFace,
			TargetLength: opts.TargetWords,
			ActualLength: len(strings.Fields(summary)),
		}, nil
	}
	return nil, lastErr
}

func (h *HuggingFace) call(ctx context.Context, text string, opts Options) (string, error) {
	payload := hfRequest{
		Inputs: text,
		Parameters: hfParameters{
			MaxLength: opts.MaxWords,
			MinLength: opts.MinWords,
		},
		Options: hfOptions{WaitForModel: false},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("huggingface: encode request: %w", err)
	}

	endpoint := h.baseURL + "/" + h.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("huggingface: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("huggingface: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr hfError
		_ = json.Unmarshal(body, &apiErr)
		detail := strings.TrimSpace(apiErr.Error)
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		if resp.StatusCode == http.StatusServiceUnavailable && strings.Contains(strings.ToLower(detail), "loading") {
			return "", fmt.Errorf("huggingface: model is currently loading: %s", detail)
		}
		return "", fmt.Errorf("huggingface: http %d: %s", resp.StatusCode, detail)
	}

	var summaries []hfSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return "", fmt.Errorf("huggingface: decode response: %w", err)
	}
	if len(summaries) == 0 {
		return "", nil
	}
	return strings.TrimSpace(summaries[0].SummaryText), nil
}

// TestConnection summarizes a fixed snippet and measures latency.
func (h *HuggingFace) TestConnection(ctx context.Context) ConnectionStatus {
	status := ConnectionStatus{Provider: NameHuggingFace}
	if h.apiKey == "" {
		status.Error = "not configured"
		return status
	}
	start := time.Now()
	_, err := h.call(ctx, "The fiscal year budget allocates funds across departments.", Options{MinWords: 5, MaxWords: 20})
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Success = true
	return status
}
