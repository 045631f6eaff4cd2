package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/openfiscal/budgetflow/internal/breaker"
	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/ratelimit"
	"github.com/openfiscal/budgetflow/internal/textutil"
)

const geminiUserPromptTemplate = `Summarize the following government budget document for the general public.

Structure the summary as markdown with these sections:
## Overview
## Key Spending Areas
## Revenue Sources
## Notable Changes

Requirements:
- Target length: approximately %d words.
- Preserve all monetary amounts, percentages, and fiscal years exactly as written.
- Use plain language; avoid jargon where a common word exists.
- Do not invent figures or departments that are not in the source.

Document text:

%s`

// Gemini is the primary summarization provider, backed by a pre-configured
// Vertex AI generative model.
type Gemini struct {
	model        *genai.GenerativeModel
	modelVersion string
	guard        guard
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
}

// GeminiOption customizes the provider.
type GeminiOption func(*Gemini)

// WithGeminiRetry overrides the retry budget and backoff delays.
func WithGeminiRetry(attempts int, baseDelay, maxDelay time.Duration) GeminiOption {
	return func(g *Gemini) {
		if attempts > 0 {
			g.maxAttempts = attempts
		}
		if baseDelay > 0 {
			g.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			g.maxDelay = maxDelay
		}
	}
}

// NewGemini wraps a Vertex generative model as a chain provider. The model
// may be nil when Vertex is not configured; the provider then reports itself
// unavailable and the chain filters it out.
func NewGemini(model *genai.GenerativeModel, modelVersion string, limiter *ratelimit.Limiter, brk *breaker.Breaker, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		model:        model,
		modelVersion: modelVersion,
		guard:        guard{name: NameGemini, limiter: limiter, breaker: brk},
		maxAttempts:  3,
		baseDelay:    2 * time.Second,
		maxDelay:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gemini) Name() string { return NameGemini }

func (g *Gemini) IsAvailable() bool { return g.model != nil }

// Summarize generates a markdown-sectioned summary sized by the 10% rule.
// Retryable failures are retried in place with exponential backoff; terminal
// classifications return immediately so the chain can fall through.
func (g *Gemini) Summarize(ctx context.Context, text string, opts Options) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrInvalidInput, false,
			errors.New("gemini: empty input text"))
	}

	target := opts.TargetWords
	if target <= 0 {
		target = textutil.CalculateSummaryLength(len(text)).Target
	}
	prompt := fmt.Sprintf(geminiUserPromptTemplate, target, text)

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := g.guard.preflight(); err != nil {
			return nil, err
		}

		resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			g.guard.recordFailure()
			classified := pipeline.ClassifyProviderError("summarization", err)
			if !classified.Retryable || attempt == g.maxAttempts-1 {
				return nil, classified
			}
			lastErr = classified
			delay := pipeline.Backoff(g.baseDelay, attempt, g.maxDelay)
			slog.Warn("Gemini call failed, retrying.", "attempt", attempt+1, "backoff", delay.String(), "error", err)
			if err := pipeline.SleepWithContext(ctx, delay); err != nil {
				return nil, pipeline.NewStageError("summarization", pipeline.ErrTimeout, true, err)
			}
			continue
		}

		g.guard.recordSuccess()
		summary := ExtractText(resp)
		if err := CheckRefusal(summary); err != nil {
			return nil, pipeline.NewStageError("summarization", pipeline.ErrEmptyContent, false, err)
		}
		if summary == "" {
			return nil, pipeline.NewStageError("summarization", pipeline.ErrEmptyContent, false,
				errors.New("gemini: no text content in response"))
		}

		result := &Result{
			Summary:      summary,
			Confidence:   ConfidenceGemini,
			ModelVersion: g.modelVersion,
			Provider:     NameGemini,
			TargetLength: target,
			ActualLength: len(strings.Fields(summary)),
		}
		if resp.UsageMetadata != nil {
			result.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
		}
		return result, nil
	}
	return nil, lastErr
}

// TestConnection issues a minimal generation call and measures latency.
func (g *Gemini) TestConnection(ctx context.Context) ConnectionStatus {
	status := ConnectionStatus{Provider: NameGemini}
	if g.model == nil {
		status.Error = "not configured"
		return status
	}
	start := time.Now()
	_, err := g.model.GenerateContent(ctx, genai.Text("Reply with OK."))
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Success = true
	return status
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// CheckRefusal fails fast when the model declines to process the document.
func CheckRefusal(content string) error {
	lower := strings.ToLower(content)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Errorf("model response indicates refusal: %q", phrase)
		}
	}
	return nil
}

// ExtractText robustly concatenates the text parts of a Gemini
// response and strips any markdown fences around the whole payload.
func ExtractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
		}
	}

	content := strings.TrimSpace(builder.String())
	content = strings.TrimPrefix(content, "```markdown")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
