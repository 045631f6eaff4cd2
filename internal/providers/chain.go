package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openfiscal/budgetflow/internal/pipeline"
)

// Chain tries providers in priority order, skipping unavailable ones at
// construction and failed ones at call time, so availability degrades
// gracefully (LLM → hosted model → local extractive) instead of failing the
// whole pipeline on one provider outage.
type Chain struct {
	providers []Provider
}

// NewChain filters the ordered provider list down to the available ones.
// An empty result is a fatal configuration error, not a per-request one.
func NewChain(candidates ...Provider) (*Chain, error) {
	var usable []Provider
	for _, p := range candidates {
		if p.IsAvailable() {
			usable = append(usable, p)
		} else {
			slog.Info("Provider not configured, excluded from chain.", "provider", p.Name())
		}
	}
	if len(usable) == 0 {
		return nil, errors.New("provider chain: no usable providers configured")
	}
	return &Chain{providers: usable}, nil
}

// Providers returns the active providers in priority order.
func (c *Chain) Providers() []Provider { return c.providers }

// Summarize walks the chain. Each provider handles its own in-place retries
// for transient errors; the chain's job is only to decide whether to fall
// through. Rate-limited and non-retryable failures fall through immediately.
// If every provider fails, the collected errors are aggregated into one.
func (c *Chain) Summarize(ctx context.Context, text string, opts Options) (*Result, error) {
	type attempt struct {
		provider string
		err      error
	}
	var failures []attempt

	for i, provider := range c.providers {
		result, err := provider.Summarize(ctx, text, opts)
		if err == nil {
			if i > 0 {
				slog.Info("Summarization fell back to a lower-priority provider.",
					"provider", provider.Name(), "failedProviders", len(failures))
			}
			return result, nil
		}

		failures = append(failures, attempt{provider: provider.Name(), err: err})
		if i < len(c.providers)-1 {
			slog.Warn("Provider failed, falling through to next.",
				"provider", provider.Name(),
				"errorType", string(pipeline.TypeOf(err)),
				"error", err)
		}
	}

	messages := make([]string, 0, len(failures))
	retryable := true
	for _, f := range failures {
		messages = append(messages, fmt.Sprintf("%s: %v", f.provider, f.err))
		if !pipeline.Retryable(f.err) {
			retryable = false
		}
	}
	return nil, pipeline.NewStageError("summarization", pipeline.ErrAllProvidersDown, retryable,
		fmt.Errorf("all providers failed: %s", strings.Join(messages, "; ")))
}

// TestConnections runs a health check against every active provider.
func (c *Chain) TestConnections(ctx context.Context) []ConnectionStatus {
	statuses := make([]ConnectionStatus, 0, len(c.providers))
	for _, provider := range c.providers {
		statuses = append(statuses, provider.TestConnection(ctx))
	}
	return statuses
}
