// Package providers implements the summarization provider abstraction: a
// primary Gemini model, a hosted HuggingFace summarization model as its
// fallback, a local extractive summarizer as the always-available last
// resort, and the chain that walks them in priority order.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/openfiscal/budgetflow/internal/breaker"
	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/ratelimit"
)

// Provider names; persisted to the document record and used as rate-limiter
// and breaker keys.
const (
	NameGemini      = "gemini"
	NameHuggingFace = "huggingface"
	NameExtractive  = "extractive"
)

// Fixed per-provider confidence constants. These reflect the provider's role
// in the chain, not a measured quality signal; treat them as tunable.
const (
	ConfidenceGemini      = 0.85
	ConfidenceHuggingFace = 0.75
	ConfidenceExtractive  = 0.3
)

// Options controls one summarization call.
type Options struct {
	TargetWords int
	MinWords    int
	MaxWords    int
}

// Result is the uniform output of every provider.
type Result struct {
	Summary      string
	Confidence   float64
	ModelVersion string
	Provider     string
	TokensUsed   int
	TargetLength int
	ActualLength int
}

// ConnectionStatus is the outcome of a provider health check.
type ConnectionStatus struct {
	Provider string        `json:"provider"`
	Success  bool          `json:"success"`
	Latency  time.Duration `json:"latency,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Provider is the uniform contract every summarization backend implements.
type Provider interface {
	Name() string
	// IsAvailable reports whether the provider is configured. It must not
	// perform network calls.
	IsAvailable() bool
	Summarize(ctx context.Context, text string, opts Options) (*Result, error)
	TestConnection(ctx context.Context) ConnectionStatus
}

// guard bundles the rate limiter and circuit breaker consulted before every
// outbound call. Either may be nil (the extractive provider, unit tests).
type guard struct {
	name    string
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
}

// preflight rejects the call before any network activity when the breaker is
// open or today's budget is spent.
func (g *guard) preflight() error {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return pipeline.NewStageError("summarization", pipeline.ErrCircuitOpen, false, err)
		}
	}
	if g.limiter != nil {
		check := g.limiter.CheckLimit(g.name)
		if !check.Allowed {
			return pipeline.NewStageError("summarization", pipeline.ErrRateLimited, true,
				errors.New("daily call budget exhausted"))
		}
	}
	return nil
}

// recordSuccess charges the budget and closes the breaker. Call exactly once
// per successful outbound call.
func (g *guard) recordSuccess() {
	if g.limiter != nil {
		g.limiter.Increment(g.name)
	}
	if g.breaker != nil {
		g.breaker.RecordSuccess()
	}
}

func (g *guard) recordFailure() {
	if g.breaker != nil {
		g.breaker.RecordFailure()
	}
}
