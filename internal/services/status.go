package services

import (
	"context"
	"sort"
	"time"

	"github.com/openfiscal/budgetflow/internal/breaker"
	"github.com/openfiscal/budgetflow/internal/providers"
	"github.com/openfiscal/budgetflow/internal/ratelimit"
)

// ProviderUsage is the status-surface view of one provider's daily budget.
type ProviderUsage struct {
	Provider       string    `json:"provider"`
	Current        int       `json:"current"`
	Limit          int       `json:"limit"`
	Remaining      int       `json:"remaining"`
	PercentUsed    float64   `json:"percentUsed"`
	ResetAt        time.Time `json:"resetAt"`
	SecondsToReset int64     `json:"secondsToReset"`
}

// StatusReport is the JSON body returned by the provider-status function.
type StatusReport struct {
	GeneratedAt time.Time                    `json:"generatedAt"`
	Usage       []ProviderUsage              `json:"usage"`
	Circuits    map[string]breaker.Status    `json:"circuits"`
	Connections []providers.ConnectionStatus `json:"connections,omitempty"`
}

// StatusFunction exposes rate-limit usage, circuit state, and optional live
// connectivity checks for the summarization providers.
type StatusFunction struct {
	limiter  *ratelimit.Limiter
	breakers map[string]*breaker.Breaker
	chain    *providers.Chain
	now      func() time.Time
}

// NewStatus builds the status surface from an initialized summarizer so both
// functions observe the same limiter and breakers.
func NewStatus(s *SummarizerFunction) *StatusFunction {
	return &StatusFunction{
		limiter:  s.Limiter(),
		breakers: s.Breakers(),
		chain:    s.Chain(),
		now:      time.Now,
	}
}

// Report assembles the status snapshot. When checkConnections is set it also
// issues one live call per provider, which spends real quota.
func (f *StatusFunction) Report(ctx context.Context, checkConnections bool) StatusReport {
	report := StatusReport{
		GeneratedAt: f.now().UTC(),
		Circuits:    make(map[string]breaker.Status, len(f.breakers)),
	}

	names := f.limiter.Providers()
	sort.Strings(names)
	for _, name := range names {
		stats := f.limiter.GetStats(name)
		report.Usage = append(report.Usage, ProviderUsage{
			Provider:       name,
			Current:        stats.Current,
			Limit:          stats.Limit,
			Remaining:      stats.Remaining,
			PercentUsed:    stats.PercentUsed,
			ResetAt:        stats.ResetAt,
			SecondsToReset: int64(stats.TimeUntilReset.Seconds()),
		})
	}

	for name, brk := range f.breakers {
		report.Circuits[name] = brk.Status()
	}

	if checkConnections {
		report.Connections = f.chain.TestConnections(ctx)
	}
	return report
}
