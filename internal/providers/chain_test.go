package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/openfiscal/budgetflow/internal/pipeline"
)

type fakeProvider struct {
	name      string
	available bool
	result    *Result
	err       error
	calls     int
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return f.available }

func (f *fakeProvider) Summarize(ctx context.Context, text string, opts Options) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{Provider: f.name, Success: f.err == nil}
}

func TestNewChainFiltersUnavailable(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: false}
	secondary := &fakeProvider{name: "secondary", available: true}

	chain, err := NewChain(primary, secondary)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	active := chain.Providers()
	if len(active) != 1 || active[0].Name() != "secondary" {
		t.Fatalf("active providers = %v, want just secondary", active)
	}
}

func TestNewChainEmptyIsError(t *testing.T) {
	if _, err := NewChain(&fakeProvider{name: "p", available: false}); err == nil {
		t.Fatal("want error when no provider is available")
	}
}

func TestChainFirstProviderWins(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true,
		result: &Result{Summary: "primary summary", Provider: "primary", Confidence: 0.85}}
	secondary := &fakeProvider{name: "secondary", available: true,
		result: &Result{Summary: "secondary summary", Provider: "secondary", Confidence: 0.75}}

	chain, _ := NewChain(primary, secondary)
	result, err := chain.Summarize(context.Background(), "text", Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if result.Provider != "primary" {
		t.Fatalf("Provider = %s, want primary", result.Provider)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary was called %d times, want 0", secondary.calls)
	}
}

func TestChainFallsThroughOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true,
		err: pipeline.NewStageError("summarization", pipeline.ErrAuthentication, false, errors.New("bad key"))}
	secondary := &fakeProvider{name: "secondary", available: true,
		result: &Result{Summary: "fallback summary", Provider: "secondary", Confidence: 0.75}}

	chain, _ := NewChain(primary, secondary)
	result, err := chain.Summarize(context.Background(), "text", Options{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if result.Provider != "secondary" || result.Confidence != 0.75 {
		t.Fatalf("got %+v, want the secondary result", result)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("calls = (%d, %d), want (1, 1)", primary.calls, secondary.calls)
	}
}

func TestChainAggregatesWhenAllFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true,
		err: pipeline.NewStageError("summarization", pipeline.ErrRateLimited, true, errors.New("quota"))}
	secondary := &fakeProvider{name: "secondary", available: true,
		err: pipeline.NewStageError("summarization", pipeline.ErrAPIError, true, errors.New("500"))}

	chain, _ := NewChain(primary, secondary)
	_, err := chain.Summarize(context.Background(), "text", Options{})
	if err == nil {
		t.Fatal("want error when every provider fails")
	}
	if pipeline.TypeOf(err) != pipeline.ErrAllProvidersDown {
		t.Fatalf("TypeOf = %s, want all_providers_failed", pipeline.TypeOf(err))
	}
	if !pipeline.Retryable(err) {
		t.Fatal("all failures were retryable, so the aggregate must be retryable")
	}
}

func TestChainAggregateTerminalWhenAnyTerminal(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true,
		err: pipeline.NewStageError("summarization", pipeline.ErrRateLimited, true, errors.New("quota"))}
	secondary := &fakeProvider{name: "secondary", available: true,
		err: pipeline.NewStageError("summarization", pipeline.ErrInvalidInput, false, errors.New("bad input"))}

	chain, _ := NewChain(primary, secondary)
	_, err := chain.Summarize(context.Background(), "text", Options{})
	if pipeline.Retryable(err) {
		t.Fatal("a terminal failure in the chain must make the aggregate terminal")
	}
}

func TestChainTestConnections(t *testing.T) {
	chain, _ := NewChain(
		&fakeProvider{name: "primary", available: true},
		&fakeProvider{name: "secondary", available: true},
	)
	statuses := chain.TestConnections(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
}
