// Package summarize orchestrates document summarization: direct single-pass
// calls for short documents, batched chunk summarization with combination
// and depth-bounded recursive reduction for long ones.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/providers"
	"github.com/openfiscal/budgetflow/internal/textutil"
	"golang.org/x/sync/errgroup"
)

const (
	// minInputChars is the floor below which a document is not worth an AI
	// call; matches the extraction stage's hand-off threshold.
	minInputChars = 100

	// confidenceFloor is the lowest confidence the engine reports; it is
	// also the full-fallback signal downstream consumers treat as
	// needs-human-review.
	confidenceFloor = 0.3

	defaultBatchSize  = 3
	defaultBatchDelay = 2 * time.Second

	// maxReduceDepth bounds the recursive re-chunking of combined summaries
	// so pathological inputs terminate.
	maxReduceDepth = 3
)

// Output is the engine's result for one document.
type Output struct {
	Summary      string
	Confidence   float64
	ModelVersion string
	Provider     string
	CharCount    int
	ChunkCount   int
	TokensUsed   int
	TargetLength int
	ActualLength int
	Errors       []string
}

// Engine coordinates the provider chain, the chunker, and the local
// extractive fallback.
type Engine struct {
	chain      *providers.Chain
	fallback   *providers.Extractive
	chunker    *textutil.Chunker
	passTokens int
	batchSize  int
	batchDelay time.Duration
}

// Option customizes the engine.
type Option func(*Engine)

// WithBatch overrides the chunk batch size and inter-batch delay.
func WithBatch(size int, delay time.Duration) Option {
	return func(e *Engine) {
		if size > 0 {
			e.batchSize = size
		}
		if delay >= 0 {
			e.batchDelay = delay
		}
	}
}

// WithChunker overrides the text chunker.
func WithChunker(chunker *textutil.Chunker) Option {
	return func(e *Engine) {
		if chunker != nil {
			e.chunker = chunker
		}
	}
}

// WithSinglePassTokens overrides the single-pass capacity used to decide
// between the direct and chunked paths.
func WithSinglePassTokens(tokens int) Option {
	return func(e *Engine) {
		if tokens > 0 {
			e.passTokens = tokens
		}
	}
}

// NewEngine builds an engine around a provider chain.
func NewEngine(chain *providers.Chain, opts ...Option) *Engine {
	e := &Engine{
		chain:      chain,
		fallback:   providers.NewExtractive(),
		chunker:    textutil.NewChunker(textutil.DefaultChunkTokens, textutil.DefaultOverlapTokens),
		passTokens: textutil.DefaultChunkTokens,
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summarize produces a summary for text, choosing the direct path for
// documents that fit one model pass and the chunked path otherwise.
func (e *Engine) Summarize(ctx context.Context, text string) (*Output, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrEmptyContent, false,
			errors.New("no text to summarize"))
	}
	if len(text) < minInputChars {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrEmptyContent, false,
			fmt.Errorf("text too short to summarize (%d chars, floor %d)", len(text), minInputChars))
	}

	length := textutil.CalculateSummaryLength(len(text))
	if textutil.EstimateTokens(text) <= e.passTokens {
		return e.summarizeDirect(ctx, text, length)
	}
	return e.summarizeChunked(ctx, text, length)
}

// summarizeDirect is the short-document path: one chain call with result
// validation, falling back to the local extractive summarizer when the whole
// chain is down.
func (e *Engine) summarizeDirect(ctx context.Context, text string, length textutil.SummaryLength) (*Output, error) {
	opts := providers.Options{TargetWords: length.Target, MinWords: length.Min, MaxWords: length.Max}

	result, err := e.chain.Summarize(ctx, text, opts)
	if err != nil {
		slog.Warn("Provider chain failed for short document, using local extractive fallback.", "error", err)
		fallbackResult, fbErr := e.fallback.Summarize(ctx, text, opts)
		if fbErr != nil {
			return nil, err
		}
		return e.output(fallbackResult, 1, []string{err.Error()}), nil
	}

	if vErr := validateSummary(result.Summary, text); vErr != nil {
		slog.Warn("Direct summary failed validation, using local extractive fallback.", "error", vErr)
		fallbackResult, fbErr := e.fallback.Summarize(ctx, text, opts)
		if fbErr != nil {
			return nil, pipeline.NewStageError("summarization", pipeline.ErrEmptyContent, false, vErr)
		}
		return e.output(fallbackResult, 1, []string{vErr.Error()}), nil
	}
	return e.output(result, 1, nil), nil
}

// summarizeChunked is the long-document path: split, batch-summarize,
// combine, and reduce until the result fits one pass.
func (e *Engine) summarizeChunked(ctx context.Context, text string, length textutil.SummaryLength) (*Output, error) {
	chunks := e.chunker.SplitByBoundary(text)
	slog.Info("Summarizing long document in chunks.",
		"chunkCount", len(chunks), "charCount", len(text), "targetWords", length.Target)

	pass, err := e.summarizeChunks(ctx, chunks, length.Target)
	if err != nil {
		return nil, err
	}
	totalChunks := len(chunks)
	attemptedChunks := len(chunks)
	chunkErrors := pass.errors

	// Depth-bounded reduction: a combined summary that still overflows the
	// single-pass capacity gets either one more chain pass (moderate
	// overflow) or a full re-chunk (extreme overflow).
	combined := pass.combined
	docOpts := providers.Options{TargetWords: length.Target, MinWords: length.Min, MaxWords: length.Max}
	for depth := 1; depth <= maxReduceDepth && textutil.EstimateTokens(combined) > e.passTokens; depth++ {
		if textutil.EstimateTokens(combined) > 2*e.passTokens {
			slog.Info("Combined summary far exceeds capacity, re-chunking.", "depth", depth, "tokens", textutil.EstimateTokens(combined))
			reChunks := e.chunker.SplitByBoundary(combined)
			nextPass, err := e.summarizeChunks(ctx, reChunks, length.Target)
			if err != nil {
				return nil, err
			}
			combined = nextPass.combined
			attemptedChunks += len(reChunks)
			chunkErrors = append(chunkErrors, nextPass.errors...)
			pass.merge(nextPass)
			continue
		}

		slog.Info("Combined summary exceeds capacity, running final reduction pass.", "depth", depth, "tokens", textutil.EstimateTokens(combined))
		result, err := e.chain.Summarize(ctx, combined, docOpts)
		if err != nil {
			attemptedChunks++
			chunkErrors = append(chunkErrors, fmt.Sprintf("reduction pass: %v", err))
			break
		}
		combined = result.Summary
		pass.record(result)
	}

	// Last resort: extractive truncation down to the target budget.
	if textutil.EstimateTokens(combined) > e.passTokens {
		slog.Warn("Summary still exceeds capacity after reduction, truncating extractively.")
		truncated, fbErr := e.fallback.Summarize(ctx, combined, docOpts)
		if fbErr == nil {
			combined = truncated.Summary
			pass.record(truncated)
		}
	}

	if strings.TrimSpace(combined) == "" {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrAllProvidersDown, true,
			fmt.Errorf("chunked summarization produced no output (%d chunk errors)", len(chunkErrors)))
	}

	// The error list spans every pass, so the discount divides by the chunks
	// actually attempted, not just the first split.
	confidence := discountConfidence(pass.baseConfidence(), len(chunkErrors), attemptedChunks)
	return &Output{
		Summary:      combined,
		Confidence:   confidence,
		ModelVersion: pass.modelVersion,
		Provider:     pass.dominantProvider(),
		CharCount:    len(combined),
		ChunkCount:   totalChunks,
		TokensUsed:   pass.tokensUsed,
		TargetLength: length.Target,
		ActualLength: len(strings.Fields(combined)),
		Errors:       chunkErrors,
	}, nil
}

// chunkPass accumulates the results of one batch-summarization sweep.
type chunkPass struct {
	combined     string
	errors       []string
	providerHits map[string]int
	confidences  map[string]float64
	modelVersion string
	tokensUsed   int
}

func newChunkPass() *chunkPass {
	return &chunkPass{providerHits: map[string]int{}, confidences: map[string]float64{}}
}

func (p *chunkPass) record(result *providers.Result) {
	p.providerHits[result.Provider]++
	p.confidences[result.Provider] = result.Confidence
	p.tokensUsed += result.TokensUsed
	if result.ModelVersion != "" {
		p.modelVersion = result.ModelVersion
	}
}

func (p *chunkPass) merge(other *chunkPass) {
	for provider, hits := range other.providerHits {
		p.providerHits[provider] += hits
	}
	for provider, confidence := range other.confidences {
		p.confidences[provider] = confidence
	}
	p.tokensUsed += other.tokensUsed
	if other.modelVersion != "" {
		p.modelVersion = other.modelVersion
	}
}

// dominantProvider is the provider that produced the most chunk summaries.
func (p *chunkPass) dominantProvider() string {
	best, bestHits := "", -1
	for provider, hits := range p.providerHits {
		if hits > bestHits {
			best, bestHits = provider, hits
		}
	}
	return best
}

// baseConfidence is the dominant provider's fixed confidence.
func (p *chunkPass) baseConfidence() float64 {
	if c, ok := p.confidences[p.dominantProvider()]; ok {
		return c
	}
	return confidenceFloor
}

// summarizeChunks processes chunks in fixed-size concurrent batches with an
// inter-batch delay. A failed chunk falls back to a short local extractive
// summary and is recorded as a non-fatal error; one bad chunk never fails
// the document.
func (e *Engine) summarizeChunks(ctx context.Context, chunks []textutil.Chunk, docTarget int) (*chunkPass, error) {
	pass := newChunkPass()
	if len(chunks) == 0 {
		return pass, nil
	}

	chunkTarget := textutil.ChunkLength(docTarget, len(chunks))
	opts := providers.Options{
		TargetWords: chunkTarget,
		MinWords:    chunkTarget * 8 / 10,
		MaxWords:    chunkTarget * 12 / 10,
	}

	summaries := make([]string, len(chunks))
	results := make([]*providers.Result, len(chunks))
	chunkErrs := make([]string, len(chunks))

	for start := 0; start < len(chunks); start += e.batchSize {
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		eg, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			chunk := chunks[i]
			slot := i
			eg.Go(func() error {
				result, err := e.chain.Summarize(gctx, chunk.Text, opts)
				if err != nil {
					chunkErrs[slot] = fmt.Sprintf("chunk %d: %v", chunk.Index, err)
					fallbackResult, fbErr := e.fallback.Summarize(gctx, chunk.Text, opts)
					if fbErr != nil {
						return nil
					}
					result = fallbackResult
				}
				summaries[slot] = result.Summary
				results[slot] = result
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		// Self-imposed pacing: every chunk of one document counts against
		// the same daily provider budget.
		if end < len(chunks) {
			if err := pipeline.SleepWithContext(ctx, e.batchDelay); err != nil {
				return nil, pipeline.NewStageError("summarization", pipeline.ErrTimeout, true, err)
			}
		}
	}

	for i := range chunks {
		if results[i] != nil {
			pass.record(results[i])
		}
		if chunkErrs[i] != "" {
			pass.errors = append(pass.errors, chunkErrs[i])
		}
	}
	pass.combined = combineSummaries(summaries)
	return pass, nil
}

// combineSummaries trims each part, guarantees terminal punctuation, and
// joins with spaces.
func combineSummaries(summaries []string) string {
	parts := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		trimmed := strings.TrimSpace(summary)
		if trimmed == "" {
			continue
		}
		if !strings.HasSuffix(trimmed, ".") && !strings.HasSuffix(trimmed, "!") && !strings.HasSuffix(trimmed, "?") {
			trimmed += "."
		}
		parts = append(parts, trimmed)
	}
	return strings.Join(parts, " ")
}

// validateSummary rejects summaries that are empty, trivially short, or not
// meaningfully shorter than their source.
func validateSummary(summary, source string) error {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return errors.New("summary is empty")
	}
	if len(summary) < 50 {
		return fmt.Errorf("summary suspiciously short (%d chars)", len(summary))
	}
	if len(summary) > len(source)*9/10 {
		return fmt.Errorf("summary not meaningfully shorter than source (%d of %d chars)", len(summary), len(source))
	}
	return nil
}

// discountConfidence scales the base confidence by the fraction of chunks
// that needed the local fallback, floored so the signal never reads as zero
// quality. Heuristic, not statistics; constants are tunable.
func discountConfidence(base float64, errorCount, totalChunks int) float64 {
	if totalChunks <= 0 {
		return base
	}
	if errorCount > totalChunks {
		errorCount = totalChunks
	}
	discounted := base * (1 - float64(errorCount)/float64(totalChunks))
	if discounted < confidenceFloor {
		return confidenceFloor
	}
	return discounted
}

func (e *Engine) output(result *providers.Result, chunkCount int, errs []string) *Output {
	return &Output{
		Summary:      result.Summary,
		Confidence:   result.Confidence,
		ModelVersion: result.ModelVersion,
		Provider:     result.Provider,
		CharCount:    len(result.Summary),
		ChunkCount:   chunkCount,
		TokensUsed:   result.TokensUsed,
		TargetLength: result.TargetLength,
		ActualLength: result.ActualLength,
		Errors:       errs,
	}
}
