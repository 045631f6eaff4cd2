package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/openfiscal/budgetflow/internal/breaker"
	"github.com/openfiscal/budgetflow/internal/gcp"
	"github.com/openfiscal/budgetflow/internal/models"
	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/providers"
	"github.com/openfiscal/budgetflow/internal/ratelimit"
	"github.com/openfiscal/budgetflow/internal/summarize"
)

// Response statuses shared by the worker functions. "skipped" and "failed"
// are terminal for the workflow; a returned error means retry.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusNoOp     = "no_op"
	StatusInFlight = "in_progress"
)

// Per-provider circuit tuning: the primary is expensive and strict, the
// hosted fallback tolerates longer outages before we give up on it.
const (
	geminiBreakerThreshold = 5
	geminiBreakerCooldown  = 60 * time.Second
	hfBreakerThreshold     = 15
	hfBreakerCooldown      = 300 * time.Second
)

// SummarizerConfig holds configuration for the summarization stage.
type SummarizerConfig struct {
	ProjectID        string
	VertexAIRegion   string
	VertexModel      string
	TextBucket       string
	CollectionName   string
	GeminiDailyLimit int
	HFDailyLimit     int
	ResetHourUTC     int
}

// SummarizerFunction is the second pipeline stage: extracted text in,
// public-facing summary out.
type SummarizerFunction struct {
	store    DocumentStore
	objects  ObjectStore
	engine   *summarize.Engine
	limiter  *ratelimit.Limiter
	breakers map[string]*breaker.Breaker
	chain    *providers.Chain
	config   SummarizerConfig
	now      func() time.Time
}

// NewSummarizer creates a SummarizerFunction from the environment, wiring
// the full provider chain: Gemini, then HuggingFace, then local extractive.
func NewSummarizer(ctx context.Context) (*SummarizerFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := SummarizerConfig{
		ProjectID:        projectID,
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:      gcp.GetEnv("VERTEX_AI_MODEL", "gemini-1.5-pro"),
		TextBucket:       gcp.GetEnv("EXTRACTED_TEXT_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		GeminiDailyLimit: envInt("GEMINI_DAILY_LIMIT", 500),
		HFDailyLimit:     envInt("HUGGINGFACE_DAILY_LIMIT", 1000),
		ResetHourUTC:     envInt("RATE_LIMIT_RESET_HOUR_UTC", 0),
	}
	if config.TextBucket == "" {
		return nil, fmt.Errorf("EXTRACTED_TEXT_BUCKET must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	limiter := ratelimit.New(map[string]int{
		providers.NameGemini:      config.GeminiDailyLimit,
		providers.NameHuggingFace: config.HFDailyLimit,
	}, config.ResetHourUTC)
	breakers := map[string]*breaker.Breaker{
		providers.NameGemini:      breaker.New(geminiBreakerThreshold, geminiBreakerCooldown),
		providers.NameHuggingFace: breaker.New(hfBreakerThreshold, hfBreakerCooldown),
	}

	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.VertexModel)
	if err != nil {
		// Vertex being down at init is a degraded start, not a fatal one:
		// the chain still has the hosted and local fallbacks.
		slog.Warn("Vertex AI client unavailable, primary provider disabled.", "error", err)
		vertexClient = nil
	}

	var geminiModel *providers.Gemini
	if vertexClient != nil {
		geminiModel = providers.NewGemini(vertexClient.SummarizerModel, config.VertexModel,
			limiter, breakers[providers.NameGemini])
	} else {
		geminiModel = providers.NewGemini(nil, config.VertexModel, limiter, breakers[providers.NameGemini])
	}
	hf := providers.NewHuggingFace(gcp.GetEnv("HUGGINGFACE_API_KEY", ""),
		limiter, breakers[providers.NameHuggingFace])

	chain, err := providers.NewChain(geminiModel, hf, providers.NewExtractive())
	if err != nil {
		return nil, fmt.Errorf("failed to build provider chain: %w", err)
	}

	f := &SummarizerFunction{
		store:    NewFirestoreStore(firestoreClient, config.CollectionName),
		objects:  NewGCSObjectStore(storageClient),
		engine:   summarize.NewEngine(chain),
		limiter:  limiter,
		breakers: breakers,
		chain:    chain,
		config:   config,
		now:      time.Now,
	}
	slog.Info("Summarizer initialized.", "providers", len(chain.Providers()))
	return f, nil
}

// Process summarizes one document. Returned errors mean "retry me"; terminal
// outcomes are reported in the response with a nil error so the workflow
// stops cleanly.
func (f *SummarizerFunction) Process(ctx context.Context, req *models.SummarizationRequest) (*models.SummarizationResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	logCtx.Info("Starting summarization.")

	doc, err := f.store.Get(ctx, req.DocumentID)
	if err != nil {
		logCtx.Error("Failed to load document record", "error", err)
		return nil, err
	}

	if resp, done := f.checkPreconditions(logCtx, doc); done {
		return resp, nil
	}

	started := f.now()
	if err := f.store.Update(ctx, req.DocumentID, []firestore.Update{
		{Path: "summarizationStatus", Value: models.SummarizationSummarizing},
		{Path: "summarizationStartedAt", Value: started},
	}); err != nil {
		logCtx.Error("Failed to mark document summarizing", "error", err)
		return nil, err
	}

	textObject := req.ExtractedTextObject
	if textObject == "" {
		textObject = doc.ExtractedTextObject
	}
	text, err := f.objects.Read(ctx, f.config.TextBucket, textObject)
	if err != nil {
		return f.handleFailure(ctx, logCtx, req.DocumentID,
			pipeline.NewStageError("summarization", pipeline.ErrConnection, true, err))
	}

	out, err := f.engine.Summarize(ctx, text)
	if err != nil {
		return f.handleFailure(ctx, logCtx, req.DocumentID, err)
	}

	duration := f.now().Sub(started)
	if err := f.store.Update(ctx, req.DocumentID, []firestore.Update{
		{Path: "summarizationStatus", Value: models.SummarizationCompleted},
		{Path: "summaryText", Value: out.Summary},
		{Path: "summaryConfidence", Value: out.Confidence},
		{Path: "summaryModelVersion", Value: out.ModelVersion},
		{Path: "summaryProvider", Value: out.Provider},
		{Path: "summaryCharCount", Value: out.CharCount},
		{Path: "summaryError", Value: ""},
		{Path: "summaryErrorType", Value: ""},
		{Path: "summarizationCompletedAt", Value: f.now()},
		{Path: "summarizationDurationMs", Value: duration.Milliseconds()},
	}); err != nil {
		logCtx.Error("Failed to persist summary", "error", err)
		return nil, err
	}

	logCtx.Info("Summarization complete.",
		"provider", out.Provider,
		"confidence", out.Confidence,
		"chunkCount", out.ChunkCount,
		"chunkErrors", len(out.Errors),
		"durationMs", duration.Milliseconds())
	return &models.SummarizationResponse{
		Status:     StatusSuccess,
		Provider:   out.Provider,
		Confidence: out.Confidence,
		CharCount:  out.CharCount,
	}, nil
}

// checkPreconditions enforces stage ordering and the in-progress lock.
func (f *SummarizerFunction) checkPreconditions(logCtx *slog.Logger, doc *models.Document) (*models.SummarizationResponse, bool) {
	if doc.ExtractionStatus != models.ExtractionCompleted {
		logCtx.Warn("Document is not ready for summarization.", "extractionStatus", doc.ExtractionStatus)
		return &models.SummarizationResponse{Status: StatusSkipped, ErrorType: string(pipeline.ErrInvalidInput)}, true
	}
	if doc.CharCount < summarizeFloorChars {
		logCtx.Info("Extracted text below the summarization floor, skipping.", "charCount", doc.CharCount)
		return &models.SummarizationResponse{Status: StatusSkipped, ErrorType: string(pipeline.ErrEmptyContent)}, true
	}
	switch doc.SummarizationStatus {
	case models.SummarizationSummarizing:
		logCtx.Info("Summarization already in flight, treating as no-op.")
		return &models.SummarizationResponse{Status: StatusInFlight}, true
	case models.SummarizationCompleted:
		logCtx.Info("Summarization already complete, treating as no-op.")
		return &models.SummarizationResponse{Status: StatusNoOp}, true
	}
	return nil, false
}

func (f *SummarizerFunction) handleFailure(ctx context.Context, logCtx *slog.Logger, docID string, err error) (*models.SummarizationResponse, error) {
	errType := pipeline.TypeOf(err)
	retryable := pipeline.Retryable(err)
	logCtx.Error("Summarization failed.", "errorType", string(errType), "retryable", retryable, "error", err)

	if updateErr := f.store.Update(ctx, docID, []firestore.Update{
		{Path: "summarizationStatus", Value: models.SummarizationFailed},
		{Path: "summaryError", Value: err.Error()},
		{Path: "summaryErrorType", Value: string(errType)},
		{Path: "summarizationCompletedAt", Value: f.now()},
	}); updateErr != nil {
		logCtx.Error("CRITICAL: failed to persist failed summarization status.", "updateError", updateErr)
	}

	if retryable {
		return nil, err
	}
	return &models.SummarizationResponse{Status: StatusFailed, ErrorType: string(errType)}, nil
}

// Limiter exposes the rate limiter for the status surface.
func (f *SummarizerFunction) Limiter() *ratelimit.Limiter { return f.limiter }

// Breakers exposes the circuit breakers for the status surface.
func (f *SummarizerFunction) Breakers() map[string]*breaker.Breaker { return f.breakers }

// Chain exposes the provider chain for health checks.
func (f *SummarizerFunction) Chain() *providers.Chain { return f.chain }

func envInt(key string, fallback int) int {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v <= 0 {
		return fallback
	}
	return v
}
