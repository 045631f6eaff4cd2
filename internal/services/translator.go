package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/vertexai/genai"
	"github.com/openfiscal/budgetflow/internal/gcp"
	"github.com/openfiscal/budgetflow/internal/models"
	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/providers"
)

const (
	translateAttempts  = 3
	translateBaseDelay = 2 * time.Second
	translateMaxDelay  = 30 * time.Second
)

// TranslatorConfig holds configuration for the translation stage.
type TranslatorConfig struct {
	ProjectID      string
	VertexAIRegion string
	VertexModel    string
	CollectionName string
}

// generator is the slice of the genai model the translator actually calls.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// TranslatorFunction is the third pipeline stage: it renders the English
// summary into Spanish. A document publishes only once both summaries
// exist; failed or skipped translations leave it in processing for the
// manual retry path.
type TranslatorFunction struct {
	store  DocumentStore
	model  generator
	config TranslatorConfig
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTranslator creates a TranslatorFunction from the environment. A missing
// Vertex configuration is not fatal: the stage then marks documents skipped.
func NewTranslator(ctx context.Context) (*TranslatorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := TranslatorConfig{
		ProjectID:      projectID,
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:    gcp.GetEnv("VERTEX_AI_MODEL", "gemini-1.5-pro"),
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	var model generator
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.VertexModel)
	if err != nil {
		slog.Warn("Vertex AI client unavailable, translations will be skipped.", "error", err)
	} else {
		model = vertexClient.TranslatorModel
	}

	f := &TranslatorFunction{
		store:  NewFirestoreStore(firestoreClient, config.CollectionName),
		model:  model,
		config: config,
		now:    time.Now,
		sleep:  pipeline.SleepWithContext,
	}
	slog.Info("Translator initialized.", "modelConfigured", model != nil)
	return f, nil
}

// Process translates one document's summary. Skips and terminal failures
// return a nil error; only retryable failures propagate.
func (f *TranslatorFunction) Process(ctx context.Context, req *models.TranslationRequest) (*models.TranslationResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	logCtx.Info("Starting translation.")

	doc, err := f.store.Get(ctx, req.DocumentID)
	if err != nil {
		logCtx.Error("Failed to load document record", "error", err)
		return nil, err
	}

	if resp, done := f.checkPreconditions(logCtx, doc); done {
		if resp.Status == StatusSkipped {
			if err := f.markSkipped(ctx, req.DocumentID, resp.Reason); err != nil {
				logCtx.Error("Failed to persist skipped translation status", "error", err)
				return nil, err
			}
		}
		return resp, nil
	}

	started := f.now()
	if err := f.store.Update(ctx, req.DocumentID, []firestore.Update{
		{Path: "translationStatus", Value: models.TranslationTranslating},
		{Path: "translationStartedAt", Value: started},
	}); err != nil {
		logCtx.Error("Failed to mark document translating", "error", err)
		return nil, err
	}

	translated, err := f.translate(ctx, logCtx, doc.SummaryText)
	if err != nil {
		return f.handleFailure(ctx, logCtx, req.DocumentID, err)
	}

	confidence := translationConfidence(doc.SummaryText, translated)
	duration := f.now().Sub(started)
	if err := f.store.Update(ctx, req.DocumentID, []firestore.Update{
		{Path: "translationStatus", Value: models.TranslationCompleted},
		{Path: "translatedSummary", Value: translated},
		{Path: "translationConfidence", Value: confidence},
		{Path: "translationModel", Value: f.config.VertexModel},
		{Path: "sourceCharCount", Value: len(doc.SummaryText)},
		{Path: "sourceWordCount", Value: len(strings.Fields(doc.SummaryText))},
		{Path: "translatedCharCount", Value: len(translated)},
		{Path: "translatedWordCount", Value: len(strings.Fields(translated))},
		{Path: "translationError", Value: ""},
		{Path: "translationErrorType", Value: ""},
		{Path: "translationCompletedAt", Value: f.now()},
		{Path: "translationDurationMs", Value: duration.Milliseconds()},
	}); err != nil {
		logCtx.Error("Failed to persist translation", "error", err)
		return nil, err
	}

	if err := f.finalizePublish(ctx, logCtx, req.DocumentID); err != nil {
		return nil, err
	}

	logCtx.Info("Translation complete.",
		"confidence", confidence,
		"charCount", len(translated),
		"durationMs", duration.Milliseconds())
	return &models.TranslationResponse{
		Status:     StatusSuccess,
		Confidence: confidence,
		CharCount:  len(translated),
	}, nil
}

// checkPreconditions decides between run, no-op, and skip. Skips are
// reported with a reason so operators can tell them apart from failures.
func (f *TranslatorFunction) checkPreconditions(logCtx *slog.Logger, doc *models.Document) (*models.TranslationResponse, bool) {
	switch doc.TranslationStatus {
	case models.TranslationTranslating:
		logCtx.Info("Translation already in flight, treating as no-op.")
		return &models.TranslationResponse{Status: StatusInFlight}, true
	case models.TranslationCompleted:
		logCtx.Info("Translation already complete, treating as no-op.")
		return &models.TranslationResponse{Status: StatusNoOp}, true
	}
	if strings.TrimSpace(doc.SummaryText) == "" {
		logCtx.Warn("No summary available to translate, skipping.", "summarizationStatus", doc.SummarizationStatus)
		return &models.TranslationResponse{Status: StatusSkipped, Reason: "no summary text"}, true
	}
	if f.model == nil {
		logCtx.Warn("Translation model not configured, skipping.")
		return &models.TranslationResponse{Status: StatusSkipped, Reason: "translation model not configured"}, true
	}
	return nil, false
}

// translate calls the model with retries, mirroring the summarization
// providers' retry shape.
func (f *TranslatorFunction) translate(ctx context.Context, logCtx *slog.Logger, summary string) (string, error) {
	prompt := fmt.Sprintf(gcp.TranslatorUserPromptTemplate, summary)

	var lastErr error
	for attempt := 0; attempt < translateAttempts; attempt++ {
		resp, err := f.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			classified := pipeline.ClassifyProviderError("translation", err)
			if !pipeline.Retryable(classified) || attempt == translateAttempts-1 {
				return "", classified
			}
			lastErr = classified
			delay := pipeline.Backoff(translateBaseDelay, attempt, translateMaxDelay)
			logCtx.Warn("Translation call failed, retrying.", "attempt", attempt+1, "backoff", delay.String(), "error", err)
			if err := f.sleep(ctx, delay); err != nil {
				return "", pipeline.NewStageError("translation", pipeline.ErrTimeout, true, err)
			}
			continue
		}

		translated := providers.ExtractText(resp)
		if err := providers.CheckRefusal(translated); err != nil {
			return "", pipeline.NewStageError("translation", pipeline.ErrEmptyContent, false, err)
		}
		if strings.TrimSpace(translated) == "" {
			return "", pipeline.NewStageError("translation", pipeline.ErrEmptyContent, false,
				errors.New("translator: no text content in response"))
		}
		return translated, nil
	}
	return "", lastErr
}

func (f *TranslatorFunction) markSkipped(ctx context.Context, docID, reason string) error {
	return f.store.Update(ctx, docID, []firestore.Update{
		{Path: "translationStatus", Value: models.TranslationSkipped},
		{Path: "translationError", Value: reason},
		{Path: "translationErrorType", Value: ""},
		{Path: "translationCompletedAt", Value: f.now()},
	})
}

// finalizePublish flips the document to published. A document publishes
// only when both the primary summary and the translated summary exist.
func (f *TranslatorFunction) finalizePublish(ctx context.Context, logCtx *slog.Logger, docID string) error {
	doc, err := f.store.Get(ctx, docID)
	if err != nil {
		logCtx.Error("Failed to reload document for publishing", "error", err)
		return err
	}
	if doc.PublishStatus != models.PublishProcessing {
		return nil
	}
	if doc.SummarizationStatus != models.SummarizationCompleted || strings.TrimSpace(doc.SummaryText) == "" {
		return nil
	}
	if strings.TrimSpace(doc.TranslatedSummary) == "" {
		return nil
	}
	if err := f.store.Update(ctx, docID, []firestore.Update{
		{Path: "publishStatus", Value: models.PublishPublished},
		{Path: "publishedAt", Value: f.now()},
	}); err != nil {
		logCtx.Error("Failed to publish document", "error", err)
		return err
	}
	logCtx.Info("Document published.", "translationStatus", doc.TranslationStatus)
	return nil
}

func (f *TranslatorFunction) handleFailure(ctx context.Context, logCtx *slog.Logger, docID string, err error) (*models.TranslationResponse, error) {
	errType := pipeline.TypeOf(err)
	retryable := pipeline.Retryable(err)
	logCtx.Error("Translation failed.", "errorType", string(errType), "retryable", retryable, "error", err)

	if updateErr := f.store.Update(ctx, docID, []firestore.Update{
		{Path: "translationStatus", Value: models.TranslationFailed},
		{Path: "translationError", Value: err.Error()},
		{Path: "translationErrorType", Value: string(errType)},
		{Path: "translationCompletedAt", Value: f.now()},
	}); updateErr != nil {
		logCtx.Error("CRITICAL: failed to persist failed translation status.", "updateError", updateErr)
	}

	if retryable {
		return nil, err
	}
	return &models.TranslationResponse{Status: StatusFailed, ErrorType: string(errType)}, nil
}

// spanishSignals are common Spanish function words used as a cheap check
// that the output actually changed language.
var spanishSignals = []string{
	" el ", " la ", " los ", " las ", " de ", " del ", " para ", " con ", " una ", " por ",
}

// translationConfidence scores a translation heuristically. There is no
// reference translation to compare against, so the score reflects structural
// sanity: plausible length ratio, evidence the text is actually Spanish, and
// how much of the source survives untranslated.
func translationConfidence(source, translated string) float64 {
	confidence := 0.9

	srcLen := float64(len(source))
	dstLen := float64(len(translated))
	if srcLen > 0 {
		ratio := dstLen / srcLen
		if ratio < 0.5 || ratio > 2.5 {
			confidence -= 0.3
		}
	}

	lower := " " + strings.ToLower(translated) + " "
	signals := 0
	for _, word := range spanishSignals {
		if strings.Contains(lower, word) {
			signals++
		}
	}
	if signals < 2 {
		confidence -= 0.4
	}

	if overlap := sharedWordRatio(source, translated); overlap > 0.5 {
		confidence -= 0.3
	}

	if strings.TrimSpace(translated) == strings.TrimSpace(source) {
		confidence = 0.1
	}

	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}

// sharedWordRatio is the fraction of source words that reappear verbatim in
// the translation. Numbers and proper nouns legitimately survive, so only a
// majority carry-over reads as an untranslated passage.
func sharedWordRatio(source, translated string) float64 {
	normalize := func(w string) string {
		return strings.Trim(strings.ToLower(w), ".,;:!?\"'()[]")
	}

	translatedWords := make(map[string]struct{})
	for _, w := range strings.Fields(translated) {
		if w = normalize(w); w != "" {
			translatedWords[w] = struct{}{}
		}
	}

	total, shared := 0, 0
	for _, w := range strings.Fields(source) {
		if w = normalize(w); w == "" {
			continue
		}
		total++
		if _, ok := translatedWords[w]; ok {
			shared++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(shared) / float64(total)
}
