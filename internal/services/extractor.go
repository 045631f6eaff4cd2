package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/ledongthuc/pdf"
	"github.com/openfiscal/budgetflow/internal/gcp"
	"github.com/openfiscal/budgetflow/internal/models"
	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpumodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// summarizeFloorChars is the minimum extracted-text size worth an AI
	// call. Below it the pipeline stops after extraction (e.g. scanned
	// images with no text layer).
	summarizeFloorChars = 100

	downloadAttempts = 2
)

// ExtractorConfig holds configuration for the extraction stage.
type ExtractorConfig struct {
	ProjectID        string
	UploadsBucket    string
	TextBucket       string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
}

// ExtractorFunction is the first pipeline stage: it turns an uploaded PDF
// into plain text and hands the document off to the processing workflow.
type ExtractorFunction struct {
	store   DocumentStore
	objects ObjectStore
	emitter Emitter
	config  ExtractorConfig
	now     func() time.Time

	// parse is swappable in tests; production uses parsePDF.
	parse func(path string) (text string, pageCount int, err error)
}

// NewExtractor creates an ExtractorFunction from the environment.
func NewExtractor(ctx context.Context) (*ExtractorFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := ExtractorConfig{
		ProjectID:        projectID,
		UploadsBucket:    gcp.GetEnv("UPLOADS_BUCKET", ""),
		TextBucket:       gcp.GetEnv("EXTRACTED_TEXT_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "budget-processing-pipeline"),
	}
	if config.UploadsBucket == "" || config.TextBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET and EXTRACTED_TEXT_BUCKET must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflows executions client: %w", err)
	}

	f := &ExtractorFunction{
		store:   NewFirestoreStore(firestoreClient, config.CollectionName),
		objects: NewGCSObjectStore(storageClient),
		emitter: NewWorkflowEmitter(executionsClient, config.ProjectID, config.WorkflowLocation, config.WorkflowID),
		config:  config,
		now:     time.Now,
		parse:   parsePDF,
	}
	slog.Info("Extractor initialized.", "workflowId", config.WorkflowID)
	return f, nil
}

// Process handles one GCS upload-finalize event. Objects are stored as
// <documentID>/source.pdf; anything else in the bucket is ignored.
func (f *ExtractorFunction) Process(ctx context.Context, e models.GCSEvent) error {
	docID, ok := documentIDFromObject(e.Name)
	if !ok {
		slog.Info("Ignoring object outside the upload convention.", "gcsObject", e.Name)
		return nil
	}
	logCtx := slog.With("documentId", docID, "gcsObject", e.Name)
	logCtx.Info("Processing uploaded document.")

	doc, err := f.ensureDocument(ctx, docID, e)
	if err != nil {
		logCtx.Error("Failed to load document record", "error", err)
		return err
	}

	// In-progress and finished states are locks: at-least-once event
	// delivery makes re-entry a no-op rather than a double run. A failed
	// document re-enters only when the persisted error type is transient,
	// so the redelivery a retryable failure requested can actually run.
	switch doc.ExtractionStatus {
	case models.ExtractionExtracting, models.ExtractionCompleted, models.ExtractionCompletedScanned:
		logCtx.Info("Extraction already running or done, skipping.", "status", doc.ExtractionStatus)
		return nil
	case models.ExtractionFailed:
		if !pipeline.RetryableExtraction(pipeline.ErrorType(doc.ExtractionErrorType)) {
			logCtx.Info("Document failed extraction terminally; waiting for manual retry.", "errorType", doc.ExtractionErrorType)
			return nil
		}
		logCtx.Info("Re-running extraction after a transient failure.", "errorType", doc.ExtractionErrorType)
	}

	started := f.now()
	if err := f.store.Update(ctx, docID, []firestore.Update{
		{Path: "extractionStatus", Value: models.ExtractionExtracting},
		{Path: "extractionStartedAt", Value: started},
	}); err != nil {
		logCtx.Error("Failed to mark document extracting", "error", err)
		return err
	}

	text, pageCount, err := f.extract(ctx, e)
	if err != nil {
		return f.handleFailure(ctx, logCtx, docID, err)
	}

	text = strings.TrimSpace(text)
	charCount := len(text)
	duration := f.now().Sub(started)

	if charCount == 0 {
		// No text layer at all: almost certainly a scanned document.
		// Terminal but not a failure; the UI prompts for re-upload or OCR.
		logCtx.Warn("No extractable text found, marking as scanned.", "pageCount", pageCount)
		return f.store.Update(ctx, docID, []firestore.Update{
			{Path: "extractionStatus", Value: models.ExtractionCompletedScanned},
			{Path: "extractionErrorType", Value: string(pipeline.ErrEmpty)},
			{Path: "extractionError", Value: "no extractable text in document"},
			{Path: "pageCount", Value: pageCount},
			{Path: "charCount", Value: 0},
			{Path: "extractionCompletedAt", Value: f.now()},
			{Path: "extractionDurationMs", Value: duration.Milliseconds()},
		})
	}

	textObject := fmt.Sprintf("%s/extracted.txt", docID)
	if err := f.objects.Save(ctx, f.config.TextBucket, textObject, text); err != nil {
		return f.handleFailure(ctx, logCtx, docID, fmt.Errorf("failed to store extracted text: %w", err))
	}

	if err := f.store.Update(ctx, docID, []firestore.Update{
		{Path: "extractionStatus", Value: models.ExtractionCompleted},
		{Path: "extractedTextObject", Value: textObject},
		{Path: "pageCount", Value: pageCount},
		{Path: "charCount", Value: charCount},
		{Path: "extractionError", Value: ""},
		{Path: "extractionErrorType", Value: ""},
		{Path: "extractionCompletedAt", Value: f.now()},
		{Path: "extractionDurationMs", Value: duration.Milliseconds()},
	}); err != nil {
		logCtx.Error("Failed to persist extraction result", "error", err)
		return err
	}
	logCtx.Info("Extraction complete.", "pageCount", pageCount, "charCount", charCount, "durationMs", duration.Milliseconds())

	// Conditional hand-off: near-empty documents are not worth provider
	// budget, so the pipeline stops here for them.
	if charCount <= summarizeFloorChars {
		logCtx.Info("Extracted text below summarization floor, pipeline stops here.", "charCount", charCount)
		return nil
	}

	trigger := models.PipelineTrigger{
		DocumentID:          docID,
		ExtractedTextObject: textObject,
		CharCount:           charCount,
	}
	if err := f.emitter.TriggerPipeline(ctx, trigger); err != nil {
		logCtx.Error("Failed to trigger processing workflow", "error", err)
		return err
	}
	logCtx.Info("Hand-off to processing workflow complete.")
	return nil
}

// ensureDocument loads the record for docID, creating it when the upload
// event arrives before the web application has written one.
func (f *ExtractorFunction) ensureDocument(ctx context.Context, docID string, e models.GCSEvent) (*models.Document, error) {
	doc, err := f.store.Get(ctx, docID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrDocumentNotFound) {
		return nil, err
	}

	size, _ := strconv.ParseInt(e.Size, 10, 64)
	newDoc := &models.Document{
		OriginalFilename: filepath.Base(e.Name),
		FileObject:       e.Name,
		FileSize:         size,
		PublishStatus:    models.PublishProcessing,
		ExtractionStatus: models.ExtractionPending,
		CreatedAt:        f.now(),
	}
	if err := f.store.Create(ctx, docID, newDoc); err != nil {
		return nil, err
	}
	return newDoc, nil
}

// extract downloads the PDF to a temp dir, validates it, and pulls out the
// plain text and page count.
func (f *ExtractorFunction) extract(ctx context.Context, e models.GCSEvent) (string, int, error) {
	tempDir, err := os.MkdirTemp("", "budgetflow-extract-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := f.objects.Download(ctx, e.Bucket, e.Name, sourcePath, downloadAttempts); err != nil {
		return "", 0, fmt.Errorf("download failed: %w", err)
	}

	return f.parse(sourcePath)
}

// handleFailure classifies err, persists the terminal record, and re-throws
// only when the job runtime's retry policy can help.
func (f *ExtractorFunction) handleFailure(ctx context.Context, logCtx *slog.Logger, docID string, err error) error {
	classified := pipeline.ClassifyExtractionError(err)
	logCtx.Error("Extraction failed.", "errorType", string(classified.Type), "retryable", classified.Retryable, "error", err)

	if updateErr := f.store.Update(ctx, docID, []firestore.Update{
		{Path: "extractionStatus", Value: models.ExtractionFailed},
		{Path: "extractionError", Value: err.Error()},
		{Path: "extractionErrorType", Value: string(classified.Type)},
		{Path: "extractionCompletedAt", Value: f.now()},
	}); updateErr != nil {
		logCtx.Error("CRITICAL: failed to persist failed extraction status.", "updateError", updateErr)
	}

	if classified.Retryable {
		return classified
	}
	return nil
}

// documentIDFromObject maps an uploads-bucket object name to its document
// id. The web application writes uploads as <documentID>/source.pdf.
func documentIDFromObject(objectName string) (string, bool) {
	parts := strings.SplitN(objectName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || !strings.HasSuffix(parts[1], ".pdf") {
		return "", false
	}
	return parts[0], true
}

// parsePDF validates and repairs the PDF with pdfcpu, then extracts plain
// text and the page count. Optimizing first normalizes files that the text
// parser would otherwise choke on.
func parsePDF(path string) (string, int, error) {
	cfg := pdfcpumodel.NewDefaultConfiguration()
	cfg.ValidationMode = pdfcpumodel.ValidationRelaxed
	optimizedPath := path + ".optimized.pdf"
	if err := api.OptimizeFile(path, optimizedPath, cfg); err != nil {
		return "", 0, fmt.Errorf("failed to validate pdf: %w", err)
	}

	pageCount, err := api.PageCountFile(optimizedPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get page count: %w", err)
	}

	file, reader, err := pdf.Open(optimizedPath)
	if err != nil {
		return "", pageCount, fmt.Errorf("failed to open pdf for parsing: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", pageCount, fmt.Errorf("failed to extract text: %w", err)
	}
	if _, err := buf.ReadFrom(plainText); err != nil {
		return "", pageCount, fmt.Errorf("failed to read extracted text: %w", err)
	}
	return buf.String(), pageCount, nil
}
