package models

import "time"

// Extraction statuses. Persisted verbatim; the public UI reads them back.
const (
	ExtractionPending          = "pending"
	ExtractionExtracting       = "extracting"
	ExtractionCompleted        = "completed"
	ExtractionCompletedScanned = "completed_scanned"
	ExtractionFailed           = "failed"
)

// Summarization statuses.
const (
	SummarizationPending     = "pending"
	SummarizationSummarizing = "summarizing"
	SummarizationCompleted   = "completed"
	SummarizationFailed      = "failed"
)

// Translation statuses. Skipped means the feature was unavailable (no
// translation model configured), which is distinct from an attempted failure.
const (
	TranslationPending     = "pending"
	TranslationTranslating = "translating"
	TranslationCompleted   = "completed"
	TranslationFailed      = "failed"
	TranslationSkipped     = "skipped"
)

// Publish statuses. A document becomes publishable only once both the
// primary summary and its translation exist.
const (
	PublishProcessing = "processing"
	PublishPublished  = "published"
	PublishArchived   = "archived"
)

// Document is the master record for one uploaded budget PDF in Firestore.
// Each pipeline stage owns its own status/result field group and never
// touches another stage's fields.
type Document struct {
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	FileObject       string    `firestore:"fileObject,omitempty"`
	FileSize         int64     `firestore:"fileSize,omitempty"`
	PublishStatus    string    `firestore:"publishStatus,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
	PublishedAt      time.Time `firestore:"publishedAt,omitempty"`

	ExtractionStatus      string    `firestore:"extractionStatus,omitempty"`
	ExtractionError       string    `firestore:"extractionError,omitempty"`
	ExtractionErrorType   string    `firestore:"extractionErrorType,omitempty"`
	ExtractedTextObject   string    `firestore:"extractedTextObject,omitempty"`
	PageCount             int       `firestore:"pageCount,omitempty"`
	CharCount             int       `firestore:"charCount,omitempty"`
	ExtractionStartedAt   time.Time `firestore:"extractionStartedAt,omitempty"`
	ExtractionCompletedAt time.Time `firestore:"extractionCompletedAt,omitempty"`
	ExtractionDurationMs  int64     `firestore:"extractionDurationMs,omitempty"`

	SummarizationStatus      string    `firestore:"summarizationStatus,omitempty"`
	SummaryText              string    `firestore:"summaryText,omitempty"`
	SummaryConfidence        float64   `firestore:"summaryConfidence,omitempty"`
	SummaryModelVersion      string    `firestore:"summaryModelVersion,omitempty"`
	SummaryProvider          string    `firestore:"summaryProvider,omitempty"`
	SummaryCharCount         int       `firestore:"summaryCharCount,omitempty"`
	SummaryError             string    `firestore:"summaryError,omitempty"`
	SummaryErrorType         string    `firestore:"summaryErrorType,omitempty"`
	SummarizationStartedAt   time.Time `firestore:"summarizationStartedAt,omitempty"`
	SummarizationCompletedAt time.Time `firestore:"summarizationCompletedAt,omitempty"`
	SummarizationDurationMs  int64     `firestore:"summarizationDurationMs,omitempty"`

	TranslationStatus      string    `firestore:"translationStatus,omitempty"`
	TranslatedSummary      string    `firestore:"translatedSummary,omitempty"`
	TranslationConfidence  float64   `firestore:"translationConfidence,omitempty"`
	SourceCharCount        int       `firestore:"sourceCharCount,omitempty"`
	SourceWordCount        int       `firestore:"sourceWordCount,omitempty"`
	TranslatedCharCount    int       `firestore:"translatedCharCount,omitempty"`
	TranslatedWordCount    int       `firestore:"translatedWordCount,omitempty"`
	TranslationModel       string    `firestore:"translationModel,omitempty"`
	TranslationError       string    `firestore:"translationError,omitempty"`
	TranslationErrorType   string    `firestore:"translationErrorType,omitempty"`
	TranslationStartedAt   time.Time `firestore:"translationStartedAt,omitempty"`
	TranslationCompletedAt time.Time `firestore:"translationCompletedAt,omitempty"`
	TranslationDurationMs  int64     `firestore:"translationDurationMs,omitempty"`
}
