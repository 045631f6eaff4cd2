package models

// These structs define the JSON payloads exchanged between the Cloud
// Workflow and the worker Cloud Functions, plus the trigger argument the
// extraction worker hands to the workflow.

// GCSEvent is the payload of a GCS object-finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	Size   string `json:"size"`
}

// PipelineTrigger is the argument passed when starting a workflow execution
// after a successful extraction.
type PipelineTrigger struct {
	DocumentID          string `json:"documentId"`
	ExtractedTextObject string `json:"extractedTextObject"`
	CharCount           int    `json:"charCount"`
}

// SummarizationRequest is the input for the summarization-worker function.
type SummarizationRequest struct {
	DocumentID          string `json:"documentId"`
	ExtractedTextObject string `json:"extractedTextObject"`
	ExecutionID         string `json:"executionId"`
}

// SummarizationResponse is the output of the summarization-worker function.
type SummarizationResponse struct {
	Status     string  `json:"status"`
	Provider   string  `json:"provider,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	CharCount  int     `json:"charCount,omitempty"`
	ErrorType  string  `json:"errorType,omitempty"`
}

// TranslationRequest is the input for the translation-worker function.
type TranslationRequest struct {
	DocumentID  string `json:"documentId"`
	ExecutionID string `json:"executionId"`
}

// TranslationResponse is the output of the translation-worker function.
type TranslationResponse struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence,omitempty"`
	CharCount  int     `json:"charCount,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	ErrorType  string  `json:"errorType,omitempty"`
}
