package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/openfiscal/budgetflow/internal/models"
	"github.com/openfiscal/budgetflow/internal/providers"
	"github.com/openfiscal/budgetflow/internal/summarize"
)

type stubSummarizer struct {
	mu      sync.Mutex
	summary string
	calls   int
}

func (s *stubSummarizer) Name() string      { return "stub" }
func (s *stubSummarizer) IsAvailable() bool { return true }

func (s *stubSummarizer) Summarize(ctx context.Context, text string, opts providers.Options) (*providers.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &providers.Result{
		Summary:      s.summary,
		Confidence:   0.85,
		ModelVersion: "stub-v1",
		Provider:     "stub",
	}, nil
}

func (s *stubSummarizer) TestConnection(ctx context.Context) providers.ConnectionStatus {
	return providers.ConnectionStatus{Provider: "stub", Success: true}
}

func newTestSummarizer(t *testing.T, store *fakeStore, objects *fakeObjects, stub *stubSummarizer) *SummarizerFunction {
	t.Helper()
	chain, err := providers.NewChain(stub)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return &SummarizerFunction{
		store:   store,
		objects: objects,
		engine:  summarize.NewEngine(chain),
		chain:   chain,
		config:  SummarizerConfig{TextBucket: "texts"},
		now:     fixedNow,
	}
}

func readyDocument() *models.Document {
	return &models.Document{
		ExtractionStatus:    models.ExtractionCompleted,
		SummarizationStatus: models.SummarizationPending,
		ExtractedTextObject: "doc-1/extracted.txt",
		CharCount:           700,
	}
}

func TestSummarizerHappyPath(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = readyDocument()
	objects := newFakeObjects()
	objects.content["texts/doc-1/extracted.txt"] =
		strings.Repeat("The budget allocates $12 million to road maintenance this fiscal year. ", 10)
	stub := &stubSummarizer{summary: "The budget directs $12 million toward road maintenance across the fiscal year."}

	f := newTestSummarizer(t, store, objects, stub)
	resp, err := f.Process(context.Background(), &models.SummarizationRequest{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.Status != StatusSuccess || resp.Provider != "stub" {
		t.Fatalf("resp = %+v", resp)
	}
	if status, _ := store.updated("doc-1", "summarizationStatus"); status != models.SummarizationCompleted {
		t.Fatalf("summarizationStatus = %v, want completed", status)
	}
	if text, _ := store.updated("doc-1", "summaryText"); text != stub.summary {
		t.Fatalf("summaryText = %v", text)
	}
	if conf, _ := store.updated("doc-1", "summaryConfidence"); conf != 0.85 {
		t.Fatalf("summaryConfidence = %v, want 0.85", conf)
	}
}

func TestSummarizerSkipsWhenExtractionNotDone(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = &models.Document{ExtractionStatus: models.ExtractionExtracting}

	f := newTestSummarizer(t, store, newFakeObjects(), &stubSummarizer{summary: "s"})
	resp, err := f.Process(context.Background(), &models.SummarizationRequest{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.Status != StatusSkipped {
		t.Fatalf("Status = %s, want skipped", resp.Status)
	}
	if len(store.updates["doc-1"]) != 0 {
		t.Fatal("precondition failures must not write to the store")
	}
}

func TestSummarizerSkipsShortText(t *testing.T) {
	store := newFakeStore()
	doc := readyDocument()
	doc.CharCount = 40
	store.docs["doc-1"] = doc

	f := newTestSummarizer(t, store, newFakeObjects(), &stubSummarizer{summary: "s"})
	resp, err := f.Process(context.Background(), &models.SummarizationRequest{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.Status != StatusSkipped || resp.ErrorType != "empty_content" {
		t.Fatalf("resp = %+v, want skipped/empty_content", resp)
	}
}

func TestSummarizerIdempotentWhenCompleted(t *testing.T) {
	store := newFakeStore()
	doc := readyDocument()
	doc.SummarizationStatus = models.SummarizationCompleted
	store.docs["doc-1"] = doc
	stub := &stubSummarizer{summary: "s"}

	f := newTestSummarizer(t, store, newFakeObjects(), stub)
	resp, err := f.Process(context.Background(), &models.SummarizationRequest{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.Status != StatusNoOp {
		t.Fatalf("Status = %s, want no_op", resp.Status)
	}
	if stub.calls != 0 {
		t.Fatal("completed documents must not be re-summarized")
	}
}

func TestSummarizerMissingTextObjectIsRetryable(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = readyDocument()

	f := newTestSummarizer(t, store, newFakeObjects(), &stubSummarizer{summary: "s"})
	_, err := f.Process(context.Background(), &models.SummarizationRequest{DocumentID: "doc-1"})
	if err == nil {
		t.Fatal("missing extracted text must be re-thrown for retry")
	}
	if status, _ := store.updated("doc-1", "summarizationStatus"); status != models.SummarizationFailed {
		t.Fatalf("summarizationStatus = %v, want failed persisted before re-throw", status)
	}
}

func TestSummarizerTerminalFailureReturnsResponse(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-1"] = readyDocument()
	objects := newFakeObjects()
	// Stored text below the engine floor: terminal empty_content.
	objects.content["texts/doc-1/extracted.txt"] = "short"

	f := newTestSummarizer(t, store, objects, &stubSummarizer{summary: "s"})
	resp, err := f.Process(context.Background(), &models.SummarizationRequest{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("terminal failures must not be re-thrown, got %v", err)
	}
	if resp.Status != StatusFailed || resp.ErrorType != "empty_content" {
		t.Fatalf("resp = %+v, want failed/empty_content", resp)
	}
	if status, _ := store.updated("doc-1", "summarizationStatus"); status != models.SummarizationFailed {
		t.Fatalf("summarizationStatus = %v, want failed", status)
	}
}
