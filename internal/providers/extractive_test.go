package providers

import (
	"context"
	"strings"
	"testing"
)

func TestExtractivePrefersFinancialSentences(t *testing.T) {
	text := "The weather was pleasant in the capital. " +
		"The budget allocates $450 million to the Department of Transportation. " +
		"Some residents enjoy walking in the park. " +
		"Revenue from property tax rose 12 percent over the prior fiscal year."

	result, err := NewExtractive().Summarize(context.Background(), text, Options{TargetWords: 25})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(result.Summary, "$450 million") {
		t.Fatalf("summary dropped the dollar-amount sentence: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "12 percent") {
		t.Fatalf("summary dropped the revenue sentence: %q", result.Summary)
	}
}

func TestExtractivePreservesDocumentOrder(t *testing.T) {
	text := "The fiscal plan opens with a $20 million reserve. " +
		"Filler sentence without any substance here at all. " +
		"The budget closes with a projected $35 million surplus."

	result, err := NewExtractive().Summarize(context.Background(), text, Options{TargetWords: 20})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	first := strings.Index(result.Summary, "$20 million")
	second := strings.Index(result.Summary, "$35 million")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("selected sentences out of document order: %q", result.Summary)
	}
}

func TestExtractiveResultMetadata(t *testing.T) {
	result, err := NewExtractive().Summarize(context.Background(),
		"The budget allocates $12 million for roads.", Options{TargetWords: 50})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if result.Provider != NameExtractive {
		t.Fatalf("Provider = %s, want extractive", result.Provider)
	}
	if result.Confidence != ConfidenceExtractive {
		t.Fatalf("Confidence = %v, want %v", result.Confidence, ConfidenceExtractive)
	}
	if result.TargetLength != 50 {
		t.Fatalf("TargetLength = %d, want 50", result.TargetLength)
	}
}

func TestExtractiveEmptyInput(t *testing.T) {
	if _, err := NewExtractive().Summarize(context.Background(), "   ", Options{}); err == nil {
		t.Fatal("want error on empty input")
	}
}

func TestExtractiveAlwaysAvailable(t *testing.T) {
	e := NewExtractive()
	if !e.IsAvailable() {
		t.Fatal("extractive provider must always be available")
	}
	status := e.TestConnection(context.Background())
	if !status.Success {
		t.Fatalf("TestConnection = %+v, want success", status)
	}
}
