package providers

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/openfiscal/budgetflow/internal/pipeline"
	"github.com/openfiscal/budgetflow/internal/textutil"
)

// Extractive is the local fallback provider. It summarizes by selecting and
// concatenating existing sentences, so it needs no network and never goes
// down. Its low fixed confidence signals degraded quality downstream.
type Extractive struct{}

// NewExtractive returns the local extractive summarizer.
func NewExtractive() *Extractive { return &Extractive{} }

func (e *Extractive) Name() string { return NameExtractive }

func (e *Extractive) IsAvailable() bool { return true }

// Domain terms that mark a sentence as carrying budget substance.
var budgetKeywords = []string{
	"budget", "appropriation", "allocation", "expenditure", "revenue",
	"fiscal", "fund", "spending", "deficit", "surplus", "tax",
	"department", "grant", "capital", "operating",
}

var (
	multiDigitPattern = regexp.MustCompile(`\d{2,}`)
	moneyPattern      = regexp.MustCompile(`[$€£]\s?\d|\d+(\.\d+)?\s?(million|billion|percent|%)`)
	acronymPattern    = regexp.MustCompile(`\b[A-Z]{2,}\b`)
)

type scoredSentence struct {
	text  string
	index int
	words int
	score float64
}

// Summarize scores every sentence by position, keyword presence, length, and
// numeric content, then selects the highest-scoring sentences up to the word
// budget and restores original document order for coherence.
func (e *Extractive) Summarize(ctx context.Context, text string, opts Options) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrInvalidInput, false,
			errors.New("extractive: empty input text"))
	}

	sentences := textutil.SplitSentences(text)
	if len(sentences) == 0 {
		return nil, pipeline.NewStageError("summarization", pipeline.ErrEmptyContent, false,
			errors.New("extractive: no sentences found"))
	}

	target := opts.TargetWords
	if target <= 0 {
		target = textutil.CalculateSummaryLength(len(text)).Target
	}

	scored := make([]scoredSentence, 0, len(sentences))
	for i, sentence := range sentences {
		words := len(strings.Fields(sentence))
		scored = append(scored, scoredSentence{
			text:  sentence,
			index: i,
			words: words,
			score: scoreSentence(sentence, words, i, len(sentences)),
		})
	}

	// Pick by score, then put the winners back in document order.
	byScore := make([]scoredSentence, len(scored))
	copy(byScore, scored)
	sort.SliceStable(byScore, func(a, b int) bool { return byScore[a].score > byScore[b].score })

	var selected []scoredSentence
	budget := 0
	for _, s := range byScore {
		if budget >= target {
			break
		}
		selected = append(selected, s)
		budget += s.words
	}
	sort.Slice(selected, func(a, b int) bool { return selected[a].index < selected[b].index })

	parts := make([]string, 0, len(selected))
	for _, s := range selected {
		parts = append(parts, s.text)
	}
	summary := strings.Join(parts, " ")

	return &Result{
		Summary:      summary,
		Confidence:   ConfidenceExtractive,
		ModelVersion: "extractive-v1",
		Provider:     NameExtractive,
		TargetLength: target,
		ActualLength: len(strings.Fields(summary)),
	}, nil
}

// scoreSentence weights position (openings and conclusions carry the thesis,
// the middle band holds detail), domain keywords, financial figures,
// readable length, and acronyms.
func scoreSentence(sentence string, words, index, total int) float64 {
	var score float64

	position := float64(index) / float64(total)
	switch {
	case position < 0.2 || position > 0.8:
		score += 2.0
	case position >= 0.4 && position <= 0.6:
		score += 1.0
	default:
		score += 0.5
	}

	lower := strings.ToLower(sentence)
	for _, keyword := range budgetKeywords {
		if strings.Contains(lower, keyword) {
			score += 1.5
			break
		}
	}
	if moneyPattern.MatchString(sentence) {
		score += 1.5
	}
	if multiDigitPattern.MatchString(sentence) {
		score += 2.0
	}
	if words >= 10 && words <= 40 {
		score += 1.0
	}
	if acronymPattern.MatchString(sentence) {
		score += 0.5
	}
	return score
}

// TestConnection always succeeds; there is nothing to connect to.
func (e *Extractive) TestConnection(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{Provider: NameExtractive, Success: true}
}
