// Package textutil holds the pure text arithmetic shared by the providers
// and the summarization engine: length targets, token estimation, and
// sentence-boundary chunking.
package textutil

const (
	// avgCharsPerWord approximates English prose; used to turn character
	// counts into word estimates.
	avgCharsPerWord = 5

	// charsPerToken is the rough character-to-token ratio for the models in
	// the chain.
	charsPerToken = 4

	summaryFloorWords   = 200
	summaryCeilingWords = 15000
	chunkFloorWords     = 10
)

// SummaryLength is a word budget for a summary: the 10%-rule target plus an
// acceptable band around it.
type SummaryLength struct {
	Min    int
	Target int
	Max    int
}

// CalculateSummaryLength derives the word budget for a document of charCount
// characters: target is 10% of the estimated word count, the band is
// 80%-120% of target, and all three are clamped to [200, 15000] with
// min <= target <= max guaranteed. Degenerate inputs yield the floor.
func CalculateSummaryLength(charCount int) SummaryLength {
	words := 0
	if charCount > 0 {
		words = charCount / avgCharsPerWord
	}
	target := words / 10
	min := target * 8 / 10
	max := target * 12 / 10

	target = clamp(target, summaryFloorWords, summaryCeilingWords)
	min = clamp(min, summaryFloorWords, summaryCeilingWords)
	max = clamp(max, summaryFloorWords, summaryCeilingWords)

	if min > target {
		min = target
	}
	if max < target {
		max = target
	}
	return SummaryLength{Min: min, Target: target, Max: max}
}

// ChunkLength divides a document-level word target across chunkCount chunks,
// with a floor so many-chunk documents never get a zero-length target.
func ChunkLength(docTarget, chunkCount int) int {
	if chunkCount <= 0 {
		chunkCount = 1
	}
	perChunk := docTarget / chunkCount
	if perChunk < chunkFloorWords {
		perChunk = chunkFloorWords
	}
	return perChunk
}

// EstimateTokens approximates the token count of text for capacity checks.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// EstimateWords approximates the word count of text from its length.
func EstimateWords(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return charCount / avgCharsPerWord
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
