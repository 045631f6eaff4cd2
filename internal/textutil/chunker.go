package textutil

import "strings"

// Chunk is a bounded, sentence-aligned slice of source text sized to fit a
// model context window. StartPos/EndPos are absolute offsets into the source.
type Chunk struct {
	Text       string
	Index      int
	StartPos   int
	EndPos     int
	TokenCount int
}

// Chunker splits long text into overlapping chunks that end on sentence
// boundaries wherever possible. Sizes are expressed in approximate tokens.
type Chunker struct {
	chunkTokens    int
	overlapTokens  int
	boundaryWindow int
}

// Default chunk sizing: comfortably inside the smallest model context in the
// provider chain, with enough overlap that no sentence loses its context.
const (
	DefaultChunkTokens   = 3000
	DefaultOverlapTokens = 150
	boundaryWindowChars  = 200
)

// NewChunker builds a chunker for the given token budget and overlap.
func NewChunker(chunkTokens, overlapTokens int) *Chunker {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return &Chunker{
		chunkTokens:    chunkTokens,
		overlapTokens:  overlapTokens,
		boundaryWindow: boundaryWindowChars,
	}
}

var sentenceDelimiters = []string{". ", ".\n", "! ", "!\n", "? ", "?\n", ".\t"}

// SplitByBoundary walks the text and produces chunks that prefer to end at a
// sentence delimiter, then at whitespace, then at the raw cut position. The
// cursor is guaranteed to advance every iteration even when the overlap
// would otherwise stall it.
func (c *Chunker) SplitByBoundary(text string) []Chunk {
	if text == "" {
		return nil
	}

	chunkChars := c.chunkTokens * charsPerToken
	overlapChars := c.overlapTokens * charsPerToken

	var chunks []Chunk
	position := 0
	index := 0

	for position < len(text) {
		end := position + chunkChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.findBoundary(text, position, end)
		}

		chunkText := text[position:end]
		chunks = append(chunks, Chunk{
			Text:       chunkText,
			Index:      index,
			StartPos:   position,
			EndPos:     end,
			TokenCount: EstimateTokens(chunkText),
		})
		index++

		if end >= len(text) {
			break
		}

		next := end - overlapChars
		if next <= position {
			// Overlap would stall the cursor; force forward progress.
			next = end + 1
		}
		position = next
	}

	return chunks
}

// findBoundary searches backward from the naive end position for the nearest
// sentence delimiter, falling back to whitespace, then to the raw position.
func (c *Chunker) findBoundary(text string, start, naiveEnd int) int {
	windowStart := naiveEnd - c.boundaryWindow
	if windowStart < start {
		windowStart = start
	}
	window := text[windowStart:naiveEnd]

	best := -1
	for _, delim := range sentenceDelimiters {
		if idx := strings.LastIndex(window, delim); idx > best {
			best = idx + len(delim) - 1
		}
	}
	if best >= 0 {
		return windowStart + best
	}

	if idx := strings.LastIndexAny(window, " \t\n"); idx >= 0 {
		return windowStart + idx
	}
	return naiveEnd
}
