package textutil

import "strings"

// SplitSentences breaks text into sentences on terminal punctuation followed
// by whitespace. It is deliberately simple; the extractive summarizer only
// needs stable, roughly sentence-shaped units.
func SplitSentences(text string) []string {
	var sentences []string
	var builder strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		builder.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			atEnd := i == len(runes)-1
			followedBySpace := !atEnd && (runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t')
			if atEnd || followedBySpace {
				sentence := strings.TrimSpace(builder.String())
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				builder.Reset()
			}
		}
	}
	if tail := strings.TrimSpace(builder.String()); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
