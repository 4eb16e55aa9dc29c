// Package chunker splits extracted document text into bounded-length
// fragments on token boundaries.
package chunker

import "strings"

const DefaultMaxLength = 500

// Split cuts text into fragments of at most maxLength characters. Tokens are
// whitespace-separated words; a fragment is closed as soon as appending the
// next token would reach the boundary, so fragments never break mid-word.
// A single token longer than maxLength is emitted verbatim as its own
// fragment. The output is a pure function of (text, maxLength).
func Split(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, word := range words {
		if len(current) > 0 && currentLen+1+len(word) >= maxLength {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			currentLen = 0
		}
		if len(current) > 0 {
			currentLen++
		}
		current = append(current, word)
		currentLen += len(word)
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
