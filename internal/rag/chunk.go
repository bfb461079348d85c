package rag

import (
	"regexp"
	"strings"
)

// ChunkSize and ChunkOverlap are the fixed window parameters for chunking
// a document's normalized text.
const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// sentenceTerminators are checked back-to-front from the window end when
// looking for a natural chunk boundary.
var sentenceTerminators = []byte{'.', '!', '?'}

// normalizeWhitespace collapses runs of whitespace to a single space and
// trims the result.
func normalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Chunk splits normalized text into overlapping windows, preferring to end
// each chunk at the nearest sentence terminator at or before the window
// end, falling back to whitespace, then to a hard cut. The next window
// starts at end-overlap; start advances monotonically so the loop always
// terminates.
func Chunk(text string) []string {
	normalized := normalizeWhitespace(text)
	if normalized == "" {
		return nil
	}
	if len(normalized) <= ChunkSize {
		return []string{normalized}
	}

	var chunks []string
	start := 0
	length := len(normalized)

	for start < length {
		end := start + ChunkSize
		if end >= length {
			chunks = append(chunks, normalized[start:])
			break
		}

		cut := findBoundary(normalized, start, end)
		chunks = append(chunks, normalized[start:cut])

		next := cut - ChunkOverlap
		if next <= start {
			next = cut
		}
		start = next

		if start >= length-ChunkOverlap && start < length {
			// Emit the remaining tail as the final chunk and stop; this
			// guarantees termination even when boundaries keep landing
			// close together.
			if length-start > 0 {
				chunks = append(chunks, normalized[start:])
			}
			break
		}
	}

	return chunks
}

// findBoundary looks for a sentence terminator in the second half of the
// [start, end) window, scanning backward from end. It falls back to the
// nearest whitespace, then to a hard cut at end.
func findBoundary(text string, start, end int) int {
	halfway := start + (end-start)/2

	for i := end - 1; i >= halfway; i-- {
		for _, term := range sentenceTerminators {
			if text[i] == term {
				return i + 1
			}
		}
	}

	for i := end - 1; i >= halfway; i-- {
		if text[i] == ' ' {
			return i + 1
		}
	}

	return end
}
