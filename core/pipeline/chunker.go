package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/retriever/model"
)

// Chunking defaults
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// sentenceDelimiters are tried in this order when snapping a window end.
var sentenceDelimiters = []string{". ", ".\n", "! ", "!\n", "? ", "?\n"}

// DefaultChunker creates a sentence window chunker with 1000 byte windows and 200 bytes overlap
func DefaultChunker() ChunkFunc {
	return SentenceWindowChunker(DefaultChunkSize, DefaultChunkOverlap)
}

// SentenceWindowChunker creates a chunker that cuts overlapping windows of targetSize bytes
// and moves each window end back to a sentence boundary if one lies in the last half of the window.
func SentenceWindowChunker(targetSize int, overlap int) ChunkFunc {
	return func(text string) ([]string, error) {
		return Chunk(text, targetSize, overlap)
	}
}

// Chunk splits text into overlapping windows.
//
// Each window is at most targetSize bytes long. If the window does not reach the end
// of the text, its end is moved to just after the last sentence delimiter found beyond
// the middle of the window. The next window starts overlap bytes before the end of the
// previous one. Windows are trimmed and empty windows are dropped, so the result is
// empty for empty or whitespace-only text. The output only depends on the arguments.
func Chunk(text string, targetSize int, overlap int) ([]string, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("%w: target size must be positive, got %d", model.ErrInvalidInput, targetSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", model.ErrInvalidInput, overlap)
	}
	if overlap >= targetSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than target size %d", model.ErrInvalidInput, overlap, targetSize)
	}

	chunks := []string{}
	length := len(text)
	start := 0

	for start < length {
		end := start + targetSize
		if end >= length {
			end = length
		} else {
			end = runeFloor(text, end, start)
			if end == start {
				_, width := utf8.DecodeRuneInString(text[start:])
				end = start + width
			}
			end = snapToSentence(text, start, end, targetSize)
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= length {
			break
		}

		next := runeFloor(text, end-overlap, start)
		if next <= start {
			// The snapped window was not longer than the overlap.
			next = end
		}
		start = next
	}

	return chunks, nil
}

// snapToSentence returns the end after the last delimiter in text[start:end]
// if that delimiter lies beyond half of targetSize. The first delimiter kind that qualifies wins.
func snapToSentence(text string, start int, end int, targetSize int) int {
	window := text[start:end]
	for _, delimiter := range sentenceDelimiters {
		idx := strings.LastIndex(window, delimiter)
		if idx >= 0 && float64(idx) > float64(targetSize)*0.5 {
			return start + idx + len(delimiter)
		}
	}
	return end
}

// runeFloor moves i back to the start of the rune it points into, but not below min.
func runeFloor(text string, i int, min int) int {
	if i >= len(text) {
		return len(text)
	}
	for i > min && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
