// Package chunk splits document text into overlapping fixed-size windows.
package chunk

import (
	"fmt"
	"unicode/utf8"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// Defaults used by the retrieval pipeline.
const (
	DefaultWindow  = 2000
	DefaultOverlap = 200
)

// Validate checks 0 < overlap < window.
func Validate(window, overlap int) error {
	if window <= 0 || overlap <= 0 || overlap >= window {
		return fmt.Errorf("%w: window=%d overlap=%d, need 0 < overlap < window",
			domain.ErrInvalidChunking, window, overlap)
	}
	return nil
}

// Split tiles text with windows of window runes, each starting window-overlap
// runes after the previous one. The last chunk may be shorter.
// Empty text yields no chunks.
func Split(text string, window, overlap int) ([]domain.Chunk, error) {
	if err := Validate(window, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	n := len(runes)
	step := window - overlap

	chunks := make([]domain.Chunk, 0, Count(n, window, overlap))
	for start := 0; start < n; start += step {
		end := min(start+window, n)
		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
	}
	return chunks, nil
}

// Count returns how many chunks Split produces for a text of n runes.
func Count(n, window, overlap int) int {
	if n <= 0 || window <= 0 || overlap >= window {
		return 0
	}
	step := window - overlap
	return (n + step - 1) / step
}

// RuneLen is utf8.RuneCountInString, exported so callers measure text the way Split does.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }
