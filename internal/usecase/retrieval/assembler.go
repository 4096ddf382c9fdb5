package retrieval

import (
	"strings"
	"unicode/utf8"
)

// NoContext is returned by Assemble when there is nothing to ground an answer on.
const NoContext = "no relevant context"

// Separator joins chunks in an assembled context.
const Separator = "\n\n---\n\n"

// Assemble joins chunks in the given order and keeps the result within
// maxLength runes by dropping trailing chunks. Chunks are never cut.
// maxLength <= 0 means unbounded.
func Assemble(chunks []string, maxLength int) string {
	if len(chunks) == 0 {
		return NoContext
	}

	sepLen := utf8.RuneCountInString(Separator)
	n := len(chunks)
	total := 0
	for i, c := range chunks {
		total += utf8.RuneCountInString(c)
		if i > 0 {
			total += sepLen
		}
	}

	if maxLength > 0 {
		for n > 0 && total > maxLength {
			n--
			total -= utf8.RuneCountInString(chunks[n])
			if n > 0 {
				total -= sepLen
			}
		}
	}
	if n == 0 {
		return NoContext
	}
	return strings.Join(chunks[:n], Separator)
}
