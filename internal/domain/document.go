package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyPrefix namespaces every key papernest writes to the shared KV store.
const KeyPrefix = "papernest:"

// Document is an immutable text identified by its content digest.
type Document struct {
	Fingerprint string
	Text        string
}

// NewDocument fingerprints text. Identical text always yields the same fingerprint,
// across processes and restarts.
func NewDocument(text string) Document {
	return Document{Fingerprint: Fingerprint(text), Text: text}
}

// Fingerprint returns the lowercase hex sha256 of text.
func Fingerprint(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Chunk is one window of a document. Start and End are rune offsets, End exclusive.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int { return c.End - c.Start }
