/**
 * Text chunker for the knowledge-graph pipeline
 *
 * Splits source text into bounded slices on word boundaries so each chunk
 * fits one extraction prompt. Chunking is deterministic: same text and
 * size always produce the same chunks, which the first-seen-wins merge
 * depends on.
 */

package graph

import "strings"

// SplitChunks breaks text into chunks of at most size bytes, never
// splitting inside a word. Words longer than size become their own chunk.
func SplitChunks(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	words := strings.Fields(text)
	var chunks []string
	var b strings.Builder

	for _, word := range words {
		if b.Len() > 0 && b.Len()+1+len(word) > size {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
