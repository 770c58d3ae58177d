package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the maximum chunk length in bytes.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is how many trailing bytes of a chunk reappear at
	// the start of the next one.
	DefaultChunkOverlap = 100
)

// defaultSeparators orders the split points the chunker prefers: paragraph
// breaks first, then line breaks, then word breaks, then anywhere.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into overlapping chunks, preferring to cut at
// paragraph and line boundaries so chunks stay semantically coherent.
//
// Consecutive chunks share content: each chunk after the first begins with
// the final overlap bytes of its predecessor.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// NewChunker constructs a Chunker. Non-positive size or overlap fall back to
// the defaults; an overlap at or above size is reduced to size/10 so the
// window always advances.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split divides text into chunks of at most the configured size. Empty or
// whitespace-only input yields no chunks; input at or under the size yields
// exactly one.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= c.size {
		return []string{text}
	}

	segments := c.segment(text, c.separators)

	var chunks []string
	cur := ""
	for _, seg := range segments {
		if cur != "" && len(cur)+len(seg) > c.size {
			chunks = append(chunks, cur)
			cur = tail(cur, c.overlap)
		}
		cur += seg
	}
	if strings.TrimSpace(cur) != "" {
		chunks = append(chunks, cur)
	}

	return chunks
}

// segment recursively splits text into pieces no longer than size-overlap
// bytes, trying each separator in preference order. Keeping segments under
// size-overlap guarantees that overlap plus one segment never exceeds the
// chunk size.
func (c *Chunker) segment(text string, separators []string) []string {
	maxSeg := c.size - c.overlap

	if len(text) <= maxSeg {
		return []string{text}
	}

	sep := separators[0]
	if sep == "" {
		// No boundary left to prefer; cut at fixed intervals, backing each
		// cut off to a rune boundary so characters stay intact.
		var parts []string
		for start := 0; start < len(text); {
			end := start + runeCut(text[start:], maxSeg)
			parts = append(parts, text[start:end])
			start = end
		}
		return parts
	}

	var out []string
	for _, part := range splitAfter(text, sep) {
		if len(part) <= maxSeg {
			out = append(out, part)
			continue
		}
		out = append(out, c.segment(part, separators[1:])...)
	}
	return out
}

// splitAfter splits text on sep, keeping the separator attached to the end
// of each piece so that joining the pieces reproduces the input exactly.
func splitAfter(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	// SplitAfter yields a trailing empty string when text ends with sep.
	if n := len(parts); n > 0 && parts[n-1] == "" {
		parts = parts[:n-1]
	}
	return parts
}

// runeCut returns the byte length of the longest prefix of s that fits in
// limit bytes without splitting a rune. A single rune wider than the limit
// is kept whole so the cut always advances.
func runeCut(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	if limit == 0 {
		_, n := utf8.DecodeRuneInString(s)
		return n
	}
	return limit
}

// tail returns the final n bytes of s, trimmed forward to a rune boundary so
// the overlap never starts mid-character.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
