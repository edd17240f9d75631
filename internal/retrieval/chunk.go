// Package retrieval finds manual passages relevant to a chat message. Text
// is split into overlapping chunks, embedded once at ingest time, and
// ranked by cosine similarity at query time.
package retrieval

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 120
)

// Chunk splits text into pieces of at most size runes. Consecutive chunks
// share up to overlap runes of trailing words. Words longer than size are
// cut.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	words := splitWords(text, size)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var cur []string
	curLen := 0
	for i := 0; i < len(words); {
		w := words[i]
		wl := utf8.RuneCountInString(w)
		add := wl
		if len(cur) > 0 {
			add++
		}
		if curLen+add <= size {
			cur = append(cur, w)
			curLen += add
			i++
			continue
		}

		chunks = append(chunks, strings.Join(cur, " "))
		cur, curLen = tail(cur, overlap)
		// Drop the overlap when it would leave no room for the next word.
		if curLen+1+wl > size {
			cur, curLen = nil, 0
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}

// tail returns the trailing words of cur whose joined length fits in limit.
func tail(cur []string, limit int) ([]string, int) {
	if limit <= 0 {
		return nil, 0
	}
	n := 0
	start := len(cur)
	for start > 0 {
		wl := utf8.RuneCountInString(cur[start-1])
		add := wl
		if n > 0 {
			add++
		}
		if n+add > limit {
			break
		}
		n += add
		start--
	}
	out := make([]string, len(cur)-start)
	copy(out, cur[start:])
	return out, n
}

func splitWords(text string, size int) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		for utf8.RuneCountInString(w) > size {
			r := []rune(w)
			out = append(out, string(r[:size]))
			w = string(r[size:])
		}
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
