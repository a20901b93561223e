// Package segment splits prompt text into sentences and words.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentences splits text after every period followed by whitespace, keeping the
// whitespace attached to the sentence it ends. The result is never empty and
// joining it reproduces text exactly.
func Sentences(text string) []string {
	var sentences []string
	remaining := text
	for {
		cut := nextBoundary(remaining)
		if cut < 0 {
			break
		}
		sentences = append(sentences, remaining[:cut])
		remaining = remaining[cut:]
	}
	if remaining != "" || len(sentences) == 0 {
		sentences = append(sentences, remaining)
	}
	return sentences
}

// nextBoundary returns the byte offset just past the first "." + whitespace run
// that is followed by a non-space rune, or -1.
func nextBoundary(text string) int {
	for i := 0; i < len(text); i++ {
		if text[i] != '.' {
			continue
		}
		j := i + 1
		for j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(r) {
				break
			}
			j += size
		}
		if j == i+1 || j >= len(text) {
			continue
		}
		return j
	}
	return -1
}

// Words trims s and splits it before every whitespace run, so each word after
// the first carries its leading whitespace. Joining the result reproduces
// strings.TrimSpace(s).
func Words(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var words []string
	start := 0
	prevSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if space && !prevSpace && i > start {
			words = append(words, s[start:i])
			start = i
		}
		prevSpace = space
	}
	return append(words, s[start:])
}

// CountWords returns the number of whitespace separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
